package ems

import (
	"context"
	"sync"

	"exec_engine/internal/connector"
	"exec_engine/internal/models"
	"exec_engine/internal/modules/bus"
	"exec_engine/internal/modules/cache"
	"exec_engine/internal/modules/config"
	"exec_engine/internal/registry"
	"exec_engine/pkg/logger"
	"exec_engine/pkg/tracing"

	"github.com/pkg/errors"
)

var (
	ErrQueueFull        = errors.New("account queue is full")
	ErrUnknownSubmit    = errors.New("unknown submit type")
	ErrMayBeClosed      = errors.New("order may already be closed")
	ErrAlgoNotRunning   = errors.New("algo order is not running")
	ErrBadAlgoParams    = errors.New("bad algo parameters")
	ErrNoBook           = errors.New("no book snapshot for symbol")
	ErrNothingToExecute = errors.New("amount below minimum, nothing to execute")
)

type handlerFunc func(ctx context.Context, sub models.OrderSubmit) error

// Journal пишет отчёт по терминальному algo-ордеру. Реализация — pg-журнал;
// в тестах может быть nil.
type Journal interface {
	RecordAlgo(ctx context.Context, a *models.AlgoOrder)
}

// Service — execution management system: FIFO-очередь и воркер на каждый
// venue-аккаунт, таблица диспатча по типу команды, примитивы выставления и
// снятия, задачи TWAP и adaptive maker/taker.
type Service struct {
	cfg     *config.Config
	cache   *cache.Cache
	reg     *registry.Registry
	bus     *bus.Bus
	conn    connector.Private
	journal Journal
	tasks   *taskManager

	handlers map[models.SubmitType]handlerFunc

	mu      sync.Mutex
	queues  map[string]chan models.OrderSubmit
	acctMus map[string]*sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(cfg *config.Config, c *cache.Cache, r *registry.Registry, b *bus.Bus, conn connector.Private, j Journal) *Service {
	s := &Service{
		cfg:     cfg,
		cache:   c,
		reg:     r,
		bus:     b,
		conn:    conn,
		journal: j,
		tasks:   newTaskManager(),
		queues:  make(map[string]chan models.OrderSubmit),
		acctMus: make(map[string]*sync.Mutex),
		done:    make(chan struct{}),
	}
	s.handlers = map[models.SubmitType]handlerFunc{
		models.SubmitCreate:         s.handleCreate,
		models.SubmitCancel:         s.handleCancel,
		models.SubmitStopLoss:       s.handleStopLoss,
		models.SubmitTakeProfit:     s.handleTakeProfit,
		models.SubmitTwap:           s.handleTwap,
		models.SubmitCancelTwap:     s.handleCancelAlgo,
		models.SubmitAdaptiveMaker:  s.handleAdaptiveMaker,
		models.SubmitCancelAdpMaker: s.handleCancelAlgo,
	}
	return s
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
}

// baseCtx — контекст фоновых операций сервиса. До Start отдаёт Background,
// чтобы ранний Submit не ронял воркера на nil-контексте.
func (s *Service) baseCtx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}
	return s.ctx
}

// Stop гасит задачи алгоритмов (каждая отрабатывает свой wind-down) и
// останавливает воркеров.
func (s *Service) Stop() {
	s.tasks.shutdown()
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.stopOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}

// Submit кладёт команду в очередь её venue-аккаунта. Очередь одна на
// аккаунт, воркер один — порядок подачи на биржу сохраняется.
func (s *Service) Submit(sub models.OrderSubmit) error {
	if sub.Instrument == (models.InstrumentID{}) {
		inst, err := models.ParseInstrument(sub.Symbol)
		if err != nil {
			return err
		}
		sub.Instrument = inst
	}

	ch := s.queue(sub.Instrument.Account())
	select {
	case ch <- sub:
		return nil
	default:
		return errors.Wrap(ErrQueueFull, sub.Instrument.Account())
	}
}

func (s *Service) queue(account string) chan models.OrderSubmit {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.queues[account]
	if !ok {
		size := s.cfg.EMS.QueueSize
		if size <= 0 {
			size = 128
		}
		ch = make(chan models.OrderSubmit, size)
		s.queues[account] = ch
		s.acctMus[account] = &sync.Mutex{}

		s.wg.Add(1)
		go s.worker(account, ch)
	}
	return ch
}

func (s *Service) worker(account string, ch <-chan models.OrderSubmit) {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case sub := <-ch:
			s.dispatch(sub, account)
		}
	}
}

func (s *Service) dispatch(sub models.OrderSubmit, account string) {
	span, ctx := tracing.StartSpan(s.baseCtx(), "ems.submit")
	span.SetTag("submit_type", string(sub.SubmitType))
	span.SetTag("symbol", sub.Symbol)
	span.SetTag("account", account)
	defer span.Finish()

	h, ok := s.handlers[sub.SubmitType]
	if !ok {
		logger.Error("ems: %v: %s", ErrUnknownSubmit, sub.SubmitType)
		return
	}
	if err := h(ctx, sub); err != nil {
		logger.Warn("ems: %s %s: %v", sub.SubmitType, sub.Symbol, err)
	}
}

// accountLock сериализует обращения к коннектору одного аккаунта: задачи
// алгоритмов живут в своих горутинах и не должны гоняться с воркером.
func (s *Service) accountLock(symbol string) *sync.Mutex {
	account := symbol
	if inst, err := models.ParseInstrument(symbol); err == nil {
		account = inst.Account()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.acctMus[account]
	if !ok {
		mu = &sync.Mutex{}
		s.acctMus[account] = mu
	}
	return mu
}
