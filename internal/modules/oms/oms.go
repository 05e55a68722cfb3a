package oms

import (
	"context"
	"time"

	"exec_engine/internal/models"
	"exec_engine/internal/modules/bus"
	"exec_engine/internal/modules/cache"
	"exec_engine/internal/modules/config"
	"exec_engine/internal/registry"
	"exec_engine/pkg/logger"
)

// Service — order management system: принимает сырые события коннекторов,
// гоняет стейт-машину через кеш и публикует нормализованные события.
type Service struct {
	bus        *bus.Bus
	cache      *cache.Cache
	reg        *registry.Registry
	ackTimeout time.Duration
}

func New(b *bus.Bus, c *cache.Cache, r *registry.Registry, cfg *config.Config) *Service {
	return &Service{
		bus:        b,
		cache:      c,
		reg:        r,
		ackTimeout: cfg.EMS.AckTimeout,
	}
}

// Subscribe вешает обработчики на сырые топики. Зовётся один раз на старте.
func (s *Service) Subscribe() {
	s.bus.Subscribe(bus.TopicConnectorOrder, func(ctx context.Context, payload any) {
		if o, ok := payload.(*models.Order); ok {
			s.HandleOrderEvent(ctx, o)
		}
	})
	s.bus.Subscribe(bus.TopicConnectorFill, func(ctx context.Context, payload any) {
		if o, ok := payload.(*models.Order); ok {
			s.HandleFill(ctx, o)
		}
	})
	s.bus.Subscribe(bus.TopicConnectorBalance, func(_ context.Context, payload any) {
		if ev, ok := payload.(models.BalanceEvent); ok {
			s.cache.UpdateBalance(ev.Account, ev.Balance)
		}
	})
	s.bus.Subscribe(bus.TopicBookL1, func(_ context.Context, payload any) {
		if b, ok := payload.(models.BookL1); ok {
			s.cache.SetBook(b)
		}
	})
}

// resolve восстанавливает correlation id события. Пуш может обогнать
// HTTP-ack создания — тогда ждём регистрацию. Пуш по недавно закрытому
// ордеру дропаем сразу: ждать его регистрации бессмысленно, а коллбек шины
// синхронный и не должен висеть весь ack-таймаут на каждом дубле.
func (s *Service) resolve(ctx context.Context, ev *models.Order) bool {
	if ev.CorrelationID != "" {
		return true
	}
	corr, ok := s.reg.ResolveCorrelation(ev.ExchangeID)
	if !ok {
		if s.reg.RemovedRecently(ev.ExchangeID) {
			return false
		}
		corr, ok = s.reg.AwaitCorrelation(ctx, ev.ExchangeID, s.ackTimeout)
	}
	if !ok {
		return false
	}
	ev.CorrelationID = corr
	return true
}

// HandleOrderEvent обрабатывает пуш жизненного цикла ордера.
func (s *Service) HandleOrderEvent(ctx context.Context, ev *models.Order) {
	if !s.resolve(ctx, ev) {
		logger.Warn("oms: event for unknown exchange order %s (%s), dropped", ev.ExchangeID, ev.Status)
		return
	}
	corr := ev.CorrelationID

	if err := s.cache.OrderStatusUpdate(ev); err != nil {
		// как правило это дубль или устаревший пуш — диагностика, не сбой
		logger.Warn("oms: %v", err)
		return
	}

	merged, ok := s.cache.GetOrder(ctx, corr)
	if !ok {
		return
	}

	s.bus.Publish(ctx, topicFor(merged.Status), &merged)

	if merged.Status.IsTerminal() {
		s.cache.ApplyPosition(ctx, &merged)
		s.reg.Remove(&merged)
	}
}

// HandleFill применяет позиционный пуш. Кеш сам гарантирует идемпотентность
// по ордеру.
func (s *Service) HandleFill(ctx context.Context, ev *models.Order) {
	if !s.resolve(ctx, ev) {
		logger.Warn("oms: fill for unknown exchange order %s, dropped", ev.ExchangeID)
		return
	}
	s.cache.ApplyPosition(ctx, ev)
}

func topicFor(status models.OrderStatus) string {
	switch status {
	case models.OrderStatusAccepted:
		return bus.TopicOrderAccepted
	case models.OrderStatusPartiallyFilled:
		return bus.TopicOrderPartiallyFilled
	case models.OrderStatusFilled:
		return bus.TopicOrderFilled
	case models.OrderStatusCanceling:
		return bus.TopicOrderCanceling
	case models.OrderStatusCanceled:
		return bus.TopicOrderCanceled
	case models.OrderStatusExpired:
		return bus.TopicOrderExpired
	case models.OrderStatusFailed:
		return bus.TopicOrderFailed
	default:
		return bus.TopicOrderPending
	}
}
