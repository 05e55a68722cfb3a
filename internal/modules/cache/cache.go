package cache

import (
	"context"
	"sync"
	"time"

	"exec_engine/internal/models"
	"exec_engine/internal/modules/config"
	"exec_engine/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

var (
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrUnknownOrder      = errors.New("unknown order")
	ErrDuplicateOrder    = errors.New("order already initialized")
)

// Cache — система записи по ордерам, algo-ордерам, позициям и балансам.
// Память впереди, durable store позади: чтение read-through, запись
// write-back периодическим снепшотом. Все мутации под одним мьютексом.
type Cache struct {
	cfg   *config.Config
	store Store
	keys  keys

	mu        sync.Mutex
	orders    map[string]*models.Order
	algos     map[string]*models.AlgoOrder
	open      map[string]struct{}
	bySymbol  map[string]map[string]struct{}
	positions map[string]*models.Position
	balances  map[string]*models.AccountBalance
	books     map[string]models.BookL1
	applied   map[string]struct{} // correlation id -> позиция уже применена

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(cfg *config.Config, store Store) *Cache {
	return &Cache{
		cfg:       cfg,
		store:     store,
		keys:      newKeys(cfg.StrategyID, cfg.UserID),
		orders:    make(map[string]*models.Order),
		algos:     make(map[string]*models.AlgoOrder),
		open:      make(map[string]struct{}),
		bySymbol:  make(map[string]map[string]struct{}),
		positions: make(map[string]*models.Position),
		balances:  make(map[string]*models.AccountBalance),
		books:     make(map[string]models.BookL1),
		applied:   make(map[string]struct{}),
		done:      make(chan struct{}),
	}
}

// OrderInitialized кладёт свежесозданный ордер в кеш и индексы. Повторная
// инициализация того же correlation id — дубль, отбрасываем.
func (c *Cache) OrderInitialized(o *models.Order) error {
	if o.CorrelationID == "" {
		return errors.New("order without correlation id")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.orders[o.CorrelationID]; exists {
		return errors.Wrap(ErrDuplicateOrder, o.CorrelationID)
	}

	cp := *o
	if cp.Status == "" {
		cp.Status = models.OrderStatusInitialized
	}
	cp.RemainingAmount = cp.RequestedAmount - cp.FilledAmount
	c.orders[cp.CorrelationID] = &cp

	c.indexSymbolLocked(cp.Symbol, cp.CorrelationID)
	if !cp.Status.IsTerminal() {
		c.open[cp.CorrelationID] = struct{}{}
	}

	return nil
}

// OrderStatusUpdate применяет событие жизненного цикла. Невалидный переход
// не трогает сохранённый ордер и возвращает ErrInvalidTransition — обычно
// это дубль или устаревший пуш, а не сбой.
func (c *Cache) OrderStatusUpdate(o *models.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.orders[o.CorrelationID]
	if !ok {
		return errors.Wrap(ErrUnknownOrder, o.CorrelationID)
	}
	if !cur.Status.CanTransitionTo(o.Status) {
		return errors.Wrapf(ErrInvalidTransition, "%s: %s -> %s", o.CorrelationID, cur.Status, o.Status)
	}

	cur.Status = o.Status
	if o.ExchangeID != "" {
		cur.ExchangeID = o.ExchangeID
	}
	if o.FilledAmount > 0 {
		cur.FilledAmount = o.FilledAmount
	}
	if o.AveragePrice > 0 {
		cur.AveragePrice = o.AveragePrice
	}
	if o.Fee != 0 {
		cur.Fee = o.Fee
		cur.FeeCurrency = o.FeeCurrency
	}
	if o.Cost > 0 {
		cur.Cost = o.Cost
	}
	if !o.Timestamp.IsZero() {
		cur.Timestamp = o.Timestamp
	}
	cur.RemainingAmount = cur.RequestedAmount - cur.FilledAmount

	if cur.Status.IsTerminal() {
		delete(c.open, cur.CorrelationID)
	}

	return nil
}

// GetOrder — память, на промахе durable store с гидрацией памяти.
func (c *Cache) GetOrder(ctx context.Context, correlationID string) (models.Order, bool) {
	c.mu.Lock()
	if o, ok := c.orders[correlationID]; ok {
		cp := *o
		c.mu.Unlock()
		return cp, true
	}
	c.mu.Unlock()

	data, found, err := c.store.HGet(ctx, c.keys.Orders(), correlationID)
	if err != nil {
		logger.Error("cache: store read %s: %v", correlationID, err)
		return models.Order{}, false
	}
	if !found {
		return models.Order{}, false
	}

	var o models.Order
	if err := sonic.Unmarshal(data, &o); err != nil {
		logger.Error("cache: broken order payload %s: %v", correlationID, err)
		return models.Order{}, false
	}

	c.mu.Lock()
	c.orders[o.CorrelationID] = &o
	c.indexSymbolLocked(o.Symbol, o.CorrelationID)
	if o.Status.IsOpen() {
		c.open[o.CorrelationID] = struct{}{}
	}
	cp := o
	c.mu.Unlock()

	return cp, true
}

// GetOpenOrders отдаёт открытые ордера, опционально фильтруя по символу
// либо по бирже.
func (c *Cache) GetOpenOrders(symbol, exchange string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.open))
	for id := range c.open {
		o := c.orders[id]
		if o == nil {
			continue
		}
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		if exchange != "" {
			if inst, err := models.ParseInstrument(o.Symbol); err != nil || inst.Exchange != exchange {
				continue
			}
		}
		out = append(out, id)
	}
	return out
}

// GetSymbolOrders — все ордера символа; includeDurable добирает correlation
// id из последнего снепшота (после вытеснения из памяти).
func (c *Cache) GetSymbolOrders(ctx context.Context, symbol string, includeDurable bool) []string {
	seen := make(map[string]struct{})

	c.mu.Lock()
	for id := range c.bySymbol[symbol] {
		seen[id] = struct{}{}
	}
	c.mu.Unlock()

	if includeDurable {
		members, err := c.store.SMembers(ctx, c.keys.SymbolOrders(symbol))
		if err != nil {
			logger.Error("cache: smembers %s: %v", symbol, err)
		}
		for _, id := range members {
			seen[id] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}

// ApplyPosition применяет филл ордера к позиции ровно один раз на ордер.
// Биржи любят дублировать терминальный пуш — маркер не даёт задвоить объём.
// На промахе в памяти маркер и позиция добираются из durable store, так что
// гарантия переживает рестарт процесса.
func (c *Cache) ApplyPosition(ctx context.Context, o *models.Order) {
	if o.FilledAmount <= 0 {
		return
	}

	c.mu.Lock()
	if _, done := c.applied[o.CorrelationID]; done {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	durable, err := c.store.SIsMember(ctx, c.keys.AppliedFills(), o.CorrelationID)
	if err != nil {
		logger.Error("cache: applied marker %s: %v", o.CorrelationID, err)
	}
	// гидрируем позицию до применения, иначе после рестарта начнём с плоской
	c.GetPosition(ctx, o.Symbol)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, done := c.applied[o.CorrelationID]; done {
		return
	}
	c.applied[o.CorrelationID] = struct{}{}
	if durable {
		return
	}

	pos, ok := c.positions[o.Symbol]
	if !ok {
		exchange := ""
		if inst, err := models.ParseInstrument(o.Symbol); err == nil {
			exchange = inst.Exchange
		}
		pos = models.NewPosition(o.Symbol, exchange)
		c.positions[o.Symbol] = pos
	}

	price := o.AveragePrice
	if price == 0 {
		price = o.Price
	}
	ts := o.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	pos.ApplyFill(o.Side, o.FilledAmount, price, ts)
}

// GetPosition — память, на промахе последний снепшот durable store.
func (c *Cache) GetPosition(ctx context.Context, symbol string) (models.Position, bool) {
	c.mu.Lock()
	if p, ok := c.positions[symbol]; ok {
		cp := *p
		c.mu.Unlock()
		return cp, true
	}
	c.mu.Unlock()

	data, found, err := c.store.Get(ctx, c.keys.SymbolPosition(symbol))
	if err != nil {
		logger.Error("cache: store read position %s: %v", symbol, err)
		return models.Position{}, false
	}
	if !found {
		return models.Position{}, false
	}

	var p models.Position
	if err := sonic.Unmarshal(data, &p); err != nil {
		logger.Error("cache: broken position payload %s: %v", symbol, err)
		return models.Position{}, false
	}

	c.mu.Lock()
	if cur, ok := c.positions[symbol]; ok {
		p = *cur
	} else {
		c.positions[symbol] = &p
	}
	cp := p
	c.mu.Unlock()
	return cp, true
}

func (c *Cache) UpdateBalance(account string, b models.Balance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ab, ok := c.balances[account]
	if !ok {
		ab = &models.AccountBalance{Account: account}
		c.balances[account] = ab
	}
	ab.Apply(b)
	ab.Updated = time.Now()
}

func (c *Cache) GetBalance(account string) (models.AccountBalance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ab, ok := c.balances[account]
	if !ok {
		return models.AccountBalance{}, false
	}
	cp := *ab
	cp.Balances = make(map[string]models.Balance, len(ab.Balances))
	for k, v := range ab.Balances {
		cp.Balances[k] = v
	}
	return cp, true
}

func (c *Cache) SetBook(b models.BookL1) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.books[b.Symbol] = b
}

func (c *Cache) GetBook(symbol string) (models.BookL1, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.books[symbol]
	return b, ok
}

// AlgoOrderInitialized регистрирует родительский ордер задачи EMS.
func (c *Cache) AlgoOrderInitialized(a *models.AlgoOrder) error {
	if a.CorrelationID == "" {
		return errors.New("algo order without correlation id")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.algos[a.CorrelationID]; exists {
		return errors.Wrap(ErrDuplicateOrder, a.CorrelationID)
	}
	cp := *a
	cp.ChildOrderIDs = append([]string(nil), a.ChildOrderIDs...)
	c.algos[cp.CorrelationID] = &cp
	return nil
}

// AlgoOrderUpdate перезаписывает состояние algo-ордера с проверкой перехода
// статуса. Обновления без смены статуса (прогресс) проходят всегда.
func (c *Cache) AlgoOrderUpdate(a *models.AlgoOrder) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.algos[a.CorrelationID]
	if !ok {
		return errors.Wrap(ErrUnknownOrder, a.CorrelationID)
	}
	if cur.Status != a.Status && !cur.Status.CanTransitionTo(a.Status) {
		return errors.Wrapf(ErrInvalidTransition, "algo %s: %s -> %s", a.CorrelationID, cur.Status, a.Status)
	}

	cp := *a
	cp.ChildOrderIDs = append([]string(nil), a.ChildOrderIDs...)
	c.algos[a.CorrelationID] = &cp
	return nil
}

func (c *Cache) GetAlgoOrder(ctx context.Context, correlationID string) (models.AlgoOrder, bool) {
	c.mu.Lock()
	if a, ok := c.algos[correlationID]; ok {
		cp := *a
		cp.ChildOrderIDs = append([]string(nil), a.ChildOrderIDs...)
		c.mu.Unlock()
		return cp, true
	}
	c.mu.Unlock()

	data, found, err := c.store.HGet(ctx, c.keys.AlgoOrders(), correlationID)
	if err != nil || !found {
		if err != nil {
			logger.Error("cache: store read algo %s: %v", correlationID, err)
		}
		return models.AlgoOrder{}, false
	}

	var a models.AlgoOrder
	if err := sonic.Unmarshal(data, &a); err != nil {
		logger.Error("cache: broken algo payload %s: %v", correlationID, err)
		return models.AlgoOrder{}, false
	}

	c.mu.Lock()
	c.algos[a.CorrelationID] = &a
	cp := a
	c.mu.Unlock()
	return cp, true
}

func (c *Cache) indexSymbolLocked(symbol, id string) {
	set, ok := c.bySymbol[symbol]
	if !ok {
		set = make(map[string]struct{})
		c.bySymbol[symbol] = set
	}
	set[id] = struct{}{}
}
