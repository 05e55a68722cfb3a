package connector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"exec_engine/internal/models"
	"exec_engine/internal/modules/bus"
)

// Paper — бумажный коннектор: матчит команды против последнего снепшота
// книги и шлёт пуши жизненного цикла в сырые топики, как настоящий
// приватный стрим. Даёт бинарю полный контур без выхода на биржу.
type Paper struct {
	bus *bus.Bus

	mu      sync.Mutex
	seq     int
	books   map[string]models.BookL1
	resting map[string]*models.Order // exchange id -> лимитка в книге
	recent  []models.Order
}

func NewPaper(b *bus.Bus) *Paper {
	p := &Paper{
		bus:     b,
		books:   make(map[string]models.BookL1),
		resting: make(map[string]*models.Order),
	}
	b.Subscribe(bus.TopicBookL1, func(ctx context.Context, payload any) {
		if book, ok := payload.(models.BookL1); ok {
			p.onBook(ctx, book)
		}
	})
	return p
}

func (p *Paper) nextID() string {
	p.seq++
	return fmt.Sprintf("paper-%d", p.seq)
}

func (p *Paper) CreateOrder(ctx context.Context, req CreateRequest) (*models.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	book, haveBook := p.books[req.Symbol]
	if req.Type == models.OrderTypeMarket && !haveBook {
		// маркет без книги исполнять не обо что
		return Failed(req, req.ClientOrderID), nil
	}

	o := &models.Order{
		ExchangeID:      p.nextID(),
		ClientOrderID:   req.ClientOrderID,
		Symbol:          req.Symbol,
		Side:            req.Side,
		Type:            req.Type,
		Status:          models.OrderStatusInitialized,
		Price:           req.Price,
		RequestedAmount: req.Amount,
		RemainingAmount: req.Amount,
		ReduceOnly:      req.ReduceOnly,
		PositionSide:    req.PositionSide,
		TimeInForce:     req.TimeInForce,
		Timestamp:       time.Now(),
		Success:         true,
	}
	p.remember(o)

	switch {
	case req.Type == models.OrderTypeMarket:
		p.pushFill(ctx, o, takerPrice(book, req.Side))
	case haveBook && marketable(book, req.Side, req.Price):
		p.pushFill(ctx, o, req.Price)
	default:
		p.resting[o.ExchangeID] = o
		p.push(ctx, &models.Order{
			ExchangeID: o.ExchangeID,
			Symbol:     o.Symbol,
			Status:     models.OrderStatusAccepted,
			Timestamp:  time.Now(),
		})
	}
	return o, nil
}

func (p *Paper) CancelOrder(ctx context.Context, symbol, exchangeID string, _ map[string]string) (*models.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.resting[exchangeID]
	if !ok {
		// уже исполнен либо никогда не существовал
		return &models.Order{
			ExchangeID: exchangeID,
			Symbol:     symbol,
			Status:     models.OrderStatusFailed,
			Timestamp:  time.Now(),
			Success:    false,
		}, nil
	}
	delete(p.resting, exchangeID)

	p.push(ctx, &models.Order{
		ExchangeID:      exchangeID,
		Symbol:          symbol,
		Status:          models.OrderStatusCanceled,
		FilledAmount:    o.FilledAmount,
		RemainingAmount: o.RemainingAmount,
		Timestamp:       time.Now(),
	})
	return &models.Order{
		ExchangeID: exchangeID,
		Symbol:     symbol,
		Status:     models.OrderStatusCanceling,
		Timestamp:  time.Now(),
		Success:    true,
	}, nil
}

func (p *Paper) QueryRecentOrders(_ context.Context, symbol string) ([]models.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]models.Order, 0, len(p.recent))
	for _, o := range p.recent {
		if o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out, nil
}

func (p *Paper) onBook(ctx context.Context, book models.BookL1) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.books[book.Symbol] = book
	for id, o := range p.resting {
		if o.Symbol != book.Symbol || !marketable(book, o.Side, o.Price) {
			continue
		}
		delete(p.resting, id)
		p.pushFill(ctx, o, o.Price)
	}
}

// pushFill шлёт исполнение целиком по price; частичных исполнений бумажная
// книга не моделирует. Ack создания не трогаем — статус доедет пушем, как у
// настоящей биржи.
func (p *Paper) pushFill(ctx context.Context, o *models.Order, price float64) {
	filled := o.RequestedAmount
	p.push(ctx, &models.Order{
		ExchangeID:      o.ExchangeID,
		Symbol:          o.Symbol,
		Side:            o.Side,
		Status:          models.OrderStatusFilled,
		FilledAmount:    filled,
		RemainingAmount: 0,
		AveragePrice:    price,
		Cost:            price * filled,
		Timestamp:       time.Now(),
	})
}

// push имитирует асинхронный пуш приватного стрима: уходит из другой
// горутины и может обогнать возврат HTTP-ack.
func (p *Paper) push(ctx context.Context, ev *models.Order) {
	go p.bus.Publish(ctx, bus.TopicConnectorOrder, ev)
}

func (p *Paper) remember(o *models.Order) {
	const keep = 64
	p.recent = append(p.recent, *o)
	if len(p.recent) > keep {
		p.recent = p.recent[len(p.recent)-keep:]
	}
}

func takerPrice(book models.BookL1, side models.Side) float64 {
	if side == models.SideBuy {
		return book.Ask
	}
	return book.Bid
}

// marketable: лимитка пересекает текущую книгу.
func marketable(book models.BookL1, side models.Side, price float64) bool {
	if !book.Valid() || price <= 0 {
		return false
	}
	if side == models.SideBuy {
		return book.Ask <= price
	}
	return book.Bid >= price
}
