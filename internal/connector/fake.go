package connector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"exec_engine/internal/models"
)

// Fake — коннектор для тестов. По умолчанию подтверждает всё; поведение
// переопределяется хуками, OnCreated позволяет тесту сыграть роль OMS.
type Fake struct {
	mu  sync.Mutex
	seq int

	CreateFn func(req CreateRequest) (*models.Order, error)
	CancelFn func(symbol, exchangeID string) (*models.Order, error)
	RecentFn func(symbol string) ([]models.Order, error)

	OnCreated func(o *models.Order)
	OnCancel  func(exchangeID string)

	Created  []CreateRequest
	Canceled []string
}

func NewFake() *Fake { return &Fake{} }

func (f *Fake) nextID() string {
	f.seq++
	return fmt.Sprintf("ex-%d", f.seq)
}

func (f *Fake) CreateOrder(_ context.Context, req CreateRequest) (*models.Order, error) {
	f.mu.Lock()
	f.Created = append(f.Created, req)
	createFn := f.CreateFn
	onCreated := f.OnCreated
	f.mu.Unlock()

	if createFn != nil {
		return createFn(req)
	}

	f.mu.Lock()
	id := f.nextID()
	f.mu.Unlock()

	o := &models.Order{
		CorrelationID:   req.ClientOrderID,
		ExchangeID:      id,
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
	if onCreated != nil {
		onCreated(o)
	}
	return o, nil
}

func (f *Fake) CancelOrder(_ context.Context, symbol, exchangeID string, _ map[string]string) (*models.Order, error) {
	f.mu.Lock()
	f.Canceled = append(f.Canceled, exchangeID)
	cancelFn := f.CancelFn
	onCancel := f.OnCancel
	f.mu.Unlock()

	if cancelFn != nil {
		return cancelFn(symbol, exchangeID)
	}
	if onCancel != nil {
		onCancel(exchangeID)
	}
	return &models.Order{
		ExchangeID: exchangeID,
		Symbol:     symbol,
		Status:     models.OrderStatusCanceling,
		Timestamp:  time.Now(),
		Success:    true,
	}, nil
}

func (f *Fake) QueryRecentOrders(_ context.Context, symbol string) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RecentFn != nil {
		return f.RecentFn(symbol)
	}
	return nil, nil
}

func (f *Fake) CreatedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Created)
}

func (f *Fake) CanceledCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Canceled)
}
