package connector

import (
	"context"

	"exec_engine/internal/models"
)

// CreateRequest — параметры выставления дочернего ордера.
type CreateRequest struct {
	Symbol        string
	ClientOrderID string
	Side          models.Side
	Type          models.OrderType
	Amount        float64
	Price         float64
	TimeInForce   models.TimeInForce
	ReduceOnly    bool
	PositionSide  models.PositionSide
	TriggerPrice  float64
	TriggerType   models.TriggerType
	Params        map[string]string
}

// Private — приватный коннектор биржи. Отказ биржи (баланс, точность,
// минимальный нотионал) возвращается как Order с Success=false и статусом
// FAILED, без error; error остаётся только за транспортом/таймаутом —
// такой вызов EMS имеет право ретраить после перепроверки.
type Private interface {
	CreateOrder(ctx context.Context, req CreateRequest) (*models.Order, error)
	CancelOrder(ctx context.Context, symbol, exchangeID string, params map[string]string) (*models.Order, error)
	// QueryRecentOrders нужен ретраю: прежде чем повторять create после
	// транспортной ошибки, проверяем, не прошёл ли он на стороне биржи.
	QueryRecentOrders(ctx context.Context, symbol string) ([]models.Order, error)
}

// Failed собирает терминальный FAILED-ордер для отказа без venue id.
func Failed(req CreateRequest, correlationID string) *models.Order {
	return &models.Order{
		CorrelationID:   correlationID,
		ClientOrderID:   req.ClientOrderID,
		Symbol:          req.Symbol,
		Side:            req.Side,
		Type:            req.Type,
		Status:          models.OrderStatusFailed,
		Price:           req.Price,
		RequestedAmount: req.Amount,
		RemainingAmount: req.Amount,
		ReduceOnly:      req.ReduceOnly,
		PositionSide:    req.PositionSide,
		TimeInForce:     req.TimeInForce,
		Success:         false,
	}
}
