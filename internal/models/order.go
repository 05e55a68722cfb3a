package models

import "time"

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

type TimeInForce string

const (
	TifGTC TimeInForce = "GTC" // до отмены
	TifIOC TimeInForce = "IOC" // исполнить сразу, остаток снять
	TifFOK TimeInForce = "FOK"
)

type OrderStatus string

const (
	OrderStatusInitialized     OrderStatus = "INITIALIZED"
	OrderStatusAccepted        OrderStatus = "ACCEPTED"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceling       OrderStatus = "CANCELING"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
	OrderStatusFailed          OrderStatus = "FAILED"
)

// orderTransitions — какие переходы статуса допустимы. Всё остальное считаем
// дублем или устаревшим пушем от биржи и отбрасываем.
var orderTransitions = map[OrderStatus]map[OrderStatus]struct{}{
	OrderStatusInitialized: {
		OrderStatusAccepted:        {},
		OrderStatusPartiallyFilled: {},
		OrderStatusFilled:          {},
		OrderStatusCanceling:       {},
		OrderStatusCanceled:        {},
		OrderStatusExpired:         {},
		OrderStatusFailed:          {},
	},
	OrderStatusAccepted: {
		OrderStatusPartiallyFilled: {},
		OrderStatusFilled:          {},
		OrderStatusCanceling:       {},
		OrderStatusCanceled:        {},
		OrderStatusExpired:         {},
	},
	OrderStatusPartiallyFilled: {
		OrderStatusPartiallyFilled: {},
		OrderStatusFilled:          {},
		OrderStatusCanceling:       {},
		OrderStatusCanceled:        {},
		OrderStatusExpired:         {},
	},
	OrderStatusCanceling: {
		// отмена может проиграть гонку с исполнением
		OrderStatusCanceled: {},
		OrderStatusFilled:   {},
	},
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	allowed, ok := orderTransitions[s]
	if !ok {
		return false
	}
	_, ok = allowed[next]
	return ok
}

func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusExpired, OrderStatusFailed:
		return true
	}
	return false
}

func (s OrderStatus) IsOpen() bool {
	switch s {
	case OrderStatusAccepted, OrderStatusPartiallyFilled, OrderStatusCanceling:
		return true
	}
	return false
}

type PositionSide string

const (
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
	PositionSideFlat  PositionSide = "FLAT"
)

// Order — дочерний (биржевой) ордер. Владелец — кеш, мутации идут только
// через OMS-переходы статуса.
type Order struct {
	CorrelationID   string       `json:"correlation_id"`
	ExchangeID      string       `json:"exchange_id,omitempty"`
	ClientOrderID   string       `json:"client_order_id,omitempty"`
	Symbol          string       `json:"symbol"`
	Side            Side         `json:"side"`
	Type            OrderType    `json:"type"`
	Status          OrderStatus  `json:"status"`
	Price           float64      `json:"price,omitempty"`
	AveragePrice    float64      `json:"average_price,omitempty"`
	RequestedAmount float64      `json:"requested_amount"`
	FilledAmount    float64      `json:"filled_amount"`
	RemainingAmount float64      `json:"remaining_amount"`
	Fee             float64      `json:"fee,omitempty"`
	FeeCurrency     string       `json:"fee_currency,omitempty"`
	Cost            float64      `json:"cost,omitempty"`
	ReduceOnly      bool         `json:"reduce_only,omitempty"`
	PositionSide    PositionSide `json:"position_side,omitempty"`
	TimeInForce     TimeInForce  `json:"time_in_force,omitempty"`
	Timestamp       time.Time    `json:"timestamp"`
	Success         bool         `json:"success"`
}

func (o *Order) IsClosed() bool { return o.Status.IsTerminal() }
