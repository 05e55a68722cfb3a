package models

import "time"

type AlgoOrderStatus string

const (
	AlgoStatusRunning   AlgoOrderStatus = "RUNNING"
	AlgoStatusFinished  AlgoOrderStatus = "FINISHED"
	AlgoStatusCanceling AlgoOrderStatus = "CANCELING"
	AlgoStatusCanceled  AlgoOrderStatus = "CANCELED"
	AlgoStatusFailed    AlgoOrderStatus = "FAILED"
)

var algoTransitions = map[AlgoOrderStatus]map[AlgoOrderStatus]struct{}{
	AlgoStatusRunning: {
		AlgoStatusFinished:  {},
		AlgoStatusCanceling: {},
		AlgoStatusFailed:    {},
	},
	AlgoStatusCanceling: {
		AlgoStatusCanceled: {},
	},
}

func (s AlgoOrderStatus) CanTransitionTo(next AlgoOrderStatus) bool {
	allowed, ok := algoTransitions[s]
	if !ok {
		return false
	}
	_, ok = allowed[next]
	return ok
}

func (s AlgoOrderStatus) IsTerminal() bool {
	switch s {
	case AlgoStatusFinished, AlgoStatusCanceled, AlgoStatusFailed:
		return true
	}
	return false
}

// AlgoOrder — родительский (логический) ордер. Создаётся задачей EMS и
// мутируется только ею; после терминального статуса не меняется.
type AlgoOrder struct {
	CorrelationID string          `json:"correlation_id"`
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	TotalAmount   float64         `json:"total_amount"`
	Duration      float64         `json:"duration"` // seconds
	Wait          float64         `json:"wait"`     // seconds
	Status        AlgoOrderStatus `json:"status"`
	ChildOrderIDs []string        `json:"child_order_ids"`
	FilledAmount  float64         `json:"filled_amount"`
	Cost          float64         `json:"cost"`
	AveragePrice  float64         `json:"average_price"`
	PositionSide  PositionSide    `json:"position_side,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Aggregate пересчитывает filled/cost/average по дочерним ордерам.
func (a *AlgoOrder) Aggregate(children []Order) {
	var filled, cost float64
	for _, o := range children {
		filled += o.FilledAmount
		if o.Cost > 0 {
			cost += o.Cost
		} else {
			cost += o.FilledAmount * o.AveragePrice
		}
	}
	a.FilledAmount = filled
	a.Cost = cost
	if filled > 0 {
		a.AveragePrice = cost / filled
	}
}
