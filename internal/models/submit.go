package models

import "time"

type SubmitType string

const (
	SubmitCreate         SubmitType = "CREATE"
	SubmitCancel         SubmitType = "CANCEL"
	SubmitTwap           SubmitType = "TWAP"
	SubmitCancelTwap     SubmitType = "CANCEL_TWAP"
	SubmitAdaptiveMaker  SubmitType = "ADAPTIVE_MAKER"
	SubmitCancelAdpMaker SubmitType = "CANCEL_ADAPTIVE_MAKER"
	SubmitStopLoss       SubmitType = "STOP_LOSS"
	SubmitTakeProfit     SubmitType = "TAKE_PROFIT"
)

type TriggerType string

const (
	TriggerLast TriggerType = "LAST"
	TriggerMark TriggerType = "MARK"
)

// OrderSubmit — команда в очередь EMS. Не персистится.
type OrderSubmit struct {
	Symbol        string
	Instrument    InstrumentID
	SubmitType    SubmitType
	Side          Side
	Type          OrderType
	Amount        float64
	Price         float64
	TimeInForce   TimeInForce
	PositionSide  PositionSide
	TriggerPrice  float64
	TriggerType   TriggerType
	ReduceOnly    bool
	Wait          time.Duration
	Duration      time.Duration
	CheckInterval time.Duration
	TpRatio       float64
	SlRatio       float64
	SlTpDuration  time.Duration
	CorrelationID string
	ExtraParams   map[string]string
}
