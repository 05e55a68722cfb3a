package models

import "time"

// BookL1 — верхний уровень стакана. Алгоритмы EMS читают только последний
// снепшот, истории не держим.
type BookL1 struct {
	Symbol    string    `json:"symbol"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	BidSize   float64   `json:"bid_size"`
	AskSize   float64   `json:"ask_size"`
	Timestamp time.Time `json:"timestamp"`
}

func (b BookL1) Mid() float64    { return (b.Bid + b.Ask) / 2 }
func (b BookL1) Spread() float64 { return b.Ask - b.Bid }
func (b BookL1) Valid() bool     { return b.Bid > 0 && b.Ask > 0 && b.Ask >= b.Bid }
