package models

import (
	"math"
	"time"
)

// Position — нетто-позиция по символу. Создаётся лениво при первом филле,
// никогда не удаляется (FLAT — валидное состояние покоя).
type Position struct {
	Symbol        string       `json:"symbol"`
	Exchange      string       `json:"exchange"`
	Side          PositionSide `json:"side"`
	SignedAmount  float64      `json:"signed_amount"`
	EntryPrice    float64      `json:"entry_price"`
	RealizedPnl   float64      `json:"realized_pnl"`
	UnrealizedPnl float64      `json:"unrealized_pnl"`
	Updated       time.Time    `json:"updated"`
}

func NewPosition(symbol, exchange string) *Position {
	return &Position{
		Symbol:   symbol,
		Exchange: exchange,
		Side:     PositionSideFlat,
	}
}

// ApplyFill применяет исполнение qty@price. BUY двигает signed_amount вверх,
// SELL — вниз; на закрываемой части фиксируется pnl, при перевороте позиция
// меняет сторону, entry берётся от остатка.
func (p *Position) ApplyFill(side Side, qty, price float64, ts time.Time) {
	if qty <= 0 {
		return
	}

	signedQty := qty
	if side == SideSell {
		signedQty = -qty
	}

	switch {
	case p.SignedAmount == 0:
		p.SignedAmount = signedQty
		p.EntryPrice = price

	case sameDirection(p.SignedAmount, signedQty):
		abs := math.Abs(p.SignedAmount)
		p.EntryPrice = (p.EntryPrice*abs + price*qty) / (abs + qty)
		p.SignedAmount += signedQty

	default:
		abs := math.Abs(p.SignedAmount)
		closed := math.Min(abs, qty)
		p.RealizedPnl += p.closedPnl(price, closed)

		if qty <= abs {
			p.SignedAmount += signedQty
			if p.SignedAmount == 0 {
				p.EntryPrice = 0
			}
		} else {
			// переворот: остаток открывает позицию в другую сторону
			p.SignedAmount += signedQty
			p.EntryPrice = price
		}
	}

	p.Side = sideOf(p.SignedAmount)
	p.Updated = ts
}

// MarkPrice пересчитывает нереализованный pnl по последней цене.
func (p *Position) MarkPrice(price float64) {
	if p.SignedAmount == 0 {
		p.UnrealizedPnl = 0
		return
	}
	p.UnrealizedPnl = (price - p.EntryPrice) * p.SignedAmount
}

func (p *Position) Amount() float64 { return math.Abs(p.SignedAmount) }

func (p *Position) closedPnl(price, qty float64) float64 {
	if p.SignedAmount > 0 {
		return (price - p.EntryPrice) * qty
	}
	return (p.EntryPrice - price) * qty
}

func sameDirection(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func sideOf(signed float64) PositionSide {
	switch {
	case signed > 0:
		return PositionSideLong
	case signed < 0:
		return PositionSideShort
	default:
		return PositionSideFlat
	}
}
