package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionSameDirectionAveragesEntry(t *testing.T) {
	p := NewPosition("BINANCE.BTC/USDT.PERP", "BINANCE")
	now := time.Now()

	p.ApplyFill(SideBuy, 1, 100, now)
	p.ApplyFill(SideBuy, 1, 110, now)

	assert.Equal(t, PositionSideLong, p.Side)
	assert.InDelta(t, 2.0, p.SignedAmount, 1e-9)
	assert.InDelta(t, 105.0, p.EntryPrice, 1e-9)
	assert.InDelta(t, 0.0, p.RealizedPnl, 1e-9)
}

func TestPositionPartialCloseRealizesPnl(t *testing.T) {
	p := NewPosition("BINANCE.BTC/USDT.PERP", "BINANCE")
	now := time.Now()

	p.ApplyFill(SideBuy, 2, 100, now)
	p.ApplyFill(SideSell, 1, 120, now)

	assert.Equal(t, PositionSideLong, p.Side)
	assert.InDelta(t, 1.0, p.SignedAmount, 1e-9)
	assert.InDelta(t, 100.0, p.EntryPrice, 1e-9)
	assert.InDelta(t, 20.0, p.RealizedPnl, 1e-9)
}

func TestPositionFullCloseGoesFlat(t *testing.T) {
	p := NewPosition("BINANCE.ETH/USDT.PERP", "BINANCE")
	now := time.Now()

	p.ApplyFill(SideSell, 3, 50, now)
	p.ApplyFill(SideBuy, 3, 40, now)

	assert.Equal(t, PositionSideFlat, p.Side)
	assert.InDelta(t, 0.0, p.SignedAmount, 1e-9)
	assert.InDelta(t, 0.0, p.EntryPrice, 1e-9)
	assert.InDelta(t, 30.0, p.RealizedPnl, 1e-9)
}

func TestPositionFlip(t *testing.T) {
	// SELL 1 @ P, затем BUY 1.5 @ P => LONG 0.5, entry = P
	p := NewPosition("BINANCE.BTC/USDT.PERP", "BINANCE")
	now := time.Now()
	const price = 200.0

	p.ApplyFill(SideSell, 1, price, now)
	require.Equal(t, PositionSideShort, p.Side)

	p.ApplyFill(SideBuy, 1.5, price, now)

	assert.Equal(t, PositionSideLong, p.Side)
	assert.InDelta(t, 0.5, p.SignedAmount, 1e-9)
	assert.InDelta(t, price, p.EntryPrice, 1e-9)
	assert.InDelta(t, 0.0, p.RealizedPnl, 1e-9)
}

func TestPositionMarkPrice(t *testing.T) {
	p := NewPosition("BINANCE.BTC/USDT.PERP", "BINANCE")
	p.ApplyFill(SideSell, 2, 100, time.Now())

	p.MarkPrice(90)
	assert.InDelta(t, 20.0, p.UnrealizedPnl, 1e-9)

	p.ApplyFill(SideBuy, 2, 90, time.Now())
	p.MarkPrice(90)
	assert.InDelta(t, 0.0, p.UnrealizedPnl, 1e-9)
}
