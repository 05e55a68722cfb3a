package ems

import (
	"testing"

	"exec_engine/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestMakerPriceInsideWideSpread(t *testing.T) {
	book := models.BookL1{Bid: 100.0, Ask: 100.5}
	const tick = 0.1

	// на тик внутрь спреда от дальней стороны
	assert.InDelta(t, 100.4, makerPrice(book, models.SideBuy, tick), 1e-9)
	assert.InDelta(t, 100.1, makerPrice(book, models.SideSell, tick), 1e-9)
}

func TestMakerPriceAtTouchWhenSpreadTight(t *testing.T) {
	book := models.BookL1{Bid: 100.0, Ask: 100.1}
	const tick = 0.1

	assert.InDelta(t, 100.0, makerPrice(book, models.SideBuy, tick), 1e-9)
	assert.InDelta(t, 100.1, makerPrice(book, models.SideSell, tick), 1e-9)
}

func TestCrossed(t *testing.T) {
	assert.True(t, crossed(models.BookL1{Bid: 101, Ask: 102}, models.SideBuy, 100.5))
	assert.False(t, crossed(models.BookL1{Bid: 100, Ask: 101}, models.SideBuy, 100.5))

	assert.True(t, crossed(models.BookL1{Bid: 98, Ask: 99}, models.SideSell, 99.5))
	assert.False(t, crossed(models.BookL1{Bid: 99, Ask: 100}, models.SideSell, 99.5))
}
