package helper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundToTick(t *testing.T) {
	assert.InDelta(t, 100.1, RoundDownToTick(100.19, 0.1), 1e-9)
	assert.InDelta(t, 100.2, RoundUpToTick(100.11, 0.1), 1e-9)
	assert.InDelta(t, 100.1, RoundToTick(100.12, 0.1), 1e-9)
	// нулевой тик — цена как есть
	assert.InDelta(t, 100.12, RoundToTick(100.12, 0), 1e-9)
	// ровная цена не должна уезжать на тик из-за float-шума
	assert.InDelta(t, 100.1, RoundDownToTick(100.1, 0.1), 1e-9)
	assert.InDelta(t, 100.1, RoundUpToTick(100.1, 0.1), 1e-9)
}

func TestRoundAmount(t *testing.T) {
	assert.InDelta(t, 0.05, RoundAmount(0.059, 0.01), 1e-9)
	assert.InDelta(t, 5, RoundAmount(5, 1), 1e-9)
	assert.InDelta(t, 0, RoundAmount(0.004, 0.01), 1e-9)
}
