package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatusTransitions(t *testing.T) {
	cases := []struct {
		from OrderStatus
		to   OrderStatus
		ok   bool
	}{
		{OrderStatusInitialized, OrderStatusAccepted, true},
		{OrderStatusInitialized, OrderStatusFailed, true},
		{OrderStatusAccepted, OrderStatusPartiallyFilled, true},
		{OrderStatusAccepted, OrderStatusFailed, false},
		{OrderStatusPartiallyFilled, OrderStatusPartiallyFilled, true},
		{OrderStatusPartiallyFilled, OrderStatusFilled, true},
		{OrderStatusCanceling, OrderStatusCanceled, true},
		// отмена проигрывает гонку с исполнением
		{OrderStatusCanceling, OrderStatusFilled, true},
		{OrderStatusCanceling, OrderStatusAccepted, false},
		{OrderStatusFilled, OrderStatusCanceled, false},
		{OrderStatusCanceled, OrderStatusFilled, false},
		{OrderStatusExpired, OrderStatusAccepted, false},
		{OrderStatusFailed, OrderStatusAccepted, false},
	}

	for _, c := range cases {
		assert.Equalf(t, c.ok, c.from.CanTransitionTo(c.to), "%s -> %s", c.from, c.to)
	}
}

func TestTerminalStatusesHaveNoOutgoingTransitions(t *testing.T) {
	all := []OrderStatus{
		OrderStatusInitialized, OrderStatusAccepted, OrderStatusPartiallyFilled,
		OrderStatusFilled, OrderStatusCanceling, OrderStatusCanceled,
		OrderStatusExpired, OrderStatusFailed,
	}
	for _, from := range all {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range all {
			assert.Falsef(t, from.CanTransitionTo(to), "terminal %s must not transition to %s", from, to)
		}
	}
}

func TestAlgoStatusTransitions(t *testing.T) {
	assert.True(t, AlgoStatusRunning.CanTransitionTo(AlgoStatusFinished))
	assert.True(t, AlgoStatusRunning.CanTransitionTo(AlgoStatusCanceling))
	assert.True(t, AlgoStatusRunning.CanTransitionTo(AlgoStatusFailed))
	assert.True(t, AlgoStatusCanceling.CanTransitionTo(AlgoStatusCanceled))

	assert.False(t, AlgoStatusCanceling.CanTransitionTo(AlgoStatusFinished))
	assert.False(t, AlgoStatusFinished.CanTransitionTo(AlgoStatusCanceled))
	assert.False(t, AlgoStatusCanceled.CanTransitionTo(AlgoStatusRunning))
}
