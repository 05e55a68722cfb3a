package registry

import (
	"context"
	"testing"
	"time"

	"exec_engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func order(corr, exch string) *models.Order {
	return &models.Order{CorrelationID: corr, ExchangeID: exch}
}

func TestRegisterResolveRemove(t *testing.T) {
	r := New()
	r.Register(order("c-1", "e-1"))

	id, ok := r.ResolveID("c-1")
	require.True(t, ok)
	assert.Equal(t, "e-1", id)

	corr, ok := r.ResolveCorrelation("e-1")
	require.True(t, ok)
	assert.Equal(t, "c-1", corr)

	r.Remove(order("c-1", "e-1"))
	_, ok = r.ResolveID("c-1")
	assert.False(t, ok)
	_, ok = r.ResolveCorrelation("e-1")
	assert.False(t, ok)
}

func TestRemoveLeavesRecentMark(t *testing.T) {
	r := New()
	r.Register(order("c-1", "e-1"))
	r.Remove(order("c-1", "e-1"))

	assert.True(t, r.RemovedRecently("e-1"))
	assert.False(t, r.RemovedRecently("e-2"))
	assert.False(t, r.RemovedRecently(""))
}

func TestAwaitCorrelationWakesOnLateRegister(t *testing.T) {
	r := New()

	done := make(chan string, 1)
	go func() {
		id, ok := r.AwaitCorrelation(context.Background(), "e-42", time.Second)
		if !ok {
			id = ""
		}
		done <- id
	}()

	time.Sleep(20 * time.Millisecond)
	r.Register(order("c-42", "e-42"))

	select {
	case id := <-done:
		assert.Equal(t, "c-42", id)
	case <-time.After(time.Second):
		t.Fatal("await did not wake up")
	}
}

func TestAwaitCorrelationTimesOut(t *testing.T) {
	r := New()

	start := time.Now()
	_, ok := r.AwaitCorrelation(context.Background(), "e-none", 30*time.Millisecond)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestAwaitCorrelationReturnsImmediatelyWhenKnown(t *testing.T) {
	r := New()
	r.Register(order("c-7", "e-7"))

	id, ok := r.AwaitCorrelation(context.Background(), "e-7", time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, "c-7", id)
}
