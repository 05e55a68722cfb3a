package cache

import (
	"context"
	"testing"
	"time"

	"exec_engine/internal/models"
	"exec_engine/internal/modules/config"
	"exec_engine/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSymbol = "BINANCE.BTC/USDT.PERP"

func newTestCache(t *testing.T) (*Cache, *MemStore) {
	t.Helper()
	logger.InitNop()

	cfg := &config.Config{StrategyID: "s1", UserID: "u1"}
	cfg.Cache.SyncInterval = time.Minute
	cfg.Cache.ExpireTime = time.Hour

	store := NewMemStore()
	return New(cfg, store), store
}

func newOrder(id string, status models.OrderStatus) *models.Order {
	return &models.Order{
		CorrelationID:   id,
		Symbol:          testSymbol,
		Side:            models.SideBuy,
		Type:            models.OrderTypeLimit,
		Status:          status,
		Price:           100,
		RequestedAmount: 2,
		Timestamp:       time.Now(),
		Success:         true,
	}
}

func TestOrderLifecycle(t *testing.T) {
	c, _ := newTestCache(t)

	require.NoError(t, c.OrderInitialized(newOrder("o-1", models.OrderStatusInitialized)))
	assert.Contains(t, c.GetOpenOrders("", ""), "o-1")

	up := newOrder("o-1", models.OrderStatusAccepted)
	up.ExchangeID = "e-1"
	require.NoError(t, c.OrderStatusUpdate(up))

	up = newOrder("o-1", models.OrderStatusPartiallyFilled)
	up.FilledAmount = 1
	up.AveragePrice = 100
	require.NoError(t, c.OrderStatusUpdate(up))

	got, ok := c.GetOrder(context.Background(), "o-1")
	require.True(t, ok)
	assert.Equal(t, models.OrderStatusPartiallyFilled, got.Status)
	assert.Equal(t, "e-1", got.ExchangeID)
	assert.InDelta(t, 1.0, got.RemainingAmount, 1e-9)

	up = newOrder("o-1", models.OrderStatusFilled)
	up.FilledAmount = 2
	require.NoError(t, c.OrderStatusUpdate(up))
	assert.NotContains(t, c.GetOpenOrders("", ""), "o-1")
}

func TestInvalidTransitionLeavesOrderUntouched(t *testing.T) {
	c, _ := newTestCache(t)

	require.NoError(t, c.OrderInitialized(newOrder("o-1", models.OrderStatusInitialized)))
	filled := newOrder("o-1", models.OrderStatusFilled)
	filled.FilledAmount = 2
	require.NoError(t, c.OrderStatusUpdate(filled))

	// устаревший пуш после терминального статуса
	stale := newOrder("o-1", models.OrderStatusAccepted)
	err := c.OrderStatusUpdate(stale)
	require.ErrorIs(t, err, ErrInvalidTransition)

	got, ok := c.GetOrder(context.Background(), "o-1")
	require.True(t, ok)
	assert.Equal(t, models.OrderStatusFilled, got.Status)
	assert.InDelta(t, 2.0, got.FilledAmount, 1e-9)
}

func TestUpdateUnknownOrder(t *testing.T) {
	c, _ := newTestCache(t)
	err := c.OrderStatusUpdate(newOrder("ghost", models.OrderStatusAccepted))
	assert.ErrorIs(t, err, ErrUnknownOrder)
}

func TestDuplicateInitializeRejected(t *testing.T) {
	c, _ := newTestCache(t)
	require.NoError(t, c.OrderInitialized(newOrder("o-1", models.OrderStatusInitialized)))
	assert.ErrorIs(t, c.OrderInitialized(newOrder("o-1", models.OrderStatusInitialized)), ErrDuplicateOrder)
}

func TestApplyPositionIdempotent(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	o := newOrder("o-1", models.OrderStatusFilled)
	o.FilledAmount = 2
	o.AveragePrice = 100

	c.ApplyPosition(ctx, o)
	c.ApplyPosition(ctx, o) // дубль терминального пуша

	pos, ok := c.GetPosition(ctx, testSymbol)
	require.True(t, ok)
	assert.InDelta(t, 2.0, pos.SignedAmount, 1e-9)
	assert.Equal(t, models.PositionSideLong, pos.Side)
	assert.Equal(t, "BINANCE", pos.Exchange)
}

func TestApplyPositionFlip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	sell := newOrder("o-1", models.OrderStatusFilled)
	sell.Side = models.SideSell
	sell.FilledAmount = 1
	sell.AveragePrice = 200
	c.ApplyPosition(ctx, sell)

	buy := newOrder("o-2", models.OrderStatusFilled)
	buy.FilledAmount = 1.5
	buy.AveragePrice = 200
	c.ApplyPosition(ctx, buy)

	pos, ok := c.GetPosition(ctx, testSymbol)
	require.True(t, ok)
	assert.Equal(t, models.PositionSideLong, pos.Side)
	assert.InDelta(t, 0.5, pos.SignedAmount, 1e-9)
	assert.InDelta(t, 200.0, pos.EntryPrice, 1e-9)
}

func TestPositionSurvivesRestart(t *testing.T) {
	c, store := newTestCache(t)
	ctx := context.Background()

	o := newOrder("o-1", models.OrderStatusFilled)
	o.FilledAmount = 2
	o.AveragePrice = 100
	c.ApplyPosition(ctx, o)
	c.Sync(ctx)

	// свежий кеш над тем же store — как после рестарта процесса
	c2 := New(c.cfg, store)

	pos, ok := c2.GetPosition(ctx, testSymbol)
	require.True(t, ok)
	assert.InDelta(t, 2.0, pos.SignedAmount, 1e-9)
	assert.Equal(t, models.PositionSideLong, pos.Side)

	// дубль терминального пуша после рестарта: durable-маркер не даёт
	// применить объём второй раз
	c2.ApplyPosition(ctx, o)
	pos, ok = c2.GetPosition(ctx, testSymbol)
	require.True(t, ok)
	assert.InDelta(t, 2.0, pos.SignedAmount, 1e-9)
}

func TestRoundTripThroughStoreAfterEviction(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	o := newOrder("o-old", models.OrderStatusInitialized)
	require.NoError(t, c.OrderInitialized(o))
	filled := newOrder("o-old", models.OrderStatusFilled)
	filled.ExchangeID = "e-9"
	filled.FilledAmount = 2
	filled.AveragePrice = 101.5
	filled.Fee = 0.1
	filled.FeeCurrency = "USDT"
	filled.Cost = 203
	filled.Timestamp = time.Now().Add(-2 * time.Hour)
	require.NoError(t, c.OrderStatusUpdate(filled))

	c.Sync(ctx)
	c.evict(time.Now())

	// из памяти ушёл
	c.mu.Lock()
	_, inMem := c.orders["o-old"]
	c.mu.Unlock()
	require.False(t, inMem)

	// но читается из durable store с теми же полями
	got, ok := c.GetOrder(ctx, "o-old")
	require.True(t, ok)
	assert.Equal(t, models.OrderStatusFilled, got.Status)
	assert.Equal(t, "e-9", got.ExchangeID)
	assert.InDelta(t, 2.0, got.FilledAmount, 1e-9)
	assert.InDelta(t, 101.5, got.AveragePrice, 1e-9)
	assert.Equal(t, "USDT", got.FeeCurrency)
	assert.InDelta(t, 203.0, got.Cost, 1e-9)
}

func TestGetSymbolOrdersIncludesDurable(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	o := newOrder("o-1", models.OrderStatusInitialized)
	require.NoError(t, c.OrderInitialized(o))
	filled := newOrder("o-1", models.OrderStatusFilled)
	filled.FilledAmount = 2
	filled.Timestamp = time.Now().Add(-2 * time.Hour)
	require.NoError(t, c.OrderStatusUpdate(filled))

	c.Sync(ctx)
	c.evict(time.Now())

	assert.Empty(t, c.GetSymbolOrders(ctx, testSymbol, false))
	assert.Contains(t, c.GetSymbolOrders(ctx, testSymbol, true), "o-1")
}

func TestEvictionKeepsOpenOrders(t *testing.T) {
	c, _ := newTestCache(t)

	o := newOrder("o-open", models.OrderStatusInitialized)
	o.Timestamp = time.Now().Add(-3 * time.Hour)
	require.NoError(t, c.OrderInitialized(o))

	c.evict(time.Now())
	assert.Contains(t, c.GetOpenOrders("", ""), "o-open")
}

func TestBalances(t *testing.T) {
	c, _ := newTestCache(t)

	c.UpdateBalance("BINANCE", models.Balance{Asset: "USDT", Free: 100, Locked: 20, Borrowed: 5})
	ab, ok := c.GetBalance("BINANCE")
	require.True(t, ok)
	assert.InDelta(t, 125.0, ab.Balances["USDT"].Total(), 1e-9)

	_, ok = c.GetBalance("OKX")
	assert.False(t, ok)
}

func TestAlgoOrderTransitions(t *testing.T) {
	c, _ := newTestCache(t)

	a := &models.AlgoOrder{
		CorrelationID: "algo-1",
		Symbol:        testSymbol,
		Side:          models.SideBuy,
		TotalAmount:   10,
		Status:        models.AlgoStatusRunning,
		Timestamp:     time.Now(),
	}
	require.NoError(t, c.AlgoOrderInitialized(a))

	a.Status = models.AlgoStatusFinished
	require.NoError(t, c.AlgoOrderUpdate(a))

	// терминальный статус — дальше никаких переходов
	a.Status = models.AlgoStatusCanceled
	assert.ErrorIs(t, c.AlgoOrderUpdate(a), ErrInvalidTransition)

	got, ok := c.GetAlgoOrder(context.Background(), "algo-1")
	require.True(t, ok)
	assert.Equal(t, models.AlgoStatusFinished, got.Status)
}
