package connector

import (
	"context"
	"testing"
	"time"

	"exec_engine/internal/models"
	"exec_engine/internal/modules/bus"
	"exec_engine/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const paperSymbol = "BINANCE.BTC/USDT.PERP"

func newPaperRig() (*Paper, *bus.Bus, chan *models.Order) {
	logger.InitNop()
	b := bus.New()
	p := NewPaper(b)

	events := make(chan *models.Order, 16)
	b.Subscribe(bus.TopicConnectorOrder, func(_ context.Context, payload any) {
		if o, ok := payload.(*models.Order); ok {
			events <- o
		}
	})
	return p, b, events
}

func nextEvent(t *testing.T, events chan *models.Order) *models.Order {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no connector event")
		return nil
	}
}

func TestPaperLimitRestsThenFillsOnCross(t *testing.T) {
	p, b, events := newPaperRig()
	ctx := context.Background()

	b.Publish(ctx, bus.TopicBookL1, models.BookL1{Symbol: paperSymbol, Bid: 100.0, Ask: 100.5})

	o, err := p.CreateOrder(ctx, CreateRequest{
		Symbol: paperSymbol, ClientOrderID: "c1",
		Side: models.SideBuy, Type: models.OrderTypeLimit, Amount: 2, Price: 100.2,
	})
	require.NoError(t, err)
	require.True(t, o.Success)
	assert.Equal(t, models.OrderStatusInitialized, o.Status)

	ev := nextEvent(t, events)
	assert.Equal(t, models.OrderStatusAccepted, ev.Status)
	assert.Equal(t, o.ExchangeID, ev.ExchangeID)

	// книга опустилась до лимитки
	b.Publish(ctx, bus.TopicBookL1, models.BookL1{Symbol: paperSymbol, Bid: 100.0, Ask: 100.2})

	ev = nextEvent(t, events)
	assert.Equal(t, models.OrderStatusFilled, ev.Status)
	assert.Equal(t, 2.0, ev.FilledAmount)
	assert.Equal(t, 100.2, ev.AveragePrice)
}

func TestPaperMarketFillsAtTouch(t *testing.T) {
	p, b, events := newPaperRig()
	ctx := context.Background()

	b.Publish(ctx, bus.TopicBookL1, models.BookL1{Symbol: paperSymbol, Bid: 100.0, Ask: 100.5})

	o, err := p.CreateOrder(ctx, CreateRequest{
		Symbol: paperSymbol, ClientOrderID: "c2",
		Side: models.SideSell, Type: models.OrderTypeMarket, Amount: 1,
	})
	require.NoError(t, err)
	require.True(t, o.Success)

	ev := nextEvent(t, events)
	assert.Equal(t, models.OrderStatusFilled, ev.Status)
	assert.Equal(t, 100.0, ev.AveragePrice) // sell по биду
}

func TestPaperMarketWithoutBookRejected(t *testing.T) {
	p, _, _ := newPaperRig()

	o, err := p.CreateOrder(context.Background(), CreateRequest{
		Symbol: "BINANCE.XRP/USDT", ClientOrderID: "c3",
		Side: models.SideBuy, Type: models.OrderTypeMarket, Amount: 1,
	})
	require.NoError(t, err)
	assert.False(t, o.Success)
	assert.Equal(t, models.OrderStatusFailed, o.Status)
}

func TestPaperCancelRestingAndUnknown(t *testing.T) {
	p, b, events := newPaperRig()
	ctx := context.Background()

	b.Publish(ctx, bus.TopicBookL1, models.BookL1{Symbol: paperSymbol, Bid: 100.0, Ask: 100.5})
	o, err := p.CreateOrder(ctx, CreateRequest{
		Symbol: paperSymbol, ClientOrderID: "c4",
		Side: models.SideSell, Type: models.OrderTypeLimit, Amount: 1, Price: 101,
	})
	require.NoError(t, err)
	nextEvent(t, events) // ACCEPTED

	res, err := p.CancelOrder(ctx, paperSymbol, o.ExchangeID, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	ev := nextEvent(t, events)
	assert.Equal(t, models.OrderStatusCanceled, ev.Status)

	// повторное снятие — ордера в книге уже нет
	res, err = p.CancelOrder(ctx, paperSymbol, o.ExchangeID, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestPaperRecentOrdersFilteredBySymbol(t *testing.T) {
	p, b, _ := newPaperRig()
	ctx := context.Background()

	b.Publish(ctx, bus.TopicBookL1, models.BookL1{Symbol: paperSymbol, Bid: 100.0, Ask: 100.5})
	_, err := p.CreateOrder(ctx, CreateRequest{
		Symbol: paperSymbol, ClientOrderID: "c5",
		Side: models.SideBuy, Type: models.OrderTypeLimit, Amount: 1, Price: 99,
	})
	require.NoError(t, err)

	recent, err := p.QueryRecentOrders(ctx, paperSymbol)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "c5", recent[0].ClientOrderID)

	other, err := p.QueryRecentOrders(ctx, "BINANCE.ETH/USDT")
	require.NoError(t, err)
	assert.Empty(t, other)
}
