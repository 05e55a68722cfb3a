package feed

import (
	"testing"

	"exec_engine/internal/modules/bus"
	"exec_engine/internal/modules/config"
	"exec_engine/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolMapping(t *testing.T) {
	logger.InitNop()
	cfg := &config.Config{Instruments: map[string]config.Instrument{
		"BINANCE.BTC/USDT.PERP": {VenueSymbol: "btcusdt"},
		"BINANCE.ETH/USDT":      {}, // venue-символ выводится из канонического
	}}
	c := NewClient(cfg, bus.New())

	assert.Equal(t, "BINANCE.BTC/USDT.PERP", c.symbols["BTCUSDT"])
	assert.Equal(t, "BINANCE.ETH/USDT", c.symbols["ETHUSDT"])
}

func TestParseBookFrame(t *testing.T) {
	raw := []byte(`{"s":"BTCUSDT","b":"100.0","B":"3.5","a":"100.5","A":"1.2","E":1700000000000}`)

	var f bookFrame
	require.NoError(t, sonic.Unmarshal(raw, &f))

	book, ok := parseBook("BINANCE.BTC/USDT.PERP", f)
	require.True(t, ok)
	assert.Equal(t, "BINANCE.BTC/USDT.PERP", book.Symbol)
	assert.Equal(t, 100.0, book.Bid)
	assert.Equal(t, 100.5, book.Ask)
	assert.Equal(t, 3.5, book.BidSize)
	assert.Equal(t, int64(1700000000000), book.Timestamp.UnixMilli())
}

func TestParseBookRejectsGarbage(t *testing.T) {
	_, ok := parseBook("X", bookFrame{BidPx: "abc", AskPx: "1"})
	assert.False(t, ok)

	// перевёрнутая книга не проходит
	_, ok = parseBook("X", bookFrame{BidPx: "101", AskPx: "100", Symbol: "Y"})
	assert.False(t, ok)
}
