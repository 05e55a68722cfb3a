package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInstrument(t *testing.T) {
	id, err := ParseInstrument("BINANCE.BTC/USDT.PERP")
	require.NoError(t, err)
	assert.Equal(t, "BINANCE", id.Exchange)
	assert.Equal(t, "BTC", id.Base)
	assert.Equal(t, "USDT", id.Quote)
	assert.Equal(t, KindLinear, id.Kind)
	assert.Equal(t, "BINANCE", id.Account())

	id, err = ParseInstrument("okx.eth/usdt")
	require.NoError(t, err)
	assert.Equal(t, "OKX", id.Exchange)
	assert.Equal(t, KindSpot, id.Kind)
	assert.Equal(t, "OKX.ETH/USDT", id.String())

	id, err = ParseInstrument("BYBIT.BTC/USD.INVERSE")
	require.NoError(t, err)
	assert.Equal(t, KindInverse, id.Kind)
}

func TestParseInstrumentRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "BTCUSDT", "BINANCE.", "BINANCE.BTC", "BINANCE.BTC/", "BINANCE.BTC/USDT.WAT", "A.B/C.PERP.X"} {
		_, err := ParseInstrument(s)
		assert.Errorf(t, err, "symbol %q", s)
	}
}
