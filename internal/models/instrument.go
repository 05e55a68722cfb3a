package models

import (
	"fmt"
	"strings"
)

type InstrumentKind string

const (
	KindSpot    InstrumentKind = "SPOT"
	KindLinear  InstrumentKind = "LINEAR"
	KindInverse InstrumentKind = "INVERSE"
)

// InstrumentID — разобранный символ вида "BINANCE.BTC/USDT.PERP".
// Чистое значение, нужно только для маршрутизации в очередь нужного
// venue-аккаунта.
type InstrumentID struct {
	Exchange string
	Base     string
	Quote    string
	Kind     InstrumentKind
}

// Account — ключ очереди EMS: один воркер на биржевой аккаунт.
func (i InstrumentID) Account() string { return i.Exchange }

func (i InstrumentID) String() string {
	s := fmt.Sprintf("%s.%s/%s", i.Exchange, i.Base, i.Quote)
	switch i.Kind {
	case KindLinear:
		s += ".PERP"
	case KindInverse:
		s += ".INVERSE"
	}
	return s
}

// ParseInstrument разбирает "EXCHANGE.BASE/QUOTE[.PERP|.INVERSE]".
func ParseInstrument(symbol string) (InstrumentID, error) {
	parts := strings.Split(strings.TrimSpace(symbol), ".")
	if len(parts) < 2 || len(parts) > 3 {
		return InstrumentID{}, fmt.Errorf("bad symbol %q", symbol)
	}

	pair := strings.Split(parts[1], "/")
	if len(pair) != 2 || pair[0] == "" || pair[1] == "" {
		return InstrumentID{}, fmt.Errorf("bad pair in symbol %q", symbol)
	}

	id := InstrumentID{
		Exchange: strings.ToUpper(parts[0]),
		Base:     strings.ToUpper(pair[0]),
		Quote:    strings.ToUpper(pair[1]),
		Kind:     KindSpot,
	}
	if id.Exchange == "" {
		return InstrumentID{}, fmt.Errorf("empty exchange in symbol %q", symbol)
	}

	if len(parts) == 3 {
		switch strings.ToUpper(parts[2]) {
		case "PERP", "SWAP", "LINEAR":
			id.Kind = KindLinear
		case "INVERSE":
			id.Kind = KindInverse
		default:
			return InstrumentID{}, fmt.Errorf("unknown instrument kind %q in %q", parts[2], symbol)
		}
	}

	return id, nil
}
