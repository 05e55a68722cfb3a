package feed

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"exec_engine/internal/models"
	"exec_engine/internal/modules/bus"
	"exec_engine/internal/modules/config"
	"exec_engine/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

// Client — стример верхнего уровня стакана. Один WebSocket на все
// инструменты из конфига; снепшоты уходят в шину как TopicBookL1,
// EMS и кеш читают их оттуда.
type Client struct {
	cfg *config.Config
	bus *bus.Bus

	wsDialer *websocket.Dialer

	// venue-символ -> наш канонический символ
	symbols map[string]string

	mu   sync.Mutex
	conn *websocket.Conn

	cancel context.CancelFunc
	done   chan struct{}
}

func NewClient(cfg *config.Config, b *bus.Bus) *Client {
	symbols := make(map[string]string, len(cfg.Instruments))
	for symbol, meta := range cfg.Instruments {
		venue := meta.VenueSymbol
		if venue == "" {
			venue = defaultVenueSymbol(symbol)
		}
		symbols[strings.ToUpper(venue)] = symbol
	}
	return &Client{
		cfg:      cfg,
		bus:      b,
		wsDialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		symbols:  symbols,
	}
}

// defaultVenueSymbol: "BINANCE.BTC/USDT.PERP" -> "BTCUSDT".
func defaultVenueSymbol(symbol string) string {
	inst, err := models.ParseInstrument(symbol)
	if err != nil {
		return symbol
	}
	return inst.Base + inst.Quote
}

func (c *Client) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx)
}

func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()
	if c.done != nil {
		<-c.done
	}
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	if len(c.symbols) == 0 {
		logger.Warn("feed: no instruments configured, streamer idle")
		return
	}

	wait := c.cfg.Feed.ReconnectWait
	if wait <= 0 {
		wait = time.Second
	}

	for {
		logger.Info("feed: connect %s, %d symbols", c.cfg.Feed.URL, len(c.symbols))
		conn, _, err := c.wsDialer.DialContext(ctx, c.cfg.Feed.URL, nil)
		if err != nil {
			logger.Error("feed: dial: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		if err := c.subscribe(conn); err != nil {
			logger.Error("feed: subscribe: %v", err)
			_ = conn.Close()
			continue
		}

		// keepalive каждые 20s — биржа рвёт молчаливое соединение
		stopPing := make(chan struct{})
		go func() {
			t := time.NewTicker(20 * time.Second)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-stopPing:
					return
				case <-t.C:
					_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				}
			}
		}()

		c.readLoop(ctx, conn)
		close(stopPing)

		select {
		case <-ctx.Done():
			return
		default:
			time.Sleep(wait)
		}
	}
}

func (c *Client) subscribe(conn *websocket.Conn) error {
	params := make([]string, 0, len(c.symbols))
	for venue := range c.symbols {
		params = append(params, strings.ToLower(venue)+"@bookTicker")
	}
	sub := map[string]any{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     1,
	}
	raw, err := sonic.Marshal(sub)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, raw)
}

// bookFrame — кадр bookTicker; котировки приходят строками.
type bookFrame struct {
	Symbol  string `json:"s"`
	BidPx   string `json:"b"`
	BidSz   string `json:"B"`
	AskPx   string `json:"a"`
	AskSz   string `json:"A"`
	EventTs int64  `json:"E"`
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("feed: read: %v", err)
			}
			_ = conn.Close()
			return
		}

		// комбинированный стрим заворачивает кадр в {"stream":..,"data":..}
		var wrapped struct {
			Data json.RawMessage `json:"data"`
		}
		payload := msg
		if err := sonic.Unmarshal(msg, &wrapped); err == nil && len(wrapped.Data) > 0 {
			payload = wrapped.Data
		}

		var frame bookFrame
		if err := sonic.Unmarshal(payload, &frame); err != nil || frame.Symbol == "" {
			continue // ack подписки и служебные кадры
		}

		symbol, ok := c.symbols[strings.ToUpper(frame.Symbol)]
		if !ok {
			continue
		}

		book, ok := parseBook(symbol, frame)
		if !ok {
			continue
		}
		c.bus.Publish(ctx, bus.TopicBookL1, book)
	}
}

func parseBook(symbol string, f bookFrame) (models.BookL1, bool) {
	bid, err1 := strconv.ParseFloat(f.BidPx, 64)
	ask, err2 := strconv.ParseFloat(f.AskPx, 64)
	if err1 != nil || err2 != nil {
		return models.BookL1{}, false
	}
	bidSz, _ := strconv.ParseFloat(f.BidSz, 64)
	askSz, _ := strconv.ParseFloat(f.AskSz, 64)

	ts := time.Now()
	if f.EventTs > 0 {
		ts = time.UnixMilli(f.EventTs)
	}

	b := models.BookL1{
		Symbol:    symbol,
		Bid:       bid,
		Ask:       ask,
		BidSize:   bidSz,
		AskSize:   askSz,
		Timestamp: ts,
	}
	return b, b.Valid()
}
