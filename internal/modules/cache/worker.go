package cache

import (
	"context"
	"time"

	"exec_engine/internal/models"
	"exec_engine/pkg/logger"

	"github.com/bytedance/sonic"
)

// Start запускает фоновый воркер: периодический снепшот в durable store и
// вытеснение старых записей из памяти. Последний снепшот остаётся
// авторитетным для холодных чтений.
func (c *Cache) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.worker(ctx)
}

func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.done) })
	c.wg.Wait()

	// прощальный снепшот, чтобы не потерять хвост
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.Sync(ctx)
}

func (c *Cache) worker(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.Cache.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.Sync(ctx)
			c.evict(time.Now())
		}
	}
}

// Sync пишет полный снепшот состояния. Set-ключи сначала удаляются и
// пишутся заново — иначе в них копятся члены, которых в памяти давно нет.
func (c *Cache) Sync(ctx context.Context) {
	c.mu.Lock()
	orders := make(map[string]models.Order, len(c.orders))
	for id, o := range c.orders {
		orders[id] = *o
	}
	algos := make(map[string]models.AlgoOrder, len(c.algos))
	for id, a := range c.algos {
		algos[id] = *a
	}
	open := make([]string, 0, len(c.open))
	for id := range c.open {
		open = append(open, id)
	}
	bySymbol := make(map[string][]string, len(c.bySymbol))
	for sym, set := range c.bySymbol {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		bySymbol[sym] = ids
	}
	positions := make(map[string]models.Position, len(c.positions))
	for sym, p := range c.positions {
		positions[sym] = *p
	}
	balances := make(map[string]models.AccountBalance, len(c.balances))
	for acc, b := range c.balances {
		balances[acc] = *b
	}
	applied := make([]string, 0, len(c.applied))
	for id := range c.applied {
		applied = append(applied, id)
	}
	c.mu.Unlock()

	for id, o := range orders {
		data, err := sonic.Marshal(o)
		if err != nil {
			logger.Error("cache: marshal order %s: %v", id, err)
			continue
		}
		if err := c.store.HSet(ctx, c.keys.Orders(), id, data); err != nil {
			logger.Error("cache: sync order %s: %v", id, err)
		}
	}
	for id, a := range algos {
		data, err := sonic.Marshal(a)
		if err != nil {
			logger.Error("cache: marshal algo %s: %v", id, err)
			continue
		}
		if err := c.store.HSet(ctx, c.keys.AlgoOrders(), id, data); err != nil {
			logger.Error("cache: sync algo %s: %v", id, err)
		}
	}

	if err := c.store.Del(ctx, c.keys.OpenOrders()); err != nil {
		logger.Error("cache: del open_orders: %v", err)
	}
	if err := c.store.SAdd(ctx, c.keys.OpenOrders(), open...); err != nil {
		logger.Error("cache: sync open_orders: %v", err)
	}

	for sym, ids := range bySymbol {
		key := c.keys.SymbolOrders(sym)
		if err := c.store.Del(ctx, key); err != nil {
			logger.Error("cache: del %s: %v", key, err)
		}
		if err := c.store.SAdd(ctx, key, ids...); err != nil {
			logger.Error("cache: sync %s: %v", key, err)
		}
	}

	for sym, p := range positions {
		data, err := sonic.Marshal(p)
		if err != nil {
			logger.Error("cache: marshal position %s: %v", sym, err)
			continue
		}
		if err := c.store.Set(ctx, c.keys.SymbolPosition(sym), data); err != nil {
			logger.Error("cache: sync position %s: %v", sym, err)
		}
	}

	for acc, b := range balances {
		data, err := sonic.Marshal(b)
		if err != nil {
			logger.Error("cache: marshal balance %s: %v", acc, err)
			continue
		}
		if err := c.store.HSet(ctx, c.keys.Balances(), acc, data); err != nil {
			logger.Error("cache: sync balance %s: %v", acc, err)
		}
	}

	if err := c.store.SAdd(ctx, c.keys.AppliedFills(), applied...); err != nil {
		logger.Error("cache: sync applied fills: %v", err)
	}
}

// evict выкидывает из памяти закрытые ордера и терминальные algo-ордера
// старше expire_time, вместе со всеми индексами. Открытые не трогаем:
// open-индекс обязан оставаться полным.
func (c *Cache) evict(now time.Time) {
	cutoff := now.Add(-c.cfg.Cache.ExpireTime)

	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for id, o := range c.orders {
		if !o.Status.IsTerminal() || o.Timestamp.After(cutoff) {
			continue
		}
		delete(c.orders, id)
		delete(c.open, id)
		// applied-маркеры не вытесняем: дубль терминального пуша может
		// прийти и после ухода ордера из памяти
		if set, ok := c.bySymbol[o.Symbol]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(c.bySymbol, o.Symbol)
			}
		}
		evicted++
	}

	for id, a := range c.algos {
		if !a.Status.IsTerminal() || a.Timestamp.After(cutoff) {
			continue
		}
		delete(c.algos, id)
		evicted++
	}

	if evicted > 0 {
		logger.Info("cache: evicted %d stale records", evicted)
	}
}
