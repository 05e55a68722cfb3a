package registry

import (
	"context"
	"sync"
	"time"

	"exec_engine/internal/models"
)

// Registry держит двустороннюю связку correlation id <-> биржевой order id.
// Пуш о только что выставленном ордере может прилететь по websocket раньше,
// чем завершится HTTP-ack создания — поэтому есть AwaitCorrelation, а не
// дроп таких событий.
// removedRetention — сколько помним exchange id терминальных ордеров.
// Дубли пушей приходят в пределах секунд, минут хватает с запасом.
const removedRetention = 5 * time.Minute

type Registry struct {
	mu      sync.Mutex
	byCorr  map[string]string // correlation id -> exchange id
	byExch  map[string]string // exchange id -> correlation id
	waiters map[string][]chan string
	removed map[string]time.Time // exchange id -> когда ордер закрылся
}

func New() *Registry {
	return &Registry{
		byCorr:  make(map[string]string),
		byExch:  make(map[string]string),
		waiters: make(map[string][]chan string),
		removed: make(map[string]time.Time),
	}
}

// Register фиксирует связку после ack-а биржи и будит ожидающих.
func (r *Registry) Register(o *models.Order) {
	if o.CorrelationID == "" || o.ExchangeID == "" {
		return
	}

	r.mu.Lock()
	r.byCorr[o.CorrelationID] = o.ExchangeID
	r.byExch[o.ExchangeID] = o.CorrelationID

	waiters := r.waiters[o.ExchangeID]
	delete(r.waiters, o.ExchangeID)
	r.mu.Unlock()

	for _, ch := range waiters {
		ch <- o.CorrelationID
	}
}

func (r *Registry) ResolveID(correlationID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byCorr[correlationID]
	return id, ok
}

func (r *Registry) ResolveCorrelation(exchangeID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byExch[exchangeID]
	return id, ok
}

// AwaitCorrelation блокирует вызывающего до регистрации exchangeID либо до
// таймаута/отмены контекста. По таймауту — ("", false).
func (r *Registry) AwaitCorrelation(ctx context.Context, exchangeID string, timeout time.Duration) (string, bool) {
	r.mu.Lock()
	if id, ok := r.byExch[exchangeID]; ok {
		r.mu.Unlock()
		return id, true
	}
	ch := make(chan string, 1)
	r.waiters[exchangeID] = append(r.waiters[exchangeID], ch)
	r.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case id := <-ch:
		return id, true
	case <-timer.C:
	case <-ctx.Done():
	}

	// убираем своего вейтера, чтобы Register не писал в брошенный канал
	r.mu.Lock()
	ws := r.waiters[exchangeID]
	for i, w := range ws {
		if w == ch {
			r.waiters[exchangeID] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	if len(r.waiters[exchangeID]) == 0 {
		delete(r.waiters, exchangeID)
	}
	r.mu.Unlock()

	// гонка: регистрация могла успеть между таймером и локом
	select {
	case id := <-ch:
		return id, true
	default:
	}

	return "", false
}

// Remove выкидывает связку терминального ордера и оставляет по ней
// короткоживущую отметку для RemovedRecently.
func (r *Registry) Remove(o *models.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if exch, ok := r.byCorr[o.CorrelationID]; ok {
		delete(r.byExch, exch)
		r.removed[exch] = now
	}
	if o.ExchangeID != "" {
		delete(r.byExch, o.ExchangeID)
		r.removed[o.ExchangeID] = now
	}
	delete(r.byCorr, o.CorrelationID)

	for id, ts := range r.removed {
		if now.Sub(ts) > removedRetention {
			delete(r.removed, id)
		}
	}
}

// RemovedRecently — по этому exchange id недавно закрылся ордер; поздний
// дубль пуша можно дропать сразу, не ожидая регистрации.
func (r *Registry) RemovedRecently(exchangeID string) bool {
	if exchangeID == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.removed[exchangeID]
	return ok
}
