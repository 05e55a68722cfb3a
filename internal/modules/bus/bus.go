package bus

import (
	"context"
	"sync"

	"exec_engine/pkg/logger"
)

// Топики шины. Сырые события коннекторов заходят в connector.*, OMS
// раскладывает их по order.* после валидации перехода.
const (
	TopicBookL1 = "bookl1"
	TopicTrade  = "trade"
	TopicKline  = "kline"

	TopicConnectorOrder   = "connector.order"
	TopicConnectorFill    = "connector.fill"
	TopicConnectorBalance = "connector.balance"

	TopicOrderPending         = "order.pending"
	TopicOrderAccepted        = "order.accepted"
	TopicOrderPartiallyFilled = "order.partially_filled"
	TopicOrderFilled          = "order.filled"
	TopicOrderCanceling       = "order.canceling"
	TopicOrderCanceled        = "order.canceled"
	TopicOrderExpired         = "order.expired"
	TopicOrderFailed          = "order.failed"

	TopicAlgoFinished = "algo.finished"
	TopicAlgoCanceled = "algo.canceled"
	TopicAlgoFailed   = "algo.failed"
)

type Handler func(ctx context.Context, payload any)

// Bus — внутрипроцессный pub/sub с синхронными колбеками, at-least-once.
// Создаётся один раз в композиционном корне и передаётся по ссылке,
// никаких глобальных синглтонов.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]Handler
}

func New() *Bus {
	return &Bus{subs: make(map[string][]Handler)}
}

func (b *Bus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], h)
}

// Publish зовёт подписчиков синхронно, в порядке подписки. Паника в
// подписчике гасится — шина не имеет права ронять процесс.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) {
	b.mu.RLock()
	handlers := b.subs[topic]
	b.mu.RUnlock()

	for _, h := range handlers {
		b.call(ctx, topic, h, payload)
	}
}

func (b *Bus) call(ctx context.Context, topic string, h Handler, payload any) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("bus: panic in subscriber of %s: %v", topic, p)
		}
	}()
	h(ctx, payload)
}
