package ems

import (
	"context"
	"time"

	"exec_engine/internal/connector"
	"exec_engine/internal/models"
	"exec_engine/internal/modules/bus"
	"exec_engine/pkg/logger"

	"github.com/google/uuid"
)

func (s *Service) handleCreate(ctx context.Context, sub models.OrderSubmit) error {
	_, err := s.createOrder(ctx, sub)
	return err
}

// handleStopLoss / handleTakeProfit — reduce-only триггерные ордера; сама
// команда уходит коннектору, сторожит триггер биржа.
func (s *Service) handleStopLoss(ctx context.Context, sub models.OrderSubmit) error {
	sub.ReduceOnly = true
	if sub.TriggerType == "" {
		sub.TriggerType = models.TriggerLast
	}
	_, err := s.createOrder(ctx, sub)
	return err
}

func (s *Service) handleTakeProfit(ctx context.Context, sub models.OrderSubmit) error {
	sub.ReduceOnly = true
	if sub.TriggerType == "" {
		sub.TriggerType = models.TriggerLast
	}
	_, err := s.createOrder(ctx, sub)
	return err
}

// createOrder — примитив выставления. Транспортную ошибку ретраим с
// ограничением, но сначала перепроверяем через недавние ордера, не прошёл
// ли запрос на стороне биржи — иначе можно задвоить ордер. Отказ биржи
// не ретраим вовсе: это терминальный FAILED.
func (s *Service) createOrder(ctx context.Context, sub models.OrderSubmit) (*models.Order, error) {
	corr := sub.CorrelationID
	if corr == "" {
		corr = uuid.NewString()
	}

	req := connector.CreateRequest{
		Symbol:        sub.Symbol,
		ClientOrderID: corr,
		Side:          sub.Side,
		Type:          sub.Type,
		Amount:        sub.Amount,
		Price:         sub.Price,
		TimeInForce:   sub.TimeInForce,
		ReduceOnly:    sub.ReduceOnly,
		PositionSide:  sub.PositionSide,
		TriggerPrice:  sub.TriggerPrice,
		TriggerType:   sub.TriggerType,
		Params:        sub.ExtraParams,
	}

	mu := s.accountLock(sub.Symbol)
	mu.Lock()
	o, err := s.conn.CreateOrder(ctx, req)
	for attempt := 1; err != nil && attempt < s.maxRetries(); attempt++ {
		logger.Warn("ems: create %s transport error (attempt %d): %v", sub.Symbol, attempt, err)
		if found := s.findRecent(ctx, sub.Symbol, corr); found != nil {
			o, err = found, nil
			break
		}
		o, err = s.conn.CreateOrder(ctx, req)
	}
	mu.Unlock()

	if err != nil {
		// транспорт так и не ожил — фиксируем отказ без venue id
		o = connector.Failed(req, corr)
	}
	o.CorrelationID = corr
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now()
	}

	if !o.Success {
		o.Status = models.OrderStatusFailed
		if cerr := s.cache.OrderInitialized(o); cerr != nil {
			logger.Warn("ems: %v", cerr)
		}
		s.bus.Publish(ctx, bus.TopicOrderFailed, o)
		return o, nil
	}

	// сначала кеш, потом реестр: вейтер OMS просыпается внутри Register
	// и сразу зовёт OrderStatusUpdate — запись уже должна лежать в кеше
	if cerr := s.cache.OrderInitialized(o); cerr != nil {
		logger.Warn("ems: %v", cerr)
	}
	s.reg.Register(o)
	s.bus.Publish(ctx, bus.TopicOrderPending, o)
	return o, nil
}

// findRecent ищет наш client order id среди недавних ордеров биржи.
func (s *Service) findRecent(ctx context.Context, symbol, clientOrderID string) *models.Order {
	recent, err := s.conn.QueryRecentOrders(ctx, symbol)
	if err != nil {
		return nil
	}
	for i := range recent {
		if recent[i].ClientOrderID == clientOrderID {
			o := recent[i]
			o.Success = true
			return &o
		}
	}
	return nil
}

func (s *Service) handleCancel(ctx context.Context, sub models.OrderSubmit) error {
	return s.cancelOrder(ctx, sub.Symbol, sub.CorrelationID, sub.ExtraParams)
}

// cancelOrder — примитив снятия. Без записи в реестре на биржу не ходим:
// ордер скорее всего уже закрыт.
func (s *Service) cancelOrder(ctx context.Context, symbol, correlationID string, params map[string]string) error {
	exchangeID, ok := s.reg.ResolveID(correlationID)
	if !ok {
		logger.Info("ems: cancel %s: %v", correlationID, ErrMayBeClosed)
		return ErrMayBeClosed
	}

	mu := s.accountLock(symbol)
	mu.Lock()
	res, err := s.conn.CancelOrder(ctx, symbol, exchangeID, params)
	for attempt := 1; err != nil && attempt < s.maxRetries(); attempt++ {
		logger.Warn("ems: cancel %s transport error (attempt %d): %v", correlationID, attempt, err)
		res, err = s.conn.CancelOrder(ctx, symbol, exchangeID, params)
	}
	mu.Unlock()

	if err != nil || !res.Success {
		// ордер остаётся как есть; снятие можно повторить позже
		s.bus.Publish(ctx, bus.TopicOrderFailed, &models.Order{
			CorrelationID: correlationID,
			ExchangeID:    exchangeID,
			Symbol:        symbol,
			Status:        models.OrderStatusFailed,
			Timestamp:     time.Now(),
		})
		if err != nil {
			return err
		}
		return nil
	}

	up := &models.Order{
		CorrelationID: correlationID,
		ExchangeID:    exchangeID,
		Symbol:        symbol,
		Status:        models.OrderStatusCanceling,
		Timestamp:     time.Now(),
	}
	if cerr := s.cache.OrderStatusUpdate(up); cerr != nil {
		logger.Warn("ems: %v", cerr)
	} else {
		s.bus.Publish(ctx, bus.TopicOrderCanceling, up)
	}
	return nil
}

func (s *Service) maxRetries() int {
	if s.cfg.EMS.MaxRetries > 0 {
		return s.cfg.EMS.MaxRetries
	}
	return 3
}

func (s *Service) checkInterval(sub models.OrderSubmit) time.Duration {
	if sub.CheckInterval > 0 {
		return sub.CheckInterval
	}
	if s.cfg.EMS.CheckInterval > 0 {
		return s.cfg.EMS.CheckInterval
	}
	return time.Second
}

// waitTerminal поллит кеш до терминального статуса ордера либо до дедлайна.
func (s *Service) waitTerminal(ctx context.Context, correlationID string, timeout, interval time.Duration) (models.Order, bool) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if o, ok := s.cache.GetOrder(ctx, correlationID); ok && o.Status.IsTerminal() {
			return o, true
		}
		if time.Now().After(deadline) {
			o, ok := s.cache.GetOrder(ctx, correlationID)
			return o, ok && o.Status.IsTerminal()
		}
		select {
		case <-ctx.Done():
			o, ok := s.cache.GetOrder(ctx, correlationID)
			return o, ok && o.Status.IsTerminal()
		case <-ticker.C:
		}
	}
}
