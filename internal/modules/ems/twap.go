package ems

import (
	"context"
	"math"
	"time"

	"exec_engine/internal/helper"
	"exec_engine/internal/models"
	"exec_engine/internal/modules/bus"
	"exec_engine/pkg/logger"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// twapSlices режет total_amount на примерно равные временные слайсы.
// Сумма слайсов всегда равна total; хвост меньше минимума вливается в
// последний слайс, иначе становится дополнительным, а интервал пересчитан
// так, чтобы сохранить общую длительность.
func twapSlices(total, minAmount, step float64, duration, wait time.Duration, reduceOnly bool) ([]float64, time.Duration, error) {
	if total <= 0 || duration <= 0 || wait <= 0 || wait > duration {
		return nil, 0, errors.Wrapf(ErrBadAlgoParams, "total=%v duration=%v wait=%v", total, duration, wait)
	}

	if total < minAmount {
		if reduceOnly {
			// добиваем остаток позиции одним куском, без ожидания
			return []float64{total}, 0, nil
		}
		return nil, 0, nil
	}

	n := int(duration / wait)
	if n < 1 {
		n = 1
	}
	base := helper.RoundAmount(total/float64(n), step)
	if base < minAmount {
		base = minAmount
	}

	count := int(math.Floor(total/base + 1e-9))
	remainder := total - float64(count)*base

	amounts := make([]float64, count)
	for i := range amounts {
		amounts[i] = base
	}
	if remainder > 0 && !helper.EqZero(remainder) {
		if remainder < minAmount {
			amounts[len(amounts)-1] += remainder
		} else {
			amounts = append(amounts, remainder)
		}
	}

	interval := duration / time.Duration(len(amounts))
	return amounts, interval, nil
}

func (s *Service) handleTwap(ctx context.Context, sub models.OrderSubmit) error {
	if sub.CorrelationID == "" {
		sub.CorrelationID = uuid.NewString()
	}
	meta := s.cfg.InstrumentMeta(sub.Symbol)

	amounts, interval, err := twapSlices(
		sub.Amount, meta.MinOrderAmount, meta.AmountStep,
		sub.Duration, sub.Wait, sub.ReduceOnly,
	)
	if err != nil {
		return err
	}
	if len(amounts) == 0 {
		logger.Info("twap %s: %v", sub.Symbol, ErrNothingToExecute)
		return nil
	}

	algo := &models.AlgoOrder{
		CorrelationID: sub.CorrelationID,
		Symbol:        sub.Symbol,
		Side:          sub.Side,
		TotalAmount:   sub.Amount,
		Duration:      sub.Duration.Seconds(),
		Wait:          sub.Wait.Seconds(),
		Status:        models.AlgoStatusRunning,
		PositionSide:  sub.PositionSide,
		Timestamp:     time.Now(),
	}
	if err := s.cache.AlgoOrderInitialized(algo); err != nil {
		return err
	}

	taskCtx, finish := s.tasks.add(s.baseCtx(), algo.CorrelationID)
	go func() {
		defer finish()
		s.runTwap(taskCtx, algo, sub, amounts, interval)
	}()
	return nil
}

// runTwap — долгоживущая задача одного TWAP-ордера. Единственный владелец
// своего AlgoOrder.
func (s *Service) runTwap(ctx context.Context, algo *models.AlgoOrder, sub models.OrderSubmit, amounts []float64, interval time.Duration) {
	meta := s.cfg.InstrumentMeta(sub.Symbol)
	poll := s.checkInterval(sub)

	carry := 0.0
	for i, amt := range amounts {
		if ctx.Err() != nil {
			s.windDownAlgo(algo)
			return
		}

		amount := amt + carry
		carry = 0
		sliceDeadline := time.Now().Add(interval)

		book, ok := s.awaitBook(ctx, sub.Symbol, poll, sliceDeadline)
		if !ok {
			logger.Error("twap %s: %v", sub.Symbol, ErrNoBook)
			s.failAlgo(algo)
			return
		}

		child, _ := s.createOrder(ctx, models.OrderSubmit{
			Symbol:       sub.Symbol,
			Side:         sub.Side,
			Type:         models.OrderTypeLimit,
			Amount:       amount,
			Price:        makerPrice(book, sub.Side, meta.TickSize),
			TimeInForce:  models.TifGTC,
			ReduceOnly:   sub.ReduceOnly,
			PositionSide: sub.PositionSide,
		})
		if !child.Success {
			s.failAlgo(algo)
			return
		}
		s.attachChild(algo, child.CorrelationID)

		// спим остаток слайса, поглядывая на исполнение
		closed := s.pollUntil(ctx, child.CorrelationID, poll, sliceDeadline, nil)
		if !closed {
			_ = s.cancelOrder(ctx, sub.Symbol, child.CorrelationID, nil)
			_, _ = s.waitTerminal(ctx, child.CorrelationID, s.cfg.EMS.AckTimeout, poll)
		}
		if ctx.Err() != nil {
			s.windDownAlgo(algo)
			return
		}

		final, _ := s.cache.GetOrder(ctx, child.CorrelationID)
		leftover := amount - final.FilledAmount

		switch {
		case leftover >= meta.MinOrderAmount || (sub.ReduceOnly && leftover > 0 && !helper.EqZero(leftover)):
			mkt, _ := s.createOrder(ctx, models.OrderSubmit{
				Symbol:       sub.Symbol,
				Side:         sub.Side,
				Type:         models.OrderTypeMarket,
				Amount:       leftover,
				ReduceOnly:   sub.ReduceOnly,
				PositionSide: sub.PositionSide,
			})
			if mkt.Success {
				s.attachChild(algo, mkt.CorrelationID)
				_, _ = s.waitTerminal(ctx, mkt.CorrelationID, s.cfg.EMS.AckTimeout, poll)
			}
		case leftover > 0 && !helper.EqZero(leftover) && i < len(amounts)-1:
			carry = leftover
		}

		s.refreshAlgo(ctx, algo)
	}

	if ctx.Err() != nil {
		s.windDownAlgo(algo)
		return
	}

	s.refreshAlgo(ctx, algo)
	algo.Status = models.AlgoStatusFinished
	if err := s.cache.AlgoOrderUpdate(algo); err != nil {
		logger.Warn("twap %s: %v", algo.CorrelationID, err)
	}
	s.bus.Publish(context.Background(), bus.TopicAlgoFinished, algo)
	if s.journal != nil {
		s.journal.RecordAlgo(context.Background(), algo)
	}
	logger.Info("twap %s done: filled %.8f of %.8f, avg %.8f",
		algo.CorrelationID, algo.FilledAmount, algo.TotalAmount, algo.AveragePrice)
}

// pollUntil поллит ордер до закрытия; дополнительный предикат stop может
// оборвать ожидание раньше (нужен adaptive-алгоритму). true — ордер закрыт.
func (s *Service) pollUntil(ctx context.Context, correlationID string, interval time.Duration, deadline time.Time, stop func() bool) bool {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if o, ok := s.cache.GetOrder(ctx, correlationID); ok && o.Status.IsTerminal() {
			return true
		}
		if stop != nil && stop() {
			return false
		}
		if !time.Now().Before(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func (s *Service) awaitBook(ctx context.Context, symbol string, interval time.Duration, deadline time.Time) (models.BookL1, bool) {
	for {
		if book, ok := s.cache.GetBook(symbol); ok && book.Valid() {
			return book, true
		}
		if ctx.Err() != nil || !time.Now().Before(deadline) {
			return models.BookL1{}, false
		}
		select {
		case <-ctx.Done():
			return models.BookL1{}, false
		case <-time.After(interval):
		}
	}
}

func (s *Service) attachChild(algo *models.AlgoOrder, correlationID string) {
	algo.ChildOrderIDs = append(algo.ChildOrderIDs, correlationID)
	if err := s.cache.AlgoOrderUpdate(algo); err != nil {
		logger.Warn("ems: %v", err)
	}
}

// refreshAlgo пересчитывает агрегаты по дочерним ордерам.
func (s *Service) refreshAlgo(ctx context.Context, algo *models.AlgoOrder) {
	children := make([]models.Order, 0, len(algo.ChildOrderIDs))
	for _, id := range algo.ChildOrderIDs {
		if o, ok := s.cache.GetOrder(ctx, id); ok {
			children = append(children, o)
		}
	}
	algo.Aggregate(children)
	if err := s.cache.AlgoOrderUpdate(algo); err != nil {
		logger.Warn("ems: %v", err)
	}
}

func (s *Service) failAlgo(algo *models.AlgoOrder) {
	algo.Status = models.AlgoStatusFailed
	if err := s.cache.AlgoOrderUpdate(algo); err != nil {
		logger.Warn("ems: %v", err)
	}
	s.bus.Publish(context.Background(), bus.TopicAlgoFailed, algo)
	if s.journal != nil {
		s.journal.RecordAlgo(context.Background(), algo)
	}
}

// windDownAlgo — детерминированная уборка по отмене: снять всех открытых
// детей, пересчитать агрегаты, зафиксировать CANCELED. Никаких сирот на
// бирже после отмены.
func (s *Service) windDownAlgo(algo *models.AlgoOrder) {
	// контекст задачи уже отменён — работаем на свежем
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if algo.Status == models.AlgoStatusRunning {
		algo.Status = models.AlgoStatusCanceling
		if err := s.cache.AlgoOrderUpdate(algo); err != nil {
			logger.Warn("ems: %v", err)
		}
	}

	for _, id := range algo.ChildOrderIDs {
		o, ok := s.cache.GetOrder(ctx, id)
		if !ok || o.Status.IsTerminal() {
			continue
		}
		if err := s.cancelOrder(ctx, algo.Symbol, id, nil); err != nil && !errors.Is(err, ErrMayBeClosed) {
			logger.Warn("ems: wind-down cancel %s: %v", id, err)
		}
		_, _ = s.waitTerminal(ctx, id, s.cfg.EMS.AckTimeout, 50*time.Millisecond)
	}

	s.refreshAlgo(ctx, algo)
	algo.Status = models.AlgoStatusCanceled
	if err := s.cache.AlgoOrderUpdate(algo); err != nil {
		logger.Warn("ems: %v", err)
	}
	s.bus.Publish(ctx, bus.TopicAlgoCanceled, algo)
	if s.journal != nil {
		s.journal.RecordAlgo(ctx, algo)
	}
	logger.Info("algo %s canceled: filled %.8f of %.8f", algo.CorrelationID, algo.FilledAmount, algo.TotalAmount)
}

// handleCancelAlgo обслуживает CANCEL_TWAP и CANCEL_ADAPTIVE_MAKER: помечаем
// CANCELING и ждём, пока задача отработает wind-down.
func (s *Service) handleCancelAlgo(ctx context.Context, sub models.OrderSubmit) error {
	a, ok := s.cache.GetAlgoOrder(ctx, sub.CorrelationID)
	if !ok {
		return errors.Wrap(ErrAlgoNotRunning, sub.CorrelationID)
	}
	if a.Status != models.AlgoStatusRunning {
		return errors.Wrapf(ErrAlgoNotRunning, "%s is %s", sub.CorrelationID, a.Status)
	}

	if !s.tasks.cancelWait(sub.CorrelationID) {
		return errors.Wrap(ErrAlgoNotRunning, sub.CorrelationID)
	}
	return nil
}
