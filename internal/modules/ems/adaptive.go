package ems

import (
	"context"
	"time"

	"exec_engine/internal/helper"
	"exec_engine/internal/models"
	"exec_engine/internal/modules/bus"
	"exec_engine/pkg/logger"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

func (s *Service) handleAdaptiveMaker(ctx context.Context, sub models.OrderSubmit) error {
	// невалидные окна режем до любого похода на биржу
	if sub.Wait <= 0 || sub.Duration <= 0 || sub.Wait >= sub.Duration {
		return errors.Wrapf(ErrBadAlgoParams, "wait=%v duration=%v", sub.Wait, sub.Duration)
	}
	if sub.Amount <= 0 {
		return errors.Wrap(ErrBadAlgoParams, "amount must be positive")
	}
	if sub.CorrelationID == "" {
		sub.CorrelationID = uuid.NewString()
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
		s.runAdaptiveMaker(taskCtx, algo, sub)
	}()
	return nil
}

// runAdaptiveMaker: открыть позицию одной попыткой maker-then-taker, вести
// пару take-profit/stop-loss, закрыть остаток.
func (s *Service) runAdaptiveMaker(ctx context.Context, algo *models.AlgoOrder, sub models.OrderSubmit) {
	openFrac, opened := s.makerTaker(ctx, algo, makerTakerLeg{
		side:       sub.Side,
		amount:     sub.Amount,
		wait:       sub.Wait,
		duration:   sub.Duration,
		reduceOnly: sub.ReduceOnly,
		posSide:    sub.PositionSide,
		poll:       s.checkInterval(sub),
	})
	if ctx.Err() != nil {
		s.windDownAlgo(algo)
		return
	}
	if helper.EqZero(opened) {
		logger.Warn("adp %s: nothing filled on open leg", algo.CorrelationID)
		s.failAlgo(algo)
		return
	}

	s.refreshAlgo(ctx, algo)
	entry := algo.AveragePrice

	closedByTrigger := s.runTpSl(ctx, algo, sub, entry, opened)
	if ctx.Err() != nil {
		s.windDownAlgo(algo)
		return
	}

	// остаток позиции этого алгоритма закрываем тем же примитивом
	meta := s.cfg.InstrumentMeta(sub.Symbol)
	residual := opened - closedByTrigger
	closeFrac := 0.0
	if residual >= meta.AmountStep && !helper.EqZero(residual) {
		closeFrac, _ = s.makerTaker(ctx, algo, makerTakerLeg{
			side:       sub.Side.Opposite(),
			amount:     residual,
			wait:       sub.Wait,
			duration:   sub.Duration,
			reduceOnly: true,
			posSide:    sub.PositionSide,
			poll:       s.checkInterval(sub),
		})
		if ctx.Err() != nil {
			s.windDownAlgo(algo)
			return
		}
	}

	s.refreshAlgo(ctx, algo)
	algo.Status = models.AlgoStatusFinished
	if err := s.cache.AlgoOrderUpdate(algo); err != nil {
		logger.Warn("adp %s: %v", algo.CorrelationID, err)
	}
	s.bus.Publish(context.Background(), bus.TopicAlgoFinished, algo)
	if s.journal != nil {
		s.journal.RecordAlgo(context.Background(), algo)
	}
	logger.Info("adp %s done: maker fraction open=%.4f close=%.4f", algo.CorrelationID, openFrac, closeFrac)
}

type makerTakerLeg struct {
	side       models.Side
	amount     float64
	wait       time.Duration
	duration   time.Duration
	reduceOnly bool
	posSide    models.PositionSide
	poll       time.Duration
}

// makerTaker — одна попытка maker-then-taker: лимитка по правилу
// котирования, ожидание wait, затем поллинг до прохода цены сквозь котировку
// или истечения duration-wait; снятие; добой остатка маркетом. Возвращает
// долю, исполненную мейкером, и суммарно исполненный объём.
func (s *Service) makerTaker(ctx context.Context, algo *models.AlgoOrder, leg makerTakerLeg) (makerFraction, totalFilled float64) {
	meta := s.cfg.InstrumentMeta(algo.Symbol)
	deadline := time.Now().Add(leg.duration)

	book, ok := s.awaitBook(ctx, algo.Symbol, leg.poll, deadline)
	if !ok {
		logger.Error("adp %s: %v", algo.Symbol, ErrNoBook)
		return 0, 0
	}
	quoted := makerPrice(book, leg.side, meta.TickSize)

	limit, _ := s.createOrder(ctx, models.OrderSubmit{
		Symbol:       algo.Symbol,
		Side:         leg.side,
		Type:         models.OrderTypeLimit,
		Amount:       leg.amount,
		Price:        quoted,
		TimeInForce:  models.TifGTC,
		ReduceOnly:   leg.reduceOnly,
		PositionSide: leg.posSide,
	})
	if !limit.Success {
		return 0, 0
	}
	s.attachChild(algo, limit.CorrelationID)

	// фаза мейкера: wait целиком, затем до конца окна следим за книгой
	closed := s.pollUntil(ctx, limit.CorrelationID, leg.poll, time.Now().Add(leg.wait), nil)
	if !closed {
		hardStop := time.Now().Add(leg.duration - leg.wait)
		closed = s.pollUntil(ctx, limit.CorrelationID, leg.poll, hardStop, func() bool {
			b, ok := s.cache.GetBook(algo.Symbol)
			return ok && crossed(b, leg.side, quoted)
		})
	}
	if !closed {
		_ = s.cancelOrder(ctx, algo.Symbol, limit.CorrelationID, nil)
		_, _ = s.waitTerminal(ctx, limit.CorrelationID, s.cfg.EMS.AckTimeout, leg.poll)
	}
	if ctx.Err() != nil {
		return 0, 0
	}

	final, _ := s.cache.GetOrder(ctx, limit.CorrelationID)
	makerFilled := final.FilledAmount
	totalFilled = makerFilled

	leftover := leg.amount - makerFilled
	if leftover >= meta.MinOrderAmount || (leg.reduceOnly && leftover > 0 && !helper.EqZero(leftover)) {
		mkt, _ := s.createOrder(ctx, models.OrderSubmit{
			Symbol:       algo.Symbol,
			Side:         leg.side,
			Type:         models.OrderTypeMarket,
			Amount:       leftover,
			ReduceOnly:   leg.reduceOnly,
			PositionSide: leg.posSide,
		})
		if mkt.Success {
			s.attachChild(algo, mkt.CorrelationID)
			if o, ok := s.waitTerminal(ctx, mkt.CorrelationID, s.cfg.EMS.AckTimeout, leg.poll); ok {
				totalFilled += o.FilledAmount
			}
		}
	}

	if leg.amount > 0 {
		makerFraction = makerFilled / leg.amount
	}
	return makerFraction, totalFilled
}

// runTpSl сторожит пару триггеров вокруг средней цены входа. Взводится
// только один из двух — кто первым коснулся; по TP закрываемся reduce-only
// лимиткой, по SL — reduce-only маркетом. Возвращает объём, закрытый
// триггерной ногой.
func (s *Service) runTpSl(ctx context.Context, algo *models.AlgoOrder, sub models.OrderSubmit, entry, opened float64) float64 {
	if sub.TpRatio <= 0 && sub.SlRatio <= 0 {
		return 0
	}
	meta := s.cfg.InstrumentMeta(sub.Symbol)
	poll := s.checkInterval(sub)
	window := sub.SlTpDuration
	if window <= 0 {
		window = sub.Duration
	}
	deadline := time.Now().Add(window)

	var tpPrice, slPrice float64
	if sub.Side == models.SideBuy {
		tpPrice = entry * (1 + sub.TpRatio)
		slPrice = entry * (1 - sub.SlRatio)
	} else {
		tpPrice = entry * (1 - sub.TpRatio)
		slPrice = entry * (1 + sub.SlRatio)
	}

	closeSide := sub.Side.Opposite()
	var armed *models.Order

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

poll:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return 0
		case <-ticker.C:
		}

		book, ok := s.cache.GetBook(sub.Symbol)
		if !ok || !book.Valid() {
			continue
		}
		mid := book.Mid()

		tpHit := sub.TpRatio > 0 && ((sub.Side == models.SideBuy && mid >= tpPrice) || (sub.Side == models.SideSell && mid <= tpPrice))
		slHit := sub.SlRatio > 0 && ((sub.Side == models.SideBuy && mid <= slPrice) || (sub.Side == models.SideSell && mid >= slPrice))

		switch {
		case tpHit:
			o, _ := s.createOrder(ctx, models.OrderSubmit{
				Symbol:       sub.Symbol,
				Side:         closeSide,
				Type:         models.OrderTypeLimit,
				Amount:       opened,
				Price:        makerPrice(book, closeSide, meta.TickSize),
				TimeInForce:  models.TifGTC,
				ReduceOnly:   true,
				PositionSide: sub.PositionSide,
			})
			if o.Success {
				s.attachChild(algo, o.CorrelationID)
				armed = o
			}
			break poll
		case slHit:
			o, _ := s.createOrder(ctx, models.OrderSubmit{
				Symbol:       sub.Symbol,
				Side:         closeSide,
				Type:         models.OrderTypeMarket,
				Amount:       opened,
				ReduceOnly:   true,
				PositionSide: sub.PositionSide,
			})
			if o.Success {
				s.attachChild(algo, o.CorrelationID)
				armed = o
			}
			break poll
		}
	}

	if armed == nil {
		return 0
	}

	// даём взведённой ноге дожить окно, потом снимаем недобитое
	s.pollUntil(ctx, armed.CorrelationID, poll, deadline, nil)
	if o, ok := s.cache.GetOrder(ctx, armed.CorrelationID); ok && !o.Status.IsTerminal() {
		if err := s.cancelOrder(ctx, sub.Symbol, armed.CorrelationID, nil); err != nil && !errors.Is(err, ErrMayBeClosed) {
			logger.Warn("adp %s: tp/sl cancel: %v", algo.CorrelationID, err)
		}
		_, _ = s.waitTerminal(ctx, armed.CorrelationID, s.cfg.EMS.AckTimeout, poll)
	}

	final, _ := s.cache.GetOrder(ctx, armed.CorrelationID)
	return final.FilledAmount
}
