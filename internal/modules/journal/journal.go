package journal

import (
	"context"
	"time"

	"exec_engine/internal/models"
	"exec_engine/pkg/db"
	"exec_engine/pkg/logger"

	"github.com/jackc/pgx/v5"
)

// Service пишет отчёты по завершённым algo-ордерам в postgres. Запись
// best-effort: торговый путь от журнала не зависит, ошибку только логируем.
type Service struct {
	db *db.PgTxManager
}

func New(manager *db.PgTxManager) *Service {
	return &Service{db: manager}
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS algo_executions (
	correlation_id TEXT PRIMARY KEY,
	symbol         TEXT NOT NULL,
	side           TEXT NOT NULL,
	status         TEXT NOT NULL,
	total_amount   DOUBLE PRECISION NOT NULL,
	filled_amount  DOUBLE PRECISION NOT NULL,
	average_price  DOUBLE PRECISION NOT NULL,
	cost           DOUBLE PRECISION NOT NULL,
	child_count    INT NOT NULL,
	duration_sec   DOUBLE PRECISION NOT NULL,
	started_at     TIMESTAMPTZ NOT NULL,
	recorded_at    TIMESTAMPTZ NOT NULL
)`

func (s *Service) Migrate(ctx context.Context) error {
	return s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, createTableSQL)
		return err
	})
}

const insertSQL = `
INSERT INTO algo_executions (
	correlation_id, symbol, side, status,
	total_amount, filled_amount, average_price, cost,
	child_count, duration_sec, started_at, recorded_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (correlation_id) DO UPDATE SET
	status        = EXCLUDED.status,
	filled_amount = EXCLUDED.filled_amount,
	average_price = EXCLUDED.average_price,
	cost          = EXCLUDED.cost,
	child_count   = EXCLUDED.child_count,
	recorded_at   = EXCLUDED.recorded_at`

func (s *Service) RecordAlgo(ctx context.Context, a *models.AlgoOrder) {
	err := s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, insertSQL,
			a.CorrelationID, a.Symbol, string(a.Side), string(a.Status),
			a.TotalAmount, a.FilledAmount, a.AveragePrice, a.Cost,
			len(a.ChildOrderIDs), a.Duration, a.Timestamp, time.Now(),
		)
		return err
	})
	if err != nil {
		logger.Error("journal: record %s: %v", a.CorrelationID, err)
	}
}
