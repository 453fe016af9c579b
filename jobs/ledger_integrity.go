package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LedgerIntegrityJob cross-checks stock balances against the ledger. A stock
// row is consistent when its quantity equals the sum of its ledger changes and
// the latest balance_after matches.
type LedgerIntegrityJob struct {
	pool   *pgxpool.Pool
	mailer *Mailer
	logger *slog.Logger
}

// NewLedgerIntegrityJob constructs the job.
func NewLedgerIntegrityJob(pool *pgxpool.Pool, mailer *Mailer, logger *slog.Logger) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{pool: pool, mailer: mailer, logger: logger}
}

type ledgerMismatch struct {
	StockID     uuid.UUID
	Quantity    int64
	LedgerSum   int64
	LastBalance int64
}

// Handle processes TaskLedgerIntegrity tasks.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload LedgerIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	mismatches, err := j.scan(ctx)
	if err != nil {
		return fmt.Errorf("jobs: ledger integrity: %w", err)
	}
	if len(mismatches) == 0 {
		j.logger.Info("ledger integrity check passed")
		return nil
	}

	for _, m := range mismatches {
		j.logger.Error("ledger mismatch",
			slog.String("stock_id", m.StockID.String()),
			slog.Int64("quantity", m.Quantity),
			slog.Int64("ledger_sum", m.LedgerSum),
			slog.Int64("last_balance", m.LastBalance))
	}
	if payload.NotifyEmail != "" && j.mailer != nil {
		var b strings.Builder
		fmt.Fprintf(&b, "%d stock row(s) out of sync with the ledger:\n\n", len(mismatches))
		for _, m := range mismatches {
			fmt.Fprintf(&b, "stock %s: quantity=%d ledger_sum=%d last_balance=%d\n",
				m.StockID, m.Quantity, m.LedgerSum, m.LastBalance)
		}
		if err := j.mailer.Send(payload.NotifyEmail, "Ledger integrity alert", b.String()); err != nil {
			j.logger.Error("ledger integrity notification", slog.Any("error", err))
		}
	}
	return fmt.Errorf("jobs: ledger integrity: %d mismatch(es)", len(mismatches))
}

func (j *LedgerIntegrityJob) scan(ctx context.Context) ([]ledgerMismatch, error) {
	rows, err := j.pool.Query(ctx, `SELECT s.id, s.quantity,
COALESCE(SUM(l.change), 0),
COALESCE((SELECT balance_after FROM stock_ledger WHERE stock_id = s.id ORDER BY created_at DESC, id DESC LIMIT 1), 0)
FROM stocks s
LEFT JOIN stock_ledger l ON l.stock_id = s.id
GROUP BY s.id, s.quantity
HAVING s.quantity <> COALESCE(SUM(l.change), 0)
ORDER BY s.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mismatches []ledgerMismatch
	for rows.Next() {
		var m ledgerMismatch
		if err := rows.Scan(&m.StockID, &m.Quantity, &m.LedgerSum, &m.LastBalance); err != nil {
			return nil, err
		}
		mismatches = append(mismatches, m)
	}
	return mismatches, rows.Err()
}
