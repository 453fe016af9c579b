package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/stockpile-ims/stockpile/internal/reports"
)

// LowStockScanJob scans stock balances and notifies when products fall at or
// below the threshold.
type LowStockScanJob struct {
	reports *reports.Service
	mailer  *Mailer
	logger  *slog.Logger
}

// NewLowStockScanJob constructs the job.
func NewLowStockScanJob(reportsService *reports.Service, mailer *Mailer, logger *slog.Logger) *LowStockScanJob {
	return &LowStockScanJob{reports: reportsService, mailer: mailer, logger: logger}
}

// Handle processes TaskLowStockScan tasks.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	rows, err := j.reports.LowStock(ctx, payload.Threshold)
	if err != nil {
		return fmt.Errorf("jobs: low stock scan: %w", err)
	}
	j.logger.Info("low stock scan finished", slog.Int("flagged", len(rows)))
	if len(rows) == 0 || payload.NotifyEmail == "" || j.mailer == nil {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d product(s) at or below threshold:\n\n", len(rows))
	for _, row := range rows {
		fmt.Fprintf(&b, "%s  %s @ %s: %d (threshold %d)\n",
			row.ProductSKU, row.ProductName, row.WarehouseName, row.Quantity, row.Threshold)
	}
	if err := j.mailer.Send(payload.NotifyEmail, "Low stock alert", b.String()); err != nil {
		j.logger.Error("low stock notification", slog.Any("error", err))
		return err
	}
	return nil
}
