package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskLowStockScan flags balances at or below the configured threshold.
	TaskLowStockScan = "inventory:low_stock_scan"
	// TaskLedgerIntegrity verifies stock balances against the ledger.
	TaskLedgerIntegrity = "inventory:ledger_integrity"
	// TaskSendEmail delivers a transactional email.
	TaskSendEmail = "mail:send"
)

// LowStockScanPayload parameterises a low stock scan run.
type LowStockScanPayload struct {
	Threshold   int64  `json:"threshold"`
	NotifyEmail string `json:"notify_email,omitempty"`
}

// NewLowStockScanTask constructs a low stock scan task.
func NewLowStockScanTask(payload LowStockScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, data), nil
}

// LedgerIntegrityPayload parameterises a ledger integrity run.
type LedgerIntegrityPayload struct {
	NotifyEmail string `json:"notify_email,omitempty"`
}

// NewLedgerIntegrityTask constructs a ledger integrity task.
func NewLedgerIntegrityTask(payload LedgerIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data), nil
}

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs a send-email task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSendEmail, data), nil
}
