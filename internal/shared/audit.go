package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Audit actions recorded against entities.
const (
	AuditActionCreate = "CREATE"
	AuditActionUpdate = "UPDATE"
	AuditActionDelete = "DELETE"
)

// AuditLog represents a record stored in audit_logs. OldData and NewData hold
// the entity snapshot before and after the change.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	OldData  map[string]any
	NewData  map[string]any
	At       time.Time
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	oldJSON, err := json.Marshal(log.OldData)
	if err != nil {
		return err
	}
	newJSON, err := json.Marshal(log.NewData)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, old_data, new_data, occurred_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`, log.ActorID, log.Action, log.Entity, log.EntityID, oldJSON, newJSON, occurredAt(log.At))
	return err
}

// occurredAt stamps records whose caller left At unset. A zero time would
// otherwise be stored as 0001-01-01 and sort before every real entry.
func occurredAt(at time.Time) time.Time {
	if at.IsZero() {
		return time.Now().UTC()
	}
	return at
}
