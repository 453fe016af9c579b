package audit

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads the audit trail.
type Repository interface {
	List(ctx context.Context, filters Filters) ([]Entry, int, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `id, actor_id, action, entity, entity_id, old_data, new_data, occurred_at`

func (r *repository) List(ctx context.Context, filters Filters) ([]Entry, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.Entity != "" {
		argCount++
		where += ` AND entity = $` + strconv.Itoa(argCount)
		args = append(args, filters.Entity)
	}
	if filters.EntityID != "" {
		argCount++
		where += ` AND entity_id = $` + strconv.Itoa(argCount)
		args = append(args, filters.EntityID)
	}
	if filters.Action != "" {
		argCount++
		where += ` AND action = $` + strconv.Itoa(argCount)
		args = append(args, filters.Action)
	}
	if filters.ActorID != 0 {
		argCount++
		where += ` AND actor_id = $` + strconv.Itoa(argCount)
		args = append(args, filters.ActorID)
	}
	if !filters.From.IsZero() {
		argCount++
		where += ` AND occurred_at >= $` + strconv.Itoa(argCount)
		args = append(args, filters.From)
	}
	if !filters.To.IsZero() {
		argCount++
		where += ` AND occurred_at < $` + strconv.Itoa(argCount)
		args = append(args, filters.To)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + entryColumns + ` FROM audit_logs` + where + ` ORDER BY occurred_at DESC, id DESC`
	if filters.PerPage > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.PerPage)
		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		args = append(args, (filters.Page-1)*filters.PerPage)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.Entity, &e.EntityID, &e.OldData, &e.NewData, &e.OccurredAt); err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}
