package warehouses

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockpile-ims/stockpile/internal/masterdata/shared"
)

// Repository persists warehouses.
type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Warehouse, int, error)
	Get(ctx context.Context, id uuid.UUID) (Warehouse, error)
	Create(ctx context.Context, warehouse Warehouse) (Warehouse, error)
	Update(ctx context.Context, id uuid.UUID, warehouse Warehouse) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const warehouseColumns = `id, name, code, company_id, created_at, updated_at, deleted_at`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Warehouse, int, error) {
	where := ` WHERE deleted_at IS NULL`
	args := []any{}
	argCount := 0

	if filters.Search != "" {
		argCount++
		where += ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR code ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filters.Search+"%")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM warehouses`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + warehouseColumns + ` FROM warehouses` + where + ` ORDER BY name ASC`
	if filters.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)
		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		args = append(args, filters.Offset())
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Warehouse
	for rows.Next() {
		var wh Warehouse
		if err := rows.Scan(&wh.ID, &wh.Name, &wh.Code, &wh.CompanyID, &wh.CreatedAt, &wh.UpdatedAt, &wh.DeletedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, wh)
	}
	return items, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Warehouse, error) {
	var wh Warehouse
	err := r.db.QueryRow(ctx, `SELECT `+warehouseColumns+` FROM warehouses WHERE id = $1 AND deleted_at IS NULL`, id).
		Scan(&wh.ID, &wh.Name, &wh.Code, &wh.CompanyID, &wh.CreatedAt, &wh.UpdatedAt, &wh.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Warehouse{}, shared.ErrNotFound
		}
		return Warehouse{}, err
	}
	return wh, nil
}

func (r *repository) Create(ctx context.Context, warehouse Warehouse) (Warehouse, error) {
	now := time.Now().UTC()
	warehouse.ID = uuid.New()
	warehouse.CreatedAt = now
	warehouse.UpdatedAt = now
	_, err := r.db.Exec(ctx, `INSERT INTO warehouses (id, name, code, company_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`, warehouse.ID, warehouse.Name, warehouse.Code, warehouse.CompanyID, now, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Warehouse{}, shared.ErrDuplicate
		}
		return Warehouse{}, err
	}
	return warehouse, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, warehouse Warehouse) error {
	tag, err := r.db.Exec(ctx, `UPDATE warehouses SET name = $1, code = $2, updated_at = $3 WHERE id = $4 AND deleted_at IS NULL`,
		warehouse.Name, warehouse.Code, time.Now().UTC(), id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return shared.ErrDuplicate
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE warehouses SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
