package inventory

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository runs the inventory SQL. Methods taking a pgx.Tx participate in
// the caller's transaction.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the inventory repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// StockFilters narrows stock listings.
type StockFilters struct {
	Page        int
	Limit       int
	Search      string
	WarehouseID uuid.UUID
	ProductID   uuid.UUID
}

// LedgerFilters narrows ledger listings.
type LedgerFilters struct {
	Page        int
	Limit       int
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	Type        string
	From        *time.Time
	To          *time.Time
}

// AdjustmentFilters narrows adjustment listings.
type AdjustmentFilters struct {
	Page   int
	Limit  int
	Status string
}

func (f StockFilters) offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

func (r *Repository) ListStock(ctx context.Context, f StockFilters) ([]StockRow, int, error) {
	where := ` WHERE p.deleted_at IS NULL`
	args := []any{}
	n := 0

	if f.Search != "" {
		n++
		where += ` AND (p.sku ILIKE $` + strconv.Itoa(n) + ` OR p.name ILIKE $` + strconv.Itoa(n) + `)`
		args = append(args, "%"+f.Search+"%")
	}
	if f.WarehouseID != uuid.Nil {
		n++
		where += ` AND s.warehouse_id = $` + strconv.Itoa(n)
		args = append(args, f.WarehouseID)
	}
	if f.ProductID != uuid.Nil {
		n++
		where += ` AND s.product_id = $` + strconv.Itoa(n)
		args = append(args, f.ProductID)
	}

	from := ` FROM stocks s
JOIN products p ON p.id = s.product_id
JOIN warehouses w ON w.id = s.warehouse_id`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT s.id, s.product_id, s.warehouse_id, s.quantity, s.version, s.updated_at,
p.sku, p.name, w.name, w.code` + from + where + ` ORDER BY p.sku ASC, w.code ASC`
	if f.Limit > 0 {
		n++
		query += ` LIMIT $` + strconv.Itoa(n)
		args = append(args, f.Limit)
		n++
		query += ` OFFSET $` + strconv.Itoa(n)
		args = append(args, f.offset())
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []StockRow
	for rows.Next() {
		var row StockRow
		if err := rows.Scan(&row.ID, &row.ProductID, &row.WarehouseID, &row.Quantity, &row.Version, &row.UpdatedAt,
			&row.ProductSKU, &row.ProductName, &row.WarehouseName, &row.WarehouseCode); err != nil {
			return nil, 0, err
		}
		items = append(items, row)
	}
	return items, total, rows.Err()
}

func (r *Repository) ListLedger(ctx context.Context, f LedgerFilters) ([]LedgerRow, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	n := 0

	if f.ProductID != uuid.Nil {
		n++
		where += ` AND l.product_id = $` + strconv.Itoa(n)
		args = append(args, f.ProductID)
	}
	if f.WarehouseID != uuid.Nil {
		n++
		where += ` AND l.warehouse_id = $` + strconv.Itoa(n)
		args = append(args, f.WarehouseID)
	}
	if f.Type != "" {
		n++
		where += ` AND l.type = $` + strconv.Itoa(n)
		args = append(args, f.Type)
	}
	if f.From != nil {
		n++
		where += ` AND l.created_at >= $` + strconv.Itoa(n)
		args = append(args, *f.From)
	}
	if f.To != nil {
		n++
		where += ` AND l.created_at < $` + strconv.Itoa(n)
		args = append(args, *f.To)
	}

	from := ` FROM stock_ledger l
JOIN products p ON p.id = l.product_id
JOIN warehouses w ON w.id = l.warehouse_id`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT l.id, l.stock_id, l.product_id, l.warehouse_id, l.type, l.change, l.balance_after,
COALESCE(l.reference_type, ''), COALESCE(l.reference_id, '00000000-0000-0000-0000-000000000000'::uuid),
COALESCE(l.reason, ''), l.created_by, l.created_at, p.sku, p.name, w.name` + from + where + ` ORDER BY l.created_at DESC`
	if f.Limit > 0 {
		n++
		query += ` LIMIT $` + strconv.Itoa(n)
		args = append(args, f.Limit)
		n++
		query += ` OFFSET $` + strconv.Itoa(n)
		offset := 0
		if f.Page > 1 {
			offset = (f.Page - 1) * f.Limit
		}
		args = append(args, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []LedgerRow
	for rows.Next() {
		var row LedgerRow
		if err := rows.Scan(&row.ID, &row.StockID, &row.ProductID, &row.WarehouseID, &row.Type, &row.Change, &row.BalanceAfter,
			&row.ReferenceType, &row.ReferenceID, &row.Reason, &row.CreatedBy, &row.CreatedAt,
			&row.ProductSKU, &row.ProductName, &row.WarehouseName); err != nil {
			return nil, 0, err
		}
		items = append(items, row)
	}
	return items, total, rows.Err()
}

func (r *Repository) ListAdjustments(ctx context.Context, f AdjustmentFilters) ([]AdjustmentRow, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	n := 0

	if f.Status != "" {
		n++
		where += ` AND a.status = $` + strconv.Itoa(n)
		args = append(args, f.Status)
	}

	from := ` FROM stock_adjustments a
JOIN products p ON p.id = a.product_id
JOIN warehouses w ON w.id = a.warehouse_id`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + adjustmentColumns + `, p.sku, p.name, w.name` + from + where + ` ORDER BY a.created_at DESC`
	if f.Limit > 0 {
		n++
		query += ` LIMIT $` + strconv.Itoa(n)
		args = append(args, f.Limit)
		n++
		query += ` OFFSET $` + strconv.Itoa(n)
		offset := 0
		if f.Page > 1 {
			offset = (f.Page - 1) * f.Limit
		}
		args = append(args, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []AdjustmentRow
	for rows.Next() {
		var row AdjustmentRow
		if err := rows.Scan(&row.ID, &row.ProductID, &row.WarehouseID, &row.Delta, &row.Reason, &row.Status,
			&row.RequestedBy, &row.ApprovedBy, &row.RejectionReason, &row.CreatedAt, &row.DecidedAt,
			&row.ProductSKU, &row.ProductName, &row.WarehouseName); err != nil {
			return nil, 0, err
		}
		items = append(items, row)
	}
	return items, total, rows.Err()
}

const adjustmentColumns = `a.id, a.product_id, a.warehouse_id, a.delta, a.reason, a.status,
a.requested_by, a.approved_by, COALESCE(a.rejection_reason, ''), a.created_at, a.decided_at`

func (r *Repository) GetAdjustment(ctx context.Context, id uuid.UUID) (Adjustment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+adjustmentColumns+` FROM stock_adjustments a WHERE a.id = $1`, id)
	return scanAdjustment(row)
}

// GetStockForUpdate locks the balance row for the rest of the transaction.
func (r *Repository) GetStockForUpdate(ctx context.Context, tx pgx.Tx, productID, warehouseID uuid.UUID) (Stock, error) {
	row := tx.QueryRow(ctx, `SELECT id, product_id, warehouse_id, quantity, version, updated_at
FROM stocks WHERE product_id = $1 AND warehouse_id = $2 FOR UPDATE`, productID, warehouseID)
	var s Stock
	err := row.Scan(&s.ID, &s.ProductID, &s.WarehouseID, &s.Quantity, &s.Version, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Stock{}, ErrNotFound
		}
		return Stock{}, err
	}
	return s, nil
}

// CreateStock inserts a zero balance row.
func (r *Repository) CreateStock(ctx context.Context, tx pgx.Tx, productID, warehouseID uuid.UUID) (Stock, error) {
	s := Stock{
		ID:          uuid.New(),
		ProductID:   productID,
		WarehouseID: warehouseID,
		Quantity:    0,
		Version:     0,
		UpdatedAt:   time.Now().UTC(),
	}
	_, err := tx.Exec(ctx, `INSERT INTO stocks (id, product_id, warehouse_id, quantity, version, updated_at)
VALUES ($1, $2, $3, 0, 0, $4)`, s.ID, s.ProductID, s.WarehouseID, s.UpdatedAt)
	if err != nil {
		return Stock{}, err
	}
	return s, nil
}

// UpdateStockQuantity writes the new balance and bumps the version.
func (r *Repository) UpdateStockQuantity(ctx context.Context, tx pgx.Tx, stockID uuid.UUID, quantity int64) error {
	_, err := tx.Exec(ctx, `UPDATE stocks SET quantity = $1, version = version + 1, updated_at = NOW()
WHERE id = $2`, quantity, stockID)
	return err
}

// InsertLedger appends a ledger entry.
func (r *Repository) InsertLedger(ctx context.Context, tx pgx.Tx, e LedgerEntry) error {
	var refType *string
	if e.ReferenceType != "" {
		refType = &e.ReferenceType
	}
	var refID *uuid.UUID
	if e.ReferenceID != uuid.Nil {
		refID = &e.ReferenceID
	}
	_, err := tx.Exec(ctx, `INSERT INTO stock_ledger (id, stock_id, product_id, warehouse_id, type, change, balance_after, reference_type, reference_id, reason, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())`,
		e.ID, e.StockID, e.ProductID, e.WarehouseID, e.Type, e.Change, e.BalanceAfter, refType, refID, e.Reason, e.CreatedBy)
	return err
}

// WarehouseCompany resolves a warehouse's owning company for the
// cross-company transfer guard.
func (r *Repository) WarehouseCompany(ctx context.Context, tx pgx.Tx, warehouseID uuid.UUID) (uuid.UUID, error) {
	var companyID uuid.UUID
	err := tx.QueryRow(ctx, `SELECT company_id FROM warehouses WHERE id = $1 AND deleted_at IS NULL`, warehouseID).Scan(&companyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, err
	}
	return companyID, nil
}

// InsertAdjustment stores a pending adjustment request.
func (r *Repository) InsertAdjustment(ctx context.Context, adj Adjustment) (Adjustment, error) {
	adj.ID = uuid.New()
	adj.Status = AdjustmentPending
	adj.CreatedAt = time.Now().UTC()
	_, err := r.pool.Exec(ctx, `INSERT INTO stock_adjustments (id, product_id, warehouse_id, delta, reason, status, requested_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		adj.ID, adj.ProductID, adj.WarehouseID, adj.Delta, adj.Reason, adj.Status, adj.RequestedBy, adj.CreatedAt)
	if err != nil {
		return Adjustment{}, err
	}
	return adj, nil
}

// GetAdjustmentForUpdate locks an adjustment row inside a transaction.
func (r *Repository) GetAdjustmentForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (Adjustment, error) {
	row := tx.QueryRow(ctx, `SELECT `+adjustmentColumns+` FROM stock_adjustments a WHERE a.id = $1 FOR UPDATE`, id)
	return scanAdjustment(row)
}

// DecideAdjustment finalises an adjustment.
func (r *Repository) DecideAdjustment(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, decidedBy int64, rejectionReason string) error {
	_, err := tx.Exec(ctx, `UPDATE stock_adjustments SET status = $1, approved_by = $2, rejection_reason = NULLIF($3, ''), decided_at = NOW()
WHERE id = $4`, status, decidedBy, rejectionReason, id)
	return err
}

func scanAdjustment(row pgx.Row) (Adjustment, error) {
	var a Adjustment
	err := row.Scan(&a.ID, &a.ProductID, &a.WarehouseID, &a.Delta, &a.Reason, &a.Status,
		&a.RequestedBy, &a.ApprovedBy, &a.RejectionReason, &a.CreatedAt, &a.DecidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Adjustment{}, ErrNotFound
		}
		return Adjustment{}, err
	}
	return a, nil
}
