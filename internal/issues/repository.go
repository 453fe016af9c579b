package issues

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository runs the issue slip SQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the issue repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Filters narrows slip listings.
type Filters struct {
	Page   int
	Limit  int
	Status string
	Type   string
}

const slipColumns = `s.id, s.number, s.type, s.warehouse_id, s.status, COALESCE(s.purpose, ''),
s.requested_by, s.approved_by, s.rejected_by, COALESCE(s.rejection_reason, ''), s.created_at, s.decided_at, s.issued_at`

func (r *Repository) List(ctx context.Context, f Filters) ([]SlipRow, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	n := 0

	if f.Status != "" {
		n++
		where += ` AND s.status = $` + strconv.Itoa(n)
		args = append(args, f.Status)
	}
	if f.Type != "" {
		n++
		where += ` AND s.type = $` + strconv.Itoa(n)
		args = append(args, f.Type)
	}

	from := ` FROM issue_slips s JOIN warehouses w ON w.id = s.warehouse_id`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + slipColumns + `, w.name,
(SELECT COUNT(*) FROM issue_slip_lines l WHERE l.slip_id = s.id)` + from + where + ` ORDER BY s.created_at DESC`
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

	var items []SlipRow
	for rows.Next() {
		var row SlipRow
		if err := rows.Scan(&row.ID, &row.Number, &row.Type, &row.WarehouseID, &row.Status, &row.Purpose,
			&row.RequestedBy, &row.ApprovedBy, &row.RejectedBy, &row.RejectionReason,
			&row.CreatedAt, &row.DecidedAt, &row.IssuedAt, &row.WarehouseName, &row.LineCount); err != nil {
			return nil, 0, err
		}
		items = append(items, row)
	}
	return items, total, rows.Err()
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Slip, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+slipColumns+` FROM issue_slips s WHERE s.id = $1`, id)
	slip, err := scanSlip(row)
	if err != nil {
		return Slip{}, err
	}

	lines, err := r.lines(ctx, id)
	if err != nil {
		return Slip{}, err
	}
	slip.Lines = lines
	return slip, nil
}

func (r *Repository) lines(ctx context.Context, slipID uuid.UUID) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT l.id, l.slip_id, l.product_id, l.quantity, p.sku, p.name
FROM issue_slip_lines l JOIN products p ON p.id = l.product_id
WHERE l.slip_id = $1 ORDER BY p.sku ASC`, slipID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.SlipID, &l.ProductID, &l.Quantity, &l.ProductSKU, &l.ProductName); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// Insert stores a slip with its lines in one transaction.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, slip Slip) (Slip, error) {
	var seq int64
	if err := tx.QueryRow(ctx, `SELECT nextval('issue_slip_seq')`).Scan(&seq); err != nil {
		return Slip{}, err
	}
	slip.ID = uuid.New()
	slip.Number = fmt.Sprintf("ISS-%s-%05d", time.Now().Format("200601"), seq)
	slip.Status = StatusPending
	slip.CreatedAt = time.Now().UTC()

	_, err := tx.Exec(ctx, `INSERT INTO issue_slips (id, number, type, warehouse_id, status, purpose, requested_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		slip.ID, slip.Number, slip.Type, slip.WarehouseID, slip.Status, slip.Purpose, slip.RequestedBy, slip.CreatedAt)
	if err != nil {
		return Slip{}, err
	}

	for i := range slip.Lines {
		slip.Lines[i].ID = uuid.New()
		slip.Lines[i].SlipID = slip.ID
		_, err := tx.Exec(ctx, `INSERT INTO issue_slip_lines (id, slip_id, product_id, quantity)
VALUES ($1, $2, $3, $4)`, slip.Lines[i].ID, slip.ID, slip.Lines[i].ProductID, slip.Lines[i].Quantity)
		if err != nil {
			return Slip{}, err
		}
	}
	return slip, nil
}

// GetForUpdate locks a slip row and loads its lines.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (Slip, error) {
	row := tx.QueryRow(ctx, `SELECT `+slipColumns+` FROM issue_slips s WHERE s.id = $1 FOR UPDATE`, id)
	slip, err := scanSlip(row)
	if err != nil {
		return Slip{}, err
	}

	rows, err := tx.Query(ctx, `SELECT id, slip_id, product_id, quantity FROM issue_slip_lines WHERE slip_id = $1`, id)
	if err != nil {
		return Slip{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.SlipID, &l.ProductID, &l.Quantity); err != nil {
			return Slip{}, err
		}
		slip.Lines = append(slip.Lines, l)
	}
	return slip, rows.Err()
}

// Decide finalises an approval decision.
func (r *Repository) Decide(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, actorID int64, rejectionReason string) error {
	var query string
	if status == StatusApproved {
		query = `UPDATE issue_slips SET status = $1, approved_by = $2, decided_at = NOW() WHERE id = $3`
		_, err := tx.Exec(ctx, query, status, actorID, id)
		return err
	}
	query = `UPDATE issue_slips SET status = $1, rejected_by = $2, rejection_reason = NULLIF($3, ''), decided_at = NOW() WHERE id = $4`
	_, err := tx.Exec(ctx, query, status, actorID, rejectionReason, id)
	return err
}

// MarkIssued transitions an approved slip to ISSUED.
func (r *Repository) MarkIssued(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	_, err := tx.Exec(ctx, `UPDATE issue_slips SET status = $1, issued_at = NOW() WHERE id = $2`, StatusIssued, id)
	return err
}

// InsertPass stores the gate pass generated at execute time.
func (r *Repository) InsertPass(ctx context.Context, tx pgx.Tx, pass Pass) (Pass, error) {
	var seq int64
	if err := tx.QueryRow(ctx, `SELECT nextval('issue_pass_seq')`).Scan(&seq); err != nil {
		return Pass{}, err
	}
	pass.ID = uuid.New()
	pass.Number = fmt.Sprintf("IP-%s-%05d", time.Now().Format("200601"), seq)
	pass.IssuedAt = time.Now().UTC()

	_, err := tx.Exec(ctx, `INSERT INTO issue_passes (id, slip_id, number, issued_by, issued_at)
VALUES ($1, $2, $3, $4, $5)`, pass.ID, pass.SlipID, pass.Number, pass.IssuedBy, pass.IssuedAt)
	if err != nil {
		return Pass{}, err
	}
	return pass, nil
}

// PassBySlip fetches the pass of an issued slip.
func (r *Repository) PassBySlip(ctx context.Context, slipID uuid.UUID) (Pass, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, slip_id, number, issued_by, issued_at FROM issue_passes WHERE slip_id = $1`, slipID)
	var p Pass
	err := row.Scan(&p.ID, &p.SlipID, &p.Number, &p.IssuedBy, &p.IssuedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Pass{}, ErrNotFound
		}
		return Pass{}, err
	}
	return p, nil
}

// WarehouseName resolves a warehouse display name for printed documents.
func (r *Repository) WarehouseName(ctx context.Context, warehouseID uuid.UUID) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT name FROM warehouses WHERE id = $1`, warehouseID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return name, nil
}

func scanSlip(row pgx.Row) (Slip, error) {
	var s Slip
	err := row.Scan(&s.ID, &s.Number, &s.Type, &s.WarehouseID, &s.Status, &s.Purpose,
		&s.RequestedBy, &s.ApprovedBy, &s.RejectedBy, &s.RejectionReason, &s.CreatedAt, &s.DecidedAt, &s.IssuedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Slip{}, ErrNotFound
		}
		return Slip{}, err
	}
	return s, nil
}
