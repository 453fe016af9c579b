package procurement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository runs the procurement SQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the procurement repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Filters narrows document listings.
type Filters struct {
	Page   int
	Limit  int
	Status string
}

func (f Filters) limitClause(query string, args []any, n int) (string, []any) {
	if f.Limit <= 0 {
		return query, args
	}
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
	return query, args
}

const prColumns = `r.id, r.number, r.warehouse_id, r.status, COALESCE(r.notes, ''),
r.requested_by, r.approved_by, COALESCE(r.rejection_reason, ''), r.created_at, r.decided_at`

func (r *Repository) ListRequisitions(ctx context.Context, f Filters) ([]RequisitionRow, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	n := 0
	if f.Status != "" {
		n++
		where += ` AND r.status = $` + strconv.Itoa(n)
		args = append(args, f.Status)
	}

	from := ` FROM purchase_requisitions r JOIN warehouses w ON w.id = r.warehouse_id`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + prColumns + `, w.name,
EXISTS (SELECT 1 FROM purchase_orders o WHERE o.requisition_id = r.id AND o.status <> 'REJECTED')` +
		from + where + ` ORDER BY r.created_at DESC`
	query, args = f.limitClause(query, args, n)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []RequisitionRow
	for rows.Next() {
		var row RequisitionRow
		if err := rows.Scan(&row.ID, &row.Number, &row.WarehouseID, &row.Status, &row.Notes,
			&row.RequestedBy, &row.ApprovedBy, &row.RejectionReason, &row.CreatedAt, &row.DecidedAt,
			&row.WarehouseName, &row.POExists); err != nil {
			return nil, 0, err
		}
		items = append(items, row)
	}
	return items, total, rows.Err()
}

func (r *Repository) GetRequisition(ctx context.Context, id uuid.UUID) (Requisition, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+prColumns+` FROM purchase_requisitions r WHERE r.id = $1`, id)
	req, err := scanRequisition(row)
	if err != nil {
		return Requisition{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT l.id, l.requisition_id, l.product_id, l.quantity, p.sku, p.name
FROM purchase_requisition_lines l JOIN products p ON p.id = l.product_id
WHERE l.requisition_id = $1 ORDER BY p.sku ASC`, id)
	if err != nil {
		return Requisition{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l ReqLine
		if err := rows.Scan(&l.ID, &l.RequisitionID, &l.ProductID, &l.Quantity, &l.ProductSKU, &l.ProductName); err != nil {
			return Requisition{}, err
		}
		req.Lines = append(req.Lines, l)
	}
	return req, rows.Err()
}

func (r *Repository) InsertRequisition(ctx context.Context, tx pgx.Tx, req Requisition) (Requisition, error) {
	var seq int64
	if err := tx.QueryRow(ctx, `SELECT nextval('purchase_requisition_seq')`).Scan(&seq); err != nil {
		return Requisition{}, err
	}
	req.ID = uuid.New()
	req.Number = fmt.Sprintf("PR-%s-%05d", time.Now().Format("200601"), seq)
	req.Status = PRSubmitted
	req.CreatedAt = time.Now().UTC()

	_, err := tx.Exec(ctx, `INSERT INTO purchase_requisitions (id, number, warehouse_id, status, notes, requested_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		req.ID, req.Number, req.WarehouseID, req.Status, req.Notes, req.RequestedBy, req.CreatedAt)
	if err != nil {
		return Requisition{}, err
	}
	for i := range req.Lines {
		req.Lines[i].ID = uuid.New()
		req.Lines[i].RequisitionID = req.ID
		_, err := tx.Exec(ctx, `INSERT INTO purchase_requisition_lines (id, requisition_id, product_id, quantity)
VALUES ($1, $2, $3, $4)`, req.Lines[i].ID, req.ID, req.Lines[i].ProductID, req.Lines[i].Quantity)
		if err != nil {
			return Requisition{}, err
		}
	}
	return req, nil
}

func (r *Repository) GetRequisitionForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (Requisition, error) {
	row := tx.QueryRow(ctx, `SELECT `+prColumns+` FROM purchase_requisitions r WHERE r.id = $1 FOR UPDATE`, id)
	req, err := scanRequisition(row)
	if err != nil {
		return Requisition{}, err
	}

	rows, err := tx.Query(ctx, `SELECT id, requisition_id, product_id, quantity FROM purchase_requisition_lines WHERE requisition_id = $1`, id)
	if err != nil {
		return Requisition{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l ReqLine
		if err := rows.Scan(&l.ID, &l.RequisitionID, &l.ProductID, &l.Quantity); err != nil {
			return Requisition{}, err
		}
		req.Lines = append(req.Lines, l)
	}
	return req, rows.Err()
}

func (r *Repository) DecideRequisition(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, actorID int64, rejectionReason string) error {
	_, err := tx.Exec(ctx, `UPDATE purchase_requisitions SET status = $1, approved_by = $2, rejection_reason = NULLIF($3, ''), decided_at = NOW()
WHERE id = $4`, status, actorID, rejectionReason, id)
	return err
}

const poColumns = `o.id, o.number, o.requisition_id, o.supplier_id, o.warehouse_id, o.status, o.total,
o.ordered_by, o.approved_by, COALESCE(o.rejection_reason, ''), o.created_at, o.decided_at`

func (r *Repository) ListOrders(ctx context.Context, f Filters) ([]OrderRow, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	n := 0
	if f.Status != "" {
		n++
		where += ` AND o.status = $` + strconv.Itoa(n)
		args = append(args, f.Status)
	}

	from := ` FROM purchase_orders o
JOIN suppliers s ON s.id = o.supplier_id
JOIN warehouses w ON w.id = o.warehouse_id`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + poColumns + `, s.name, w.name,
EXISTS (SELECT 1 FROM goods_receipts g WHERE g.order_id = o.id AND g.status <> 'REJECTED')` +
		from + where + ` ORDER BY o.created_at DESC`
	query, args = f.limitClause(query, args, n)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []OrderRow
	for rows.Next() {
		var row OrderRow
		if err := rows.Scan(&row.ID, &row.Number, &row.RequisitionID, &row.SupplierID, &row.WarehouseID, &row.Status, &row.Total,
			&row.OrderedBy, &row.ApprovedBy, &row.RejectionReason, &row.CreatedAt, &row.DecidedAt,
			&row.SupplierName, &row.WarehouseName, &row.GRNExists); err != nil {
			return nil, 0, err
		}
		items = append(items, row)
	}
	return items, total, rows.Err()
}

func (r *Repository) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders o WHERE o.id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		return Order{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT l.id, l.order_id, l.product_id, l.quantity, l.rate, l.amount, p.sku, p.name
FROM purchase_order_lines l JOIN products p ON p.id = l.product_id
WHERE l.order_id = $1 ORDER BY p.sku ASC`, id)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.Rate, &l.Amount, &l.ProductSKU, &l.ProductName); err != nil {
			return Order{}, err
		}
		order.Lines = append(order.Lines, l)
	}
	return order, rows.Err()
}

// InsertOrder stores an order with its lines. The partial unique index on
// requisition_id rejects a second non-rejected order for the same
// requisition.
func (r *Repository) InsertOrder(ctx context.Context, tx pgx.Tx, order Order) (Order, error) {
	var seq int64
	if err := tx.QueryRow(ctx, `SELECT nextval('purchase_order_seq')`).Scan(&seq); err != nil {
		return Order{}, err
	}
	order.ID = uuid.New()
	order.Number = fmt.Sprintf("PO-%s-%05d", time.Now().Format("200601"), seq)
	order.Status = POPending
	order.CreatedAt = time.Now().UTC()

	_, err := tx.Exec(ctx, `INSERT INTO purchase_orders (id, number, requisition_id, supplier_id, warehouse_id, status, total, ordered_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		order.ID, order.Number, order.RequisitionID, order.SupplierID, order.WarehouseID, order.Status, order.Total, order.OrderedBy, order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Order{}, ErrPOExists
		}
		return Order{}, err
	}
	for i := range order.Lines {
		order.Lines[i].ID = uuid.New()
		order.Lines[i].OrderID = order.ID
		_, err := tx.Exec(ctx, `INSERT INTO purchase_order_lines (id, order_id, product_id, quantity, rate, amount)
VALUES ($1, $2, $3, $4, $5, $6)`,
			order.Lines[i].ID, order.ID, order.Lines[i].ProductID, order.Lines[i].Quantity, order.Lines[i].Rate, order.Lines[i].Amount)
		if err != nil {
			return Order{}, err
		}
	}
	return order, nil
}

func (r *Repository) GetOrderForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (Order, error) {
	row := tx.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders o WHERE o.id = $1 FOR UPDATE`, id)
	order, err := scanOrder(row)
	if err != nil {
		return Order{}, err
	}

	rows, err := tx.Query(ctx, `SELECT id, order_id, product_id, quantity, rate, amount FROM purchase_order_lines WHERE order_id = $1`, id)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.Rate, &l.Amount); err != nil {
			return Order{}, err
		}
		order.Lines = append(order.Lines, l)
	}
	return order, rows.Err()
}

func (r *Repository) DecideOrder(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, actorID int64, rejectionReason string) error {
	_, err := tx.Exec(ctx, `UPDATE purchase_orders SET status = $1, approved_by = $2, rejection_reason = NULLIF($3, ''), decided_at = NOW()
WHERE id = $4`, status, actorID, rejectionReason, id)
	return err
}

// MarkOrderReceived transitions an approved order once its receipt is
// approved.
func (r *Repository) MarkOrderReceived(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	_, err := tx.Exec(ctx, `UPDATE purchase_orders SET status = $1 WHERE id = $2`, POReceived, id)
	return err
}

// OrderExistsForRequisition reports whether a non-rejected order already
// references the requisition.
func (r *Repository) OrderExistsForRequisition(ctx context.Context, tx pgx.Tx, requisitionID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM purchase_orders WHERE requisition_id = $1 AND status <> 'REJECTED')`, requisitionID).Scan(&exists)
	return exists, err
}

const grnColumns = `g.id, g.number, g.order_id, g.warehouse_id, g.status, COALESCE(g.notes, ''),
g.received_by, g.approved_by, COALESCE(g.rejection_reason, ''), g.created_at, g.decided_at`

func (r *Repository) ListReceipts(ctx context.Context, f Filters) ([]ReceiptRow, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	n := 0
	if f.Status != "" {
		n++
		where += ` AND g.status = $` + strconv.Itoa(n)
		args = append(args, f.Status)
	}

	from := ` FROM goods_receipts g
JOIN purchase_orders o ON o.id = g.order_id
JOIN warehouses w ON w.id = g.warehouse_id`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + grnColumns + `, o.number, w.name` + from + where + ` ORDER BY g.created_at DESC`
	query, args = f.limitClause(query, args, n)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []ReceiptRow
	for rows.Next() {
		var row ReceiptRow
		if err := rows.Scan(&row.ID, &row.Number, &row.OrderID, &row.WarehouseID, &row.Status, &row.Notes,
			&row.ReceivedBy, &row.ApprovedBy, &row.RejectionReason, &row.CreatedAt, &row.DecidedAt,
			&row.OrderNumber, &row.WarehouseName); err != nil {
			return nil, 0, err
		}
		items = append(items, row)
	}
	return items, total, rows.Err()
}

func (r *Repository) GetReceipt(ctx context.Context, id uuid.UUID) (Receipt, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+grnColumns+` FROM goods_receipts g WHERE g.id = $1`, id)
	receipt, err := scanReceipt(row)
	if err != nil {
		return Receipt{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT l.id, l.receipt_id, l.product_id, l.quantity, p.sku, p.name
FROM goods_receipt_lines l JOIN products p ON p.id = l.product_id
WHERE l.receipt_id = $1 ORDER BY p.sku ASC`, id)
	if err != nil {
		return Receipt{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l ReceiptLine
		if err := rows.Scan(&l.ID, &l.ReceiptID, &l.ProductID, &l.Quantity, &l.ProductSKU, &l.ProductName); err != nil {
			return Receipt{}, err
		}
		receipt.Lines = append(receipt.Lines, l)
	}
	return receipt, rows.Err()
}

// InsertReceipt stores a receipt with its lines. The partial unique index on
// order_id rejects a second non-rejected receipt for the same order.
func (r *Repository) InsertReceipt(ctx context.Context, tx pgx.Tx, receipt Receipt) (Receipt, error) {
	var seq int64
	if err := tx.QueryRow(ctx, `SELECT nextval('goods_receipt_seq')`).Scan(&seq); err != nil {
		return Receipt{}, err
	}
	receipt.ID = uuid.New()
	receipt.Number = fmt.Sprintf("GRN-%s-%05d", time.Now().Format("200601"), seq)
	receipt.Status = GRNPending
	receipt.CreatedAt = time.Now().UTC()

	_, err := tx.Exec(ctx, `INSERT INTO goods_receipts (id, number, order_id, warehouse_id, status, notes, received_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		receipt.ID, receipt.Number, receipt.OrderID, receipt.WarehouseID, receipt.Status, receipt.Notes, receipt.ReceivedBy, receipt.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Receipt{}, ErrGRNExists
		}
		return Receipt{}, err
	}
	for i := range receipt.Lines {
		receipt.Lines[i].ID = uuid.New()
		receipt.Lines[i].ReceiptID = receipt.ID
		_, err := tx.Exec(ctx, `INSERT INTO goods_receipt_lines (id, receipt_id, product_id, quantity)
VALUES ($1, $2, $3, $4)`, receipt.Lines[i].ID, receipt.ID, receipt.Lines[i].ProductID, receipt.Lines[i].Quantity)
		if err != nil {
			return Receipt{}, err
		}
	}
	return receipt, nil
}

func (r *Repository) GetReceiptForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (Receipt, error) {
	row := tx.QueryRow(ctx, `SELECT `+grnColumns+` FROM goods_receipts g WHERE g.id = $1 FOR UPDATE`, id)
	receipt, err := scanReceipt(row)
	if err != nil {
		return Receipt{}, err
	}

	rows, err := tx.Query(ctx, `SELECT id, receipt_id, product_id, quantity FROM goods_receipt_lines WHERE receipt_id = $1`, id)
	if err != nil {
		return Receipt{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l ReceiptLine
		if err := rows.Scan(&l.ID, &l.ReceiptID, &l.ProductID, &l.Quantity); err != nil {
			return Receipt{}, err
		}
		receipt.Lines = append(receipt.Lines, l)
	}
	return receipt, rows.Err()
}

func (r *Repository) DecideReceipt(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, actorID int64, rejectionReason string) error {
	_, err := tx.Exec(ctx, `UPDATE goods_receipts SET status = $1, approved_by = $2, rejection_reason = NULLIF($3, ''), decided_at = NOW()
WHERE id = $4`, status, actorID, rejectionReason, id)
	return err
}

// ReceiptExistsForOrder reports whether a non-rejected receipt already
// references the order.
func (r *Repository) ReceiptExistsForOrder(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM goods_receipts WHERE order_id = $1 AND status <> 'REJECTED')`, orderID).Scan(&exists)
	return exists, err
}

// SupplierName resolves a supplier display name for printed documents.
func (r *Repository) SupplierName(ctx context.Context, supplierID uuid.UUID) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT name FROM suppliers WHERE id = $1`, supplierID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return name, nil
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

func scanRequisition(row pgx.Row) (Requisition, error) {
	var req Requisition
	err := row.Scan(&req.ID, &req.Number, &req.WarehouseID, &req.Status, &req.Notes,
		&req.RequestedBy, &req.ApprovedBy, &req.RejectionReason, &req.CreatedAt, &req.DecidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Requisition{}, ErrNotFound
		}
		return Requisition{}, err
	}
	return req, nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Number, &o.RequisitionID, &o.SupplierID, &o.WarehouseID, &o.Status, &o.Total,
		&o.OrderedBy, &o.ApprovedBy, &o.RejectionReason, &o.CreatedAt, &o.DecidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	return o, nil
}

func scanReceipt(row pgx.Row) (Receipt, error) {
	var g Receipt
	err := row.Scan(&g.ID, &g.Number, &g.OrderID, &g.WarehouseID, &g.Status, &g.Notes,
		&g.ReceivedBy, &g.ApprovedBy, &g.RejectionReason, &g.CreatedAt, &g.DecidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Receipt{}, ErrNotFound
		}
		return Receipt{}, err
	}
	return g, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
