package procurement

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockpile-ims/stockpile/internal/inventory"
	"github.com/stockpile-ims/stockpile/internal/shared"
)

type fakeStore struct {
	requisitions map[uuid.UUID]*Requisition
	orders       map[uuid.UUID]*Order
	receipts     map[uuid.UUID]*Receipt
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		requisitions: make(map[uuid.UUID]*Requisition),
		orders:       make(map[uuid.UUID]*Order),
		receipts:     make(map[uuid.UUID]*Receipt),
	}
}

func (f *fakeStore) ListRequisitions(context.Context, Filters) ([]RequisitionRow, int, error) {
	return nil, 0, nil
}

func (f *fakeStore) GetRequisition(_ context.Context, id uuid.UUID) (Requisition, error) {
	req, ok := f.requisitions[id]
	if !ok {
		return Requisition{}, ErrNotFound
	}
	return *req, nil
}

func (f *fakeStore) InsertRequisition(_ context.Context, _ pgx.Tx, req Requisition) (Requisition, error) {
	req.ID = uuid.New()
	req.Number = "PR-TEST"
	req.Status = PRSubmitted
	stored := req
	f.requisitions[req.ID] = &stored
	return req, nil
}

func (f *fakeStore) GetRequisitionForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (Requisition, error) {
	return f.GetRequisition(context.Background(), id)
}

func (f *fakeStore) DecideRequisition(_ context.Context, _ pgx.Tx, id uuid.UUID, status string, actorID int64, rejectionReason string) error {
	req, ok := f.requisitions[id]
	if !ok {
		return ErrNotFound
	}
	req.Status = status
	req.ApprovedBy = &actorID
	req.RejectionReason = rejectionReason
	return nil
}

func (f *fakeStore) ListOrders(context.Context, Filters) ([]OrderRow, int, error) {
	return nil, 0, nil
}

func (f *fakeStore) GetOrder(_ context.Context, id uuid.UUID) (Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return *order, nil
}

func (f *fakeStore) InsertOrder(_ context.Context, _ pgx.Tx, order Order) (Order, error) {
	for _, o := range f.orders {
		if o.RequisitionID == order.RequisitionID && o.Status != PORejected {
			return Order{}, ErrPOExists
		}
	}
	order.ID = uuid.New()
	order.Number = "PO-TEST"
	order.Status = POPending
	stored := order
	f.orders[order.ID] = &stored
	return order, nil
}

func (f *fakeStore) GetOrderForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (Order, error) {
	return f.GetOrder(context.Background(), id)
}

func (f *fakeStore) DecideOrder(_ context.Context, _ pgx.Tx, id uuid.UUID, status string, actorID int64, rejectionReason string) error {
	order, ok := f.orders[id]
	if !ok {
		return ErrNotFound
	}
	order.Status = status
	order.ApprovedBy = &actorID
	order.RejectionReason = rejectionReason
	return nil
}

func (f *fakeStore) MarkOrderReceived(_ context.Context, _ pgx.Tx, id uuid.UUID) error {
	order, ok := f.orders[id]
	if !ok {
		return ErrNotFound
	}
	order.Status = POReceived
	return nil
}

func (f *fakeStore) OrderExistsForRequisition(_ context.Context, _ pgx.Tx, requisitionID uuid.UUID) (bool, error) {
	for _, o := range f.orders {
		if o.RequisitionID == requisitionID && o.Status != PORejected {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ListReceipts(context.Context, Filters) ([]ReceiptRow, int, error) {
	return nil, 0, nil
}

func (f *fakeStore) GetReceipt(_ context.Context, id uuid.UUID) (Receipt, error) {
	receipt, ok := f.receipts[id]
	if !ok {
		return Receipt{}, ErrNotFound
	}
	return *receipt, nil
}

func (f *fakeStore) InsertReceipt(_ context.Context, _ pgx.Tx, receipt Receipt) (Receipt, error) {
	for _, g := range f.receipts {
		if g.OrderID == receipt.OrderID && g.Status != GRNRejected {
			return Receipt{}, ErrGRNExists
		}
	}
	receipt.ID = uuid.New()
	receipt.Number = "GRN-TEST"
	receipt.Status = GRNPending
	stored := receipt
	f.receipts[receipt.ID] = &stored
	return receipt, nil
}

func (f *fakeStore) GetReceiptForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (Receipt, error) {
	return f.GetReceipt(context.Background(), id)
}

func (f *fakeStore) DecideReceipt(_ context.Context, _ pgx.Tx, id uuid.UUID, status string, actorID int64, rejectionReason string) error {
	receipt, ok := f.receipts[id]
	if !ok {
		return ErrNotFound
	}
	receipt.Status = status
	receipt.ApprovedBy = &actorID
	receipt.RejectionReason = rejectionReason
	return nil
}

func (f *fakeStore) ReceiptExistsForOrder(_ context.Context, _ pgx.Tx, orderID uuid.UUID) (bool, error) {
	for _, g := range f.receipts {
		if g.OrderID == orderID && g.Status != GRNRejected {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) SupplierName(context.Context, uuid.UUID) (string, error) {
	return "Acme Supplies", nil
}

func (f *fakeStore) WarehouseName(context.Context, uuid.UUID) (string, error) {
	return "Main Warehouse", nil
}

type fakeStock struct {
	movements []inventory.Movement
}

func (f *fakeStock) ApplyMovement(_ context.Context, _ pgx.Tx, mv inventory.Movement) (inventory.Stock, error) {
	f.movements = append(f.movements, mv)
	return inventory.Stock{Quantity: mv.Change}, nil
}

type fakeApprovals struct {
	logs []shared.ApprovalLog
}

func (f *fakeApprovals) Record(_ context.Context, log shared.ApprovalLog) error {
	f.logs = append(f.logs, log)
	return nil
}

type fakeAudit struct {
	logs []shared.AuditLog
}

func (f *fakeAudit) Record(_ context.Context, log shared.AuditLog) error {
	f.logs = append(f.logs, log)
	return nil
}

type fakeIdem struct {
	keys map[string]bool
}

func (f *fakeIdem) CheckAndInsert(_ context.Context, key, _ string) error {
	if f.keys == nil {
		f.keys = make(map[string]bool)
	}
	if f.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	f.keys[key] = true
	return nil
}

func (f *fakeIdem) Delete(_ context.Context, key string) error {
	delete(f.keys, key)
	return nil
}

type fixture struct {
	store     *fakeStore
	stock     *fakeStock
	approvals *fakeApprovals
	audit     *fakeAudit
	svc       *Service
}

func newFixture() *fixture {
	store := newFakeStore()
	stock := &fakeStock{}
	approvals := &fakeApprovals{}
	audit := &fakeAudit{}
	svc := &Service{
		store:     store,
		stock:     stock,
		approvals: approvals,
		audit:     audit,
		idem:      &fakeIdem{},
		runTx: func(_ context.Context, fn func(pgx.Tx) error) error {
			return fn(nil)
		},
		logger: slog.Default(),
	}
	return &fixture{store: store, stock: stock, approvals: approvals, audit: audit, svc: svc}
}

func (f *fixture) approvedRequisition(t *testing.T) Requisition {
	t.Helper()
	req, err := f.svc.CreateRequisition(context.Background(), CreateRequisitionInput{
		WarehouseID: uuid.New(),
		Notes:       "restock fasteners",
		Lines:       []ReqLine{{ProductID: uuid.New(), Quantity: 50}},
		ActorID:     3,
	})
	require.NoError(t, err)
	approved, err := f.svc.ApproveRequisition(context.Background(), req.ID, 9)
	require.NoError(t, err)
	return approved
}

func (f *fixture) approvedOrder(t *testing.T) Order {
	t.Helper()
	req := f.approvedRequisition(t)
	order, err := f.svc.CreateOrderFromRequisition(context.Background(), CreateOrderInput{
		RequisitionID: req.ID,
		SupplierID:    uuid.New(),
		Lines: []OrderLineInput{
			{ProductID: req.Lines[0].ProductID, Quantity: 50, Rate: decimal.RequireFromString("2.40")},
		},
		ActorID: 3,
	})
	require.NoError(t, err)
	approved, err := f.svc.ApproveOrder(context.Background(), order.ID, 9)
	require.NoError(t, err)
	return approved
}

func TestRequisitionLifecycle(t *testing.T) {
	f := newFixture()

	_, err := f.svc.CreateRequisition(context.Background(), CreateRequisitionInput{ActorID: 3})
	assert.ErrorIs(t, err, ErrEmptyLines)

	req, err := f.svc.CreateRequisition(context.Background(), CreateRequisitionInput{
		WarehouseID: uuid.New(),
		Lines:       []ReqLine{{ProductID: uuid.New(), Quantity: 10}},
		ActorID:     3,
	})
	require.NoError(t, err)
	assert.Equal(t, PRSubmitted, req.Status)

	approved, err := f.svc.ApproveRequisition(context.Background(), req.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, PRApproved, approved.Status)

	_, err = f.svc.ApproveRequisition(context.Background(), req.ID, 9)
	assert.ErrorIs(t, err, ErrAlreadyDecided)

	require.Len(t, f.approvals.logs, 2)
	assert.Equal(t, shared.ApprovalSubmit, f.approvals.logs[0].Action)
	assert.Equal(t, shared.ApprovalApprove, f.approvals.logs[1].Action)
}

func TestRejectRequisitionRequiresReason(t *testing.T) {
	f := newFixture()
	req, err := f.svc.CreateRequisition(context.Background(), CreateRequisitionInput{
		WarehouseID: uuid.New(),
		Lines:       []ReqLine{{ProductID: uuid.New(), Quantity: 10}},
		ActorID:     3,
	})
	require.NoError(t, err)

	_, err = f.svc.RejectRequisition(context.Background(), req.ID, 9, "")
	assert.ErrorIs(t, err, ErrReasonEmpty)

	rejected, err := f.svc.RejectRequisition(context.Background(), req.ID, 9, "budget frozen")
	require.NoError(t, err)
	assert.Equal(t, PRRejected, rejected.Status)
}

func TestOrderRequiresApprovedRequisition(t *testing.T) {
	f := newFixture()
	req, err := f.svc.CreateRequisition(context.Background(), CreateRequisitionInput{
		WarehouseID: uuid.New(),
		Lines:       []ReqLine{{ProductID: uuid.New(), Quantity: 10}},
		ActorID:     3,
	})
	require.NoError(t, err)

	_, err = f.svc.CreateOrderFromRequisition(context.Background(), CreateOrderInput{
		RequisitionID: req.ID,
		SupplierID:    uuid.New(),
		Lines:         []OrderLineInput{{ProductID: uuid.New(), Quantity: 10, Rate: decimal.NewFromInt(1)}},
		ActorID:       3,
	})
	assert.ErrorIs(t, err, ErrPRNotApproved)
}

func TestOneOrderPerRequisition(t *testing.T) {
	f := newFixture()
	req := f.approvedRequisition(t)

	in := CreateOrderInput{
		RequisitionID: req.ID,
		SupplierID:    uuid.New(),
		Lines:         []OrderLineInput{{ProductID: uuid.New(), Quantity: 5, Rate: decimal.NewFromInt(3)}},
		ActorID:       3,
	}
	order, err := f.svc.CreateOrderFromRequisition(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "15", order.Total.String())

	_, err = f.svc.CreateOrderFromRequisition(context.Background(), in)
	assert.ErrorIs(t, err, ErrPOExists)

	// a rejected order frees the requisition for a new one
	_, err = f.svc.RejectOrder(context.Background(), order.ID, 9, "wrong supplier")
	require.NoError(t, err)
	_, err = f.svc.CreateOrderFromRequisition(context.Background(), in)
	require.NoError(t, err)
}

func TestOrderLineValidation(t *testing.T) {
	f := newFixture()
	req := f.approvedRequisition(t)

	_, err := f.svc.CreateOrderFromRequisition(context.Background(), CreateOrderInput{
		RequisitionID: req.ID,
		Lines:         []OrderLineInput{{ProductID: uuid.New(), Quantity: 0, Rate: decimal.NewFromInt(1)}},
	})
	assert.ErrorIs(t, err, ErrInvalidLine)

	_, err = f.svc.CreateOrderFromRequisition(context.Background(), CreateOrderInput{
		RequisitionID: req.ID,
		Lines:         []OrderLineInput{{ProductID: uuid.New(), Quantity: 1, Rate: decimal.NewFromInt(-2)}},
	})
	assert.ErrorIs(t, err, ErrNegativeRate)
}

func TestReceiptRequiresApprovedOrder(t *testing.T) {
	f := newFixture()
	req := f.approvedRequisition(t)
	order, err := f.svc.CreateOrderFromRequisition(context.Background(), CreateOrderInput{
		RequisitionID: req.ID,
		SupplierID:    uuid.New(),
		Lines:         []OrderLineInput{{ProductID: uuid.New(), Quantity: 5, Rate: decimal.NewFromInt(3)}},
		ActorID:       3,
	})
	require.NoError(t, err)

	_, err = f.svc.CreateReceipt(context.Background(), CreateReceiptInput{OrderID: order.ID, ActorID: 4})
	assert.ErrorIs(t, err, ErrPONotApproved)
}

func TestReceiptDefaultsToOrderedQuantities(t *testing.T) {
	f := newFixture()
	order := f.approvedOrder(t)

	receipt, err := f.svc.CreateReceipt(context.Background(), CreateReceiptInput{OrderID: order.ID, ActorID: 4})
	require.NoError(t, err)
	require.Len(t, receipt.Lines, 1)
	assert.Equal(t, int64(50), receipt.Lines[0].Quantity)
	assert.Equal(t, order.WarehouseID, receipt.WarehouseID)

	_, err = f.svc.CreateReceipt(context.Background(), CreateReceiptInput{OrderID: order.ID, ActorID: 4})
	assert.ErrorIs(t, err, ErrGRNExists)
}

func TestApproveReceiptPostsStockAndClosesOrder(t *testing.T) {
	f := newFixture()
	order := f.approvedOrder(t)

	receipt, err := f.svc.CreateReceipt(context.Background(), CreateReceiptInput{OrderID: order.ID, ActorID: 4})
	require.NoError(t, err)

	approved, err := f.svc.ApproveReceipt(context.Background(), receipt.ID, 9, "grn-key-1")
	require.NoError(t, err)
	assert.Equal(t, GRNApproved, approved.Status)

	require.Len(t, f.stock.movements, 1)
	mv := f.stock.movements[0]
	assert.Equal(t, inventory.MovementIn, mv.Type)
	assert.Equal(t, int64(50), mv.Change)
	assert.Equal(t, "GRN", mv.ReferenceType)
	assert.Equal(t, receipt.ID, mv.ReferenceID)
	assert.True(t, mv.AllowCreate)

	closed, err := f.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, POReceived, closed.Status)

	// double approval is refused, retried key as well
	_, err = f.svc.ApproveReceipt(context.Background(), receipt.ID, 9, "")
	assert.ErrorIs(t, err, ErrAlreadyDecided)
	_, err = f.svc.ApproveReceipt(context.Background(), receipt.ID, 9, "grn-key-1")
	assert.ErrorIs(t, err, shared.ErrIdempotencyConflict)
}

func TestRejectReceipt(t *testing.T) {
	f := newFixture()
	order := f.approvedOrder(t)

	receipt, err := f.svc.CreateReceipt(context.Background(), CreateReceiptInput{OrderID: order.ID, ActorID: 4})
	require.NoError(t, err)

	_, err = f.svc.RejectReceipt(context.Background(), receipt.ID, 9, "")
	assert.ErrorIs(t, err, ErrReasonEmpty)

	rejected, err := f.svc.RejectReceipt(context.Background(), receipt.ID, 9, "damaged on arrival")
	require.NoError(t, err)
	assert.Equal(t, GRNRejected, rejected.Status)
	assert.Empty(t, f.stock.movements)

	// order stays APPROVED and can take a fresh receipt
	current, err := f.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, POApproved, current.Status)
	_, err = f.svc.CreateReceipt(context.Background(), CreateReceiptInput{OrderID: order.ID, ActorID: 4})
	require.NoError(t, err)
}

type fakeReports struct {
	bumps int
}

func (f *fakeReports) Invalidate(context.Context) error {
	f.bumps++
	return nil
}

func TestApproveReceiptDropsCachedReports(t *testing.T) {
	f := newFixture()
	reports := &fakeReports{}
	f.svc.reports = reports

	order := f.approvedOrder(t)
	receipt, err := f.svc.CreateReceipt(context.Background(), CreateReceiptInput{OrderID: order.ID, ActorID: 4})
	require.NoError(t, err)
	assert.Equal(t, 0, reports.bumps)

	_, err = f.svc.ApproveReceipt(context.Background(), receipt.ID, 9, "")
	require.NoError(t, err)
	assert.Equal(t, 1, reports.bumps)
}
