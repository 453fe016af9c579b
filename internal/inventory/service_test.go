package inventory

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockpile-ims/stockpile/internal/shared"
)

type stockKey struct {
	product   uuid.UUID
	warehouse uuid.UUID
}

type fakeStore struct {
	stocks      map[stockKey]*Stock
	ledger      []LedgerEntry
	adjustments map[uuid.UUID]*Adjustment
	companies   map[uuid.UUID]uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		stocks:      make(map[stockKey]*Stock),
		adjustments: make(map[uuid.UUID]*Adjustment),
		companies:   make(map[uuid.UUID]uuid.UUID),
	}
}

func (f *fakeStore) ListStock(context.Context, StockFilters) ([]StockRow, int, error) {
	return nil, 0, nil
}

func (f *fakeStore) ListLedger(context.Context, LedgerFilters) ([]LedgerRow, int, error) {
	return nil, 0, nil
}

func (f *fakeStore) ListAdjustments(context.Context, AdjustmentFilters) ([]AdjustmentRow, int, error) {
	return nil, 0, nil
}

func (f *fakeStore) GetAdjustment(_ context.Context, id uuid.UUID) (Adjustment, error) {
	adj, ok := f.adjustments[id]
	if !ok {
		return Adjustment{}, ErrNotFound
	}
	return *adj, nil
}

func (f *fakeStore) GetStockForUpdate(_ context.Context, _ pgx.Tx, productID, warehouseID uuid.UUID) (Stock, error) {
	s, ok := f.stocks[stockKey{productID, warehouseID}]
	if !ok {
		return Stock{}, ErrNotFound
	}
	return *s, nil
}

func (f *fakeStore) CreateStock(_ context.Context, _ pgx.Tx, productID, warehouseID uuid.UUID) (Stock, error) {
	s := &Stock{ID: uuid.New(), ProductID: productID, WarehouseID: warehouseID}
	f.stocks[stockKey{productID, warehouseID}] = s
	return *s, nil
}

func (f *fakeStore) UpdateStockQuantity(_ context.Context, _ pgx.Tx, stockID uuid.UUID, quantity int64) error {
	for _, s := range f.stocks {
		if s.ID == stockID {
			s.Quantity = quantity
			s.Version++
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeStore) InsertLedger(_ context.Context, _ pgx.Tx, e LedgerEntry) error {
	f.ledger = append(f.ledger, e)
	return nil
}

func (f *fakeStore) WarehouseCompany(_ context.Context, _ pgx.Tx, warehouseID uuid.UUID) (uuid.UUID, error) {
	company, ok := f.companies[warehouseID]
	if !ok {
		return uuid.Nil, ErrNotFound
	}
	return company, nil
}

func (f *fakeStore) InsertAdjustment(_ context.Context, adj Adjustment) (Adjustment, error) {
	adj.ID = uuid.New()
	adj.Status = AdjustmentPending
	stored := adj
	f.adjustments[adj.ID] = &stored
	return adj, nil
}

func (f *fakeStore) GetAdjustmentForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (Adjustment, error) {
	adj, ok := f.adjustments[id]
	if !ok {
		return Adjustment{}, ErrNotFound
	}
	return *adj, nil
}

func (f *fakeStore) DecideAdjustment(_ context.Context, _ pgx.Tx, id uuid.UUID, status string, decidedBy int64, rejectionReason string) error {
	adj, ok := f.adjustments[id]
	if !ok {
		return ErrNotFound
	}
	adj.Status = status
	adj.ApprovedBy = &decidedBy
	adj.RejectionReason = rejectionReason
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

func newTestService(store *fakeStore, audit *fakeAudit, idem *fakeIdem) *Service {
	return &Service{
		store: store,
		runTx: func(_ context.Context, fn func(pgx.Tx) error) error {
			return fn(nil)
		},
		audit:  audit,
		idem:   idem,
		logger: slog.Default(),
	}
}

func TestStockInCreatesBalanceAndLedger(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeAudit{}, &fakeIdem{})

	productID := uuid.New()
	warehouseID := uuid.New()

	stock, err := svc.StockIn(context.Background(), StockInInput{
		ProductID:   productID,
		WarehouseID: warehouseID,
		Quantity:    25,
		Reason:      "initial receipt",
		ActorID:     7,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(25), stock.Quantity)

	require.Len(t, store.ledger, 1)
	entry := store.ledger[0]
	assert.Equal(t, MovementIn, entry.Type)
	assert.Equal(t, int64(25), entry.Change)
	assert.Equal(t, int64(25), entry.BalanceAfter)
	assert.Equal(t, int64(7), entry.CreatedBy)
}

func TestStockInRejectsNonPositiveQuantity(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeAudit{}, &fakeIdem{})

	_, err := svc.StockIn(context.Background(), StockInInput{Quantity: 0})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.StockIn(context.Background(), StockInInput{Quantity: -3})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestStockOutInsufficientBalance(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeAudit{}, &fakeIdem{})

	productID := uuid.New()
	warehouseID := uuid.New()
	_, err := svc.StockIn(context.Background(), StockInInput{
		ProductID: productID, WarehouseID: warehouseID, Quantity: 10, ActorID: 1,
	})
	require.NoError(t, err)

	_, err = svc.StockOut(context.Background(), StockOutInput{
		ProductID: productID, WarehouseID: warehouseID, Quantity: 11, ActorID: 1,
	})
	assert.ErrorIs(t, err, ErrInsufficientStock)

	stock, err := svc.StockOut(context.Background(), StockOutInput{
		ProductID: productID, WarehouseID: warehouseID, Quantity: 4, ActorID: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(6), stock.Quantity)
}

func TestStockOutUnknownStock(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeAudit{}, &fakeIdem{})

	_, err := svc.StockOut(context.Background(), StockOutInput{
		ProductID: uuid.New(), WarehouseID: uuid.New(), Quantity: 1, ActorID: 1,
	})
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestBulkStockInSharesReference(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeAudit{}, &fakeIdem{})

	lines := []BulkStockInLine{
		{ProductID: uuid.New(), WarehouseID: uuid.New(), Quantity: 5},
		{ProductID: uuid.New(), WarehouseID: uuid.New(), Quantity: 8},
	}
	stocks, err := svc.BulkStockIn(context.Background(), lines, 2)
	require.NoError(t, err)
	require.Len(t, stocks, 2)

	require.Len(t, store.ledger, 2)
	assert.Equal(t, store.ledger[0].ReferenceID, store.ledger[1].ReferenceID)
	assert.Equal(t, "BULK", store.ledger[0].ReferenceType)
}

func TestTransferGuards(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeAudit{}, &fakeIdem{})

	productID := uuid.New()
	whA := uuid.New()
	whB := uuid.New()
	companyA := uuid.New()
	store.companies[whA] = companyA
	store.companies[whB] = uuid.New()

	_, _, err := svc.Transfer(context.Background(), TransferInput{
		ProductID: productID, FromWarehouseID: whA, ToWarehouseID: whA, Quantity: 1, ActorID: 1,
	})
	assert.ErrorIs(t, err, ErrSameWarehouse)

	_, _, err = svc.Transfer(context.Background(), TransferInput{
		ProductID: productID, FromWarehouseID: whA, ToWarehouseID: whB, Quantity: 1, ActorID: 1,
	})
	assert.ErrorIs(t, err, ErrCrossCompany)
}

func TestTransferMovesStockAndWritesPair(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeAudit{}, &fakeIdem{})

	productID := uuid.New()
	whA := uuid.New()
	whB := uuid.New()
	company := uuid.New()
	store.companies[whA] = company
	store.companies[whB] = company

	_, err := svc.StockIn(context.Background(), StockInInput{
		ProductID: productID, WarehouseID: whA, Quantity: 20, ActorID: 1,
	})
	require.NoError(t, err)

	src, dst, err := svc.Transfer(context.Background(), TransferInput{
		ProductID: productID, FromWarehouseID: whA, ToWarehouseID: whB, Quantity: 12, Reason: "rebalance", ActorID: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8), src.Quantity)
	assert.Equal(t, int64(12), dst.Quantity)

	// stock-in entry plus the transfer pair
	require.Len(t, store.ledger, 3)
	out := store.ledger[1]
	in := store.ledger[2]
	assert.Equal(t, MovementTransferOut, out.Type)
	assert.Equal(t, MovementTransferIn, in.Type)
	assert.Equal(t, int64(-12), out.Change)
	assert.Equal(t, int64(12), in.Change)
	assert.Equal(t, dst.ID, out.ReferenceID)
	assert.Equal(t, src.ID, in.ReferenceID)
}

func TestTransferInsufficientSource(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeAudit{}, &fakeIdem{})

	productID := uuid.New()
	whA := uuid.New()
	whB := uuid.New()
	company := uuid.New()
	store.companies[whA] = company
	store.companies[whB] = company

	_, _, err := svc.Transfer(context.Background(), TransferInput{
		ProductID: productID, FromWarehouseID: whA, ToWarehouseID: whB, Quantity: 5, ActorID: 1,
	})
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestAdjustmentLifecycle(t *testing.T) {
	store := newFakeStore()
	audit := &fakeAudit{}
	svc := newTestService(store, audit, &fakeIdem{})

	productID := uuid.New()
	warehouseID := uuid.New()
	_, err := svc.StockIn(context.Background(), StockInInput{
		ProductID: productID, WarehouseID: warehouseID, Quantity: 30, ActorID: 1,
	})
	require.NoError(t, err)

	adj, err := svc.RequestAdjustment(context.Background(), Adjustment{
		ProductID:   productID,
		WarehouseID: warehouseID,
		Delta:       -5,
		Reason:      "damaged goods",
		RequestedBy: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, AdjustmentPending, adj.Status)

	// balance untouched before approval
	stock, err := store.GetStockForUpdate(context.Background(), nil, productID, warehouseID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), stock.Quantity)

	decided, err := svc.ApproveAdjustment(context.Background(), adj.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, AdjustmentApproved, decided.Status)

	stock, err = store.GetStockForUpdate(context.Background(), nil, productID, warehouseID)
	require.NoError(t, err)
	assert.Equal(t, int64(25), stock.Quantity)

	_, err = svc.ApproveAdjustment(context.Background(), adj.ID, 9)
	assert.ErrorIs(t, err, ErrAlreadyDecided)

	require.NotEmpty(t, audit.logs)
	assert.Equal(t, "stock_adjustment", audit.logs[0].Entity)
}

func TestAdjustmentApproveInsufficientStock(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeAudit{}, &fakeIdem{})

	productID := uuid.New()
	warehouseID := uuid.New()
	_, err := svc.StockIn(context.Background(), StockInInput{
		ProductID: productID, WarehouseID: warehouseID, Quantity: 2, ActorID: 1,
	})
	require.NoError(t, err)

	adj, err := svc.RequestAdjustment(context.Background(), Adjustment{
		ProductID: productID, WarehouseID: warehouseID, Delta: -10, Reason: "count", RequestedBy: 1,
	})
	require.NoError(t, err)

	_, err = svc.ApproveAdjustment(context.Background(), adj.ID, 2)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	// still pending after the failed apply
	current, err := store.GetAdjustment(context.Background(), adj.ID)
	require.NoError(t, err)
	assert.Equal(t, AdjustmentPending, current.Status)
}

func TestRejectAdjustmentRequiresReason(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeAudit{}, &fakeIdem{})

	adj, err := svc.RequestAdjustment(context.Background(), Adjustment{
		ProductID: uuid.New(), WarehouseID: uuid.New(), Delta: 3, Reason: "recount", RequestedBy: 1,
	})
	require.NoError(t, err)

	_, err = svc.RejectAdjustment(context.Background(), adj.ID, 2, "  ")
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	decided, err := svc.RejectAdjustment(context.Background(), adj.ID, 2, "no evidence of loss")
	require.NoError(t, err)
	assert.Equal(t, AdjustmentRejected, decided.Status)
	assert.Equal(t, "no evidence of loss", decided.RejectionReason)
}

func TestRequestAdjustmentValidation(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeAudit{}, &fakeIdem{})

	_, err := svc.RequestAdjustment(context.Background(), Adjustment{Delta: 0, Reason: "x"})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.RequestAdjustment(context.Background(), Adjustment{Delta: 1, Reason: " "})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestStockInIdempotencyKey(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeAudit{}, &fakeIdem{})

	productID := uuid.New()
	warehouseID := uuid.New()
	in := StockInInput{
		ProductID: productID, WarehouseID: warehouseID, Quantity: 5, ActorID: 1,
		IdempotencyKey: "receipt-42",
	}

	_, err := svc.StockIn(context.Background(), in)
	require.NoError(t, err)

	_, err = svc.StockIn(context.Background(), in)
	assert.ErrorIs(t, err, shared.ErrIdempotencyConflict)

	stock, err := store.GetStockForUpdate(context.Background(), nil, productID, warehouseID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stock.Quantity)
}

func TestFailedPostingReleasesIdempotencyKey(t *testing.T) {
	store := newFakeStore()
	idem := &fakeIdem{}
	svc := newTestService(store, &fakeAudit{}, idem)

	out := StockOutInput{
		ProductID: uuid.New(), WarehouseID: uuid.New(), Quantity: 5, ActorID: 1,
		IdempotencyKey: "issue-9",
	}

	_, err := svc.StockOut(context.Background(), out)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	// key released, a retry claims it again
	_, err = svc.StockOut(context.Background(), out)
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

type fakeReports struct {
	bumps int
}

func (f *fakeReports) Invalidate(context.Context) error {
	f.bumps++
	return nil
}

func TestPostingsDropCachedReports(t *testing.T) {
	reports := &fakeReports{}
	svc := newTestService(newFakeStore(), &fakeAudit{}, &fakeIdem{})
	svc.reports = reports

	productID := uuid.New()
	warehouseID := uuid.New()

	_, err := svc.StockIn(context.Background(), StockInInput{ProductID: productID, WarehouseID: warehouseID, Quantity: 10, ActorID: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, reports.bumps)

	_, err = svc.StockOut(context.Background(), StockOutInput{ProductID: productID, WarehouseID: warehouseID, Quantity: 4, ActorID: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, reports.bumps)

	// a refused posting leaves the cache alone
	_, err = svc.StockOut(context.Background(), StockOutInput{ProductID: productID, WarehouseID: warehouseID, Quantity: 999, ActorID: 5})
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 2, reports.bumps)
}

func TestApproveAdjustmentDropsCachedReports(t *testing.T) {
	store := newFakeStore()
	reports := &fakeReports{}
	svc := newTestService(store, &fakeAudit{}, &fakeIdem{})
	svc.reports = reports

	adj, err := svc.RequestAdjustment(context.Background(), Adjustment{
		ProductID:   uuid.New(),
		WarehouseID: uuid.New(),
		Delta:       7,
		Reason:      "cycle count",
		RequestedBy: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, reports.bumps)

	_, err = svc.ApproveAdjustment(context.Background(), adj.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, 1, reports.bumps)
}
