package issues

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockpile-ims/stockpile/internal/inventory"
	"github.com/stockpile-ims/stockpile/internal/shared"
)

type fakeStore struct {
	slips  map[uuid.UUID]*Slip
	passes map[uuid.UUID]Pass
	seq    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		slips:  make(map[uuid.UUID]*Slip),
		passes: make(map[uuid.UUID]Pass),
	}
}

func (f *fakeStore) List(context.Context, Filters) ([]SlipRow, int, error) {
	return nil, 0, nil
}

func (f *fakeStore) Get(_ context.Context, id uuid.UUID) (Slip, error) {
	slip, ok := f.slips[id]
	if !ok {
		return Slip{}, ErrNotFound
	}
	return *slip, nil
}

func (f *fakeStore) Insert(_ context.Context, _ pgx.Tx, slip Slip) (Slip, error) {
	f.seq++
	slip.ID = uuid.New()
	slip.Number = "ISS-TEST"
	slip.Status = StatusPending
	for i := range slip.Lines {
		slip.Lines[i].ID = uuid.New()
		slip.Lines[i].SlipID = slip.ID
	}
	stored := slip
	f.slips[slip.ID] = &stored
	return slip, nil
}

func (f *fakeStore) GetForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (Slip, error) {
	slip, ok := f.slips[id]
	if !ok {
		return Slip{}, ErrNotFound
	}
	return *slip, nil
}

func (f *fakeStore) Decide(_ context.Context, _ pgx.Tx, id uuid.UUID, status string, actorID int64, rejectionReason string) error {
	slip, ok := f.slips[id]
	if !ok {
		return ErrNotFound
	}
	slip.Status = status
	if status == StatusApproved {
		slip.ApprovedBy = &actorID
	} else {
		slip.RejectedBy = &actorID
		slip.RejectionReason = rejectionReason
	}
	return nil
}

func (f *fakeStore) MarkIssued(_ context.Context, _ pgx.Tx, id uuid.UUID) error {
	slip, ok := f.slips[id]
	if !ok {
		return ErrNotFound
	}
	slip.Status = StatusIssued
	return nil
}

func (f *fakeStore) InsertPass(_ context.Context, _ pgx.Tx, pass Pass) (Pass, error) {
	pass.ID = uuid.New()
	pass.Number = "IP-TEST"
	f.passes[pass.SlipID] = pass
	return pass, nil
}

func (f *fakeStore) PassBySlip(_ context.Context, slipID uuid.UUID) (Pass, error) {
	pass, ok := f.passes[slipID]
	if !ok {
		return Pass{}, ErrNotFound
	}
	return pass, nil
}

func (f *fakeStore) WarehouseName(context.Context, uuid.UUID) (string, error) {
	return "Main Warehouse", nil
}

type fakeStock struct {
	movements []inventory.Movement
	failNext  error
}

func (f *fakeStock) ApplyMovement(_ context.Context, _ pgx.Tx, mv inventory.Movement) (inventory.Stock, error) {
	if f.failNext != nil {
		return inventory.Stock{}, f.failNext
	}
	f.movements = append(f.movements, mv)
	return inventory.Stock{Quantity: 100 + mv.Change}, nil
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

func newTestService(store *fakeStore, stock *fakeStock, approvals *fakeApprovals, audit *fakeAudit) *Service {
	return &Service{
		store:     store,
		stock:     stock,
		approvals: approvals,
		audit:     audit,
		runTx: func(_ context.Context, fn func(pgx.Tx) error) error {
			return fn(nil)
		},
		logger: slog.Default(),
	}
}

func validInput() CreateInput {
	return CreateInput{
		Type:        TypeProduction,
		WarehouseID: uuid.New(),
		Purpose:     "line 2 assembly",
		Lines: []Line{
			{ProductID: uuid.New(), Quantity: 4},
			{ProductID: uuid.New(), Quantity: 2},
		},
		ActorID: 5,
	}
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeStock{}, &fakeApprovals{}, &fakeAudit{})

	in := validInput()
	in.Type = "BOGUS"
	_, err := svc.Create(context.Background(), in)
	assert.ErrorIs(t, err, ErrInvalidType)

	in = validInput()
	in.Lines = nil
	_, err = svc.Create(context.Background(), in)
	assert.ErrorIs(t, err, ErrEmptyLines)

	in = validInput()
	in.Lines[0].Quantity = 0
	_, err = svc.Create(context.Background(), in)
	assert.ErrorIs(t, err, ErrInvalidLine)
}

func TestCreateRecordsSubmit(t *testing.T) {
	approvals := &fakeApprovals{}
	svc := newTestService(newFakeStore(), &fakeStock{}, approvals, &fakeAudit{})

	slip, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, StatusPending, slip.Status)

	require.Len(t, approvals.logs, 1)
	assert.Equal(t, shared.ApprovalSubmit, approvals.logs[0].Action)
	assert.Equal(t, "issue_slip", approvals.logs[0].Module)
}

func TestApproveOnlyFromPending(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeStock{}, &fakeApprovals{}, &fakeAudit{})

	slip, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	approved, err := svc.Approve(context.Background(), slip.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)

	_, err = svc.Approve(context.Background(), slip.ID, 9)
	assert.ErrorIs(t, err, ErrNotPending)

	_, err = svc.Reject(context.Background(), slip.ID, 9, "too late")
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestRejectRequiresReason(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeStock{}, &fakeApprovals{}, &fakeAudit{})

	slip, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	_, err = svc.Reject(context.Background(), slip.ID, 9, " ")
	assert.ErrorIs(t, err, ErrReasonEmpty)

	rejected, err := svc.Reject(context.Background(), slip.ID, 9, "wrong warehouse")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	assert.Equal(t, "wrong warehouse", rejected.RejectionReason)
}

func TestExecuteDeductsStockAndCreatesPass(t *testing.T) {
	store := newFakeStore()
	stock := &fakeStock{}
	audit := &fakeAudit{}
	svc := newTestService(store, stock, &fakeApprovals{}, audit)

	in := validInput()
	slip, err := svc.Create(context.Background(), in)
	require.NoError(t, err)

	// execute before approval is refused
	_, _, err = svc.Execute(context.Background(), slip.ID, 9, "")
	assert.ErrorIs(t, err, ErrNotApproved)

	_, err = svc.Approve(context.Background(), slip.ID, 9)
	require.NoError(t, err)

	issued, pass, err := svc.Execute(context.Background(), slip.ID, 9, "")
	require.NoError(t, err)
	assert.Equal(t, StatusIssued, issued.Status)
	assert.NotEmpty(t, pass.Number)

	require.Len(t, stock.movements, 2)
	assert.Equal(t, inventory.MovementIssue, stock.movements[0].Type)
	assert.Equal(t, int64(-4), stock.movements[0].Change)
	assert.Equal(t, "ISSUE_SLIP", stock.movements[0].ReferenceType)
	assert.Equal(t, slip.ID, stock.movements[0].ReferenceID)

	// second execute is refused
	_, _, err = svc.Execute(context.Background(), slip.ID, 9, "")
	assert.ErrorIs(t, err, ErrAlreadyIssued)

	require.NotEmpty(t, audit.logs)
	assert.Equal(t, "issue_slip", audit.logs[0].Entity)
}

func TestExecuteFailsWhenStockShort(t *testing.T) {
	store := newFakeStore()
	stock := &fakeStock{failNext: inventory.ErrInsufficientStock}
	svc := newTestService(store, stock, &fakeApprovals{}, &fakeAudit{})

	slip, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), slip.ID, 9)
	require.NoError(t, err)

	_, _, err = svc.Execute(context.Background(), slip.ID, 9, "")
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
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

type fakeReports struct {
	bumps int
}

func (f *fakeReports) Invalidate(context.Context) error {
	f.bumps++
	return nil
}

func approvedSlip(t *testing.T, svc *Service) Slip {
	t.Helper()
	slip, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), slip.ID, 9)
	require.NoError(t, err)
	return slip
}

func TestExecuteHonoursIdempotencyKey(t *testing.T) {
	stock := &fakeStock{}
	svc := newTestService(newFakeStore(), stock, &fakeApprovals{}, &fakeAudit{})
	svc.idem = &fakeIdem{}
	slip := approvedSlip(t, svc)

	_, _, err := svc.Execute(context.Background(), slip.ID, 9, "issue-key-1")
	require.NoError(t, err)
	require.Len(t, stock.movements, 2)

	// a retried request with the same key is refused before touching stock
	_, _, err = svc.Execute(context.Background(), slip.ID, 9, "issue-key-1")
	assert.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	assert.Len(t, stock.movements, 2)
}

func TestExecuteReleasesKeyOnFailure(t *testing.T) {
	stock := &fakeStock{failNext: inventory.ErrInsufficientStock}
	idem := &fakeIdem{}
	svc := newTestService(newFakeStore(), stock, &fakeApprovals{}, &fakeAudit{})
	svc.idem = idem
	slip := approvedSlip(t, svc)

	_, _, err := svc.Execute(context.Background(), slip.ID, 9, "issue-key-2")
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	assert.False(t, idem.keys["issue-key-2"])

	// once stock is available the client may retry with the same key
	stock.failNext = nil
	_, _, err = svc.Execute(context.Background(), slip.ID, 9, "issue-key-2")
	require.NoError(t, err)
}

func TestExecuteDropsCachedReports(t *testing.T) {
	reports := &fakeReports{}
	svc := newTestService(newFakeStore(), &fakeStock{}, &fakeApprovals{}, &fakeAudit{})
	svc.reports = reports
	slip := approvedSlip(t, svc)

	_, _, err := svc.Execute(context.Background(), slip.ID, 9, "")
	require.NoError(t, err)
	assert.Equal(t, 1, reports.bumps)

	// a refused re-execute leaves the cache alone
	_, _, err = svc.Execute(context.Background(), slip.ID, 9, "")
	assert.ErrorIs(t, err, ErrAlreadyIssued)
	assert.Equal(t, 1, reports.bumps)
}
