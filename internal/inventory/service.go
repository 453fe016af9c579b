package inventory

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockpile-ims/stockpile/internal/platform/db"
	"github.com/stockpile-ims/stockpile/internal/shared"
)

// Store abstracts the inventory repository for the service layer.
type Store interface {
	ListStock(ctx context.Context, f StockFilters) ([]StockRow, int, error)
	ListLedger(ctx context.Context, f LedgerFilters) ([]LedgerRow, int, error)
	ListAdjustments(ctx context.Context, f AdjustmentFilters) ([]AdjustmentRow, int, error)
	GetAdjustment(ctx context.Context, id uuid.UUID) (Adjustment, error)

	GetStockForUpdate(ctx context.Context, tx pgx.Tx, productID, warehouseID uuid.UUID) (Stock, error)
	CreateStock(ctx context.Context, tx pgx.Tx, productID, warehouseID uuid.UUID) (Stock, error)
	UpdateStockQuantity(ctx context.Context, tx pgx.Tx, stockID uuid.UUID, quantity int64) error
	InsertLedger(ctx context.Context, tx pgx.Tx, e LedgerEntry) error
	WarehouseCompany(ctx context.Context, tx pgx.Tx, warehouseID uuid.UUID) (uuid.UUID, error)

	InsertAdjustment(ctx context.Context, adj Adjustment) (Adjustment, error)
	GetAdjustmentForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (Adjustment, error)
	DecideAdjustment(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, decidedBy int64, rejectionReason string) error
}

type auditSink interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

type idempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

type reportCache interface {
	Invalidate(ctx context.Context) error
}

// Service posts stock movements and manages adjustments.
type Service struct {
	store   Store
	runTx   func(ctx context.Context, fn func(pgx.Tx) error) error
	audit   auditSink
	idem    idempotencyStore
	reports reportCache
	logger  *slog.Logger
}

// NewService constructs the inventory service.
func NewService(pool *pgxpool.Pool, store Store, audit auditSink, idem idempotencyStore, reports reportCache, logger *slog.Logger) *Service {
	return &Service{
		store: store,
		runTx: func(ctx context.Context, fn func(pgx.Tx) error) error {
			return db.WithTx(ctx, pool, fn)
		},
		audit:   audit,
		idem:    idem,
		reports: reports,
		logger:  logger,
	}
}

// bumpReportCache drops cached reports after a committed stock change so the
// next report request sees fresh balances.
func (s *Service) bumpReportCache(ctx context.Context) {
	if s.reports == nil {
		return
	}
	if err := s.reports.Invalidate(ctx); err != nil {
		s.logger.Warn("invalidate report cache", slog.Any("error", err))
	}
}

// StockInInput describes a single inbound posting.
type StockInInput struct {
	ProductID      uuid.UUID
	WarehouseID    uuid.UUID
	Quantity       int64
	Reason         string
	ActorID        int64
	IdempotencyKey string
}

// StockOutInput describes a single outbound posting.
type StockOutInput struct {
	ProductID      uuid.UUID
	WarehouseID    uuid.UUID
	Quantity       int64
	Reason         string
	ActorID        int64
	IdempotencyKey string
}

// TransferInput moves stock between two warehouses of the same company.
type TransferInput struct {
	ProductID       uuid.UUID
	FromWarehouseID uuid.UUID
	ToWarehouseID   uuid.UUID
	Quantity        int64
	Reason          string
	ActorID         int64
	IdempotencyKey  string
}

// BulkStockInLine is one line of a bulk receipt. All lines of a call share a
// reference ID.
type BulkStockInLine struct {
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	Quantity    int64
	Reason      string
}

func (s *Service) ListStock(ctx context.Context, f StockFilters) ([]StockRow, int, error) {
	return s.store.ListStock(ctx, f)
}

func (s *Service) ListLedger(ctx context.Context, f LedgerFilters) ([]LedgerRow, int, error) {
	return s.store.ListLedger(ctx, f)
}

func (s *Service) ListAdjustments(ctx context.Context, f AdjustmentFilters) ([]AdjustmentRow, int, error) {
	return s.store.ListAdjustments(ctx, f)
}

func (s *Service) GetAdjustment(ctx context.Context, id uuid.UUID) (Adjustment, error) {
	return s.store.GetAdjustment(ctx, id)
}

// ApplyMovement posts one stock change inside the caller's transaction and
// appends the matching ledger entry. Other modules reuse this for issue and
// goods-receipt postings.
func (s *Service) ApplyMovement(ctx context.Context, tx pgx.Tx, mv Movement) (Stock, error) {
	if mv.Change == 0 {
		return Stock{}, ErrInvalidQuantity
	}

	stock, err := s.store.GetStockForUpdate(ctx, tx, mv.ProductID, mv.WarehouseID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return Stock{}, err
		}
		if mv.Change < 0 || !mv.AllowCreate {
			if mv.Change < 0 {
				return Stock{}, ErrInsufficientStock
			}
			return Stock{}, err
		}
		stock, err = s.store.CreateStock(ctx, tx, mv.ProductID, mv.WarehouseID)
		if err != nil {
			return Stock{}, err
		}
	}

	next := stock.Quantity + mv.Change
	if next < 0 {
		return Stock{}, ErrInsufficientStock
	}
	if err := s.store.UpdateStockQuantity(ctx, tx, stock.ID, next); err != nil {
		return Stock{}, err
	}

	entry := LedgerEntry{
		ID:            uuid.New(),
		StockID:       stock.ID,
		ProductID:     mv.ProductID,
		WarehouseID:   mv.WarehouseID,
		Type:          mv.Type,
		Change:        mv.Change,
		BalanceAfter:  next,
		ReferenceType: mv.ReferenceType,
		ReferenceID:   mv.ReferenceID,
		Reason:        mv.Reason,
		CreatedBy:     mv.ActorID,
	}
	if err := s.store.InsertLedger(ctx, tx, entry); err != nil {
		return Stock{}, err
	}

	stock.Quantity = next
	stock.Version++
	return stock, nil
}

func (s *Service) StockIn(ctx context.Context, in StockInInput) (Stock, error) {
	if in.Quantity <= 0 {
		return Stock{}, ErrInvalidQuantity
	}
	release, err := s.claimKey(ctx, in.IdempotencyKey)
	if err != nil {
		return Stock{}, err
	}

	var stock Stock
	err = s.runTx(ctx, func(tx pgx.Tx) error {
		var txErr error
		stock, txErr = s.ApplyMovement(ctx, tx, Movement{
			ProductID:   in.ProductID,
			WarehouseID: in.WarehouseID,
			Change:      in.Quantity,
			Type:        MovementIn,
			Reason:      in.Reason,
			ActorID:     in.ActorID,
			AllowCreate: true,
		})
		return txErr
	})
	if err != nil {
		release(ctx)
		return Stock{}, err
	}
	s.bumpReportCache(ctx)
	return stock, nil
}

func (s *Service) BulkStockIn(ctx context.Context, lines []BulkStockInLine, actorID int64) ([]Stock, error) {
	if len(lines) == 0 {
		return nil, ErrInvalidQuantity
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
	}

	batchID := uuid.New()
	results := make([]Stock, 0, len(lines))
	err := s.runTx(ctx, func(tx pgx.Tx) error {
		for _, line := range lines {
			stock, err := s.ApplyMovement(ctx, tx, Movement{
				ProductID:     line.ProductID,
				WarehouseID:   line.WarehouseID,
				Change:        line.Quantity,
				Type:          MovementIn,
				ReferenceType: "BULK",
				ReferenceID:   batchID,
				Reason:        line.Reason,
				ActorID:       actorID,
				AllowCreate:   true,
			})
			if err != nil {
				return err
			}
			results = append(results, stock)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.bumpReportCache(ctx)
	return results, nil
}

func (s *Service) StockOut(ctx context.Context, in StockOutInput) (Stock, error) {
	if in.Quantity <= 0 {
		return Stock{}, ErrInvalidQuantity
	}
	release, err := s.claimKey(ctx, in.IdempotencyKey)
	if err != nil {
		return Stock{}, err
	}

	var stock Stock
	err = s.runTx(ctx, func(tx pgx.Tx) error {
		var txErr error
		stock, txErr = s.ApplyMovement(ctx, tx, Movement{
			ProductID:   in.ProductID,
			WarehouseID: in.WarehouseID,
			Change:      -in.Quantity,
			Type:        MovementOut,
			Reason:      in.Reason,
			ActorID:     in.ActorID,
		})
		return txErr
	})
	if err != nil {
		release(ctx)
		return Stock{}, err
	}
	s.bumpReportCache(ctx)
	return stock, nil
}

// Transfer posts a TRANSFER_OUT/TRANSFER_IN pair. Each ledger entry
// references the peer warehouse's stock row.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (Stock, Stock, error) {
	if in.Quantity <= 0 {
		return Stock{}, Stock{}, ErrInvalidQuantity
	}
	if in.FromWarehouseID == in.ToWarehouseID {
		return Stock{}, Stock{}, ErrSameWarehouse
	}
	release, err := s.claimKey(ctx, in.IdempotencyKey)
	if err != nil {
		return Stock{}, Stock{}, err
	}

	var src, dst Stock
	err = s.runTx(ctx, func(tx pgx.Tx) error {
		srcCompany, err := s.store.WarehouseCompany(ctx, tx, in.FromWarehouseID)
		if err != nil {
			return err
		}
		dstCompany, err := s.store.WarehouseCompany(ctx, tx, in.ToWarehouseID)
		if err != nil {
			return err
		}
		if srcCompany != dstCompany {
			return ErrCrossCompany
		}

		src, err = s.store.GetStockForUpdate(ctx, tx, in.ProductID, in.FromWarehouseID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrInsufficientStock
			}
			return err
		}
		if src.Quantity < in.Quantity {
			return ErrInsufficientStock
		}

		dst, err = s.store.GetStockForUpdate(ctx, tx, in.ProductID, in.ToWarehouseID)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				return err
			}
			dst, err = s.store.CreateStock(ctx, tx, in.ProductID, in.ToWarehouseID)
			if err != nil {
				return err
			}
		}

		srcNext := src.Quantity - in.Quantity
		dstNext := dst.Quantity + in.Quantity
		if err := s.store.UpdateStockQuantity(ctx, tx, src.ID, srcNext); err != nil {
			return err
		}
		if err := s.store.UpdateStockQuantity(ctx, tx, dst.ID, dstNext); err != nil {
			return err
		}

		outEntry := LedgerEntry{
			ID:            uuid.New(),
			StockID:       src.ID,
			ProductID:     in.ProductID,
			WarehouseID:   in.FromWarehouseID,
			Type:          MovementTransferOut,
			Change:        -in.Quantity,
			BalanceAfter:  srcNext,
			ReferenceType: "TRANSFER",
			ReferenceID:   dst.ID,
			Reason:        in.Reason,
			CreatedBy:     in.ActorID,
		}
		inEntry := LedgerEntry{
			ID:            uuid.New(),
			StockID:       dst.ID,
			ProductID:     in.ProductID,
			WarehouseID:   in.ToWarehouseID,
			Type:          MovementTransferIn,
			Change:        in.Quantity,
			BalanceAfter:  dstNext,
			ReferenceType: "TRANSFER",
			ReferenceID:   src.ID,
			Reason:        in.Reason,
			CreatedBy:     in.ActorID,
		}
		if err := s.store.InsertLedger(ctx, tx, outEntry); err != nil {
			return err
		}
		if err := s.store.InsertLedger(ctx, tx, inEntry); err != nil {
			return err
		}

		src.Quantity = srcNext
		src.Version++
		dst.Quantity = dstNext
		dst.Version++
		return nil
	})
	if err != nil {
		release(ctx)
		return Stock{}, Stock{}, err
	}
	s.bumpReportCache(ctx)
	return src, dst, nil
}

// RequestAdjustment records a pending correction. The balance stays untouched
// until an approver decides.
func (s *Service) RequestAdjustment(ctx context.Context, adj Adjustment) (Adjustment, error) {
	if adj.Delta == 0 {
		return Adjustment{}, ErrInvalidQuantity
	}
	if strings.TrimSpace(adj.Reason) == "" {
		return Adjustment{}, ErrInvalidQuantity
	}

	created, err := s.store.InsertAdjustment(ctx, adj)
	if err != nil {
		return Adjustment{}, err
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  adj.RequestedBy,
		Action:   shared.AuditActionCreate,
		Entity:   "stock_adjustment",
		EntityID: created.ID.String(),
		NewData:  map[string]any{"delta": created.Delta, "reason": created.Reason, "status": created.Status},
	}); err != nil {
		s.logger.Error("audit adjustment create", slog.Any("error", err))
	}
	return created, nil
}

func (s *Service) ApproveAdjustment(ctx context.Context, id uuid.UUID, actorID int64) (Adjustment, error) {
	var decided Adjustment
	err := s.runTx(ctx, func(tx pgx.Tx) error {
		adj, err := s.store.GetAdjustmentForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if adj.Status != AdjustmentPending {
			return ErrAlreadyDecided
		}

		if _, err := s.ApplyMovement(ctx, tx, Movement{
			ProductID:     adj.ProductID,
			WarehouseID:   adj.WarehouseID,
			Change:        adj.Delta,
			Type:          MovementAdjustment,
			ReferenceType: "ADJUSTMENT",
			ReferenceID:   adj.ID,
			Reason:        adj.Reason,
			ActorID:       actorID,
			AllowCreate:   adj.Delta > 0,
		}); err != nil {
			return err
		}

		if err := s.store.DecideAdjustment(ctx, tx, id, AdjustmentApproved, actorID, ""); err != nil {
			return err
		}
		decided = adj
		decided.Status = AdjustmentApproved
		decided.ApprovedBy = &actorID
		return nil
	})
	if err != nil {
		return Adjustment{}, err
	}

	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   shared.AuditActionUpdate,
		Entity:   "stock_adjustment",
		EntityID: id.String(),
		OldData:  map[string]any{"status": AdjustmentPending},
		NewData:  map[string]any{"status": AdjustmentApproved},
	}); err != nil {
		s.logger.Error("audit adjustment approve", slog.Any("error", err))
	}
	s.bumpReportCache(ctx)
	return decided, nil
}

func (s *Service) RejectAdjustment(ctx context.Context, id uuid.UUID, actorID int64, reason string) (Adjustment, error) {
	if strings.TrimSpace(reason) == "" {
		return Adjustment{}, ErrInvalidQuantity
	}

	var decided Adjustment
	err := s.runTx(ctx, func(tx pgx.Tx) error {
		adj, err := s.store.GetAdjustmentForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if adj.Status != AdjustmentPending {
			return ErrAlreadyDecided
		}
		if err := s.store.DecideAdjustment(ctx, tx, id, AdjustmentRejected, actorID, reason); err != nil {
			return err
		}
		decided = adj
		decided.Status = AdjustmentRejected
		decided.ApprovedBy = &actorID
		decided.RejectionReason = reason
		return nil
	})
	if err != nil {
		return Adjustment{}, err
	}

	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   shared.AuditActionUpdate,
		Entity:   "stock_adjustment",
		EntityID: id.String(),
		OldData:  map[string]any{"status": AdjustmentPending},
		NewData:  map[string]any{"status": AdjustmentRejected, "rejection_reason": reason},
	}); err != nil {
		s.logger.Error("audit adjustment reject", slog.Any("error", err))
	}
	return decided, nil
}

// claimKey reserves an idempotency key when one is provided. The returned
// function rolls the reservation back after a failed posting.
func (s *Service) claimKey(ctx context.Context, key string) (func(context.Context), error) {
	if key == "" || s.idem == nil {
		return func(context.Context) {}, nil
	}
	if err := s.idem.CheckAndInsert(ctx, key, "inventory"); err != nil {
		return nil, err
	}
	return func(ctx context.Context) {
		if err := s.idem.Delete(ctx, key); err != nil {
			s.logger.Error("release idempotency key", slog.Any("error", err))
		}
	}, nil
}
