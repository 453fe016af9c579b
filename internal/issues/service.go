package issues

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockpile-ims/stockpile/internal/inventory"
	"github.com/stockpile-ims/stockpile/internal/platform/db"
	"github.com/stockpile-ims/stockpile/internal/shared"
)

// Store abstracts the issue repository for the service layer.
type Store interface {
	List(ctx context.Context, f Filters) ([]SlipRow, int, error)
	Get(ctx context.Context, id uuid.UUID) (Slip, error)
	Insert(ctx context.Context, tx pgx.Tx, slip Slip) (Slip, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (Slip, error)
	Decide(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, actorID int64, rejectionReason string) error
	MarkIssued(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	InsertPass(ctx context.Context, tx pgx.Tx, pass Pass) (Pass, error)
	PassBySlip(ctx context.Context, slipID uuid.UUID) (Pass, error)
	WarehouseName(ctx context.Context, warehouseID uuid.UUID) (string, error)
}

// StockPoster posts stock movements inside the caller's transaction.
type StockPoster interface {
	ApplyMovement(ctx context.Context, tx pgx.Tx, mv inventory.Movement) (inventory.Stock, error)
}

type approvalSink interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
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

// Service manages the issue slip lifecycle.
type Service struct {
	store     Store
	stock     StockPoster
	approvals approvalSink
	audit     auditSink
	idem      idempotencyStore
	reports   reportCache
	runTx     func(ctx context.Context, fn func(pgx.Tx) error) error
	logger    *slog.Logger
}

// NewService constructs the issue service.
func NewService(pool *pgxpool.Pool, store Store, stock StockPoster, approvals approvalSink, audit auditSink, idem idempotencyStore, reports reportCache, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		stock:     stock,
		approvals: approvals,
		audit:     audit,
		idem:      idem,
		reports:   reports,
		runTx: func(ctx context.Context, fn func(pgx.Tx) error) error {
			return db.WithTx(ctx, pool, fn)
		},
		logger: logger,
	}
}

// CreateInput describes a new slip.
type CreateInput struct {
	Type        string
	WarehouseID uuid.UUID
	Purpose     string
	Lines       []Line
	ActorID     int64
}

func (s *Service) List(ctx context.Context, f Filters) ([]SlipRow, int, error) {
	return s.store.List(ctx, f)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Slip, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Pass(ctx context.Context, slipID uuid.UUID) (Pass, error) {
	return s.store.PassBySlip(ctx, slipID)
}

func (s *Service) WarehouseName(ctx context.Context, warehouseID uuid.UUID) (string, error) {
	return s.store.WarehouseName(ctx, warehouseID)
}

func (s *Service) Create(ctx context.Context, in CreateInput) (Slip, error) {
	if !ValidType(in.Type) {
		return Slip{}, ErrInvalidType
	}
	if len(in.Lines) == 0 {
		return Slip{}, ErrEmptyLines
	}
	for _, line := range in.Lines {
		if line.Quantity <= 0 {
			return Slip{}, ErrInvalidLine
		}
	}

	var created Slip
	err := s.runTx(ctx, func(tx pgx.Tx) error {
		var txErr error
		created, txErr = s.store.Insert(ctx, tx, Slip{
			Type:        in.Type,
			WarehouseID: in.WarehouseID,
			Purpose:     in.Purpose,
			RequestedBy: in.ActorID,
			Lines:       in.Lines,
		})
		return txErr
	})
	if err != nil {
		return Slip{}, err
	}

	if err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  "issue_slip",
		RefID:   created.ID,
		ActorID: in.ActorID,
		Action:  shared.ApprovalSubmit,
		Note:    created.Number,
	}); err != nil {
		s.logger.Error("record slip submit", slog.Any("error", err))
	}
	return created, nil
}

func (s *Service) Approve(ctx context.Context, id uuid.UUID, actorID int64) (Slip, error) {
	var slip Slip
	err := s.runTx(ctx, func(tx pgx.Tx) error {
		current, err := s.store.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusPending {
			return ErrNotPending
		}
		if err := s.store.Decide(ctx, tx, id, StatusApproved, actorID, ""); err != nil {
			return err
		}
		slip = current
		slip.Status = StatusApproved
		slip.ApprovedBy = &actorID
		return nil
	})
	if err != nil {
		return Slip{}, err
	}

	if err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  "issue_slip",
		RefID:   id,
		ActorID: actorID,
		Action:  shared.ApprovalApprove,
	}); err != nil {
		s.logger.Error("record slip approve", slog.Any("error", err))
	}
	return slip, nil
}

func (s *Service) Reject(ctx context.Context, id uuid.UUID, actorID int64, reason string) (Slip, error) {
	if strings.TrimSpace(reason) == "" {
		return Slip{}, ErrReasonEmpty
	}

	var slip Slip
	err := s.runTx(ctx, func(tx pgx.Tx) error {
		current, err := s.store.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusPending {
			return ErrNotPending
		}
		if err := s.store.Decide(ctx, tx, id, StatusRejected, actorID, reason); err != nil {
			return err
		}
		slip = current
		slip.Status = StatusRejected
		slip.RejectedBy = &actorID
		slip.RejectionReason = reason
		return nil
	})
	if err != nil {
		return Slip{}, err
	}

	if err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  "issue_slip",
		RefID:   id,
		ActorID: actorID,
		Action:  shared.ApprovalReject,
		Note:    reason,
	}); err != nil {
		s.logger.Error("record slip reject", slog.Any("error", err))
	}
	return slip, nil
}

// Execute deducts the slip's lines from stock, marks it ISSUED and generates
// the gate pass. Stock leaves the warehouse here, not at approval. The
// idempotency key guards against double posting on retried requests.
func (s *Service) Execute(ctx context.Context, id uuid.UUID, actorID int64, idempotencyKey string) (Slip, Pass, error) {
	release, err := s.claimKey(ctx, idempotencyKey)
	if err != nil {
		return Slip{}, Pass{}, err
	}

	var slip Slip
	var pass Pass
	err = s.runTx(ctx, func(tx pgx.Tx) error {
		current, err := s.store.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		switch current.Status {
		case StatusApproved:
		case StatusIssued:
			return ErrAlreadyIssued
		default:
			return ErrNotApproved
		}

		for _, line := range current.Lines {
			if _, err := s.stock.ApplyMovement(ctx, tx, inventory.Movement{
				ProductID:     line.ProductID,
				WarehouseID:   current.WarehouseID,
				Change:        -line.Quantity,
				Type:          inventory.MovementIssue,
				ReferenceType: "ISSUE_SLIP",
				ReferenceID:   current.ID,
				Reason:        current.Purpose,
				ActorID:       actorID,
			}); err != nil {
				return err
			}
		}

		if err := s.store.MarkIssued(ctx, tx, id); err != nil {
			return err
		}
		pass, err = s.store.InsertPass(ctx, tx, Pass{SlipID: id, IssuedBy: actorID})
		if err != nil {
			return err
		}
		slip = current
		slip.Status = StatusIssued
		return nil
	})
	if err != nil {
		release(ctx)
		return Slip{}, Pass{}, err
	}

	if s.reports != nil {
		if err := s.reports.Invalidate(ctx); err != nil {
			s.logger.Warn("invalidate report cache", slog.Any("error", err))
		}
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   shared.AuditActionUpdate,
		Entity:   "issue_slip",
		EntityID: id.String(),
		OldData:  map[string]any{"status": StatusApproved},
		NewData:  map[string]any{"status": StatusIssued, "pass_number": pass.Number},
	}); err != nil {
		s.logger.Error("audit slip execute", slog.Any("error", err))
	}
	return slip, pass, nil
}

// claimKey reserves an idempotency key when one is provided. The returned
// function rolls the reservation back after a failed posting.
func (s *Service) claimKey(ctx context.Context, key string) (func(context.Context), error) {
	if key == "" || s.idem == nil {
		return func(context.Context) {}, nil
	}
	if err := s.idem.CheckAndInsert(ctx, key, "issues"); err != nil {
		return nil, err
	}
	return func(ctx context.Context) {
		if err := s.idem.Delete(ctx, key); err != nil {
			s.logger.Error("release idempotency key", slog.Any("error", err))
		}
	}, nil
}
