package procurement

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stockpile-ims/stockpile/internal/inventory"
	"github.com/stockpile-ims/stockpile/internal/platform/db"
	"github.com/stockpile-ims/stockpile/internal/shared"
)

// Store abstracts the procurement repository for the service layer.
type Store interface {
	ListRequisitions(ctx context.Context, f Filters) ([]RequisitionRow, int, error)
	GetRequisition(ctx context.Context, id uuid.UUID) (Requisition, error)
	InsertRequisition(ctx context.Context, tx pgx.Tx, req Requisition) (Requisition, error)
	GetRequisitionForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (Requisition, error)
	DecideRequisition(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, actorID int64, rejectionReason string) error

	ListOrders(ctx context.Context, f Filters) ([]OrderRow, int, error)
	GetOrder(ctx context.Context, id uuid.UUID) (Order, error)
	InsertOrder(ctx context.Context, tx pgx.Tx, order Order) (Order, error)
	GetOrderForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (Order, error)
	DecideOrder(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, actorID int64, rejectionReason string) error
	MarkOrderReceived(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	OrderExistsForRequisition(ctx context.Context, tx pgx.Tx, requisitionID uuid.UUID) (bool, error)

	ListReceipts(ctx context.Context, f Filters) ([]ReceiptRow, int, error)
	GetReceipt(ctx context.Context, id uuid.UUID) (Receipt, error)
	InsertReceipt(ctx context.Context, tx pgx.Tx, receipt Receipt) (Receipt, error)
	GetReceiptForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (Receipt, error)
	DecideReceipt(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, actorID int64, rejectionReason string) error
	ReceiptExistsForOrder(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (bool, error)

	SupplierName(ctx context.Context, supplierID uuid.UUID) (string, error)
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

// Service manages the requisition, order and receipt lifecycle.
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

// NewService constructs the procurement service.
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

// CreateRequisitionInput describes a new requisition.
type CreateRequisitionInput struct {
	WarehouseID uuid.UUID
	Notes       string
	Lines       []ReqLine
	ActorID     int64
}

// OrderLineInput prices one product on a new order.
type OrderLineInput struct {
	ProductID uuid.UUID
	Quantity  int64
	Rate      decimal.Decimal
}

// CreateOrderInput raises an order from an approved requisition.
type CreateOrderInput struct {
	RequisitionID uuid.UUID
	SupplierID    uuid.UUID
	Lines         []OrderLineInput
	ActorID       int64
}

// CreateReceiptInput records received goods against an approved order. Empty
// lines default to the full ordered quantities.
type CreateReceiptInput struct {
	OrderID uuid.UUID
	Notes   string
	Lines   []ReceiptLine
	ActorID int64
}

func (s *Service) ListRequisitions(ctx context.Context, f Filters) ([]RequisitionRow, int, error) {
	return s.store.ListRequisitions(ctx, f)
}

func (s *Service) GetRequisition(ctx context.Context, id uuid.UUID) (Requisition, error) {
	return s.store.GetRequisition(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context, f Filters) ([]OrderRow, int, error) {
	return s.store.ListOrders(ctx, f)
}

func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return s.store.GetOrder(ctx, id)
}

func (s *Service) ListReceipts(ctx context.Context, f Filters) ([]ReceiptRow, int, error) {
	return s.store.ListReceipts(ctx, f)
}

func (s *Service) GetReceipt(ctx context.Context, id uuid.UUID) (Receipt, error) {
	return s.store.GetReceipt(ctx, id)
}

func (s *Service) SupplierName(ctx context.Context, id uuid.UUID) (string, error) {
	return s.store.SupplierName(ctx, id)
}

func (s *Service) WarehouseName(ctx context.Context, id uuid.UUID) (string, error) {
	return s.store.WarehouseName(ctx, id)
}

func (s *Service) CreateRequisition(ctx context.Context, in CreateRequisitionInput) (Requisition, error) {
	if len(in.Lines) == 0 {
		return Requisition{}, ErrEmptyLines
	}
	for _, line := range in.Lines {
		if line.Quantity <= 0 {
			return Requisition{}, ErrInvalidLine
		}
	}

	var created Requisition
	err := s.runTx(ctx, func(tx pgx.Tx) error {
		var txErr error
		created, txErr = s.store.InsertRequisition(ctx, tx, Requisition{
			WarehouseID: in.WarehouseID,
			Notes:       in.Notes,
			RequestedBy: in.ActorID,
			Lines:       in.Lines,
		})
		return txErr
	})
	if err != nil {
		return Requisition{}, err
	}

	s.recordApproval(ctx, "purchase_requisition", created.ID, in.ActorID, shared.ApprovalSubmit, created.Number)
	return created, nil
}

func (s *Service) ApproveRequisition(ctx context.Context, id uuid.UUID, actorID int64) (Requisition, error) {
	var req Requisition
	err := s.runTx(ctx, func(tx pgx.Tx) error {
		current, err := s.store.GetRequisitionForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status != PRSubmitted {
			return ErrAlreadyDecided
		}
		if err := s.store.DecideRequisition(ctx, tx, id, PRApproved, actorID, ""); err != nil {
			return err
		}
		req = current
		req.Status = PRApproved
		req.ApprovedBy = &actorID
		return nil
	})
	if err != nil {
		return Requisition{}, err
	}

	s.recordApproval(ctx, "purchase_requisition", id, actorID, shared.ApprovalApprove, "")
	return req, nil
}

func (s *Service) RejectRequisition(ctx context.Context, id uuid.UUID, actorID int64, reason string) (Requisition, error) {
	if strings.TrimSpace(reason) == "" {
		return Requisition{}, ErrReasonEmpty
	}

	var req Requisition
	err := s.runTx(ctx, func(tx pgx.Tx) error {
		current, err := s.store.GetRequisitionForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status != PRSubmitted {
			return ErrAlreadyDecided
		}
		if err := s.store.DecideRequisition(ctx, tx, id, PRRejected, actorID, reason); err != nil {
			return err
		}
		req = current
		req.Status = PRRejected
		req.RejectionReason = reason
		return nil
	})
	if err != nil {
		return Requisition{}, err
	}

	s.recordApproval(ctx, "purchase_requisition", id, actorID, shared.ApprovalReject, reason)
	return req, nil
}

// CreateOrderFromRequisition raises the single purchase order of an approved
// requisition. A second non-rejected order for the same requisition is
// refused.
func (s *Service) CreateOrderFromRequisition(ctx context.Context, in CreateOrderInput) (Order, error) {
	if len(in.Lines) == 0 {
		return Order{}, ErrEmptyLines
	}
	for _, line := range in.Lines {
		if line.Quantity <= 0 {
			return Order{}, ErrInvalidLine
		}
		if line.Rate.IsNegative() {
			return Order{}, ErrNegativeRate
		}
	}

	var created Order
	err := s.runTx(ctx, func(tx pgx.Tx) error {
		req, err := s.store.GetRequisitionForUpdate(ctx, tx, in.RequisitionID)
		if err != nil {
			return err
		}
		if req.Status != PRApproved {
			return ErrPRNotApproved
		}
		exists, err := s.store.OrderExistsForRequisition(ctx, tx, in.RequisitionID)
		if err != nil {
			return err
		}
		if exists {
			return ErrPOExists
		}

		total := decimal.Zero
		lines := make([]OrderLine, 0, len(in.Lines))
		for _, l := range in.Lines {
			amount := l.Rate.Mul(decimal.NewFromInt(l.Quantity))
			total = total.Add(amount)
			lines = append(lines, OrderLine{
				ProductID: l.ProductID,
				Quantity:  l.Quantity,
				Rate:      l.Rate,
				Amount:    amount,
			})
		}

		created, err = s.store.InsertOrder(ctx, tx, Order{
			RequisitionID: in.RequisitionID,
			SupplierID:    in.SupplierID,
			WarehouseID:   req.WarehouseID,
			Total:         total,
			OrderedBy:     in.ActorID,
			Lines:         lines,
		})
		return err
	})
	if err != nil {
		return Order{}, err
	}

	s.recordApproval(ctx, "purchase_order", created.ID, in.ActorID, shared.ApprovalSubmit, created.Number)
	return created, nil
}

func (s *Service) ApproveOrder(ctx context.Context, id uuid.UUID, actorID int64) (Order, error) {
	var order Order
	err := s.runTx(ctx, func(tx pgx.Tx) error {
		current, err := s.store.GetOrderForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status != POPending {
			return ErrAlreadyDecided
		}
		if err := s.store.DecideOrder(ctx, tx, id, POApproved, actorID, ""); err != nil {
			return err
		}
		order = current
		order.Status = POApproved
		order.ApprovedBy = &actorID
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.recordApproval(ctx, "purchase_order", id, actorID, shared.ApprovalApprove, "")
	return order, nil
}

func (s *Service) RejectOrder(ctx context.Context, id uuid.UUID, actorID int64, reason string) (Order, error) {
	if strings.TrimSpace(reason) == "" {
		return Order{}, ErrReasonEmpty
	}

	var order Order
	err := s.runTx(ctx, func(tx pgx.Tx) error {
		current, err := s.store.GetOrderForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status != POPending {
			return ErrAlreadyDecided
		}
		if err := s.store.DecideOrder(ctx, tx, id, PORejected, actorID, reason); err != nil {
			return err
		}
		order = current
		order.Status = PORejected
		order.RejectionReason = reason
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.recordApproval(ctx, "purchase_order", id, actorID, shared.ApprovalReject, reason)
	return order, nil
}

// CreateReceipt records the single goods receipt of an approved order. Empty
// lines default to the full ordered quantities.
func (s *Service) CreateReceipt(ctx context.Context, in CreateReceiptInput) (Receipt, error) {
	for _, line := range in.Lines {
		if line.Quantity <= 0 {
			return Receipt{}, ErrInvalidLine
		}
	}

	var created Receipt
	err := s.runTx(ctx, func(tx pgx.Tx) error {
		order, err := s.store.GetOrderForUpdate(ctx, tx, in.OrderID)
		if err != nil {
			return err
		}
		if order.Status != POApproved {
			return ErrPONotApproved
		}
		exists, err := s.store.ReceiptExistsForOrder(ctx, tx, in.OrderID)
		if err != nil {
			return err
		}
		if exists {
			return ErrGRNExists
		}

		lines := in.Lines
		if len(lines) == 0 {
			lines = make([]ReceiptLine, 0, len(order.Lines))
			for _, l := range order.Lines {
				lines = append(lines, ReceiptLine{ProductID: l.ProductID, Quantity: l.Quantity})
			}
		}
		if len(lines) == 0 {
			return ErrEmptyLines
		}

		created, err = s.store.InsertReceipt(ctx, tx, Receipt{
			OrderID:     in.OrderID,
			WarehouseID: order.WarehouseID,
			Notes:       in.Notes,
			ReceivedBy:  in.ActorID,
			Lines:       lines,
		})
		return err
	})
	if err != nil {
		return Receipt{}, err
	}

	s.recordApproval(ctx, "goods_receipt", created.ID, in.ActorID, shared.ApprovalSubmit, created.Number)
	return created, nil
}

// ApproveReceipt posts the received quantities into stock and closes the
// order as RECEIVED. The idempotency key guards against double posting on
// retried requests.
func (s *Service) ApproveReceipt(ctx context.Context, id uuid.UUID, actorID int64, idempotencyKey string) (Receipt, error) {
	release, err := s.claimKey(ctx, idempotencyKey)
	if err != nil {
		return Receipt{}, err
	}

	var receipt Receipt
	err = s.runTx(ctx, func(tx pgx.Tx) error {
		current, err := s.store.GetReceiptForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status != GRNPending {
			return ErrAlreadyDecided
		}

		for _, line := range current.Lines {
			if _, err := s.stock.ApplyMovement(ctx, tx, inventory.Movement{
				ProductID:     line.ProductID,
				WarehouseID:   current.WarehouseID,
				Change:        line.Quantity,
				Type:          inventory.MovementIn,
				ReferenceType: "GRN",
				ReferenceID:   current.ID,
				Reason:        current.Number,
				ActorID:       actorID,
				AllowCreate:   true,
			}); err != nil {
				return err
			}
		}

		if err := s.store.DecideReceipt(ctx, tx, id, GRNApproved, actorID, ""); err != nil {
			return err
		}
		if err := s.store.MarkOrderReceived(ctx, tx, current.OrderID); err != nil {
			return err
		}
		receipt = current
		receipt.Status = GRNApproved
		receipt.ApprovedBy = &actorID
		return nil
	})
	if err != nil {
		release(ctx)
		return Receipt{}, err
	}

	if s.reports != nil {
		if err := s.reports.Invalidate(ctx); err != nil {
			s.logger.Warn("invalidate report cache", slog.Any("error", err))
		}
	}
	s.recordApproval(ctx, "goods_receipt", id, actorID, shared.ApprovalApprove, "")
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   shared.AuditActionUpdate,
		Entity:   "goods_receipt",
		EntityID: id.String(),
		OldData:  map[string]any{"status": GRNPending},
		NewData:  map[string]any{"status": GRNApproved, "order_status": POReceived},
	}); err != nil {
		s.logger.Error("audit receipt approve", slog.Any("error", err))
	}
	return receipt, nil
}

func (s *Service) RejectReceipt(ctx context.Context, id uuid.UUID, actorID int64, reason string) (Receipt, error) {
	if strings.TrimSpace(reason) == "" {
		return Receipt{}, ErrReasonEmpty
	}

	var receipt Receipt
	err := s.runTx(ctx, func(tx pgx.Tx) error {
		current, err := s.store.GetReceiptForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Status != GRNPending {
			return ErrAlreadyDecided
		}
		if err := s.store.DecideReceipt(ctx, tx, id, GRNRejected, actorID, reason); err != nil {
			return err
		}
		receipt = current
		receipt.Status = GRNRejected
		receipt.RejectionReason = reason
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}

	s.recordApproval(ctx, "goods_receipt", id, actorID, shared.ApprovalReject, reason)
	return receipt, nil
}

func (s *Service) recordApproval(ctx context.Context, module string, ref uuid.UUID, actorID int64, action shared.ApprovalAction, note string) {
	if err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  module,
		RefID:   ref,
		ActorID: actorID,
		Action:  action,
		Note:    note,
	}); err != nil {
		s.logger.Error("record approval", slog.String("module", module), slog.Any("error", err))
	}
}

func (s *Service) claimKey(ctx context.Context, key string) (func(context.Context), error) {
	if key == "" || s.idem == nil {
		return func(context.Context) {}, nil
	}
	if err := s.idem.CheckAndInsert(ctx, key, "procurement"); err != nil {
		return nil, err
	}
	return func(ctx context.Context) {
		if err := s.idem.Delete(ctx, key); err != nil {
			s.logger.Error("release idempotency key", slog.Any("error", err))
		}
	}, nil
}
