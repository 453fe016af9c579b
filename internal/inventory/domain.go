package inventory

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stockpile-ims/stockpile/internal/platform/httpx"
)

// Ledger transaction types. Transfers always produce an OUT/IN pair.
const (
	MovementIn          = "IN"
	MovementOut         = "OUT"
	MovementTransferIn  = "TRANSFER_IN"
	MovementTransferOut = "TRANSFER_OUT"
	MovementAdjustment  = "ADJUSTMENT"
	MovementIssue       = "ISSUE"
)

// Adjustment statuses.
const (
	AdjustmentPending  = "PENDING"
	AdjustmentApproved = "APPROVED"
	AdjustmentRejected = "REJECTED"
)

var (
	ErrInsufficientStock = fmt.Errorf("inventory: insufficient stock: %w", httpx.ErrValidation)
	ErrInvalidQuantity   = fmt.Errorf("inventory: quantity must be positive: %w", httpx.ErrValidation)
	ErrSameWarehouse     = fmt.Errorf("inventory: source and destination warehouse are identical: %w", httpx.ErrValidation)
	ErrCrossCompany      = fmt.Errorf("inventory: transfer across companies is not allowed: %w", httpx.ErrValidation)
	ErrAlreadyDecided    = fmt.Errorf("inventory: adjustment already decided: %w", httpx.ErrInvalidState)
	ErrNotFound          = fmt.Errorf("inventory: %w", httpx.ErrNotFound)
)

// Stock is one product/warehouse balance row. Version increments on every
// quantity change.
type Stock struct {
	ID          uuid.UUID `json:"id"`
	ProductID   uuid.UUID `json:"product_id"`
	WarehouseID uuid.UUID `json:"warehouse_id"`
	Quantity    int64     `json:"quantity"`
	Version     int       `json:"version"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StockRow is a stock balance joined with product and warehouse names for
// listings.
type StockRow struct {
	Stock
	ProductSKU    string `json:"product_sku"`
	ProductName   string `json:"product_name"`
	WarehouseName string `json:"warehouse_name"`
	WarehouseCode string `json:"warehouse_code"`
}

// LedgerEntry records one stock change with the balance after posting.
type LedgerEntry struct {
	ID            uuid.UUID `json:"id"`
	StockID       uuid.UUID `json:"stock_id"`
	ProductID     uuid.UUID `json:"product_id"`
	WarehouseID   uuid.UUID `json:"warehouse_id"`
	Type          string    `json:"type"`
	Change        int64     `json:"change"`
	BalanceAfter  int64     `json:"balance_after"`
	ReferenceType string    `json:"reference_type,omitempty"`
	ReferenceID   uuid.UUID `json:"reference_id,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	CreatedBy     int64     `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// LedgerRow is a ledger entry joined with product and warehouse names.
type LedgerRow struct {
	LedgerEntry
	ProductSKU    string `json:"product_sku"`
	ProductName   string `json:"product_name"`
	WarehouseName string `json:"warehouse_name"`
}

// Adjustment is an approval-gated stock correction. The delta is applied to
// the balance only when the adjustment is approved.
type Adjustment struct {
	ID              uuid.UUID  `json:"id"`
	ProductID       uuid.UUID  `json:"product_id"`
	WarehouseID     uuid.UUID  `json:"warehouse_id"`
	Delta           int64      `json:"delta"`
	Reason          string     `json:"reason"`
	Status          string     `json:"status"`
	RequestedBy     int64      `json:"requested_by"`
	ApprovedBy      *int64     `json:"approved_by,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`
}

// AdjustmentRow joins an adjustment with product and warehouse names.
type AdjustmentRow struct {
	Adjustment
	ProductSKU    string `json:"product_sku"`
	ProductName   string `json:"product_name"`
	WarehouseName string `json:"warehouse_name"`
}

// Movement is a single stock posting applied inside a transaction.
type Movement struct {
	ProductID     uuid.UUID
	WarehouseID   uuid.UUID
	Change        int64
	Type          string
	ReferenceType string
	ReferenceID   uuid.UUID
	Reason        string
	ActorID       int64
	// AllowCreate permits creating a zero stock row before applying a
	// positive change. Negative changes never create rows.
	AllowCreate bool
}
