package procurement

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockpile-ims/stockpile/internal/platform/httpx"
)

// Purchase requisition statuses.
const (
	PRSubmitted = "SUBMITTED"
	PRApproved  = "APPROVED"
	PRRejected  = "REJECTED"
)

// Purchase order statuses. RECEIVED is set when the order's goods receipt is
// approved.
const (
	POPending  = "PENDING"
	POApproved = "APPROVED"
	POReceived = "RECEIVED"
	PORejected = "REJECTED"
)

// Goods receipt note statuses.
const (
	GRNPending  = "PENDING"
	GRNApproved = "APPROVED"
	GRNRejected = "REJECTED"
)

var (
	ErrNotFound       = fmt.Errorf("procurement: %w", httpx.ErrNotFound)
	ErrAlreadyDecided = fmt.Errorf("procurement: document already decided: %w", httpx.ErrInvalidState)
	ErrPRNotApproved  = fmt.Errorf("procurement: requisition is not approved: %w", httpx.ErrInvalidState)
	ErrPONotApproved  = fmt.Errorf("procurement: purchase order is not approved: %w", httpx.ErrInvalidState)
	ErrPOExists       = fmt.Errorf("procurement: requisition already has a purchase order: %w", httpx.ErrDuplicate)
	ErrGRNExists      = fmt.Errorf("procurement: purchase order already has a goods receipt: %w", httpx.ErrDuplicate)
	ErrEmptyLines     = fmt.Errorf("procurement: document requires at least one line: %w", httpx.ErrValidation)
	ErrInvalidLine    = fmt.Errorf("procurement: line quantity must be positive: %w", httpx.ErrValidation)
	ErrNegativeRate   = fmt.Errorf("procurement: line rate must not be negative: %w", httpx.ErrValidation)
	ErrReasonEmpty    = fmt.Errorf("procurement: rejection reason required: %w", httpx.ErrValidation)
)

// Requisition is an internal request to purchase stock.
type Requisition struct {
	ID              uuid.UUID  `json:"id"`
	Number          string     `json:"number"`
	WarehouseID     uuid.UUID  `json:"warehouse_id"`
	Status          string     `json:"status"`
	Notes           string     `json:"notes,omitempty"`
	RequestedBy     int64      `json:"requested_by"`
	ApprovedBy      *int64     `json:"approved_by,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`
	Lines           []ReqLine  `json:"lines,omitempty"`
}

// ReqLine is one requested product/quantity pair.
type ReqLine struct {
	ID            uuid.UUID `json:"id"`
	RequisitionID uuid.UUID `json:"requisition_id"`
	ProductID     uuid.UUID `json:"product_id"`
	Quantity      int64     `json:"quantity"`
	ProductSKU    string    `json:"product_sku,omitempty"`
	ProductName   string    `json:"product_name,omitempty"`
}

// RequisitionRow joins listing metadata, including whether a purchase order
// was already raised from the requisition.
type RequisitionRow struct {
	Requisition
	WarehouseName string `json:"warehouse_name"`
	POExists      bool   `json:"po_exists"`
}

// Order is a purchase order raised from an approved requisition. Each
// requisition carries at most one order.
type Order struct {
	ID              uuid.UUID       `json:"id"`
	Number          string          `json:"number"`
	RequisitionID   uuid.UUID       `json:"requisition_id"`
	SupplierID      uuid.UUID       `json:"supplier_id"`
	WarehouseID     uuid.UUID       `json:"warehouse_id"`
	Status          string          `json:"status"`
	Total           decimal.Decimal `json:"total"`
	OrderedBy       int64           `json:"ordered_by"`
	ApprovedBy      *int64          `json:"approved_by,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	DecidedAt       *time.Time      `json:"decided_at,omitempty"`
	Lines           []OrderLine     `json:"lines,omitempty"`
}

// OrderLine prices one requisition line.
type OrderLine struct {
	ID          uuid.UUID       `json:"id"`
	OrderID     uuid.UUID       `json:"order_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	Quantity    int64           `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
	ProductSKU  string          `json:"product_sku,omitempty"`
	ProductName string          `json:"product_name,omitempty"`
}

// OrderRow joins listing metadata, including whether a goods receipt was
// already raised against the order.
type OrderRow struct {
	Order
	SupplierName  string `json:"supplier_name"`
	WarehouseName string `json:"warehouse_name"`
	GRNExists     bool   `json:"grn_exists"`
}

// Receipt is a goods receipt note against an approved purchase order. Each
// order carries at most one receipt, and stock enters the warehouse when the
// receipt is approved.
type Receipt struct {
	ID              uuid.UUID     `json:"id"`
	Number          string        `json:"number"`
	OrderID         uuid.UUID     `json:"order_id"`
	WarehouseID     uuid.UUID     `json:"warehouse_id"`
	Status          string        `json:"status"`
	Notes           string        `json:"notes,omitempty"`
	ReceivedBy      int64         `json:"received_by"`
	ApprovedBy      *int64        `json:"approved_by,omitempty"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	DecidedAt       *time.Time    `json:"decided_at,omitempty"`
	Lines           []ReceiptLine `json:"lines,omitempty"`
}

// ReceiptLine records a received product/quantity pair.
type ReceiptLine struct {
	ID          uuid.UUID `json:"id"`
	ReceiptID   uuid.UUID `json:"receipt_id"`
	ProductID   uuid.UUID `json:"product_id"`
	Quantity    int64     `json:"quantity"`
	ProductSKU  string    `json:"product_sku,omitempty"`
	ProductName string    `json:"product_name,omitempty"`
}

// ReceiptRow joins listing metadata.
type ReceiptRow struct {
	Receipt
	OrderNumber   string `json:"order_number"`
	WarehouseName string `json:"warehouse_name"`
}
