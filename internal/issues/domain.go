package issues

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stockpile-ims/stockpile/internal/platform/httpx"
)

// Issue slip types.
const (
	TypeProduction = "PRODUCTION"
	TypeInternal   = "INTERNAL"
	TypeMarketing  = "MARKETING"
	TypeLoss       = "LOSS"
	TypeSample     = "SAMPLE"
	TypeOther      = "OTHER"
)

// Issue slip statuses. ISSUED is terminal and only reachable from APPROVED
// via execute.
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
	StatusIssued   = "ISSUED"
)

var (
	ErrNotFound      = fmt.Errorf("issues: %w", httpx.ErrNotFound)
	ErrNotPending    = fmt.Errorf("issues: slip already decided: %w", httpx.ErrInvalidState)
	ErrNotApproved   = fmt.Errorf("issues: slip is not approved: %w", httpx.ErrInvalidState)
	ErrAlreadyIssued = fmt.Errorf("issues: slip already issued: %w", httpx.ErrInvalidState)
	ErrEmptyLines    = fmt.Errorf("issues: slip requires at least one line: %w", httpx.ErrValidation)
	ErrInvalidType   = fmt.Errorf("issues: unknown slip type: %w", httpx.ErrValidation)
	ErrInvalidLine   = fmt.Errorf("issues: line quantity must be positive: %w", httpx.ErrValidation)
	ErrReasonEmpty   = fmt.Errorf("issues: rejection reason required: %w", httpx.ErrValidation)
)

// Slip is a stock issue request. Stock leaves the warehouse only when an
// approved slip is executed.
type Slip struct {
	ID              uuid.UUID  `json:"id"`
	Number          string     `json:"number"`
	Type            string     `json:"type"`
	WarehouseID     uuid.UUID  `json:"warehouse_id"`
	Status          string     `json:"status"`
	Purpose         string     `json:"purpose"`
	RequestedBy     int64      `json:"requested_by"`
	ApprovedBy      *int64     `json:"approved_by,omitempty"`
	RejectedBy      *int64     `json:"rejected_by,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`
	IssuedAt        *time.Time `json:"issued_at,omitempty"`
	Lines           []Line     `json:"lines,omitempty"`
}

// Line is one product/quantity pair on a slip.
type Line struct {
	ID          uuid.UUID `json:"id"`
	SlipID      uuid.UUID `json:"slip_id"`
	ProductID   uuid.UUID `json:"product_id"`
	Quantity    int64     `json:"quantity"`
	ProductSKU  string    `json:"product_sku,omitempty"`
	ProductName string    `json:"product_name,omitempty"`
}

// SlipRow joins a slip with its warehouse name for listings.
type SlipRow struct {
	Slip
	WarehouseName string `json:"warehouse_name"`
	LineCount     int    `json:"line_count"`
}

// Pass is the gate document generated when a slip is executed.
type Pass struct {
	ID       uuid.UUID `json:"id"`
	SlipID   uuid.UUID `json:"slip_id"`
	Number   string    `json:"number"`
	IssuedBy int64     `json:"issued_by"`
	IssuedAt time.Time `json:"issued_at"`
}

// ValidType reports whether t is a known slip type.
func ValidType(t string) bool {
	switch t {
	case TypeProduction, TypeInternal, TypeMarketing, TypeLoss, TypeSample, TypeOther:
		return true
	}
	return false
}
