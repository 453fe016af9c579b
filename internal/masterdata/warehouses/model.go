package warehouses

import (
	"time"

	"github.com/google/uuid"
)

// Warehouse represents a stock location owned by a company.
type Warehouse struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Code      string     `json:"code"`
	CompanyID uuid.UUID  `json:"company_id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}
