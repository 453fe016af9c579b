package suppliers

import (
	"time"

	"github.com/google/uuid"
)

// Supplier represents a vendor that purchase orders are placed with.
type Supplier struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Contact   string     `json:"contact_person"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone"`
	Address   string     `json:"address"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}
