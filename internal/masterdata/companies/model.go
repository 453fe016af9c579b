package companies

import (
	"time"

	"github.com/google/uuid"
)

// Company is the owning-company profile shown on printed documents.
type Company struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	TaxNumber string    `json:"tax_number"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
