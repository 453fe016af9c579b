package suppliers

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/stockpile-ims/stockpile/internal/masterdata/shared"
)

// Service applies supplier business rules.
type Service struct {
	repo Repository
}

// NewService constructs the supplier service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Supplier, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Supplier, error) {
	if id == uuid.Nil {
		return Supplier{}, shared.ErrValidation
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, supplier Supplier) (Supplier, error) {
	if strings.TrimSpace(supplier.Name) == "" {
		return Supplier{}, shared.ErrValidation
	}
	return s.repo.Create(ctx, supplier)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, supplier Supplier) error {
	if id == uuid.Nil {
		return shared.ErrValidation
	}
	if strings.TrimSpace(supplier.Name) == "" {
		return shared.ErrValidation
	}
	return s.repo.Update(ctx, id, supplier)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return shared.ErrValidation
	}
	return s.repo.SoftDelete(ctx, id)
}
