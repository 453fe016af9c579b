package warehouses

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/stockpile-ims/stockpile/internal/masterdata/shared"
)

// Service applies warehouse business rules.
type Service struct {
	repo Repository
}

// NewService constructs the warehouse service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Warehouse, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Warehouse, error) {
	if id == uuid.Nil {
		return Warehouse{}, shared.ErrValidation
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, warehouse Warehouse) (Warehouse, error) {
	if err := validate(warehouse); err != nil {
		return Warehouse{}, err
	}
	return s.repo.Create(ctx, warehouse)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, warehouse Warehouse) error {
	if id == uuid.Nil {
		return shared.ErrValidation
	}
	if err := validate(warehouse); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, warehouse)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return shared.ErrValidation
	}
	return s.repo.SoftDelete(ctx, id)
}

func validate(wh Warehouse) error {
	if strings.TrimSpace(wh.Name) == "" {
		return shared.ErrValidation
	}
	if strings.TrimSpace(wh.Code) == "" {
		return shared.ErrValidation
	}
	return nil
}
