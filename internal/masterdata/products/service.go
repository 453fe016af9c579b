package products

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockpile-ims/stockpile/internal/masterdata/shared"
)

// Service applies catalog business rules.
type Service struct {
	repo Repository
}

// NewService constructs the product service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Product, error) {
	if id == uuid.Nil {
		return Product{}, shared.ErrValidation
	}
	return s.repo.Get(ctx, id)
}

// FindBySKU resolves a product by its scanned barcode/SKU.
func (s *Service) FindBySKU(ctx context.Context, sku string) (Product, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return Product{}, shared.ErrValidation
	}
	return s.repo.FindBySKU(ctx, sku)
}

func (s *Service) Create(ctx context.Context, product Product) (Product, error) {
	if err := validate(product); err != nil {
		return Product{}, err
	}
	return s.repo.Create(ctx, product)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, product Product) error {
	if id == uuid.Nil {
		return shared.ErrValidation
	}
	if err := validate(product); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, product)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return shared.ErrValidation
	}
	return s.repo.SoftDelete(ctx, id)
}

func validate(p Product) error {
	if strings.TrimSpace(p.SKU) == "" {
		return shared.ErrValidation
	}
	if strings.TrimSpace(p.Name) == "" {
		return shared.ErrValidation
	}
	if strings.TrimSpace(p.Unit) == "" {
		return shared.ErrValidation
	}
	if p.Price.LessThan(decimal.Zero) {
		return shared.ErrValidation
	}
	return nil
}
