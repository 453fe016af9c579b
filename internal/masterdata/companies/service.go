package companies

import (
	"context"
	"strings"

	"github.com/stockpile-ims/stockpile/internal/masterdata/shared"
)

// Service manages the single company profile.
type Service struct {
	repo Repository
}

// NewService constructs the company service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context) (Company, error) {
	return s.repo.Get(ctx)
}

func (s *Service) Save(ctx context.Context, company Company) (Company, error) {
	if strings.TrimSpace(company.Name) == "" {
		return Company{}, shared.ErrValidation
	}
	return s.repo.Upsert(ctx, company)
}
