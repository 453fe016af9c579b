package products

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stockpile-ims/stockpile/internal/masterdata/shared"
)

type fakeRepo struct {
	products map[uuid.UUID]Product
	bySKU    map[string]uuid.UUID
	deleted  map[uuid.UUID]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		products: map[uuid.UUID]Product{},
		bySKU:    map[string]uuid.UUID{},
		deleted:  map[uuid.UUID]bool{},
	}
}

func (r *fakeRepo) List(_ context.Context, _ shared.ListFilters) ([]Product, int, error) {
	items := make([]Product, 0, len(r.products))
	for _, p := range r.products {
		items = append(items, p)
	}
	return items, len(items), nil
}

func (r *fakeRepo) Get(_ context.Context, id uuid.UUID) (Product, error) {
	p, ok := r.products[id]
	if !ok || r.deleted[id] {
		return Product{}, shared.ErrNotFound
	}
	return p, nil
}

func (r *fakeRepo) FindBySKU(_ context.Context, sku string) (Product, error) {
	id, ok := r.bySKU[sku]
	if !ok || r.deleted[id] {
		return Product{}, shared.ErrNotFound
	}
	return r.products[id], nil
}

func (r *fakeRepo) Create(_ context.Context, product Product) (Product, error) {
	if _, exists := r.bySKU[product.SKU]; exists {
		return Product{}, shared.ErrDuplicate
	}
	product.ID = uuid.New()
	r.products[product.ID] = product
	r.bySKU[product.SKU] = product.ID
	return product, nil
}

func (r *fakeRepo) Update(_ context.Context, id uuid.UUID, product Product) error {
	existing, ok := r.products[id]
	if !ok || r.deleted[id] {
		return shared.ErrNotFound
	}
	delete(r.bySKU, existing.SKU)
	product.ID = id
	r.products[id] = product
	r.bySKU[product.SKU] = id
	return nil
}

func (r *fakeRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.products[id]; !ok || r.deleted[id] {
		return shared.ErrNotFound
	}
	r.deleted[id] = true
	return nil
}

func validProduct() Product {
	return Product{
		SKU:      "SKU-001",
		Name:     "Widget",
		Unit:     "pcs",
		Price:    decimal.NewFromFloat(9.99),
		IsActive: true,
	}
}

func TestCreateValidatesRequiredFields(t *testing.T) {
	svc := NewService(newFakeRepo())
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*Product)
	}{
		{name: "missing sku", mutate: func(p *Product) { p.SKU = "  " }},
		{name: "missing name", mutate: func(p *Product) { p.Name = "" }},
		{name: "missing unit", mutate: func(p *Product) { p.Unit = "" }},
		{name: "negative price", mutate: func(p *Product) { p.Price = decimal.NewFromInt(-1) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validProduct()
			tc.mutate(&p)
			_, err := svc.Create(ctx, p)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestCreateRejectsDuplicateSKU(t *testing.T) {
	svc := NewService(newFakeRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, validProduct())
	require.NoError(t, err)

	_, err = svc.Create(ctx, validProduct())
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestFindBySKUTrimsInput(t *testing.T) {
	svc := NewService(newFakeRepo())
	ctx := context.Background()

	created, err := svc.Create(ctx, validProduct())
	require.NoError(t, err)

	found, err := svc.FindBySKU(ctx, "  SKU-001  ")
	require.NoError(t, err)
	require.Equal(t, created.ID, found.ID)

	_, err = svc.FindBySKU(ctx, "   ")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateRequiresKnownProduct(t *testing.T) {
	svc := NewService(newFakeRepo())
	ctx := context.Background()

	require.ErrorIs(t, svc.Update(ctx, uuid.Nil, validProduct()), shared.ErrValidation)
	require.ErrorIs(t, svc.Update(ctx, uuid.New(), validProduct()), shared.ErrNotFound)
}

func TestDeleteHidesProduct(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, validProduct())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created.ID))
	_, err = svc.Get(ctx, created.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	require.ErrorIs(t, svc.Delete(ctx, created.ID), shared.ErrNotFound)
}
