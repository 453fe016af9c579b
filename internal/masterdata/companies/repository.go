package companies

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockpile-ims/stockpile/internal/masterdata/shared"
)

// Repository persists the company profile.
type Repository interface {
	Get(ctx context.Context) (Company, error)
	Upsert(ctx context.Context, company Company) (Company, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Get(ctx context.Context) (Company, error) {
	row := r.db.QueryRow(ctx, `SELECT id, name, address, phone, email, tax_number, created_at, updated_at
FROM companies ORDER BY created_at ASC LIMIT 1`)
	var c Company
	err := row.Scan(&c.ID, &c.Name, &c.Address, &c.Phone, &c.Email, &c.TaxNumber, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Company{}, shared.ErrNotFound
		}
		return Company{}, err
	}
	return c, nil
}

func (r *repository) Upsert(ctx context.Context, company Company) (Company, error) {
	existing, err := r.Get(ctx)
	now := time.Now().UTC()
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			return Company{}, err
		}
		company.ID = uuid.New()
		company.CreatedAt = now
		company.UpdatedAt = now
		_, err = r.db.Exec(ctx, `INSERT INTO companies (id, name, address, phone, email, tax_number, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			company.ID, company.Name, company.Address, company.Phone, company.Email, company.TaxNumber, now, now)
		if err != nil {
			return Company{}, err
		}
		return company, nil
	}

	company.ID = existing.ID
	company.CreatedAt = existing.CreatedAt
	company.UpdatedAt = now
	_, err = r.db.Exec(ctx, `UPDATE companies SET name = $1, address = $2, phone = $3, email = $4, tax_number = $5, updated_at = $6
WHERE id = $7`,
		company.Name, company.Address, company.Phone, company.Email, company.TaxNumber, now, company.ID)
	if err != nil {
		return Company{}, err
	}
	return company, nil
}
