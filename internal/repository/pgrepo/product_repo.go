package pgrepo

import (
	"context"
	"errors"
	"fmt"

	"whatprice-backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type productRepository struct {
	db *pgxpool.Pool
}

func NewProductRepository(db *pgxpool.Pool) domain.ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	query := `
		SELECT id, vendor_id, master_product_id, name, status, created_at, updated_at
		FROM products
		WHERE id = $1
	`

	var p domain.Product
	err := querier(ctx, r.db).QueryRow(ctx, query, id).Scan(
		&p.ID, &p.VendorID, &p.MasterProductID, &p.Name, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}
