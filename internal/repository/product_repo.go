package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RezaTaheri01/telegram-store-bot/internal/models"
)

type ProductRepo struct {
	pool *pgxpool.Pool
}

func NewProductRepo(pool *pgxpool.Pool) *ProductRepo {
	return &ProductRepo{pool: pool}
}

func (r *ProductRepo) Create(ctx context.Context, p *models.Product) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO products (id, name, name_en, name_fa, price)
		VALUES ($1, $2, $3, $4, $5::numeric)
		RETURNING created_at
	`, p.ID, p.Name, p.NameEN, p.NameFA, p.Price.String()).Scan(&p.CreatedAt)
}

// GetByID returns a live product or models.ErrNotFound.
func (r *ProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, `
		SELECT id, name, name_en, name_fa, price::text, is_deleted, created_at
		FROM products WHERE id = $1 AND NOT is_deleted
	`, id))
}

// ListAvailable returns live products with at least one unsold item.
func (r *ProductRepo) ListAvailable(ctx context.Context) ([]*models.Product, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name, p.name_en, p.name_fa, p.price::text, p.is_deleted, p.created_at
		FROM products p
		WHERE NOT p.is_deleted AND EXISTS (
			SELECT 1 FROM inventory_items i
			WHERE i.product_id = p.id AND NOT i.is_purchased AND NOT i.is_deleted
		)
		ORDER BY p.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func scanProduct(row pgx.Row) (*models.Product, error) {
	var (
		p     models.Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.NameEN, &p.NameFA, &price, &p.IsDeleted, &p.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	var err error
	if p.Price, err = parseDecimal("price", price); err != nil {
		return nil, err
	}
	return &p, nil
}
