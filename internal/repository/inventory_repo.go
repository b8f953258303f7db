package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RezaTaheri01/telegram-store-bot/internal/models"
)

// InventoryRepo stores purchasable units. Payloads are stored as given;
// sealing happens in the caller.
type InventoryRepo struct {
	pool *pgxpool.Pool
}

func NewInventoryRepo(pool *pgxpool.Pool) *InventoryRepo {
	return &InventoryRepo{pool: pool}
}

// CreateItems stores one unsold item per payload in a single transaction.
func (r *InventoryRepo) CreateItems(ctx context.Context, productID uuid.UUID, payloads [][]byte) ([]*models.InventoryItem, error) {
	items := make([]*models.InventoryItem, 0, len(payloads))
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, payload := range payloads {
			it := &models.InventoryItem{ID: uuid.New(), ProductID: productID, Payload: payload}
			err := tx.QueryRow(ctx, `
				INSERT INTO inventory_items (id, product_id, payload)
				VALUES ($1, $2, $3)
				RETURNING created_at
			`, it.ID, it.ProductID, it.Payload).Scan(&it.CreatedAt)
			if err != nil {
				return err
			}
			items = append(items, it)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// LockAvailable locks the oldest unsold item of the product, skipping rows
// another transaction already holds. Call within a transaction.
func (r *InventoryRepo) LockAvailable(ctx context.Context, tx pgx.Tx, productID uuid.UUID) (*models.InventoryItem, error) {
	var it models.InventoryItem
	err := tx.QueryRow(ctx, `
		SELECT id, product_id, payload, is_purchased, is_deleted, buyer_id, purchased_at, created_at
		FROM inventory_items
		WHERE product_id = $1 AND NOT is_purchased AND NOT is_deleted
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, productID).Scan(&it.ID, &it.ProductID, &it.Payload, &it.IsPurchased, &it.IsDeleted, &it.BuyerID, &it.PurchasedAt, &it.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &it, nil
}

// MarkPurchased sets the purchased flag, buyer and timestamp together.
func (r *InventoryRepo) MarkPurchased(ctx context.Context, tx pgx.Tx, itemID uuid.UUID, buyerID int64, at time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE inventory_items
		SET is_purchased = TRUE, buyer_id = $2, purchased_at = $3
		WHERE id = $1 AND NOT is_purchased
	`, itemID, buyerID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// CountAvailable returns the number of unsold items of the product.
func (r *InventoryRepo) CountAvailable(ctx context.Context, productID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM inventory_items
		WHERE product_id = $1 AND NOT is_purchased AND NOT is_deleted
	`, productID).Scan(&n)
	return n, err
}

// ListPurchases returns one page of the buyer's items, newest first, and
// whether another page follows. Payloads are still sealed.
func (r *InventoryRepo) ListPurchases(ctx context.Context, buyerID int64, page int) ([]*models.Purchase, bool, error) {
	limit, offset := pageBounds(page)
	rows, err := r.pool.Query(ctx, `
		SELECT i.id, p.id, p.name, p.price::text, i.payload, i.purchased_at
		FROM inventory_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.buyer_id = $1 AND i.is_purchased
		ORDER BY i.purchased_at DESC
		LIMIT $2 OFFSET $3
	`, buyerID, limit, offset)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	list := []*models.Purchase{}
	for rows.Next() {
		var (
			p     models.Purchase
			price string
		)
		if err := rows.Scan(&p.ItemID, &p.ProductID, &p.ProductName, &price, &p.Payload, &p.PurchasedAt); err != nil {
			return nil, false, err
		}
		if p.Price, err = parseDecimal("price", price); err != nil {
			return nil, false, err
		}
		list = append(list, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	hasNext := len(list) > PageSize
	if hasNext {
		list = list[:PageSize]
	}
	return list, hasNext, nil
}
