package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/RezaTaheri01/telegram-store-bot/internal/models"
)

type APIKeyRepo struct {
	pool *pgxpool.Pool
}

func NewAPIKeyRepo(pool *pgxpool.Pool) *APIKeyRepo {
	return &APIKeyRepo{pool: pool}
}

// UpsertSeed registers keyHash under name, reactivating it if it exists.
func (r *APIKeyRepo) UpsertSeed(ctx context.Context, name, keyHash string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO api_keys (id, name, key_hash, is_active)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (key_hash) DO UPDATE SET is_active = TRUE, name = EXCLUDED.name
	`, uuid.New(), name, keyHash)
	return err
}

func (r *APIKeyRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_keys SET is_active = FALSE WHERE id = $1`, id)
	return err
}

// FindByKeyHash returns the active key for keyHash, or models.ErrNotFound.
func (r *APIKeyRepo) FindByKeyHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	var k models.APIKey
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, key_hash, is_active, created_at
		FROM api_keys
		WHERE key_hash = $1 AND is_active = TRUE
	`, keyHash).Scan(&k.ID, &k.Name, &k.KeyHash, &k.IsActive, &k.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &k, nil
}
