package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CursorRepo persists the deposit feed watermark.
type CursorRepo struct {
	pool *pgxpool.Pool
}

func NewCursorRepo(pool *pgxpool.Pool) *CursorRepo {
	return &CursorRepo{pool: pool}
}

// Get returns the stored position for key, or 0 if none was stored yet.
func (r *CursorRepo) Get(ctx context.Context, key string) (int64, error) {
	var lt int64
	err := r.pool.QueryRow(ctx, `SELECT last_lt FROM deposit_cursors WHERE key = $1`, key).Scan(&lt)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return lt, err
}

// Advance raises the cursor to lt under a row lock and returns the stored
// value afterwards. A lower lt leaves the cursor unchanged.
func (r *CursorRepo) Advance(ctx context.Context, key string, lt int64) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO deposit_cursors (key, last_lt) VALUES ($1, 0)
		ON CONFLICT (key) DO NOTHING
	`, key); err != nil {
		return 0, err
	}
	var current int64
	if err := tx.QueryRow(ctx, `
		SELECT last_lt FROM deposit_cursors WHERE key = $1 FOR UPDATE
	`, key).Scan(&current); err != nil {
		return 0, err
	}
	if lt > current {
		if _, err := tx.Exec(ctx, `
			UPDATE deposit_cursors SET last_lt = $2, updated_at = now() WHERE key = $1
		`, key, lt); err != nil {
			return 0, err
		}
		current = lt
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return current, nil
}
