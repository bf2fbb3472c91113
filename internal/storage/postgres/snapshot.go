package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/cart"
)

const (
	saveSnapshotSQL = `INSERT INTO cart_snapshots (key, snapshot)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = now()`

	loadSnapshotSQL = `SELECT snapshot FROM cart_snapshots WHERE key = $1`
)

var _ cart.Repository = (*SnapshotRepository)(nil)

// SnapshotRepository stores cart snapshots in a JSONB column.
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepository returns a SnapshotRepository that uses the given pool.
func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

// Save replaces the snapshot stored under key.
func (r *SnapshotRepository) Save(ctx context.Context, key string, s cart.Snapshot) error {
	if _, err := r.pool.Exec(ctx, saveSnapshotSQL, key, cart.MarshalSnapshot(s)); err != nil {
		return errors.Wrapf(err, "save cart snapshot %q", key)
	}
	return nil
}

// Load returns the snapshot stored under key or cart.ErrSnapshotNotFound.
func (r *SnapshotRepository) Load(ctx context.Context, key string) (cart.Snapshot, error) {
	var data []byte
	if err := r.pool.QueryRow(ctx, loadSnapshotSQL, key).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cart.Snapshot{}, cart.ErrSnapshotNotFound
		}
		return cart.Snapshot{}, errors.Wrapf(err, "load cart snapshot %q", key)
	}
	return cart.UnmarshalSnapshot(data)
}

// Ping checks the connection to PostgreSQL.
func (r *SnapshotRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
