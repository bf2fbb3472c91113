// Package redis stores cart snapshots in Redis.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/storefront/internal/domain/cart"
)

var _ cart.Repository = (*SnapshotRepository)(nil)

// SnapshotRepository keeps one string value per cart key.
type SnapshotRepository struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewSnapshotRepository returns a SnapshotRepository. Snapshots expire
// after ttl of inactivity; zero keeps them forever.
func NewSnapshotRepository(client redis.UniversalClient, ttl time.Duration) *SnapshotRepository {
	return &SnapshotRepository{client: client, ttl: ttl}
}

// Save replaces the snapshot under key and refreshes its expiry.
func (r *SnapshotRepository) Save(ctx context.Context, key string, s cart.Snapshot) error {
	if err := r.client.Set(ctx, key, cart.MarshalSnapshot(s), r.ttl).Err(); err != nil {
		return errors.Wrapf(err, "save cart snapshot %q", key)
	}
	return nil
}

// Load returns the snapshot under key or cart.ErrSnapshotNotFound.
func (r *SnapshotRepository) Load(ctx context.Context, key string) (cart.Snapshot, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return cart.Snapshot{}, cart.ErrSnapshotNotFound
		}
		return cart.Snapshot{}, errors.Wrapf(err, "load cart snapshot %q", key)
	}
	return cart.UnmarshalSnapshot(data)
}

// Ping checks the connection to Redis.
func (r *SnapshotRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
