package app

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/storage/file"
	"github.com/xenking/storefront/internal/storage/mysql"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/internal/storage/redis"
	"github.com/xenking/storefront/pkg/health"
)

// snapshotStore is a cart snapshot backend that can be probed for
// readiness.
type snapshotStore interface {
	cart.Repository
	health.Pinger
}

// openSnapshots connects the configured snapshot backend. The returned
// close function releases connections the backend owns.
func openSnapshots(ctx context.Context, lg *zap.Logger, cfg SnapshotConfig, pool *pgxpool.Pool) (snapshotStore, func(), error) {
	lg.Info("Opening cart snapshot backend", zap.String("backend", cfg.Backend))

	switch cfg.Backend {
	case BackendPostgres:
		return postgres.NewSnapshotRepository(pool), func() {}, nil

	case BackendRedis:
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "parse redis url")
		}
		client := goredis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, errors.Wrap(err, "ping redis")
		}
		return redis.NewSnapshotRepository(client, cfg.TTL), func() { _ = client.Close() }, nil

	case BackendMySQL:
		db, err := mysql.Open(ctx, cfg.MySQLDSN)
		if err != nil {
			return nil, nil, err
		}
		repo := mysql.NewSnapshotRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return repo, func() { _ = db.Close() }, nil

	case BackendFile:
		repo, err := file.NewSnapshotRepository(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {}, nil

	default:
		return nil, nil, errors.Errorf("unknown snapshot backend %q", cfg.Backend)
	}
}
