// Package mysql stores cart snapshots in MySQL.
package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-sql-driver/mysql"

	"github.com/xenking/storefront/internal/domain/cart"
)

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS cart_snapshots (
		cart_key   VARCHAR(191) NOT NULL PRIMARY KEY,
		snapshot   JSON NOT NULL,
		updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6)
	)`

	saveSnapshotSQL = `INSERT INTO cart_snapshots (cart_key, snapshot) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE snapshot = VALUES(snapshot)`

	loadSnapshotSQL = `SELECT snapshot FROM cart_snapshots WHERE cart_key = ?`
)

var _ cart.Repository = (*SnapshotRepository)(nil)

// Open connects to MySQL using a go-sql-driver DSN and verifies the
// connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parse mysql dsn")
	}
	cfg.ParseTime = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create mysql connector")
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping mysql")
	}
	return db, nil
}

// SnapshotRepository keeps one row per cart key.
type SnapshotRepository struct {
	db *sql.DB
}

// NewSnapshotRepository returns a SnapshotRepository on db.
func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// EnsureSchema creates the snapshot table when missing.
func (r *SnapshotRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createTableSQL); err != nil {
		return errors.Wrap(err, "create cart_snapshots table")
	}
	return nil
}

// Save replaces the snapshot stored under key.
func (r *SnapshotRepository) Save(ctx context.Context, key string, s cart.Snapshot) error {
	if _, err := r.db.ExecContext(ctx, saveSnapshotSQL, key, cart.MarshalSnapshot(s)); err != nil {
		return errors.Wrapf(err, "save cart snapshot %q", key)
	}
	return nil
}

// Load returns the snapshot stored under key or cart.ErrSnapshotNotFound.
func (r *SnapshotRepository) Load(ctx context.Context, key string) (cart.Snapshot, error) {
	var data []byte
	if err := r.db.QueryRowContext(ctx, loadSnapshotSQL, key).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cart.Snapshot{}, cart.ErrSnapshotNotFound
		}
		return cart.Snapshot{}, errors.Wrapf(err, "load cart snapshot %q", key)
	}
	return cart.UnmarshalSnapshot(data)
}

// Ping checks the connection to MySQL.
func (r *SnapshotRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
