// Package file stores cart snapshots as gzip-compressed JSON files.
package file

import (
	"context"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"

	"github.com/xenking/storefront/internal/domain/cart"
)

const ext = ".json.gz"

var _ cart.Repository = (*SnapshotRepository)(nil)

// SnapshotRepository writes one file per cart key under a directory.
type SnapshotRepository struct {
	dir string
}

// NewSnapshotRepository creates dir if needed and returns a repository
// rooted at it.
func NewSnapshotRepository(dir string) (*SnapshotRepository, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "create snapshot dir %s", dir)
	}
	return &SnapshotRepository{dir: dir}, nil
}

func (r *SnapshotRepository) path(key string) string {
	return filepath.Join(r.dir, url.PathEscape(key)+ext)
}

// Save writes the snapshot to a temporary file and renames it over the
// previous one, so readers never see a partial snapshot.
func (r *SnapshotRepository) Save(ctx context.Context, key string, s cart.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(r.dir, ".snapshot-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	gz := pgzip.NewWriter(tmp)
	if _, err := gz.Write(cart.MarshalSnapshot(s)); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "write snapshot %q", key)
	}
	if err := gz.Close(); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "flush snapshot %q", key)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close snapshot %q", key)
	}

	if err := os.Rename(tmp.Name(), r.path(key)); err != nil {
		return errors.Wrapf(err, "replace snapshot %q", key)
	}
	return nil
}

// Load reads the snapshot for key or returns cart.ErrSnapshotNotFound.
func (r *SnapshotRepository) Load(ctx context.Context, key string) (cart.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return cart.Snapshot{}, err
	}

	f, err := os.Open(r.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cart.Snapshot{}, cart.ErrSnapshotNotFound
		}
		return cart.Snapshot{}, errors.Wrapf(err, "open snapshot %q", key)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return cart.Snapshot{}, errors.Wrapf(err, "create gzip reader for %q", key)
	}
	defer func() { _ = gz.Close() }()

	data, err := io.ReadAll(gz)
	if err != nil {
		return cart.Snapshot{}, errors.Wrapf(err, "read snapshot %q", key)
	}
	return cart.UnmarshalSnapshot(data)
}

// Ping checks that the snapshot directory is still present.
func (r *SnapshotRepository) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(r.dir)
	if err != nil {
		return errors.Wrap(err, "stat snapshot dir")
	}
	if !info.IsDir() {
		return errors.Errorf("%s is not a directory", r.dir)
	}
	return nil
}
