// Command catalog-import bulk loads sharded catalog feeds into PostgreSQL.
//
// Every shard is a gzip-compressed NDJSON file with one product per line.
// Shards are applied in name order and a product id that appears in more
// than one shard keeps the version from the last shard. Bloom filters over
// the ids of each shard find the few ids that may repeat, so only those are
// held in memory while everything else is streamed straight to the database.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	progressEvery = 100_000
	maxLineSize   = 1 << 20
)

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		expected    uint
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing catalog shards")
	flag.StringVar(&pattern, "pattern", "catalog-*.ndjson.gz", "shard file name pattern")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&expected, "expected", 1_000_000, "expected products per shard, sizes the bloom filters")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, pattern, databaseURL, expected); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, dataDir, pattern, databaseURL string, expected uint) error {
	shards, err := filepath.Glob(filepath.Join(dataDir, pattern))
	if err != nil {
		return errors.Wrap(err, "list shards")
	}
	if len(shards) == 0 {
		return errors.Errorf("no shards match %s in %s", pattern, dataDir)
	}
	slices.Sort(shards)

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	stats, err := importShards(ctx, shards, postgres.NewProductRepository(pool), expected)
	if err != nil {
		return err
	}

	slog.Info("import summary",
		slog.Int64("read", stats.Read.Load()),
		slog.Int64("invalid", stats.Invalid.Load()),
		slog.Int64("superseded", stats.Superseded.Load()),
		slog.Int64("upserted", stats.Upserted.Load()),
	)
	return nil
}

// Stats counts products per outcome.
type Stats struct {
	Read       atomic.Int64
	Invalid    atomic.Int64
	Superseded atomic.Int64
	Upserted   atomic.Int64
}

// shardResult holds what pass 2 found in one shard.
type shardResult struct {
	// held are products whose id may appear in a later shard.
	held map[int64]product.Product
	// overrides are ids that may also appear in an earlier shard.
	overrides map[int64]struct{}
}

// importShards runs both passes and writes the surviving products to w,
// which must be safe for concurrent use.
func importShards(ctx context.Context, shards []string, w product.Writer, expected uint) (*Stats, error) {
	stats := &Stats{}

	// Pass 1: one bloom filter of product ids per shard.
	slog.Info("pass 1: building bloom filters", slog.Int("shards", len(shards)))

	filters, err := buildFilters(ctx, shards, expected)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: write products no later shard can contain, hold the rest.
	slog.Info("pass 2: writing products")

	results := make([]shardResult, len(shards))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range shards {
		g.Go(func() error {
			res, err := writeShard(gctx, i, path, filters, w, stats)
			if err != nil {
				return errors.Wrapf(err, "shard %s", filepath.Base(path))
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Held products survive unless a later shard really has their id.
	var held int
	for i, res := range results {
		held += len(res.held)
		for id, p := range res.held {
			if supersededAfter(results, i, id) {
				stats.Superseded.Add(1)
				continue
			}
			if err := w.Upsert(ctx, p); err != nil {
				return nil, errors.Wrapf(err, "upsert product %d", id)
			}
			stats.Upserted.Add(1)
		}
	}
	slog.Info("resolved held products", slog.Int("held", held))

	return stats, nil
}

func supersededAfter(results []shardResult, shard int, id int64) bool {
	for _, later := range results[shard+1:] {
		if _, ok := later.overrides[id]; ok {
			return true
		}
	}
	return false
}

func buildFilters(ctx context.Context, shards []string, expected uint) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(shards))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range shards {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(expected, bloomFPR)
			var count int
			if err := streamShard(ctx, path, func(p product.Product) error {
				filter.Add(idKey(p.ID))
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.Int("shard", i+1), slog.Int("products", count))
				}
				return nil
			}, nil); err != nil {
				return errors.Wrapf(err, "build filter for shard %d", i+1)
			}

			slog.Info("pass 1 complete", slog.Int("shard", i+1), slog.Int("products", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

func writeShard(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	w product.Writer,
	stats *Stats,
) (shardResult, error) {
	res := shardResult{
		held:      make(map[int64]product.Product),
		overrides: make(map[int64]struct{}),
	}

	err := streamShard(ctx, path, func(p product.Product) error {
		stats.Read.Add(1)
		key := idKey(p.ID)

		for _, f := range filters[:idx] {
			if f.Test(key) {
				res.overrides[p.ID] = struct{}{}
				break
			}
		}
		for _, f := range filters[idx+1:] {
			if f.Test(key) {
				res.held[p.ID] = p
				return nil
			}
		}

		if err := w.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %d", p.ID)
		}
		stats.Upserted.Add(1)
		return nil
	}, func() { stats.Invalid.Add(1) })
	if err != nil {
		return shardResult{}, err
	}

	slog.Info("pass 2 complete",
		slog.Int("shard", idx+1),
		slog.Int("held", len(res.held)),
		slog.Int("overrides", len(res.overrides)),
	)
	return res, nil
}

func idKey(id int64) []byte {
	return strconv.AppendInt(nil, id, 10)
}

// streamShard decodes every product line of a gzip NDJSON file and calls
// fn with the valid ones. Lines that fail to decode or validate go to
// invalid, when set, and are otherwise skipped.
func streamShard(ctx context.Context, path string, fn func(product.Product) error, invalid func()) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)

	var line int
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}

		p, err := product.Decode(jx.DecodeBytes(data))
		if err == nil {
			err = p.Validate()
		}
		if err != nil {
			slog.Debug("skipping invalid product", slog.String("shard", filepath.Base(path)), slog.Int("line", line), slog.String("error", err.Error()))
			if invalid != nil {
				invalid()
			}
			continue
		}

		if err := fn(p); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
