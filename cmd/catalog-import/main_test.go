package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/product"
)

type memWriter struct {
	mu     sync.Mutex
	names  map[int64]string
	writes map[int64]int
	err    error
}

func newMemWriter() *memWriter {
	return &memWriter{names: make(map[int64]string), writes: make(map[int64]int)}
}

func (w *memWriter) Upsert(_ context.Context, p product.Product) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.names[p.ID] = p.Name
	w.writes[p.ID]++
	return nil
}

func createShard(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)

	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestImportShards_LastShardWins(t *testing.T) {
	dir := t.TempDir()
	shards := []string{
		createShard(t, dir, "catalog-1.ndjson.gz",
			`{"id":1,"name":"a1","price":1}`,
			`{"id":2,"name":"a2","price":2}`,
			`{"id":"broken"`,
			`{"id":3,"name":"a3","price":3}`,
		),
		createShard(t, dir, "catalog-2.ndjson.gz",
			`{"id":2,"name":"b2","price":2.5}`,
			``,
			`{"id":4,"name":"b4","price":4,"discount":10}`,
		),
		createShard(t, dir, "catalog-3.ndjson.gz",
			`{"id":3,"name":"c3","price":3.5}`,
			`{"id":2,"name":"c2","price":2.75}`,
			`{"id":5,"name":"c5","price":-1}`,
		),
	}

	w := newMemWriter()
	stats, err := importShards(context.Background(), shards, w, 100)
	require.NoError(t, err)

	assert.Equal(t, map[int64]string{1: "a1", 2: "c2", 3: "c3", 4: "b4"}, w.names)
	for id, n := range w.writes {
		assert.Equalf(t, 1, n, "product %d written %d times", id, n)
	}

	assert.EqualValues(t, 7, stats.Read.Load())
	assert.EqualValues(t, 2, stats.Invalid.Load())
	assert.EqualValues(t, 3, stats.Superseded.Load())
	assert.EqualValues(t, 4, stats.Upserted.Load())
}

func TestImportShards_SingleShardKeepsLastLine(t *testing.T) {
	dir := t.TempDir()
	shard := createShard(t, dir, "catalog-1.ndjson.gz",
		`{"id":7,"name":"first","price":1}`,
		`{"id":7,"name":"second","price":1}`,
	)

	w := newMemWriter()
	_, err := importShards(context.Background(), []string{shard}, w, 100)
	require.NoError(t, err)
	assert.Equal(t, "second", w.names[7])
}

func TestImportShards_WriterError(t *testing.T) {
	dir := t.TempDir()
	shard := createShard(t, dir, "catalog-1.ndjson.gz", `{"id":1,"name":"a","price":1}`)

	w := newMemWriter()
	w.err = errors.New("db down")
	_, err := importShards(context.Background(), []string{shard}, w, 100)
	require.ErrorContains(t, err, "db down")
}

func TestImportShards_NotGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog-1.ndjson.gz")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":1}`), 0o600))

	_, err := importShards(context.Background(), []string{path}, newMemWriter(), 100)
	require.Error(t, err)
}

func TestImportShards_Cancelled(t *testing.T) {
	dir := t.TempDir()
	shard := createShard(t, dir, "catalog-1.ndjson.gz", `{"id":1,"name":"a","price":1}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := importShards(ctx, []string{shard}, newMemWriter(), 100)
	require.ErrorIs(t, err, context.Canceled)
}
