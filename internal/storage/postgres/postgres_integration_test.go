//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/product"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "shop",
				"POSTGRES_PASSWORD": "shop",
				"POSTGRES_DB":       "shop",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	endpoint, err := c.PortEndpoint(ctx, "5432/tcp", "")
	require.NoError(t, err)

	pool, err := NewPool(ctx, "postgres://shop:shop@"+endpoint+"/shop?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	// Migrations are idempotent.
	require.NoError(t, RunMigrations(ctx, pool))
	return pool
}

func TestPostgres(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()

	t.Run("products", func(t *testing.T) {
		repo := NewProductRepository(pool)

		tiramisu := product.Product{
			ID:         4,
			Name:       "Classic Tiramisu",
			Price:      decimal.RequireFromString("5.50"),
			Discount:   decimal.NewNullDecimal(decimal.NewFromInt(20)),
			Category:   "Tiramisu",
			Image:      product.Image{Thumbnail: "/t.jpg"},
			Attributes: map[string]jx.Raw{"allergens": jx.Raw(`["egg","milk"]`)},
		}
		waffle := product.Product{ID: 1, Name: "Waffle", Price: decimal.RequireFromString("6.50")}

		require.NoError(t, repo.Upsert(ctx, tiramisu))
		require.NoError(t, repo.Upsert(ctx, waffle))

		all, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, int64(1), all[0].ID)
		assert.False(t, all[0].Discount.Valid)

		got, err := repo.GetByID(ctx, 4)
		require.NoError(t, err)
		assert.True(t, got.Discount.Valid)
		assert.True(t, decimal.NewFromInt(20).Equal(got.Discount.Decimal))
		assert.True(t, decimal.RequireFromString("4.40").Equal(got.UnitPrice()))
		assert.JSONEq(t, `["egg","milk"]`, string(got.Attributes["allergens"]))

		_, err = repo.GetByID(ctx, 99)
		require.ErrorIs(t, err, product.ErrNotFound)

		some, err := repo.GetByIDs(ctx, []int64{4, 99})
		require.NoError(t, err)
		require.Len(t, some, 1)
		assert.Equal(t, "Classic Tiramisu", some[0].Name)
	})

	t.Run("snapshots", func(t *testing.T) {
		repo := NewSnapshotRepository(pool)

		_, err := repo.Load(ctx, "missing")
		require.ErrorIs(t, err, cart.ErrSnapshotNotFound)

		s := cart.New(cart.WithPersistence(repo, "shopping-cart:pg"))
		s.AddItem(product.Product{ID: 2, Price: decimal.NewFromInt(50), Discount: decimal.NewNullDecimal(decimal.NewFromInt(20))})
		s.AddItem(product.Product{ID: 2, Price: decimal.NewFromInt(50), Discount: decimal.NewNullDecimal(decimal.NewFromInt(20))})
		require.NoError(t, s.Persist(ctx))

		restored := cart.New(cart.WithPersistence(repo, "shopping-cart:pg"))
		require.NoError(t, restored.Rehydrate(ctx))
		assert.True(t, decimal.NewFromInt(80).Equal(restored.Total()))

		s.ClearCart()
		require.NoError(t, s.Persist(ctx))
		require.NoError(t, restored.Rehydrate(ctx))
		assert.Empty(t, restored.Items())
	})
}
