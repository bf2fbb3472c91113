// Package cart implements the shopping cart store: an ordered list of line
// items keyed by product id, a total derived on every read, and an explicit
// snapshot boundary for persistence.
package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

// DefaultKey is the snapshot name used when none is configured.
const DefaultKey = "shopping-cart"

// ErrSnapshotNotFound is returned by a Repository when no snapshot is stored
// under the requested key.
var ErrSnapshotNotFound = errors.New("cart snapshot not found")

// Item is a product held in the cart together with its quantity.
// Quantity is always at least 1 for items inside a Store.
type Item struct {
	product.Product
	Quantity int
}

// LineTotal returns the discounted price multiplied by the quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice().Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Total sums LineTotal over items.
func Total(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// Repository stores cart snapshots by key.
type Repository interface {
	Save(ctx context.Context, key string, s Snapshot) error
	Load(ctx context.Context, key string) (Snapshot, error)
}
