package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrInvalidPrice is returned by Validate for negative prices.
	ErrInvalidPrice = errors.New("price must not be negative")
	// ErrInvalidDiscount is returned by Validate for discounts outside [0, 100].
	ErrInvalidDiscount = errors.New("discount must be within [0, 100]")
)

var hundred = decimal.NewFromInt(100)

// Product represents a catalog item available for purchase.
type Product struct {
	ID    int64
	Name  string
	Price decimal.Decimal
	// Discount is a percentage in [0, 100]. An invalid (absent) value means
	// no discount.
	Discount decimal.NullDecimal
	Category string
	Image    Image
	// Attributes holds any other display fields, kept as raw JSON so they
	// survive a snapshot round trip untouched.
	Attributes map[string]jx.Raw
}

// Image holds responsive image URLs for a product.
type Image struct {
	Thumbnail string
	Mobile    string
	Tablet    string
	Desktop   string
}

// DiscountPercent returns the discount percentage, zero when absent.
func (p Product) DiscountPercent() decimal.Decimal {
	if !p.Discount.Valid {
		return decimal.Zero
	}
	return p.Discount.Decimal
}

// UnitPrice returns the price after applying the discount.
func (p Product) UnitPrice() decimal.Decimal {
	return p.Price.Mul(hundred.Sub(p.DiscountPercent())).Div(hundred)
}

// Validate checks catalog constraints. The cart never calls it: catalog
// writers do.
func (p Product) Validate() error {
	if p.Price.IsNegative() {
		return errors.Wrapf(ErrInvalidPrice, "product %d", p.ID)
	}
	if d := p.DiscountPercent(); d.IsNegative() || d.GreaterThan(hundred) {
		return errors.Wrapf(ErrInvalidDiscount, "product %d", p.ID)
	}
	return nil
}

// Clone returns a copy that shares no mutable state with p.
func (p Product) Clone() Product {
	if p.Attributes == nil {
		return p
	}
	attrs := make(map[string]jx.Raw, len(p.Attributes))
	for k, v := range p.Attributes {
		attrs[k] = append(jx.Raw(nil), v...)
	}
	p.Attributes = attrs
	return p
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
}

// Writer defines catalog write operations used by seeding and import tools.
type Writer interface {
	Upsert(ctx context.Context, p Product) error
}
