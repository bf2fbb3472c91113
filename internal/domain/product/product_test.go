package product

import (
	"testing"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProduct_UnitPrice(t *testing.T) {
	tests := []struct {
		name     string
		price    string
		discount *int64
		want     string
	}{
		{name: "NoDiscount", price: "6.50", want: "6.5"},
		{name: "TenPercent", price: "6.50", discount: ptr(int64(10)), want: "5.85"},
		{name: "Free", price: "4.00", discount: ptr(int64(100)), want: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Product{Price: decimal.RequireFromString(tt.price)}
			if tt.discount != nil {
				p.Discount = decimal.NewNullDecimal(decimal.NewFromInt(*tt.discount))
			}
			got := p.UnitPrice()
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestProduct_Validate(t *testing.T) {
	ok := Product{ID: 1, Price: decimal.NewFromInt(3)}
	require.NoError(t, ok.Validate())

	neg := Product{ID: 2, Price: decimal.NewFromInt(-1)}
	require.ErrorIs(t, neg.Validate(), ErrInvalidPrice)

	over := Product{ID: 3, Price: decimal.NewFromInt(1), Discount: decimal.NewNullDecimal(decimal.NewFromInt(101))}
	require.ErrorIs(t, over.Validate(), ErrInvalidDiscount)
}

func TestProduct_Clone(t *testing.T) {
	p := Product{ID: 1, Attributes: map[string]jx.Raw{"tags": jx.Raw(`["a"]`)}}
	c := p.Clone()
	c.Attributes["tags"][2] = 'b'
	c.Attributes["new"] = jx.Raw(`1`)

	assert.Equal(t, `["a"]`, string(p.Attributes["tags"]))
	assert.NotContains(t, p.Attributes, "new")
}

func TestDecodeEncode(t *testing.T) {
	const input = `{
		"id": 1,
		"name": "Waffle with Berries",
		"price": 6.50,
		"discount": null,
		"category": "Waffle",
		"image": {"thumbnail": "t.jpg", "extra": "ignored"},
		"rating": 4.5
	}`

	p, err := Decode(jx.DecodeStr(input))
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ID)
	assert.False(t, p.Discount.Valid)
	assert.Equal(t, "t.jpg", p.Image.Thumbnail)
	assert.Equal(t, "4.5", string(p.Attributes["rating"]))

	e := &jx.Encoder{}
	Encode(e, p)
	assert.JSONEq(t, `{
		"id": 1,
		"name": "Waffle with Berries",
		"price": 6.5,
		"category": "Waffle",
		"image": {"thumbnail": "t.jpg", "mobile": "", "tablet": "", "desktop": ""},
		"rating": 4.5
	}`, e.String())
}

func TestEncode_SkipsShadowingAttributes(t *testing.T) {
	p := Product{
		ID:    7,
		Price: decimal.RequireFromString("0.10"),
		Attributes: map[string]jx.Raw{
			"price":    jx.Raw(`99`),
			"quantity": jx.Raw(`3`),
		},
	}
	e := &jx.Encoder{}
	Encode(e, p)

	got, err := Decode(jx.DecodeBytes(e.Bytes()))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.1").Equal(got.Price))
	assert.Empty(t, got.Attributes)
}

func TestDecodeDecimal(t *testing.T) {
	for _, in := range []string{`"12.345"`, `12.345`} {
		v, err := DecodeDecimal(jx.DecodeStr(in))
		require.NoError(t, err, in)
		assert.Equal(t, "12.345", v.String())
	}

	_, err := DecodeDecimal(jx.DecodeStr(`"abc"`))
	require.Error(t, err)
}

func ptr[T any](v T) *T { return &v }
