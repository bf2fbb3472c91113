package product

import (
	"maps"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Encode writes p as a JSON object. Attributes are written after the known
// fields; attribute keys that collide with a known field are skipped.
func Encode(e *jx.Encoder, p Product) {
	e.ObjStart()
	EncodeFields(e, p)
	e.ObjEnd()
}

// EncodeFields writes the fields of p into an already open object so that
// callers can extend it with their own fields.
func EncodeFields(e *jx.Encoder, p Product) {
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("price")
	EncodeDecimal(e, p.Price)
	if p.Discount.Valid {
		e.FieldStart("discount")
		EncodeDecimal(e, p.Discount.Decimal)
	}
	e.FieldStart("category")
	e.Str(p.Category)
	e.FieldStart("image")
	e.ObjStart()
	e.FieldStart("thumbnail")
	e.Str(p.Image.Thumbnail)
	e.FieldStart("mobile")
	e.Str(p.Image.Mobile)
	e.FieldStart("tablet")
	e.Str(p.Image.Tablet)
	e.FieldStart("desktop")
	e.Str(p.Image.Desktop)
	e.ObjEnd()
	for _, k := range slices.Sorted(maps.Keys(p.Attributes)) {
		v := p.Attributes[k]
		if isKnownField(k) || len(v) == 0 {
			continue
		}
		e.FieldStart(k)
		e.Raw(v)
	}
}

// Decode reads a product object. Unknown fields are collected into
// Attributes.
func Decode(d *jx.Decoder) (Product, error) {
	var p Product
	err := d.Obj(func(d *jx.Decoder, key string) error {
		return DecodeField(d, key, &p)
	})
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

// DecodeField decodes a single product field into p. Objects that embed
// product fields (cart items) use it for every key they do not own.
func DecodeField(d *jx.Decoder, key string, p *Product) error {
	switch key {
	case "id":
		v, err := d.Int64()
		if err != nil {
			return errors.Wrap(err, "id")
		}
		p.ID = v
	case "name":
		v, err := d.Str()
		if err != nil {
			return errors.Wrap(err, "name")
		}
		p.Name = v
	case "price":
		v, err := DecodeDecimal(d)
		if err != nil {
			return errors.Wrap(err, "price")
		}
		p.Price = v
	case "discount":
		if d.Next() == jx.Null {
			p.Discount = decimal.NullDecimal{}
			return d.Null()
		}
		v, err := DecodeDecimal(d)
		if err != nil {
			return errors.Wrap(err, "discount")
		}
		p.Discount = decimal.NewNullDecimal(v)
	case "category":
		v, err := d.Str()
		if err != nil {
			return errors.Wrap(err, "category")
		}
		p.Category = v
	case "image":
		if err := decodeImage(d, &p.Image); err != nil {
			return errors.Wrap(err, "image")
		}
	default:
		raw, err := d.Raw()
		if err != nil {
			return errors.Wrapf(err, "attribute %q", key)
		}
		if p.Attributes == nil {
			p.Attributes = make(map[string]jx.Raw)
		}
		p.Attributes[key] = append(jx.Raw(nil), raw...)
	}
	return nil
}

func decodeImage(d *jx.Decoder, img *Image) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var dst *string
		switch key {
		case "thumbnail":
			dst = &img.Thumbnail
		case "mobile":
			dst = &img.Mobile
		case "tablet":
			dst = &img.Tablet
		case "desktop":
			dst = &img.Desktop
		default:
			return d.Skip()
		}
		v, err := d.Str()
		if err != nil {
			return err
		}
		*dst = v
		return nil
	})
}

// EncodeDecimal writes v as a JSON number without losing precision.
func EncodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.String()))
}

// DecodeDecimal reads a JSON number or a numeric string.
func DecodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	if d.Next() == jx.String {
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	}
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(n.String())
}

// isKnownField reports keys that never pass through as attributes.
// "quantity" is reserved for cart line items.
func isKnownField(k string) bool {
	switch k {
	case "id", "name", "price", "discount", "category", "image", "quantity":
		return true
	}
	return false
}
