package cart

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/product"
)

// SnapshotVersion is written into every encoded snapshot.
const SnapshotVersion = 0

// Snapshot is the persisted form of a cart. It holds items only; the total
// is always derived.
type Snapshot struct {
	Version int
	Items   []Item
}

// MarshalSnapshot encodes s as
//
//	{"state":{"items":[...]},"version":0}
func MarshalSnapshot(s Snapshot) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("state")
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range s.Items {
		EncodeItem(&e, it)
	}
	e.ArrEnd()
	e.ObjEnd()
	e.FieldStart("version")
	e.Int(s.Version)
	e.ObjEnd()
	return e.Bytes()
}

// UnmarshalSnapshot decodes data produced by MarshalSnapshot. Unknown keys
// are ignored.
func UnmarshalSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "version":
			v, err := d.Int()
			if err != nil {
				return errors.Wrap(err, "version")
			}
			s.Version = v
		case "state":
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "items" {
					return d.Skip()
				}
				items, err := DecodeItems(d)
				if err != nil {
					return errors.Wrap(err, "items")
				}
				s.Items = items
				return nil
			})
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "decode cart snapshot")
	}
	return s, nil
}

// EncodeItem writes a line item as a flat product object with a quantity.
func EncodeItem(e *jx.Encoder, it Item) {
	e.ObjStart()
	product.EncodeFields(e, it.Product)
	e.FieldStart("quantity")
	e.Int(it.Quantity)
	e.ObjEnd()
}

// DecodeItems reads an array of line items.
func DecodeItems(d *jx.Decoder) ([]Item, error) {
	items := []Item{}
	err := d.Arr(func(d *jx.Decoder) error {
		var it Item
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			if key == "quantity" {
				q, err := d.Int()
				if err != nil {
					return errors.Wrap(err, "quantity")
				}
				it.Quantity = q
				return nil
			}
			return product.DecodeField(d, key, &it.Product)
		}); err != nil {
			return err
		}
		items = append(items, it)
		return nil
	})
	return items, err
}
