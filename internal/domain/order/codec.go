package order

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Encode writes o using the public JSON field names.
func (o Order) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("orderId")
	e.Int64(o.ID)
	e.FieldStart("name")
	e.Str(o.Name)
	e.FieldStart("email")
	e.Str(o.Email)
	e.FieldStart("address")
	e.Str(o.Address)
	e.FieldStart("items")
	e.ArrStart()
	for _, item := range o.Items {
		item.Encode(e)
	}
	e.ArrEnd()
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("deliveryTime")
	e.Str(o.DeliveryTime.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
}

// Encode writes the item with its price as a JSON number.
func (li LineItem) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("itemId")
	e.Str(li.ItemID)
	e.FieldStart("name")
	e.Str(li.Name)
	e.FieldStart("quantity")
	e.Int(li.Quantity)
	e.FieldStart("price")
	e.Raw([]byte(li.Price.String()))
	e.ObjEnd()
}

// Decode reads an order written by Encode. Unknown fields are skipped.
func (o *Order) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "orderId":
			o.ID, err = d.Int64()
		case "name":
			o.Name, err = d.Str()
		case "email":
			o.Email, err = d.Str()
		case "address":
			o.Address, err = d.Str()
		case "status":
			var s string
			s, err = d.Str()
			o.Status = Status(s)
		case "deliveryTime":
			o.DeliveryTime, err = decodeTime(d)
		case "items":
			o.Items = []LineItem{}
			err = d.Arr(func(d *jx.Decoder) error {
				var li LineItem
				if err := li.Decode(d); err != nil {
					return err
				}
				o.Items = append(o.Items, li)
				return nil
			})
		default:
			err = d.Skip()
		}
		return errors.Wrapf(err, "decode %q", key)
	})
}

// Decode reads an item written by Encode.
func (li *LineItem) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "itemId":
			li.ItemID, err = d.Str()
		case "name":
			li.Name, err = d.Str()
		case "quantity":
			li.Quantity, err = d.Int()
		case "price":
			var num jx.Num
			if num, err = d.Num(); err == nil {
				li.Price, err = decimal.NewFromString(string(num))
			}
		default:
			err = d.Skip()
		}
		return errors.Wrapf(err, "decode %q", key)
	})
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, s)
}
