package handler

import (
	"bytes"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/food-orders/internal/domain/order"
)

var errNotObject = errors.New("body is not a JSON object")

// objectDecoder returns a decoder positioned at a JSON object. An empty body
// reads as {}.
func objectDecoder(data []byte) (*jx.Decoder, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		data = []byte("{}")
	}
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return nil, errNotObject
	}
	return d, nil
}

// decodePlaceOrder decodes a place-order body. Missing order fields are
// reported before malformed items, and a non-array items value counts as
// missing.
func decodePlaceOrder(data []byte) (order.PlaceOrderRequest, error) {
	var (
		req     order.PlaceOrderRequest
		itemErr *order.ValidationError
	)
	d, err := objectDecoder(data)
	if err != nil {
		return req, err
	}
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "name":
			return decodeOptString(d, &req.Name)
		case "email":
			return decodeOptString(d, &req.Email)
		case "address":
			return decodeOptString(d, &req.Address)
		case "items":
			var err error
			req.Items, itemErr, err = decodeItems(d)
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return req, errors.Wrap(err, "decode body")
	}

	switch {
	case req.Name == "":
		return req, order.MissingField("name")
	case req.Email == "":
		return req, order.MissingField("email")
	case req.Address == "":
		return req, order.MissingField("address")
	case req.Items == nil:
		return req, order.MissingField("items")
	case itemErr != nil:
		return req, itemErr
	}
	return req, nil
}

// decodeOptString stores a string value in dst and ignores any other type.
func decodeOptString(d *jx.Decoder, dst *string) error {
	if d.Next() != jx.String {
		*dst = ""
		return d.Skip()
	}
	v, err := d.Str()
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// decodeItems decodes the items array. The first structurally invalid item
// is returned as a ValidationError; err is set only for malformed JSON.
func decodeItems(d *jx.Decoder) ([]order.LineItem, *order.ValidationError, error) {
	if d.Next() != jx.Array {
		return nil, nil, d.Skip()
	}

	var (
		items   = []order.LineItem{}
		invalid *order.ValidationError
		i       int
	)
	err := d.Arr(func(d *jx.Decoder) error {
		item, itemErr, err := decodeItem(d, i)
		if err != nil {
			return err
		}
		if itemErr != nil && invalid == nil {
			invalid = itemErr
		}
		items = append(items, item)
		i++
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return items, invalid, nil
}

// itemFields lists the keys every item must carry, in reporting order.
var itemFields = [...]string{"itemId", "name", "quantity", "price"}

func decodeItem(d *jx.Decoder, index int) (order.LineItem, *order.ValidationError, error) {
	var (
		item    order.LineItem
		invalid *order.ValidationError
		seen    = make(map[string]bool, len(itemFields))
	)
	if d.Next() != jx.Object {
		return item, order.InvalidItem(index, ""), d.Skip()
	}

	reject := func(d *jx.Decoder, field string) error {
		if invalid == nil {
			invalid = order.InvalidItem(index, field)
		}
		return d.Skip()
	}

	err := d.Obj(func(d *jx.Decoder, key string) error {
		seen[key] = true
		switch key {
		case "itemId", "name":
			if d.Next() != jx.String {
				return reject(d, key)
			}
			v, err := d.Str()
			if err != nil {
				return err
			}
			if key == "itemId" {
				item.ItemID = v
			} else {
				item.Name = v
			}
			return nil
		case "quantity":
			if d.Next() != jx.Number {
				return reject(d, key)
			}
			num, err := d.Num()
			if err != nil {
				return err
			}
			n, err := strconv.Atoi(string(num))
			if err != nil {
				invalid = firstInvalid(invalid, index, key)
				return nil
			}
			item.Quantity = n
			return nil
		case "price":
			if d.Next() != jx.Number {
				return reject(d, key)
			}
			num, err := d.Num()
			if err != nil {
				return err
			}
			price, err := decimal.NewFromString(string(num))
			if err != nil {
				invalid = firstInvalid(invalid, index, key)
				return nil
			}
			item.Price = price
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return item, nil, err
	}

	for _, field := range itemFields {
		if !seen[field] {
			invalid = firstInvalid(invalid, index, field)
			break
		}
	}
	return item, invalid, nil
}

func firstInvalid(current *order.ValidationError, index int, field string) *order.ValidationError {
	if current != nil {
		return current
	}
	return order.InvalidItem(index, field)
}
