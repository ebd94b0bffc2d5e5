package order

import (
	"fmt"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DeliveryWindow is the fixed offset between placing an order and its
// promised delivery time.
const DeliveryWindow = 30 * time.Minute

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPlaced    Status = "Placed"
	StatusCancelled Status = "Cancelled"
)

// Active reports whether the status still allows changes.
func (s Status) Active() bool {
	return s != StatusCancelled
}

// Order is a customer's food order. Items and identity never change after
// placement; Address and Status are the only mutable fields.
type Order struct {
	ID           int64
	Name         string
	Email        string
	Address      string
	Items        []LineItem
	Status       Status
	DeliveryTime time.Time
}

// clone returns a copy that shares no memory with o.
func (o *Order) clone() Order {
	c := *o
	c.Items = slices.Clone(o.Items)
	return c
}

// LineItem represents a single line of an order.
type LineItem struct {
	ItemID   string
	Name     string
	Quantity int
	Price    decimal.Decimal
}

// Sentinel errors for order validation.
var (
	ErrRequiredFields = errors.New("name, email, address, and items are required")
	ErrInvalidItem    = errors.New("invalid item structure")
)

// ValidationError describes rejected order input. Err is one of
// ErrRequiredFields or ErrInvalidItem.
type ValidationError struct {
	Err error
	// Field names the offending field, if known.
	Field string
	// Index is the position of the offending item, or -1 when the error is
	// not about a particular item.
	Index int
}

func (e *ValidationError) Error() string {
	switch {
	case e.Index >= 0 && e.Field != "":
		return fmt.Sprintf("%s: item %d: %s", e.Err, e.Index, e.Field)
	case e.Index >= 0:
		return fmt.Sprintf("%s: item %d", e.Err, e.Index)
	case e.Field != "":
		return fmt.Sprintf("%s: %s", e.Err, e.Field)
	default:
		return e.Err.Error()
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// MissingField returns a ValidationError for an absent order-level field.
func MissingField(field string) *ValidationError {
	return &ValidationError{Err: ErrRequiredFields, Field: field, Index: -1}
}

// InvalidItem returns a ValidationError for the item at index.
func InvalidItem(index int, field string) *ValidationError {
	return &ValidationError{Err: ErrInvalidItem, Field: field, Index: index}
}

// validateItems applies the item policy: every item carries a non-empty
// itemId and name, a positive quantity and a price accepted by validPrice. An empty
// list is allowed.
func validateItems(items []LineItem) error {
	for i, item := range items {
		switch {
		case item.ItemID == "":
			return InvalidItem(i, "itemId")
		case item.Name == "":
			return InvalidItem(i, "name")
		case item.Quantity <= 0:
			return InvalidItem(i, "quantity")
		case !validPrice(item.Price):
			return InvalidItem(i, "price")
		}
	}
	return nil
}

const (
	// PriceScale is the number of fractional digits a price may carry.
	PriceScale = 2
	// MaxPriceDigits bounds the integer part of a price.
	MaxPriceDigits = 9

	// minPriceExp admits literals such as 12.990 whose extra digits are zeros.
	minPriceExp = -(MaxPriceDigits + PriceScale)
)

var maxPrice = decimal.New(1, MaxPriceDigits)

// validPrice accepts amounts in [0, 1e9) with at most two decimal places.
// The exponent is checked before any arithmetic: decimals compare by
// rescaling, so 1e50000000 must never reach Cmp or Round.
func validPrice(p decimal.Decimal) bool {
	if exp := p.Exponent(); exp > MaxPriceDigits || exp < minPriceExp {
		return false
	}
	if p.IsNegative() || !p.LessThan(maxPrice) {
		return false
	}
	return p.Equal(p.Round(PriceScale))
}
