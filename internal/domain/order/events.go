package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
)

// EventType names an order lifecycle event.
type EventType string

const (
	EventOrderPlaced            EventType = "OrderPlaced"
	EventOrderCancelled         EventType = "OrderCancelled"
	EventDeliveryAddressChanged EventType = "DeliveryAddressChanged"
)

// Event records a successful change to an order.
type Event struct {
	ID         uuid.UUID
	Type       EventType
	OccurredAt time.Time
	Order      Order
}

// NewEvent stamps a new event for o.
func NewEvent(typ EventType, o Order) Event {
	return Event{
		ID:         uuid.New(),
		Type:       typ,
		OccurredAt: time.Now().UTC(),
		Order:      o,
	}
}

// Encode writes the event envelope as JSON.
func (ev Event) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("eventId")
	e.Str(ev.ID.String())
	e.FieldStart("eventType")
	e.Str(string(ev.Type))
	e.FieldStart("occurredAt")
	e.Str(ev.OccurredAt.Format(time.RFC3339Nano))
	e.FieldStart("order")
	ev.Order.Encode(e)
	e.ObjEnd()
}

// EventPublisher delivers order events to interested parties. Publish must
// not block on I/O.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event)
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}

// Decode reads an event envelope written by Encode.
func (ev *Event) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "eventId":
			var s string
			if s, err = d.Str(); err == nil {
				ev.ID, err = uuid.Parse(s)
			}
		case "eventType":
			var s string
			s, err = d.Str()
			ev.Type = EventType(s)
		case "occurredAt":
			ev.OccurredAt, err = decodeTime(d)
		case "order":
			err = ev.Order.Decode(d)
		default:
			err = d.Skip()
		}
		return errors.Wrapf(err, "decode %q", key)
	})
}
