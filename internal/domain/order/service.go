package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// PlaceOrderRequest holds the input for placing an order. A nil Items
// slice means the items were not supplied.
type PlaceOrderRequest struct {
	Name    string
	Email   string
	Address string
	Items   []LineItem
}

type serviceMetrics struct {
	placed         metric.Int64Counter
	rejected       metric.Int64Counter
	cancelled      metric.Int64Counter
	addressChanged metric.Int64Counter
	changeFailed   metric.Int64Counter
}

// Service wraps the Store with logging, metrics and event publication.
type Service struct {
	store   *Store
	events  EventPublisher
	metrics serviceMetrics
}

// NewService creates an order Service. A nil events publisher discards
// events.
func NewService(store *Store, events EventPublisher, meter metric.Meter) (*Service, error) {
	if events == nil {
		events = NopPublisher{}
	}
	s := &Service{store: store, events: events}

	var err error
	if s.metrics.placed, err = meter.Int64Counter("orders.placed",
		metric.WithDescription("Orders accepted"),
	); err != nil {
		return nil, errors.Wrap(err, "placed counter")
	}
	if s.metrics.rejected, err = meter.Int64Counter("orders.rejected",
		metric.WithDescription("Order placements rejected by validation"),
	); err != nil {
		return nil, errors.Wrap(err, "rejected counter")
	}
	if s.metrics.cancelled, err = meter.Int64Counter("orders.cancelled",
		metric.WithDescription("Orders cancelled"),
	); err != nil {
		return nil, errors.Wrap(err, "cancelled counter")
	}
	if s.metrics.addressChanged, err = meter.Int64Counter("orders.address_changed",
		metric.WithDescription("Delivery addresses modified"),
	); err != nil {
		return nil, errors.Wrap(err, "address counter")
	}
	if s.metrics.changeFailed, err = meter.Int64Counter("orders.change_failed",
		metric.WithDescription("Cancel or address changes refused, by reason"),
	); err != nil {
		return nil, errors.Wrap(err, "change failed counter")
	}
	if _, err := meter.Int64ObservableGauge("orders.stored",
		metric.WithDescription("Orders held in memory, cancelled included"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(store.Len()))
			return nil
		}),
	); err != nil {
		return nil, errors.Wrap(err, "stored gauge")
	}

	return s, nil
}

// PlaceOrder validates and stores a new order, then announces it.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (Order, error) {
	lg := zctx.From(ctx)

	o, err := s.store.Place(req.Name, req.Email, req.Address, req.Items)
	if err != nil {
		s.metrics.rejected.Add(ctx, 1)
		lg.Info("Order rejected", zap.Error(err))
		return Order{}, errors.Wrap(err, "place order")
	}
	s.metrics.placed.Add(ctx, 1)
	lg.Info("Order placed",
		zap.Int64("order_id", o.ID),
		zap.Int("items", len(o.Items)),
		zap.Time("delivery_time", o.DeliveryTime),
	)
	s.events.Publish(ctx, NewEvent(EventOrderPlaced, o))
	return o, nil
}

// OrdersByEmail lists the active orders of a customer.
func (s *Service) OrdersByEmail(ctx context.Context, email string) []Order {
	orders := s.store.ByEmail(email)
	zctx.From(ctx).Debug("Orders by email", zap.Int("count", len(orders)))
	return orders
}

// AllOrders lists every active order.
func (s *Service) AllOrders(ctx context.Context) []Order {
	orders := s.store.All()
	zctx.From(ctx).Debug("All orders", zap.Int("count", len(orders)))
	return orders
}

// CancelOrder cancels an order owned by email.
func (s *Service) CancelOrder(ctx context.Context, email string, id int64) bool {
	o, res := s.store.cancel(email, id)
	if !s.changed(ctx, "cancel", id, res) {
		return false
	}
	s.metrics.cancelled.Add(ctx, 1)
	s.events.Publish(ctx, NewEvent(EventOrderCancelled, o))
	return true
}

// ModifyDeliveryAddress changes the address of an order owned by email.
func (s *Service) ModifyDeliveryAddress(ctx context.Context, email string, id int64, address string) bool {
	o, res := s.store.modifyAddress(email, id, address)
	if !s.changed(ctx, "modify_address", id, res) {
		return false
	}
	s.metrics.addressChanged.Add(ctx, 1)
	s.events.Publish(ctx, NewEvent(EventDeliveryAddressChanged, o))
	return true
}

// changed logs the outcome of a change and reports whether it succeeded.
// The reason of a refusal is only visible here.
func (s *Service) changed(ctx context.Context, op string, id int64, res Outcome) bool {
	lg := zctx.From(ctx).With(zap.String("op", op), zap.Int64("order_id", id))
	if res != OutcomeOK {
		s.metrics.changeFailed.Add(ctx, 1, metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("reason", res.String()),
		))
		lg.Info("Order change refused", zap.Stringer("reason", res))
		return false
	}
	lg.Info("Order changed")
	return true
}

