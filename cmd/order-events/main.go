// Command order-events tails the order event topic and logs every event.
package main

import (
	"context"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/food-orders/internal/domain/order"
	"github.com/xenking/food-orders/internal/events/kafka"
)

type config struct {
	Brokers  []string      `default:"localhost:9092" usage:"Kafka broker addresses"`
	Topic    string        `default:"orders.events" usage:"Topic to read"`
	Group    string        `default:"order-events-tail" usage:"Consumer group"`
	RetryFor time.Duration `default:"1m" usage:"How long a failing event is retried before exiting" flag:"retry-for"`
}

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		var cfg config
		if err := aconfig.LoaderFor(&cfg, aconfig.Config{
			EnvPrefix: "ORDERS_TAIL",
			SkipFiles: true,
		}).Load(); err != nil {
			return errors.Wrap(err, "load config")
		}

		lg.Info("Tailing order events",
			zap.Strings("brokers", cfg.Brokers),
			zap.String("topic", cfg.Topic),
			zap.String("group", cfg.Group),
		)
		sub := kafka.NewSubscriber(kafka.SubscriberConfig{
			Brokers: cfg.Brokers,
			Topic:   cfg.Topic,
			GroupID: cfg.Group,
		}, kafka.WithRetry(100*time.Millisecond, cfg.RetryFor))
		return sub.Run(zctx.Base(ctx, lg), func(_ context.Context, ev order.Event) error {
			lg.Info("Event",
				zap.String("type", string(ev.Type)),
				zap.Stringer("event_id", ev.ID),
				zap.Time("occurred_at", ev.OccurredAt),
				zap.Int64("order_id", ev.Order.ID),
				zap.String("email", ev.Order.Email),
				zap.String("status", string(ev.Order.Status)),
				zap.String("address", ev.Order.Address),
			)
			return nil
		})
	})
}
