package kafka

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/xenking/food-orders/internal/domain/order"
)

// Reader is the subset of *kafka.Reader used by Subscriber.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// SubscriberConfig selects the topic and consumer group to read.
type SubscriberConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Handler processes one decoded event. A failing event is retried with
// exponential backoff and never skipped.
type Handler func(ctx context.Context, ev order.Event) error

// Subscriber reads order events one at a time, preserving per-order ordering.
type Subscriber struct {
	r Reader

	retryInitial time.Duration
	retryFor     time.Duration
}

// SubscriberOption configures a Subscriber.
type SubscriberOption func(s *Subscriber)

// WithRetry sets the first retry delay of a failing handler and how long an
// event is retried before Run gives up.
func WithRetry(initial, maxElapsed time.Duration) SubscriberOption {
	return func(s *Subscriber) {
		s.retryInitial = initial
		s.retryFor = maxElapsed
	}
}

// NewSubscriber returns a Subscriber joined to cfg.GroupID with manual
// commits.
func NewSubscriber(cfg SubscriberConfig, opts ...SubscriberOption) *Subscriber {
	return NewSubscriberWithReader(kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	}), opts...)
}

// NewSubscriberWithReader returns a Subscriber using r.
func NewSubscriberWithReader(r Reader, opts ...SubscriberOption) *Subscriber {
	s := &Subscriber{
		r:            r,
		retryInitial: 100 * time.Millisecond,
		retryFor:     time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run feeds events to h until ctx is cancelled. Messages that do not decode
// are logged and committed. When h keeps failing past the retry window Run
// returns an error with the offset uncommitted, so the consumer group
// redelivers the event to the next member.
func (s *Subscriber) Run(ctx context.Context, h Handler) error {
	defer func() { _ = s.r.Close() }()
	lg := zctx.From(ctx)

	for {
		msg, err := s.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "fetch message")
		}

		var ev order.Event
		if err := ev.Decode(jx.DecodeBytes(msg.Value)); err != nil {
			lg.Warn("Skipping undecodable event",
				zap.Error(err),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
		} else if err := s.handle(ctx, h, ev, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrapf(err, "handle event at offset %d", msg.Offset)
		}

		if err := s.r.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "commit message")
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, h Handler, ev order.Event, msg kafka.Message) error {
	lg := zctx.From(ctx)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryInitial

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, h(ctx, ev)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(s.retryFor),
		backoff.WithNotify(func(err error, next time.Duration) {
			lg.Warn("Handle event, retrying",
				zap.Error(err),
				zap.Stringer("event_id", ev.ID),
				zap.Int64("offset", msg.Offset),
				zap.Duration("backoff", next),
			)
		}),
	)
	return err
}
