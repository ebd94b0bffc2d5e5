// Package kafka publishes order lifecycle events to a Kafka topic.
package kafka

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/xenking/food-orders/internal/domain/order"
)

var _ order.EventPublisher = (*Publisher)(nil)

// Writer is the subset of *kafka.Writer used by Publisher.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config controls the publisher.
type Config struct {
	Brokers []string
	Topic   string
	// Buffer is the number of events held while the writer is busy. Events
	// beyond it are dropped.
	Buffer int
}

// writeTimeout bounds a single write, independently of the Run context.
const writeTimeout = 5 * time.Second

// Publisher queues events and writes them from a single goroutine, so
// Publish never waits on the broker.
type Publisher struct {
	brokers []string
	w       Writer
	inbox   chan kafka.Message

	// mu guards closed. Publish holds it shared while queueing, flush takes
	// it exclusively so nothing is queued after the final drain.
	mu     sync.RWMutex
	closed bool
}

// New returns a Publisher writing to cfg.Topic.
func New(cfg Config) *Publisher {
	return NewWithWriter(cfg, &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	})
}

// NewWithWriter returns a Publisher using w.
func NewWithWriter(cfg Config, w Writer) *Publisher {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	return &Publisher{
		brokers: cfg.Brokers,
		w:       w,
		inbox:   make(chan kafka.Message, cfg.Buffer),
	}
}

// Publish encodes ev and queues it, keyed by order ID.
func (p *Publisher) Publish(ctx context.Context, ev order.Event) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	ev.Encode(e)

	msg := kafka.Message{
		Key:   strconv.AppendInt(nil, ev.Order.ID, 10),
		Value: append([]byte(nil), e.Bytes()...),
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		zctx.From(ctx).Warn("Publisher closed, dropping event",
			zap.String("event_type", string(ev.Type)),
			zap.Int64("order_id", ev.Order.ID),
		)
		return
	}

	select {
	case p.inbox <- msg:
	default:
		zctx.From(ctx).Warn("Event buffer full, dropping event",
			zap.String("event_type", string(ev.Type)),
			zap.Int64("order_id", ev.Order.ID),
		)
	}
}

// Run writes queued events until ctx is cancelled, then flushes what is
// left and closes the writer. Cancel ctx only once nothing else will Publish,
// e.g. after the HTTP server has shut down.
func (p *Publisher) Run(ctx context.Context) error {
	lg := zctx.From(ctx)
	for {
		select {
		case <-ctx.Done():
			return p.flush(lg)
		case msg := <-p.inbox:
			p.write(lg, msg)
		}
	}
}

// write sends msg with its own deadline, so an event dequeued just before
// cancellation is still delivered.
func (p *Publisher) write(lg *zap.Logger, msg kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := p.w.WriteMessages(ctx, msg); err != nil {
		lg.Error("Write event", zap.Error(err), zap.ByteString("key", msg.Key))
	}
}

func (p *Publisher) flush(lg *zap.Logger) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case msg := <-p.inbox:
			p.write(lg, msg)
		default:
			return errors.Wrap(p.w.Close(), "close writer")
		}
	}
}

// Ping dials the first reachable broker.
func (p *Publisher) Ping(ctx context.Context) error {
	var lastErr error
	for _, addr := range p.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	if lastErr == nil {
		return errors.New("no brokers configured")
	}
	return errors.Wrap(lastErr, "dial broker")
}
