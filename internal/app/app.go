package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/food-orders/internal/domain/order"
	"github.com/xenking/food-orders/internal/events/kafka"
	"github.com/xenking/food-orders/internal/handler"
	"github.com/xenking/food-orders/pkg/health"
	"github.com/xenking/food-orders/pkg/httpmiddleware"
)

const serviceName = "food-orders"

// Run creates all dependencies, starts the HTTP server and the event
// publisher, and handles graceful shutdown. It is the single wiring point for
// the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	store := order.NewStore(
		order.WithEmailFilter(cfg.Store.ExpectedCustomers, cfg.Store.FalsePositiveRate),
	)

	healthSvc := health.New()
	healthSvc.Register(health.Liveness, "goroutines", health.GoroutineCountCheck(cfg.Health.MaxGoroutines))
	if cfg.Health.MaxHeapBytes > 0 {
		healthSvc.Register(health.Readiness, "heap", health.HeapInuseCheck(cfg.Health.MaxHeapBytes))
	}

	var (
		events    order.EventPublisher = order.NopPublisher{}
		publisher *kafka.Publisher
	)
	if len(cfg.Events.Brokers) > 0 {
		publisher = kafka.New(kafka.Config{
			Brokers: cfg.Events.Brokers,
			Topic:   cfg.Events.Topic,
			Buffer:  cfg.Events.Buffer,
		})
		healthSvc.Register(health.Readiness, "kafka", health.PingCheck("kafka", publisher),
			health.WithTimeout(5*time.Second),
		)
		events = publisher
		lg.Info("Publishing order events",
			zap.Strings("brokers", cfg.Events.Brokers),
			zap.String("topic", cfg.Events.Topic),
		)
	}

	svc, err := order.NewService(store, events, m.MeterProvider().Meter(serviceName))
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		BaseContext: func(_ net.Listener) context.Context {
			return zctx.Base(context.WithoutCancel(ctx), lg)
		},
		Handler: newHandler(lg, cfg, svc, healthSvc, m.TracerProvider(), m.MeterProvider()),
	}

	g, gctx := errgroup.WithContext(ctx)

	// Handlers keep publishing while the server drains, so the publisher
	// runs on its own context and is stopped by drain.
	stopEvents := func() {}
	if publisher != nil {
		pubCtx, cancel := context.WithCancel(zctx.Base(context.WithoutCancel(ctx), lg.Named("events")))
		stopEvents = cancel
		g.Go(func() error {
			return publisher.Run(pubCtx)
		})
	}

	healthSvc.Start(gctx, cfg.Health.Interval)
	healthSvc.SetReady(true)

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		drain(lg, cfg.Graceful, server, healthSvc, stopEvents)
		return nil
	})

	return g.Wait()
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// drain takes the instance out of rotation, waits for in-flight requests and
// only then stops the event publisher.
func drain(lg *zap.Logger, cfg GracefulConfig, server shutdowner, healthSvc *health.Health, stopEvents func()) {
	healthSvc.SetReady(false)
	lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.ReadinessDelay))
	time.Sleep(cfg.ReadinessDelay)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	lg.Info("Shutting down server", zap.Duration("timeout", cfg.ShutdownTimeout))
	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Error("Server shutdown error", zap.Error(err))
	}
	stopEvents()
	healthSvc.Stop()
}

// newHandler mounts the order API and the probes behind the middleware chain.
func newHandler(
	lg *zap.Logger,
	cfg *Config,
	svc *order.Service,
	healthSvc *health.Health,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) http.Handler {
	router := handler.NewRouter(handler.NewHandler(svc))
	router.HandleFunc("/livez", healthSvc.LiveEndpoint).Methods(http.MethodGet)
	router.HandleFunc("/readyz", healthSvc.ReadyEndpoint).Methods(http.MethodGet)

	find := httpmiddleware.MakeRouteFinder(router)
	return httpmiddleware.Wrap(router,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			Origins:          cfg.CORS.Origins,
			AllowCredentials: cfg.CORS.AllowCredentials,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.Instrument(serviceName, find, tp, mp),
		httpmiddleware.LogRequests(find),
		httpmiddleware.Labeler(find),
	)
}
