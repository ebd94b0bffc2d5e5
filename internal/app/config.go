package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (ORDERS_ prefix), flags, or YAML config files.
type Config struct {
	Addr     string `default:"0.0.0.0:8080" usage:"API server listen address"`
	CORS     CORSConfig
	Graceful GracefulConfig
	Events   EventsConfig
	Store    StoreConfig
	Health   HealthConfig
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// EventsConfig controls order event publishing. Without brokers events are
// discarded.
type EventsConfig struct {
	Brokers []string `usage:"Kafka broker addresses; empty disables publishing"`
	Topic   string   `default:"orders.events" usage:"Kafka topic for order events"`
	Buffer  int      `default:"1024" usage:"Events queued before new ones are dropped"`
}

// StoreConfig sizes the customer e-mail filter of the order store.
type StoreConfig struct {
	ExpectedCustomers uint    `default:"100000" usage:"Expected number of distinct customer e-mails" flag:"expected-customers"`
	FalsePositiveRate float64 `default:"0.01" usage:"Target false positive rate of the e-mail filter" flag:"false-positive-rate"`
}

// HealthConfig controls the background probes.
type HealthConfig struct {
	Interval      time.Duration `default:"10s" usage:"Health check interval"`
	MaxGoroutines int           `default:"10000" usage:"Liveness fails above this goroutine count" flag:"max-goroutines"`
	// MaxHeapBytes takes the instance out of rotation once the in-memory
	// order book grows past it. Zero disables the check.
	MaxHeapBytes  uint64        `default:"0" usage:"Readiness fails above this many bytes of heap in use; 0 disables" flag:"max-heap-bytes"`
}

// LoadConfig loads configuration from environment variables, flags and YAML
// config files, then applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "ORDERS",
		Files:     []string{"config.yaml", "/etc/orders/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	return &cfg, nil
}

// applyPlatformDefaults honours the PORT variable set by Railway, Render and
// similar platforms unless an explicit address was configured.
func (c *Config) applyPlatformDefaults() {
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return errors.New("listen address is empty")
	case c.Store.ExpectedCustomers == 0:
		return errors.New("expected customers must be positive")
	case c.Store.FalsePositiveRate <= 0 || c.Store.FalsePositiveRate >= 1:
		return errors.Errorf("false positive rate %v is outside (0, 1)", c.Store.FalsePositiveRate)
	case len(c.Events.Brokers) > 0 && c.Events.Topic == "":
		return errors.New("events topic is required when brokers are set")
	case c.Events.Buffer <= 0:
		return errors.Errorf("events buffer %d must be positive", c.Events.Buffer)
	case c.Health.Interval <= 0:
		return errors.New("health interval must be positive")
	}
	return nil
}
