package bifrost

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/bifrost/internal/mqttsource"
)

// config holds mutable state during Bifrost construction.
type config struct {
	title           string
	port            int
	window          time.Duration
	historyCapacity int
	queueCapacity   int
	backpressure    Backpressure
	broker          *BrokerConfig
	targets         []PollTarget
	pollingInterval time.Duration
	maxConcurrency  int
	namesFile       string
	batchCallbacks  []func(Batch)
	logger          *slog.Logger
	registry        *prometheus.Registry
}

// Option is a function that configures a [Bifrost] instance during
// construction. Options return an error if validation fails.
type Option func(*config) error

// BrokerConfig describes the MQTT broker Bifrost subscribes to.
type BrokerConfig struct {
	// URL is the broker address. Supported schemes are tcp and mqtt
	// (default port 1883) and ssl, tls and mqtts (default port 8883).
	URL string

	// Topics are the subscription filters. Defaults to ["#"].
	Topics []string

	// QoS is the maximum QoS requested for each subscription (0-2).
	QoS byte

	// ClientID defaults to "bifrost-<uuid>".
	ClientID string

	Username string
	Password string

	// KeepAlive defaults to 30 seconds.
	KeepAlive time.Duration

	// TLSConfig applies to secure schemes. Nil uses the system roots.
	TLSConfig *tls.Config
}

func (b BrokerConfig) source() mqttsource.Config {
	return mqttsource.Config{
		URL:       b.URL,
		Topics:    append([]string(nil), b.Topics...),
		QoS:       b.QoS,
		ClientID:  b.ClientID,
		Username:  b.Username,
		Password:  b.Password,
		KeepAlive: b.KeepAlive,
		TLSConfig: b.TLSConfig,
	}
}

// WithPort sets the HTTP port for the dashboard, API and streams.
//
// Defaults to 5000. Port 0 lets the operating system pick a free port,
// reported by [Bifrost.Addr] once started.
//
// Returns an error if the port is outside 0-65535.
func WithPort(port int) Option {
	return func(cfg *config) error {
		if port < 0 || port > 65535 {
			return errors.New("port must be between 0 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithTitle sets the dashboard title displayed in the browser tab and header.
// Defaults to "Bifrost Dashboard".
func WithTitle(title string) Option {
	return func(cfg *config) error {
		cfg.title = title
		return nil
	}
}

// WithWindow sets the coalescing window: observers receive at most one
// batch per window, holding the latest payload of every topic updated
// during it. Defaults to 50ms.
//
// Returns an error if the duration is zero or negative.
func WithWindow(d time.Duration) Option {
	return func(cfg *config) error {
		if d <= 0 {
			return errors.New("window must be positive")
		}
		cfg.window = d
		return nil
	}
}

// WithHistoryCapacity sets how many samples are kept per topic.
// Defaults to 50.
//
// Returns an error if n is zero or negative.
func WithHistoryCapacity(n int) Option {
	return func(cfg *config) error {
		if n <= 0 {
			return errors.New("history capacity must be positive")
		}
		cfg.historyCapacity = n
		return nil
	}
}

// WithQueueCapacity sets how many inbound events may wait for the
// broadcaster. Defaults to 1000.
//
// Returns an error if n is zero or negative.
func WithQueueCapacity(n int) Option {
	return func(cfg *config) error {
		if n <= 0 {
			return errors.New("queue capacity must be positive")
		}
		cfg.queueCapacity = n
		return nil
	}
}

// WithBackpressure selects what happens when the ingestion queue is full.
// Defaults to [Block].
func WithBackpressure(p Backpressure) Option {
	return func(cfg *config) error {
		switch p {
		case Block, DropOldest, DropNewest:
			cfg.backpressure = p
			return nil
		default:
			return fmt.Errorf("unknown backpressure policy %v", p)
		}
	}
}

// WithBroker subscribes Bifrost to an MQTT broker. Every PUBLISH received
// on the configured filters is ingested as an event.
//
// The connection is retried with capped exponential backoff until Start
// returns, so an unreachable broker does not prevent startup.
//
// Example:
//
//	b, err := bifrost.New(
//	    bifrost.WithBroker(bifrost.BrokerConfig{
//	        URL:    "tcp://localhost:1883",
//	        Topics: []string{"sensors/#"},
//	    }),
//	)
//
// Returns an error if the URL, QoS or topic filters are invalid.
func WithBroker(b BrokerConfig) Option {
	return func(cfg *config) error {
		if err := b.source().Validate(); err != nil {
			return fmt.Errorf("broker: %w", err)
		}
		cfg.broker = &b
		return nil
	}
}

// WithPollTarget adds a single [PollTarget]. Can be called multiple times.
func WithPollTarget(t PollTarget) Option {
	return func(cfg *config) error {
		cfg.targets = append(cfg.targets, t)
		return nil
	}
}

// WithPollTargets adds multiple [PollTarget] values.
// Equivalent to calling [WithPollTarget] for each.
func WithPollTargets(targets ...PollTarget) Option {
	return func(cfg *config) error {
		cfg.targets = append(cfg.targets, targets...)
		return nil
	}
}

// WithPollingInterval sets the interval for poll targets without their own.
// Defaults to 15 seconds.
//
// Returns an error if the duration is zero or negative.
func WithPollingInterval(d time.Duration) Option {
	return func(cfg *config) error {
		if d <= 0 {
			return errors.New("polling interval must be positive")
		}
		cfg.pollingInterval = d
		return nil
	}
}

// WithMaxConcurrency limits how many poll targets are fetched at once.
// Defaults to 10.
//
// Returns an error if the value is zero or negative.
func WithMaxConcurrency(n int) Option {
	return func(cfg *config) error {
		if n <= 0 {
			return errors.New("max concurrency must be positive")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithNamesFile sets the JSON file display names are loaded from and saved
// to. Defaults to "custom_names.json" in the working directory. An empty
// path keeps names in memory only.
func WithNamesFile(path string) Option {
	return func(cfg *config) error {
		cfg.namesFile = path
		return nil
	}
}

// WithBatchCallback registers a function called with every emitted batch,
// after live observers have been served.
//
// Callbacks run synchronously on the broadcaster goroutine and execute in
// registration order, so they must not block: a slow callback delays the
// next window. Each callback gets its own copy of the batch. Panics are
// recovered and logged.
//
// Example:
//
//	b, err := bifrost.New(
//	    bifrost.WithBatchCallback(func(batch bifrost.Batch) {
//	        for _, e := range batch {
//	            if e.Topic == "plant/alarm" && e.Payload == "on" {
//	                go notify(e)
//	            }
//	        }
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithBatchCallback(cb func(Batch)) Option {
	return func(cfg *config) error {
		if cb == nil {
			return nil
		}
		cfg.batchCallbacks = append(cfg.batchCallbacks, cb)
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithMetricsRegistry registers the pipeline metrics on reg and serves reg
// on /metrics. By default Bifrost creates its own registry with the Go and
// process collectors.
//
// Returns an error if the registry is nil.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(cfg *config) error {
		if reg == nil {
			return errors.New("metrics registry cannot be nil")
		}
		cfg.registry = reg
		return nil
	}
}
