package bifrost

import (
	"errors"
	"maps"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultTargetTimeout = 10 * time.Second

	minTargetInterval = 100 * time.Millisecond
	maxTargetInterval = time.Hour
)

// PollTarget is an HTTP resource polled for telemetry.
//
// Every successful poll publishes one event under the target's topic, just
// as if the payload had arrived from the broker. PollTarget is immutable
// after creation via [NewPollTarget]; getters return copies of mutable data.
type PollTarget struct {
	topic     string
	url       string
	headers   map[string]string
	timeout   time.Duration
	extractor PayloadExtractor
	method    string
	interval  time.Duration
}

// Topic returns the topic readings are published under.
func (t PollTarget) Topic() string {
	return t.topic
}

// URL returns the polled URL.
func (t PollTarget) URL() string {
	return t.url
}

// Headers returns a copy of the custom HTTP headers sent with every poll.
func (t PollTarget) Headers() map[string]string {
	return maps.Clone(t.headers)
}

// Timeout returns the request timeout. Defaults to 10 seconds.
func (t PollTarget) Timeout() time.Duration {
	return t.timeout
}

// Extractor returns the target's [PayloadExtractor], or nil when
// [DefaultExtractor] applies.
func (t PollTarget) Extractor() PayloadExtractor {
	return t.extractor
}

// Method returns the HTTP method. Empty means GET.
func (t PollTarget) Method() string {
	return t.method
}

// Interval returns the target's own polling interval, or 0 when the global
// interval configured via [WithPollingInterval] applies.
func (t PollTarget) Interval() time.Duration {
	return t.interval
}

// NewPollTarget creates a [PollTarget] publishing under topic.
//
// The rawURL parameter must be a valid URL with an http or https scheme.
// Options are applied in order; see [WithHeaders], [WithTimeout],
// [WithExtractor], [WithMethod] and [WithInterval].
//
// Returns an error if the topic is empty or the URL is invalid.
//
// Example:
//
//	boiler, err := bifrost.NewPollTarget("plant/boiler/pressure", "http://plc.local/status",
//	    bifrost.WithExtractor(bifrost.JSONFieldExtractor("boiler.pressure")),
//	    bifrost.WithInterval(2 * time.Second),
//	)
func NewPollTarget(topic, rawURL string, opts ...TargetOption) (PollTarget, error) {
	if topic == "" {
		return PollTarget{}, errors.New("poll target topic cannot be empty")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return PollTarget{}, errors.New("invalid URL: " + err.Error())
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return PollTarget{}, errors.New("URL must have an http:// or https:// scheme")
	}

	cfg := &targetConfig{
		headers: make(map[string]string),
		timeout: defaultTargetTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return PollTarget{}, err
		}
	}

	return PollTarget{
		topic:     topic,
		url:       rawURL,
		headers:   cfg.headers,
		timeout:   cfg.timeout,
		extractor: cfg.extractor,
		method:    cfg.method,
		interval:  cfg.interval,
	}, nil
}

// targetConfig holds mutable state during target construction.
type targetConfig struct {
	headers   map[string]string
	timeout   time.Duration
	extractor PayloadExtractor
	method    string
	interval  time.Duration
}

// TargetOption configures a [PollTarget] during construction.
type TargetOption func(*targetConfig) error

// WithHeaders adds custom HTTP headers to poll requests for this target.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
//
// Example:
//
//	t, err := bifrost.NewPollTarget("api/queue/depth", url,
//	    bifrost.WithHeaders("Authorization", "Bearer token123"),
//	)
func WithHeaders(keyValues ...string) TargetOption {
	return func(cfg *targetConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithTimeout sets the HTTP request timeout for this target.
// A poll that times out publishes nothing. Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) TargetOption {
	return func(cfg *targetConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithExtractor sets the [PayloadExtractor] for this target.
// Nil restores [DefaultExtractor].
func WithExtractor(e PayloadExtractor) TargetOption {
	return func(cfg *targetConfig) error {
		cfg.extractor = e
		return nil
	}
}

// WithMethod sets the HTTP method: GET (default), HEAD or POST.
//
// Returns an error for any other method.
func WithMethod(method string) TargetOption {
	return func(cfg *targetConfig) error {
		switch method {
		case http.MethodGet, http.MethodHead, http.MethodPost:
			cfg.method = method
			return nil
		default:
			return errors.New("method must be GET, HEAD, or POST")
		}
	}
}

// WithInterval sets a polling interval for this target, overriding the
// global one.
//
// The interval must be between 100ms and 1 hour. It is measured from when a
// poll starts, so a slow target is effectively polled every interval plus
// the request duration.
func WithInterval(d time.Duration) TargetOption {
	return func(cfg *targetConfig) error {
		if d < minTargetInterval {
			return errors.New("interval must be at least 100ms")
		}
		if d > maxTargetInterval {
			return errors.New("interval must not exceed 1 hour")
		}
		cfg.interval = d
		return nil
	}
}
