package mqttsource

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Defaults applied by [Config.withDefaults].
const (
	DefaultKeepAlive      = 30 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultMinBackoff     = 500 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second
	DefaultTopic          = "#"

	// MaxKeepAlive is the largest keepalive the CONNECT packet can carry.
	MaxKeepAlive = 65535 * time.Second
)

// Config describes the broker connection.
type Config struct {
	// URL is the broker address, e.g. "tcp://localhost:1883" or
	// "mqtts://broker:8883". Supported schemes: tcp, mqtt, ssl, tls, mqtts.
	URL string

	// Topics are the filters to subscribe to. Defaults to ["#"].
	Topics []string

	// QoS is the maximum QoS requested for every subscription.
	QoS byte

	// ClientID defaults to "bifrost-<uuid>".
	ClientID string

	Username string
	Password string

	KeepAlive      time.Duration
	ConnectTimeout time.Duration

	// TLSConfig is used for secure schemes. Nil selects a default config
	// with the broker host as server name.
	TLSConfig *tls.Config

	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// broker is a parsed broker address.
type broker struct {
	address string
	secure  bool
	host    string
}

func parseBrokerURL(raw string) (broker, error) {
	if raw == "" {
		return broker{}, errors.New("broker URL is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return broker{}, fmt.Errorf("invalid broker URL %q: %w", raw, err)
	}

	var secure bool
	var port string
	switch u.Scheme {
	case "tcp", "mqtt":
		port = "1883"
	case "ssl", "tls", "mqtts":
		secure = true
		port = "8883"
	default:
		return broker{}, fmt.Errorf("unsupported broker scheme %q (use tcp, mqtt, ssl, tls or mqtts)", u.Scheme)
	}

	if u.Hostname() == "" {
		return broker{}, fmt.Errorf("broker URL %q has no host", raw)
	}
	if u.Port() != "" {
		port = u.Port()
	}

	return broker{
		address: u.Hostname() + ":" + port,
		secure:  secure,
		host:    u.Hostname(),
	}, nil
}

// Validate reports whether the config can be used to connect.
func (c Config) Validate() error {
	if _, err := parseBrokerURL(c.URL); err != nil {
		return err
	}
	if c.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2, got %d", c.QoS)
	}
	for i, topic := range c.Topics {
		if topic == "" {
			return fmt.Errorf("topic filter %d is empty", i)
		}
	}
	if c.KeepAlive > MaxKeepAlive {
		return fmt.Errorf("keepalive must not exceed %s, got %s", MaxKeepAlive, c.KeepAlive)
	}
	if c.MinBackoff < 0 || c.MaxBackoff < 0 {
		return errors.New("backoff durations must not be negative")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if len(c.Topics) == 0 {
		c.Topics = []string{DefaultTopic}
	}
	if c.ClientID == "" {
		c.ClientID = "bifrost-" + uuid.NewString()
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = DefaultKeepAlive
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = DefaultMinBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.MaxBackoff < c.MinBackoff {
		c.MaxBackoff = c.MinBackoff
	}
	return c
}
