package mqttsource

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/paho"

	"github.com/jpalmerr/bifrost/internal/telemetry"
)

// Handler receives every publication. A returned error is logged; the
// message is not redelivered.
type Handler func(ctx context.Context, ev telemetry.Event) error

// Source is an MQTT subscription that feeds a [Handler].
type Source struct {
	cfg     Config
	broker  broker
	handler Handler
	logger  *slog.Logger

	connected atomic.Bool
	received  atomic.Uint64
}

// New creates a [Source]. The config is validated and completed with
// defaults.
func New(cfg Config, handler Handler, logger *slog.Logger) (*Source, error) {
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	b, _ := parseBrokerURL(cfg.URL)
	return &Source{
		cfg:     cfg.withDefaults(),
		broker:  b,
		handler: handler,
		logger:  logger,
	}, nil
}

// ClientID returns the client identifier presented to the broker.
func (s *Source) ClientID() string {
	return s.cfg.ClientID
}

// Connected reports whether the source currently holds an acknowledged
// subscription.
func (s *Source) Connected() bool {
	return s.connected.Load()
}

// Received returns the number of publications handed to the handler.
func (s *Source) Received() uint64 {
	return s.received.Load()
}

// Run connects, subscribes and forwards publications until ctx is cancelled,
// then disconnects and returns nil. Connection failures are retried with
// exponential backoff.
func (s *Source) Run(ctx context.Context) error {
	backoff := s.cfg.MinBackoff

	for {
		err := s.session(ctx)
		s.connected.Store(false)

		if ctx.Err() != nil {
			return nil
		}

		if errors.Is(err, errSessionLost) {
			// connection was up at some point, start over from the minimum
			backoff = s.cfg.MinBackoff
		}
		s.logger.Warn("mqtt connection lost",
			"broker", s.broker.address,
			"error", err.Error(),
			"retry_in", backoff.String(),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, s.cfg.MaxBackoff)
	}
}

var errSessionLost = errors.New("established session lost")

// session runs one connection lifetime. Once the subscription was
// acknowledged, a dropped connection is reported wrapping errSessionLost.
func (s *Source) session(ctx context.Context) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}

	lost := make(chan error, 1)
	notify := func(err error) {
		select {
		case lost <- err:
		default:
		}
	}

	client := paho.NewClient(paho.ClientConfig{
		ClientID: s.cfg.ClientID,
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				s.forward(ctx, pr.Packet)
				return true, nil
			},
		},
		OnClientError: func(err error) {
			notify(fmt.Errorf("client error: %w", err))
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			notify(fmt.Errorf("server disconnected (reason %d)", d.ReasonCode))
		},
	})

	connectCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	connack, err := client.Connect(connectCtx, &paho.Connect{
		ClientID:     s.cfg.ClientID,
		CleanStart:   true,
		KeepAlive:    uint16(s.cfg.KeepAlive.Seconds()),
		Username:     s.cfg.Username,
		UsernameFlag: s.cfg.Username != "",
		Password:     []byte(s.cfg.Password),
		PasswordFlag: s.cfg.Password != "",
	})
	if err != nil {
		conn.Close()
		if connack != nil {
			return fmt.Errorf("connect refused (reason %d): %w", connack.ReasonCode, err)
		}
		return fmt.Errorf("connect: %w", err)
	}

	subs := make([]paho.SubscribeOptions, len(s.cfg.Topics))
	for i, topic := range s.cfg.Topics {
		subs[i] = paho.SubscribeOptions{Topic: topic, QoS: s.cfg.QoS}
	}
	if _, err := client.Subscribe(connectCtx, &paho.Subscribe{Subscriptions: subs}); err != nil {
		_ = client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		return fmt.Errorf("subscribe: %w", err)
	}

	s.connected.Store(true)
	s.logger.Info("mqtt subscribed",
		"broker", s.broker.address,
		"client_id", s.cfg.ClientID,
		"topics", s.cfg.Topics,
	)

	select {
	case <-ctx.Done():
		_ = client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		return nil
	case err := <-lost:
		conn.Close()
		return fmt.Errorf("%w: %w", errSessionLost, err)
	}
}

func (s *Source) forward(ctx context.Context, p *paho.Publish) {
	ev := telemetry.Event{
		Topic:     p.Topic,
		Payload:   string(p.Payload),
		ArrivedAt: time.Now(),
	}
	s.received.Add(1)

	if err := s.handler(ctx, ev); err != nil {
		s.logger.Warn("mqtt message dropped", "topic", p.Topic, "error", err.Error())
		return
	}
	s.logger.Debug("mqtt message received", "topic", p.Topic, "bytes", len(p.Payload))
}

func (s *Source) dial(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: s.cfg.ConnectTimeout}

	if !s.broker.secure {
		conn, err := dialer.DialContext(ctx, "tcp", s.broker.address)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", s.broker.address, err)
		}
		return conn, nil
	}

	tlsCfg := s.cfg.TLSConfig
	if tlsCfg == nil {
		tlsCfg = &tls.Config{ServerName: s.broker.host, MinVersion: tls.VersionTLS12}
	}
	tlsDialer := &tls.Dialer{NetDialer: dialer, Config: tlsCfg}
	conn, err := tlsDialer.DialContext(ctx, "tcp", s.broker.address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.broker.address, err)
	}
	return conn, nil
}
