package bifrost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/bifrost/dashboard"
	"github.com/jpalmerr/bifrost/internal/broadcast"
	"github.com/jpalmerr/bifrost/internal/metrics"
	"github.com/jpalmerr/bifrost/internal/mqttsource"
	"github.com/jpalmerr/bifrost/internal/names"
	"github.com/jpalmerr/bifrost/internal/poller"
	"github.com/jpalmerr/bifrost/internal/queue"
	"github.com/jpalmerr/bifrost/internal/server"
	"github.com/jpalmerr/bifrost/internal/store"
	"github.com/jpalmerr/bifrost/internal/telemetry"
)

const (
	defaultPort            = 5000
	defaultQueueCapacity   = 1000
	defaultPollingInterval = 15 * time.Second
	defaultMaxConcurrency  = 10
)

// ErrAlreadyStarted is returned by [Bifrost.Start] on every call after the
// first. A Bifrost instance runs once.
var ErrAlreadyStarted = errors.New("bifrost already started")

// ErrEmptyTopic is returned by [Bifrost.Ingest] for events without a topic.
var ErrEmptyTopic = errors.New("topic cannot be empty")

// Bifrost ingests telemetry events, keeps a bounded history per topic and
// pushes coalesced updates to live observers.
//
// Events enter through [Bifrost.Ingest], the MQTT broker configured with
// [WithBroker], or the HTTP targets configured with [WithPollTarget]. A
// single broadcaster goroutine records every event into history and, once
// per window, emits one batch holding the latest payload of each updated
// topic to the dashboard streams and batch callbacks.
//
// The typical lifecycle is:
//
//	b, err := bifrost.New(bifrost.WithBroker(bifrost.BrokerConfig{URL: "tcp://localhost:1883"}))
//	if err != nil {
//	    slog.Error("failed to create bifrost", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	b.Start(ctx) // blocks until context cancelled
type Bifrost struct {
	title           string
	port            int
	broker          *BrokerConfig
	targets         []PollTarget
	pollingInterval time.Duration
	maxConcurrency  int
	batchCallbacks  []func(Batch)
	logger          *slog.Logger

	queue       *queue.Queue[telemetry.Event]
	history     *store.MemoryStore
	hub         *broadcast.Hub
	names       *names.Store
	broadcaster *broadcast.Broadcaster
	registry    *prometheus.Registry

	started atomic.Bool
	mqtt    atomic.Pointer[mqttsource.Source]

	mu   sync.Mutex
	addr net.Addr
}

// New creates a new [Bifrost] instance with the given options.
//
// No source is required: events may be pushed exclusively through
// [Bifrost.Ingest]. Defaults:
//   - Port: 5000
//   - Window: 50ms
//   - History capacity: 50 samples per topic
//   - Queue capacity: 1000 events, [Block] when full
//   - Names file: custom_names.json
//   - Polling interval: 15 seconds, max concurrency 10
//
// Returns an error if any option is invalid, if two poll targets share a
// topic, or if the metrics cannot be registered.
func New(opts ...Option) (*Bifrost, error) {
	cfg := &config{
		port:            defaultPort,
		window:          broadcast.DefaultWindow,
		historyCapacity: store.DefaultCapacity,
		queueCapacity:   defaultQueueCapacity,
		backpressure:    Block,
		pollingInterval: defaultPollingInterval,
		maxConcurrency:  defaultMaxConcurrency,
		namesFile:       names.DefaultFile,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	// readings are keyed by topic in the scheduler
	seen := make(map[string]bool, len(cfg.targets))
	for _, t := range cfg.targets {
		if seen[t.topic] {
			return nil, fmt.Errorf("duplicate poll target topic: %q", t.topic)
		}
		seen[t.topic] = true
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bifrost{
		title:           cfg.title,
		port:            cfg.port,
		broker:          cfg.broker,
		targets:         cfg.targets,
		pollingInterval: cfg.pollingInterval,
		maxConcurrency:  cfg.maxConcurrency,
		batchCallbacks:  cfg.batchCallbacks,
		logger:          logger,
		history:         store.NewMemoryStore(cfg.historyCapacity),
		hub:             broadcast.NewHub(broadcast.DefaultSubscriberBuffer),
		names:           names.Open(cfg.namesFile, logger),
		registry:        cfg.registry,
	}

	b.queue = queue.New[telemetry.Event](cfg.queueCapacity, cfg.backpressure,
		queue.WithDropCallback(func(ev telemetry.Event) {
			logger.Debug("event dropped", "topic", ev.Topic, "policy", cfg.backpressure.String())
		}),
	)
	b.broadcaster = broadcast.New(b.queue, b.history, broadcast.SinkFunc(b.deliver), cfg.window, logger)

	if b.registry == nil {
		b.registry = metrics.NewRegistry()
	}
	err := metrics.Register(b.registry, metrics.Sources{
		Queue:         b.queue.Stats,
		Broadcaster:   b.broadcaster.Stats,
		Observers:     b.hub.Observers,
		HistoryTopics: func() int { return len(b.history.Topics()) },
		ObserverDrops: b.hub.Dropped,
		MQTTConnected: b.mqttConnected,
		MQTTReceived:  b.mqttReceived,
	})
	if err != nil {
		return nil, err
	}

	return b, nil
}

// Start runs the pipeline and serves the dashboard.
//
// Start is a blocking call that runs until the provided context is cancelled.
// During execution:
//
//   - The broadcaster drains ingested events and emits one batch per window
//   - The MQTT source, if configured, connects and keeps reconnecting
//   - Poll targets, if any, are polled immediately and then on their intervals
//   - The HTTP server serves the dashboard, API, streams and /metrics
//
// On cancellation the sources stop, blocked Ingest calls are released with
// an error and open streams are closed.
//
// Returns nil on graceful shutdown, [ErrAlreadyStarted] if Start was called
// before, or an error if the HTTP server fails to start.
func (b *Bifrost) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	// check if context already cancelled
	if ctx.Err() != nil {
		b.queue.Close()
		b.hub.Close()
		return nil
	}

	b.logger.Info("bifrost starting",
		"window", b.broadcaster.Window().String(),
		"history_capacity", b.history.Capacity(),
		"queue_capacity", b.queue.Cap(),
		"backpressure", b.queue.Policy().String(),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := b.broadcaster.Run(runCtx); err != nil {
			b.logger.Error("broadcaster stopped", "error", err)
		}
	}()

	var scheduler *poller.Scheduler

	// cleanup stops the sources, releases blocked producers and ends streams
	cleanup := func() {
		if scheduler != nil {
			scheduler.Stop() // closes readings channel
		}
		cancel()
		b.queue.Close()
		wg.Wait()
		b.hub.Close()
	}

	if b.broker != nil {
		src, err := mqttsource.New(b.broker.source(), b.enqueue, b.logger)
		if err != nil {
			cleanup()
			return fmt.Errorf("failed to create MQTT source: %w", err)
		}
		b.logger.Info("mqtt source configured", "broker", b.broker.URL, "client_id", src.ClientID())
		b.mqtt.Store(src)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := src.Run(runCtx); err != nil {
				b.logger.Error("mqtt source stopped", "error", err)
			}
		}()
	}

	if len(b.targets) > 0 {
		b.logger.Info("polling configured",
			"target_count", len(b.targets),
			"interval", b.pollingInterval.String(),
		)

		scheduler = poller.NewScheduler(b.toPollerTargets(), b.pollingInterval, b.maxConcurrency, b.logger)
		scheduler.Start(runCtx)

		wg.Add(1)
		go func() {
			defer wg.Done()
			for reading := range scheduler.Readings() {
				b.handleReading(runCtx, reading)
			}
		}()
	}

	httpServer := server.NewServer(server.Config{
		History: b.history,
		Names:   b.names,
		Feed:    b.hub,
		Metrics: metrics.Handler(b.registry),
		Port:    b.port,
		Assets:  dashboard.Assets,
		Title:   b.title,
		Logger:  b.logger,
	})
	if err := httpServer.Start(runCtx); err != nil {
		cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	b.mu.Lock()
	b.addr = httpServer.Addr()
	b.mu.Unlock()

	b.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", httpServer.Addr().(*net.TCPAddr).Port))

	<-ctx.Done()
	cleanup()
	b.logger.Info("bifrost stopped")
	return nil
}

// Ingest accepts one inbound event. It only enqueues; history and observers
// are updated by the broadcaster within the next window.
//
// A zero at is replaced with the current time. Under [Block] Ingest waits
// for queue space; use [Bifrost.IngestContext] to bound the wait.
//
// Returns [ErrEmptyTopic] for an empty topic, or an error once Start has
// returned.
func (b *Bifrost) Ingest(topic string, payload []byte, at time.Time) error {
	return b.IngestContext(context.Background(), topic, payload, at)
}

// IngestContext is like [Bifrost.Ingest] but gives up waiting for queue
// space when ctx ends.
func (b *Bifrost) IngestContext(ctx context.Context, topic string, payload []byte, at time.Time) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	if at.IsZero() {
		at = time.Now()
	}
	return b.enqueue(ctx, telemetry.Event{
		Topic:     topic,
		Payload:   string(payload),
		ArrivedAt: at,
	})
}

func (b *Bifrost) enqueue(ctx context.Context, ev telemetry.Event) error {
	if err := b.queue.Enqueue(ctx, ev); err != nil {
		return fmt.Errorf("ingest %q: %w", ev.Topic, err)
	}
	return nil
}

// History returns the recorded samples of topic, oldest first. Unknown
// topics yield an empty slice.
func (b *Bifrost) History(topic string) []Sample {
	return b.history.Read(topic)
}

// Topics returns every topic with recorded history, sorted.
func (b *Bifrost) Topics() []string {
	return b.history.Topics()
}

// DisplayName returns the user-assigned name of topic, or the topic itself.
func (b *Bifrost) DisplayName(topic string) string {
	return b.names.Display(topic)
}

// SetDisplayName assigns a display name to topic and persists it. An empty
// name removes the assignment.
func (b *Bifrost) SetDisplayName(topic, name string) error {
	return b.names.Set(topic, name)
}

// Stats returns a snapshot of the pipeline counters.
func (b *Bifrost) Stats() Stats {
	qs := b.queue.Stats()
	bs := b.broadcaster.Stats()
	return Stats{
		QueueLength:      qs.Len,
		QueueCapacity:    qs.Capacity,
		Enqueued:         qs.Enqueued,
		Dropped:          qs.Dropped,
		SamplesRecorded:  bs.SamplesRecorded,
		BatchesEmitted:   bs.BatchesEmitted,
		DeliveryFailures: bs.DeliveryFailures,
		Observers:        b.hub.Observers(),
		ObserverDrops:    b.hub.Dropped(),
		MQTTConnected:    b.mqttConnected(),
		MQTTReceived:     b.mqttReceived(),
		Topics:           len(b.history.Topics()),
	}
}

func (b *Bifrost) mqttConnected() bool {
	src := b.mqtt.Load()
	return src != nil && src.Connected()
}

func (b *Bifrost) mqttReceived() uint64 {
	if src := b.mqtt.Load(); src != nil {
		return src.Received()
	}
	return 0
}

// Addr returns the address the HTTP server is bound to, or nil before
// [Bifrost.Start] has bound it.
func (b *Bifrost) Addr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addr
}

// Port returns the configured HTTP port.
func (b *Bifrost) Port() int {
	return b.port
}

// Window returns the coalescing window.
func (b *Bifrost) Window() time.Duration {
	return b.broadcaster.Window()
}

// PollTargets returns a copy of the configured poll targets.
func (b *Bifrost) PollTargets() []PollTarget {
	return slices.Clone(b.targets)
}

// deliver is the broadcaster's sink: live observers first, then callbacks.
// A batch handled by at least one callback does not count as undelivered.
func (b *Bifrost) deliver(ctx context.Context, batch telemetry.Batch) error {
	err := b.hub.Deliver(ctx, batch)

	for _, cb := range b.batchCallbacks {
		invokeCallbackSafe(cb, slices.Clone(batch), b.logger)
	}

	if len(b.batchCallbacks) > 0 && errors.Is(err, broadcast.ErrNoObservers) {
		return nil
	}
	return err
}

// handleReading publishes a successful poll and logs a failed one.
func (b *Bifrost) handleReading(ctx context.Context, r poller.Reading) {
	logAttrs := []any{
		"topic", r.Topic,
		"url", r.URL,
		"status_code", r.StatusCode,
		"latency_ms", r.Latency.Milliseconds(),
	}
	if r.Error != nil {
		b.logger.Warn("poll produced no payload", append(logAttrs, "error", r.Error.Error())...)
		return
	}

	err := b.enqueue(ctx, telemetry.Event{
		Topic:     r.Topic,
		Payload:   r.Payload,
		ArrivedAt: r.FetchedAt,
	})
	if err != nil {
		b.logger.Debug("poll reading not ingested", append(logAttrs, "error", err.Error())...)
		return
	}
	b.logger.Debug("poll completed", logAttrs...)
}

// toPollerTargets converts the configured targets to the poller format.
func (b *Bifrost) toPollerTargets() []poller.Target {
	result := make([]poller.Target, len(b.targets))

	for i, t := range b.targets {
		extract := t.extractor
		if extract == nil {
			extract = DefaultExtractor
		}

		result[i] = poller.Target{
			Topic:     t.topic,
			URL:       t.url,
			Method:    t.method,
			Headers:   t.Headers(),
			Timeout:   t.timeout,
			Interval:  t.interval,
			Extractor: poller.Extractor(extract),
		}
	}

	return result
}

// invokeCallbackSafe calls a batch callback with panic recovery.
// Panics are logged with a correlation ID but do not propagate.
func invokeCallbackSafe(cb func(Batch), batch Batch, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("batch callback panicked",
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"entries", len(batch),
				"stack", string(debug.Stack()),
			)
		}
	}()
	cb(batch)
}
