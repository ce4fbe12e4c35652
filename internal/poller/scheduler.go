package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// minTick is the floor for the scheduler's tick interval.
const minTick = 100 * time.Millisecond

// ErrNoPayload is returned by an [Extractor] that found nothing to publish.
var ErrNoPayload = errors.New("no payload in response")

// Extractor reduces an HTTP response to the payload published for a target.
//
// Returning an error suppresses the reading's payload; the error is reported
// in [Reading.Error].
type Extractor func(body []byte, statusCode int) (string, error)

// Target is one polled resource.
type Target struct {
	// Topic is the telemetry topic readings are published under. Topics
	// must be unique within a scheduler.
	Topic string

	URL     string
	Method  string
	Headers map[string]string
	Timeout time.Duration

	// Interval overrides the scheduler's default interval when > 0.
	Interval time.Duration

	// Extractor converts the response into a payload. Nil publishes the
	// body of 2xx responses.
	Extractor Extractor
}

// Reading is the outcome of polling one [Target] once.
type Reading struct {
	Topic string
	URL   string

	// Payload is valid only when Error is nil.
	Payload string

	StatusCode int
	Latency    time.Duration
	FetchedAt  time.Time

	Error error
}

// Scheduler polls targets on their intervals and emits a [Reading] per fetch.
//
// All targets are polled immediately on start. After that the scheduler
// ticks at the GCD of all target intervals and polls the targets that are
// due. Start and Stop are safe for concurrent use.
type Scheduler struct {
	targets        []Target
	interval       time.Duration
	maxConcurrency int
	client         *Client
	readings       chan Reading
	logger         *slog.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once

	lastPolledAt map[string]time.Time
	baseInterval time.Duration
}

// NewScheduler creates a [Scheduler].
//
// Parameters:
//   - targets: Resources to poll
//   - interval: Default interval for targets without their own
//   - maxConcurrency: Maximum number of concurrent requests
//   - logger: Logger for extractor panics
func NewScheduler(targets []Target, interval time.Duration, maxConcurrency int, logger *slog.Logger) *Scheduler {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		targets:        targets,
		interval:       interval,
		maxConcurrency: maxConcurrency,
		client:         NewClient(maxConcurrency),
		readings:       make(chan Reading, len(targets)),
		logger:         logger,
	}
}

// Readings returns the channel readings are emitted on. It is closed once the
// scheduler has stopped.
func (s *Scheduler) Readings() <-chan Reading {
	return s.readings
}

// calculateBaseInterval returns the GCD of all effective target intervals,
// floored at minTick.
func (s *Scheduler) calculateBaseInterval() time.Duration {
	if len(s.targets) == 0 {
		return s.interval
	}

	result := s.intervalFor(s.targets[0])
	for _, t := range s.targets[1:] {
		result = gcdDuration(result, s.intervalFor(t))
	}

	if result < minTick {
		result = minTick
	}
	return result
}

func (s *Scheduler) intervalFor(t Target) time.Duration {
	if t.Interval > 0 {
		return t.Interval
	}
	return s.interval
}

func gcdDuration(a, b time.Duration) time.Duration {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Start begins polling in a background goroutine and returns immediately.
//
// Start is idempotent. Calling it after [Scheduler.Stop] is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.lastPolledAt = make(map[string]time.Time, len(s.targets))
	s.baseInterval = s.calculateBaseInterval()

	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	pollCtx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.closeOnce.Do(func() { close(s.readings) })

		s.pollDue(pollCtx, true)

		ticker := time.NewTicker(s.baseInterval)
		defer ticker.Stop()

		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				s.pollDue(pollCtx, false)
			}
		}
	}()
}

// Stop cancels polling, waits for in-flight requests and closes the readings
// channel. Stop is idempotent and safe to call before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.client.Close()
	s.closeOnce.Do(func() { close(s.readings) })
}

// pollDue polls the targets whose interval has elapsed, or all of them when
// immediate is set. A target's clock restarts when its poll starts.
func (s *Scheduler) pollDue(ctx context.Context, immediate bool) {
	now := time.Now()
	due := make([]Target, 0, len(s.targets))

	s.mu.Lock()
	for _, t := range s.targets {
		last, seen := s.lastPolledAt[t.Topic]
		if immediate || !seen || now.Sub(last) >= s.intervalFor(t) {
			due = append(due, t)
			s.lastPolledAt[t.Topic] = now
		}
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return
	}
	s.pollTargets(ctx, due)
}

// pollTargets fans due targets out to at most maxConcurrency workers.
func (s *Scheduler) pollTargets(ctx context.Context, targets []Target) {
	jobs := make(chan Target, len(targets))

	var wg sync.WaitGroup
	for i := 0; i < min(s.maxConcurrency, len(targets)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				reading := s.poll(ctx, t)
				select {
				case s.readings <- reading:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for _, t := range targets {
		jobs <- t
	}
	close(jobs)

	wg.Wait()
}

func (s *Scheduler) poll(ctx context.Context, t Target) Reading {
	resp := s.client.Fetch(ctx, t)

	reading := Reading{
		Topic:      t.Topic,
		URL:        t.URL,
		StatusCode: resp.StatusCode,
		Latency:    resp.Latency,
		FetchedAt:  time.Now(),
		Error:      resp.Error,
	}
	if resp.Error != nil {
		return reading
	}

	extract := t.Extractor
	if extract == nil {
		extract = defaultExtractor
	}
	reading.Payload, reading.Error = s.safeExtract(extract, resp.Body, resp.StatusCode)
	return reading
}

// safeExtract calls the extractor with panic recovery. A panic is logged with
// a correlation ID that is also carried in the returned error.
func (s *Scheduler) safeExtract(extract Extractor, body []byte, statusCode int) (payload string, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()

			s.logger.Error("extractor panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)

			payload = ""
			err = fmt.Errorf("extractor panic (correlation_id: %s)", correlationID)
		}
	}()
	return extract(body, statusCode)
}

// defaultExtractor publishes the body of successful responses.
func defaultExtractor(body []byte, statusCode int) (string, error) {
	if statusCode < 200 || statusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d", statusCode)
	}
	if len(body) == 0 {
		return "", ErrNoPayload
	}
	return string(body), nil
}
