package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

// firstReading waits for one reading or fails the test.
func firstReading(t *testing.T, s *Scheduler) Reading {
	t.Helper()
	select {
	case r := <-s.Readings():
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for reading")
		return Reading{}
	}
}

func TestScheduler_StopBeforeStart(t *testing.T) {
	scheduler := NewScheduler([]Target{{Topic: "t", URL: "http://example.invalid", Timeout: time.Second}}, time.Minute, 1, testLogger())
	scheduler.Stop()

	if _, ok := <-scheduler.Readings(); ok {
		t.Error("Readings() should be closed after Stop()")
	}
}

func TestScheduler_StartStopIdempotent(t *testing.T) {
	server := okServer(t, "1")
	scheduler := NewScheduler([]Target{{Topic: "t", URL: server.URL, Timeout: time.Second}}, time.Minute, 1, testLogger())

	scheduler.Start(context.Background())
	scheduler.Start(context.Background())

	go func() {
		for range scheduler.Readings() {
		}
	}()

	scheduler.Stop()
	scheduler.Stop()
	scheduler.Start(context.Background())
}

// TestScheduler_ConcurrentStartStop checks Start and Stop racing each other.
// Run with: go test -race ./internal/poller/...
func TestScheduler_ConcurrentStartStop(t *testing.T) {
	targets := []Target{{Topic: "t", URL: "http://example.invalid", Timeout: time.Second}}

	for i := 0; i < 100; i++ {
		scheduler := NewScheduler(targets, time.Minute, 1, testLogger())

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			scheduler.Start(context.Background())
		}()
		go func() {
			defer wg.Done()
			scheduler.Stop()
		}()
		wg.Wait()

		for range scheduler.Readings() {
		}
	}
}

func TestScheduler_ContextCancellation(t *testing.T) {
	server := okServer(t, "1")

	ctx, cancel := context.WithCancel(context.Background())
	scheduler := NewScheduler([]Target{{Topic: "t", URL: server.URL, Timeout: time.Second}}, time.Minute, 1, testLogger())
	scheduler.Start(ctx)

	go func() {
		for range scheduler.Readings() {
		}
	}()

	cancel()

	done := make(chan struct{})
	go func() {
		scheduler.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Stop() did not complete after parent context cancellation")
	}
}

func TestScheduler_DefaultExtractor(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantPayload string
		wantErr     bool
	}{
		{name: "2xx body published", status: http.StatusOK, body: "21.5", wantPayload: "21.5"},
		{name: "non-2xx rejected", status: http.StatusServiceUnavailable, body: "down", wantErr: true},
		{name: "empty body rejected", status: http.StatusOK, body: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			scheduler := NewScheduler([]Target{{Topic: "sensor", URL: server.URL, Timeout: time.Second}}, time.Hour, 1, testLogger())
			scheduler.Start(context.Background())
			reading := firstReading(t, scheduler)
			scheduler.Stop()

			if reading.Topic != "sensor" {
				t.Errorf("Topic = %q, want %q", reading.Topic, "sensor")
			}
			if (reading.Error != nil) != tt.wantErr {
				t.Fatalf("Error = %v, wantErr %v", reading.Error, tt.wantErr)
			}
			if !tt.wantErr && reading.Payload != tt.wantPayload {
				t.Errorf("Payload = %q, want %q", reading.Payload, tt.wantPayload)
			}
			if reading.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", reading.StatusCode, tt.status)
			}
		})
	}
}

func TestScheduler_FetchError(t *testing.T) {
	server := okServer(t, "1")
	url := server.URL
	server.Close()

	scheduler := NewScheduler([]Target{{Topic: "gone", URL: url, Timeout: time.Second}}, time.Hour, 1, testLogger())
	scheduler.Start(context.Background())
	reading := firstReading(t, scheduler)
	scheduler.Stop()

	if reading.Error == nil {
		t.Error("Error = nil, want fetch error")
	}
	if reading.Payload != "" {
		t.Errorf("Payload = %q, want empty", reading.Payload)
	}
}

func TestScheduler_CustomExtractor(t *testing.T) {
	server := okServer(t, `{"temp": 21.5}`)

	extract := func(body []byte, statusCode int) (string, error) {
		if !strings.Contains(string(body), "temp") {
			return "", ErrNoPayload
		}
		return "21.5", nil
	}

	scheduler := NewScheduler([]Target{{Topic: "t", URL: server.URL, Timeout: time.Second, Extractor: extract}}, time.Hour, 1, testLogger())
	scheduler.Start(context.Background())
	reading := firstReading(t, scheduler)
	scheduler.Stop()

	if reading.Error != nil || reading.Payload != "21.5" {
		t.Errorf("reading = (%q, %v), want (%q, nil)", reading.Payload, reading.Error, "21.5")
	}
}

func TestScheduler_ExtractorErrorPropagates(t *testing.T) {
	server := okServer(t, "x")

	extract := func([]byte, int) (string, error) { return "", ErrNoPayload }

	scheduler := NewScheduler([]Target{{Topic: "t", URL: server.URL, Timeout: time.Second, Extractor: extract}}, time.Hour, 1, testLogger())
	scheduler.Start(context.Background())
	reading := firstReading(t, scheduler)
	scheduler.Stop()

	if !errors.Is(reading.Error, ErrNoPayload) {
		t.Errorf("Error = %v, want %v", reading.Error, ErrNoPayload)
	}
}

// TestScheduler_ExtractorPanicRecovery verifies that a panicking extractor
// yields an error reading instead of crashing the scheduler.
func TestScheduler_ExtractorPanicRecovery(t *testing.T) {
	server := okServer(t, `{"status": "ok"}`)

	panicky := func([]byte, int) (string, error) {
		panic("simulated failure")
	}
	healthy := func([]byte, int) (string, error) {
		return "ok", nil
	}

	scheduler := NewScheduler([]Target{
		{Topic: "panicking", URL: server.URL, Timeout: time.Second, Extractor: panicky},
		{Topic: "healthy", URL: server.URL, Timeout: time.Second, Extractor: healthy},
	}, time.Hour, 2, testLogger())
	scheduler.Start(context.Background())

	readings := make(map[string]Reading)
	for i := 0; i < 2; i++ {
		r := firstReading(t, scheduler)
		readings[r.Topic] = r
	}
	scheduler.Stop()

	bad := readings["panicking"]
	if bad.Error == nil {
		t.Fatal("panicking.Error = nil, want error describing panic")
	}
	if !strings.Contains(bad.Error.Error(), "extractor panic") || !strings.Contains(bad.Error.Error(), "correlation_id") {
		t.Errorf("panicking.Error = %q, want extractor panic with correlation_id", bad.Error)
	}

	if good := readings["healthy"]; good.Error != nil || good.Payload != "ok" {
		t.Errorf("healthy = (%q, %v), want (ok, nil)", good.Payload, good.Error)
	}
}

func TestScheduler_ExtractorNilPanicRecovery(t *testing.T) {
	server := okServer(t, "")

	scheduler := NewScheduler([]Target{{
		Topic:     "t",
		URL:       server.URL,
		Timeout:   time.Second,
		Extractor: func([]byte, int) (string, error) { panic(nil) },
	}}, time.Hour, 1, testLogger())
	scheduler.Start(context.Background())
	reading := firstReading(t, scheduler)
	scheduler.Stop()

	if reading.Error == nil {
		t.Fatal("Error = nil, want error for nil panic")
	}
}

func TestScheduler_GCDCalculation(t *testing.T) {
	tests := []struct {
		name           string
		intervals      []time.Duration
		globalInterval time.Duration
		expectedBase   time.Duration
	}{
		{
			name:           "all same interval",
			intervals:      []time.Duration{10 * time.Second, 10 * time.Second},
			globalInterval: 10 * time.Second,
			expectedBase:   10 * time.Second,
		},
		{
			name:           "5s and 10s gives 5s",
			intervals:      []time.Duration{5 * time.Second, 10 * time.Second},
			globalInterval: 30 * time.Second,
			expectedBase:   5 * time.Second,
		},
		{
			name:           "zero uses global",
			intervals:      []time.Duration{6 * time.Second, 0},
			globalInterval: 9 * time.Second,
			expectedBase:   3 * time.Second,
		},
		{
			name:           "sub-second intervals",
			intervals:      []time.Duration{200 * time.Millisecond, 500 * time.Millisecond},
			globalInterval: time.Second,
			expectedBase:   100 * time.Millisecond,
		},
		{
			name:           "floored at minimum tick",
			intervals:      []time.Duration{7 * time.Millisecond, 11 * time.Millisecond},
			globalInterval: time.Second,
			expectedBase:   minTick,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			targets := make([]Target, len(tt.intervals))
			for i, interval := range tt.intervals {
				targets[i] = Target{Topic: fmt.Sprintf("t%d", i), URL: "http://example.invalid", Interval: interval}
			}

			scheduler := NewScheduler(targets, tt.globalInterval, 1, testLogger())
			if got := scheduler.calculateBaseInterval(); got != tt.expectedBase {
				t.Errorf("calculateBaseInterval() = %v, want %v", got, tt.expectedBase)
			}
		})
	}
}

func TestScheduler_GCDCalculation_NoTargets(t *testing.T) {
	scheduler := NewScheduler(nil, 20*time.Second, 1, testLogger())
	if got := scheduler.calculateBaseInterval(); got != 20*time.Second {
		t.Errorf("calculateBaseInterval() = %v, want %v", got, 20*time.Second)
	}
}

// TestScheduler_MixedIntervals verifies that targets are polled at their own
// frequencies.
func TestScheduler_MixedIntervals(t *testing.T) {
	server := okServer(t, "1")

	scheduler := NewScheduler([]Target{
		{Topic: "fast", URL: server.URL, Timeout: time.Second, Interval: 100 * time.Millisecond},
		{Topic: "slow", URL: server.URL, Timeout: time.Second, Interval: 300 * time.Millisecond},
	}, time.Second, 2, testLogger())
	scheduler.Start(context.Background())

	counts := make(map[string]int)
	timeout := time.After(650 * time.Millisecond)

collecting:
	for {
		select {
		case r, ok := <-scheduler.Readings():
			if !ok {
				break collecting
			}
			counts[r.Topic]++
		case <-timeout:
			break collecting
		}
	}
	scheduler.Stop()

	if counts["fast"] < 4 {
		t.Errorf("fast polled %d times, want at least 4", counts["fast"])
	}
	if counts["slow"] >= counts["fast"] {
		t.Errorf("slow polled %d times, fast %d times; slow should poll less", counts["slow"], counts["fast"])
	}
}

func TestScheduler_ImmediatePollOnStart(t *testing.T) {
	server := okServer(t, "1")

	scheduler := NewScheduler([]Target{{Topic: "hourly", URL: server.URL, Timeout: time.Second, Interval: time.Hour}}, time.Hour, 1, testLogger())
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	select {
	case r := <-scheduler.Readings():
		if r.Topic != "hourly" {
			t.Errorf("Topic = %q, want %q", r.Topic, "hourly")
		}
	case <-time.After(500 * time.Millisecond):
		t.Error("timeout waiting for immediate poll")
	}
}

func TestScheduler_RespectsMaxConcurrency(t *testing.T) {
	var mu sync.Mutex
	var inFlight, peak int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inFlight++
		peak = max(peak, inFlight)
		mu.Unlock()

		time.Sleep(30 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		_, _ = w.Write([]byte("1"))
	}))
	defer server.Close()

	targets := make([]Target, 6)
	for i := range targets {
		targets[i] = Target{Topic: fmt.Sprintf("t%d", i), URL: server.URL, Timeout: time.Second}
	}

	scheduler := NewScheduler(targets, time.Hour, 2, testLogger())
	scheduler.Start(context.Background())
	for range targets {
		firstReading(t, scheduler)
	}
	scheduler.Stop()

	mu.Lock()
	defer mu.Unlock()
	if peak > 2 {
		t.Errorf("peak concurrent requests = %d, want <= 2", peak)
	}
}
