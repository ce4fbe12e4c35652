package bifrost

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jpalmerr/bifrost/internal/poller"
	"github.com/jpalmerr/bifrost/internal/queue"
)

func TestIngest_EmptyTopic(t *testing.T) {
	b, err := New(testOptions()...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := b.Ingest("", []byte("1"), time.Time{}); !errors.Is(err, ErrEmptyTopic) {
		t.Errorf("Ingest(\"\") error = %v, want ErrEmptyTopic", err)
	}
}

func TestIngest_KeepsArrivalTime(t *testing.T) {
	b, err := New(testOptions(WithPort(0), WithWindow(10*time.Millisecond))...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	before := time.Now()
	_ = b.Ingest("explicit", []byte("1"), at)
	_ = b.Ingest("implicit", []byte("2"), time.Time{})

	startBifrost(t, b)
	waitFor(t, func() bool { return len(b.Topics()) == 2 })

	if got := b.History("explicit")[0].Timestamp; !got.Equal(at) {
		t.Errorf("explicit timestamp = %v, want %v", got, at)
	}
	if got := b.History("implicit")[0].Timestamp; got.Before(before) {
		t.Errorf("implicit timestamp = %v, want >= %v", got, before)
	}
}

func TestHistory_BoundedPerTopic(t *testing.T) {
	b, err := New(testOptions(WithPort(0), WithHistoryCapacity(3), WithWindow(10*time.Millisecond))...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for _, p := range []string{"1", "2", "3", "4", "5"} {
		_ = b.Ingest("t", []byte(p), time.Time{})
	}
	startBifrost(t, b)
	waitFor(t, func() bool { return b.Stats().SamplesRecorded == 5 })

	history := b.History("t")
	if len(history) != 3 {
		t.Fatalf("len(History()) = %d, want 3", len(history))
	}
	for i, want := range []float64{3, 4, 5} {
		if f, ok := history[i].Value.Float(); !ok || f != want {
			t.Errorf("History()[%d] = %v, want %v", i, history[i].Value, want)
		}
	}
}

func TestHistory_UnknownTopic(t *testing.T) {
	b, err := New(testOptions()...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	history := b.History("never/seen")
	if history == nil || len(history) != 0 {
		t.Errorf("History() = %v, want empty non-nil slice", history)
	}
}

func TestIngest_DropPolicies(t *testing.T) {
	tests := []struct {
		name   string
		policy Backpressure
		want   []float64
	}{
		{"drop newest keeps the first events", DropNewest, []float64{1, 2}},
		{"drop oldest keeps the last events", DropOldest, []float64{3, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(testOptions(
				WithPort(0),
				WithWindow(10*time.Millisecond),
				WithQueueCapacity(2),
				WithBackpressure(tt.policy),
			)...)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			// the broadcaster is not running yet, so the queue fills up
			for _, p := range []string{"1", "2", "3", "4"} {
				if err := b.Ingest("t", []byte(p), time.Time{}); err != nil {
					t.Fatalf("Ingest(%s) error = %v", p, err)
				}
			}

			stats := b.Stats()
			if stats.Dropped != 2 {
				t.Errorf("Stats().Dropped = %d, want 2", stats.Dropped)
			}
			if stats.QueueLength != 2 || stats.QueueCapacity != 2 {
				t.Errorf("Stats() queue = %d/%d, want 2/2", stats.QueueLength, stats.QueueCapacity)
			}

			startBifrost(t, b)
			waitFor(t, func() bool { return len(b.History("t")) == 2 })

			history := b.History("t")
			for i, want := range tt.want {
				if f, _ := history[i].Value.Float(); f != want {
					t.Errorf("History()[%d] = %v, want %v", i, history[i].Value, want)
				}
			}
		})
	}
}

func TestIngestContext_BlockHonoursContext(t *testing.T) {
	b, err := New(testOptions(WithQueueCapacity(1))...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := b.Ingest("t", []byte("1"), time.Time{}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = b.IngestContext(ctx, "t", []byte("2"), time.Time{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("IngestContext() error = %v, want DeadlineExceeded", err)
	}
}

func TestIngest_RejectedAfterShutdown(t *testing.T) {
	b, err := New(testOptions(WithPort(0), WithQueueCapacity(1), WithWindow(time.Hour))...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	stop := startBifrost(t, b)

	// produce until shutdown rejects the event
	errs := make(chan error, 1)
	go func() {
		for {
			if err := b.Ingest("t", []byte("x"), time.Time{}); err != nil {
				errs <- err
				return
			}
		}
	}()

	time.Sleep(50 * time.Millisecond)
	if err := stop(); err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}

	select {
	case err := <-errs:
		if !errors.Is(err, queue.ErrClosed) {
			t.Errorf("Ingest() error = %v, want queue.ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked Ingest() was not released on shutdown")
	}
}

func TestStats(t *testing.T) {
	b, err := New(testOptions(WithPort(0), WithWindow(10*time.Millisecond))...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_ = b.Ingest("a", []byte("1"), time.Time{})
	_ = b.Ingest("b", []byte("x"), time.Time{})
	_ = b.Ingest("a", []byte("2"), time.Time{})

	startBifrost(t, b)
	waitFor(t, func() bool { return b.Stats().BatchesEmitted >= 1 })

	stats := b.Stats()
	if stats.Enqueued != 3 {
		t.Errorf("Enqueued = %d, want 3", stats.Enqueued)
	}
	if stats.SamplesRecorded != 3 {
		t.Errorf("SamplesRecorded = %d, want 3", stats.SamplesRecorded)
	}
	if stats.Topics != 2 {
		t.Errorf("Topics = %d, want 2", stats.Topics)
	}
	if stats.Observers != 0 {
		t.Errorf("Observers = %d, want 0", stats.Observers)
	}
	if stats.MQTTConnected || stats.MQTTReceived != 0 {
		t.Errorf("MQTT stats = (%v, %d), want (false, 0) without a broker", stats.MQTTConnected, stats.MQTTReceived)
	}

	sub := b.hub.Subscribe()
	defer b.hub.Unsubscribe(sub)
	if got := b.Stats().Observers; got != 1 {
		t.Errorf("Observers after Subscribe = %d, want 1", got)
	}
}

func TestToPollerTargets(t *testing.T) {
	custom := MustRegexExtractor(`v=(\d+)`)
	t1, _ := NewPollTarget("a", "https://a.example.com",
		WithHeaders("X-Key", "1"),
		WithMethod("HEAD"),
		WithInterval(time.Second),
		WithTimeout(2*time.Second),
	)
	t2, _ := NewPollTarget("b", "https://b.example.com", WithExtractor(custom))

	b, err := New(testOptions(WithPollTargets(t1, t2))...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	targets := b.toPollerTargets()
	if len(targets) != 2 {
		t.Fatalf("len(toPollerTargets()) = %d, want 2", len(targets))
	}

	want := poller.Target{
		Topic:    "a",
		URL:      "https://a.example.com",
		Method:   "HEAD",
		Timeout:  2 * time.Second,
		Interval: time.Second,
	}
	got := targets[0]
	if got.Topic != want.Topic || got.URL != want.URL || got.Method != want.Method ||
		got.Timeout != want.Timeout || got.Interval != want.Interval {
		t.Errorf("toPollerTargets()[0] = %+v, want %+v", got, want)
	}
	if got.Headers["X-Key"] != "1" {
		t.Errorf("Headers = %v, want X-Key=1", got.Headers)
	}

	// headers are copied
	got.Headers["X-Key"] = "changed"
	if t1.Headers()["X-Key"] != "1" {
		t.Error("modifying poller headers affected the PollTarget")
	}

	// nil extractor falls back to DefaultExtractor
	if payload, err := targets[0].Extractor([]byte(`{"value": 7}`), 200); err != nil || payload != "7" {
		t.Errorf("default extractor = %q, %v, want 7", payload, err)
	}
	if payload, err := targets[1].Extractor([]byte("v=12"), 200); err != nil || payload != "12" {
		t.Errorf("custom extractor = %q, %v, want 12", payload, err)
	}
}
