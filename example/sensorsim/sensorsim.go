// Package sensorsim simulates a small plant for the Bifrost examples: an
// in-process MQTT broker publishing sensor readings and an HTTP device that
// exposes line temperatures for polling.
package sensorsim

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

// Lines are the production lines exposed by the HTTP device.
var Lines = []string{"north", "south"}

// Broker is an in-process MQTT broker that publishes simulated readings.
type Broker struct {
	server *mochi.Server
	logger *slog.Logger
}

// StartBroker runs an anonymous broker listening on addr.
func StartBroker(addr string, logger *slog.Logger) (*Broker, error) {
	server := mochi.New(&mochi.Options{
		InlineClient: true,
		Logger:       logger,
	})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("add auth hook: %w", err)
	}
	if err := server.AddListener(listeners.NewTCP(listeners.Config{
		ID:      "sensorsim",
		Address: addr,
	})); err != nil {
		return nil, fmt.Errorf("add listener: %w", err)
	}
	if err := server.Serve(); err != nil {
		return nil, fmt.Errorf("serve: %w", err)
	}
	return &Broker{server: server, logger: logger}, nil
}

// Publish runs until ctx is cancelled, publishing a boiler pressure, a
// door state and a status string every period.
func (b *Broker) Publish(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var (
		tick int
		door = "closed"
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		tick++

		pressure := 2.0 + 0.4*math.Sin(float64(tick)/8) + rand.Float64()*0.05
		b.publish("sensors/boiler/pressure", strconv.FormatFloat(pressure, 'f', 3, 64))

		if rand.Intn(20) == 0 {
			if door == "closed" {
				door = "open"
			} else {
				door = "closed"
			}
		}
		b.publish("sensors/dock/door", door)

		if tick%10 == 0 {
			b.publish("sensors/boiler/status", fmt.Sprintf("cycle %d ok", tick/10))
		}
	}
}

func (b *Broker) publish(topic, payload string) {
	if err := b.server.Publish(topic, []byte(payload), false, 0); err != nil {
		b.logger.Warn("publish failed", "topic", topic, "error", err)
	}
}

// Close stops the broker.
func (b *Broker) Close() error {
	return b.server.Close()
}

// DeviceHandler serves /temp?line=<line> as {"line": ..., "value": ...},
// drifting each line's temperature a little on every request.
func DeviceHandler(logger *slog.Logger) http.Handler {
	var (
		mu    sync.Mutex
		temps = make(map[string]float64)
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/temp", func(w http.ResponseWriter, r *http.Request) {
		line := r.URL.Query().Get("line")
		if line == "" {
			http.Error(w, "line is required", http.StatusBadRequest)
			return
		}

		// simulate small latency variance
		time.Sleep(time.Duration(20+rand.Intn(80)) * time.Millisecond)

		mu.Lock()
		t, ok := temps[line]
		if !ok {
			t = 18 + rand.Float64()*4
		}
		t += rand.Float64() - 0.5
		temps[line] = t
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"line":  line,
			"value": math.Round(t*100) / 100,
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Error("failed to write response", "error", err)
		}
	})
	return mux
}
