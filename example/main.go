package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/bifrost"
	"github.com/jpalmerr/bifrost/example/sensorsim"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// simulated plant (see sensorsim)
	broker, err := sensorsim.StartBroker("127.0.0.1:1883", logger)
	if err != nil {
		logger.Error("failed to start broker", "error", err)
		os.Exit(1)
	}
	defer broker.Close()
	go broker.Publish(ctx, 250*time.Millisecond)

	go func() {
		if err := http.ListenAndServe("127.0.0.1:9999", sensorsim.DeviceHandler(logger)); err != nil {
			logger.Error("device server error", "error", err)
		}
	}()

	// grid API: one poll target per line from one declaration
	targets, err := bifrost.NewPollTargetGrid("plant/{{.line}}/temp",
		bifrost.WithURLTemplate("http://127.0.0.1:9999/temp?line={{.line}}"),
		bifrost.WithDimensions(map[string][]string{"line": sensorsim.Lines}),
		bifrost.WithGridInterval(time.Second),
	)
	if err != nil {
		logger.Error("failed to create poll target grid", "error", err)
		os.Exit(1)
	}

	b, err := bifrost.New(
		bifrost.WithTitle("Plant Floor"),
		bifrost.WithBroker(bifrost.BrokerConfig{
			URL:    "tcp://127.0.0.1:1883",
			Topics: []string{"sensors/#"},
		}),
		bifrost.WithPollTargets(targets...),
		bifrost.WithNamesFile(""),
		bifrost.WithLogger(logger),
		bifrost.WithBatchCallback(func(batch bifrost.Batch) {
			for _, e := range batch {
				if e.Topic == "sensors/dock/door" && e.Payload == "open" {
					logger.Info("dock door opened", "at", e.Timestamp)
				}
			}
		}),
	)
	if err != nil {
		logger.Error("failed to create bifrost", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  Bifrost Demo")
	fmt.Println()
	fmt.Println("  Open http://localhost:5000 in your browser")
	fmt.Println()
	fmt.Println("  Sources:")
	fmt.Println("  • MQTT: sensors/boiler/pressure, sensors/dock/door, sensors/boiler/status")
	fmt.Println("  • HTTP: plant/north/temp, plant/south/temp (grid, 1s interval)")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	if err := b.Start(ctx); err != nil {
		logger.Error("bifrost error", "error", err)
		os.Exit(1)
	}
}
