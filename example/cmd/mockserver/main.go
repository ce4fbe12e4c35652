// Standalone simulated plant for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/bifrost serve -c example/config.yaml
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

	"github.com/jpalmerr/bifrost/example/sensorsim"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("MQTT broker starting on :1883, device server on :9999")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	broker, err := sensorsim.StartBroker(":1883", logger)
	if err != nil {
		logger.Error("broker error", "error", err)
		os.Exit(1)
	}
	defer broker.Close()
	go broker.Publish(ctx, 250*time.Millisecond)

	srv := &http.Server{Addr: ":9999", Handler: sensorsim.DeviceHandler(logger)}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
