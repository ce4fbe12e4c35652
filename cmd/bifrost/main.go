// Package main is the entry point for the bifrost CLI.
//
// Bifrost can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	bifrost serve -c config.yaml    # Start the relay and dashboard
//	bifrost validate -c config.yaml # Validate configuration
//	bifrost version                 # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "bifrost",
	Short: "A real-time telemetry relay and dashboard",
	Long: `Bifrost relays telemetry from an MQTT broker and polled HTTP targets
to browsers in real time.

Messages are coalesced into short windows, recorded in a bounded
per-topic history when numeric, and pushed to WebSocket and SSE
observers. A built-in dashboard draws a sparkline per topic.

Quick start:
  1. Create a config file (bifrost.yaml)
  2. Run: bifrost serve -c bifrost.yaml
  3. Open http://localhost:5000 in your browser

Example config:
  port: 5000
  broker:
    url: tcp://localhost:1883
    topics: ["sensors/#"]
  targets:
    - topic: plant/boiler/pressure
      url: http://plc.local/status
      extractor: json:boiler.pressure`,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this bifrost binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "bifrost %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", commit)
		fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", date)
	},
}

func init() {
	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}
