package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/bifrost/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a Bifrost configuration file without starting the server.

This command parses the YAML, expands environment variables, validates
all fields and expands grids into poll targets. It's useful for CI/CD
pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  bifrost validate -c config.yaml
  bifrost validate --config /etc/bifrost/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// template execution errors only surface once grids are expanded
	targets, err := config.BuildTargets(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	direct := len(cfg.Targets)
	fromGrids := len(targets) - direct

	broker := "none"
	if cfg.Broker != nil {
		broker = fmt.Sprintf("%s %v", cfg.Broker.URL, cfg.Broker.Topics)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:          %d\n", cfg.Port)
	fmt.Fprintf(out, "  Window:        %s\n", cfg.Window.Duration())
	fmt.Fprintf(out, "  Queue:         %d (%s)\n", cfg.Queue.Capacity, cfg.Queue.Backpressure)
	fmt.Fprintf(out, "  Broker:        %s\n", broker)
	fmt.Fprintf(out, "  Poll interval: %s\n", cfg.PollInterval.Duration())
	fmt.Fprintf(out, "  Targets:       %d direct + %d from grids = %d total\n",
		direct, fromGrids, len(targets))

	return nil
}
