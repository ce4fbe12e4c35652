package config

import (
	"fmt"
	"sort"

	"github.com/jpalmerr/bifrost"
)

// BuildOptions converts parsed configuration into SDK options for
// [bifrost.New].
//
// Poll targets from both targets and grids are included; grids are expanded
// via cartesian product. Callers append their own options (logger,
// callbacks) to the returned slice.
func BuildOptions(cfg *Config) ([]bifrost.Option, error) {
	policy, err := bifrost.ParseBackpressure(cfg.Queue.Backpressure)
	if err != nil {
		return nil, fmt.Errorf("queue.backpressure: %w", err)
	}

	targets, err := BuildTargets(cfg)
	if err != nil {
		return nil, err
	}

	namesFile := cfg.NamesFile
	if namesFile == "-" {
		namesFile = ""
	}

	opts := []bifrost.Option{
		bifrost.WithPort(cfg.Port),
		bifrost.WithWindow(cfg.Window.Duration()),
		bifrost.WithHistoryCapacity(cfg.HistoryCapacity),
		bifrost.WithQueueCapacity(cfg.Queue.Capacity),
		bifrost.WithBackpressure(policy),
		bifrost.WithNamesFile(namesFile),
		bifrost.WithPollingInterval(cfg.PollInterval.Duration()),
		bifrost.WithMaxConcurrency(cfg.MaxConcurrency),
	}

	if cfg.Title != "" {
		opts = append(opts, bifrost.WithTitle(cfg.Title))
	}

	if cfg.Broker != nil {
		opts = append(opts, bifrost.WithBroker(bifrost.BrokerConfig{
			URL:       cfg.Broker.URL,
			Topics:    cfg.Broker.Topics,
			QoS:       byte(cfg.Broker.QoS),
			ClientID:  cfg.Broker.ClientID,
			Username:  cfg.Broker.Username,
			Password:  cfg.Broker.Password,
			KeepAlive: cfg.Broker.KeepAlive.Duration(),
		}))
	}

	if len(targets) > 0 {
		opts = append(opts, bifrost.WithPollTargets(targets...))
	}

	return opts, nil
}

// BuildTargets converts the targets and grids of a configuration into SDK
// poll targets, direct targets first.
func BuildTargets(cfg *Config) ([]bifrost.PollTarget, error) {
	var targets []bifrost.PollTarget

	for i, tc := range cfg.Targets {
		t, err := buildTarget(tc)
		if err != nil {
			return nil, fmt.Errorf("targets[%d] (%s): %w", i, tc.Topic, err)
		}
		targets = append(targets, t)
	}

	for i, gc := range cfg.Grids {
		expanded, err := buildGrid(gc)
		if err != nil {
			return nil, fmt.Errorf("grids[%d] (%s): %w", i, gc.TopicTemplate, err)
		}
		targets = append(targets, expanded...)
	}

	return targets, nil
}

// buildTarget converts a single TargetConfig to an SDK PollTarget.
func buildTarget(tc TargetConfig) (bifrost.PollTarget, error) {
	var opts []bifrost.TargetOption

	if tc.Method != "" {
		opts = append(opts, bifrost.WithMethod(tc.Method))
	}

	if tc.Timeout != 0 {
		opts = append(opts, bifrost.WithTimeout(tc.Timeout.Duration()))
	}

	if len(tc.Headers) > 0 {
		opts = append(opts, bifrost.WithHeaders(mapToKeyValuePairs(tc.Headers)...))
	}

	extractor, err := buildExtractor(tc.Extractor)
	if err != nil {
		return bifrost.PollTarget{}, err
	}
	if extractor != nil {
		opts = append(opts, bifrost.WithExtractor(extractor))
	}

	if tc.Interval != 0 {
		opts = append(opts, bifrost.WithInterval(tc.Interval.Duration()))
	}

	return bifrost.NewPollTarget(tc.Topic, tc.URL, opts...)
}

// buildGrid expands a GridConfig via the SDK grid builder.
func buildGrid(gc GridConfig) ([]bifrost.PollTarget, error) {
	opts := []bifrost.GridOption{
		bifrost.WithURLTemplate(gc.URLTemplate),
		bifrost.WithDimensions(gc.Dimensions),
	}

	if gc.Method != "" {
		opts = append(opts, bifrost.WithGridMethod(gc.Method))
	}
	if gc.Timeout != 0 {
		opts = append(opts, bifrost.WithGridTimeout(gc.Timeout.Duration()))
	}
	if len(gc.Headers) > 0 {
		opts = append(opts, bifrost.WithGridHeaders(mapToKeyValuePairs(gc.Headers)...))
	}

	extractor, err := buildExtractor(gc.Extractor)
	if err != nil {
		return nil, err
	}
	if extractor != nil {
		opts = append(opts, bifrost.WithGridExtractor(extractor))
	}

	if gc.Interval != 0 {
		opts = append(opts, bifrost.WithGridInterval(gc.Interval.Duration()))
	}

	return bifrost.NewPollTargetGrid(gc.TopicTemplate, opts...)
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	// sort keys for deterministic ordering
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}

// buildExtractor converts ExtractorConfig to a PayloadExtractor.
// Returns nil for default/empty extractors (SDK uses DefaultExtractor).
func buildExtractor(ec ExtractorConfig) (bifrost.PayloadExtractor, error) {
	switch ec.Type {
	case "", "default":
		// nil signals SDK to use DefaultExtractor
		return nil, nil
	case "body":
		return bifrost.BodyExtractor, nil
	case "status":
		return bifrost.StatusCodeExtractor, nil
	case "json":
		return bifrost.JSONFieldExtractor(ec.Path), nil
	case "regex":
		return bifrost.RegexExtractor(ec.Pattern)
	default:
		return nil, fmt.Errorf("unknown extractor type %q", ec.Type)
	}
}
