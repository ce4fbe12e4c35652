// Package config provides YAML configuration parsing for Bifrost.
//
// This package enables running Bifrost as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	port: 5000
//	window: 50ms
//
//	broker:
//	  url: tcp://localhost:1883
//	  topics: ["sensors/#"]
//	  username: ${MQTT_USER:-}
//	  password: ${MQTT_PASSWORD:-}
//
//	targets:
//	  - topic: plant/boiler/pressure
//	    url: http://plc.local/status
//	    extractor: json:boiler.pressure
//
//	grids:
//	  - topic_template: "plant/{{.line}}/temp"
//	    url_template: "http://{{.line}}.plant.local/temp"
//	    dimensions:
//	      line: [north, south]
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/bifrost"
)

// minPollInterval is the minimum polling interval accepted from a config
// file. It prevents accidental overload of polled devices.
const minPollInterval = 1 * time.Second

// maxKeepAlive is the largest keepalive an MQTT CONNECT packet can carry.
const maxKeepAlive = 65535 * time.Second

// Defaults applied by [Parse].
const (
	DefaultPort            = 5000
	DefaultWindow          = 50 * time.Millisecond
	DefaultHistoryCapacity = 50
	DefaultQueueCapacity   = 1000
	DefaultBackpressure    = "block"
	DefaultPollInterval    = 15 * time.Second
	DefaultMaxConcurrency  = 10
	DefaultNamesFile       = "custom_names.json"
)

// Config is the root configuration structure for Bifrost.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 5000.
	Port int `yaml:"port"`

	// Window is the coalescing window. Defaults to 50ms.
	Window Duration `yaml:"window"`

	// HistoryCapacity is the number of samples kept per topic. Defaults to 50.
	HistoryCapacity int `yaml:"history_capacity"`

	Queue QueueConfig `yaml:"queue"`

	// NamesFile is where display names are persisted. Defaults to
	// custom_names.json. Set to "-" to keep names in memory only.
	NamesFile string `yaml:"names_file"`

	// Broker configures the MQTT source. Optional.
	Broker *BrokerConfig `yaml:"broker"`

	// PollInterval is the interval for targets without their own.
	// Defaults to 15s.
	PollInterval Duration `yaml:"poll_interval"`

	// MaxConcurrency limits concurrent polls. Defaults to 10.
	MaxConcurrency int `yaml:"max_concurrency"`

	// Targets defines individual HTTP poll targets.
	Targets []TargetConfig `yaml:"targets"`

	// Grids defines poll target grids that expand via cartesian product.
	Grids []GridConfig `yaml:"grids"`
}

// QueueConfig sizes the ingestion queue.
type QueueConfig struct {
	// Capacity defaults to 1000.
	Capacity int `yaml:"capacity"`

	// Backpressure is "block" (default), "drop_oldest" or "drop_newest".
	Backpressure string `yaml:"backpressure"`
}

// BrokerConfig defines the MQTT broker connection.
type BrokerConfig struct {
	// URL supports ${VAR} substitution. Schemes: tcp, mqtt, ssl, tls, mqtts.
	URL string `yaml:"url"`

	// Topics are subscription filters. Defaults to ["#"].
	Topics []string `yaml:"topics"`

	QoS      int    `yaml:"qos"`
	ClientID string `yaml:"client_id"`

	// Username and Password support ${VAR} substitution.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	KeepAlive Duration `yaml:"keep_alive"`
}

// TargetConfig defines a single HTTP poll target.
type TargetConfig struct {
	// Topic is the topic readings are published under.
	Topic string `yaml:"topic"`

	// URL supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	// Method is GET (default), HEAD or POST.
	Method string `yaml:"method"`

	// Timeout is the request timeout. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// Headers values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`

	// Extractor determines how a response becomes a payload.
	// Can be shorthand ("json:data.temp", "regex:t=(\d+)") or structured.
	Extractor ExtractorConfig `yaml:"extractor"`

	// Interval overrides poll_interval for this target. Must be between 1s and 1h.
	Interval Duration `yaml:"interval"`
}

// GridConfig defines a poll target grid that expands via cartesian product.
//
// For example, with dimensions {line: [north, south], sensor: [temp, rh]},
// the grid expands to 4 targets.
type GridConfig struct {
	// TopicTemplate is a Go template for the target topics, e.g.
	// "plant/{{.line}}/{{.sensor}}".
	TopicTemplate string `yaml:"topic_template"`

	// URLTemplate is a Go template for the target URLs. Supports
	// environment variable substitution.
	URLTemplate string `yaml:"url_template"`

	// Dimensions maps dimension names to their possible values.
	Dimensions map[string][]string `yaml:"dimensions"`

	Method    string            `yaml:"method"`
	Timeout   Duration          `yaml:"timeout"`
	Headers   map[string]string `yaml:"headers"`
	Extractor ExtractorConfig   `yaml:"extractor"`
	Interval  Duration          `yaml:"interval"`
}

// ExtractorConfig specifies how to derive a payload from a response.
//
// It supports two formats in YAML:
//
// Shorthand string:
//
//	extractor: json:data.temp
//	extractor: regex:temp=([0-9.]+)
//	extractor: body
//	extractor: status
//	extractor: default
//
// Structured object:
//
//	extractor:
//	  type: regex
//	  pattern: 'temp=([0-9.]+)'
type ExtractorConfig struct {
	// Type is the extractor type: "default", "body", "status", "json", "regex".
	Type string

	// Path is the JSON field path (for type: json).
	Path string

	// Pattern is the regular expression (for type: regex).
	Pattern string
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler for ExtractorConfig.
func (e *ExtractorConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		return e.parseShorthand(s)
	}

	if node.Kind == yaml.MappingNode {
		// temporary struct to avoid infinite recursion
		var raw struct {
			Type    string `yaml:"type"`
			Path    string `yaml:"path"`
			Pattern string `yaml:"pattern"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		e.Type = raw.Type
		e.Path = raw.Path
		e.Pattern = raw.Pattern
		return nil
	}

	return fmt.Errorf("extractor must be a string or object, got %v", node.Kind)
}

// parseShorthand parses extractor shorthand syntax.
//
// Supported formats:
//   - "default", "body", "status"
//   - "json:path" → extract a JSON field
//   - "regex:pattern" → first capture group; the pattern may itself contain ':'
func (e *ExtractorConfig) parseShorthand(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if kind, value, found := strings.Cut(s, ":"); found {
		e.Type = kind

		switch e.Type {
		case "json":
			e.Path = value
		case "regex":
			e.Pattern = value
		default:
			return fmt.Errorf("unknown extractor type %q", e.Type)
		}
		return nil
	}

	switch s {
	case "default", "body", "status":
		e.Type = s
	default:
		return fmt.Errorf("unknown extractor %q (expected 'default', 'body', 'status', 'json:path', or 'regex:pattern')", s)
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in broker URL and credentials, target
// URLs, URL templates and header values. Defaults are applied before
// validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Window == 0 {
		c.Window = Duration(DefaultWindow)
	}
	if c.HistoryCapacity == 0 {
		c.HistoryCapacity = DefaultHistoryCapacity
	}
	if c.Queue.Capacity == 0 {
		c.Queue.Capacity = DefaultQueueCapacity
	}
	if c.Queue.Backpressure == "" {
		c.Queue.Backpressure = DefaultBackpressure
	}
	if c.NamesFile == "" {
		c.NamesFile = DefaultNamesFile
	}
	if c.PollInterval == 0 {
		c.PollInterval = Duration(DefaultPollInterval)
	}
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.Broker != nil && len(c.Broker.Topics) == 0 {
		c.Broker.Topics = []string{"#"}
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Window.Duration() <= 0 {
		return fmt.Errorf("window must be positive, got %s", c.Window.Duration())
	}
	if c.HistoryCapacity < 1 {
		return fmt.Errorf("history_capacity must be positive, got %d", c.HistoryCapacity)
	}
	if c.Queue.Capacity < 1 {
		return fmt.Errorf("queue.capacity must be positive, got %d", c.Queue.Capacity)
	}
	if _, err := bifrost.ParseBackpressure(c.Queue.Backpressure); err != nil {
		return fmt.Errorf("queue.backpressure: %w", err)
	}
	if c.PollInterval.Duration() < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", minPollInterval, c.PollInterval.Duration())
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be positive, got %d", c.MaxConcurrency)
	}

	if c.Broker != nil {
		if err := c.Broker.expandAndValidate(); err != nil {
			return err
		}
	}

	seenTopics := make(map[string]struct{}, len(c.Targets))
	for i := range c.Targets {
		tc := &c.Targets[i]

		if tc.Topic == "" {
			return fmt.Errorf("targets[%d]: topic is required", i)
		}
		if _, dup := seenTopics[tc.Topic]; dup {
			return fmt.Errorf("targets[%d]: duplicate topic %q", i, tc.Topic)
		}
		seenTopics[tc.Topic] = struct{}{}

		context := fmt.Sprintf("targets[%d] (%s)", i, tc.Topic)

		if tc.URL == "" {
			return fmt.Errorf("%s: url is required", context)
		}
		expanded, err := expandEnvVars(tc.URL)
		if err != nil {
			return fmt.Errorf("%s: url: %w", context, err)
		}
		tc.URL = expanded
		if err := validateHTTPURL(tc.URL); err != nil {
			return fmt.Errorf("%s: %w", context, err)
		}

		err = validateRequest(context, tc.Headers, tc.Method, tc.Timeout, tc.Interval, &tc.Extractor)
		if err != nil {
			return err
		}
	}

	for i := range c.Grids {
		g := &c.Grids[i]

		if strings.TrimSpace(g.TopicTemplate) == "" {
			return fmt.Errorf("grids[%d]: topic_template is required", i)
		}
		context := fmt.Sprintf("grids[%d] (%s)", i, g.TopicTemplate)

		// fail fast before the SDK tries to use an invalid template
		if _, err := template.New("").Parse(g.TopicTemplate); err != nil {
			return fmt.Errorf("%s: invalid topic_template: %w", context, err)
		}

		if g.URLTemplate == "" {
			return fmt.Errorf("%s: url_template is required", context)
		}
		expanded, err := expandEnvVars(g.URLTemplate)
		if err != nil {
			return fmt.Errorf("%s: url_template: %w", context, err)
		}
		g.URLTemplate = expanded

		if _, err := template.New("").Parse(g.URLTemplate); err != nil {
			return fmt.Errorf("%s: invalid url_template: %w", context, err)
		}

		if len(g.Dimensions) == 0 {
			return fmt.Errorf("%s: at least one dimension is required", context)
		}
		for dimName, dimValues := range g.Dimensions {
			if len(dimValues) == 0 {
				return fmt.Errorf("%s: dimension %q has no values", context, dimName)
			}
			seen := make(map[string]struct{}, len(dimValues))
			for _, v := range dimValues {
				if _, exists := seen[v]; exists {
					return fmt.Errorf("%s: dimension %q has duplicate value %q", context, dimName, v)
				}
				seen[v] = struct{}{}
			}
		}

		err = validateRequest(context, g.Headers, g.Method, g.Timeout, g.Interval, &g.Extractor)
		if err != nil {
			return err
		}
	}

	if c.Broker == nil && len(c.Targets) == 0 && len(c.Grids) == 0 {
		return errors.New("at least one source (broker, target or grid) must be defined")
	}

	return nil
}

func (b *BrokerConfig) expandAndValidate() error {
	if b.URL == "" {
		return errors.New("broker: url is required")
	}

	for _, field := range []*string{&b.URL, &b.Username, &b.Password} {
		expanded, err := expandEnvVars(*field)
		if err != nil {
			return fmt.Errorf("broker: %w", err)
		}
		*field = expanded
	}

	u, err := url.Parse(b.URL)
	if err != nil {
		return fmt.Errorf("broker: invalid url: %w", err)
	}
	switch u.Scheme {
	case "tcp", "mqtt", "ssl", "tls", "mqtts":
	default:
		return fmt.Errorf("broker: url scheme must be tcp, mqtt, ssl, tls or mqtts, got %q", u.Scheme)
	}

	if b.QoS < 0 || b.QoS > 2 {
		return fmt.Errorf("broker: qos must be 0, 1 or 2, got %d", b.QoS)
	}
	for i, topic := range b.Topics {
		if topic == "" {
			return fmt.Errorf("broker: topics[%d] is empty", i)
		}
	}
	if b.KeepAlive < 0 {
		return fmt.Errorf("broker: keep_alive cannot be negative, got %s", b.KeepAlive.Duration())
	}
	if b.KeepAlive.Duration() > maxKeepAlive {
		return fmt.Errorf("broker: keep_alive must not exceed %s, got %s", maxKeepAlive, b.KeepAlive.Duration())
	}
	return nil
}

func validateHTTPURL(raw string) error {
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsedURL.Scheme == "" {
		return errors.New("url must have a scheme (http:// or https://)")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", parsedURL.Scheme)
	}
	return nil
}

// validateRequest checks the settings shared by targets and grids and
// expands header values in place.
func validateRequest(context string, headers map[string]string, method string, timeout, interval Duration, e *ExtractorConfig) error {
	for k, v := range headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("%s: headers[%s]: %w", context, k, err)
		}
		headers[k] = expanded
	}

	if method != "" && method != "GET" && method != "HEAD" && method != "POST" {
		return fmt.Errorf("%s: method must be GET, HEAD, or POST", context)
	}

	if timeout != 0 {
		if timeout.Duration() < 0 {
			return fmt.Errorf("%s: timeout cannot be negative, got %s", context, timeout.Duration())
		}
		if timeout.Duration() < time.Second {
			return fmt.Errorf("%s: timeout must be at least 1s if specified, got %s", context, timeout.Duration())
		}
	}

	if interval != 0 {
		if interval.Duration() < minPollInterval {
			return fmt.Errorf("%s: interval must be at least 1s, got %s", context, interval.Duration())
		}
		if interval.Duration() > time.Hour {
			return fmt.Errorf("%s: interval must not exceed 1h, got %s", context, interval.Duration())
		}
	}

	return validateExtractor(e, context)
}

// validateExtractor validates an extractor configuration.
func validateExtractor(e *ExtractorConfig, context string) error {
	if e.Type == "" {
		return nil // empty means default, which is valid
	}

	switch e.Type {
	case "default", "body", "status":
	case "json":
		if e.Path == "" {
			return fmt.Errorf("%s: extractor type 'json' requires a path", context)
		}
	case "regex":
		if e.Pattern == "" {
			return fmt.Errorf("%s: extractor type 'regex' requires a pattern", context)
		}
		// fail fast on patterns the SDK would reject
		if _, err := bifrost.RegexExtractor(e.Pattern); err != nil {
			return fmt.Errorf("%s: extractor: %w", context, err)
		}
	default:
		return fmt.Errorf("%s: unknown extractor type %q", context, e.Type)
	}

	return nil
}
