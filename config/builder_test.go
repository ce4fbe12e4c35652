package config

import (
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jpalmerr/bifrost"
)

func TestBuildTargets_SingleTarget(t *testing.T) {
	cfg := &Config{
		Targets: []TargetConfig{
			{
				Topic: "plant/boiler",
				URL:   "https://plc.local/status",
			},
		},
	}

	targets, err := BuildTargets(cfg)
	if err != nil {
		t.Fatalf("BuildTargets() error = %v", err)
	}

	if len(targets) != 1 {
		t.Fatalf("len(targets) = %d, want 1", len(targets))
	}

	pt := targets[0]
	if pt.Topic() != "plant/boiler" {
		t.Errorf("Topic() = %q, want %q", pt.Topic(), "plant/boiler")
	}
	if pt.URL() != "https://plc.local/status" {
		t.Errorf("URL() = %q, want %q", pt.URL(), "https://plc.local/status")
	}
	// empty means GET, applied when the request is sent
	if pt.Method() != "" {
		t.Errorf("Method() = %q, want empty", pt.Method())
	}
}

func TestBuildTargets_TargetWithAllOptions(t *testing.T) {
	cfg := &Config{
		Targets: []TargetConfig{
			{
				Topic:   "plant/boiler",
				URL:     "https://plc.local/status",
				Method:  "POST",
				Timeout: Duration(5 * time.Second),
				Headers: map[string]string{
					"Authorization": "Bearer token",
					"X-Custom":      "value",
				},
				Extractor: ExtractorConfig{Type: "json", Path: "boiler.pressure"},
				Interval:  Duration(2 * time.Second),
			},
		},
	}

	targets, err := BuildTargets(cfg)
	if err != nil {
		t.Fatalf("BuildTargets() error = %v", err)
	}

	pt := targets[0]
	if pt.Method() != "POST" {
		t.Errorf("Method() = %q, want POST", pt.Method())
	}
	if pt.Timeout() != 5*time.Second {
		t.Errorf("Timeout() = %v, want 5s", pt.Timeout())
	}
	if pt.Interval() != 2*time.Second {
		t.Errorf("Interval() = %v, want 2s", pt.Interval())
	}

	wantHeaders := map[string]string{"Authorization": "Bearer token", "X-Custom": "value"}
	if !reflect.DeepEqual(pt.Headers(), wantHeaders) {
		t.Errorf("Headers() = %v, want %v", pt.Headers(), wantHeaders)
	}

	got, err := pt.Extractor()([]byte(`{"boiler":{"pressure":2.4}}`), 200)
	if err != nil {
		t.Fatalf("Extractor() error = %v", err)
	}
	if got != "2.4" {
		t.Errorf("Extractor() = %q, want 2.4", got)
	}
}

func TestBuildTargets_Grid(t *testing.T) {
	cfg := &Config{
		Grids: []GridConfig{
			{
				TopicTemplate: "plant/{{.line}}/{{.sensor}}",
				URLTemplate:   "https://{{.line}}.plant.local/{{.sensor}}",
				Dimensions: map[string][]string{
					"line":   {"north", "south"},
					"sensor": {"temp", "rh"},
				},
				Timeout: Duration(3 * time.Second),
			},
		},
	}

	targets, err := BuildTargets(cfg)
	if err != nil {
		t.Fatalf("BuildTargets() error = %v", err)
	}

	// 2 lines * 2 sensors = 4 targets
	wantTopics := []string{"plant/north/temp", "plant/north/rh", "plant/south/temp", "plant/south/rh"}
	if len(targets) != len(wantTopics) {
		t.Fatalf("len(targets) = %d, want %d", len(targets), len(wantTopics))
	}
	for i, pt := range targets {
		if pt.Topic() != wantTopics[i] {
			t.Errorf("targets[%d].Topic() = %q, want %q", i, pt.Topic(), wantTopics[i])
		}
		if pt.Timeout() != 3*time.Second {
			t.Errorf("targets[%d].Timeout() = %v, want 3s", i, pt.Timeout())
		}
	}
	if targets[0].URL() != "https://north.plant.local/temp" {
		t.Errorf("targets[0].URL() = %q", targets[0].URL())
	}
}

func TestBuildTargets_MixedTargetsAndGrids(t *testing.T) {
	cfg := &Config{
		Targets: []TargetConfig{
			{Topic: "plant/boiler", URL: "https://plc.local/boiler"},
		},
		Grids: []GridConfig{
			{
				TopicTemplate: "line/{{.n}}",
				URLTemplate:   "https://plc.local/line/{{.n}}",
				Dimensions:    map[string][]string{"n": {"1", "2", "3"}},
			},
		},
	}

	targets, err := BuildTargets(cfg)
	if err != nil {
		t.Fatalf("BuildTargets() error = %v", err)
	}

	// direct targets come first
	if len(targets) != 4 {
		t.Fatalf("len(targets) = %d, want 4", len(targets))
	}
	if targets[0].Topic() != "plant/boiler" {
		t.Errorf("targets[0].Topic() = %q, want plant/boiler", targets[0].Topic())
	}
	if targets[3].Topic() != "line/3" {
		t.Errorf("targets[3].Topic() = %q, want line/3", targets[3].Topic())
	}
}

func TestBuildTargets_ExtractorBehavior(t *testing.T) {
	tests := []struct {
		name      string
		extractor ExtractorConfig
		body      string
		status    int
		want      string
		wantErr   bool
	}{
		{"default json value", ExtractorConfig{}, `{"value":21.5}`, 200, "21.5", false},
		{"default falls back to body", ExtractorConfig{Type: "default"}, "on\n", 200, "on", false},
		{"default rejects 5xx", ExtractorConfig{}, "boom", 503, "", true},
		{"body", ExtractorConfig{Type: "body"}, "  42 ", 200, "42", false},
		{"status", ExtractorConfig{Type: "status"}, "", 503, "503", false},
		{"json nested", ExtractorConfig{Type: "json", Path: "a.b"}, `{"a":{"b":"x"}}`, 200, "x", false},
		{"regex", ExtractorConfig{Type: "regex", Pattern: `t=([0-9.]+)`}, "t=19.25 rh=40", 200, "19.25", false},
		{"regex no match", ExtractorConfig{Type: "regex", Pattern: `t=([0-9.]+)`}, "rh=40", 200, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Targets: []TargetConfig{
					{Topic: "a", URL: "https://example.com", Extractor: tt.extractor},
				},
			}

			targets, err := BuildTargets(cfg)
			if err != nil {
				t.Fatalf("BuildTargets() error = %v", err)
			}

			extract := targets[0].Extractor()
			if extract == nil {
				extract = bifrost.DefaultExtractor
			}

			got, err := extract([]byte(tt.body), tt.status)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("extractor() = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("extractor() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("extractor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildTargets_EmptyConfig(t *testing.T) {
	targets, err := BuildTargets(&Config{})
	if err != nil {
		t.Fatalf("BuildTargets() error = %v", err)
	}
	if len(targets) != 0 {
		t.Errorf("len(targets) = %d, want 0", len(targets))
	}
}

func TestBuildTargets_GridMissingScheme(t *testing.T) {
	cfg := &Config{
		Grids: []GridConfig{
			{
				TopicTemplate: "{{.line}}",
				URLTemplate:   "{{.line}}.plant.local/temp", // missing scheme
				Dimensions:    map[string][]string{"line": {"north"}},
			},
		},
	}

	_, err := BuildTargets(cfg)
	if err == nil {
		t.Fatal("BuildTargets() expected error for missing scheme, got nil")
	}
	if !strings.Contains(err.Error(), "scheme") {
		t.Errorf("error = %q, want to contain 'scheme'", err.Error())
	}
	if !strings.Contains(err.Error(), "grids[0]") {
		t.Errorf("error = %q, want to contain 'grids[0]'", err.Error())
	}
}

func TestBuildTargets_GridMissingKey(t *testing.T) {
	cfg := &Config{
		Grids: []GridConfig{
			{
				TopicTemplate: "{{.line}}/{{.sensor}}",
				URLTemplate:   "https://{{.line}}.plant.local",
				Dimensions:    map[string][]string{"line": {"north"}},
			},
		},
	}

	_, err := BuildTargets(cfg)
	if err == nil {
		t.Fatal("BuildTargets() expected error for missing template key, got nil")
	}
	if !strings.Contains(err.Error(), "template execution failed") {
		t.Errorf("error = %q, want to contain 'template execution failed'", err.Error())
	}
}

func TestBuildOptions(t *testing.T) {
	yaml := `
title: Plant Floor
port: 5055
window: 20ms
history_capacity: 10
names_file: "-"
queue:
  capacity: 8
  backpressure: drop_newest
broker:
  url: tcp://localhost:1883
  qos: 1
targets:
  - topic: plant/boiler
    url: https://plc.local/boiler
grids:
  - topic_template: "line/{{.n}}"
    url_template: "https://plc.local/line/{{.n}}"
    dimensions:
      n: ["1", "2"]
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	opts, err := BuildOptions(cfg)
	if err != nil {
		t.Fatalf("BuildOptions() error = %v", err)
	}

	opts = append(opts, bifrost.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	b, err := bifrost.New(opts...)
	if err != nil {
		t.Fatalf("bifrost.New() error = %v", err)
	}

	if b.Port() != 5055 {
		t.Errorf("Port() = %d, want 5055", b.Port())
	}
	if b.Window() != 20*time.Millisecond {
		t.Errorf("Window() = %v, want 20ms", b.Window())
	}
	if got := len(b.PollTargets()); got != 3 {
		t.Errorf("len(PollTargets()) = %d, want 3", got)
	}

	stats := b.Stats()
	if stats.QueueCapacity != 8 {
		t.Errorf("Stats().QueueCapacity = %d, want 8", stats.QueueCapacity)
	}
}

func TestBuildOptions_InvalidBackpressure(t *testing.T) {
	cfg := &Config{Queue: QueueConfig{Backpressure: "spill"}}

	_, err := BuildOptions(cfg)
	if err == nil {
		t.Fatal("BuildOptions() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "queue.backpressure") {
		t.Errorf("error = %q, want to contain 'queue.backpressure'", err.Error())
	}
}

func TestMapToKeyValuePairs_Sorted(t *testing.T) {
	got := mapToKeyValuePairs(map[string]string{"b": "2", "a": "1", "c": "3"})
	want := []string{"a", "1", "b", "2", "c", "3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("mapToKeyValuePairs() = %v, want %v", got, want)
	}
}
