package bifrost

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"text/template"
)

// NewPollTargetGrid creates one [PollTarget] per combination of dimension
// values, for fleets of devices that expose the same resource.
//
// Both topicTemplate and the URL template set with [WithURLTemplate] use
// Go's text/template syntax with dimension keys as variables. Values are
// URL-encoded in the URL and used verbatim in the topic. Missing template
// keys cause an error.
//
// Example:
//
//	targets, err := bifrost.NewPollTargetGrid("plant/{{.line}}/{{.sensor}}",
//	    bifrost.WithURLTemplate("http://{{.line}}.plant.local/api/{{.sensor}}"),
//	    bifrost.WithDimensions(map[string][]string{
//	        "line":   {"north", "south"},
//	        "sensor": {"temp", "humidity"},
//	    }),
//	)
//	// Returns 4 targets, usable with WithPollTargets(targets...)
func NewPollTargetGrid(topicTemplate string, opts ...GridOption) ([]PollTarget, error) {
	if strings.TrimSpace(topicTemplate) == "" {
		return nil, errors.New("topic template cannot be empty")
	}

	cfg := &gridConfig{
		headers: make(map[string]string),
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.urlTemplate == "" {
		return nil, errors.New("URL template required")
	}
	if len(cfg.dimensions) == 0 {
		return nil, errors.New("at least one dimension required")
	}

	// missingkey=error for fail-fast behaviour
	topicTmpl, err := template.New("topic").Option("missingkey=error").Parse(topicTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid topic template: %w", err)
	}
	urlTmpl, err := template.New("url").Option("missingkey=error").Parse(cfg.urlTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid URL template: %w", err)
	}

	combinations := cartesianProduct(cfg.dimensions)
	if len(combinations) == 0 {
		return nil, nil
	}

	var targetOpts []TargetOption
	if len(cfg.headers) > 0 {
		targetOpts = append(targetOpts, WithHeaders(flattenMap(cfg.headers)...))
	}
	if cfg.timeout > 0 {
		targetOpts = append(targetOpts, WithTimeout(cfg.timeout))
	}
	if cfg.extractor != nil {
		targetOpts = append(targetOpts, WithExtractor(cfg.extractor))
	}
	if cfg.method != "" {
		targetOpts = append(targetOpts, WithMethod(cfg.method))
	}
	if cfg.interval > 0 {
		targetOpts = append(targetOpts, WithInterval(cfg.interval))
	}

	targets := make([]PollTarget, 0, len(combinations))
	seen := make(map[string]struct{}, len(combinations))
	for _, combo := range combinations {
		topic, err := executeTemplate(topicTmpl, combo)
		if err != nil {
			return nil, fmt.Errorf("topic template execution failed: %w", err)
		}
		if _, dup := seen[topic]; dup {
			return nil, fmt.Errorf("topic template yields duplicate topic %q", topic)
		}
		seen[topic] = struct{}{}

		urlStr, err := executeTemplate(urlTmpl, urlEncodeMap(combo))
		if err != nil {
			return nil, fmt.Errorf("URL template execution failed: %w", err)
		}

		t, err := NewPollTarget(topic, urlStr, targetOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create poll target %q: %w", topic, err)
		}
		targets = append(targets, t)
	}

	return targets, nil
}

// cartesianProduct generates all combinations of dimension values.
// Keys are sorted alphabetically for deterministic output.
// Values maintain their original slice order.
//
// Example:
//
//	Input:  {"x": ["a","b"], "y": ["1","2"]}
//	Output: [{"x":"a","y":"1"}, {"x":"a","y":"2"}, {"x":"b","y":"1"}, {"x":"b","y":"2"}]
func cartesianProduct(dims map[string][]string) []map[string]string {
	if len(dims) == 0 {
		return nil
	}

	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if len(dims[k]) == 0 {
			return nil
		}
	}

	total := 1
	for _, k := range keys {
		total *= len(dims[k])
	}

	result := make([]map[string]string, 0, total)

	// odometer over the sorted keys, rightmost fastest
	indices := make([]int, len(keys))
	for {
		combo := make(map[string]string, len(keys))
		for i, k := range keys {
			combo[k] = dims[k][indices[i]]
		}
		result = append(result, combo)

		for i := len(keys) - 1; i >= 0; i-- {
			indices[i]++
			if indices[i] < len(dims[keys[i]]) {
				break
			}
			indices[i] = 0
			if i == 0 {
				return result
			}
		}
	}
}

// urlEncodeMap returns a new map with all values URL-encoded.
func urlEncodeMap(m map[string]string) map[string]string {
	result := make(map[string]string, len(m))
	for k, v := range m {
		result[k] = url.QueryEscape(v)
	}
	return result
}

// executeTemplate renders the template with the given data.
func executeTemplate(tmpl *template.Template, data map[string]string) (string, error) {
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// flattenMap converts a map to a slice of key-value pairs for variadic functions.
// Keys are sorted for deterministic output.
func flattenMap(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]string, 0, len(m)*2)
	for _, k := range keys {
		result = append(result, k, m[k])
	}
	return result
}
