package bifrost

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// BodyExtractor is a [PayloadExtractor] that publishes the whitespace-trimmed
// response body of 2xx responses.
//
// Non-2xx responses yield an error; an empty body yields [ErrNoPayload].
var BodyExtractor PayloadExtractor = func(body []byte, statusCode int) (string, error) {
	if err := checkSuccess(statusCode); err != nil {
		return "", err
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", ErrNoPayload
	}
	return string(trimmed), nil
}

// StatusCodeExtractor is a [PayloadExtractor] that publishes the HTTP status
// code itself, e.g. "200". It never fails.
var StatusCodeExtractor PayloadExtractor = func(body []byte, statusCode int) (string, error) {
	return strconv.Itoa(statusCode), nil
}

// JSONFieldExtractor returns a [PayloadExtractor] that publishes a JSON field
// using dot notation to navigate nested objects.
//
// For example, "data.temp" navigates to {"data": {"temp": 21.5}} and
// publishes "21.5". Strings are published as-is, numbers in their shortest
// decimal form and booleans as "true"/"false".
//
// Returns [ErrNoPayload] if the field is missing, null or not a scalar, and
// a decode error if the body is not JSON. The status code is ignored.
//
// Example:
//
//	extractor := bifrost.JSONFieldExtractor("sensors.boiler.pressure")
func JSONFieldExtractor(path string) PayloadExtractor {
	parts := strings.Split(path, ".")

	return func(body []byte, statusCode int) (string, error) {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()

		var data any
		if err := dec.Decode(&data); err != nil {
			return "", fmt.Errorf("decode json: %w", err)
		}

		value, ok := extractJSONPath(data, parts)
		if !ok {
			return "", ErrNoPayload
		}
		return value, nil
	}
}

// extractJSONPath walks a JSON structure using dot notation parts.
func extractJSONPath(data any, parts []string) (string, bool) {
	current := data

	for _, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return "", false
		}
		current, ok = obj[part]
		if !ok {
			return "", false
		}
	}

	switch v := current.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}

// RegexExtractor returns a [PayloadExtractor] that publishes the first
// capture group of pattern matched against the response body.
//
// The pattern must contain at least one capture group. A body that does not
// match yields [ErrNoPayload].
//
// Returns an error if the pattern is invalid or has no capture group.
//
// Example:
//
//	// publish 48.2 from "load average: 48.2"
//	extractor, err := bifrost.RegexExtractor(`load average:\s*([0-9.]+)`)
func RegexExtractor(pattern string) (PayloadExtractor, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if re.NumSubexp() < 1 {
		return nil, errors.New("regex pattern must contain a capture group")
	}

	return func(body []byte, statusCode int) (string, error) {
		matches := re.FindSubmatch(body)
		if len(matches) < 2 {
			return "", ErrNoPayload
		}
		return string(matches[1]), nil
	}, nil
}

// MustRegexExtractor is like [RegexExtractor] but panics if the pattern
// is invalid.
//
// Use this for compile-time constant patterns where you want to fail fast
// on invalid regex. For runtime patterns, use [RegexExtractor] instead.
func MustRegexExtractor(pattern string) PayloadExtractor {
	extractor, err := RegexExtractor(pattern)
	if err != nil {
		panic("bifrost: invalid regex pattern: " + err.Error())
	}
	return extractor
}

// FirstMatch returns a [PayloadExtractor] that tries multiple extractors in
// order, returning the first payload extracted without error.
//
// If every extractor fails, the error of the last one is returned. With no
// extractors FirstMatch yields [ErrNoPayload].
//
// Example:
//
//	// prefer a JSON field, fall back to the raw body
//	extractor := bifrost.FirstMatch(
//	    bifrost.JSONFieldExtractor("reading.value"),
//	    bifrost.BodyExtractor,
//	)
func FirstMatch(extractors ...PayloadExtractor) PayloadExtractor {
	return func(body []byte, statusCode int) (string, error) {
		err := ErrNoPayload
		for _, extractor := range extractors {
			var payload string
			payload, err = extractor(body, statusCode)
			if err == nil {
				return payload, nil
			}
		}
		return "", err
	}
}

// DefaultExtractor is the [PayloadExtractor] used when no extractor is
// specified on a [PollTarget].
//
// For 2xx responses it tries the JSON field "value", then falls back to
// [BodyExtractor]. Other status codes yield an error.
var DefaultExtractor PayloadExtractor = func(body []byte, statusCode int) (string, error) {
	if err := checkSuccess(statusCode); err != nil {
		return "", err
	}
	return defaultChain(body, statusCode)
}

var defaultChain = FirstMatch(
	JSONFieldExtractor("value"),
	BodyExtractor,
)

func checkSuccess(statusCode int) error {
	if statusCode < 200 || statusCode >= 300 {
		return fmt.Errorf("unexpected status %d", statusCode)
	}
	return nil
}
