package telemetry

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Kind identifies which variant a [Value] holds.
type Kind uint8

const (
	// KindText is a payload that did not parse as a number.
	KindText Kind = iota

	// KindNumeric is a payload that parsed as a finite decimal number.
	KindNumeric
)

// String returns "text" or "numeric".
func (k Kind) String() string {
	if k == KindNumeric {
		return "numeric"
	}
	return "text"
}

// Value is a tagged variant holding either a float64 or a string.
//
// The zero Value is Text(""). Use [Numeric] and [Text] to construct values and
// switch on [Value.Kind] to consume them.
type Value struct {
	kind Kind
	num  float64
	text string
}

// Numeric returns a numeric [Value].
func Numeric(f float64) Value {
	return Value{kind: KindNumeric, num: f}
}

// Text returns a text [Value] holding s verbatim.
func Text(s string) Value {
	return Value{kind: KindText, text: s}
}

// Kind reports which variant v holds.
func (v Value) Kind() Kind {
	return v.kind
}

// Float returns the numeric value and true, or 0 and false for text values.
func (v Value) Float() (float64, bool) {
	if v.kind != KindNumeric {
		return 0, false
	}
	return v.num, true
}

// Text returns the text value and true, or "" and false for numeric values.
func (v Value) Text() (string, bool) {
	if v.kind != KindText {
		return "", false
	}
	return v.text, true
}

// String formats the value for logs.
func (v Value) String() string {
	if v.kind == KindNumeric {
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	}
	return v.text
}

// MarshalJSON encodes numeric values as JSON numbers and text values as
// JSON strings.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindNumeric {
		return json.Marshal(v.num)
	}
	return json.Marshal(v.text)
}

// Classify converts a raw payload into a [Value].
//
// The payload is numeric if, after trimming surrounding whitespace, the whole
// string is a decimal floating-point literal: optional sign, digits with an
// optional decimal point, and an optional exponent. Everything else,
// including the empty string, hexadecimal literals, "Inf", "NaN" and values
// outside the float64 range, is returned as Text holding raw unmodified.
func Classify(raw string) Value {
	s := strings.TrimSpace(raw)
	if !isDecimalLiteral(s) {
		return Text(raw)
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return Text(raw)
	}
	return Numeric(f)
}

// isDecimalLiteral reports whether s matches [+-]?(d+(.d*)?|.d+)([eE][+-]?d+)?
func isDecimalLiteral(s string) bool {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}

	intDigits := skipDigits(s, i)
	i += intDigits

	fracDigits := 0
	if i < len(s) && s[i] == '.' {
		i++
		fracDigits = skipDigits(s, i)
		i += fracDigits
	}
	if intDigits == 0 && fracDigits == 0 {
		return false
	}

	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		expDigits := skipDigits(s, i)
		if expDigits == 0 {
			return false
		}
		i += expDigits
	}

	return i == len(s)
}

func skipDigits(s string, from int) int {
	n := 0
	for from+n < len(s) && s[from+n] >= '0' && s[from+n] <= '9' {
		n++
	}
	return n
}
