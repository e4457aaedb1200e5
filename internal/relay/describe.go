package relay

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/buger/jsonparser"
)

// rawDetailLimit caps how much of a non-JSON error body ends up in a message.
const rawDetailLimit = 200

// DescribeFailure renders the error message for a non-200 backend response.
// A JSON body is rendered as a Python literal, e.g. {'detail': 'GPU OOM'}.
// Anything else is cut to its first 200 characters.
func DescribeFailure(status int, body []byte) string {
	return fmt.Sprintf("Backend error: %d - %s", status, describeBody(body))
}

func describeBody(body []byte) string {
	if json.Valid(body) {
		if s, err := pyStr(body); err == nil {
			return s
		}
	}
	return truncate(string(body), rawDetailLimit)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}

// pyStr formats a JSON document the way str() prints the decoded value:
// a top-level string is printed bare, everything else as repr().
func pyStr(doc []byte) (string, error) {
	value, typ, _, err := jsonparser.Get(doc)
	if err != nil {
		return "", err
	}
	if typ == jsonparser.String {
		return jsonparser.ParseString(value)
	}
	return pyRepr(value, typ)
}

func pyRepr(value []byte, typ jsonparser.ValueType) (string, error) {
	switch typ {
	case jsonparser.String:
		s, err := jsonparser.ParseString(value)
		if err != nil {
			return "", err
		}
		return pyQuote(s), nil
	case jsonparser.Number:
		return pyNumber(string(value)), nil
	case jsonparser.Boolean:
		if string(value) == "true" {
			return "True", nil
		}
		return "False", nil
	case jsonparser.Null:
		return "None", nil
	case jsonparser.Array:
		return pyList(value)
	case jsonparser.Object:
		return pyDict(value)
	default:
		return "", fmt.Errorf("unsupported json value %q", value)
	}
}

func pyList(value []byte) (string, error) {
	var items []string
	var firstErr error
	_, err := jsonparser.ArrayEach(value, func(v []byte, typ jsonparser.ValueType, _ int, err error) {
		if firstErr != nil {
			return
		}
		if err != nil {
			firstErr = err
			return
		}
		s, err := pyRepr(v, typ)
		if err != nil {
			firstErr = err
			return
		}
		items = append(items, s)
	})
	if err != nil {
		return "", err
	}
	if firstErr != nil {
		return "", firstErr
	}
	return "[" + strings.Join(items, ", ") + "]", nil
}

// pyDict keeps document key order. A repeated key keeps its first position
// and its last value, as a decoded Python dict does.
func pyDict(value []byte) (string, error) {
	var keys []string
	vals := map[string]string{}
	err := jsonparser.ObjectEach(value, func(k, v []byte, typ jsonparser.ValueType, _ int) error {
		key, err := jsonparser.ParseString(k)
		if err != nil {
			return err
		}
		s, err := pyRepr(v, typ)
		if err != nil {
			return err
		}
		if _, seen := vals[key]; !seen {
			keys = append(keys, key)
		}
		vals[key] = s
		return nil
	})
	if err != nil {
		return "", err
	}
	items := make([]string, len(keys))
	for i, k := range keys {
		items[i] = pyQuote(k) + ": " + vals[k]
	}
	return "{" + strings.Join(items, ", ") + "}", nil
}

// pyQuote mirrors Python's string repr: single quotes unless the text holds a
// single quote and no double quote.
func pyQuote(s string) string {
	quote := '\''
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		quote = '"'
	}
	var b strings.Builder
	b.WriteRune(quote)
	for _, r := range s {
		switch {
		case r == quote || r == '\\':
			b.WriteRune('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r == ' ' || unicode.IsPrint(r):
			b.WriteRune(r)
		case r < 0x100:
			fmt.Fprintf(&b, `\x%02x`, r)
		case r < 0x10000:
			fmt.Fprintf(&b, `\u%04x`, r)
		default:
			fmt.Fprintf(&b, `\U%08x`, r)
		}
	}
	b.WriteRune(quote)
	return b.String()
}

func pyNumber(raw string) string {
	if !strings.ContainsAny(raw, ".eE") {
		if raw == "-0" {
			return "0"
		}
		return raw
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil && !math.IsInf(f, 0) {
		return raw
	}
	return pyFloat(f)
}

// pyFloat follows Python's float repr: shortest round-trip digits, positional
// between 1e-4 and 1e16, always with a fractional part or exponent.
func pyFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	e := strconv.FormatFloat(f, 'e', -1, 64)
	mant, expPart, _ := strings.Cut(e, "e")
	exp, _ := strconv.Atoi(expPart)
	if exp < -4 || exp >= 16 {
		sign := "+"
		if exp < 0 {
			sign = "-"
			exp = -exp
		}
		return fmt.Sprintf("%se%s%02d", mant, sign, exp)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
