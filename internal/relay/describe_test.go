package relay

import (
	"strings"
	"testing"
)

func TestDescribeFailure(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"detail object", 500, `{"detail":"GPU OOM"}`, "Backend error: 500 - {'detail': 'GPU OOM'}"},
		{"bare string", 502, `"bad gateway"`, "Backend error: 502 - bad gateway"},
		{"plain text", 404, "Not Found", "Backend error: 404 - Not Found"},
		{"empty body", 503, "", "Backend error: 503 - "},
		{"list and literals", 422, `[1, 2.5, true, false, null]`, "Backend error: 422 - [1, 2.5, True, False, None]"},
		{"key order kept", 400, `{"b":1,"a":{"c":[]}}`, "Backend error: 400 - {'b': 1, 'a': {'c': []}}"},
		{"duplicate key", 400, `{"a":1,"b":2,"a":3}`, "Backend error: 400 - {'a': 3, 'b': 2}"},
		{"single quote", 400, `{"detail":"can't"}`, `Backend error: 400 - {'detail': "can't"}`},
		{"both quotes", 400, `{"detail":"it's \"x\""}`, `Backend error: 400 - {'detail': 'it\'s "x"'}`},
		{"newline escaped", 400, `{"detail":"a\nb"}`, `Backend error: 400 - {'detail': 'a\nb'}`},
		{"unicode kept", 400, `{"detail":"café"}`, "Backend error: 400 - {'detail': 'café'}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DescribeFailure(tc.status, []byte(tc.body)); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestDescribeFailureTruncatesText(t *testing.T) {
	body := strings.Repeat("x", 250)
	got := DescribeFailure(500, []byte(body))
	want := "Backend error: 500 - " + strings.Repeat("x", 200)
	if got != want {
		t.Fatalf("got %d chars, want %d", len(got), len(want))
	}

	// characters, not bytes
	body = strings.Repeat("é", 201)
	got = describeBody([]byte(body))
	if got != strings.Repeat("é", 200) {
		t.Fatalf("unexpected truncation %q", got)
	}
}

func TestPyNumber(t *testing.T) {
	cases := map[string]string{
		"42":      "42",
		"-0":      "0",
		"1.0":     "1.0",
		"1e3":     "1000.0",
		"2.5E-5":  "2.5e-05",
		"1e16":    "1e+16",
		"0.0001":  "0.0001",
		"1e400":   "inf",
		"-1e400":  "-inf",
		"123.456": "123.456",
	}
	for in, want := range cases {
		if got := pyNumber(in); got != want {
			t.Fatalf("pyNumber(%s)=%s want %s", in, got, want)
		}
	}
}
