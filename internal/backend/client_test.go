package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGenerateSendsBypassHeadersAndPayload(t *testing.T) {
	var gotPath, gotMethod, gotSkip, gotUA, gotCT, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		gotSkip = r.Header.Get("ngrok-skip-browser-warning")
		gotUA = r.Header.Get("User-Agent")
		gotCT = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(Options{UserAgent: "Mozilla/5.0", GenerateTimeout: time.Second})
	resp, err := c.Generate(context.Background(), srv.URL, []byte(`{"seed":0}`))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.StatusCode != http.StatusCreated || string(resp.Body) != `{"ok":true}` {
		t.Fatalf("unexpected response %d %q", resp.StatusCode, resp.Body)
	}
	if gotPath != "/generate" || gotMethod != http.MethodPost {
		t.Fatalf("request %s %s", gotMethod, gotPath)
	}
	if gotSkip != "true" || gotUA != "Mozilla/5.0" || gotCT != "application/json" {
		t.Fatalf("headers skip=%q ua=%q ct=%q", gotSkip, gotUA, gotCT)
	}
	if gotBody != `{"seed":0}` {
		t.Fatalf("body %q", gotBody)
	}
}

func TestHealthUsesGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("ngrok-skip-browser-warning") != "true" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`{"gpu":"ok"}`))
	}))
	defer srv.Close()

	c := New(Options{HealthTimeout: time.Second})
	resp, err := c.Health(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := New(Options{HealthTimeout: 50 * time.Millisecond})
	_, err := c.Health(context.Background(), srv.URL)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestInsecureSkipVerify(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	strict := New(Options{HealthTimeout: time.Second})
	if _, err := strict.Health(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected certificate error with verification enabled")
	}
	lax := New(Options{HealthTimeout: time.Second, InsecureSkipVerify: true})
	if _, err := lax.Health(context.Background(), srv.URL); err != nil {
		t.Fatalf("expected success with verification disabled: %v", err)
	}
}
