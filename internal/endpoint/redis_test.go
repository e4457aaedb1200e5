package endpoint

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	ctx := context.Background()

	rs, err := NewRedisStore(ctx, mr.Addr(), "https://default.example")
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer func() { _ = rs.Close() }()

	if got := rs.Load(ctx); got != "https://default.example" {
		t.Fatalf("initial = %q", got)
	}

	// A second replica sees updates written by the first.
	other, err := NewRedisStore(ctx, mr.Addr(), "https://default.example")
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer func() { _ = other.Close() }()
	if err := rs.Store(ctx, "https://new.example"); err != nil {
		t.Fatalf("store: %v", err)
	}
	if got := other.Load(ctx); got != "https://new.example" {
		t.Fatalf("replica sees %q", got)
	}

	// Restarting resets the shared value to the default.
	restarted, err := NewRedisStore(ctx, mr.Addr(), "https://default.example")
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer func() { _ = restarted.Close() }()
	if got := rs.Load(ctx); got != "https://default.example" {
		t.Fatalf("after restart = %q", got)
	}
}

func TestRedisStoreFallsBackWhenUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	ctx := context.Background()
	rs, err := NewRedisStore(ctx, mr.Addr(), "https://default.example")
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer func() { _ = rs.Close() }()
	if err := rs.Store(ctx, "https://new.example"); err != nil {
		t.Fatalf("store: %v", err)
	}
	mr.Close()
	if got := rs.Load(ctx); got != "https://new.example" {
		t.Fatalf("fallback = %q", got)
	}
	if err := rs.Store(ctx, "https://other.example"); err == nil {
		t.Fatalf("expected store error with redis down")
	}
}

func TestParseRedisURL(t *testing.T) {
	tests := []struct {
		url    string
		addrs  int
		master string
		db     int
	}{
		{"localhost:6379", 1, "", 0},
		{"redis://:pass@localhost:6379/1", 1, "", 1},
		{"redis://host1:6379,host2:6379/0", 2, "", 0},
		{"redis://localhost:6379?db=3", 1, "", 3},
		{"redis-sentinel://localhost:26379/mymaster?db=2", 1, "mymaster", 2},
	}
	for _, tt := range tests {
		opts, err := parseRedisURL(tt.url)
		if err != nil {
			t.Fatalf("parseRedisURL(%q): %v", tt.url, err)
		}
		if len(opts.Addrs) != tt.addrs {
			t.Fatalf("%q addrs = %d; want %d", tt.url, len(opts.Addrs), tt.addrs)
		}
		if opts.MasterName != tt.master {
			t.Fatalf("%q master = %q; want %q", tt.url, opts.MasterName, tt.master)
		}
		if opts.DB != tt.db {
			t.Fatalf("%q db = %d; want %d", tt.url, opts.DB, tt.db)
		}
	}
	if _, err := parseRedisURL("http://localhost:6379"); err == nil {
		t.Fatalf("expected scheme error")
	}
}
