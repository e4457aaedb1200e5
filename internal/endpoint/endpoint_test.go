package endpoint

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  error
	}{
		{"  https://new.example/  ", "https://new.example", nil},
		{"https://new.example", "https://new.example", nil},
		{"https://new.example///", "https://new.example", nil},
		{"\thttps://a.ngrok-free.app/api/\n", "https://a.ngrok-free.app/api", nil},
		{"not a url", "not a url", nil},
		{"", "", ErrURLRequired},
		{"   \t\n", "", ErrURLRequired},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.in)
		if !errors.Is(err, tt.err) {
			t.Fatalf("Normalize(%q) err = %v; want %v", tt.in, err, tt.err)
		}
		if got != tt.want {
			t.Fatalf("Normalize(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("https://old.example")
	if got := s.Load(ctx); got != "https://old.example" {
		t.Fatalf("initial = %q", got)
	}
	if err := s.Store(ctx, "https://new.example"); err != nil {
		t.Fatalf("store: %v", err)
	}
	if got := s.Load(ctx); got != "https://new.example" {
		t.Fatalf("after store = %q", got)
	}
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("a")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.Store(ctx, "b")
		}()
		go func() {
			defer wg.Done()
			if v := s.Load(ctx); v != "a" && v != "b" {
				t.Errorf("unexpected value %q", v)
			}
		}()
	}
	wg.Wait()
	if got := s.Load(ctx); got != "b" {
		t.Fatalf("final = %q", got)
	}
}
