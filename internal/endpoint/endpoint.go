// Package endpoint holds the relay's current belief about the backend base URL.
//
// The value is a single last-writer-wins cell. Readers load it at call time and
// never cache it, so an update is picked up by the next forwarding call; a call
// that is already in flight keeps whichever value it loaded.
package endpoint

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
)

// ErrURLRequired is returned when an update carries an empty or blank URL.
var ErrURLRequired = errors.New("URL is required")

// Store is a mutable backend URL cell shared by the relay operations.
type Store interface {
	Load(ctx context.Context) string
	Store(ctx context.Context, url string) error
}

// Normalize trims surrounding whitespace and trailing slashes from raw.
// Blank input yields ErrURLRequired. No reachability or syntax check is done.
func Normalize(raw string) (string, error) {
	u := strings.TrimSpace(raw)
	if u == "" {
		return "", ErrURLRequired
	}
	return strings.TrimRight(u, "/"), nil
}

// MemoryStore keeps the URL in process memory.
type MemoryStore struct {
	v atomic.Value
}

// NewMemoryStore returns a MemoryStore holding initial.
func NewMemoryStore(initial string) *MemoryStore {
	s := &MemoryStore{}
	s.v.Store(initial)
	return s
}

func (s *MemoryStore) Load(context.Context) string {
	if v, ok := s.v.Load().(string); ok {
		return v
	}
	return ""
}

func (s *MemoryStore) Store(_ context.Context, url string) error {
	s.v.Store(url)
	return nil
}
