// Package drain tracks in-flight generations so shutdown can wait for them.
package drain

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gaspardpetit/imgrelay/internal/logx"
)

// Tracker counts in-flight requests and carries the draining flag.
// The zero value is ready to use.
type Tracker struct {
	draining atomic.Bool

	mu     sync.Mutex
	count  int64
	zeroCh chan struct{}
}

// Start marks the process as draining. New tracked requests are refused.
func (t *Tracker) Start() { t.draining.Store(true) }

// IsDraining reports whether draining is in progress.
func (t *Tracker) IsDraining() bool { return t.draining.Load() }

// Inc increments the in-flight counter.
func (t *Tracker) Inc() {
	t.mu.Lock()
	t.ensureCh()
	if t.count == 0 {
		t.zeroCh = make(chan struct{})
	}
	t.count++
	t.mu.Unlock()
}

// Dec decrements the in-flight counter.
func (t *Tracker) Dec() {
	t.mu.Lock()
	t.ensureCh()
	if t.count > 0 {
		t.count--
		if t.count == 0 {
			close(t.zeroCh)
		}
	}
	t.mu.Unlock()
}

// Count returns the current in-flight count.
func (t *Tracker) Count() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// WaitForZero blocks until nothing is in flight or ctx is done.
func (t *Tracker) WaitForZero(ctx context.Context) bool {
	t.mu.Lock()
	t.ensureCh()
	ch := t.zeroCh
	t.mu.Unlock()
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

// must hold mu
func (t *Tracker) ensureCh() {
	if t.zeroCh == nil {
		t.zeroCh = make(chan struct{})
		if t.count == 0 {
			close(t.zeroCh)
		}
	}
}

// Middleware tracks each request for its whole duration and answers 503
// once draining has started.
func (t *Tracker) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if t.IsDraining() {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				if _, err := w.Write([]byte(`{"success":false,"error":"relay is shutting down"}`)); err != nil {
					logx.Log.Error().Err(err).Msg("write draining response")
				}
				return
			}
			t.Inc()
			defer t.Dec()
			next.ServeHTTP(w, r)
		})
	}
}
