package api

import (
	"bytes"
	"crypto/subtle"
	"io"
	"net/http"
	"strings"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/gaspardpetit/imgrelay/internal/logx"
)

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
}

func (lw *loggingResponseWriter) WriteHeader(status int) {
	lw.status = status
	lw.ResponseWriter.WriteHeader(status)
}

func (lw *loggingResponseWriter) Write(b []byte) (int, error) {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel && !bytes.HasPrefix(bytes.TrimSpace(b), []byte("<")) {
		logx.Log.Debug().Bytes("body", truncateBody(b)).Msg("http response chunk")
	}
	return lw.ResponseWriter.Write(b)
}

// bodyLogLimit keeps base64 images out of debug logs.
const bodyLogLimit = 1024

func truncateBody(b []byte) []byte {
	if len(b) > bodyLogLimit {
		return b[:bodyLogLimit]
	}
	return b
}

// MiddlewareChain returns the middleware applied to every route.
func MiddlewareChain() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		chiMiddleware.RequestID,
		requestLogger,
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lvl := zerolog.GlobalLevel()
		reqID := chiMiddleware.GetReqID(r.Context())
		lrw := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}
		if lvl <= zerolog.DebugLevel {
			var body []byte
			if r.Body != nil {
				body, _ = io.ReadAll(r.Body)
				r.Body = io.NopCloser(bytes.NewReader(body))
			}
			logx.Log.Debug().Str("request_id", reqID).Str("method", r.Method).Str("url", r.URL.String()).Bytes("body", truncateBody(body)).Msg("http request")
		}
		next.ServeHTTP(lrw, r)
		if lvl <= zerolog.InfoLevel {
			logx.Log.Info().Str("request_id", reqID).Str("method", r.Method).Str("url", r.URL.String()).Int("status", lrw.status).Msg("http")
		}
	})
}

// AdminKeyMiddleware requires "Authorization: Bearer <key>" when key is set.
// An empty key leaves the route open.
func AdminKeyMiddleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(key)) != 1 {
				logx.Log.Warn().Str("path", r.URL.Path).Msg("rejected unauthenticated admin request")
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitMiddleware accepts at most perMinute requests per minute, in bursts
// of up to perMinute, and answers 429 beyond that. perMinute <= 0 disables it.
func RateLimitMiddleware(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				logx.Log.Warn().Str("path", r.URL.Path).Msg("generation rate limit exceeded")
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "too many generation requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
