package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gaspardpetit/imgrelay/internal/api"
	"github.com/gaspardpetit/imgrelay/internal/config"
	"github.com/gaspardpetit/imgrelay/internal/drain"
	"github.com/gaspardpetit/imgrelay/internal/logx"
)

// New constructs the HTTP handler for the relay. tracker may be nil.
func New(cfg config.ServerConfig, svc api.Relay, gatherer prometheus.Gatherer, tracker *drain.Tracker) http.Handler {
	r := chi.NewRouter()
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
			ExposedHeaders: []string{api.HeaderGenerationID},
		}))
	}
	for _, m := range api.MiddlewareChain() {
		r.Use(m)
	}

	r.Get("/", LandingHandler())
	r.Get("/healthz", healthz(tracker))
	r.Get("/openapi.json", api.OpenAPIHandler())
	r.Group(func(g chi.Router) {
		if tracker != nil {
			g.Use(tracker.Middleware())
		}
		g.Use(api.RateLimitMiddleware(cfg.GenerateRatePerMinute))
		g.Post("/generate", api.GenerateHandler(svc))
	})
	r.Get("/health", api.HealthHandler(svc))
	r.Group(func(g chi.Router) {
		g.Use(api.AdminKeyMiddleware(cfg.AdminKey))
		g.Post("/update-backend-url", api.UpdateBackendURLHandler(svc))
	})

	if cfg.MetricsOnMainPort() && gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// MetricsHandler serves gatherer on a dedicated listener.
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

// healthz reports relay liveness. It answers 503 while draining.
func healthz(tracker *drain.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body := `{"status":"ok"}`
		if tracker != nil && tracker.IsDraining() {
			w.WriteHeader(http.StatusServiceUnavailable)
			body = `{"status":"draining"}`
		}
		if _, err := w.Write([]byte(body)); err != nil {
			logx.Log.Error().Err(err).Msg("write healthz")
		}
	}
}
