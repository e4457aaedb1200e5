package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "imgrelay_build_info",
			Help: "Build information",
		},
		[]string{"date", "sha", "version"},
	)

	generations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgrelay_generations_total",
			Help: "Generation requests relayed to the backend, by outcome",
		},
		[]string{"outcome"},
	)

	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imgrelay_generation_duration_seconds",
			Help:    "Time spent waiting for the backend to generate an image",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 11),
		},
		[]string{"outcome"},
	)

	healthChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imgrelay_backend_health_checks_total",
			Help: "Backend health probes, by result",
		},
		[]string{"result"},
	)

	backendUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "imgrelay_backend_up",
			Help: "Whether the last backend health probe succeeded",
		},
	)

	backendURLUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "imgrelay_backend_url_updates_total",
			Help: "Accepted backend URL updates",
		},
	)
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, generations, generationDuration, healthChecks, backendUp, backendURLUpdates)
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// ObserveGeneration counts a relayed generation and records its duration.
func ObserveGeneration(outcome string, d time.Duration) {
	generations.WithLabelValues(outcome).Inc()
	generationDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordHealthCheck records the result of a backend health probe.
func RecordHealthCheck(connected bool) {
	result := "up"
	v := 1.0
	if !connected {
		result = "down"
		v = 0
	}
	healthChecks.WithLabelValues(result).Inc()
	backendUp.Set(v)
}

// RecordBackendURLUpdate increments the backend URL update counter.
func RecordBackendURLUpdate() {
	backendURLUpdates.Inc()
}
