package builder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the builder's prometheus collectors.
type Metrics struct {
	// Passes counts dependency discovery passes.
	Passes prometheus.Counter

	// Requests counts rebuild batches submitted.
	Requests prometheus.Counter

	// Rebuilt counts source files submitted for rebuild.
	Rebuilt prometheus.Counter

	// Located counts candidate sources returned by the database.
	Located prometheus.Counter

	// Duration measures whole dependency-building runs.
	// Labels: status (ok, error)
	Duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Passes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pydep",
			Subsystem: "builder",
			Name:      "discovery_passes_total",
			Help:      "Total dependency discovery passes",
		}),
		Requests: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pydep",
			Subsystem: "builder",
			Name:      "rebuild_requests_total",
			Help:      "Total rebuild batches submitted",
		}),
		Rebuilt: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pydep",
			Subsystem: "builder",
			Name:      "rebuilt_sources_total",
			Help:      "Total source files submitted for rebuild",
		}),
		Located: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pydep",
			Subsystem: "builder",
			Name:      "located_sources_total",
			Help:      "Total candidate sources located for unresolved modules",
		}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pydep",
			Subsystem: "builder",
			Name:      "run_duration_seconds",
			Help:      "Duration of dependency-building runs",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"status"}),
	}
}
