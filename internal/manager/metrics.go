package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	loadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llmd",
			Subsystem: "manager",
			Name:      "loads_total",
			Help:      "Total number of successful model loads",
		},
		[]string{"category"},
	)

	loadFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llmd",
			Subsystem: "manager",
			Name:      "load_failures_total",
			Help:      "Total number of failed model loads",
		},
		[]string{"category"},
	)

	evictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llmd",
			Subsystem: "manager",
			Name:      "evictions_total",
			Help:      "Total number of models evicted by the idle sweep",
		},
		[]string{"category"},
	)

	loadedModels = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "llmd",
			Subsystem: "manager",
			Name:      "loaded_models",
			Help:      "Models currently held by the cache",
		},
		[]string{"category"},
	)

	loadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "llmd",
			Subsystem: "manager",
			Name:      "load_duration_seconds",
			Help:      "Time spent loading a model",
			Buckets:   []float64{0.05, 0.25, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"category"},
	)
)

func init() {
	prometheus.MustRegister(loadsTotal, loadFailuresTotal, evictionsTotal, loadedModels, loadDuration)
}
