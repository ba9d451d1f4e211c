package session

import "github.com/prometheus/client_golang/prometheus"

var (
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "llmd",
			Subsystem: "session",
			Name:      "active",
			Help:      "Chat sessions currently held",
		},
	)

	releasedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llmd",
			Subsystem: "session",
			Name:      "released_total",
			Help:      "Chat sessions released, by reason",
		},
		[]string{"reason"},
	)

	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "llmd",
			Subsystem: "session",
			Name:      "generation_duration_seconds",
			Help:      "Time spent generating one reply",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(activeSessions, releasedTotal, generationDuration)
}
