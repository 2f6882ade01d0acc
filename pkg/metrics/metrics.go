// Package metrics provides Prometheus metrics for grading.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the grading collectors. Each instance registers on its own
// registerer so tests and embedders do not collide on the default registry.
type Metrics struct {
	ComparisonsTotal   *prometheus.CounterVec
	ComparisonDuration *prometheus.HistogramVec
	QueueDepth         prometheus.Gauge
	TimeoutsTotal      prometheus.Counter
	RejectionsTotal    prometheus.Counter
	Scores             *prometheus.HistogramVec
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ComparisonsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cadgrade_comparisons_total",
				Help: "Total number of comparisons by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		ComparisonDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cadgrade_comparison_duration_seconds",
				Help:    "Time taken to load and compare a submission",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"mode"},
		),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "cadgrade_queue_depth",
			Help: "Number of jobs waiting for a worker",
		}),
		TimeoutsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "cadgrade_timeouts_total",
			Help: "Total number of jobs that exceeded their timeout",
		}),
		RejectionsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "cadgrade_rejections_total",
			Help: "Total number of jobs rejected because the queue was full",
		}),
		Scores: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cadgrade_scores",
				Help:    "Distribution of global scores",
				Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
			},
			[]string{"mode"},
		),
	}
}

// NewNop returns collectors registered on a throwaway registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// ObserveComparison records one finished comparison.
func (m *Metrics) ObserveComparison(mode, outcome string, d time.Duration, score float64, scored bool) {
	m.ComparisonsTotal.WithLabelValues(mode, outcome).Inc()
	m.ComparisonDuration.WithLabelValues(mode).Observe(d.Seconds())
	if scored {
		m.Scores.WithLabelValues(mode).Observe(score)
	}
}
