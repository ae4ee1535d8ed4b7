package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Symbol outcome labels.
const (
	StatusComputed = "computed"
	StatusSkipped  = "skipped"
	StatusFailed   = "failed"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	Symbols        *prometheus.CounterVec
	EngineDuration *prometheus.HistogramVec
	Flags          prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Symbols: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "signals",
				Name:      "symbols_total",
				Help:      "Symbols processed by outcome",
			},
			[]string{"status"},
		),
		EngineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "signals",
				Name:      "engine_duration_seconds",
				Help:      "Time spent in each signal engine per symbol",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"engine"},
		),
		Flags: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "signals",
			Name:      "flags_total",
			Help:      "Unusual activity flags raised",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Symbols, m.EngineDuration, m.Flags)
	}
	return m
}

func (m *Metrics) observeEngine(engine string, start time.Time) {
	m.EngineDuration.WithLabelValues(engine).Observe(time.Since(start).Seconds())
}
