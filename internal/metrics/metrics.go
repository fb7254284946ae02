// Package metrics exposes session lifecycle counters to Prometheus.
package metrics

import (
	"context"
	"sync"

	"github.com/aperturerobotics/go-jsdos/session"
	"github.com/prometheus/client_golang/prometheus"
)

// Result label values of jsdos_session_runs_total.
const (
	ResultReady  = "ready"
	ResultFailed = "failed"
)

// Metrics records session lifecycle events.
type Metrics struct {
	Runs      *prometheus.CounterVec
	Stops     *prometheus.CounterVec
	StartTime prometheus.Histogram
	Running   prometheus.Gauge

	mu      sync.Mutex
	running map[string]struct{}
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsdos_session_runs_total",
				Help: "Total number of session runs by result",
			},
			[]string{"result"},
		),
		Stops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsdos_session_stops_total",
				Help: "Total number of instance teardowns",
			},
			[]string{"terminated"},
		),
		StartTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "jsdos_session_start_seconds",
				Help:    "Time from run to a ready instance",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
		Running: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "jsdos_session_running",
				Help: "Number of sessions with a running instance",
			},
		),
		running: make(map[string]struct{}),
	}
	reg.MustRegister(m.Runs, m.Stops, m.StartTime, m.Running)
	return m
}

// Hooks returns session hooks feeding the collectors.
func (m *Metrics) Hooks() session.Hooks {
	return session.Hooks{
		OnRunReady: func(_ context.Context, e *session.RunEvent) {
			m.Runs.WithLabelValues(ResultReady).Inc()
			m.StartTime.Observe(e.Duration.Seconds())

			m.mu.Lock()
			if _, ok := m.running[e.Root]; !ok {
				m.running[e.Root] = struct{}{}
				m.Running.Inc()
			}
			m.mu.Unlock()
		},
		OnRunFailed: func(_ context.Context, e *session.RunEvent) {
			m.Runs.WithLabelValues(ResultFailed).Inc()
		},
		OnStop: func(_ context.Context, e *session.StopEvent) {
			terminated := "false"
			if e.Terminated {
				terminated = "true"
			}
			m.Stops.WithLabelValues(terminated).Inc()

			m.mu.Lock()
			if _, ok := m.running[e.Root]; ok {
				delete(m.running, e.Root)
				m.Running.Dec()
			}
			m.mu.Unlock()
		},
	}
}
