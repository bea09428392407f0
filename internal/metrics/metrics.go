// Package metrics holds the daemon's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/julianstephens/streakline/internal/constants"
)

// Sync collects sync coordinator metrics. A nil *Sync is valid and records nothing.
type Sync struct {
	reg *prometheus.Registry

	Cycles        *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	HabitFailures *prometheus.CounterVec
	Reconciled    *prometheus.CounterVec
	LastSync      prometheus.Gauge
	Intents       *prometheus.CounterVec
}

// NewSync registers the collectors on a fresh registry, so tests and
// multiple coordinators in one process do not collide.
func NewSync() *Sync {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Sync{
		reg: reg,
		Cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: constants.AppName,
			Subsystem: "sync",
			Name:      "cycles_total",
			Help:      "Sync cycles by final state.",
		}, []string{"state"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: constants.AppName,
			Subsystem: "sync",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one sync cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		HabitFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: constants.AppName,
			Subsystem: "sync",
			Name:      "habit_failures_total",
			Help:      "Per-habit source fetch or reconcile failures.",
		}, []string{"habit"}),
		Reconciled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: constants.AppName,
			Subsystem: "sync",
			Name:      "reconciled_total",
			Help:      "Reconciled entries by action.",
		}, []string{"action"}),
		LastSync: f.NewGauge(prometheus.GaugeOpts{
			Namespace: constants.AppName,
			Subsystem: "sync",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last completed sync cycle.",
		}),
		Intents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: constants.AppName,
			Subsystem: "control",
			Name:      "intents_total",
			Help:      "Intents received over the control API by action and result.",
		}, []string{"action", "result"}),
	}
}

func (m *Sync) ObserveCycle(state string, d time.Duration, at time.Time) {
	if m == nil {
		return
	}
	m.Cycles.WithLabelValues(state).Inc()
	m.CycleDuration.Observe(d.Seconds())
	if state == "completed" {
		m.LastSync.Set(float64(at.Unix()))
	}
}

func (m *Sync) HabitFailed(habit string) {
	if m == nil {
		return
	}
	m.HabitFailures.WithLabelValues(habit).Inc()
}

func (m *Sync) ReconcileAction(action string) {
	if m == nil {
		return
	}
	m.Reconciled.WithLabelValues(action).Inc()
}

func (m *Sync) Intent(action string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Intents.WithLabelValues(action, result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Sync) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Sync) Registry() *prometheus.Registry {
	return m.reg
}
