// Package metrics defines the prometheus collectors exported on /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "sportsreg"

// Metrics groups the bot's collectors.
type Metrics struct {
	Registry *prometheus.Registry

	SessionsStarted     prometheus.Counter
	Registrations       prometheus.Counter
	PersistFailures     prometheus.Counter
	Inputs              *prometheus.CounterVec
	ActiveSessions      prometheus.Gauge
	StoredRegistrations prometheus.Gauge
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Number of /start commands handled.",
		}),
		Registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Number of registrations persisted by this process.",
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Number of registrations that could not be saved after retries.",
		}),
		Inputs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inputs_total",
			Help:      "User inputs by kind and outcome.",
		}, []string{"kind", "outcome"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions in progress at the last stats run.",
		}),
		StoredRegistrations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stored_registrations",
			Help:      "Rows in the registrations table at the last stats run.",
		}),
	}
	m.Registry.MustRegister(
		m.SessionsStarted,
		m.Registrations,
		m.PersistFailures,
		m.Inputs,
		m.ActiveSessions,
		m.StoredRegistrations,
	)
	return m
}
