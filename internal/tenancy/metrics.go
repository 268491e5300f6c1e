package tenancy

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts resolution outcomes. A nil *Metrics is valid and records nothing.
type Metrics struct {
	resolutions *prometheus.CounterVec
	failures    *prometheus.CounterVec
	incidents   *prometheus.CounterVec
	rebuilds    *prometheus.CounterVec
}

// NewMetrics creates and registers the tenancy collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	const namespace = "tenancy"

	m := &Metrics{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Number of successful tenant resolutions by source",
		}, []string{"source"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolution_failures_total",
			Help:      "Number of failed tenant resolutions by reason",
		}, []string{"reason"}),
		incidents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_total",
			Help:      "Number of tenant incidents raised by type",
		}, []string{"type"}),
		rebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "domain_cache_rebuilds_total",
			Help:      "Number of domain cache rebuilds by result",
		}, []string{"result"}),
	}
	reg.MustRegister(m.resolutions, m.failures, m.incidents, m.rebuilds)
	return m
}

func (m *Metrics) resolved(src Source) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(string(src)).Inc()
}

func (m *Metrics) failed(err error) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(failureReason(err)).Inc()
}

func (m *Metrics) incident(typ string) {
	if m == nil {
		return
	}
	m.incidents.WithLabelValues(typ).Inc()
}

// CacheRebuilt records a domain cache rebuild.
func (m *Metrics) CacheRebuilt(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.rebuilds.WithLabelValues(result).Inc()
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrTenantInactive):
		return "inactive"
	case errors.Is(err, ErrGuardDenied):
		return "guard_denied"
	default:
		return "not_found"
	}
}
