package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the prometheus instruments for the scan flows.
type Metrics struct {
	registry *prometheus.Registry

	ScansTotal    *prometheus.CounterVec
	SessionsTotal *prometheus.CounterVec
}

// New registers all collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ScansTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "kitpack_scans_total",
			Help: "Barcode scans by mode and result.",
		}, []string{"mode", "result"}),
		SessionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "kitpack_sessions_total",
			Help: "Packing session lifecycle events.",
		}, []string{"event"}),
	}
	return m
}

// Handler exposes the registry for GET /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ScanAccepted(mode string) { m.ScansTotal.WithLabelValues(mode, "accepted").Inc() }

func (m *Metrics) ScanRejected(mode string) { m.ScansTotal.WithLabelValues(mode, "rejected").Inc() }

func (m *Metrics) SessionEvent(event string) { m.SessionsTotal.WithLabelValues(event).Inc() }
