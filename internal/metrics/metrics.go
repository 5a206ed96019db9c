package metrics

import (
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// Metrics holds the coordinator's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	peersConnected   prometheus.Gauge
	messagesReceived *prometheus.CounterVec
	messagesDropped  *prometheus.CounterVec
	sendFailures     prometheus.Counter
	autoSyncs        prometheus.Counter
	hostChanges      prometheus.Counter
	drift            prometheus.Histogram
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		peersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watchparty_peers_connected",
			Help: "Number of peer connections held by the coordinator",
		}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watchparty_messages_received_total",
			Help: "Messages received from peers, by type",
		}, []string{"type"}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watchparty_messages_dropped_total",
			Help: "Inbound messages discarded, by reason",
		}, []string{"reason"}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchparty_send_failures_total",
			Help: "Sends that failed and removed the receiving peer",
		}),
		autoSyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchparty_auto_sync_total",
			Help: "Drift corrections sent to followers",
		}),
		hostChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchparty_host_changes_total",
			Help: "Times the host designation moved to a different peer",
		}),
		drift: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "watchparty_drift_seconds",
			Help:    "Observed drift between host and follower positions",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
	}

	registry.MustRegister(
		m.peersConnected,
		m.messagesReceived,
		m.messagesDropped,
		m.sendFailures,
		m.autoSyncs,
		m.hostChanges,
		m.drift,
	)
	return m
}

func (m *Metrics) SetPeers(n int) {
	if m == nil {
		return
	}
	m.peersConnected.Set(float64(n))
}

func (m *Metrics) MessageReceived(msgType string) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(msgType).Inc()
}

func (m *Metrics) MessageDropped(reason string) {
	if m == nil {
		return
	}
	m.messagesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) SendFailed() {
	if m == nil {
		return
	}
	m.sendFailures.Inc()
}

func (m *Metrics) AutoSync() {
	if m == nil {
		return
	}
	m.autoSyncs.Inc()
}

func (m *Metrics) HostChanged() {
	if m == nil {
		return
	}
	m.hostChanges.Inc()
}

func (m *Metrics) ObserveDrift(seconds float64) {
	if m == nil {
		return
	}
	m.drift.Observe(seconds)
}

// Handler serves the registry for net/http based routers.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteText writes the registry in the Prometheus text format and returns
// the matching content type, for routers that are not net/http based.
func (m *Metrics) WriteText(w io.Writer) (string, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return "", err
	}
	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	enc := expfmt.NewEncoder(w, format)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return "", err
		}
	}
	return string(format), nil
}
