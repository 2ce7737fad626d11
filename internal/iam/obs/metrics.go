// Package obs holds the Prometheus instrumentation for the identity service.
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the service-level counters. A nil *Metrics is valid and every
// method on it is a no-op, so wiring metrics stays optional in tests.
type Metrics struct {
	logins     *prometheus.CounterVec
	tokens     *prometheus.CounterVec
	lockouts   prometheus.Counter
	revoked    prometheus.Counter
	httpInFly  prometheus.Gauge
	httpTotals *prometheus.CounterVec
}

// NewMetrics registers the identity counters on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iam",
			Name:      "logins_total",
			Help:      "Login attempts by result (success, failure, locked).",
		}, []string{"result"}),
		tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iam",
			Name:      "tokens_issued_total",
			Help:      "Token pairs issued by grant type.",
		}, []string{"grant"}),
		lockouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "iam",
			Name:      "lockouts_total",
			Help:      "Accounts locked after repeated login failures.",
		}),
		revoked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "iam",
			Name:      "tokens_revoked_total",
			Help:      "Tokens added to the denylist.",
		}),
		httpInFly: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "iam",
			Name:      "http_requests_in_flight",
			Help:      "Requests currently being served.",
		}),
		httpTotals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iam",
			Name:      "http_requests_total",
			Help:      "Requests served by status class.",
		}, []string{"code"}),
	}
}

func (m *Metrics) LoginResult(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Metrics) TokenIssued(grant string) {
	if m == nil {
		return
	}
	m.tokens.WithLabelValues(grant).Inc()
}

func (m *Metrics) Lockout() {
	if m == nil {
		return
	}
	m.lockouts.Inc()
}

func (m *Metrics) TokenRevoked() {
	if m == nil {
		return
	}
	m.revoked.Inc()
}
