// Package metrics holds the Prometheus collectors for certificate issuance and
// authorization decisions.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sshtoken"

// Issue results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics is safe to use as a nil pointer, in which case nothing is recorded.
type Metrics struct {
	CertificatesIssued     *prometheus.CounterVec
	AuthorizationDecisions *prometheus.CounterVec
	KeygenDuration         prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		CertificatesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "certificates_issued_total",
			Help:      "Certificate issuance attempts by result",
		}, []string{"result"}),
		AuthorizationDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorization_decisions_total",
			Help:      "Certificate authorization decisions by reason",
		}, []string{"reason"}),
		KeygenDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "keygen_duration_seconds",
			Help:      "Time spent generating and signing a keypair",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
	}
}

// Register adds the collectors to reg, the default registerer when nil.
// Collectors that are already registered are ignored.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{m.CertificatesIssued, m.AuthorizationDecisions, m.KeygenDuration} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

// ObserveIssue records a finished issuance.
func (m *Metrics) ObserveIssue(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CertificatesIssued.WithLabelValues(result).Inc()
	m.KeygenDuration.Observe(elapsed.Seconds())
}

// ObserveDecision records an authorization decision by its reason.
func (m *Metrics) ObserveDecision(reason string) {
	if m == nil {
		return
	}
	m.AuthorizationDecisions.WithLabelValues(reason).Inc()
}
