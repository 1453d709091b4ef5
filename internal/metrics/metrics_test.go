package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sebastian-mora/sshtoken/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterValue returns the value of the series of family name carrying label value.
func counterValue(t *testing.T, reg *prometheus.Registry, name, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func histogramCount(t *testing.T, reg *prometheus.Registry, name string) uint64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) == 1 {
			return mf.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	return 0
}

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New()

	require.NoError(t, m.Register(reg))
	require.NoError(t, m.Register(reg))
}

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New()
	require.NoError(t, m.Register(reg))

	m.ObserveIssue(metrics.ResultSuccess, 250*time.Millisecond)
	m.ObserveIssue(metrics.ResultFailure, time.Second)
	m.ObserveDecision("ok")
	m.ObserveDecision("expired")
	m.ObserveDecision("expired")

	assert.Equal(t, 1.0, counterValue(t, reg, "sshtoken_certificates_issued_total", metrics.ResultSuccess))
	assert.Equal(t, 1.0, counterValue(t, reg, "sshtoken_certificates_issued_total", metrics.ResultFailure))
	assert.Equal(t, 2.0, counterValue(t, reg, "sshtoken_authorization_decisions_total", "expired"))
	assert.Equal(t, 1.0, counterValue(t, reg, "sshtoken_authorization_decisions_total", "ok"))
	assert.Equal(t, uint64(2), histogramCount(t, reg, "sshtoken_keygen_duration_seconds"))
}

func TestNilMetrics(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.ObserveIssue(metrics.ResultSuccess, time.Second)
		m.ObserveDecision("ok")
	})
}
