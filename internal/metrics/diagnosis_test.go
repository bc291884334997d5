package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnosisMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewDiagnosisMetrics(reg)
	require.NoError(t, err)

	m.PhotoProcessed("success")
	m.PhotoProcessed("success")
	m.PhotoProcessed("fail")
	m.Finalized("infected")
	m.RunStarted()
	m.RunStarted()
	m.RunDone()
	m.ObserveAnalysis("success", 2*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PhotosProcessed.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PhotosProcessed.WithLabelValues("fail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DiagnosesFinalized.WithLabelValues("infected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InFlightDiagnoses))

	t.Run("double registration fails", func(t *testing.T) {
		_, err := NewDiagnosisMetrics(reg)
		assert.Error(t, err)
	})
}

func TestDiagnosisMetrics_NilSafe(t *testing.T) {
	var m *DiagnosisMetrics
	assert.NotPanics(t, func() {
		m.PhotoProcessed("success")
		m.ObserveAnalysis("timeout", time.Second)
		m.Finalized("healthy")
		m.StorageEvent("invalid")
		m.RunStarted()
		m.RunDone()
		m.NotificationFailed()
	})
}
