// Package metrics holds the Prometheus collectors of the diagnosis pipeline.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DiagnosisMetrics is safe to use through a nil pointer; every recorder is a
// no-op in that case so components can be built without a registry.
type DiagnosisMetrics struct {
	PhotosProcessed      *prometheus.CounterVec   // outcome: success, fail, skipped
	AnalysisDuration     *prometheus.HistogramVec // outcome: success, remote, malformed, timeout
	DiagnosesFinalized   *prometheus.CounterVec   // verdict: infected, healthy, duplicate
	StorageEvents        *prometheus.CounterVec   // result: accepted, duplicate, invalid, unknown
	InFlightDiagnoses    prometheus.Gauge
	NotificationFailures prometheus.Counter
}

// NewDiagnosisMetrics creates and registers the collectors on reg.
func NewDiagnosisMetrics(reg prometheus.Registerer) (*DiagnosisMetrics, error) {
	m := &DiagnosisMetrics{
		PhotosProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diagnosis_photos_processed_total",
				Help: "Photos processed by the analysis worker, by outcome",
			},
			[]string{"outcome"},
		),
		AnalysisDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "diagnosis_analysis_call_duration_seconds",
				Help:    "Latency of remote analysis calls, by outcome",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"outcome"},
		),
		DiagnosesFinalized: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diagnosis_finalized_total",
				Help: "Finalization attempts, by verdict",
			},
			[]string{"verdict"},
		),
		StorageEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diagnosis_storage_events_total",
				Help: "Object storage notifications received, by result",
			},
			[]string{"result"},
		),
		InFlightDiagnoses: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "diagnosis_orchestrations_in_flight",
			Help: "Diagnosis runs currently dispatched and not yet finalized",
		}),
		NotificationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "diagnosis_notification_failures_total",
			Help: "Diagnosis complete notifications that could not be delivered",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.PhotosProcessed,
		m.AnalysisDuration,
		m.DiagnosesFinalized,
		m.StorageEvents,
		m.InFlightDiagnoses,
		m.NotificationFailures,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register diagnosis metrics: %w", err)
		}
	}
	return m, nil
}

func (m *DiagnosisMetrics) PhotoProcessed(outcome string) {
	if m == nil {
		return
	}
	m.PhotosProcessed.WithLabelValues(outcome).Inc()
}

func (m *DiagnosisMetrics) ObserveAnalysis(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.AnalysisDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *DiagnosisMetrics) Finalized(verdict string) {
	if m == nil {
		return
	}
	m.DiagnosesFinalized.WithLabelValues(verdict).Inc()
}

func (m *DiagnosisMetrics) StorageEvent(result string) {
	if m == nil {
		return
	}
	m.StorageEvents.WithLabelValues(result).Inc()
}

func (m *DiagnosisMetrics) RunStarted() {
	if m == nil {
		return
	}
	m.InFlightDiagnoses.Inc()
}

func (m *DiagnosisMetrics) RunDone() {
	if m == nil {
		return
	}
	m.InFlightDiagnoses.Dec()
}

func (m *DiagnosisMetrics) NotificationFailed() {
	if m == nil {
		return
	}
	m.NotificationFailures.Inc()
}
