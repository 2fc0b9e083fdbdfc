// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels detector runs that returned normally.
	OutcomeSuccess = "success"
	// OutcomeError labels detector runs that failed or panicked.
	OutcomeError = "error"
)

const namespace = "logops"

var (
	detectorRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detector_runs_total",
			Help:      "Detector invocations, partitioned by detector and outcome.",
		},
		[]string{"detector", "outcome"},
	)

	detectorDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detector_duration_seconds",
			Help:      "Detector latency in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"detector"},
	)

	anomaliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_total",
			Help:      "Anomalies reported after confidence filtering, by type.",
		},
		[]string{"type"},
	)

	baselineRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "baseline_records",
			Help:      "Records retained in the severity baseline.",
		},
	)

	modelFitted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pattern_model_fitted",
			Help:      "1 once the pattern outlier model has been fitted.",
		},
	)

	ingestedRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_records_total",
			Help:      "Log records accepted, by ingestion source.",
		},
		[]string{"source"},
	)

	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alert notifications, by kind and result.",
		},
		[]string{"kind", "result"},
	)
)

// Register attaches logops collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		detectorRunsTotal,
		detectorDurationSeconds,
		anomaliesTotal,
		baselineRecords,
		modelFitted,
		ingestedRecordsTotal,
		alertsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveDetector records one detector run.
func ObserveDetector(detector string, duration time.Duration, failed bool) {
	outcome := OutcomeSuccess
	if failed {
		outcome = OutcomeError
	}
	detectorRunsTotal.WithLabelValues(detector, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	detectorDurationSeconds.WithLabelValues(detector).Observe(duration.Seconds())
}

// ObserveAnomaly counts one reported anomaly.
func ObserveAnomaly(anomalyType string) {
	anomaliesTotal.WithLabelValues(anomalyType).Inc()
}

// SetBaselineRecords publishes the baseline history size.
func SetBaselineRecords(n int) {
	baselineRecords.Set(float64(n))
}

// SetModelFitted publishes the pattern model state.
func SetModelFitted(fitted bool) {
	v := 0.0
	if fitted {
		v = 1
	}
	modelFitted.Set(v)
}

// AddIngested counts records accepted from source.
func AddIngested(source string, n int) {
	if n <= 0 {
		return
	}
	ingestedRecordsTotal.WithLabelValues(source).Add(float64(n))
}

// ObserveAlert counts one alert attempt.
func ObserveAlert(kind, result string) {
	alertsTotal.WithLabelValues(kind, result).Inc()
}
