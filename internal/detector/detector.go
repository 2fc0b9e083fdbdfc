// Package detector implements the multi-method log anomaly detection engine:
// volume bursts, global and per-service severity rates, and multivariate
// pattern outliers, merged and filtered by confidence.
package detector

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"github.com/tinytelemetry/logops/internal/model"
)

var log = logrus.WithField("component", "detector")

// Detector names, also used as metric labels.
const (
	NameVolume      = "volume"
	NameGlobalRate  = "global_rate"
	NameServiceRate = "service_rate"
	NamePattern     = "pattern"
)

// Detector is one detection strategy over a batch of records.
// Batches too small for the strategy yield no anomalies and no error.
type Detector interface {
	Name() string
	Detect(records []model.LogRecord) ([]model.AnomalyRecord, error)
}

// DetectorError reports a failure inside one detection strategy.
type DetectorError struct {
	Detector string
	Err      error
}

func (e *DetectorError) Error() string {
	return fmt.Sprintf("detector %s: %v", e.Detector, e.Err)
}

func (e *DetectorError) Unwrap() error {
	return e.Err
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return math.Min(v, 1)
}
