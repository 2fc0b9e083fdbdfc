package detector

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/tinytelemetry/logops/internal/iforest"
	"github.com/tinytelemetry/logops/internal/model"
)

const (
	patternMinRecords    = 50
	patternScoreScale    = 2.0
	messagePreviewLength = 100
)

// ModelState is the lifecycle of the pattern detector's outlier model.
type ModelState int32

const (
	ModelUnfitted ModelState = iota
	ModelFitting
	ModelFitted
)

func (s ModelState) String() string {
	switch s {
	case ModelUnfitted:
		return "unfitted"
	case ModelFitting:
		return "fitting"
	case ModelFitted:
		return "fitted"
	default:
		return fmt.Sprintf("ModelState(%d)", int32(s))
	}
}

// ErrModelUnavailable is returned when fitting did not produce a model.
var ErrModelUnavailable = errors.New("outlier model unavailable")

// PatternDetector scores records with an isolation forest fitted once, on the
// first batch large enough, and reused for the rest of the process lifetime.
// Features are standardized with parameters fit on every call.
type PatternDetector struct {
	params iforest.Params

	fitMu  sync.Mutex
	state  atomic.Int32
	forest atomic.Pointer[iforest.Forest]
	fits   atomic.Int64
}

// NewPatternDetector creates an unfitted pattern detector.
func NewPatternDetector(params iforest.Params) *PatternDetector {
	return &PatternDetector{params: params}
}

func (d *PatternDetector) Name() string { return NamePattern }

// State reports the model lifecycle state.
func (d *PatternDetector) State() ModelState {
	return ModelState(d.state.Load())
}

// Fitted reports whether the outlier model is ready for scoring.
func (d *PatternDetector) Fitted() bool {
	return d.State() == ModelFitted
}

// Detect emits one pattern_anomaly per record the model labels an outlier.
func (d *PatternDetector) Detect(records []model.LogRecord) ([]model.AnomalyRecord, error) {
	if len(records) < patternMinRecords {
		return nil, nil
	}

	vectors, times, err := extract(records)
	if err != nil {
		return nil, err
	}
	rows := columns(vectors)
	scaled := FitScaler(rows).Transform(rows)

	forest, err := d.model(scaled)
	if err != nil {
		return nil, err
	}
	decisions, err := forest.Decision(scaled)
	if err != nil {
		return nil, fmt.Errorf("score batch: %w", err)
	}

	var anomalies []model.AnomalyRecord
	for i, score := range decisions {
		if score >= 0 {
			continue
		}
		r := &records[i]
		anomalies = append(anomalies, model.AnomalyRecord{
			Type:            model.AnomalyPattern,
			Timestamp:       times[i],
			Severity:        model.SeverityWarning,
			Description:     fmt.Sprintf("Unusual log pattern detected in %s service", r.Service),
			ConfidenceScore: clamp01(math.Abs(score) / patternScoreScale),
			AffectedService: r.Service,
			Metadata: map[string]interface{}{
				"service":         r.Service,
				"severity":        r.Severity,
				"anomaly_score":   score,
				"message_preview": preview(r.Message, messagePreviewLength),
			},
		})
	}
	return anomalies, nil
}

// model returns the fitted forest, fitting it on scaled if no fit has
// succeeded yet. Concurrent first callers block until the single fit ends.
func (d *PatternDetector) model(scaled [][]float64) (*iforest.Forest, error) {
	if f := d.forest.Load(); f != nil {
		return f, nil
	}

	d.fitMu.Lock()
	defer d.fitMu.Unlock()
	if f := d.forest.Load(); f != nil {
		return f, nil
	}

	d.state.Store(int32(ModelFitting))
	f, err := iforest.Fit(scaled, d.params)
	if err != nil {
		d.state.Store(int32(ModelUnfitted))
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	d.fits.Add(1)
	d.forest.Store(f)
	d.state.Store(int32(ModelFitted))
	log.WithField("samples", len(scaled)).Info("pattern model fitted")
	return f, nil
}

func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
