package detector

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tinytelemetry/logops/internal/metrics"
	"github.com/tinytelemetry/logops/internal/model"
	"golang.org/x/sync/errgroup"
)

// Result is one detector's contribution to a detection pass.
type Result struct {
	Detector  string
	Anomalies []model.AnomalyRecord
	Err       error
	Duration  time.Duration
}

// Report is the outcome of a detection pass. Results are in detector order;
// Anomalies holds the concatenated contributions that met the threshold.
type Report struct {
	Results   []Result
	Anomalies []model.AnomalyRecord
}

// Failed returns the results whose detector failed.
func (r Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock sets the clock used to timestamp rate anomalies.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithDetectors replaces the detector set. Mostly useful in tests.
func WithDetectors(detectors ...Detector) Option {
	return func(e *Engine) {
		e.detectors = detectors
	}
}

// Engine runs all detectors over a batch and maintains the severity baseline.
// It is safe for concurrent use.
type Engine struct {
	cfg       Config
	now       func() time.Time
	pattern   *PatternDetector
	detectors []Detector
	baseline  *Tracker
}

// NewEngine builds an engine from cfg.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detector config: %w", err)
	}

	e := &Engine{
		cfg:      cfg,
		now:      time.Now,
		pattern:  NewPatternDetector(cfg.Forest),
		baseline: NewTracker(cfg.BaselineCapacity, cfg.BaselineMinHistory),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.detectors == nil {
		e.detectors = []Detector{
			NewVolumeDetector(cfg.VolumeWindowMinutes),
			NewGlobalRateDetector(cfg, e.now),
			NewServiceRateDetector(e.now),
			e.pattern,
		}
	}
	return e, nil
}

// Config returns the engine settings.
func (e *Engine) Config() Config { return e.cfg }

// DetectAnomalies returns every anomaly with confidence at or above the
// configured threshold. An empty batch returns nil without running detectors.
func (e *Engine) DetectAnomalies(records []model.LogRecord) []model.AnomalyRecord {
	return e.Run(records).Anomalies
}

// Run executes all detectors concurrently and merges their output in
// detector order. A failing detector contributes nothing.
func (e *Engine) Run(records []model.LogRecord) Report {
	if len(records) == 0 {
		return Report{}
	}

	results := make([]Result, len(e.detectors))
	var g errgroup.Group
	for i, d := range e.detectors {
		g.Go(func() error {
			results[i] = runDetector(d, records)
			return nil
		})
	}
	_ = g.Wait()

	var merged []model.AnomalyRecord
	for _, res := range results {
		if res.Err != nil {
			log.WithFields(logrus.Fields{
				"detector": res.Detector,
				"records":  len(records),
			}).WithError(res.Err).Warn("detector failed")
			continue
		}
		merged = append(merged, res.Anomalies...)
	}

	kept := FilterByConfidence(merged, e.cfg.ConfidenceThreshold)
	for _, a := range kept {
		metrics.ObserveAnomaly(string(a.Type))
	}
	metrics.SetModelFitted(e.pattern.Fitted())
	return Report{Results: results, Anomalies: kept}
}

func runDetector(d Detector, records []model.LogRecord) (res Result) {
	res.Detector = d.Name()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Anomalies = nil
			res.Err = &DetectorError{Detector: res.Detector, Err: fmt.Errorf("panic: %v", r)}
		}
		res.Duration = time.Since(start)
		metrics.ObserveDetector(res.Detector, res.Duration, res.Err != nil)
	}()

	anomalies, err := d.Detect(records)
	if err != nil {
		return Result{Detector: res.Detector, Err: &DetectorError{Detector: res.Detector, Err: err}}
	}
	res.Anomalies = anomalies
	return res
}

// FilterByConfidence keeps anomalies whose confidence is at least threshold.
func FilterByConfidence(anomalies []model.AnomalyRecord, threshold float64) []model.AnomalyRecord {
	var kept []model.AnomalyRecord
	for _, a := range anomalies {
		if a.ConfidenceScore >= threshold {
			kept = append(kept, a)
		}
	}
	return kept
}

// UpdateBaseline folds records into the severity baseline. It never fails.
func (e *Engine) UpdateBaseline(records []model.LogRecord) {
	e.baseline.Update(records)
	metrics.SetBaselineRecords(e.baseline.Len())
}

// SeverityDistribution returns a snapshot of the baseline distribution.
func (e *Engine) SeverityDistribution() map[string]float64 {
	return e.baseline.Distribution()
}

// BaselineSize is the number of records in the baseline history.
func (e *Engine) BaselineSize() int {
	return e.baseline.Len()
}

// ModelState reports the pattern model lifecycle state.
func (e *Engine) ModelState() ModelState {
	return e.pattern.State()
}

// ModelFitted reports whether the pattern model has been fitted.
func (e *Engine) ModelFitted() bool {
	return e.pattern.Fitted()
}
