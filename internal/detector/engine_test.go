package detector

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinytelemetry/logops/internal/model"
)

type stubDetector struct {
	name      string
	anomalies []model.AnomalyRecord
	err       error
	panicWith interface{}
	delay     time.Duration
	calls     atomic.Int32
}

func (s *stubDetector) Name() string { return s.name }

func (s *stubDetector) Detect([]model.LogRecord) ([]model.AnomalyRecord, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	return s.anomalies, s.err
}

func anomaly(description string, confidence float64) model.AnomalyRecord {
	return model.AnomalyRecord{
		Type:            model.AnomalyPattern,
		Description:     description,
		ConfidenceScore: confidence,
	}
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig(), append([]Option{WithClock(clock)}, opts...)...)
	require.NoError(t, err)
	return e
}

func TestEngineEmptyBatchRunsNothing(t *testing.T) {
	stub := &stubDetector{name: "stub", anomalies: []model.AnomalyRecord{anomaly("x", 1)}}
	e := newTestEngine(t, WithDetectors(stub))

	assert.Empty(t, e.DetectAnomalies(nil))
	assert.Empty(t, e.Run([]model.LogRecord{}).Results)
	assert.Zero(t, stub.calls.Load())
}

func TestEngineMergesInDetectorOrder(t *testing.T) {
	first := &stubDetector{name: "first", delay: 30 * time.Millisecond, anomalies: []model.AnomalyRecord{anomaly("a", 0.9), anomaly("b", 0.95)}}
	second := &stubDetector{name: "second", delay: 10 * time.Millisecond, anomalies: []model.AnomalyRecord{anomaly("c", 0.99)}}
	third := &stubDetector{name: "third", anomalies: []model.AnomalyRecord{anomaly("d", 1)}}
	e := newTestEngine(t, WithDetectors(first, second, third))

	got := e.DetectAnomalies(uniform(1, "api"))
	require.Len(t, got, 4)
	for i, want := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, want, got[i].Description)
	}
}

func TestEngineIsolatesFailures(t *testing.T) {
	failing := &stubDetector{name: "failing", err: errors.New("boom")}
	panicking := &stubDetector{name: "panicking", panicWith: "index out of range"}
	healthy := &stubDetector{name: "healthy", anomalies: []model.AnomalyRecord{anomaly("ok", 0.85)}}
	e := newTestEngine(t, WithDetectors(failing, panicking, healthy))

	report := e.Run(uniform(5, "api"))
	require.Len(t, report.Results, 3)
	require.Len(t, report.Anomalies, 1)
	assert.Equal(t, "ok", report.Anomalies[0].Description)

	failed := report.Failed()
	require.Len(t, failed, 2)
	var detErr *DetectorError
	require.ErrorAs(t, failed[0].Err, &detErr)
	assert.Equal(t, "failing", detErr.Detector)
	assert.EqualError(t, detErr.Unwrap(), "boom")
	require.ErrorAs(t, failed[1].Err, &detErr)
	assert.Equal(t, "panicking", detErr.Detector)
	assert.Contains(t, detErr.Error(), "index out of range")
}

func TestEngineAppliesThreshold(t *testing.T) {
	stub := &stubDetector{name: "stub", anomalies: []model.AnomalyRecord{
		anomaly("low", 0.79), anomaly("edge", 0.8), anomaly("high", 0.95),
	}}
	e := newTestEngine(t, WithDetectors(stub))

	got := e.DetectAnomalies(uniform(1, "api"))
	require.Len(t, got, 2)
	assert.Equal(t, "edge", got[0].Description)
	assert.Equal(t, "high", got[1].Description)
}

func TestFilterByConfidenceIsMonotone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfidenceThreshold = 0
	e, err := NewEngine(cfg, WithClock(clock))
	require.NoError(t, err)

	batch := mixedBatch(200)
	batch = withSeverity(batch, model.SeverityError, 60)
	all := e.DetectAnomalies(batch)
	require.NotEmpty(t, all)

	prev := len(all) + 1
	for threshold := 0.0; threshold <= 1.0001; threshold += 0.05 {
		n := len(FilterByConfidence(all, threshold))
		assert.LessOrEqual(t, n, prev, "threshold %.2f", threshold)
		prev = n
	}
}

func TestEngineDetectsErrorBurst(t *testing.T) {
	e := newTestEngine(t)
	batch := withSeverity(uniform(20, "api"), model.SeverityError, 6)

	got := e.DetectAnomalies(batch)
	require.Equal(t, 1, countType(got, model.AnomalyHighErrorRate))
	for _, a := range got {
		if a.Type == model.AnomalyHighErrorRate {
			assert.Equal(t, fixedNow, a.Timestamp)
		}
	}
	assert.False(t, e.ModelFitted(), "pattern model needs fifty records")
}

func TestEngineFitsPatternModel(t *testing.T) {
	e := newTestEngine(t)
	assert.Equal(t, ModelUnfitted, e.ModelState())

	report := e.Run(mixedBatch(100))
	assert.Empty(t, report.Failed())
	assert.True(t, e.ModelFitted())
	assert.Equal(t, ModelFitted, e.ModelState())

	names := make([]string, 0, len(report.Results))
	for _, r := range report.Results {
		names = append(names, r.Detector)
	}
	assert.Equal(t, []string{NameVolume, NameGlobalRate, NameServiceRate, NamePattern}, names)
}

func TestEngineMalformedTimestampDegrades(t *testing.T) {
	e := newTestEngine(t)
	batch := withSeverity(mixedBatch(60), model.SeverityError, 20)
	batch[3].Timestamp = "garbage"

	report := e.Run(batch)
	assert.Len(t, report.Failed(), 2, "volume and pattern need timestamps")
	assert.Equal(t, 1, countType(report.Anomalies, model.AnomalyHighErrorRate))
}

func TestEngineBaseline(t *testing.T) {
	e := newTestEngine(t)
	assert.Empty(t, e.SeverityDistribution())

	e.UpdateBaseline(withSeverity(uniform(100, "api"), model.SeverityError, 25))
	assert.Equal(t, 100, e.BaselineSize())
	dist := e.SeverityDistribution()
	assert.InDelta(t, 0.75, dist[model.SeverityInfo], 1e-9)
	assert.InDelta(t, 0.25, dist[model.SeverityError], 1e-9)
}

func TestNewEngineRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfidenceThreshold = 1.5
	_, err := NewEngine(cfg)
	assert.Error(t, err)
}
