package loggen

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinytelemetry/logops/internal/detector"
	"github.com/tinytelemetry/logops/internal/model"
	"github.com/tinytelemetry/logops/internal/timestamp"
)

var fixedNow = time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

func newGen(seed int64) *Generator {
	return New(Config{Seed: seed, Now: func() time.Time { return fixedNow }})
}

func TestSeedIsReproducible(t *testing.T) {
	a := newGen(7).Batch(50)
	b := newGen(7).Batch(50)
	assert.Equal(t, a, b)

	c := newGen(8).Batch(50)
	assert.NotEqual(t, a, c)
}

func TestEntriesAreWellFormed(t *testing.T) {
	for _, rec := range newGen(1).Batch(500) {
		assert.Contains(t, DefaultServices, rec.Service)
		assert.Contains(t, model.Severities, rec.Severity)
		assert.NotContains(t, rec.Message, "{", rec.Message)
		assert.Equal(t, timestamp.Format(fixedNow), rec.Timestamp)
		assert.True(t, strings.HasPrefix(rec.RequestID, "req_"))
		assert.Len(t, strings.Split(rec.SourceIP, "."), 4)
		assert.Contains(t, rec.Metadata, "environment")
	}
}

func TestSeverityFollowsWeights(t *testing.T) {
	counts := map[string]int{}
	const n = 20000
	for _, rec := range newGen(42).Batch(n) {
		counts[rec.Severity]++
	}
	for severity, want := range model.DefaultSeverityWeights() {
		assert.InDelta(t, want, float64(counts[severity])/n, 0.02, severity)
	}
}

func TestCustomWeightsAndServices(t *testing.T) {
	g := New(Config{
		Seed:     3,
		Services: []string{"billing"},
		Weights:  map[string]float64{model.SeverityError: 1},
	})
	for _, rec := range g.Batch(20) {
		assert.Equal(t, "billing", rec.Service)
		assert.Equal(t, model.SeverityError, rec.Severity)
		assert.True(t, strings.HasPrefix(rec.Message, "Billing "), rec.Message)
		assert.Contains(t, rec.Metadata, "error_code")
	}
}

func TestBurst(t *testing.T) {
	burst := newGen(5).Burst(40, "database")
	require.Len(t, burst, 40)
	var critical int
	for _, rec := range burst {
		assert.Equal(t, "database", rec.Service)
		assert.Contains(t, []string{model.SeverityError, model.SeverityCritical}, rec.Severity)
		if rec.Severity == model.SeverityCritical {
			critical++
		}
	}
	assert.Greater(t, critical, 0)
	assert.Less(t, critical, 40)
}

func TestSpread(t *testing.T) {
	recs := newGen(9).Spread(6, time.Hour)
	require.Len(t, recs, 6)
	assert.Equal(t, timestamp.Format(fixedNow), recs[5].Timestamp)
	assert.Equal(t, timestamp.Format(fixedNow.Add(-50*time.Minute)), recs[0].Timestamp)
	assert.Empty(t, newGen(9).Spread(0, time.Hour))
}

func TestBurstTriggersErrorRateDetection(t *testing.T) {
	g := New(Config{
		Seed:    11,
		Weights: map[string]float64{model.SeverityInfo: 1},
		Now:     func() time.Time { return fixedNow },
	})
	batch := append(g.Batch(30), g.Burst(30, "database")...)

	engine, err := detector.NewEngine(detector.DefaultConfig(), detector.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)

	var types []model.AnomalyType
	for _, a := range engine.DetectAnomalies(batch) {
		types = append(types, a.Type)
	}
	assert.Contains(t, types, model.AnomalyHighErrorRate)
}
