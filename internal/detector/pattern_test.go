package detector

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinytelemetry/logops/internal/iforest"
	"github.com/tinytelemetry/logops/internal/model"
	"github.com/tinytelemetry/logops/internal/timestamp"
)

func flaggedMessages(anomalies []model.AnomalyRecord) []string {
	out := make([]string, 0, len(anomalies))
	for _, a := range anomalies {
		out = append(out, a.Metadata["message_preview"].(string))
	}
	return out
}

func TestPatternSmallBatchIsSilent(t *testing.T) {
	d := NewPatternDetector(iforest.DefaultParams())
	anomalies, err := d.Detect(mixedBatch(49))
	require.NoError(t, err)
	assert.Empty(t, anomalies)
	assert.Equal(t, ModelUnfitted, d.State())
	assert.False(t, d.Fitted())
}

func TestPatternFlagsOutliers(t *testing.T) {
	batch := mixedBatch(200)
	d := NewPatternDetector(iforest.DefaultParams())

	anomalies, err := d.Detect(batch)
	require.NoError(t, err)
	require.NotEmpty(t, anomalies)
	assert.LessOrEqual(t, len(anomalies), len(batch)/5)
	assert.Equal(t, ModelFitted, d.State())

	byMessage := make(map[string]model.LogRecord, len(batch))
	for _, r := range batch {
		byMessage[preview(r.Message, messagePreviewLength)] = r
	}
	for _, a := range anomalies {
		assert.Equal(t, model.AnomalyPattern, a.Type)
		assert.Equal(t, model.SeverityWarning, a.Severity)
		assert.GreaterOrEqual(t, a.ConfidenceScore, 0.0)
		assert.LessOrEqual(t, a.ConfidenceScore, 1.0)
		assert.Less(t, a.Metadata["anomaly_score"].(float64), 0.0)

		src, ok := byMessage[a.Metadata["message_preview"].(string)]
		require.True(t, ok)
		assert.Equal(t, src.Service, a.AffectedService)
		assert.Equal(t, src.Severity, a.Metadata["severity"])
		want, err := timestamp.Parse(src.Timestamp)
		require.NoError(t, err)
		assert.Equal(t, want, a.Timestamp)
	}
	assert.Contains(t, flaggedMessages(anomalies), preview(batch[61].Message, messagePreviewLength))
}

func TestPatternWarmModelIsStable(t *testing.T) {
	batch := mixedBatch(150)
	d := NewPatternDetector(iforest.DefaultParams())

	first, err := d.Detect(batch)
	require.NoError(t, err)
	second, err := d.Detect(batch)
	require.NoError(t, err)

	assert.Equal(t, flaggedMessages(first), flaggedMessages(second))
	assert.Equal(t, int64(1), d.fits.Load())
}

func TestPatternFitsOnceUnderConcurrency(t *testing.T) {
	batch := mixedBatch(120)
	d := NewPatternDetector(iforest.DefaultParams())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Detect(batch)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), d.fits.Load())
	assert.Equal(t, ModelFitted, d.State())
}

func TestPatternMalformedTimestampLeavesModelUnfitted(t *testing.T) {
	batch := mixedBatch(60)
	batch[10].Timestamp = "not a time"
	d := NewPatternDetector(iforest.DefaultParams())

	_, err := d.Detect(batch)
	assert.ErrorIs(t, err, timestamp.ErrMalformedTimestamp)
	assert.Equal(t, ModelUnfitted, d.State())
}

func TestPatternFitFailureIsTyped(t *testing.T) {
	params := iforest.DefaultParams()
	params.Contamination = 0.9
	d := NewPatternDetector(params)

	_, err := d.Detect(mixedBatch(60))
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Equal(t, ModelUnfitted, d.State())
}

func TestPreviewTruncatesRunes(t *testing.T) {
	assert.Equal(t, "héll", preview("héllo", 4))
	assert.Equal(t, "short", preview("short", 100))
}

func TestModelStateString(t *testing.T) {
	assert.Equal(t, "unfitted", ModelUnfitted.String())
	assert.Equal(t, "fitting", ModelFitting.String())
	assert.Equal(t, "fitted", ModelFitted.String())
}
