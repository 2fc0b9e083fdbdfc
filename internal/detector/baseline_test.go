package detector

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinytelemetry/logops/internal/model"
)

func TestTrackerBoundsHistory(t *testing.T) {
	tr := NewTracker(DefaultBaselineCapacity, DefaultBaselineMinHistory)
	for i := 0; i < 1500; i++ {
		r := record(baseTime, "api", model.SeverityInfo, fmt.Sprintf("msg-%d", i))
		tr.Update([]model.LogRecord{r})
	}

	history := tr.History()
	require.Len(t, history, 1000)
	assert.Equal(t, 1000, tr.Len())
	for i, r := range history {
		assert.Equal(t, fmt.Sprintf("msg-%d", i+500), r.Message)
	}
}

func TestTrackerDistributionStaleBelowMinimum(t *testing.T) {
	tr := NewTracker(1000, 100)
	tr.Update(withSeverity(uniform(99, "api"), model.SeverityError, 99))
	assert.Empty(t, tr.Distribution())

	tr.Update(uniform(1, "api"))
	dist := tr.Distribution()
	assert.InDelta(t, 0.99, dist[model.SeverityError], 1e-9)
	assert.InDelta(t, 0.01, dist[model.SeverityInfo], 1e-9)
}

func TestTrackerRecomputesWholesale(t *testing.T) {
	tr := NewTracker(100, 100)
	tr.Update(withSeverity(uniform(100, "api"), model.SeverityCritical, 100))
	tr.Update(uniform(100, "api"))

	dist := tr.Distribution()
	assert.Equal(t, map[string]float64{model.SeverityInfo: 1}, dist)
}

func TestTrackerSnapshotsAreCopies(t *testing.T) {
	tr := NewTracker(1000, 1)
	tr.Update(uniform(3, "api"))

	dist := tr.Distribution()
	dist[model.SeverityInfo] = 42
	history := tr.History()
	history[0].Message = "mutated"

	assert.Equal(t, 1.0, tr.Distribution()[model.SeverityInfo])
	assert.NotEqual(t, "mutated", tr.History()[0].Message)
}

func TestTrackerConcurrentUse(t *testing.T) {
	tr := NewTracker(500, 100)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				tr.Update(uniform(10, "api"))
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = tr.Distribution()
				_ = tr.History()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 500, tr.Len())
}

func TestTrackerIgnoresEmptyUpdate(t *testing.T) {
	tr := NewTracker(10, 1)
	tr.Update(nil)
	assert.Zero(t, tr.Len())
}
