package detector

import (
	"sync"

	"github.com/tinytelemetry/logops/internal/model"
)

// Tracker keeps a bounded history of recent records and the severity
// distribution computed from it.
type Tracker struct {
	capacity   int
	minHistory int

	mu           sync.RWMutex
	history      []model.LogRecord
	distribution map[string]float64
}

// NewTracker creates a tracker holding at most capacity records that
// recomputes the distribution once minHistory records are held.
func NewTracker(capacity, minHistory int) *Tracker {
	if capacity <= 0 {
		capacity = DefaultBaselineCapacity
	}
	if minHistory <= 0 {
		minHistory = DefaultBaselineMinHistory
	}
	return &Tracker{
		capacity:     capacity,
		minHistory:   minHistory,
		distribution: map[string]float64{},
	}
}

// Update appends records, evicts the oldest beyond capacity and recomputes
// the distribution when enough history is held. It never fails; faults are
// logged and the previous state is kept.
func (t *Tracker) Update(records []model.LogRecord) {
	if len(records) == 0 {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("baseline update failed")
		}
	}()

	t.mu.Lock()
	defer t.mu.Unlock()

	history := append(t.history, records...)
	if over := len(history) - t.capacity; over > 0 {
		trimmed := make([]model.LogRecord, t.capacity)
		copy(trimmed, history[over:])
		history = trimmed
	}
	t.history = history

	if len(t.history) < t.minHistory {
		return
	}
	counts := make(map[string]int)
	for i := range t.history {
		counts[t.history[i].Severity]++
	}
	total := float64(len(t.history))
	dist := make(map[string]float64, len(counts))
	for severity, n := range counts {
		dist[severity] = float64(n) / total
	}
	t.distribution = dist
}

// Distribution returns a copy of the current severity distribution.
func (t *Tracker) Distribution() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]float64, len(t.distribution))
	for k, v := range t.distribution {
		out[k] = v
	}
	return out
}

// History returns a copy of the retained records, oldest first.
func (t *Tracker) History() []model.LogRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]model.LogRecord(nil), t.history...)
}

// Len is the number of retained records.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.history)
}
