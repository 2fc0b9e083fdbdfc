package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinytelemetry/logops/internal/model"
)

type memorySink struct{ records []model.LogRecord }

func (m *memorySink) AddBatch(records []model.LogRecord) {
	m.records = append(m.records, records...)
}

type recordingSubmitter struct {
	batches [][]model.LogRecord
	full    bool
}

func (r *recordingSubmitter) Submit(records []model.LogRecord) bool {
	if r.full {
		return false
	}
	r.batches = append(r.batches, records)
	return true
}

func TestPipelineIngest(t *testing.T) {
	sink := &memorySink{}
	sub := &recordingSubmitter{}
	p := NewPipeline(sink, sub)
	p.now = clock

	in := []model.LogRecord{
		{Service: "api", Severity: "err", Message: "boom"},
		{Timestamp: "garbage", Service: "api"},
		{Timestamp: "2024-01-01T00:00:00Z", Service: "db", Severity: "INFO"},
	}
	accepted, err := p.Ingest("http", in)
	assert.Equal(t, 2, accepted)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 1")

	require.Len(t, sink.records, 2)
	assert.Equal(t, model.SeverityError, sink.records[0].Severity)
	assert.Equal(t, "2024-02-02T02:02:02Z", sink.records[0].Timestamp)
	require.Len(t, sub.batches, 1)
	assert.Len(t, sub.batches[0], 2)
	assert.Equal(t, "err", in[0].Severity, "caller's slice untouched")
}

func TestPipelineEmpty(t *testing.T) {
	_, err := NewPipeline(nil, nil).Ingest("http", nil)
	assert.ErrorIs(t, err, ErrNoRecords)
}

func TestPipelineQueueFull(t *testing.T) {
	sink := &memorySink{}
	p := NewPipeline(sink, &recordingSubmitter{full: true})
	accepted, err := p.Ingest("http", []model.LogRecord{{Message: "x"}})
	require.NoError(t, err)
	assert.Equal(t, 1, accepted)
	assert.Len(t, sink.records, 1)
}
