package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tinytelemetry/logops/internal/metrics"
	"github.com/tinytelemetry/logops/internal/model"
)

var log = logrus.WithField("component", "ingest")

// ErrNoRecords is returned when a batch has nothing to ingest.
var ErrNoRecords = errors.New("no log records")

// RecordSink stores accepted records.
type RecordSink interface {
	AddBatch(records []model.LogRecord)
}

// Submitter hands a batch to background analysis. It reports false when the
// batch was not queued.
type Submitter interface {
	Submit(records []model.LogRecord) bool
}

// Pipeline normalizes records, stores them and queues them for analysis.
type Pipeline struct {
	sink     RecordSink
	analyzer Submitter
	now      func() time.Time
}

// NewPipeline creates a pipeline. Either collaborator may be nil.
func NewPipeline(sink RecordSink, analyzer Submitter) *Pipeline {
	return &Pipeline{sink: sink, analyzer: analyzer, now: time.Now}
}

// Ingest accepts every valid record in records and returns how many were
// accepted. Invalid records are skipped and described by the returned error.
func (p *Pipeline) Ingest(source string, records []model.LogRecord) (int, error) {
	if len(records) == 0 {
		return 0, ErrNoRecords
	}

	accepted := make([]model.LogRecord, 0, len(records))
	var errs []error
	for i := range records {
		r := records[i]
		if err := Normalize(&r, p.now); err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		accepted = append(accepted, r)
	}

	if len(accepted) > 0 {
		if p.sink != nil {
			p.sink.AddBatch(accepted)
		}
		metrics.AddIngested(source, len(accepted))
		if p.analyzer != nil && !p.analyzer.Submit(accepted) {
			log.WithFields(logrus.Fields{
				"source":  source,
				"records": len(accepted),
			}).Warn("analysis queue full, batch stored without analysis")
		}
	}
	return len(accepted), errors.Join(errs...)
}
