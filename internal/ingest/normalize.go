// Package ingest normalizes inbound log records and routes them to storage and
// analysis.
package ingest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tinytelemetry/logops/internal/logparse"
	"github.com/tinytelemetry/logops/internal/model"
	"github.com/tinytelemetry/logops/internal/timestamp"
)

// DefaultService names records that arrive without a service.
const DefaultService = "unknown"

// Normalize fills defaults and canonicalizes r in place: a missing timestamp
// becomes now, severity aliases fold onto the four levels (a missing severity
// is read from the message text) and a missing service becomes "unknown".
// A timestamp that is present but unparsable is an error.
func Normalize(r *model.LogRecord, now func() time.Time) error {
	if now == nil {
		now = time.Now
	}
	if strings.TrimSpace(r.Timestamp) == "" {
		r.Timestamp = timestamp.Format(now().UTC())
	} else if _, err := timestamp.Parse(r.Timestamp); err != nil {
		return err
	}

	if strings.TrimSpace(r.Severity) == "" {
		r.Severity = logparse.ExtractSeverityFromText(r.Message)
	} else {
		r.Severity = logparse.NormalizeSeverity(r.Severity)
	}

	r.Service = strings.TrimSpace(r.Service)
	if r.Service == "" {
		r.Service = DefaultService
	}
	return nil
}

// NormalizeAll normalizes every record and reports all invalid ones together.
func NormalizeAll(records []model.LogRecord, now func() time.Time) error {
	var errs []error
	for i := range records {
		if err := Normalize(&records[i], now); err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
