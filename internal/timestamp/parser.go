// Package timestamp parses the ISO-8601 timestamps carried by log records.
package timestamp

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedTimestamp is returned when a record timestamp cannot be parsed.
var ErrMalformedTimestamp = errors.New("malformed timestamp")

// Layouts are tried in order. Fractional seconds are accepted after the seconds
// field by time.Parse even when a layout does not spell them out.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Parse parses an ISO-8601 timestamp. Values without a zone offset are taken
// as UTC. The returned time keeps the offset carried by the input.
func Parse(value string) (time.Time, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrMalformedTimestamp)
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, value)
}

// Format renders t the way records carry timestamps on the wire.
func Format(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// Now returns the current UTC time formatted for a record.
func Now() string {
	return Format(time.Now().UTC())
}
