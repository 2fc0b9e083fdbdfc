package detector

import (
	"net/netip"
	"time"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"github.com/tinytelemetry/logops/internal/model"
	"github.com/tinytelemetry/logops/internal/timestamp"
)

// FeatureCount is the width of a FeatureVector.
const FeatureCount = 12

// Feature positions within a FeatureVector.
const (
	FeatureHour = iota
	FeatureWeekday
	FeatureMinute
	FeatureSeverity
	FeatureService
	FeatureMessageLength
	FeatureIPOctet1
	FeatureIPOctet2
	FeatureIPOctet3
	FeatureIPOctet4
	FeatureUser
	FeatureIPPresent
)

// FeatureVector is the numeric encoding of one log record:
// hour, weekday (Monday=0), minute, severity ordinal, service hash mod 100,
// message length, four IPv4 octets, user hash mod 1000 and a flag set when the
// source address parsed as IPv4.
type FeatureVector [FeatureCount]float64

// Extract encodes records in order. Absent or malformed optional fields encode
// as zeros; an unparsable timestamp is the only error.
func Extract(records []model.LogRecord) ([]FeatureVector, error) {
	vectors, _, err := extract(records)
	return vectors, err
}

func extract(records []model.LogRecord) ([]FeatureVector, []time.Time, error) {
	vectors := make([]FeatureVector, len(records))
	times := make([]time.Time, len(records))
	for i := range records {
		ts, err := timestamp.Parse(records[i].Timestamp)
		if err != nil {
			return nil, nil, err
		}
		times[i] = ts
		vectors[i] = encode(&records[i], ts)
	}
	return vectors, times, nil
}

func encode(r *model.LogRecord, ts time.Time) FeatureVector {
	var v FeatureVector
	v[FeatureHour] = float64(ts.Hour())
	v[FeatureWeekday] = float64((int(ts.Weekday()) + 6) % 7)
	v[FeatureMinute] = float64(ts.Minute())
	v[FeatureSeverity] = float64(model.SeverityOrdinal(r.Severity))
	v[FeatureService] = float64(xxhash.Sum64String(r.Service) % 100)
	v[FeatureMessageLength] = float64(utf8.RuneCountInString(r.Message))

	if r.SourceIP != "" {
		if addr, err := netip.ParseAddr(r.SourceIP); err == nil && addr.Is4() {
			octets := addr.As4()
			for i, o := range octets {
				v[FeatureIPOctet1+i] = float64(o)
			}
			v[FeatureIPPresent] = 1
		}
	}
	if r.UserID != "" {
		v[FeatureUser] = float64(xxhash.Sum64String(r.UserID) % 1000)
	}
	return v
}

// columns converts vectors to the row-major slices the scaler and forest use.
func columns(vectors []FeatureVector) [][]float64 {
	rows := make([][]float64, len(vectors))
	for i := range vectors {
		rows[i] = vectors[i][:]
	}
	return rows
}
