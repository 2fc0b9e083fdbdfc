package detector

import (
	"fmt"
	"time"

	"github.com/tinytelemetry/logops/internal/model"
	"github.com/tinytelemetry/logops/internal/timestamp"
)

// monday 2024-01-01 10:00 UTC
var baseTime = time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)

func record(ts time.Time, service, severity, message string) model.LogRecord {
	return model.LogRecord{
		Timestamp: timestamp.Format(ts),
		Service:   service,
		Severity:  severity,
		Message:   message,
	}
}

// uniform returns n INFO records for service spread one second apart.
func uniform(n int, service string) []model.LogRecord {
	records := make([]model.LogRecord, n)
	for i := range records {
		records[i] = record(baseTime.Add(time.Duration(i)*time.Second), service, model.SeverityInfo, fmt.Sprintf("request %d served", i))
	}
	return records
}

// withSeverity overwrites the severity of the first n records.
func withSeverity(records []model.LogRecord, severity string, n int) []model.LogRecord {
	for i := 0; i < n && i < len(records); i++ {
		records[i].Severity = severity
	}
	return records
}

// mixedBatch returns a varied batch suitable for fitting the pattern model.
func mixedBatch(n int) []model.LogRecord {
	services := []string{"auth", "payments", "orders", "search"}
	records := make([]model.LogRecord, n)
	for i := range records {
		r := record(
			baseTime.Add(time.Duration(i*37)*time.Second),
			services[i%len(services)],
			model.SeverityInfo,
			fmt.Sprintf("handled request %d in %dms", i, 10+i%7),
		)
		r.SourceIP = fmt.Sprintf("10.0.%d.%d", i%3, 10+i%50)
		r.UserID = fmt.Sprintf("user-%d", i%25)
		if i%10 == 0 {
			r.Severity = model.SeverityWarning
		}
		records[i] = r
	}
	// a handful of records far from the rest
	for _, i := range []int{7, 61, 133} {
		if i >= n {
			continue
		}
		records[i].Severity = model.SeverityCritical
		records[i].Service = "legacy-batch"
		records[i].SourceIP = "203.0.113.250"
		records[i].UserID = ""
		records[i].Message = fmt.Sprintf("fatal: worker pool exhausted after %d retries, dumping state %0500d", i, i)
	}
	return records
}

func countType(anomalies []model.AnomalyRecord, t model.AnomalyType) int {
	n := 0
	for _, a := range anomalies {
		if a.Type == t {
			n++
		}
	}
	return n
}
