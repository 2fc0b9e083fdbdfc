package model

import "time"

// Severity levels understood by the detection engine.
const (
	SeverityInfo     = "INFO"
	SeverityWarning  = "WARNING"
	SeverityError    = "ERROR"
	SeverityCritical = "CRITICAL"
)

// Severities lists the known levels in ordinal order.
var Severities = []string{SeverityInfo, SeverityWarning, SeverityError, SeverityCritical}

// SeverityOrdinal maps a severity to its ordinal (INFO=0 .. CRITICAL=3).
// Unknown values map to 0.
func SeverityOrdinal(severity string) int {
	switch severity {
	case SeverityWarning:
		return 1
	case SeverityError:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// LogRecord is one structured log entry as supplied by the ingestion boundary.
// Timestamp is kept in its ISO-8601 textual form; parsing happens where it is
// consumed so malformed input surfaces as an error at that point.
type LogRecord struct {
	ID        int64                  `json:"id,omitempty" yaml:"id,omitempty"`
	Timestamp string                 `json:"timestamp" yaml:"timestamp"`
	Service   string                 `json:"service" yaml:"service"`
	Severity  string                 `json:"severity" yaml:"severity"`
	Message   string                 `json:"message" yaml:"message"`
	SourceIP  string                 `json:"source_ip,omitempty" yaml:"source_ip,omitempty"`
	UserID    string                 `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	RequestID string                 `json:"request_id,omitempty" yaml:"request_id,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// AnomalyType tags the detector finding.
type AnomalyType string

const (
	AnomalyVolumeSpike          AnomalyType = "volume_spike"
	AnomalyHighErrorRate        AnomalyType = "high_error_rate"
	AnomalyHighCriticalRate     AnomalyType = "high_critical_rate"
	AnomalyServiceErrorSpike    AnomalyType = "service_error_spike"
	AnomalyServiceCriticalSpike AnomalyType = "service_critical_spike"
	AnomalyPattern              AnomalyType = "pattern_anomaly"
)

// AffectedMultiple marks anomalies that are not tied to one service.
const AffectedMultiple = "multiple"

// AnomalyRecord is a single finding emitted by a detector.
type AnomalyRecord struct {
	ID              string                 `json:"id,omitempty" yaml:"id,omitempty"`
	Type            AnomalyType            `json:"type" yaml:"type"`
	Timestamp       time.Time              `json:"timestamp" yaml:"timestamp"`
	Severity        string                 `json:"severity" yaml:"severity"`
	Description     string                 `json:"description" yaml:"description"`
	ConfidenceScore float64                `json:"confidence_score" yaml:"confidence_score"`
	AffectedService string                 `json:"affected_service" yaml:"affected_service"`
	Metadata        map[string]interface{} `json:"metadata" yaml:"metadata"`
}

// DimensionCount represents grouped counts by a single dimension value
// (for example service or severity).
type DimensionCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// LogStats summarizes stored logs over a time range.
type LogStats struct {
	Start                time.Time        `json:"start"`
	End                  time.Time        `json:"end"`
	TotalLogs            int64            `json:"total_logs"`
	SeverityDistribution map[string]int64 `json:"severity_distribution"`
	ServiceDistribution  map[string]int64 `json:"service_distribution"`
	HourlyDistribution   map[string]int64 `json:"hourly_distribution"`
}
