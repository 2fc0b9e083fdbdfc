package model

import "time"

// LogFilter holds optional filters for log listing queries.
type LogFilter struct {
	Limit    int
	Offset   int
	Service  string
	Severity string
	Start    time.Time // zero = unbounded
	End      time.Time // zero = unbounded
}

// LogQuerier provides read-only queries on stored logs.
type LogQuerier interface {
	TotalLogCount() (int64, error)
	RecentLogs(filter LogFilter) ([]LogRecord, error)
	LogStats(start, end time.Time) (*LogStats, error)
	TopServices(limit int) ([]DimensionCount, error)
}

// AnomalyQuerier provides read-only queries on persisted anomalies.
type AnomalyQuerier interface {
	RecentAnomalies(limit int, since time.Time) ([]AnomalyRecord, error)
}

// LogWriter provides append-oriented write operations for ingested logs.
type LogWriter interface {
	InsertLogBatch(records []*LogRecord) error
}

// AnomalyWriter persists detector findings.
type AnomalyWriter interface {
	InsertAnomalies(anomalies []AnomalyRecord) error
}

// ReadAPI is the unified read contract for the HTTP surface.
type ReadAPI interface {
	LogQuerier
	AnomalyQuerier
}
