package duckdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinytelemetry/logops/internal/model"
	"github.com/tinytelemetry/logops/internal/timestamp"
)

var t0 = time.Date(2024, time.May, 6, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func logAt(ts time.Time, service, severity, message string) *model.LogRecord {
	return &model.LogRecord{
		Timestamp: timestamp.Format(ts),
		Service:   service,
		Severity:  severity,
		Message:   message,
	}
}

func insertTestRecords(t *testing.T, store *Store, records ...*model.LogRecord) {
	t.Helper()
	require.NoError(t, store.InsertLogBatch(records))
}

func TestNewStoreOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "logops.duckdb")
	store, err := NewStore(path, 5*time.Second)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, path, store.Path())
	assert.Equal(t, 5*time.Second, store.QueryTimeout)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestInsertAndReadLogs(t *testing.T) {
	store := newTestStore(t)

	withFields := logAt(t0.Add(2*time.Minute), "auth", model.SeverityError, "login failed")
	withFields.SourceIP = "10.1.2.3"
	withFields.UserID = "u-7"
	withFields.RequestID = "req-1"
	withFields.Metadata = map[string]interface{}{"region": "eu-west-1", "attempt": 3}

	insertTestRecords(t, store,
		logAt(t0, "auth", model.SeverityInfo, "login ok"),
		withFields,
		logAt(t0.Add(time.Minute), "billing", model.SeverityWarning, "slow invoice"),
	)

	count, err := store.TotalLogCount()
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	logs, err := store.RecentLogs(model.LogFilter{})
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "login failed", logs[0].Message, "newest first")
	assert.Equal(t, "slow invoice", logs[1].Message)
	assert.Equal(t, "login ok", logs[2].Message)

	got := logs[0]
	assert.NotZero(t, got.ID)
	assert.Equal(t, timestamp.Format(t0.Add(2*time.Minute)), got.Timestamp)
	assert.Equal(t, "10.1.2.3", got.SourceIP)
	assert.Equal(t, "u-7", got.UserID)
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, "eu-west-1", got.Metadata["region"])
	assert.EqualValues(t, 3, got.Metadata["attempt"])
	assert.Empty(t, logs[1].SourceIP)
	assert.Nil(t, logs[1].Metadata)
}

func TestRecentLogsFilters(t *testing.T) {
	store := newTestStore(t)
	for i := 0; i < 10; i++ {
		severity := model.SeverityInfo
		if i%2 == 0 {
			severity = model.SeverityError
		}
		service := "api"
		if i >= 5 {
			service = "worker"
		}
		insertTestRecords(t, store, logAt(t0.Add(time.Duration(i)*time.Minute), service, severity, "m"))
	}

	tests := []struct {
		name   string
		filter model.LogFilter
		want   int
	}{
		{name: "all", filter: model.LogFilter{}, want: 10},
		{name: "limit", filter: model.LogFilter{Limit: 3}, want: 3},
		{name: "offset", filter: model.LogFilter{Offset: 8}, want: 2},
		{name: "service", filter: model.LogFilter{Service: "worker"}, want: 5},
		{name: "severity", filter: model.LogFilter{Severity: model.SeverityError}, want: 5},
		{name: "service and severity", filter: model.LogFilter{Service: "api", Severity: model.SeverityError}, want: 3},
		{name: "start", filter: model.LogFilter{Start: t0.Add(7 * time.Minute)}, want: 3},
		{name: "window", filter: model.LogFilter{Start: t0.Add(2 * time.Minute), End: t0.Add(4 * time.Minute)}, want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs, err := store.RecentLogs(tt.filter)
			require.NoError(t, err)
			assert.Len(t, logs, tt.want)
		})
	}
}

func TestInsertLogBatchDropsMalformedRecords(t *testing.T) {
	store := newTestStore(t)
	bad := logAt(t0, "api", model.SeverityInfo, "bad")
	bad.Timestamp = "never"

	require.NoError(t, store.InsertLogBatch([]*model.LogRecord{logAt(t0, "api", model.SeverityInfo, "good"), bad}))
	count, err := store.TotalLogCount()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	assert.Error(t, store.InsertLogBatch([]*model.LogRecord{bad}))
}

func TestLogStats(t *testing.T) {
	store := newTestStore(t)
	insertTestRecords(t, store,
		logAt(t0, "api", model.SeverityInfo, "a"),
		logAt(t0.Add(10*time.Minute), "api", model.SeverityError, "b"),
		logAt(t0.Add(70*time.Minute), "db", model.SeverityInfo, "c"),
		logAt(t0.Add(-48*time.Hour), "db", model.SeverityCritical, "old"),
	)

	stats, err := store.LogStats(t0.Add(-time.Hour), t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.TotalLogs)
	assert.Equal(t, map[string]int64{model.SeverityInfo: 2, model.SeverityError: 1}, stats.SeverityDistribution)
	assert.Equal(t, map[string]int64{"api": 2, "db": 1}, stats.ServiceDistribution)
	assert.Equal(t, map[string]int64{"2024-05-06T09:00": 2, "2024-05-06T10:00": 1}, stats.HourlyDistribution)
}

func TestTopServices(t *testing.T) {
	store := newTestStore(t)
	insertTestRecords(t, store,
		logAt(t0, "api", model.SeverityInfo, "a"),
		logAt(t0, "api", model.SeverityInfo, "b"),
		logAt(t0, "db", model.SeverityInfo, "c"),
	)

	top, err := store.TopServices(1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, model.DimensionCount{Value: "api", Count: 2}, top[0])
}

func TestAnomaliesRoundTrip(t *testing.T) {
	store := newTestStore(t)
	anomalies := []model.AnomalyRecord{
		{
			Type:            model.AnomalyHighErrorRate,
			Timestamp:       t0,
			Severity:        model.SeverityWarning,
			Description:     "High error rate detected: 30.00% (expected: 12.00%)",
			ConfidenceScore: 1,
			AffectedService: model.AffectedMultiple,
			Metadata:        map[string]interface{}{"error_count": 6},
		},
		{
			ID:              "fixed-id",
			Type:            model.AnomalyServiceErrorSpike,
			Timestamp:       t0.Add(time.Hour),
			Severity:        model.SeverityWarning,
			Description:     "High error rate in api service: 40.00%",
			ConfidenceScore: 0.4,
			AffectedService: "api",
		},
	}
	require.NoError(t, store.InsertAnomalies(anomalies))
	assert.NotEmpty(t, anomalies[0].ID, "assigned on insert")

	got, err := store.RecentAnomalies(10, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "fixed-id", got[0].ID)
	assert.Equal(t, model.AnomalyServiceErrorSpike, got[0].Type)
	assert.Equal(t, t0.Add(time.Hour), got[0].Timestamp)
	assert.Equal(t, anomalies[0].ID, got[1].ID)
	assert.EqualValues(t, 6, got[1].Metadata["error_count"])

	recent, err := store.RecentAnomalies(10, t0.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestDeleteBefore(t *testing.T) {
	store := newTestStore(t)
	insertTestRecords(t, store,
		logAt(t0.Add(-72*time.Hour), "api", model.SeverityInfo, "old"),
		logAt(t0, "api", model.SeverityInfo, "new"),
	)
	require.NoError(t, store.InsertAnomalies([]model.AnomalyRecord{
		{Type: model.AnomalyVolumeSpike, Timestamp: t0.Add(-72 * time.Hour), Severity: model.SeverityWarning, Description: "old"},
	}))

	deleted, err := store.DeleteBefore(t0.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	count, err := store.TotalLogCount()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	anomalies, err := store.RecentAnomalies(10, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, anomalies)
}

func TestDeleteBeforeRollsBackOnFailure(t *testing.T) {
	store := newTestStore(t)
	insertTestRecords(t, store,
		logAt(t0.Add(-72*time.Hour), "api", model.SeverityInfo, "old"),
		logAt(t0, "api", model.SeverityInfo, "new"),
	)
	_, err := store.db.Exec(`DROP TABLE anomalies`)
	require.NoError(t, err)

	deleted, err := store.DeleteBefore(t0.Add(-24 * time.Hour))
	require.Error(t, err)
	assert.Zero(t, deleted)

	count, err := store.TotalLogCount()
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}
