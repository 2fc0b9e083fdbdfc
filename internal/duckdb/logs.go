package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tinytelemetry/logops/internal/model"
	"github.com/tinytelemetry/logops/internal/timestamp"
)

// StatsRowLimit caps the rows considered by LogStats.
const StatsRowLimit = 10000

// DefaultLogLimit is used when a LogFilter carries no limit.
const DefaultLogLimit = 100

// InsertLogBatch appends records in a single transaction. If the batch fails,
// records are retried one by one and the ones that still fail are dropped.
func (s *Store) InsertLogBatch(records []*model.LogRecord) error {
	if len(records) == 0 {
		return nil
	}

	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.insertLogsTx(ctx, records)
	if err == nil {
		return nil
	}
	log.WithError(err).WithField("records", len(records)).Warn("batch insert failed, retrying per record")

	var failed int
	for _, r := range records {
		if rerr := s.insertLogsTx(ctx, []*model.LogRecord{r}); rerr != nil {
			failed++
			log.WithFields(logrus.Fields{
				"service": r.Service,
				"message": truncate(r.Message, 80),
			}).WithError(rerr).Warn("dropping record")
		}
	}
	if failed == len(records) {
		return fmt.Errorf("insert logs: all %d records failed: %w", failed, err)
	}
	if failed > 0 {
		log.Warnf("batch partially failed: %d/%d records dropped", failed, len(records))
	}
	return nil
}

func (s *Store) insertLogsTx(ctx context.Context, records []*model.LogRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO logs (timestamp, service, severity, message, source_ip, user_id, request_id, metadata) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		ts, err := timestamp.Parse(r.Timestamp)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			ts.UTC(), r.Service, r.Severity, r.Message,
			nullString(r.SourceIP), nullString(r.UserID), nullString(r.RequestID),
			marshalMetadata(r.Metadata),
		); err != nil {
			return fmt.Errorf("record insert: %w", err)
		}
	}
	return tx.Commit()
}

// TotalLogCount returns the number of stored logs.
func (s *Store) TotalLogCount() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM logs`).Scan(&count)
	return count, err
}

// RecentLogs returns logs matching filter, newest first.
func (s *Store) RecentLogs(filter model.LogFilter) ([]model.LogRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	var conditions []string
	var args []interface{}
	if filter.Service != "" {
		conditions = append(conditions, "service = ?")
		args = append(args, filter.Service)
	}
	if filter.Severity != "" {
		conditions = append(conditions, "severity = ?")
		args = append(args, filter.Severity)
	}
	if !filter.Start.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filter.Start.UTC())
	}
	if !filter.End.IsZero() {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, filter.End.UTC())
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT id, timestamp, service, severity, message, source_ip, user_id, request_id, metadata FROM logs`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.LogRecord
	for rows.Next() {
		var (
			r                           model.LogRecord
			ts                          time.Time
			sourceIP, userID, requestID sql.NullString
			metadata                    sql.NullString
		)
		if err := rows.Scan(&r.ID, &ts, &r.Service, &r.Severity, &r.Message, &sourceIP, &userID, &requestID, &metadata); err != nil {
			log.WithError(err).Warn("scan error (RecentLogs)")
			continue
		}
		r.Timestamp = timestamp.Format(ts.UTC())
		r.SourceIP = sourceIP.String
		r.UserID = userID.String
		r.RequestID = requestID.String
		r.Metadata = unmarshalMetadata(metadata)
		results = append(results, r)
	}
	return results, rows.Err()
}

// LogStats summarizes at most StatsRowLimit of the newest logs within
// [start, end].
func (s *Store) LogStats(start, end time.Time) (*model.LogStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, service, severity
		FROM logs
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp DESC
		LIMIT ?`, start.UTC(), end.UTC(), StatsRowLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &model.LogStats{
		Start:                start.UTC(),
		End:                  end.UTC(),
		SeverityDistribution: map[string]int64{},
		ServiceDistribution:  map[string]int64{},
		HourlyDistribution:   map[string]int64{},
	}
	for rows.Next() {
		var (
			ts                time.Time
			service, severity string
		)
		if err := rows.Scan(&ts, &service, &severity); err != nil {
			log.WithError(err).Warn("scan error (LogStats)")
			continue
		}
		stats.TotalLogs++
		stats.SeverityDistribution[severity]++
		stats.ServiceDistribution[service]++
		stats.HourlyDistribution[ts.UTC().Truncate(time.Hour).Format("2006-01-02T15:00")]++
	}
	return stats, rows.Err()
}

// TopServices returns services ordered by log count.
func (s *Store) TopServices(limit int) ([]model.DimensionCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT service, COUNT(*) AS count
		FROM logs
		GROUP BY service
		ORDER BY count DESC, service ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.DimensionCount
	for rows.Next() {
		var dc model.DimensionCount
		if err := rows.Scan(&dc.Value, &dc.Count); err != nil {
			log.WithError(err).Warn("scan error (TopServices)")
			continue
		}
		results = append(results, dc)
	}
	return results, rows.Err()
}

// DeleteBefore removes logs and anomalies older than cutoff and returns the
// number of log rows deleted.
func (s *Store) DeleteBefore(cutoff time.Time) (int64, error) {
	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM logs WHERE timestamp < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM anomalies WHERE timestamp < ?`, cutoff.UTC()); err != nil {
		return 0, fmt.Errorf("delete anomalies: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return deleted, nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
