package duckdb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tinytelemetry/logops/internal/model"
)

// InsertAnomalies persists anomalies in one transaction. Records without an
// ID are assigned a random UUID.
func (s *Store) InsertAnomalies(anomalies []model.AnomalyRecord) error {
	if len(anomalies) == 0 {
		return nil
	}

	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO anomalies (id, type, timestamp, severity, description, confidence_score, affected_service, metadata) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range anomalies {
		a := &anomalies[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx,
			a.ID, string(a.Type), a.Timestamp.UTC(), a.Severity, a.Description,
			a.ConfidenceScore, a.AffectedService, marshalMetadata(a.Metadata),
		); err != nil {
			return fmt.Errorf("anomaly insert: %w", err)
		}
	}
	return tx.Commit()
}

// RecentAnomalies returns up to limit anomalies at or after since, newest first.
// A zero since returns anomalies of any age.
func (s *Store) RecentAnomalies(limit int, since time.Time) ([]model.AnomalyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	if limit <= 0 {
		limit = DefaultLogLimit
	}
	query := `SELECT id, type, timestamp, severity, description, confidence_score, affected_service, metadata FROM anomalies`
	var args []interface{}
	if !since.IsZero() {
		query += ` WHERE timestamp >= ?`
		args = append(args, since.UTC())
	}
	query += ` ORDER BY timestamp DESC, detected_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.AnomalyRecord
	for rows.Next() {
		var (
			a        model.AnomalyRecord
			typ      string
			affected sql.NullString
			metadata sql.NullString
		)
		if err := rows.Scan(&a.ID, &typ, &a.Timestamp, &a.Severity, &a.Description, &a.ConfidenceScore, &affected, &metadata); err != nil {
			log.WithError(err).Warn("scan error (RecentAnomalies)")
			continue
		}
		a.Type = model.AnomalyType(typ)
		a.Timestamp = a.Timestamp.UTC()
		a.AffectedService = affected.String
		a.Metadata = unmarshalMetadata(metadata)
		results = append(results, a)
	}
	return results, rows.Err()
}
