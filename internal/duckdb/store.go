// Package duckdb persists ingested logs and detected anomalies in DuckDB.
package duckdb

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/tinytelemetry/logops/internal/duckdb/migrate"
)

var (
	log  = logrus.WithField("component", "duckdb")
	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

// DefaultQueryTimeout bounds every store query.
const DefaultQueryTimeout = 30 * time.Second

// Store manages the DuckDB connection and provides query methods.
type Store struct {
	db           *sql.DB
	mu           sync.RWMutex
	dbPath       string
	QueryTimeout time.Duration
}

// NewStore opens or creates a DuckDB database and applies pending migrations.
// If dbPath is empty, an in-memory database is used.
func NewStore(dbPath string, queryTimeout ...time.Duration) (*Store, error) {
	dsn := ""
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
		dsn = dbPath
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, err
	}
	if err := migrate.NewRunner(db, migrate.Schema).Run(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	qt := DefaultQueryTimeout
	if len(queryTimeout) > 0 && queryTimeout[0] > 0 {
		qt = queryTimeout[0]
	}
	return &Store{
		db:           db,
		dbPath:       dbPath,
		QueryTimeout: qt,
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path, empty for in-memory stores.
func (s *Store) Path() string {
	return s.dbPath
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// queryCtx returns a context with the store's configured query timeout.
func (s *Store) queryCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.QueryTimeout)
}

func marshalMetadata(m map[string]interface{}) string {
	if len(m) == 0 {
		return "{}"
	}
	data, err := json.Marshal(m)
	if err != nil {
		log.WithError(err).Warn("failed to marshal metadata, storing empty object")
		return "{}"
	}
	return string(data)
}

func unmarshalMetadata(raw sql.NullString) map[string]interface{} {
	if !raw.Valid || raw.String == "" || raw.String == "{}" {
		return nil
	}
	var m map[string]interface{}
	if err := json.UnmarshalFromString(raw.String, &m); err != nil {
		log.WithError(err).Debug("discarding unparsable metadata")
		return nil
	}
	return m
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
