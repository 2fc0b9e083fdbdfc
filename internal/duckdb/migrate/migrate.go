// Package migrate applies versioned DuckDB schema files.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "migrate")

//go:embed migrations/*.sql
var embedded embed.FS

// Schema holds the logops schema files at its root.
var Schema = mustSub(embedded, "migrations")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// Step is one schema file, named NNN_description.sql.
type Step struct {
	Version int
	Name    string
	SQL     string
}

// Runner applies the steps found in a schema source to a database.
type Runner struct {
	db     *sql.DB
	source fs.FS
}

// NewRunner creates a runner applying the *.sql files at the root of source.
func NewRunner(db *sql.DB, source fs.FS) *Runner {
	return &Runner{db: db, source: source}
}

// Steps lists the schema files in version order. Files whose prefix is not
// followed by an underscore are not steps.
func (r *Runner) Steps() ([]Step, error) {
	names, err := fs.Glob(r.source, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("listing schema files: %w", err)
	}

	steps := make([]Step, 0, len(names))
	seen := make(map[int]string, len(names))
	for _, name := range names {
		prefix, _, ok := strings.Cut(path.Base(name), "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil || version <= 0 {
			return nil, fmt.Errorf("schema file %s: version prefix %q is not a positive integer", name, prefix)
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("schema files %s and %s share version %d", other, name, version)
		}
		seen[version] = name

		body, err := fs.ReadFile(r.source, name)
		if err != nil {
			return nil, fmt.Errorf("schema file %s: %w", name, err)
		}
		steps = append(steps, Step{Version: version, Name: name, SQL: string(body)})
	}
	slices.SortFunc(steps, func(a, b Step) int { return a.Version - b.Version })
	return steps, nil
}

// Pending returns the steps not yet recorded as applied.
func (r *Runner) Pending(ctx context.Context) ([]Step, error) {
	steps, err := r.Steps()
	if err != nil {
		return nil, err
	}
	applied, err := r.applied(ctx)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(steps, func(s Step) bool { return applied[s.Version] }), nil
}

// Run applies every pending step, each in its own transaction.
func (r *Runner) Run(ctx context.Context) error {
	pending, err := r.Pending(ctx)
	if err != nil {
		return err
	}
	for _, step := range pending {
		if err := r.apply(ctx, step); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"version": step.Version, "name": step.Name}).Debug("schema step applied")
	}
	return nil
}

// Version returns the highest applied version, 0 for an empty database.
func (r *Runner) Version(ctx context.Context) (int, error) {
	applied, err := r.applied(ctx)
	if err != nil {
		return 0, err
	}
	current := 0
	for v := range applied {
		current = max(current, v)
	}
	return current, nil
}

func (r *Runner) applied(ctx context.Context) (map[int]bool, error) {
	if _, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT current_timestamp
	)`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func (r *Runner) apply(ctx context.Context, step Step) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, step.SQL); err != nil {
		return fmt.Errorf("schema step %s: %w", step.Name, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, step.Version, step.Name); err != nil {
		return fmt.Errorf("record schema step %s: %w", step.Name, err)
	}
	return tx.Commit()
}
