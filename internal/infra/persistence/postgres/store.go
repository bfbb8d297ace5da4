// Package postgres persists layout runs to Postgres through the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"plantgrid/internal/layout"
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/plantgrid?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

const schema = `CREATE TABLE IF NOT EXISTS layout_runs (
	id TEXT PRIMARY KEY,
	started_at BIGINT NOT NULL,
	status TEXT NOT NULL,
	payload JSONB NOT NULL
)`

// Store is a Postgres-backed run store.
type Store struct {
	db *sql.DB
}

// NewStore connects to dsn (defaultDSN when empty) and ensures the schema.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure layout_runs table: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Save upserts run.
func (s *Store) Save(ctx context.Context, run layout.Run) error {
	if run.ID == "" {
		return fmt.Errorf("save run: empty id")
	}
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", run.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO layout_runs (id, started_at, status, payload) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET started_at = EXCLUDED.started_at, status = EXCLUDED.status, payload = EXCLUDED.payload`,
		run.ID, run.StartedAt.UnixNano(), string(run.Status), string(payload))
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

// Get loads the run with id.
func (s *Store) Get(ctx context.Context, id string) (layout.Run, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM layout_runs WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return layout.Run{}, fmt.Errorf("%w: %s", layout.ErrNotFound, id)
	}
	if err != nil {
		return layout.Run{}, fmt.Errorf("select run %s: %w", id, err)
	}
	var run layout.Run
	if err := json.Unmarshal(payload, &run); err != nil {
		return layout.Run{}, fmt.Errorf("decode run %s: %w", id, err)
	}
	return run, nil
}

// List returns all runs, newest first.
func (s *Store) List(ctx context.Context) ([]layout.Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM layout_runs ORDER BY started_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var runs []layout.Run
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var run layout.Run
		if err := json.Unmarshal(payload, &run); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	layout.SortNewestFirst(runs)
	return runs, nil
}

// Close closes the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
