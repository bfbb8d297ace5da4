// Package sqlite persists layout runs to a SQLite database file, one JSON
// payload row per run.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"plantgrid/internal/layout"
)

// DefaultPath is used when NewStore receives an empty path.
const DefaultPath = "plantgrid.db"

const schema = `CREATE TABLE IF NOT EXISTS layout_runs (
	id TEXT PRIMARY KEY,
	started_at INTEGER NOT NULL,
	status TEXT NOT NULL,
	payload BLOB NOT NULL
)`

// Store is a SQLite-backed run store.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the database at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time; sqlite would answer SQLITE_BUSY otherwise
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create layout_runs table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// DB exposes the underlying handle for tests.
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
	_, err = s.db.ExecContext(ctx, `INSERT INTO layout_runs (id, started_at, status, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET started_at = excluded.started_at, status = excluded.status, payload = excluded.payload`,
		run.ID, run.StartedAt.UnixNano(), string(run.Status), payload)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

// Get loads the run with id.
func (s *Store) Get(ctx context.Context, id string) (layout.Run, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM layout_runs WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return layout.Run{}, fmt.Errorf("%w: %s", layout.ErrNotFound, id)
	}
	if err != nil {
		return layout.Run{}, fmt.Errorf("select run %s: %w", id, err)
	}
	return decode(payload)
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
		run, err := decode(payload)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func decode(payload []byte) (layout.Run, error) {
	var run layout.Run
	if err := json.Unmarshal(payload, &run); err != nil {
		return layout.Run{}, fmt.Errorf("decode run: %w", err)
	}
	return run, nil
}
