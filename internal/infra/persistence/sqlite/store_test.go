package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"plantgrid/internal/layout"
	"plantgrid/internal/process"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "nested", "runs.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	started := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	finished := started.Add(3 * time.Second)
	code := 3
	run := layout.Run{
		ID:          "run-1",
		Status:      layout.StatusFailed,
		Params:      process.Params{Width: 10, Height: 5, Cell: 0.5},
		RecordCount: 2,
		CSVPath:     "/tmp/selected-plants-1.csv",
		ExitCode:    &code,
		Error:       "layout process exited with code 3",
		Artifacts:   []layout.Artifact{{Name: "plants.csv", Key: "layouts/run-1/plants.csv", Size: 12}},
		StartedAt:   started,
		FinishedAt:  &finished,
	}
	if err := s.Save(ctx, run); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != layout.StatusFailed || got.ExitCode == nil || *got.ExitCode != 3 {
		t.Fatalf("unexpected run %+v", got)
	}
	if got.Params.Width != 10 || len(got.Artifacts) != 1 || !got.FinishedAt.Equal(finished) {
		t.Fatalf("fields lost in round trip: %+v", got)
	}
}

func TestStore_UpsertAndOrder(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		if err := s.Save(ctx, layout.Run{ID: id, Status: layout.StatusRunning, StartedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if err := s.Save(ctx, layout.Run{ID: "mid", Status: layout.StatusSucceeded, StartedAt: base.Add(time.Hour)}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	runs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 3 || runs[0].ID != "new" || runs[1].ID != "mid" || runs[2].ID != "old" {
		t.Fatalf("unexpected order %+v", runs)
	}
	if runs[1].Status != layout.StatusSucceeded {
		t.Fatalf("upsert lost: %+v", runs[1])
	}
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, layout.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Save(ctx, layout.Run{}); err == nil {
		t.Fatal("expected empty id error")
	}
	if _, err := s.DB().Exec(`INSERT INTO layout_runs (id, started_at, status, payload) VALUES ('bad', 0, 'x', 'not json')`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := s.Get(ctx, "bad"); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := s.List(ctx); err == nil {
		t.Fatal("expected decode error from list")
	}
}

func TestStore_ReopenKeepsRuns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, layout.Run{ID: "persisted", StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()
	reopened, err := NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = reopened.Close() }()
	if _, err := reopened.Get(ctx, "persisted"); err != nil {
		t.Fatalf("run lost after reopen: %v", err)
	}
	if reopened.Path() != path {
		t.Fatalf("path = %s", reopened.Path())
	}
}
