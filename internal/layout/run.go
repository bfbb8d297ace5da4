package layout

import (
	"errors"
	"sort"
	"time"

	"plantgrid/internal/process"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ErrNotFound is returned for unknown run ids and artifact names.
var ErrNotFound = errors.New("layout run not found")

// Artifact is a file archived for a run.
type Artifact struct {
	Name        string `json:"name"`
	Key         string `json:"key"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size_bytes"`
}

// Run records one serialize-and-invoke cycle.
type Run struct {
	ID          string         `json:"id"`
	Status      Status         `json:"status"`
	Params      process.Params `json:"params"`
	RecordCount int            `json:"record_count"`
	CSVPath     string         `json:"csv_path,omitempty"`
	// ExitCode is nil until the process exits, and stays nil after a
	// launch failure or signal termination.
	ExitCode   *int       `json:"exit_code"`
	Error      string     `json:"error,omitempty"`
	Artifacts  []Artifact `json:"artifacts,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Artifact looks up an archived artifact by name.
func (r Run) Artifact(name string) (Artifact, bool) {
	for _, a := range r.Artifacts {
		if a.Name == name {
			return a, true
		}
	}
	return Artifact{}, false
}

// Clone returns a deep copy.
func (r Run) Clone() Run {
	if r.ExitCode != nil {
		code := *r.ExitCode
		r.ExitCode = &code
	}
	if r.FinishedAt != nil {
		at := *r.FinishedAt
		r.FinishedAt = &at
	}
	if r.Artifacts != nil {
		r.Artifacts = append([]Artifact(nil), r.Artifacts...)
	}
	return r
}

// SortNewestFirst orders runs by start time descending, breaking ties by id.
func SortNewestFirst(runs []Run) {
	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID > runs[j].ID
	})
}
