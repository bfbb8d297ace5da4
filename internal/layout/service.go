// Package layout orchestrates a layout run: the plant records are written to
// CSV, the external layout tool is invoked on it, and the outcome plus any
// produced files are recorded.
package layout

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"plantgrid/internal/blob"
	"plantgrid/internal/process"
	"plantgrid/pkg/plant"
)

// Names of archived artifacts.
const (
	ArtifactCSV       = "plants.csv"
	ArtifactPlacement = "placement.json"
	ArtifactImage     = "layout.png"
)

var outputArtifacts = []struct{ name, contentType string }{
	{ArtifactPlacement, "application/json"},
	{ArtifactImage, "image/png"},
}

// Serializer writes records to a file and returns its path.
type Serializer interface {
	Write(records []plant.Record) (string, error)
}

// Invoker starts the external layout tool.
type Invoker interface {
	Start(csvPath string, p process.Params) *process.Execution
}

// RunStore persists run records.
type RunStore interface {
	Save(ctx context.Context, run Run) error
	Get(ctx context.Context, id string) (Run, error)
	List(ctx context.Context) ([]Run, error)
}

// Recorder receives run metrics.
type Recorder interface {
	ObserveRun(status string, duration time.Duration, records int)
}

// Request is the input of a single run.
type Request struct {
	Records []plant.Record
	Params  process.Params
}

// Service runs layouts. It is safe for concurrent use.
type Service struct {
	csv        Serializer
	invoker    Invoker
	runs       RunStore
	blobs      blob.Store
	metrics    Recorder
	logger     zerolog.Logger
	outputRoot string
	cell       float64
	now        func() time.Time
	newID      func() string
	inflight   sync.WaitGroup
}

// Option customises a Service.
type Option func(*Service)

// WithBlobStore archives the CSV and tool outputs of every run.
func WithBlobStore(s blob.Store) Option { return func(svc *Service) { svc.blobs = s } }

// WithMetrics reports run outcomes to r.
func WithMetrics(r Recorder) Option { return func(svc *Service) { svc.metrics = r } }

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option { return func(svc *Service) { svc.logger = l } }

// WithOutputRoot makes each run pass --out <root>/<run id> to the tool.
func WithOutputRoot(dir string) Option { return func(svc *Service) { svc.outputRoot = dir } }

// WithDefaultCell sets the cell size used when a request leaves it zero.
func WithDefaultCell(c float64) Option {
	return func(svc *Service) {
		if c > 0 {
			svc.cell = c
		}
	}
}

// NewService wires the serializer, invoker and run store.
func NewService(csv Serializer, inv Invoker, runs RunStore, opts ...Option) *Service {
	svc := &Service{
		csv:     csv,
		invoker: inv,
		runs:    runs,
		logger:  zerolog.Nop(),
		cell:    process.DefaultCell,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Run serializes req.Records, runs the layout tool and waits for it. The
// returned Run reflects the final state even when err is non-nil; err is the
// serializer or process error unchanged. Once the run is recorded, ctx
// cancellation no longer affects it: the tool is not interruptible, so its
// outcome and artifacts are always stored.
func (s *Service) Run(ctx context.Context, req Request) (Run, error) {
	run, err := s.begin(ctx, req)
	if err != nil {
		return run, err
	}
	return s.execute(context.WithoutCancel(ctx), run, req)
}

// Submit records a running run and completes it in the background. Poll Get
// for the outcome; Drain waits for all submitted runs.
func (s *Service) Submit(ctx context.Context, req Request) (Run, error) {
	run, err := s.begin(ctx, req)
	if err != nil {
		return run, err
	}
	bg := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		_, _ = s.execute(bg, run, req)
	}()
	return run, nil
}

// Drain blocks until every submitted run has finished or ctx is done.
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) begin(ctx context.Context, req Request) (Run, error) {
	run := Run{
		ID:          s.newID(),
		Status:      StatusRunning,
		Params:      req.Params,
		RecordCount: len(req.Records),
		StartedAt:   s.now(),
	}
	if run.Params.Cell == 0 {
		run.Params.Cell = s.cell
	}
	if err := s.runs.Save(ctx, run); err != nil {
		return Run{}, fmt.Errorf("record run: %w", err)
	}
	return run, nil
}

func (s *Service) execute(ctx context.Context, run Run, req Request) (Run, error) {
	log := s.logger.With().Str("run_id", run.ID).Logger()

	csvPath, err := s.csv.Write(req.Records)
	if err != nil {
		log.Error().Err(err).Msg("serialize plants")
		return s.finish(ctx, log, run, err)
	}
	run.CSVPath = csvPath

	params := run.Params
	if s.outputRoot != "" {
		params.OutDir = filepath.Join(s.outputRoot, run.ID)
		if err := os.MkdirAll(params.OutDir, 0o755); err != nil {
			return s.finish(ctx, log, run, fmt.Errorf("create output dir: %w", err))
		}
	}
	log.Info().Str("csv", csvPath).Int("records", run.RecordCount).
		Float64("width", params.Width).Float64("height", params.Height).
		Float64("cell", params.CellOrDefault()).Msg("layout started")

	exe := s.invoker.Start(csvPath, params)
	runErr := exe.Wait()
	if code, ok := exe.ExitCode(); ok {
		run.ExitCode = &code
	}
	run.Artifacts = s.archive(ctx, log, run.ID, csvPath, params.OutDir)
	return s.finish(ctx, log, run, runErr)
}

func (s *Service) finish(ctx context.Context, log zerolog.Logger, run Run, runErr error) (Run, error) {
	finished := s.now()
	run.FinishedAt = &finished
	run.Status = StatusSucceeded
	if runErr != nil {
		run.Status = StatusFailed
		run.Error = runErr.Error()
	}
	elapsed := finished.Sub(run.StartedAt)
	if s.metrics != nil {
		s.metrics.ObserveRun(string(run.Status), elapsed, run.RecordCount)
	}
	ev := log.Info()
	if runErr != nil {
		ev = log.Warn().Err(runErr)
	}
	ev.Str("status", string(run.Status)).Dur("elapsed", elapsed).Msg("layout finished")

	if err := s.runs.Save(ctx, run); err != nil {
		log.Error().Err(err).Msg("record run")
		if runErr == nil {
			runErr = fmt.Errorf("record run: %w", err)
		}
	}
	return run, runErr
}

// archive copies the CSV and any tool outputs into the blob store. Failures
// are logged and skipped; they never fail the run.
func (s *Service) archive(ctx context.Context, log zerolog.Logger, id, csvPath, outDir string) []Artifact {
	if s.blobs == nil {
		return nil
	}
	var out []Artifact
	put := func(name, contentType, src string) {
		data, err := os.ReadFile(src)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				log.Warn().Err(err).Str("artifact", name).Msg("read artifact")
			}
			return
		}
		key := ArtifactKey(id, name)
		info, err := s.blobs.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{
			ContentType: contentType,
			Metadata:    map[string]string{"run-id": id},
		})
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("archive artifact")
			return
		}
		out = append(out, Artifact{Name: name, Key: key, ContentType: contentType, Size: info.Size})
	}
	put(ArtifactCSV, "text/csv", csvPath)
	if outDir != "" {
		for _, a := range outputArtifacts {
			put(a.name, a.contentType, filepath.Join(outDir, a.name))
		}
	}
	return out
}

// ArtifactKey is the blob key of a run artifact.
func ArtifactKey(runID, name string) string {
	return path.Join("layouts", runID, name)
}

// Get returns the run with id.
func (s *Service) Get(ctx context.Context, id string) (Run, error) {
	return s.runs.Get(ctx, id)
}

// List returns all recorded runs, newest first.
func (s *Service) List(ctx context.Context) ([]Run, error) {
	runs, err := s.runs.List(ctx)
	if err != nil {
		return nil, err
	}
	SortNewestFirst(runs)
	return runs, nil
}

// OpenArtifact streams an archived artifact. The caller closes the reader.
func (s *Service) OpenArtifact(ctx context.Context, id, name string) (Artifact, io.ReadCloser, error) {
	a, err := s.artifact(ctx, id, name)
	if err != nil {
		return Artifact{}, nil, err
	}
	_, rc, err := s.blobs.Get(ctx, a.Key)
	if errors.Is(err, blob.ErrNotFound) {
		return Artifact{}, nil, fmt.Errorf("%w: artifact %s of run %s", ErrNotFound, name, id)
	}
	if err != nil {
		return Artifact{}, nil, err
	}
	return a, rc, nil
}

// ArtifactURL returns a time-limited download link for an artifact, or an
// error wrapping blob.ErrUnsupported when the store cannot sign URLs.
func (s *Service) ArtifactURL(ctx context.Context, id, name string, ttl time.Duration) (string, error) {
	a, err := s.artifact(ctx, id, name)
	if err != nil {
		return "", err
	}
	return s.blobs.SignedURL(ctx, a.Key, ttl)
}

func (s *Service) artifact(ctx context.Context, id, name string) (Artifact, error) {
	run, err := s.runs.Get(ctx, id)
	if err != nil {
		return Artifact{}, err
	}
	a, ok := run.Artifact(name)
	if !ok || s.blobs == nil {
		return Artifact{}, fmt.Errorf("%w: artifact %s of run %s", ErrNotFound, name, id)
	}
	return a, nil
}
