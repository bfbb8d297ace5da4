package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"plantgrid/internal/blob"
	"plantgrid/internal/config"
	"plantgrid/internal/csvexport"
	"plantgrid/internal/httpapi"
	"plantgrid/internal/layout"
	"plantgrid/internal/metrics"
	"plantgrid/internal/process"
	"plantgrid/internal/runstore"
	"plantgrid/pkg/plant"
)

const readHeaderTimeout = 10 * time.Second

type app struct {
	layouts *layout.Service
	runs    runstore.Store
	blobs   blob.Store
}

// newApp opens storage from cfg and wires the layout service. The layout
// tool writes to stdout and stderr.
func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger, stdout, stderr io.Writer, rec *metrics.Recorder) (*app, error) {
	blobs, err := blob.Open(ctx, blob.Options{
		Driver: blob.Driver(cfg.Blob.Driver),
		FSRoot: cfg.Blob.FSRoot,
		S3: blob.S3Config{
			Bucket:    cfg.Blob.S3.Bucket,
			Region:    cfg.Blob.S3.Region,
			Endpoint:  cfg.Blob.S3.Endpoint,
			PathStyle: cfg.Blob.S3.PathStyle,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	runs, err := runstore.Open(ctx, runstore.Driver(cfg.Store.Driver), cfg.Store.DSN)
	if err != nil {
		if cerr := closeBlobs(blobs); cerr != nil {
			logger.Warn().Err(cerr).Msg("close blob store")
		}
		return nil, fmt.Errorf("open run store: %w", err)
	}
	inv := process.NewInvoker(process.Config{
		Interpreter: cfg.Layout.Interpreter,
		Script:      cfg.Layout.Script,
		Stdout:      stdout,
		Stderr:      stderr,
	}, process.WithLogger(logger))

	opts := []layout.Option{
		layout.WithBlobStore(blobs),
		layout.WithLogger(logger),
		layout.WithOutputRoot(cfg.Layout.OutputRoot),
		layout.WithDefaultCell(cfg.Layout.DefaultCell),
	}
	if rec != nil {
		opts = append(opts, layout.WithMetrics(rec))
	}
	svc := layout.NewService(csvexport.NewWriter(cfg.Layout.CSVDir), inv, runs, opts...)
	return &app{layouts: svc, runs: runs, blobs: blobs}, nil
}

func (a *app) close() {
	_ = a.runs.Close()
	_ = closeBlobs(a.blobs)
}

// closeBlobs releases drivers that hold resources; the fs and memory stores
// hold none.
func closeBlobs(s blob.Store) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func layoutRequest(records []plant.Record, width, height, cell float64) layout.Request {
	return layout.Request{Records: records, Params: process.Params{Width: width, Height: height, Cell: cell}}
}

// runServer serves the API on cfg.Server.Addr until ctx is cancelled, then
// shuts down gracefully and waits for background layout runs. ready, when
// set, receives the bound address.
func runServer(ctx context.Context, cfg config.Config, logger zerolog.Logger, ready func(addr string)) error {
	rec := metrics.New(true)
	a, err := newApp(ctx, cfg, logger, nil, nil, rec)
	if err != nil {
		return err
	}
	defer a.close()

	handler := &httpapi.Handler{
		Layouts: a.layouts,
		Version: process.NewVersionProbe(cfg.Version.Interpreter, nil),
		Metrics: rec.Handler(),
		Logger:  logger,
	}
	srv := &http.Server{
		Handler:           httpapi.Instrument(handler, logger, rec),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	}
	logger.Info().Str("addr", ln.Addr().String()).
		Str("blob_driver", string(a.blobs.Driver())).
		Str("store_driver", cfg.Store.Driver).
		Str("interpreter", cfg.Version.Interpreter).
		Msg("plantgrid listening")
	if ready != nil {
		ready(ln.Addr().String())
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := a.layouts.Drain(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("layout runs still in flight at shutdown")
	}
	return nil
}
