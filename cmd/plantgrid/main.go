// Command plantgrid serializes plant selections and drives the external
// layout tool, either as an HTTP service or one run at a time.
//
//	plantgrid serve   [-config file]
//	plantgrid layout  [-config file] -width W -height H [-cell C] plants.json
//	plantgrid version [-config file]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"plantgrid/internal/config"
	"plantgrid/internal/logging"
	"plantgrid/internal/process"
	"plantgrid/pkg/plant"
)

var exitFunc = os.Exit

const usage = `usage: plantgrid <command> [flags]

commands:
  serve     run the HTTP API
  layout    run one layout from a JSON array of plant records ("-" reads stdin)
  version   print the interpreter version report
`

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	switch args[0] {
	case "serve":
		return serveCmd(args[1:], stderr)
	case "layout":
		return layoutCmd(args[1:], stdout, stderr)
	case "version":
		return versionCmd(args[1:], stdout, stderr)
	case "-h", "-help", "--help", "help":
		_, _ = fmt.Fprint(stdout, usage)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
}

// loadConfig reads the optional config file and builds the logger.
func loadConfig(path string, stderr io.Writer) (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	logger := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Out: stderr})
	return cfg, logger, nil
}

func serveCmd(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to TOML config")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, logger, err := loadConfig(*configPath, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := runServer(ctx, cfg, logger, nil); err != nil {
		logger.Error().Err(err).Msg("server stopped")
		return 1
	}
	return 0
}

func layoutCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("layout", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to TOML config")
	width := fs.Float64("width", 0, "layout area width")
	height := fs.Float64("height", 0, "layout area height")
	cell := fs.Float64("cell", 0, "grid cell size (config default when 0)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 || *width <= 0 || *height <= 0 || *cell < 0 {
		_, _ = fmt.Fprintln(stderr, "usage: plantgrid layout -width W -height H [-cell C] plants.json")
		return 2
	}
	records, err := readRecords(fs.Arg(0))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "read plants: %v\n", err)
		return 1
	}
	cfg, logger, err := loadConfig(*configPath, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger, stdout, stderr, nil)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	defer a.close()

	run, err := a.layouts.Run(ctx, layoutRequest(records, *width, *height, *cell))
	if err == nil {
		logger.Info().Str("run_id", run.ID).Int("artifacts", len(run.Artifacts)).Msg("layout complete")
		return 0
	}
	_, _ = fmt.Fprintf(stderr, "layout failed: %v\n", err)
	if code, ok := process.ExitCode(err); ok && code > 0 {
		return code
	}
	return 1
}

func versionCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to TOML config")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, _, err := loadConfig(*configPath, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	report, _ := process.NewVersionProbe(cfg.Version.Interpreter, nil).Check()
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return 1
	}
	if report.Code == nil || *report.Code != 0 {
		return 1
	}
	return 0
}

func readRecords(path string) ([]plant.Record, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	var records []plant.Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if records == nil {
		return nil, errors.New("expected a JSON array of plant records")
	}
	return records, nil
}
