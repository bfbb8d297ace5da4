// Package process launches the external layout tool and interpreter probes.
//
// The layout invocation inherits the caller's standard streams and completes
// asynchronously through an Execution; the version probe captures combined
// output instead. Neither path applies timeouts, retries or cancellation.
package process

import (
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/rs/zerolog"

	"plantgrid/pkg/plant"
)

// DefaultCell is the grid cell size used when Params.Cell is zero.
const DefaultCell = 0.5

// DefaultInterpreter launches the layout script when Config.Interpreter is empty.
const DefaultInterpreter = "python"

// Params carries the numeric layout arguments.
type Params struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Cell   float64 `json:"cell"`
	// OutDir, when set, is forwarded as --out so the tool writes its results there.
	OutDir string `json:"-"`
}

// CellOrDefault returns Cell, substituting DefaultCell for zero.
func (p Params) CellOrDefault() float64 {
	if p.Cell == 0 {
		return DefaultCell
	}
	return p.Cell
}

// Config fixes the program an Invoker launches.
type Config struct {
	Interpreter string
	Script      string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Invoker runs the layout script. It is safe for concurrent use; every Start
// owns its child process.
type Invoker struct {
	cfg    Config
	runner CommandRunner
	logger zerolog.Logger
}

// Option customises an Invoker.
type Option func(*Invoker)

// WithRunner replaces the os/exec runner.
func WithRunner(r CommandRunner) Option { return func(i *Invoker) { i.runner = r } }

// WithLogger attaches a logger for lifecycle events.
func WithLogger(l zerolog.Logger) Option { return func(i *Invoker) { i.logger = l } }

// NewInvoker constructs an Invoker. Unset streams default to the process's own.
func NewInvoker(cfg Config, opts ...Option) *Invoker {
	if cfg.Interpreter == "" {
		cfg.Interpreter = DefaultInterpreter
	}
	if cfg.Stdin == nil {
		cfg.Stdin = os.Stdin
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	inv := &Invoker{cfg: cfg, runner: ExecRunner{}, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Args builds the argument vector: script, csv path, width, height, --cell.
func (i *Invoker) Args(csvPath string, p Params) []string {
	args := []string{
		i.cfg.Script,
		csvPath,
		plant.FormatNumber(p.Width),
		plant.FormatNumber(p.Height),
		"--cell", plant.FormatNumber(p.CellOrDefault()),
	}
	if p.OutDir != "" {
		args = append(args, "--out", p.OutDir)
	}
	return args
}

// Start spawns the layout process and returns immediately. Launch failures
// complete the returned Execution with an error wrapping ErrLaunch.
func (i *Invoker) Start(csvPath string, p Params) *Execution {
	cmd := exec.Command(i.cfg.Interpreter, i.Args(csvPath, p)...)
	cmd.Stdin = i.cfg.Stdin
	cmd.Stdout = i.cfg.Stdout
	cmd.Stderr = i.cfg.Stderr

	exe := newExecution()
	if err := i.runner.Start(cmd); err != nil {
		i.logger.Error().Err(err).Str("interpreter", i.cfg.Interpreter).Msg("layout process launch failed")
		exe.complete(-1, launchError(i.cfg.Interpreter, err))
		return exe
	}
	if cmd.Process != nil {
		exe.pid = cmd.Process.Pid
	}
	i.logger.Debug().Int("pid", exe.pid).Strs("args", cmd.Args).Msg("layout process started")

	go func() {
		code, err := classify(i.runner.Wait(cmd))
		i.logger.Debug().Int("pid", exe.pid).Int("exit_code", code).Msg("layout process exited")
		exe.complete(code, err)
	}()
	return exe
}

// Run starts the layout process and waits for it to exit.
func (i *Invoker) Run(csvPath string, p Params) error {
	return i.Start(csvPath, p).Wait()
}

// Execution is the single-shot completion handle of a started process.
type Execution struct {
	done chan struct{}
	once sync.Once
	pid  int
	code int
	err  error
}

func newExecution() *Execution {
	return &Execution{done: make(chan struct{}), code: -1}
}

func (e *Execution) complete(code int, err error) {
	e.once.Do(func() {
		e.code = code
		e.err = err
		close(e.done)
	})
}

// Done is closed once the process has exited or failed to launch.
func (e *Execution) Done() <-chan struct{} { return e.done }

// Wait blocks until completion and returns nil only for exit status zero.
func (e *Execution) Wait() error {
	<-e.done
	return e.err
}

// Err returns the completion error, or nil while the process is still running.
func (e *Execution) Err() error {
	select {
	case <-e.done:
		return e.err
	default:
		return nil
	}
}

// ExitCode returns the exit status once known. It reports false while running,
// after a launch failure and after termination by a signal.
func (e *Execution) ExitCode() (int, bool) {
	select {
	case <-e.done:
		return e.code, e.code >= 0
	default:
		return 0, false
	}
}

// Pid returns the child's process id, or 0 when it never started.
func (e *Execution) Pid() int { return e.pid }
