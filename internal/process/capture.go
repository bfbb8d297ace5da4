package process

import (
	"bytes"
	"os/exec"
	"strings"
	"sync"
)

// DefaultVersionInterpreter is probed when no interpreter is configured.
const DefaultVersionInterpreter = "python3"

// Output is the result of a capture-mode run.
type Output struct {
	// Text holds stdout and stderr chunks in arrival order, trimmed.
	Text string
	// Code is the exit status; nil when the process never started or was killed by a signal.
	Code *int
}

// lockedBuffer lets the stdout and stderr copiers append to one buffer.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Capture runs name with args, accumulating both output streams into one
// buffer, and returns once the process has exited and both streams are
// drained. A non-zero exit is not an error here; it is reported in Code.
func Capture(runner CommandRunner, name string, args ...string) (Output, error) {
	if runner == nil {
		runner = ExecRunner{}
	}
	cmd := exec.Command(name, args...)
	var out lockedBuffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := runner.Start(cmd); err != nil {
		return Output{}, launchError(name, err)
	}
	code, err := classify(runner.Wait(cmd))
	res := Output{Text: strings.TrimSpace(out.String())}
	if code >= 0 {
		res.Code = &code
	}
	if _, isExit := ExitCode(err); err != nil && !isExit {
		return res, err
	}
	return res, nil
}

// VersionReport is the payload of the interpreter version check.
type VersionReport struct {
	Version string `json:"version"`
	Code    *int   `json:"code"`
	Error   string `json:"error,omitempty"`
}

// VersionProbe asks an interpreter for its version.
type VersionProbe struct {
	interpreter string
	runner      CommandRunner
}

// NewVersionProbe returns a probe for interpreter (DefaultVersionInterpreter when empty).
func NewVersionProbe(interpreter string, runner CommandRunner) *VersionProbe {
	if interpreter == "" {
		interpreter = DefaultVersionInterpreter
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &VersionProbe{interpreter: interpreter, runner: runner}
}

// Interpreter returns the probed executable name.
func (p *VersionProbe) Interpreter() string { return p.interpreter }

// Check runs "<interpreter> --version". The report is always populated; the
// error is non-nil only when the interpreter could not be run.
func (p *VersionProbe) Check() (VersionReport, error) {
	out, err := Capture(p.runner, p.interpreter, "--version")
	report := VersionReport{Version: out.Text, Code: out.Code}
	if err != nil {
		report.Error = err.Error()
	}
	return report, err
}
