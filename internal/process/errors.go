package process

import (
	"errors"
	"fmt"
	"os/exec"
)

// ErrLaunch marks failures to start the external program (not found, not
// executable). It is matched with errors.Is.
var ErrLaunch = errors.New("process: launch failed")

// ExitError reports a layout process that ran and exited unsuccessfully.
type ExitError struct {
	// Code is the exit status, or -1 when the process was terminated by a signal.
	Code int
	// State is the OS description of the termination ("exit status 3", "signal: killed").
	State string
}

func (e *ExitError) Error() string {
	if e.Code < 0 {
		return fmt.Sprintf("layout process terminated abnormally (%s)", e.State)
	}
	return fmt.Sprintf("layout process exited with code %d", e.Code)
}

// ExitCode extracts the exit status from an error returned by this package.
func ExitCode(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}

// classify maps an os/exec wait error to the exit code and the error surfaced
// to callers. code is -1 when no exit status is available.
func classify(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		return code, &ExitError{Code: code, State: exitErr.ProcessState.String()}
	}
	return -1, fmt.Errorf("process: wait: %w", err)
}

func launchError(name string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrLaunch, name, err)
}
