package testutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

// EnvHelperMode switches a re-executed test binary into helper-process mode.
const EnvHelperMode = "PLANTGRID_HELPER_MODE"

// Helper modes understood by RunHelperProcess.
const (
	ModeArgs    = "args"    // print each argument on its own stdout line
	ModeVersion = "version" // print an interpreter banner on stderr
	ModeMixed   = "mixed"   // write to stdout and stderr
	ModeLayout  = "layout"  // emulate the layout tool, honouring --out
	ModeKill    = "kill"    // terminate itself with SIGKILL
)

// ModeExit returns the mode that exits with code without output.
func ModeExit(code int) string { return "exit:" + strconv.Itoa(code) }

// ModeSleep returns the mode that sleeps for d and exits 0.
func ModeSleep(d time.Duration) string { return "sleep:" + d.String() }

// HelperVersionBanner is what ModeVersion prints.
const HelperVersionBanner = "Python 3.12.1"

// RunHelperProcess must be the first call of TestMain in packages that use
// HelperInterpreter. In helper mode it performs the requested behaviour and
// exits; otherwise it returns immediately.
func RunHelperProcess() {
	mode, ok := os.LookupEnv(EnvHelperMode)
	if !ok {
		return
	}
	os.Exit(helperMain(mode, os.Args[1:], os.Stdout, os.Stderr))
}

// HelperInterpreter makes the running test binary act as an interpreter in the
// given mode for child processes started by the test and returns its path.
func HelperInterpreter(t testing.TB, mode string) string {
	t.Helper()
	t.Setenv(EnvHelperMode, mode)
	return os.Args[0]
}

func helperMain(mode string, args []string, stdout, stderr io.Writer) int {
	switch {
	case mode == ModeArgs:
		for _, a := range args {
			_, _ = fmt.Fprintln(stdout, a)
		}
		return 0
	case mode == ModeVersion:
		_, _ = fmt.Fprintln(stderr, HelperVersionBanner)
		return 0
	case mode == ModeMixed:
		_, _ = fmt.Fprintln(stdout, "out-1")
		_, _ = fmt.Fprintln(stderr, "err-1")
		return 0
	case mode == ModeLayout:
		return helperLayout(args, stdout, stderr)
	case mode == ModeKill:
		if p, err := os.FindProcess(os.Getpid()); err == nil {
			_ = p.Kill()
		}
		time.Sleep(time.Minute)
		return 0
	case strings.HasPrefix(mode, "exit:"):
		code, err := strconv.Atoi(strings.TrimPrefix(mode, "exit:"))
		if err != nil {
			return 99
		}
		return code
	case strings.HasPrefix(mode, "sleep:"):
		d, err := time.ParseDuration(strings.TrimPrefix(mode, "sleep:"))
		if err != nil {
			return 99
		}
		time.Sleep(d)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown helper mode %q\n", mode)
		return 98
	}
}

// helperLayout expects: <script> <csv> <width> <height> --cell <c> [--out <dir>].
func helperLayout(args []string, stdout, stderr io.Writer) int {
	if len(args) < 6 || args[4] != "--cell" {
		_, _ = fmt.Fprintf(stderr, "usage: script csv width height --cell c [--out dir], got %q\n", args)
		return 2
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "read csv: %v\n", err)
		return 2
	}
	rows := 0
	if len(data) > 0 {
		rows = strings.Count(string(data), "\n")
	}
	if len(args) >= 8 && args[6] == "--out" {
		out := args[7]
		if err := os.MkdirAll(out, 0o755); err != nil {
			_, _ = fmt.Fprintf(stderr, "mkdir: %v\n", err)
			return 1
		}
		placement := fmt.Sprintf(`[{"rows":%d,"width":%s,"height":%s}]`, rows, args[2], args[3])
		if err := os.WriteFile(filepath.Join(out, "placement.json"), []byte(placement), 0o644); err != nil {
			return 1
		}
		if err := os.WriteFile(filepath.Join(out, "layout.png"), []byte("\x89PNG\r\n\x1a\n"), 0o644); err != nil {
			return 1
		}
	}
	_, _ = fmt.Fprintf(stdout, "placed %d plants\n", rows)
	return 0
}
