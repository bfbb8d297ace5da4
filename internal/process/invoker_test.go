package process

import (
	"bytes"
	"errors"
	"os/exec"
	"reflect"
	"strings"
	"testing"
	"time"

	"plantgrid/testutil"
)

func TestArgsLayout(t *testing.T) {
	inv := NewInvoker(Config{Interpreter: "python", Script: "/opt/plant_layout/main.py"})
	got := inv.Args("/tmp/plants.csv", Params{Width: 10, Height: 7.5})
	want := []string{"/opt/plant_layout/main.py", "/tmp/plants.csv", "10", "7.5", "--cell", "0.5"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Args = %q, want %q", got, want)
	}

	got = inv.Args("p.csv", Params{Width: 1, Height: 2, Cell: 0.25, OutDir: "/out"})
	want = []string{"/opt/plant_layout/main.py", "p.csv", "1", "2", "--cell", "0.25", "--out", "/out"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Args = %q, want %q", got, want)
	}
}

func TestDefaultInterpreter(t *testing.T) {
	inv := NewInvoker(Config{Script: "main.py"})
	if inv.cfg.Interpreter != DefaultInterpreter {
		t.Fatalf("expected default interpreter, got %q", inv.cfg.Interpreter)
	}
}

func TestRunExitZeroSucceeds(t *testing.T) {
	var stdout bytes.Buffer
	inv := NewInvoker(Config{
		Interpreter: testutil.HelperInterpreter(t, testutil.ModeArgs),
		Script:      "main.py",
		Stdout:      &stdout,
	})
	if err := inv.Run("plants.csv", Params{Width: 4, Height: 3}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	want := []string{"main.py", "plants.csv", "4", "3", "--cell", "0.5"}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("child saw %q, want %q", lines, want)
	}
}

func TestRunNonZeroExitCarriesCode(t *testing.T) {
	inv := NewInvoker(Config{Interpreter: testutil.HelperInterpreter(t, testutil.ModeExit(3)), Script: "main.py"})
	exe := inv.Start("plants.csv", Params{Width: 1, Height: 1})
	err := exe.Wait()
	if err == nil {
		t.Fatalf("expected failure")
	}
	if !strings.Contains(err.Error(), "3") {
		t.Fatalf("error %q does not mention exit code", err)
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 3 {
		t.Fatalf("expected ExitError code 3, got %#v", err)
	}
	if code, ok := exe.ExitCode(); !ok || code != 3 {
		t.Fatalf("ExitCode() = %d, %v", code, ok)
	}
	if code, ok := ExitCode(err); !ok || code != 3 {
		t.Fatalf("ExitCode(err) = %d, %v", code, ok)
	}
	if errors.Is(err, ErrLaunch) {
		t.Fatalf("exit failure must not look like a launch failure")
	}
}

func TestLaunchFailureCompletesExecution(t *testing.T) {
	inv := NewInvoker(Config{Interpreter: "plantgrid-definitely-missing-interpreter", Script: "main.py"})
	exe := inv.Start("plants.csv", Params{Width: 1, Height: 1})
	select {
	case <-exe.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("launch failure should complete immediately")
	}
	err := exe.Wait()
	if !errors.Is(err, ErrLaunch) {
		t.Fatalf("expected ErrLaunch, got %v", err)
	}
	var execErr *exec.Error
	if !errors.As(err, &execErr) {
		t.Fatalf("expected wrapped exec.Error, got %v", err)
	}
	if _, ok := exe.ExitCode(); ok {
		t.Fatalf("launch failure has no exit code")
	}
	if exe.Pid() != 0 {
		t.Fatalf("expected no pid, got %d", exe.Pid())
	}
}

func TestStartIsAsynchronous(t *testing.T) {
	inv := NewInvoker(Config{Interpreter: testutil.HelperInterpreter(t, testutil.ModeSleep(300*time.Millisecond)), Script: "main.py"})
	exe := inv.Start("plants.csv", Params{Width: 1, Height: 1})
	if exe.Err() != nil {
		t.Fatalf("running execution must not report an error")
	}
	if _, ok := exe.ExitCode(); ok {
		t.Fatalf("running execution must not report an exit code")
	}
	if exe.Pid() == 0 {
		t.Fatalf("expected a pid for a started process")
	}
	select {
	case <-exe.Done():
		t.Fatalf("Start should return before the child exits")
	default:
	}
	if err := exe.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if code, ok := exe.ExitCode(); !ok || code != 0 {
		t.Fatalf("ExitCode() = %d, %v", code, ok)
	}
}

func TestConcurrentExecutionsCompleteIndependently(t *testing.T) {
	interp := testutil.HelperInterpreter(t, testutil.ModeSleep(50*time.Millisecond))
	inv := NewInvoker(Config{Interpreter: interp, Script: "main.py"})
	execs := make([]*Execution, 4)
	for i := range execs {
		execs[i] = inv.Start("plants.csv", Params{Width: 1, Height: 1})
	}
	for i, exe := range execs {
		if err := exe.Wait(); err != nil {
			t.Fatalf("execution %d: %v", i, err)
		}
	}
}

func TestSignalTerminationHasNoExitCode(t *testing.T) {
	inv := NewInvoker(Config{Interpreter: testutil.HelperInterpreter(t, testutil.ModeKill), Script: "main.py"})
	exe := inv.Start("plants.csv", Params{Width: 1, Height: 1})
	err := exe.Wait()
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != -1 {
		t.Fatalf("expected abnormal ExitError, got %v", err)
	}
	if _, ok := exe.ExitCode(); ok {
		t.Fatalf("signal termination has no exit code")
	}
}

type failingRunner struct{ err error }

func (f failingRunner) Start(*exec.Cmd) error { return f.err }
func (f failingRunner) Wait(*exec.Cmd) error  { return nil }

func TestWithRunnerOverridesLaunch(t *testing.T) {
	boom := errors.New("boom")
	inv := NewInvoker(Config{Script: "main.py"}, WithRunner(failingRunner{err: boom}))
	err := inv.Run("plants.csv", Params{Width: 1, Height: 1})
	if !errors.Is(err, ErrLaunch) || !errors.Is(err, boom) {
		t.Fatalf("expected launch error wrapping boom, got %v", err)
	}
}

func TestExitErrorMessages(t *testing.T) {
	if got := (&ExitError{Code: 3}).Error(); got != "layout process exited with code 3" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := (&ExitError{Code: -1, State: "signal: killed"}).Error(); !strings.Contains(got, "signal: killed") {
		t.Fatalf("unexpected message %q", got)
	}
	if _, ok := ExitCode(errors.New("other")); ok {
		t.Fatalf("plain errors carry no exit code")
	}
}
