package process

import (
	"errors"
	"strings"
	"testing"

	"plantgrid/testutil"
)

func TestVersionProbeCapturesStderr(t *testing.T) {
	probe := NewVersionProbe(testutil.HelperInterpreter(t, testutil.ModeVersion), nil)
	report, err := probe.Check()
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if report.Version != testutil.HelperVersionBanner {
		t.Fatalf("version = %q, want %q", report.Version, testutil.HelperVersionBanner)
	}
	if report.Code == nil || *report.Code != 0 {
		t.Fatalf("expected code 0, got %v", report.Code)
	}
	if report.Error != "" {
		t.Fatalf("unexpected error field %q", report.Error)
	}
}

func TestVersionProbeDefaults(t *testing.T) {
	probe := NewVersionProbe("", nil)
	if probe.Interpreter() != DefaultVersionInterpreter {
		t.Fatalf("expected %q, got %q", DefaultVersionInterpreter, probe.Interpreter())
	}
}

func TestVersionProbeMissingInterpreter(t *testing.T) {
	probe := NewVersionProbe("plantgrid-definitely-missing-interpreter", nil)
	report, err := probe.Check()
	if !errors.Is(err, ErrLaunch) {
		t.Fatalf("expected ErrLaunch, got %v", err)
	}
	if report.Code != nil {
		t.Fatalf("expected nil code, got %d", *report.Code)
	}
	if report.Error == "" {
		t.Fatalf("expected error text in report")
	}
}

func TestCaptureMergesStreams(t *testing.T) {
	out, err := Capture(nil, testutil.HelperInterpreter(t, testutil.ModeMixed))
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if !strings.Contains(out.Text, "out-1") || !strings.Contains(out.Text, "err-1") {
		t.Fatalf("expected both streams in %q", out.Text)
	}
	if out.Text != strings.TrimSpace(out.Text) {
		t.Fatalf("output should be trimmed: %q", out.Text)
	}
}

func TestCaptureReportsNonZeroExit(t *testing.T) {
	out, err := Capture(ExecRunner{}, testutil.HelperInterpreter(t, testutil.ModeExit(4)))
	if err != nil {
		t.Fatalf("non-zero exit is reported through Code, got error %v", err)
	}
	if out.Code == nil || *out.Code != 4 {
		t.Fatalf("expected code 4, got %v", out.Code)
	}
}

func TestCaptureSignalLeavesCodeNil(t *testing.T) {
	out, err := Capture(nil, testutil.HelperInterpreter(t, testutil.ModeKill))
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if out.Code != nil {
		t.Fatalf("expected nil code after signal, got %d", *out.Code)
	}
}
