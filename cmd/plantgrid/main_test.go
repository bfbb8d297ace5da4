package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"plantgrid/internal/blob"
	"plantgrid/internal/config"
	"plantgrid/internal/runstore"
	"plantgrid/testutil"
)

func TestMain(m *testing.M) {
	testutil.RunHelperProcess()
	os.Exit(m.Run())
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := cli(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// isolate points every storage and output location at a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.EnvBlobDriver, "fs")
	t.Setenv(config.EnvBlobFSRoot, filepath.Join(dir, "blobs"))
	t.Setenv(config.EnvCSVDir, dir)
	t.Setenv(config.EnvLayoutOutputRoot, filepath.Join(dir, "out"))
	t.Setenv(config.EnvStoreDriver, "sqlite")
	t.Setenv(config.EnvStoreDSN, filepath.Join(dir, "runs.db"))
	t.Setenv(config.EnvLogFormat, "json")
	return dir
}

func writePlants(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCLIUsage(t *testing.T) {
	if code, _, stderr := runCLI(); code != 2 || !strings.Contains(stderr, "usage") {
		t.Fatalf("no args: %d %q", code, stderr)
	}
	if code, stdout, _ := runCLI("help"); code != 0 || !strings.Contains(stdout, "serve") {
		t.Fatalf("help: %d %q", code, stdout)
	}
	if code, _, stderr := runCLI("dance"); code != 2 || !strings.Contains(stderr, `unknown command "dance"`) {
		t.Fatalf("unknown: %d %q", code, stderr)
	}
}

func TestVersionCommand(t *testing.T) {
	isolate(t)
	t.Setenv(config.EnvPython, testutil.HelperInterpreter(t, testutil.ModeVersion))
	code, stdout, stderr := runCLI("version")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	var report map[string]any
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("decode %q: %v", stdout, err)
	}
	if report["version"] != testutil.HelperVersionBanner || report["code"] != float64(0) {
		t.Fatalf("unexpected report %v", report)
	}
}

func TestVersionCommandMissingInterpreter(t *testing.T) {
	isolate(t)
	t.Setenv(config.EnvPython, filepath.Join(t.TempDir(), "no-python"))
	code, stdout, _ := runCLI("version")
	if code != 1 || !strings.Contains(stdout, `"code": null`) {
		t.Fatalf("exit %d, stdout %q", code, stdout)
	}
}

func TestLayoutCommand(t *testing.T) {
	dir := isolate(t)
	t.Setenv(config.EnvLayoutInterpreter, testutil.HelperInterpreter(t, testutil.ModeLayout))
	plants := writePlants(t, dir, "plants.json", `[{"scientific_name":"Pinus densiflora","max_height_m":35}]`)

	code, stdout, stderr := runCLI("layout", "-width", "10", "-height", "8", plants)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "placed 1 plants") {
		t.Fatalf("tool stdout not inherited: %q", stdout)
	}
	if !strings.Contains(stderr, "layout complete") {
		t.Fatalf("missing completion log: %q", stderr)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "blobs", "layouts", "*", "placement.json"))
	if len(matches) != 1 {
		t.Fatalf("expected archived placement, got %v", matches)
	}
}

func TestLayoutCommandPropagatesExitCode(t *testing.T) {
	dir := isolate(t)
	t.Setenv(config.EnvLayoutInterpreter, testutil.HelperInterpreter(t, testutil.ModeExit(5)))
	plants := writePlants(t, dir, "empty.json", `[]`)
	code, _, stderr := runCLI("layout", "-width", "1", "-height", "1", plants)
	if code != 5 || !strings.Contains(stderr, "exited with code 5") {
		t.Fatalf("exit %d: %s", code, stderr)
	}
}

func TestLayoutCommandErrors(t *testing.T) {
	dir := isolate(t)
	plants := writePlants(t, dir, "empty.json", `[]`)
	badConfig := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(badConfig, []byte("[store]\ndriver = \"mongo\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(config.EnvStoreDriver, "")

	cases := []struct {
		name string
		args []string
		want int
	}{
		{"missing file arg", []string{"layout", "-width", "1", "-height", "1"}, 2},
		{"zero width", []string{"layout", "-height", "1", plants}, 2},
		{"bad flag", []string{"layout", "-bogus"}, 2},
		{"unreadable plants", []string{"layout", "-width", "1", "-height", "1", filepath.Join(dir, "none.json")}, 1},
		{"not an array", []string{"layout", "-width", "1", "-height", "1", writePlants(t, dir, "null.json", `null`)}, 1},
		{"invalid config", []string{"layout", "-config", badConfig, "-width", "1", "-height", "1", plants}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if code, _, stderr := runCLI(tc.args...); code != tc.want {
				t.Fatalf("exit %d, want %d: %s", code, tc.want, stderr)
			}
		})
	}
}

func TestRunServer(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Blob.Driver = "memory"
	cfg.Layout.CSVDir = dir
	cfg.Version.Interpreter = testutil.HelperInterpreter(t, testutil.ModeVersion)

	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() { errCh <- runServer(ctx, cfg, zerolog.Nop(), func(addr string) { addrCh <- addr }) }()

	var addr string
	select {
	case addr = <-addrCh:
	case err := <-errCh:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr + "/python-version")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), testutil.HelperVersionBanner) {
		t.Fatalf("python-version: %d %s", resp.StatusCode, body)
	}

	resp, err = http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(body), `plantgrid_http_requests_total{method="GET",path="/python-version",status="200"} 1`) {
		t.Fatalf("metrics missing request counter:\n%s", body)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("runServer: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRunServerListenError(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = taken.Close() }()
	cfg := config.Default()
	cfg.Server.Addr = taken.Addr().String()
	cfg.Blob.Driver = "memory"
	if err := runServer(context.Background(), cfg, zerolog.Nop(), nil); err == nil {
		t.Fatal("expected listen error")
	}
}

func TestMainUsesExitFunc(t *testing.T) {
	var codes []int
	old := exitFunc
	exitFunc = func(code int) { codes = append(codes, code) }
	defer func() { exitFunc = old }()
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{"plantgrid", "help"}
	main()
	os.Args = []string{"plantgrid"}
	main()
	if len(codes) != 2 || codes[0] != 0 || codes[1] != 2 {
		t.Fatalf("unexpected exit codes %v", codes)
	}
}

type closingStore struct {
	blob.Store
	closed int
}

func (c *closingStore) Close() error {
	c.closed++
	return nil
}

func TestCloseBlobs(t *testing.T) {
	if err := closeBlobs(blob.NewMemory()); err != nil {
		t.Fatalf("memory store: %v", err)
	}
	cs := &closingStore{Store: blob.NewMemory()}
	if err := closeBlobs(cs); err != nil || cs.closed != 1 {
		t.Fatalf("closer not released: %v %d", err, cs.closed)
	}
	a := &app{runs: nopRuns{}, blobs: cs}
	a.close()
	if cs.closed != 2 {
		t.Fatalf("app.close must release the blob store, closed=%d", cs.closed)
	}
}

func TestNewAppRunStoreFailure(t *testing.T) {
	cfg := config.Default()
	cfg.Blob.Driver = "memory"
	cfg.Store.Driver = "mongo"
	if _, err := newApp(context.Background(), cfg, zerolog.Nop(), io.Discard, io.Discard, nil); err == nil ||
		!strings.Contains(err.Error(), "open run store") {
		t.Fatalf("expected run store error, got %v", err)
	}
}

type nopRuns struct{ runstore.Store }

func (nopRuns) Close() error { return nil }
