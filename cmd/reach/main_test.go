package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "charm.land/bubbletea/v2"
	serveradapter "github.com/quayside/reach/internal/adapters/server"
	"github.com/quayside/reach/internal/adapters/storage/sqlite"
	"github.com/quayside/reach/internal/config"
)

// TestMain sets deterministic environment defaults for CLI tests.
func TestMain(m *testing.M) {
	_ = os.Setenv("REACH_DEV_MODE", "false")
	os.Exit(m.Run())
}

// fakeProgram represents fake program data used by this package.
type fakeProgram struct {
	runErr error
}

// Run runs the requested command flow.
func (f fakeProgram) Run() (tea.Model, error) {
	return nil, f.runErr
}

// TestRunVersion verifies behavior for the covered scenario.
func TestRunVersion(t *testing.T) {
	var out strings.Builder
	err := run(context.Background(), []string{"--version"}, &out, io.Discard)
	if err != nil {
		t.Fatalf("run(version) error = %v", err)
	}
	if !strings.Contains(out.String(), "reach") {
		t.Fatalf("expected version output, got %q", out.String())
	}
}

// TestRunStartsProgram verifies behavior for the covered scenario.
func TestRunStartsProgram(t *testing.T) {
	origFactory := programFactory
	t.Cleanup(func() { programFactory = origFactory })
	programFactory = func(_ tea.Model) program {
		return fakeProgram{}
	}

	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	err := run(context.Background(), []string{"--config", cfgPath, "--api", "http://127.0.0.1:9"}, io.Discard, io.Discard)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
}

// TestRunInvalidFlag verifies behavior for the covered scenario.
func TestRunInvalidFlag(t *testing.T) {
	err := run(context.Background(), []string{"--nope"}, io.Discard, io.Discard)
	if err == nil {
		t.Fatal("expected flag parse error")
	}
}

// TestRunUnknownCommand verifies behavior for the covered scenario.
func TestRunUnknownCommand(t *testing.T) {
	err := run(context.Background(), []string{"transmogrify"}, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

// TestRunPathsCommand verifies behavior for the covered scenario.
func TestRunPathsCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reach.db")
	t.Setenv("REACH_DB_PATH", dbPath)

	var out strings.Builder
	err := run(context.Background(), []string{"paths"}, &out, io.Discard)
	if err != nil {
		t.Fatalf("run(paths) error = %v", err)
	}
	for _, want := range []string{"app: reach", "config:", "data_dir:", dbPath} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("paths output missing %q:\n%s", want, out.String())
		}
	}
}

// TestRunSeedCommandPopulatesDatabase verifies behavior for the covered scenario.
func TestRunSeedCommandPopulatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reach.db")
	cfgPath := filepath.Join(t.TempDir(), "config.toml")

	var out strings.Builder
	err := run(context.Background(), []string{"--db", dbPath, "--config", cfgPath, "seed"}, &out, io.Discard)
	if err != nil {
		t.Fatalf("run(seed) error = %v", err)
	}
	if !strings.Contains(out.String(), "seeded demo pipeline") {
		t.Fatalf("expected seed confirmation, got %q", out.String())
	}

	repo, err := sqlite.Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer repo.Close()
	items, err := repo.ListPipelineItems(context.Background())
	if err != nil {
		t.Fatalf("ListPipelineItems() error = %v", err)
	}
	if len(items) == 0 {
		t.Fatal("expected seeded pipeline items")
	}
}

// TestRunServeUsesConfiguredEndpoints verifies behavior for the covered scenario.
func TestRunServeUsesConfiguredEndpoints(t *testing.T) {
	origRunner := serveCommandRunner
	t.Cleanup(func() { serveCommandRunner = origRunner })

	var captured serveradapter.Config
	var capturedRepo *sqlite.Repository
	serveCommandRunner = func(_ context.Context, cfg serveradapter.Config, repo *sqlite.Repository) error {
		captured = cfg
		capturedRepo = repo
		return nil
	}

	dbPath := filepath.Join(t.TempDir(), "reach.db")
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	args := []string{"--db", dbPath, "--config", cfgPath, "serve", "-http", "127.0.0.1:0", "-api-endpoint", "/api/v2", "-seed"}
	if err := run(context.Background(), args, io.Discard, io.Discard); err != nil {
		t.Fatalf("run(serve) error = %v", err)
	}

	if captured.HTTPBind != "127.0.0.1:0" || captured.APIEndpoint != "/api/v2" || captured.MCPEndpoint != "/mcp" {
		t.Fatalf("unexpected serve config %+v", captured)
	}
	if captured.ServerName != "reach" || captured.ServerVersion != version {
		t.Fatalf("unexpected server identity %+v", captured)
	}
	if capturedRepo == nil {
		t.Fatal("expected repository passed to serve runner")
	}
}

// TestRunRejectsInvalidLoggingLevelFromConfig verifies behavior for the covered scenario.
func TestRunRejectsInvalidLoggingLevelFromConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	content := "[logging]\nlevel = \"chatty\"\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	err := run(context.Background(), []string{"--config", cfgPath}, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Fatalf("expected config load error, got %v", err)
	}
}

// TestRunDevModeWritesLogFile verifies behavior for the covered scenario.
func TestRunDevModeWritesLogFile(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "reach.db")
	cfgPath := filepath.Join(dir, "config.toml")
	logPath := filepath.Join(dir, "reach.log")
	content := "[logging]\nlevel = \"debug\"\ndev_file = \"" + strings.ReplaceAll(logPath, "\\", "\\\\") + "\"\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	args := []string{"--dev", "--db", dbPath, "--config", cfgPath, "seed"}
	if err := run(context.Background(), args, io.Discard, io.Discard); err != nil {
		t.Fatalf("run(seed) error = %v", err)
	}

	logged, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(logged), "command flow complete") {
		t.Fatalf("expected logfmt entries in dev log, got:\n%s", logged)
	}
}

// TestParseBoolEnv verifies behavior for the covered scenario.
func TestParseBoolEnv(t *testing.T) {
	t.Setenv("REACH_TEST_BOOL", "true")
	if v, ok := parseBoolEnv("REACH_TEST_BOOL"); !ok || !v {
		t.Fatalf("parseBoolEnv(true) = %v, %v", v, ok)
	}
	t.Setenv("REACH_TEST_BOOL", "not-a-bool")
	if _, ok := parseBoolEnv("REACH_TEST_BOOL"); ok {
		t.Fatal("expected parse failure for invalid bool")
	}
	t.Setenv("REACH_TEST_BOOL", "")
	if _, ok := parseBoolEnv("REACH_TEST_BOOL"); ok {
		t.Fatal("expected unset env to report not-ok")
	}
}

// TestRuntimeLoggerCanMuteConsoleSink verifies behavior for the covered scenario.
func TestRuntimeLoggerCanMuteConsoleSink(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newRuntimeLogger(&buf, "reach", false, config.LoggingConfig{Level: "info"}, "")
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}
	defer logger.Close()

	logger.Info("console visible")
	if !strings.Contains(buf.String(), "console visible") {
		t.Fatalf("expected console output, got %q", buf.String())
	}

	logger.SetConsoleEnabled(false)
	before := buf.Len()
	logger.Info("console muted")
	if buf.Len() != before {
		t.Fatalf("expected muted console, got %q", buf.String())
	}
}
