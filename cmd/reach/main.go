package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "charm.land/bubbletea/v2"
	charmLog "github.com/charmbracelet/log"
	"github.com/quayside/reach/internal/adapters/gateway/httpgw"
	serveradapter "github.com/quayside/reach/internal/adapters/server"
	"github.com/quayside/reach/internal/adapters/storage/sqlite"
	"github.com/quayside/reach/internal/config"
	"github.com/quayside/reach/internal/platform"
	"github.com/quayside/reach/internal/tui"
	"github.com/quayside/reach/internal/viewmodel"
)

// version stores a package-level helper value.
var version = "dev"

// program represents program data used by this package.
type program interface {
	Run() (tea.Model, error)
}

// programFactory stores a package-level helper value.
var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

// serveCommandRunner starts the HTTP+MCP serve flow.
var serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, repo *sqlite.Repository) error {
	return serveradapter.Run(ctx, cfg, repo)
}

// main handles main.
func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// run runs the requested command flow.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("reach", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		configPath string
		dbPath     string
		apiBaseURL string
		appName    string
		devMode    bool
		showVer    bool
	)
	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("REACH_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	if envApp := strings.TrimSpace(os.Getenv("REACH_APP_NAME")); envApp != "" {
		appName = envApp
	} else {
		appName = "reach"
	}
	fs.StringVar(&configPath, "config", "", "path to config TOML")
	fs.StringVar(&dbPath, "db", "", "path to sqlite database (serve/seed)")
	fs.StringVar(&apiBaseURL, "api", "", "pipeline API base URL")
	fs.StringVar(&appName, "app", appName, "application name for config/data path resolution")
	fs.BoolVar(&devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")
	fs.BoolVar(&showVer, "version", false, "show version")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showVer {
		_, _ = fmt.Fprintf(stdout, "reach %s\n", version)
		return nil
	}

	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: appName,
		DevMode: devMode,
	})
	if err != nil {
		return err
	}

	command := firstArg(fs.Args())
	switch command {
	case "paths":
		_, _ = fmt.Fprintf(stdout, "app: %s\n", appName)
		_, _ = fmt.Fprintf(stdout, "dev_mode: %t\n", devMode)
		_, _ = fmt.Fprintf(stdout, "config: %s\n", paths.ConfigPath)
		_, _ = fmt.Fprintf(stdout, "data_dir: %s\n", paths.DataDir)
		_, _ = fmt.Fprintf(stdout, "db: %s\n", paths.DBPath)
		_, _ = fmt.Fprintf(stdout, "log: %s\n", paths.LogPath)
		return nil
	case "", "serve", "seed":
		// Continue.
	default:
		return fmt.Errorf("unknown command: %s", command)
	}

	dbOverridden := strings.TrimSpace(dbPath) != ""
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("REACH_CONFIG_PATH")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv("REACH_DB_PATH")); envPath != "" {
			dbPath = envPath
			dbOverridden = true
		} else {
			dbPath = paths.DBPath
		}
	}

	defaultCfg := config.Default(dbPath)
	cfg, err := config.Load(configPath, defaultCfg)
	if err != nil {
		return fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Serve.DatabasePath = dbPath
	}
	if apiBaseURL = strings.TrimSpace(apiBaseURL); apiBaseURL != "" {
		cfg.API.BaseURL = apiBaseURL
	}

	logger, err := newRuntimeLogger(stderr, appName, devMode, cfg.Logging, paths.LogPath)
	if err != nil {
		return fmt.Errorf("configure runtime logger: %w", err)
	}
	if command == "" {
		// Keep TUI rendering clean: runtime logs stay in the dev-file sink while the board is active.
		logger.SetConsoleEnabled(false)
	}
	defer func() {
		if closeErr := logger.Close(); closeErr != nil && logger.shouldLogToSink(logger.consoleSink) {
			_, _ = fmt.Fprintf(stderr, "warning: close runtime log sink: %v\n", closeErr)
		}
	}()

	logger.Info("startup configuration resolved", "app", appName, "dev_mode", devMode, "command", command)
	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir, "db_path", cfg.Serve.DatabasePath)
	logger.Info("configuration loaded", "config_path", configPath, "api_base_url", cfg.API.BaseURL, "log_level", cfg.Logging.Level)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	switch command {
	case "serve":
		logger.Info("command flow start", "command", "serve")
		if err := runServe(ctx, cfg, fs.Args()[1:], appName, logger); err != nil {
			logger.Error("command flow failed", "command", "serve", "err", err)
			return fmt.Errorf("run serve command: %w", err)
		}
		logger.Info("command flow complete", "command", "serve")
		return nil
	case "seed":
		logger.Info("command flow start", "command", "seed")
		if err := runSeed(ctx, cfg, fs.Args()[1:], stdout, logger); err != nil {
			logger.Error("command flow failed", "command", "seed", "err", err)
			return fmt.Errorf("run seed command: %w", err)
		}
		logger.Info("command flow complete", "command", "seed")
		return nil
	}

	logger.Info("command flow start", "command", "tui")
	gateway, err := httpgw.New(httpgw.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: time.Duration(cfg.API.TimeoutMS) * time.Millisecond,
	})
	if err != nil {
		logger.Error("gateway client configuration failed", "api_base_url", cfg.API.BaseURL, "err", err)
		return fmt.Errorf("configure gateway client: %w", err)
	}
	logger.Debug("gateway client ready", "api_base_url", cfg.API.BaseURL, "timeout_ms", cfg.API.TimeoutMS)

	vm := viewmodel.New(gateway, viewmodel.Options{
		TimelineLimit: cfg.Timeline.Limit,
		DefaultFilter: cfg.Timeline.DefaultFilter,
	})
	m := tui.NewModel(
		vm,
		tui.WithUrgentAfterDays(cfg.Board.UrgentAfterDays),
		tui.WithShowStats(cfg.Board.ShowStats),
	)
	logger.Info("starting tui program loop")
	if _, err := programFactory(m).Run(); err != nil {
		logger.Error("tui program terminated with error", "err", err)
		return fmt.Errorf("run tui program: %w", err)
	}
	logger.Info("command flow complete", "command", "tui")
	return nil
}

// runServe runs the serve subcommand flow.
func runServe(ctx context.Context, cfg config.Config, args []string, appName string, logger *runtimeLogger) error {
	fs := flag.NewFlagSet("reach serve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		httpBind    string
		apiEndpoint string
		mcpEndpoint string
		seedDemo    bool
	)
	fs.StringVar(&httpBind, "http", cfg.Serve.Bind, "HTTP listen address")
	fs.StringVar(&apiEndpoint, "api-endpoint", cfg.Serve.APIEndpoint, "HTTP API base endpoint")
	fs.StringVar(&mcpEndpoint, "mcp-endpoint", cfg.Serve.MCPEndpoint, "MCP streamable HTTP endpoint")
	fs.BoolVar(&seedDemo, "seed", false, "seed demo pipeline data into an empty database")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse serve flags: %w", err)
	}
	if len(fs.Args()) > 0 {
		return fmt.Errorf("unexpected serve arguments: %v", fs.Args())
	}

	repo, err := openRepository(cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepository(repo, cfg, logger)

	if seedDemo {
		if err := repo.Seed(ctx); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
		logger.Info("demo data ensured", "db_path", cfg.Serve.DatabasePath)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("serving pipeline API", "http", httpBind, "api_endpoint", apiEndpoint, "mcp_endpoint", mcpEndpoint)
	return serveCommandRunner(ctx, serveradapter.Config{
		HTTPBind:      httpBind,
		APIEndpoint:   apiEndpoint,
		MCPEndpoint:   mcpEndpoint,
		ServerName:    appName,
		ServerVersion: version,
	}, repo)
}

// runSeed runs the seed subcommand flow.
func runSeed(ctx context.Context, cfg config.Config, args []string, stdout io.Writer, logger *runtimeLogger) error {
	fs := flag.NewFlagSet("reach seed", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse seed flags: %w", err)
	}
	if len(fs.Args()) > 0 {
		return fmt.Errorf("unexpected seed arguments: %v", fs.Args())
	}

	repo, err := openRepository(cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepository(repo, cfg, logger)

	if err := repo.Seed(ctx); err != nil {
		return fmt.Errorf("seed demo data: %w", err)
	}
	_, _ = fmt.Fprintf(stdout, "seeded demo pipeline into %s\n", cfg.Serve.DatabasePath)
	return nil
}

// openRepository opens the sqlite repository behind the serve and seed flows.
func openRepository(cfg config.Config, logger *runtimeLogger) (*sqlite.Repository, error) {
	logger.Info("opening sqlite repository", "db_path", cfg.Serve.DatabasePath)
	repo, err := sqlite.Open(cfg.Serve.DatabasePath)
	if err != nil {
		logger.Error("sqlite open failed", "db_path", cfg.Serve.DatabasePath, "err", err)
		return nil, fmt.Errorf("open sqlite repository: %w", err)
	}
	logger.Info("sqlite repository ready", "db_path", cfg.Serve.DatabasePath, "migrations", "ensured")
	return repo, nil
}

// closeRepository closes the repository and logs failures instead of masking them.
func closeRepository(repo *sqlite.Repository, cfg config.Config, logger *runtimeLogger) {
	if err := repo.Close(); err != nil {
		logger.Warn("sqlite close failed", "db_path", cfg.Serve.DatabasePath, "err", err)
	}
}

// firstArg handles first arg.
func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// parseBoolEnv parses input into a normalized form.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

// runtimeLogger fans log events to a styled console sink and an optional dev-file sink.
type runtimeLogger struct {
	sinks          []*charmLog.Logger
	consoleSink    *charmLog.Logger
	consoleEnabled bool
	closeFile      func() error
	devLog         string
}

// newRuntimeLogger configures runtime log sinks from CLI/config state.
func newRuntimeLogger(stderr io.Writer, appName string, devMode bool, cfg config.LoggingConfig, defaultLogPath string) (*runtimeLogger, error) {
	level, err := charmLog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse logging level %q: %w", cfg.Level, err)
	}
	if stderr == nil {
		stderr = io.Discard
	}

	consoleLogger := charmLog.NewWithOptions(stderr, charmLog.Options{
		Level:           level,
		Prefix:          appName,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       charmLog.TextFormatter,
	})

	logger := &runtimeLogger{
		sinks:          []*charmLog.Logger{consoleLogger},
		consoleSink:    consoleLogger,
		consoleEnabled: true,
	}
	if !devMode {
		return logger, nil
	}

	devLogPath := strings.TrimSpace(cfg.DevFile)
	if devLogPath == "" {
		devLogPath = defaultLogPath
	}
	if devLogPath == "" {
		return logger, nil
	}
	if err := os.MkdirAll(filepath.Dir(devLogPath), 0o755); err != nil {
		return nil, fmt.Errorf("create dev log dir: %w", err)
	}
	logFile, err := os.OpenFile(devLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open dev log file: %w", err)
	}

	// Keep file output parseable and unstyled while preserving styled console logs.
	fileLogger := charmLog.NewWithOptions(logFile, charmLog.Options{
		Level:           level,
		Prefix:          appName,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       charmLog.LogfmtFormatter,
	})
	logger.sinks = append(logger.sinks, fileLogger)
	logger.closeFile = logFile.Close
	logger.devLog = devLogPath
	return logger, nil
}

// DevLogPath returns the active dev log file path.
func (l *runtimeLogger) DevLogPath() string {
	if l == nil {
		return ""
	}
	return l.devLog
}

// Close closes the optional dev-file sink.
func (l *runtimeLogger) Close() error {
	if l == nil || l.closeFile == nil {
		return nil
	}
	return l.closeFile()
}

// SetConsoleEnabled toggles whether the console sink receives runtime events.
func (l *runtimeLogger) SetConsoleEnabled(enabled bool) {
	if l == nil {
		return
	}
	l.consoleEnabled = enabled
}

// shouldLogToSink reports whether one sink should receive runtime output.
func (l *runtimeLogger) shouldLogToSink(sink *charmLog.Logger) bool {
	if l == nil || sink == nil {
		return false
	}
	if sink == l.consoleSink && !l.consoleEnabled {
		return false
	}
	return true
}

// Debug logs a debug event to all configured sinks.
func (l *runtimeLogger) Debug(msg string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		if !l.shouldLogToSink(sink) {
			continue
		}
		sink.Debug(msg, keyvals...)
	}
}

// Info logs an informational event to all configured sinks.
func (l *runtimeLogger) Info(msg string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		if !l.shouldLogToSink(sink) {
			continue
		}
		sink.Info(msg, keyvals...)
	}
}

// Warn logs a warning event to all configured sinks.
func (l *runtimeLogger) Warn(msg string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		if !l.shouldLogToSink(sink) {
			continue
		}
		sink.Warn(msg, keyvals...)
	}
}

// Error logs an error event to all configured sinks.
func (l *runtimeLogger) Error(msg string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		if !l.shouldLogToSink(sink) {
			continue
		}
		sink.Error(msg, keyvals...)
	}
}
