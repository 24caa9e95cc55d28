package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/quayside/reach/internal/timeline"
)

type Config struct {
	API      APIConfig      `toml:"api"`
	Board    BoardConfig    `toml:"board"`
	Timeline TimelineConfig `toml:"timeline"`
	Serve    ServeConfig    `toml:"serve"`
	Logging  LoggingConfig  `toml:"logging"`
}

type APIConfig struct {
	BaseURL   string `toml:"base_url"`
	TimeoutMS int    `toml:"timeout_ms"`
}

type BoardConfig struct {
	UrgentAfterDays int  `toml:"urgent_after_days"`
	ShowStats       bool `toml:"show_stats"`
}

type TimelineConfig struct {
	Limit         int    `toml:"limit"`
	DefaultFilter string `toml:"default_filter"`
}

type ServeConfig struct {
	Bind         string `toml:"bind"`
	APIEndpoint  string `toml:"api_endpoint"`
	MCPEndpoint  string `toml:"mcp_endpoint"`
	DatabasePath string `toml:"database_path"`
}

type LoggingConfig struct {
	Level   string `toml:"level"`
	DevFile string `toml:"dev_file"`
}

func Default(dbPath string) Config {
	return Config{
		API: APIConfig{
			BaseURL:   "http://127.0.0.1:8587",
			TimeoutMS: 10000,
		},
		Board: BoardConfig{
			UrgentAfterDays: 7,
			ShowStats:       true,
		},
		Timeline: TimelineConfig{
			Limit:         100,
			DefaultFilter: timeline.FilterAll,
		},
		Serve: ServeConfig{
			Bind:         "127.0.0.1:8587",
			APIEndpoint:  "/api/v1",
			MCPEndpoint:  "/mcp",
			DatabasePath: dbPath,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	baseURL := strings.TrimSpace(c.API.BaseURL)
	if baseURL == "" {
		return errors.New("api.base_url is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid api.base_url: %q", c.API.BaseURL)
	}
	if c.API.TimeoutMS < 0 {
		return errors.New("api.timeout_ms must be >= 0")
	}

	if c.Board.UrgentAfterDays < 0 {
		return errors.New("board.urgent_after_days must be >= 0")
	}

	if c.Timeline.Limit <= 0 {
		return errors.New("timeline.limit must be > 0")
	}
	filter := strings.TrimSpace(strings.ToLower(c.Timeline.DefaultFilter))
	if filter != "" && filter != timeline.FilterAll && !knownFilterPrefix(filter) {
		return fmt.Errorf("timeline.default_filter matches no activity type: %q", c.Timeline.DefaultFilter)
	}

	if strings.TrimSpace(c.Serve.Bind) == "" {
		return errors.New("serve.bind is required")
	}
	if strings.TrimSpace(c.Serve.DatabasePath) == "" {
		return errors.New("serve.database_path is required")
	}

	switch strings.TrimSpace(strings.ToLower(c.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	return nil
}

func knownFilterPrefix(prefix string) bool {
	return len(timeline.MatchingTypes(prefix)) > 0
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
