package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"tabledash/internal/chart"
	"tabledash/internal/domain"
)

// Config is the top-level configuration for tabledash.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Journal JournalConfig `yaml:"journal"`
	HTTP    HTTPConfig    `yaml:"http"`
	MCP     MCPConfig     `yaml:"mcp"`
	Refresh RefreshConfig `yaml:"refresh"`
	Logging LoggingConfig `yaml:"logging"`
	Charts  []chart.Spec  `yaml:"charts"`
}

// StoreConfig is the record store connection plus call limits.
type StoreConfig struct {
	domain.StoreConnection `yaml:",inline"`
	Timeout                time.Duration `yaml:"timeout"`
}

// JournalConfig locates the SQLite save journal.
type JournalConfig struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled"`
}

// HTTPConfig defines where the JSON API listens.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
}

// Addr returns bind:port.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Bind, h.Port)
}

// MCPConfig selects the MCP transport.
type MCPConfig struct {
	Transport string `yaml:"transport"` // stdio | http
	Port      int    `yaml:"port"`
}

// RefreshConfig controls automatic reloads of clean sessions.
type RefreshConfig struct {
	Schedule string   `yaml:"schedule"`
	Watch    []string `yaml:"watch"`
}

// LoggingConfig controls the slog handlers.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	SeqURL string `yaml:"seq_url"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// LoadDotEnv loads .env from the working directory when one exists. Variables already
// set in the environment win.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

// Load reads and parses a YAML config file with env var substitution.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		data = substituteEnvVars(data)
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = domain.StoreDriverMongoDB
	}
	if cfg.Store.Timeout == 0 {
		cfg.Store.Timeout = 30 * time.Second
	}
	if cfg.Journal.Path == "" {
		homeDir, _ := os.UserHomeDir()
		cfg.Journal.Path = filepath.Join(homeDir, ".local", "share", "tabledash", "tabledash.db")
	}
	if cfg.HTTP.Bind == "" {
		cfg.HTTP.Bind = "127.0.0.1"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8050
	}
	if cfg.MCP.Transport == "" {
		cfg.MCP.Transport = "stdio"
	}
	if cfg.MCP.Port == 0 {
		cfg.MCP.Port = 8051
	}
	if cfg.Refresh.Schedule == "" {
		cfg.Refresh.Schedule = "@weekly"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if len(cfg.Charts) == 0 {
		cfg.Charts = append([]chart.Spec(nil), chart.DefaultSpecs...)
	}
}

func validate(cfg *Config) error {
	switch cfg.Store.Driver {
	case domain.StoreDriverMongoDB, domain.StoreDriverPostgres, domain.StoreDriverMySQL, domain.StoreDriverMemory:
	case domain.StoreDriverSQLite:
		if cfg.Store.Host == "" && cfg.Store.URI == "" {
			return fmt.Errorf("store: sqlite needs host (database file path)")
		}
	default:
		return fmt.Errorf("store: unsupported driver %q (must be mongodb, postgres, mysql, sqlite or memory)", cfg.Store.Driver)
	}
	if cfg.Store.Timeout < 0 {
		return fmt.Errorf("store: timeout must be positive")
	}
	if cfg.HTTP.Port < 1 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("http: port %d out of range", cfg.HTTP.Port)
	}
	if cfg.MCP.Transport != "stdio" && cfg.MCP.Transport != "http" {
		return fmt.Errorf("mcp: unsupported transport %q (must be stdio or http)", cfg.MCP.Transport)
	}
	if cfg.Refresh.Schedule != "off" {
		if _, err := cron.ParseStandard(cfg.Refresh.Schedule); err != nil {
			return fmt.Errorf("refresh: invalid schedule %q: %w", cfg.Refresh.Schedule, err)
		}
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		return fmt.Errorf("logging: invalid level %q", cfg.Logging.Level)
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging: unsupported format %q (must be text or json)", cfg.Logging.Format)
	}
	for i, spec := range cfg.Charts {
		if spec.X == "" {
			return fmt.Errorf("charts[%d]: x is required", i)
		}
	}
	return nil
}

// RefreshSchedule returns the cron schedule, or "" when refresh is switched off.
func (c *Config) RefreshSchedule() string {
	if c.Refresh.Schedule == "off" {
		return ""
	}
	return c.Refresh.Schedule
}

// Watcher watches a config file for changes and calls the callback with the new config.
type Watcher struct {
	path     string
	callback func(*Config)
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewWatcher creates a new config file watcher.
func NewWatcher(path string, callback func(*Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching config file: %w", err)
	}

	cw := &Watcher{
		path:     path,
		callback: callback,
		watcher:  w,
		stopCh:   make(chan struct{}),
	}

	go cw.run()
	return cw, nil
}

func (cw *Watcher) run() {
	// Debounce timer to avoid rapid reloads
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, cw.reload)
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "err", err)
		case <-cw.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cfg, err := Load(cw.path)
	if err != nil {
		slog.Error("config hot-reload failed", "path", cw.path, "err", err)
		return
	}

	slog.Info("configuration reloaded", "path", cw.path)
	cw.callback(cfg)
}

// Stop stops the config watcher.
func (cw *Watcher) Stop() error {
	close(cw.stopCh)
	return cw.watcher.Close()
}
