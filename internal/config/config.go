package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/hay-kot/criterio"
	"gopkg.in/yaml.v3"
)

// Default configuration values
const (
	DefaultAddr              = ":8080"
	DefaultServerURL         = "http://localhost:8080"
	DefaultDriver            = "sqlite"
	DefaultBusyPolicy        = "queue"
	DefaultSprintStatus      = "todo"
	DefaultRetryInterval     = 2 * time.Second
	DefaultMaxRetries        = 5
	DefaultRemoteTimeout     = 10 * time.Second
	DefaultWatchDebounce     = 500 * time.Millisecond
	DefaultTheme             = "catppuccin"
	DefaultLogLevel          = "info"
	DefaultDataDirName       = ".sprintboard"
	DefaultDatabaseFilename  = "sprintboard.db"
	DefaultConfigFilename    = "config.yaml"
	DefaultCORSAllowedOrigin = "http://localhost:*"
	DefaultNotifications     = true
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Board     BoardConfig     `yaml:"board"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Remote    RemoteConfig    `yaml:"remote"`
	Log       LogConfig       `yaml:"log"`

	// UI settings
	Theme string `yaml:"theme"`

	// Feature flags
	NotificationsEnabled bool `yaml:"notifications_enabled"`
	WatchEnabled         bool `yaml:"watch_enabled"`

	WatchDebounce time.Duration `yaml:"watch_debounce"`

	// DataDir holds the default database; not read from the file
	DataDir string `yaml:"-"`
}

// ServerConfig configures the REST API server
type ServerConfig struct {
	Addr               string   `yaml:"addr"`
	APIKey             string   `yaml:"api_key"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

// DatabaseConfig selects the storage backend
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite or pgx
	DSN    string `yaml:"dsn"`
}

// BoardConfig configures the board client
type BoardConfig struct {
	ProjectID           string `yaml:"project_id"`
	ServerURL           string `yaml:"server_url"` // empty means local storage
	BusyPolicy          string `yaml:"busy_policy"`
	DefaultSprintStatus string `yaml:"default_sprint_status"`
}

// ReconcileConfig tunes the reconciliation fetcher
type ReconcileConfig struct {
	RetryInterval time.Duration `yaml:"retry_interval"`
	MaxRetries    int           `yaml:"max_retries"`
	PollInterval  time.Duration `yaml:"poll_interval"` // 0 disables polling
}

// RemoteConfig configures the HTTP remote client
type RemoteConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the configuration used when no file is present
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:               DefaultAddr,
			CORSAllowedOrigins: []string{DefaultCORSAllowedOrigin},
		},
		Database: DatabaseConfig{
			Driver: DefaultDriver,
		},
		Board: BoardConfig{
			BusyPolicy:          DefaultBusyPolicy,
			DefaultSprintStatus: DefaultSprintStatus,
		},
		Reconcile: ReconcileConfig{
			RetryInterval: DefaultRetryInterval,
			MaxRetries:    DefaultMaxRetries,
		},
		Remote: RemoteConfig{
			Timeout: DefaultRemoteTimeout,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
		Theme:                DefaultTheme,
		NotificationsEnabled: DefaultNotifications,
		WatchDebounce:        DefaultWatchDebounce,
	}
}

// New creates a new Config with default values
func New() *Config {
	cfg := DefaultConfig()
	cfg.DataDir = DefaultDataDir()
	cfg.applyDefaults()
	return &cfg
}

// DefaultDataDir returns ~/.sprintboard, or ./.sprintboard without a home directory
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDataDirName
	}
	return filepath.Join(home, DefaultDataDirName)
}

// DefaultConfigPath returns the config file location inside the data directory
func DefaultConfigPath() string {
	return filepath.Join(DefaultDataDir(), DefaultConfigFilename)
}

// Load reads configuration from the given path. A missing file yields defaults.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
			cfg.DataDir = dataDir
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir()
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaults.Server.Addr
	}
	if c.Database.Driver == "" {
		c.Database.Driver = defaults.Database.Driver
	}
	if c.Database.DSN == "" && c.Database.Driver == DefaultDriver {
		c.Database.DSN = c.DatabasePath()
	}
	if c.Board.BusyPolicy == "" {
		c.Board.BusyPolicy = defaults.Board.BusyPolicy
	}
	if c.Board.DefaultSprintStatus == "" {
		c.Board.DefaultSprintStatus = defaults.Board.DefaultSprintStatus
	}
	if c.Reconcile.RetryInterval == 0 {
		c.Reconcile.RetryInterval = defaults.Reconcile.RetryInterval
	}
	if c.Remote.Timeout == 0 {
		c.Remote.Timeout = defaults.Remote.Timeout
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Theme == "" {
		c.Theme = defaults.Theme
	}
	if c.WatchDebounce == 0 {
		c.WatchDebounce = defaults.WatchDebounce
	}
}

// DatabasePath returns the default sqlite file inside the data directory
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, DefaultDatabaseFilename)
}

// LocalMode returns true when the board talks to storage directly
func (c *Config) LocalMode() bool {
	return c.Board.ServerURL == ""
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("database.driver", c.Database.Driver, oneOf("sqlite", "pgx", "postgres")),
		criterio.Run("database.dsn", c.Database.DSN, required),
		criterio.Run("board.busy_policy", c.Board.BusyPolicy, oneOf("queue", "reject")),
		criterio.Run("board.server_url", c.Board.ServerURL, httpURL),
		criterio.Run("reconcile.max_retries", c.Reconcile.MaxRetries, nonNegative),
		criterio.Run("reconcile.retry_interval", c.Reconcile.RetryInterval, positiveDuration),
		criterio.Run("reconcile.poll_interval", c.Reconcile.PollInterval, nonNegativeDuration),
		criterio.Run("remote.timeout", c.Remote.Timeout, positiveDuration),
		criterio.Run("log.level", c.Log.Level, oneOf("trace", "debug", "info", "warn", "error")),
		c.validateOrigins(),
	)
}

func (c *Config) validateOrigins() error {
	var errs criterio.FieldErrorsBuilder
	for i, origin := range c.Server.CORSAllowedOrigins {
		if origin == "*" {
			errs = errs.Append(fmt.Sprintf("server.cors_allowed_origins[%d]", i), fmt.Errorf("bare wildcard is not allowed, list origins explicitly"))
		}
	}
	return errs.ToError()
}

func oneOf(values ...string) func(string) error {
	return func(v string) error {
		if !slices.Contains(values, v) {
			return fmt.Errorf("must be one of %v, got %q", values, v)
		}
		return nil
	}
}

func required(v string) error {
	if v == "" {
		return fmt.Errorf("is required")
	}
	return nil
}

func httpURL(v string) error {
	if v == "" {
		return nil
	}
	u, err := url.Parse(v)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must be an http or https URL, got %q", v)
	}
	return nil
}

func nonNegative(v int) error {
	if v < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func positiveDuration(v time.Duration) error {
	if v <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func nonNegativeDuration(v time.Duration) error {
	if v < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}
