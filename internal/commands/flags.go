// Package commands implements the sprintboard CLI subcommands.
package commands

import (
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/robertguss/sprintboard-go/internal/config"
)

// DefaultLogFilename is used inside the data directory when no log file is set
const DefaultLogFilename = "sprintboard.log"

// Flags holds the global flag values shared by all commands
type Flags struct {
	LogLevel   string
	LogFile    string
	ConfigPath string
	DataDir    string

	// Overrides applied on top of the config file
	ProjectID string
	ServerURL string
	APIKey    string

	// Config is loaded in the Before hook and available to all commands
	Config *config.Config

	// Logger is built in the Before hook
	Logger zerolog.Logger
}

// DefaultConfigPath returns the default config file path
func DefaultConfigPath() string {
	return config.DefaultConfigPath()
}

// DefaultDataDir returns the default data directory
func DefaultDataDir() string {
	return config.DefaultDataDir()
}

// ApplyOverrides copies non-empty flag overrides into cfg and revalidates it
func (f *Flags) ApplyOverrides(cfg *config.Config) error {
	if f.ProjectID != "" {
		cfg.Board.ProjectID = f.ProjectID
	}
	if f.ServerURL != "" {
		cfg.Board.ServerURL = f.ServerURL
	}
	if f.APIKey != "" {
		cfg.Server.APIKey = f.APIKey
	}
	return cfg.Validate()
}

// ResolveLogFile picks the log destination. "-" means stderr.
func (f *Flags) ResolveLogFile(cfg *config.Config) string {
	file := f.LogFile
	if file == "" {
		file = cfg.Log.File
	}
	if file == "" {
		file = filepath.Join(cfg.DataDir, DefaultLogFilename)
	}
	if file == "-" {
		return ""
	}
	return file
}
