package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default slot capacities for each button family
const (
	DefaultRemoteButtons    = 18
	DefaultLocalButtons     = 17
	DefaultCommanderButtons = 7 * 14
)

// Config holds application configuration
type Config struct {
	// DefaultCommand is the command to run when no arguments are provided
	// Valid values: "help", "status", "tui"
	DefaultCommand string `yaml:"default_command"`

	// SavePassword controls whether account passwords are written to the state file
	SavePassword bool `yaml:"save_password"`

	// AllowLocalExec enables running local button templates as processes.
	// Off by default: local templates are arbitrary commands.
	AllowLocalExec bool `yaml:"allow_local_exec"`

	// KnownHosts lists the known_hosts files used to verify host keys
	KnownHosts []string `yaml:"known_hosts"`

	// Timeouts (in seconds)
	ConnectTimeout int `yaml:"connect_timeout"`
	CommandTimeout int `yaml:"command_timeout"`

	// Button slot capacities per family
	RemoteButtons    int `yaml:"remote_buttons"`
	LocalButtons     int `yaml:"local_buttons"`
	CommanderButtons int `yaml:"commander_buttons"`

	// StateFile overrides the location of the persisted state document
	StateFile string `yaml:"state_file"`

	// LogLevel is a zerolog level name ("debug", "info", "warn", ...)
	LogLevel string `yaml:"log_level"`

	// SyncInterval is how often the TUI refreshes the job table (in seconds, 0 disables)
	SyncInterval int `yaml:"sync_interval"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		DefaultCommand:   "help",
		SavePassword:     true,
		KnownHosts:       []string{"~/.ssh/known_hosts"},
		ConnectTimeout:   15,
		CommandTimeout:   60,
		RemoteButtons:    DefaultRemoteButtons,
		LocalButtons:     DefaultLocalButtons,
		CommanderButtons: DefaultCommanderButtons,
		LogLevel:         "warn",
		SyncInterval:     0,
	}
}

var configPath string

func init() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	configPath = filepath.Join(home, ".config", "slurm-watcher", "config.yaml")
}

// Load reads the config file, returning defaults if it doesn't exist
func Load() (*Config, error) {
	return LoadFile(configPath)
}

// LoadFile reads the config from path, returning defaults if it doesn't exist
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, err
	}
	cfg.normalize()

	return cfg, nil
}

// normalize replaces unusable values with defaults
func (c *Config) normalize() {
	d := DefaultConfig()
	if c.RemoteButtons <= 0 {
		c.RemoteButtons = d.RemoteButtons
	}
	if c.LocalButtons <= 0 {
		c.LocalButtons = d.LocalButtons
	}
	if c.CommanderButtons <= 0 {
		c.CommanderButtons = d.CommanderButtons
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = d.CommandTimeout
	}
	if len(c.KnownHosts) == 0 {
		c.KnownHosts = d.KnownHosts
	}
}

// ConnectTimeoutDuration returns ConnectTimeout as a time.Duration
func (c *Config) ConnectTimeoutDuration() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

// CommandTimeoutDuration returns CommandTimeout as a time.Duration
func (c *Config) CommandTimeoutDuration() time.Duration {
	return time.Duration(c.CommandTimeout) * time.Second
}

// KnownHostsFiles returns the known_hosts paths with ~ expanded
func (c *Config) KnownHostsFiles() []string {
	files := make([]string, 0, len(c.KnownHosts))
	for _, f := range c.KnownHosts {
		files = append(files, ExpandHome(f))
	}
	return files
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
