package domain

import (
	"bytes"
	_ "embed"
	"fmt"
	"path/filepath"
	"text/template"
	"time"
)

//go:embed config_template.toml
var configTemplateContent string

// Default configuration values.
const (
	DefaultLogLevel       = "info"
	DefaultStoreType      = "json"
	DefaultMaxOutputBytes = 100 * 1024
	DefaultMaxParallel    = 8
	DefaultPendingTTL     = "24h"
	DefaultPruneSchedule  = "@every 1h"
	DefaultListenAddr     = "127.0.0.1:8765"
	DefaultRedisKeyPrefix = "termux-tasker"
)

// Store types.
const (
	StoreTypeJSON  = "json"
	StoreTypeRedis = "redis"
)

// Config represents the application configuration.
// Fields are ordered to minimize memory padding.
type Config struct {
	Warnings []string      `toml:"-"`
	Paths    PathsConfig   `toml:"paths"`
	Store    StoreConfig   `toml:"store"`
	Relay    RelayConfig   `toml:"relay"`
	Log      LogConfig     `toml:"log"`
	Service  ServiceConfig `toml:"service"`
	Policy   PolicyConfig  `toml:"policy"`
}

// PathsConfig holds filesystem roots from the [paths] section.
type PathsConfig struct {
	Home       string `toml:"home,omitempty"`        // Home directory (default: $HOME)
	Prefix     string `toml:"prefix,omitempty"`      // Installation prefix (default: $PREFIX or /usr)
	ScriptsDir string `toml:"scripts_dir,omitempty"` // Sandbox scripts directory (default: ~/.termux/tasker)
	DataDir    string `toml:"data_dir,omitempty"`    // State, queues and logs (default: $XDG_DATA_HOME/termux-tasker)
}

// PolicyConfig holds the execution policy from the [policy] section.
type PolicyConfig struct {
	AllowExternalApps bool `toml:"allow_external_apps"` // Allow executables outside the scripts directory
}

// LogConfig holds logging settings from the [log] section.
type LogConfig struct {
	Level string `toml:"level,omitempty"` // Log level: off, error, warn, info, debug
}

// StoreConfig holds the callback store settings from the [store] section.
type StoreConfig struct {
	Type      string `toml:"type,omitempty"`       // "json" (default) or "redis"
	RedisURL  string `toml:"redis_url,omitempty"`  // redis://host:port/db
	KeyPrefix string `toml:"key_prefix,omitempty"` // Prefix for redis keys
}

// ServiceConfig holds execution service settings from the [service] section.
type ServiceConfig struct {
	Shell          string `toml:"shell,omitempty"`            // Interpreter for terminal sessions (default: sh)
	MaxOutputBytes int    `toml:"max_output_bytes,omitempty"` // Output kept per stream before truncation
	MaxParallel    int    `toml:"max_parallel,omitempty"`     // Intents run at once by execd
}

// RelayConfig holds result relay settings from the [relay] section.
type RelayConfig struct {
	PendingTTL    string `toml:"pending_ttl,omitempty"`    // Age after which pending callbacks are pruned
	PruneSchedule string `toml:"prune_schedule,omitempty"` // Cron spec for pruning
	Listen        string `toml:"listen,omitempty"`         // HTTP listen address for serve
}

// NewDefaultConfig returns a new Config with default values.
// Path fields are left empty until ApplyEnvironment fills them.
func NewDefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
		Store: StoreConfig{
			Type:      DefaultStoreType,
			KeyPrefix: DefaultRedisKeyPrefix,
		},
		Service: ServiceConfig{
			Shell:          "sh",
			MaxOutputBytes: DefaultMaxOutputBytes,
			MaxParallel:    DefaultMaxParallel,
		},
		Relay: RelayConfig{
			PendingTTL:    DefaultPendingTTL,
			PruneSchedule: DefaultPruneSchedule,
			Listen:        DefaultListenAddr,
		},
	}
}

// Environment carries the process environment used to default paths.
type Environment struct {
	Home     string
	Prefix   string
	DataHome string
}

// ApplyEnvironment fills empty path settings from env.
func (c *Config) ApplyEnvironment(env Environment) {
	if c.Paths.Home == "" {
		c.Paths.Home = env.Home
	}
	if c.Paths.Prefix == "" {
		c.Paths.Prefix = env.Prefix
	}
	if c.Paths.Prefix == "" {
		c.Paths.Prefix = "/usr"
	}
	if c.Paths.ScriptsDir == "" {
		c.Paths.ScriptsDir = DefaultScriptsDir(c.Paths.Home)
	}
	if c.Paths.DataDir == "" {
		dataHome := env.DataHome
		if dataHome == "" {
			dataHome = filepath.Join(c.Paths.Home, ".local", "share")
		}
		c.Paths.DataDir = DataDir(dataHome)
	}
}

// ResolvedPaths returns the path roots with ~ and $PREFIX expanded.
func (c *Config) ResolvedPaths() Paths {
	p := Paths{
		Home:   c.Paths.Home,
		Prefix: c.Paths.Prefix,
	}
	p.ScriptsDir = p.Expand(c.Paths.ScriptsDir)
	return p
}

// PendingTTLDuration parses relay.pending_ttl. Zero disables pruning.
func (c *Config) PendingTTLDuration() (time.Duration, error) {
	if c.Relay.PendingTTL == "" || c.Relay.PendingTTL == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Relay.PendingTTL)
	if err != nil {
		return 0, fmt.Errorf("invalid relay.pending_ttl %q: %w", c.Relay.PendingTTL, err)
	}
	return d, nil
}

// ConfigInfo holds information about a config file.
type ConfigInfo struct {
	Path    string
	Content string
	Exists  bool
}

// RenderConfigTemplate renders the commented config file written by config init.
func RenderConfigTemplate(cfg *Config) string {
	tmpl := template.Must(template.New("config").Parse(configTemplateContent))
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, cfg); err != nil {
		return configTemplateContent
	}
	return buf.String()
}
