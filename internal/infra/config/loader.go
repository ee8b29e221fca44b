// Package config provides configuration loading functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"
	"github.com/runoshun/termux-tasker/internal/domain"
)

// Ensure Loader implements domain.ConfigLoader.
var _ domain.ConfigLoader = (*Loader)(nil)

// Loader loads configuration from TOML files.
type Loader struct {
	env           domain.Environment
	systemConfDir string // Path to system config directory (e.g., $PREFIX/etc/termux-tasker)
	userConfDir   string // Path to user config directory (e.g., ~/.config/termux-tasker)
}

// NewLoader creates a new Loader for the process environment.
func NewLoader() *Loader {
	env := EnvironmentFromOS()
	prefix := env.Prefix
	if prefix == "" {
		prefix = "/usr"
	}
	return &Loader{
		env:           env,
		systemConfDir: domain.SystemConfigDir(prefix),
		userConfDir:   defaultUserConfigDir(),
	}
}

// NewLoaderWithDirs creates a new Loader with custom config directories.
// This is useful for testing.
func NewLoaderWithDirs(systemConfDir, userConfDir string, env domain.Environment) *Loader {
	return &Loader{
		env:           env,
		systemConfDir: systemConfDir,
		userConfDir:   userConfDir,
	}
}

// EnvironmentFromOS reads HOME, PREFIX and XDG_DATA_HOME.
func EnvironmentFromOS() domain.Environment {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return domain.Environment{
		Home:     home,
		Prefix:   os.Getenv("PREFIX"),
		DataHome: os.Getenv("XDG_DATA_HOME"),
	}
}

// defaultUserConfigDir returns the default user config directory.
func defaultUserConfigDir() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return domain.GlobalConfigDir(configHome)
}

// Load returns the merged configuration (user over system over defaults).
func (l *Loader) Load() (*domain.Config, error) {
	return l.LoadWithOptions(domain.LoadConfigOptions{})
}

// LoadWithOptions returns the merged configuration with options to ignore sources.
func (l *Loader) LoadWithOptions(opts domain.LoadConfigOptions) (*domain.Config, error) {
	base := domain.NewDefaultConfig()

	if !opts.IgnoreSystem {
		system, err := l.loadDir(l.systemConfDir)
		if err != nil {
			return nil, err
		}
		if system != nil {
			mergeInto(base, system)
		}
	}

	if !opts.IgnoreUser {
		user, err := l.loadDir(l.userConfDir)
		if err != nil {
			return nil, err
		}
		if user != nil {
			mergeInto(base, user)
		}
	}

	base.ApplyEnvironment(l.env)
	return base, nil
}

func (l *Loader) loadDir(dir string) (*fileConfig, error) {
	if dir == "" {
		return nil, nil
	}
	path := filepath.Join(dir, domain.ConfigFileName)
	fc, err := loadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return fc, nil
}

// fileConfig is one parsed config file. Booleans are tracked separately
// so an explicit false can override an inherited true.
type fileConfig struct {
	cfg               *domain.Config
	allowExternalApps *bool
}

// loadFile loads a configuration from a file.
func loadFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	return convertRaw(raw), nil
}

// convertRaw converts the raw map to a file config and collects warnings.
func convertRaw(raw map[string]any) *fileConfig {
	fc := &fileConfig{cfg: &domain.Config{}}
	res := fc.cfg
	var warnings []string

	str := func(section, key string, v any, dst *string) {
		if s, ok := v.(string); ok {
			*dst = s
			return
		}
		warnings = append(warnings, fmt.Sprintf("invalid value for [%s] %s: expected string", section, key))
	}

	for section, value := range raw {
		m, ok := value.(map[string]any)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("unknown section: %s", section))
			continue
		}
		switch section {
		case "paths":
			for k, v := range m {
				switch k {
				case "home":
					str(section, k, v, &res.Paths.Home)
				case "prefix":
					str(section, k, v, &res.Paths.Prefix)
				case "scripts_dir":
					str(section, k, v, &res.Paths.ScriptsDir)
				case "data_dir":
					str(section, k, v, &res.Paths.DataDir)
				default:
					warnings = append(warnings, fmt.Sprintf("unknown key in [paths]: %s", k))
				}
			}
		case "policy":
			for k, v := range m {
				switch k {
				case "allow_external_apps":
					if b, ok := v.(bool); ok {
						fc.allowExternalApps = &b
					} else {
						warnings = append(warnings, "invalid value for [policy] allow_external_apps: expected bool")
					}
				default:
					warnings = append(warnings, fmt.Sprintf("unknown key in [policy]: %s", k))
				}
			}
		case "log":
			for k, v := range m {
				switch k {
				case "level":
					str(section, k, v, &res.Log.Level)
				default:
					warnings = append(warnings, fmt.Sprintf("unknown key in [log]: %s", k))
				}
			}
		case "store":
			for k, v := range m {
				switch k {
				case "type":
					str(section, k, v, &res.Store.Type)
				case "redis_url":
					str(section, k, v, &res.Store.RedisURL)
				case "key_prefix":
					str(section, k, v, &res.Store.KeyPrefix)
				default:
					warnings = append(warnings, fmt.Sprintf("unknown key in [store]: %s", k))
				}
			}
		case "service":
			for k, v := range m {
				switch k {
				case "shell":
					str(section, k, v, &res.Service.Shell)
				case "max_output_bytes":
					if n, ok := v.(int64); ok && n > 0 {
						res.Service.MaxOutputBytes = int(n)
					} else {
						warnings = append(warnings, "invalid value for [service] max_output_bytes: expected positive integer")
					}
				case "max_parallel":
					if n, ok := v.(int64); ok && n > 0 {
						res.Service.MaxParallel = int(n)
					} else {
						warnings = append(warnings, "invalid value for [service] max_parallel: expected positive integer")
					}
				default:
					warnings = append(warnings, fmt.Sprintf("unknown key in [service]: %s", k))
				}
			}
		case "relay":
			for k, v := range m {
				switch k {
				case "pending_ttl":
					str(section, k, v, &res.Relay.PendingTTL)
				case "prune_schedule":
					str(section, k, v, &res.Relay.PruneSchedule)
				case "listen":
					str(section, k, v, &res.Relay.Listen)
				default:
					warnings = append(warnings, fmt.Sprintf("unknown key in [relay]: %s", k))
				}
			}
		default:
			warnings = append(warnings, fmt.Sprintf("unknown section: %s", section))
		}
	}

	sort.Strings(warnings)
	res.Warnings = warnings
	return fc
}

// mergeInto merges override into base, with override taking precedence.
func mergeInto(base *domain.Config, override *fileConfig) {
	o := override.cfg
	base.Warnings = append(base.Warnings, o.Warnings...)

	setString(&base.Paths.Home, o.Paths.Home)
	setString(&base.Paths.Prefix, o.Paths.Prefix)
	setString(&base.Paths.ScriptsDir, o.Paths.ScriptsDir)
	setString(&base.Paths.DataDir, o.Paths.DataDir)
	setString(&base.Log.Level, o.Log.Level)
	setString(&base.Store.Type, o.Store.Type)
	setString(&base.Store.RedisURL, o.Store.RedisURL)
	setString(&base.Store.KeyPrefix, o.Store.KeyPrefix)
	setString(&base.Service.Shell, o.Service.Shell)
	setString(&base.Relay.PendingTTL, o.Relay.PendingTTL)
	setString(&base.Relay.PruneSchedule, o.Relay.PruneSchedule)
	setString(&base.Relay.Listen, o.Relay.Listen)

	if o.Service.MaxOutputBytes > 0 {
		base.Service.MaxOutputBytes = o.Service.MaxOutputBytes
	}
	if o.Service.MaxParallel > 0 {
		base.Service.MaxParallel = o.Service.MaxParallel
	}
	if override.allowExternalApps != nil {
		base.Policy.AllowExternalApps = *override.allowExternalApps
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
