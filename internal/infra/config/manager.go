package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/runoshun/termux-tasker/internal/domain"
)

// Ensure Manager implements domain.ConfigManager.
var _ domain.ConfigManager = (*Manager)(nil)

// Manager manages configuration files.
type Manager struct {
	systemConfDir string // Path to system config directory
	userConfDir   string // Path to user config directory (e.g., ~/.config/termux-tasker)
}

// NewManager creates a new Manager for the process environment.
func NewManager() *Manager {
	l := NewLoader()
	return &Manager{
		systemConfDir: l.systemConfDir,
		userConfDir:   l.userConfDir,
	}
}

// NewManagerWithDirs creates a new Manager with custom config directories.
// This is useful for testing.
func NewManagerWithDirs(systemConfDir, userConfDir string) *Manager {
	return &Manager{
		systemConfDir: systemConfDir,
		userConfDir:   userConfDir,
	}
}

// GetUserConfigInfo returns information about the user config file.
func (m *Manager) GetUserConfigInfo() domain.ConfigInfo {
	return getConfigInfo(m.userConfDir)
}

// GetSystemConfigInfo returns information about the system config file.
func (m *Manager) GetSystemConfigInfo() domain.ConfigInfo {
	return getConfigInfo(m.systemConfDir)
}

// getConfigInfo reads the config file in dir and returns its info.
func getConfigInfo(dir string) domain.ConfigInfo {
	if dir == "" {
		return domain.ConfigInfo{}
	}
	path := filepath.Join(dir, domain.ConfigFileName)
	content, err := os.ReadFile(path)
	if err != nil {
		return domain.ConfigInfo{
			Path:   path,
			Exists: false,
		}
	}
	return domain.ConfigInfo{
		Path:    path,
		Content: string(content),
		Exists:  true,
	}
}

// InitUserConfig creates the user config file from the default template.
func (m *Manager) InitUserConfig(cfg *domain.Config) error {
	if m.userConfDir == "" {
		return errors.New("user config directory not available")
	}
	path := filepath.Join(m.userConfDir, domain.ConfigFileName)

	// Check if file already exists
	if _, err := os.Stat(path); err == nil {
		return domain.ErrConfigExists
	}

	if err := os.MkdirAll(m.userConfDir, 0o700); err != nil {
		return err
	}

	content := domain.RenderConfigTemplate(cfg)
	return os.WriteFile(path, []byte(content), 0o600)
}
