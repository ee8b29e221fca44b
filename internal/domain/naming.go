package domain

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// ConfigFileName is the name of configuration files.
const ConfigFileName = "config.toml"

// AppName is used for configuration and data directory names.
const AppName = "termux-tasker"

// GlobalConfigDir returns the user configuration directory under configHome.
func GlobalConfigDir(configHome string) string {
	return filepath.Join(configHome, AppName)
}

// SystemConfigDir returns the system configuration directory under prefix.
func SystemConfigDir(prefix string) string {
	return filepath.Join(prefix, "etc", AppName)
}

// DataDir returns the state directory under dataHome.
func DataDir(dataHome string) string {
	return filepath.Join(dataHome, AppName)
}

// StatePath returns the path to the request-code and callback store.
func StatePath(dataDir string) string {
	return filepath.Join(dataDir, "state.json")
}

// GlobalLogPath returns the path to the global log file.
func GlobalLogPath(dataDir string) string {
	return filepath.Join(dataDir, "logs", "tasker.log")
}

// RequestLogPath returns the path to the log file of one request.
func RequestLogPath(dataDir string, requestCode int) string {
	return filepath.Join(dataDir, "logs", fmt.Sprintf("request-%d.log", requestCode))
}

// IntentsDir returns the queue directory read by the execution service.
func IntentsDir(dataDir string) string {
	return filepath.Join(dataDir, "queue", "intents")
}

// CallbacksDir returns the queue directory read by the result relay.
func CallbacksDir(dataDir string) string {
	return filepath.Join(dataDir, "queue", "callbacks")
}

// RepliesDir returns the reply queue directory for a caller.
func RepliesDir(dataDir, callerID string) string {
	return filepath.Join(dataDir, "replies", SanitizeName(callerID))
}

// TranscriptPath returns the file a terminal execution's output is recorded in.
func TranscriptPath(dataDir, intentID string) string {
	return filepath.Join(dataDir, "transcripts", SanitizeName(intentID)+".log")
}

// TmuxSocketPath returns the path to the tmux socket.
func TmuxSocketPath(dataDir string) string {
	return filepath.Join(dataDir, "tmux.sock")
}

// TmuxConfigPath returns the path to the tmux configuration.
func TmuxConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "tmux.conf")
}

// SessionName returns the tmux session name for an intent.
// Format: tasker-<id>
func SessionName(intentID string) string {
	return "tasker-" + SanitizeName(intentID)
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// SanitizeName makes s safe for use as a file or session name.
func SanitizeName(s string) string {
	s = unsafeNameChars.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "default"
	}
	return s
}
