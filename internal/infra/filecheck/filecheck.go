// Package filecheck validates and repairs request paths on the filesystem.
package filecheck

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/runoshun/termux-tasker/internal/domain"
)

// Checker implements domain.PathValidator and domain.PathFixer.
// Permissions are judged from the mode bits so results do not depend on
// the effective user.
type Checker struct{}

// Ensure Checker implements the path ports.
var (
	_ domain.PathValidator = (*Checker)(nil)
	_ domain.PathFixer     = (*Checker)(nil)
)

// New creates a new Checker.
func New() *Checker {
	return &Checker{}
}

// ValidateExecutable checks path is a regular, readable and executable file.
func (c *Checker) ValidateExecutable(path, relaxedDir string) error {
	if path == "" {
		return domain.ErrEmptyExecutable
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrExecutableNotFound, path)
		}
		return fmt.Errorf("%w: %s: %w", domain.ErrExecutableNotFound, path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", domain.ErrNotRegularFile, path)
	}

	// Scripts in the sandbox are fixed up by the execution service
	if relaxedDir != "" && domain.IsPathInDir(path, relaxedDir, true) {
		return nil
	}

	perm := info.Mode().Perm()
	if perm&0o444 == 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotReadable, path)
	}
	if perm&0o111 == 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotExecutable, path)
	}
	return nil
}

// ValidateWorkingDirectory checks path is a readable directory, writable when
// requested. An empty path is accepted.
func (c *Checker) ValidateWorkingDirectory(path, relaxedDir string, writable bool) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if relaxedDir != "" && domain.IsPathInDir(path, relaxedDir, false) {
				return nil
			}
			return fmt.Errorf("%w: %s does not exist", domain.ErrWorkingDirInvalid, path)
		}
		return fmt.Errorf("%w: %s: %w", domain.ErrWorkingDirInvalid, path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", domain.ErrWorkingDirInvalid, path)
	}

	perm := info.Mode().Perm()
	if perm&0o444 == 0 {
		return fmt.Errorf("%w: %s is not readable", domain.ErrWorkingDirInvalid, path)
	}
	if writable && perm&0o222 == 0 {
		return fmt.Errorf("%w: %s is not writable", domain.ErrWorkingDirInvalid, path)
	}
	return nil
}

// EnsureExecutable adds owner read and execute permission to path.
func (c *Checker) EnsureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat executable: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o500 == 0o500 {
		return nil
	}
	if err := os.Chmod(path, mode|0o500); err != nil {
		return fmt.Errorf("chmod executable: %w", err)
	}
	return nil
}

// EnsureDirectory creates path and its parents.
func (c *Checker) EnsureDirectory(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(path, 0o700); err != nil {
		return fmt.Errorf("create working directory: %w", err)
	}
	return nil
}
