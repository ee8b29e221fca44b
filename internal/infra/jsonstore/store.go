// Package jsonstore provides a JSON file-based implementation of the callback store.
package jsonstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"syscall"

	"github.com/runoshun/termux-tasker/internal/domain"
)

// storeData represents the JSON file structure.
// Fields are ordered to minimize memory padding.
type storeData struct {
	Callbacks map[string]*pendingData `json:"callbacks"`
	Meta      meta                    `json:"meta"`
}

// meta contains store metadata.
type meta struct {
	LastRequestCode int `json:"lastRequestCode"`
}

// pendingData is the JSON representation of a pending callback (keyed by request code).
type pendingData = domain.PendingCallback

// Store implements domain.CallbackStore using a JSON file guarded by flock.
type Store struct {
	path     string
	lockPath string
}

// New creates a new Store for the given file path.
// The file does not need to exist; Initialize creates it.
func New(path string) *Store {
	return &Store{
		path:     path,
		lockPath: path + ".lock",
	}
}

// Ensure Store implements the store ports.
var (
	_ domain.CallbackStore    = (*Store)(nil)
	_ domain.StoreInitializer = (*Store)(nil)
)

// NextRequestCode increments the persisted counter under an exclusive lock.
// Wrap-around follows domain.NextRequestCode.
func (s *Store) NextRequestCode(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var code int
	err := s.withLockWrite(func(data *storeData) error {
		code = domain.NextRequestCode(data.Meta.LastRequestCode)
		data.Meta.LastRequestCode = code
		return nil
	})
	return code, err
}

// Register stores a pending callback under its request code.
func (s *Store) Register(ctx context.Context, cb domain.PendingCallback) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.withLockWrite(func(data *storeData) error {
		entry := cb
		data.Callbacks[strconv.Itoa(cb.RequestCode)] = &entry
		return nil
	})
}

// Take removes and returns the pending callback for a request code.
func (s *Store) Take(ctx context.Context, requestCode int) (*domain.PendingCallback, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var cb *domain.PendingCallback
	err := s.withLockWrite(func(data *storeData) error {
		key := strconv.Itoa(requestCode)
		entry, ok := data.Callbacks[key]
		if !ok {
			return fmt.Errorf("%w: %d", domain.ErrCallbackNotFound, requestCode)
		}
		delete(data.Callbacks, key)
		entry.RequestCode = requestCode
		cb = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cb, nil
}

// List returns all pending callbacks ordered by request code.
func (s *Store) List(ctx context.Context) ([]domain.PendingCallback, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	callbacks := []domain.PendingCallback{}
	err := s.withLock(func(data *storeData) error {
		for key, cb := range data.Callbacks {
			code, _ := strconv.Atoi(key)
			entry := *cb
			entry.RequestCode = code
			callbacks = append(callbacks, entry)
		}
		return nil
	})

	// Sort by request code for consistent ordering
	slices.SortFunc(callbacks, func(a, b domain.PendingCallback) int {
		return a.RequestCode - b.RequestCode
	})

	return callbacks, err
}

// IsInitialized checks if the store file exists.
func (s *Store) IsInitialized() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Initialize creates an empty store file if it doesn't exist.
func (s *Store) Initialize() error {
	// Ensure parent directory exists
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	lock, err := s.acquireLock(syscall.LOCK_EX)
	if err != nil {
		return err
	}
	defer s.releaseLock(lock)

	// Check if file already exists
	if _, err := os.Stat(s.path); err == nil {
		return nil // Already exists
	}

	// Create empty store
	data := &storeData{
		Meta:      meta{LastRequestCode: domain.DefaultRequestCode},
		Callbacks: make(map[string]*pendingData),
	}

	return s.write(data)
}

// withLock executes fn with a shared (read) lock.
func (s *Store) withLock(fn func(*storeData) error) error {
	lock, err := s.acquireLock(syscall.LOCK_SH)
	if err != nil {
		return err
	}
	defer s.releaseLock(lock)

	data, err := s.read()
	if err != nil {
		return err
	}

	return fn(data)
}

// withLockWrite executes fn with an exclusive (write) lock and writes the result.
func (s *Store) withLockWrite(fn func(*storeData) error) error {
	lock, err := s.acquireLock(syscall.LOCK_EX)
	if err != nil {
		return err
	}
	defer s.releaseLock(lock)

	data, err := s.read()
	if err != nil {
		return err
	}

	if err := fn(data); err != nil {
		return err
	}

	return s.write(data)
}

func (s *Store) acquireLock(lockType int) (*os.File, error) {
	// Ensure lock file directory exists
	dir := filepath.Dir(s.lockPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	lock, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(lock.Fd()), lockType); err != nil {
		_ = lock.Close()
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	return lock, nil
}

func (s *Store) releaseLock(lock *os.File) {
	_ = syscall.Flock(int(lock.Fd()), syscall.LOCK_UN)
	_ = lock.Close()
}

func (s *Store) read() (*storeData, error) {
	content, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotInitialized
		}
		return nil, fmt.Errorf("read store file: %w", err)
	}

	var data storeData
	if err := json.Unmarshal(content, &data); err != nil {
		return nil, fmt.Errorf("parse store file: %w", err)
	}

	if data.Callbacks == nil {
		data.Callbacks = make(map[string]*pendingData)
	}

	return &data, nil
}

func (s *Store) write(data *storeData) error {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store data: %w", err)
	}

	// Write to temp file first, then rename for atomicity
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}
