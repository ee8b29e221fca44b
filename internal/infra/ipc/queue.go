// Package ipc provides directory-backed JSON message queues.
//
// Each message is one file named <unix-nanos>-<uuid>.json, written to a
// temporary name first and renamed into place, so readers never observe a
// partial message. Messages are consumed in name order; files that cannot be
// decoded or fail validation are moved to a failed/ subdirectory.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

const defaultPollInterval = 200 * time.Millisecond

const failedDirName = "failed"

// Queue is a JSON message queue stored in a directory.
type Queue[T any] struct {
	validate     func(T) error
	dir          string
	pollInterval time.Duration
}

// NewQueue creates a queue in dir. validate may be nil.
func NewQueue[T any](dir string, validate func(T) error) *Queue[T] {
	return &Queue[T]{
		dir:          dir,
		validate:     validate,
		pollInterval: defaultPollInterval,
	}
}

// Dir returns the queue directory.
func (q *Queue[T]) Dir() string {
	return q.dir
}

// Send enqueues msg and returns its message ID.
func (q *Queue[T]) Send(ctx context.Context, msg T) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if q.validate != nil {
		if err := q.validate(msg); err != nil {
			return "", err
		}
	}
	if err := q.ensureDir(); err != nil {
		return "", err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	id := NewMessageID()
	tmpPath := filepath.Join(q.dir, ".tmp-"+id)
	finalPath := filepath.Join(q.dir, id+".json")
	if err := os.WriteFile(tmpPath, payload, 0o600); err != nil {
		return "", fmt.Errorf("write message temp file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("finalize message file: %w", err)
	}

	return id, nil
}

// Next blocks until a message is available or ctx is canceled.
// The directory is watched with fsnotify; polling covers filesystems
// where notifications are unavailable.
func (q *Queue[T]) Next(ctx context.Context) (T, error) {
	var zero T
	if err := q.ensureDir(); err != nil {
		return zero, err
	}

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		defer func() { _ = watcher.Close() }()
		if err := watcher.Add(q.dir); err == nil {
			events = watcher.Events
			errs = watcher.Errors
		}
	}

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		msg, ok, err := q.TryNext()
		if err != nil {
			return zero, err
		}
		if ok {
			return msg, nil
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-events:
		case <-errs:
		case <-ticker.C:
		}
	}
}

// TryNext consumes the oldest valid message without blocking.
// ok is false when the queue is empty.
func (q *Queue[T]) TryNext() (msg T, ok bool, err error) {
	files, err := q.pendingFiles()
	if err != nil {
		return msg, false, err
	}

	for _, name := range files {
		path := filepath.Join(q.dir, name)
		m, ok := q.readMessage(path)
		if !ok {
			continue
		}
		return m, true, nil
	}
	return msg, false, nil
}

// Len returns the number of messages waiting in the queue.
func (q *Queue[T]) Len() (int, error) {
	files, err := q.pendingFiles()
	return len(files), err
}

func (q *Queue[T]) pendingFiles() ([]string, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read queue dir: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		files = append(files, name)
	}

	sort.Strings(files)
	return files, nil
}

func (q *Queue[T]) ensureDir() error {
	if err := os.MkdirAll(q.dir, 0o750); err != nil {
		return fmt.Errorf("create queue dir: %w", err)
	}
	return nil
}

func (q *Queue[T]) readMessage(path string) (T, bool) {
	var msg T
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			q.moveToFailed(path)
		}
		return msg, false
	}

	if err := json.Unmarshal(data, &msg); err != nil {
		q.moveToFailed(path)
		return msg, false
	}

	if q.validate != nil {
		if err := q.validate(msg); err != nil {
			q.moveToFailed(path)
			return msg, false
		}
	}

	// Another consumer may have claimed the file first
	if err := os.Remove(path); err != nil {
		return msg, false
	}

	return msg, true
}

func (q *Queue[T]) moveToFailed(path string) {
	failedDir := filepath.Join(q.dir, failedDirName)
	if err := os.MkdirAll(failedDir, 0o750); err == nil {
		target := filepath.Join(failedDir, filepath.Base(path))
		if err := os.Rename(path, target); err == nil {
			return
		}
	}
	_ = os.Rename(path, path+".bad")
}

// NewMessageID returns a queue file ID that sorts by creation time.
func NewMessageID() string {
	now := time.Now().UTC().UnixNano()
	return fmt.Sprintf("%020d-%s", now, uuid.NewString())
}
