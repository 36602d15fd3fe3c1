package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/teemow/agenda/internal/logging"
)

var validKey = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// FileStore stores each key as a JSON file in a directory.
// Writes go through a temporary file and a rename so readers never observe
// a partially written document.
type FileStore struct {
	dir string

	mu sync.Mutex
	// written holds the most recent values this store wrote per key, so
	// Watch can tell its own writes from those of other processes.
	written map[string][][]byte
}

// ownWriteHistory bounds written per key. More than one value is kept
// because the watcher may read the file between two writes.
const ownWriteHistory = 4

// NewFileStore creates the directory if needed and returns a store rooted at it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStore{dir: dir, written: make(map[string][][]byte)}, nil
}

// Dir returns the directory backing the store.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", fmt.Errorf("invalid key %q: must contain only letters, numbers, hyphens, and underscores", key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}

// Get reads the file for key.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return data, nil
}

// Set atomically replaces the file for key.
func (s *FileStore) Set(_ context.Context, key string, value []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	// Recorded before the rename: the watcher may see the event first.
	s.recordWrite(key, value)
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("failed to replace %s: %w", p, err)
	}
	return nil
}

func (s *FileStore) recordWrite(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := append(s.written[key], append([]byte(nil), value...))
	if len(history) > ownWriteHistory {
		history = history[len(history)-ownWriteHistory:]
	}
	s.written[key] = history
}

// ownWrite reports whether data is one of the values this store recently
// wrote for key.
func (s *FileStore) ownWrite(key string, data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.written[key] {
		if bytes.Equal(v, data) {
			return true
		}
	}
	return false
}

// Watch calls fn whenever another process changes the file for key.
// Writes made through this store and repeated events for unchanged content
// are ignored. It blocks until ctx is done.
func (s *FileStore) Watch(ctx context.Context, key string, fn func()) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory: the rename in Set replaces the inode.
	if err := w.Add(s.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}

	var seen []byte
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != p {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			data, err := os.ReadFile(p)
			if err != nil {
				continue
			}
			if s.ownWrite(key, data) || (seen != nil && bytes.Equal(seen, data)) {
				seen = data
				continue
			}
			seen = data
			fn()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Storage watcher error", "dir", s.dir, logging.Err(err))
		}
	}
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}

// DefaultDir returns the agenda directory inside the user cache directory.
func DefaultDir() string {
	return filepath.Join(userCacheDir(), "agenda")
}

func userCacheDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Caches")
	case "windows":
		for _, ev := range []string{"TEMP", "TMP"} {
			if v := os.Getenv(ev); v != "" {
				return v
			}
		}
		return os.TempDir()
	}
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return xdg
	}
	return filepath.Join(homeDir(), ".cache")
}

func homeDir() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("HOMEDRIVE") + os.Getenv("HOMEPATH")
	}
	return os.Getenv("HOME")
}
