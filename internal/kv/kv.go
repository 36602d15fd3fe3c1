package kv

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("key not found")

// Store is a minimal durable key-value store.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Close releases resources held by the store.
	Close() error
}

// Watcher is implemented by stores that can notify about changes made by
// other processes.
type Watcher interface {
	// Watch calls fn every time another process changes key, until ctx
	// is done.
	Watch(ctx context.Context, key string, fn func()) error
}

// Backend types accepted in Config.Type.
const (
	TypeFile   = "file"
	TypeSQLite = "sqlite"
	TypeValkey = "valkey"
	TypeMemory = "memory"
)

// Config selects and configures a storage backend.
type Config struct {
	// Type is one of file, sqlite, valkey or memory (default: file)
	Type string `yaml:"type"`

	// Path is the directory (file) or database file (sqlite).
	// Defaults to the agenda directory in the user cache dir.
	Path string `yaml:"path"`

	// Valkey configures the valkey backend.
	Valkey ValkeyConfig `yaml:"valkey"`
}

// ValkeyConfig holds connection settings for the valkey backend.
type ValkeyConfig struct {
	// URL is the server address (e.g., "localhost:6379")
	URL string `yaml:"url"`

	// Password is the optional password for authentication
	Password string `yaml:"password"`

	// TLSEnabled enables TLS for the connection
	TLSEnabled bool `yaml:"tls"`

	// KeyPrefix is prepended to every key (default: "agenda:")
	KeyPrefix string `yaml:"key_prefix"`

	// DB is the database number (default: 0)
	DB int `yaml:"db"`
}

// Open creates the backend described by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case "", TypeFile:
		dir := cfg.Path
		if dir == "" {
			dir = DefaultDir()
		}
		return NewFileStore(dir)
	case TypeSQLite:
		path := cfg.Path
		if path == "" {
			path = DefaultDir() + "/agenda.db"
		}
		return NewSQLiteStore(ctx, path)
	case TypeValkey:
		return NewValkeyStore(cfg.Valkey)
	case TypeMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q, must be one of: file, sqlite, valkey, memory", cfg.Type)
	}
}
