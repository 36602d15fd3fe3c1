package kv

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/valkey-io/valkey-go"
)

// DefaultValkeyKeyPrefix is used when ValkeyConfig.KeyPrefix is empty.
const DefaultValkeyKeyPrefix = "agenda:"

// ValkeyStore keeps values in a Valkey server.
type ValkeyStore struct {
	client valkey.Client
	prefix string
}

// NewValkeyStore connects to the server described by cfg.
func NewValkeyStore(cfg ValkeyConfig) (*ValkeyStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("valkey URL is required for valkey storage")
	}

	opts := valkey.ClientOption{
		InitAddress: []string{cfg.URL},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey at %s: %w", cfg.URL, err)
	}

	return &ValkeyStore{client: client, prefix: valkeyPrefix(cfg.KeyPrefix)}, nil
}

func valkeyPrefix(prefix string) string {
	if prefix == "" {
		return DefaultValkeyKeyPrefix
	}
	return prefix
}

// Get returns the value stored under the prefixed key.
func (s *ValkeyStore) Get(ctx context.Context, key string) ([]byte, error) {
	cmd := s.client.B().Get().Key(s.prefix + key).Build()
	value, err := s.client.Do(ctx, cmd).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under the prefixed key without expiry.
func (s *ValkeyStore) Set(ctx context.Context, key string, value []byte) error {
	cmd := s.client.B().Set().Key(s.prefix + key).Value(valkey.BinaryString(value)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

// Close closes the client connection.
func (s *ValkeyStore) Close() error {
	s.client.Close()
	return nil
}
