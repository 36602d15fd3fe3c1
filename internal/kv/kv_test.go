package kv

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "accounts")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "accounts", []byte(`[{"id":"1"}]`)))
	got, err := s.Get(ctx, "accounts")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"1"}]`, string(got))

	require.NoError(t, s.Set(ctx, "accounts", []byte(`[]`)))
	got, err = s.Get(ctx, "accounts")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(got))

	_, err = s.Get(ctx, "events")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	exerciseStore(t, s)
	assert.Equal(t, 2, s.Writes())
	require.NoError(t, s.Close())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	value := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", value))
	value[0] = 'x'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	got[1] = 'y'
	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "agenda")
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, s.Dir())
	exerciseStore(t, s)
}

func TestFileStore_InvalidKey(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	tests := []string{"", "../etc", "a/b", "a.b", "with space"}
	for _, key := range tests {
		t.Run(key, func(t *testing.T) {
			assert.Error(t, s.Set(context.Background(), key, []byte("x")))
			_, err := s.Get(context.Background(), key)
			assert.Error(t, err)
			assert.NotErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestFileStore_Watch(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	// A second store on the same directory stands in for another process.
	other, err := NewFileStore(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, "accounts", func() { calls.Add(1) })
	}()

	// Writes to other keys are ignored.
	require.NoError(t, other.Set(ctx, "events", []byte("[]")))

	// The watcher may not be registered yet, keep writing until it fires.
	require.Eventually(t, func() bool {
		_ = other.Set(ctx, "accounts", []byte("[]"))
		return calls.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)

	// Rewriting the same content does not fire again.
	fired := calls.Load()
	require.NoError(t, other.Set(ctx, "accounts", []byte("[]")))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, fired, calls.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestFileStore_WatchIgnoresOwnWrites(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	other, err := NewFileStore(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	go func() { _ = s.Watch(ctx, "accounts", func() { calls.Add(1) }) }()

	// Wait until the watcher is live by writing from the other store.
	n := 0
	require.Eventually(t, func() bool {
		n++
		_ = other.Set(ctx, "accounts", []byte(fmt.Sprintf(`[{"id":"%d"}]`, n)))
		return calls.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)
	// Let events of the warm-up writes drain.
	time.Sleep(200 * time.Millisecond)
	fired := calls.Load()

	for i := range 20 {
		require.NoError(t, s.Set(ctx, "accounts", []byte(fmt.Sprintf(`[{"id":"own-%d"}]`, i))))
	}
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, fired, calls.Load(), "writes through the watching store must not fire")

	require.NoError(t, other.Set(ctx, "accounts", []byte(`[{"id":"external"}]`)))
	require.Eventually(t, func() bool { return calls.Load() == fired+1 }, 5*time.Second, 20*time.Millisecond)
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db", "agenda.db")

	s, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	exerciseStore(t, s)
	require.NoError(t, s.Close())

	// Data survives reopening.
	reopened, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "accounts")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(got))
}

func TestNewValkeyStore_RequiresURL(t *testing.T) {
	_, err := NewValkeyStore(ValkeyConfig{})
	assert.Error(t, err)
}

func TestValkeyPrefix(t *testing.T) {
	assert.Equal(t, DefaultValkeyKeyPrefix, valkeyPrefix(""))
	assert.Equal(t, "custom:", valkeyPrefix("custom:"))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     Config
		want    interface{}
		wantErr bool
	}{
		{"memory", Config{Type: TypeMemory}, &MemoryStore{}, false},
		{"file", Config{Type: TypeFile, Path: t.TempDir()}, &FileStore{}, false},
		{"empty type defaults to file", Config{Path: t.TempDir()}, &FileStore{}, false},
		{"sqlite", Config{Type: TypeSQLite, Path: filepath.Join(t.TempDir(), "a.db")}, &SQLiteStore{}, false},
		{"valkey without url", Config{Type: TypeValkey}, nil, true},
		{"unknown", Config{Type: "etcd"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(ctx, tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer s.Close()
			assert.IsType(t, tt.want, s)
		})
	}
}
