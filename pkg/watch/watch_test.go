package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "env.json")
	other := filepath.Join(dir, "other.json")
	require.NoError(t, os.WriteFile(file, []byte(`{}`), 0o600))

	w, err := New([]string{file}, 50*time.Millisecond, nil)
	require.NoError(t, err)

	var calls atomic.Int32
	changed := make(chan string, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = w.Run(ctx, func(path string) error {
			calls.Add(1)
			changed <- path
			return nil
		})
	}()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(other, []byte(`{}`), 0o600))
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(file, []byte(`{"n": 1}`), 0o600))
	}

	select {
	case p := <-changed:
		assert.Equal(t, "env.json", filepath.Base(p))
	case <-time.After(3 * time.Second):
		t.Fatal("no reload")
	}
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWatcher_StopsWithContext(t *testing.T) {
	file := filepath.Join(t.TempDir(), "env.json")
	require.NoError(t, os.WriteFile(file, []byte(`{}`), 0o600))
	w, err := New([]string{file}, 0, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, func(string) error { return nil }) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
