package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReportsChangedFiles(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "main.c")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(watched, []byte("a"), 0644))

	w, err := New([]string{watched}, Options{Debounce: 50 * time.Millisecond})
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	calls := make(chan []string, 4)
	go func() {
		_ = w.Run(ctx, func(_ context.Context, changed []string) error {
			calls <- changed
			return nil
		})
	}()

	// unrelated files in the same directory are ignored
	require.NoError(t, os.WriteFile(other, []byte("x"), 0644))
	require.NoError(t, os.WriteFile(watched, []byte("b"), 0644))
	require.NoError(t, os.WriteFile(watched, []byte("c"), 0644))

	select {
	case changed := <-calls:
		abs, err := filepath.Abs(watched)
		require.NoError(t, err)
		assert.Equal(t, []string{abs}, changed)
	case <-ctx.Done():
		t.Fatal("no change reported")
	}
}

func TestWatcher_StopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "a")
	require.NoError(t, os.WriteFile(f, nil, 0644))

	w, err := New([]string{f}, Options{})
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- w.Run(ctx, func(context.Context, []string) error { return nil })
	}()
	cancel()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestNew_MissingDirectory(t *testing.T) {
	_, err := New([]string{filepath.Join(t.TempDir(), "missing", "x.c")}, Options{})
	assert.Error(t, err)
}
