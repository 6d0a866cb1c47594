package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recorder) handle(_ context.Context, changed []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, changed)
	return nil
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.calls {
		out = append(out, c...)
	}
	return out
}

func TestNew_SkipsMissingDirs(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Config{Dirs: []string{dir, filepath.Join(dir, "missing"), dir}})
	require.NoError(t, err)
	defer w.watcher.Close()

	abs, _ := filepath.Abs(dir)
	assert.Equal(t, []string{abs}, w.Dirs())
}

func TestRun_DeliversChanges(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Config{Dirs: []string{dir}, Debounce: 20 * time.Millisecond})
	require.NoError(t, err)

	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, rec.handle) }()

	src := filepath.Join(dir, "mod.py")
	require.NoError(t, os.WriteFile(src, []byte("import os\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	assert.Eventually(t, func() bool {
		return len(rec.all()) > 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	for _, p := range rec.all() {
		assert.Equal(t, src, p, "only .py files are reported")
	}
}

func TestFlushPending_SkipsUnchangedContent(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Config{Dirs: []string{dir}})
	require.NoError(t, err)
	defer w.watcher.Close()

	src := filepath.Join(dir, "mod.py")
	require.NoError(t, os.WriteFile(src, []byte("import os\n"), 0o644))

	rec := &recorder{}
	ctx := context.Background()

	w.pending[src] = 0
	w.flushPending(ctx, rec.handle)
	assert.Len(t, rec.calls, 1)

	// Same content again: nothing to report.
	w.pending[src] = 0
	w.flushPending(ctx, rec.handle)
	assert.Len(t, rec.calls, 1)

	require.NoError(t, os.WriteFile(src, []byte("import sys\n"), 0o644))
	w.pending[src] = 0
	w.flushPending(ctx, rec.handle)
	assert.Len(t, rec.calls, 2)

	require.NoError(t, os.Remove(src))
	w.pending[src] = 0
	w.flushPending(ctx, rec.handle)
	assert.Len(t, rec.calls, 3, "deletions are changes")
}
