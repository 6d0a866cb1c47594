// Package watch re-runs dependency building when Python sources change.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/c360studio/pydep/discover"
)

// DefaultDebounce is how long changes are collected before the handler runs.
const DefaultDebounce = 200 * time.Millisecond

// Handler is called with the changed files of one debounce window, sorted.
// A returned error is logged; watching continues.
type Handler func(ctx context.Context, changed []string) error

// Config configures a Watcher.
type Config struct {
	// Dirs are watched non-recursively. Missing directories are skipped.
	Dirs []string

	// Extensions selects the files that trigger the handler.
	// Default ".py".
	Extensions []string

	Debounce time.Duration
	Logger   *slog.Logger
}

// Watcher watches directories for source changes.
type Watcher struct {
	watcher    *fsnotify.Watcher
	extensions map[string]bool
	debounce   time.Duration
	logger     *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op

	hashMu sync.Mutex
	hashes map[string]string

	dirsMu sync.Mutex
	dirs   map[string]bool
}

// New creates a Watcher and starts watching cfg.Dirs.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	exts := cfg.Extensions
	if len(exts) == 0 {
		exts = []string{".py"}
	}

	w := &Watcher{
		watcher:    fsw,
		extensions: make(map[string]bool, len(exts)),
		debounce:   debounce,
		logger:     logger,
		pending:    make(map[string]fsnotify.Op),
		hashes:     make(map[string]string),
		dirs:       make(map[string]bool),
	}
	for _, e := range exts {
		w.extensions[e] = true
	}
	for _, d := range cfg.Dirs {
		w.Add(d)
	}
	return w, nil
}

// Add starts watching dir. Adding a directory twice, or one that does not
// exist, is not an error.
func (w *Watcher) Add(dir string) {
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = filepath.Clean(dir)
	}

	w.dirsMu.Lock()
	defer w.dirsMu.Unlock()
	if w.dirs[abs] {
		return
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		w.logger.Debug("Skipping watch of missing directory", "path", abs)
		return
	}
	if err := w.watcher.Add(abs); err != nil {
		w.logger.Warn("Failed to watch directory", "path", abs, "error", err)
		return
	}
	w.dirs[abs] = true
	w.logger.Debug("Watching directory", "path", abs)
}

// Dirs returns the watched directories, sorted.
func (w *Watcher) Dirs() []string {
	w.dirsMu.Lock()
	defer w.dirsMu.Unlock()
	out := make([]string, 0, len(w.dirs))
	for d := range w.dirs {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Run delivers changes to handle until ctx is cancelled, then closes the
// watcher.
func (w *Watcher) Run(ctx context.Context, handle Handler) error {
	defer w.watcher.Close()

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	w.logger.Info("Watching for changes", "dirs", len(w.Dirs()), "debounce", w.debounce)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx, handle)
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	if !w.extensions[filepath.Ext(event.Name)] {
		return
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return
	}
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	w.pendingMu.Lock()
	w.pending[event.Name] = event.Op
	w.pendingMu.Unlock()

	w.logger.Debug("File change detected", "path", event.Name, "op", event.Op.String())
}

// flushPending hands the files that actually changed content to handle.
func (w *Watcher) flushPending(ctx context.Context, handle Handler) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	pending := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	var changed []string
	for path, op := range pending {
		if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
			w.forget(path)
			changed = append(changed, path)
			continue
		}
		if w.contentChanged(path) {
			changed = append(changed, path)
		}
	}
	if len(changed) == 0 {
		return
	}
	sort.Strings(changed)

	if err := handle(ctx, changed); err != nil {
		w.logger.Error("Change handler failed", "files", len(changed), "error", err)
	}
}

func (w *Watcher) contentChanged(path string) bool {
	content, err := os.ReadFile(path)
	if err != nil {
		w.forget(path)
		return true
	}
	hash := discover.ComputeHash(content)

	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	if w.hashes[path] == hash {
		return false
	}
	w.hashes[path] = hash
	return true
}

func (w *Watcher) forget(path string) {
	w.hashMu.Lock()
	delete(w.hashes, path)
	w.hashMu.Unlock()
}
