package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360studio/pydep/builder"
	"github.com/c360studio/pydep/config"
	"github.com/c360studio/pydep/discover"
	"github.com/c360studio/pydep/redo"
	"github.com/c360studio/pydep/rule"
	"github.com/c360studio/pydep/searchpath"
	"github.com/c360studio/pydep/shell"
	"github.com/c360studio/pydep/sourcedb"
	"github.com/c360studio/pydep/watch"
)

// App wires the configured components together.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer

	registry   *prometheus.Registry
	discoverer *discover.Discoverer
	builder    *builder.Builder
	runner     *shell.Runner

	// memStore backs the database when it is configured in memory; it must
	// outlive every lookup.
	memStore *sourcedb.Store
	opener   sourcedb.Opener

	path searchpath.SearchPath
}

// NewApp creates the application from cfg.
func NewApp(cfg *config.Config, logger *slog.Logger, stdout, stderr io.Writer) (*App, error) {
	a := &App{
		cfg:      cfg,
		logger:   logger,
		stdout:   stdout,
		stderr:   stderr,
		registry: prometheus.NewRegistry(),
	}

	// Resolved once so that extending it keeps the environment entries. An
	// unset variable leaves it empty; discovery reports that error.
	if p, err := searchpath.Resolve(searchpath.New(cfg.SearchPath.Dirs...), cfg.SearchPath.Env); err == nil {
		a.path = p
	}

	disc, err := discover.New(discover.Config{
		Env:       cfg.SearchPath.Env,
		Builtins:  cfg.Python.Builtins,
		CacheSize: cfg.Discover.CacheSize,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create discoverer: %w", err)
	}
	a.discoverer = disc

	if cfg.Database.InMemory {
		store, err := sourcedb.Open(sourcedb.Config{InMemory: true, Logger: logger})
		if err != nil {
			return nil, err
		}
		a.memStore = store
		a.opener = sourcedb.SharedOpener(store)
	} else {
		a.opener = sourcedb.StoreOpener(a.storeConfig())
	}

	client, err := redo.New(redo.Config{
		Command: cfg.Redo.Command,
		Dir:     cfg.Project.Root,
		Timeout: cfg.Redo.Timeout,
		Stdout:  stderr,
		Stderr:  stderr,
		Logger:  logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	b, err := builder.New(builder.Config{
		Discoverer: disc,
		Locator:    sourcedb.NewLocator(a.opener, logger),
		Rebuilder:  client,
		Metrics:    builder.NewMetrics(a.registry),
		Logger:     logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.builder = b

	a.runner = &shell.Runner{Stdout: stdout, Stderr: stderr, Logger: logger}
	return a, nil
}

func (a *App) storeConfig() sourcedb.Config {
	return sourcedb.Config{Path: a.cfg.DatabasePath(), Logger: a.logger}
}

// openStore opens the database for direct access. The caller closes it.
func (a *App) openStore() (*sourcedb.Store, func() error, error) {
	if a.memStore != nil {
		return a.memStore, func() error { return nil }, nil
	}
	s, err := sourcedb.Open(a.storeConfig())
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

// reset clears per-invocation state so the next rule starts clean.
func (a *App) reset() {
	a.discoverer.Reset()
}

// Discover reports the dependencies of source.
func (a *App) Discover(ctx context.Context, source string) (*discover.DependencySet, error) {
	return a.discoverer.Discover(ctx, source, a.path)
}

// Build builds the missing dependencies of source. With updatePath the
// application search path is extended by their directories.
func (a *App) Build(ctx context.Context, source string, updatePath bool) (*rule.Artifacts, error) {
	var r rule.Rule
	if updatePath {
		r = &rule.DepsWithPath{Builder: a.builder, Path: &a.path, Env: a.cfg.SearchPath.Env, Logger: a.logger}
	} else {
		r = &rule.DepsOnly{Builder: a.builder, Path: a.path}
	}
	return rule.Invoke(ctx, r, source, a.reset)
}

// RunScript builds the dependencies of source and runs it.
func (a *App) RunScript(ctx context.Context, source string) (*rule.Artifacts, error) {
	r := &rule.RunScript{
		Builder:     a.builder,
		Path:        a.path,
		Runner:      a.runner,
		Interpreter: a.cfg.Python.Interpreter,
		Env:         a.cfg.SearchPath.Env,
	}
	return rule.Invoke(ctx, r, source, a.reset)
}

// Index populates the database from redo rules under the project root and
// the configured manifests.
func (a *App) Index(ctx context.Context, patterns, manifests []string) (int, error) {
	store, closeStore, err := a.openStore()
	if err != nil {
		return 0, err
	}
	defer closeStore()

	ix := sourcedb.NewIndexer(store, a.logger)
	total, err := ix.IndexRules(ctx, a.cfg.Project.Root, patterns)
	if err != nil {
		return total, err
	}
	for _, m := range manifests {
		n, err := ix.IndexManifest(ctx, m)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Watch builds the dependencies of source, then rebuilds them whenever a
// watched Python file changes.
func (a *App) Watch(ctx context.Context, source string, onBuild func(*rule.Artifacts)) error {
	art, err := a.Build(ctx, source, true)
	if err != nil {
		return err
	}
	onBuild(art)

	dirs := append([]string{filepath.Dir(source)}, a.path.Dirs()...)
	w, err := watch.New(watch.Config{
		Dirs:     dirs,
		Debounce: a.cfg.Watch.Debounce,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}

	return w.Run(ctx, func(ctx context.Context, changed []string) error {
		a.logger.Info("Sources changed", "files", changed)
		art, err := a.Build(ctx, source, true)
		if err != nil {
			return err
		}
		for _, d := range art.Dirs {
			w.Add(d)
		}
		onBuild(art)
		return nil
	})
}

// WriteMetrics writes the collected metrics in the prometheus text format.
func (a *App) WriteMetrics(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, a.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

// Close releases the in-memory database, if any.
func (a *App) Close() {
	if a.memStore != nil {
		if err := a.memStore.Close(); err != nil {
			a.logger.Warn("Failed to close database", "error", err)
		}
		a.memStore = nil
	}
}
