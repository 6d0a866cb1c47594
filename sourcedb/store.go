// Package sourcedb maps module names to the source files that build them.
//
// The database is an embedded badger store. Each module key holds one or
// more candidate source paths; a redo rule for any of them produces the
// module. The Locator gives the builder scoped access to it.
package sourcedb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

const keyPrefix = "py_source/"

var (
	// ErrNotFound is returned by Get for a module with no known source.
	ErrNotFound = errors.New("module not found")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("database is closed")
)

// Config configures Open.
type Config struct {
	// Path is the database directory. Required unless InMemory is set.
	Path string

	// InMemory keeps everything in memory. Data is lost on Close.
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	Logger *slog.Logger
}

// badgerLogger routes badger's internal logging to slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Store is the badger-backed module-source database.
type Store struct {
	mu     sync.RWMutex
	db     *badger.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
		opts = opts.WithLogger(nil)
	} else {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close releases the database. Closing twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Put records path as a candidate source for module. Existing candidates
// are kept; adding the same path twice has no effect.
func (s *Store) Put(ctx context.Context, module, path string) error {
	if module == "" || path == "" {
		return errors.New("module and path are required")
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		paths, err := getPaths(txn, module)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		for _, p := range paths {
			if p == path {
				return nil
			}
		}
		paths = append(paths, path)
		return txn.Set(key(module), encodePaths(paths))
	})
}

// Get returns the candidate sources of module.
func (s *Store) Get(ctx context.Context, module string) ([]string, error) {
	var paths []string
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		paths, err = getPaths(txn, module)
		return err
	})
	return paths, err
}

// Delete removes module. Deleting an unknown module is not an error.
func (s *Store) Delete(ctx context.Context, module string) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return txn.Delete(key(module))
	})
}

// List returns every module with its candidate sources.
func (s *Store) List(ctx context.Context) (map[string][]string, error) {
	out := make(map[string][]string)
	err := s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			module := strings.TrimPrefix(string(item.Key()), keyPrefix)
			err := item.Value(func(val []byte) error {
				out[module] = decodePaths(val)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TryGetSources returns the candidate sources of every name that has one.
// Unknown names are dropped. The result is sorted and deduplicated.
func (s *Store) TryGetSources(ctx context.Context, names []string) ([]string, error) {
	seen := make(map[string]bool)
	var sources []string
	err := s.view(ctx, func(txn *badger.Txn) error {
		for _, name := range names {
			paths, err := getPaths(txn, name)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			for _, p := range paths {
				if !seen[p] {
					seen[p] = true
					sources = append(sources, p)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(sources)
	return sources, nil
}

func (s *Store) view(ctx context.Context, fn func(*badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}
	return s.db.View(fn)
}

func (s *Store) update(ctx context.Context, fn func(*badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}
	return s.db.Update(fn)
}

func getPaths(txn *badger.Txn, module string) ([]string, error) {
	item, err := txn.Get(key(module))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, module)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", module, err)
	}
	var paths []string
	err = item.Value(func(val []byte) error {
		paths = decodePaths(val)
		return nil
	})
	return paths, err
}

func key(module string) []byte {
	return []byte(keyPrefix + module)
}

func encodePaths(paths []string) []byte {
	return []byte(strings.Join(paths, "\n"))
}

func decodePaths(val []byte) []string {
	if len(val) == 0 {
		return nil
	}
	return strings.Split(string(val), "\n")
}
