package sourcedb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Database is the query side of the module-source database.
type Database interface {
	TryGetSources(ctx context.Context, names []string) ([]string, error)
	Close() error
}

// Opener acquires a database session. The Locator closes every session it
// opens before returning.
type Opener func(ctx context.Context) (Database, error)

// StoreOpener returns an Opener over a badger Store opened with cfg.
func StoreOpener(cfg Config) Opener {
	return func(ctx context.Context) (Database, error) {
		return Open(cfg)
	}
}

// SharedOpener hands out db itself; Close on the session is a no-op so the
// caller keeps ownership. Used with in-memory stores, which lose their data
// when closed.
func SharedOpener(db Database) Opener {
	return func(ctx context.Context) (Database, error) {
		return nopCloser{db}, nil
	}
}

type nopCloser struct {
	Database
}

func (nopCloser) Close() error { return nil }

// Locator maps unresolved module names to candidate source files.
type Locator struct {
	open   Opener
	logger *slog.Logger
}

// NewLocator creates a Locator.
func NewLocator(open Opener, logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{open: open, logger: logger}
}

// Locate returns the known sources of names, dropping names with none. The
// database is opened and released within the call, so it is never held
// across a rebuild. Failures surface unchanged; there is no retry.
func (l *Locator) Locate(ctx context.Context, names []string) (sources []string, err error) {
	if len(names) == 0 {
		return nil, nil
	}

	db, err := l.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open source database: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close source database: %w", cerr))
		}
	}()

	sources, err = db.TryGetSources(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("look up sources: %w", err)
	}
	l.logger.Debug("Located module sources", "modules", len(names), "sources", len(sources))
	return sources, nil
}
