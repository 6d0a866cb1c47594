// Package discover finds the module dependencies of a source file.
//
// Discovery is static: each file is scanned for import statements by a
// language scanner from the registry, and every imported name is resolved
// against the search path the way the interpreter would. Names that resolve
// are reported as resolved; names that do not are reported as unresolved so
// the caller can try to build them.
package discover

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/c360studio/pydep/searchpath"
)

// DefaultCacheSize is the number of scan results kept between passes.
const DefaultCacheSize = 1024

// DefaultLanguage is the scanner used for entry files whose extension has
// no registered scanner, such as executable scripts without a suffix.
const DefaultLanguage = "python"

// Config configures a Discoverer.
type Config struct {
	// Env is the environment variable holding the default search path.
	Env string

	// Builtins are module names compiled into the interpreter. They always
	// resolve and are never looked up on the search path.
	Builtins []string

	// CacheSize bounds the scan cache. Zero uses DefaultCacheSize.
	CacheSize int

	// Registry supplies scanners. Nil uses DefaultRegistry.
	Registry *ScannerRegistry

	// Language is the scanner for unregistered extensions.
	Language string

	Logger *slog.Logger
}

type cachedScan struct {
	hash   string
	result *ScanResult
}

// Discoverer computes DependencySets. It keeps a cache of scan results
// keyed by absolute path and validated by content hash, so repeated passes
// over an unchanged tree only re-read files.
type Discoverer struct {
	env      string
	builtins map[string]bool
	registry *ScannerRegistry
	language string
	logger   *slog.Logger
	cache    *lru.Cache[string, cachedScan]

	mu       sync.Mutex
	scanners map[string]ImportScanner
}

// New creates a Discoverer.
func New(cfg Config) (*Discoverer, error) {
	size := cfg.CacheSize
	if size == 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, cachedScan](size)
	if err != nil {
		return nil, fmt.Errorf("create scan cache: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = DefaultRegistry
	}
	env := cfg.Env
	if env == "" {
		env = searchpath.DefaultEnv
	}
	language := cfg.Language
	if language == "" {
		language = DefaultLanguage
	}

	builtins := make(map[string]bool, len(cfg.Builtins))
	for _, b := range cfg.Builtins {
		builtins[b] = true
	}

	return &Discoverer{
		env:      env,
		builtins: builtins,
		registry: registry,
		language: language,
		logger:   logger,
		cache:    cache,
		scanners: make(map[string]ImportScanner),
	}, nil
}

// Discover returns the dependencies of sourceFile. An empty path falls back
// to the configured environment variable; searchpath.ErrNoSearchPath is
// returned when that is unset too. Modules that fail to resolve, at any
// depth, end up in the unresolved set rather than failing the pass.
func (d *Discoverer) Discover(ctx context.Context, sourceFile string, path searchpath.SearchPath) (*DependencySet, error) {
	path, err := searchpath.Resolve(path, d.env)
	if err != nil {
		return nil, err
	}

	f := newFinder(path.Dirs(), d.builtins, d.scanFile, d.logger)
	if err := f.runScript(ctx, sourceFile); err != nil {
		return nil, fmt.Errorf("discover %s: %w", sourceFile, err)
	}

	set := f.dependencySet(sourceFile)
	d.logger.Debug("Discovered dependencies",
		"source", sourceFile,
		"resolved", len(set.Resolved),
		"unresolved", len(set.Unresolved))
	return set, nil
}

// Reset drops all cached scan results.
func (d *Discoverer) Reset() {
	d.cache.Purge()
}

func (d *Discoverer) scanFile(ctx context.Context, path string) (*ScanResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	hash := ComputeHash(content)

	key, err := filepath.Abs(path)
	if err != nil {
		key = path
	}
	if c, ok := d.cache.Get(key); ok && c.hash == hash {
		return c.result, nil
	}

	scanner, err := d.scannerFor(path)
	if err != nil {
		return nil, err
	}
	result, err := scanner.Scan(ctx, path, content)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	result.Path = path
	result.Hash = hash
	d.cache.Add(key, cachedScan{hash: hash, result: result})
	return result, nil
}

func (d *Discoverer) scannerFor(path string) (ImportScanner, error) {
	name, ok := d.registry.ScannerName(filepath.Ext(path))
	if !ok {
		name = d.language
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.scanners[name]; ok {
		return s, nil
	}
	s, err := d.registry.Create(name)
	if err != nil {
		return nil, err
	}
	d.scanners[name] = s
	return s, nil
}
