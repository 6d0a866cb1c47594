package sourcedb

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// DefaultPattern matches redo rules that produce Python modules.
const DefaultPattern = "**/*.py.do"

// Putter is the write side of the database used by the Indexer.
type Putter interface {
	Put(ctx context.Context, module, path string) error
}

// Manifest lists modules and the files that build them. Relative paths are
// relative to the manifest's directory.
type Manifest struct {
	Modules map[string]string `yaml:"modules"`
}

// Indexer populates the database from redo rule files and manifests.
type Indexer struct {
	db     Putter
	logger *slog.Logger
}

// NewIndexer creates an Indexer writing to db.
func NewIndexer(db Putter, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{db: db, logger: logger}
}

// IndexRules finds redo rules under root matching patterns and records the
// module each one builds. A rule "gen/pkg/mod.py.do" builds "gen/pkg/mod.py",
// which provides "pkg.mod" when gen/pkg is a package. Default rules
// ("default.py.do") build no particular module and are skipped. Returns the
// number of modules recorded.
func (ix *Indexer) IndexRules(ctx context.Context, root string, patterns []string) (int, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return 0, fmt.Errorf("resolve root: %w", err)
	}
	if len(patterns) == 0 {
		patterns = []string{DefaultPattern}
	}

	fsys := os.DirFS(absRoot)
	seen := make(map[string]bool)
	var rules []string
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return 0, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				rules = append(rules, m)
			}
		}
	}
	sort.Strings(rules)

	count := 0
	for _, rel := range rules {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		target := strings.TrimSuffix(rel, ".do")
		if target == rel || filepath.Ext(target) != ".py" {
			continue
		}
		if strings.HasPrefix(filepath.Base(target), "default.") {
			continue
		}

		module := ModuleName(fsys, target)
		if module == "" {
			continue
		}
		path := filepath.Join(absRoot, filepath.FromSlash(target))
		if err := ix.db.Put(ctx, module, path); err != nil {
			return count, fmt.Errorf("record %s: %w", module, err)
		}
		ix.logger.Debug("Indexed rule", "module", module, "path", path)
		count++
	}

	ix.logger.Info("Indexed redo rules", "root", absRoot, "modules", count)
	return count, nil
}

// IndexManifest records every module listed in the YAML manifest at path.
func (ix *Indexer) IndexManifest(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return 0, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	base := filepath.Dir(path)
	names := make([]string, 0, len(m.Modules))
	for name := range m.Modules {
		names = append(names, name)
	}
	sort.Strings(names)

	for i, name := range names {
		src := m.Modules[name]
		if !filepath.IsAbs(src) {
			src = filepath.Join(base, src)
		}
		if err := ix.db.Put(ctx, name, src); err != nil {
			return i, fmt.Errorf("record %s: %w", name, err)
		}
	}

	ix.logger.Info("Indexed manifest", "path", path, "modules", len(names))
	return len(names), nil
}

// ModuleName returns the dotted module name provided by the slash-separated
// .py file rel within fsys. Enclosing directories are prefixed for as long
// as they are packages, or will be once their __init__.py is built.
func ModuleName(fsys fs.FS, rel string) string {
	name := strings.TrimSuffix(filepath.Base(rel), ".py")
	if name == "__init__" {
		rel = filepath.Dir(rel)
		if rel == "." {
			return ""
		}
		name = filepath.Base(rel)
	}
	for dir := filepath.Dir(rel); dir != "." && dir != "/"; dir = filepath.Dir(dir) {
		if !isPackage(fsys, dir) {
			break
		}
		name = filepath.Base(dir) + "." + name
	}
	return name
}

func isPackage(fsys fs.FS, dir string) bool {
	for _, f := range []string{"__init__.py", "__init__.py.do"} {
		if _, err := fs.Stat(fsys, filepath.ToSlash(filepath.Join(dir, f))); err == nil {
			return true
		}
	}
	return false
}
