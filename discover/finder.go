package discover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	mainModule = "__main__"
	initFile   = "__init__.py"
)

// importError marks a module that could not be imported. It is recorded as
// an unresolved reference, never surfaced to the caller.
type importError struct {
	name  string
	cause error
}

func (e *importError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("no module named %s: %v", e.name, e.cause)
	}
	return "no module named " + e.name
}

func (e *importError) Unwrap() error { return e.cause }

type loadFunc func(ctx context.Context, path string) (*ScanResult, error)

type module struct {
	name   string
	path   string
	kind   Kind
	pkgDir string // set for packages only
	scan   *ScanResult
}

type location struct {
	path string
	kind Kind
}

// finder resolves the transitive imports of one entry script the way the
// interpreter's module finder does: dotted names are imported head first,
// each package in turn, against the search path or the parent package's
// directory. It lives for a single discovery pass.
type finder struct {
	dirs     []string
	builtins map[string]bool
	load     loadFunc
	logger   *slog.Logger

	modules  map[string]*module
	resolved map[string]*ModuleReference
	bad      map[string]*ModuleReference
	listings map[string]map[string]bool // dir → entry name → is dir
}

func newFinder(dirs []string, builtins map[string]bool, load loadFunc, logger *slog.Logger) *finder {
	return &finder{
		dirs:     dirs,
		builtins: builtins,
		load:     load,
		logger:   logger,
		modules:  make(map[string]*module),
		resolved: make(map[string]*ModuleReference),
		bad:      make(map[string]*ModuleReference),
		listings: make(map[string]map[string]bool),
	}
}

// runScript analyses path as the entry module. Failing to read the entry
// file is an error; failures below it are recorded as unresolved.
func (f *finder) runScript(ctx context.Context, path string) error {
	scan, err := f.load(ctx, path)
	if err != nil {
		return err
	}
	m := &module{name: mainModule, path: path, kind: KindSource, scan: scan}
	f.modules[mainModule] = m
	return f.scanModule(ctx, m)
}

func (f *finder) scanModule(ctx context.Context, m *module) error {
	for _, imp := range m.scan.Imports {
		if err := ctx.Err(); err != nil {
			return err
		}

		var err error
		switch {
		case imp.Level == 0 || imp.Module != "":
			err = f.safeImportHook(ctx, imp.Module, m, imp.Names, imp.Level)
		default:
			// from . import x
			parent, perr := f.determineParent(m, imp.Level)
			if perr != nil || parent == nil {
				f.addBad(strings.Repeat(".", imp.Level), m)
				continue
			}
			err = f.safeImportHook(ctx, parent.name, m, imp.Names, 0)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// safeImportHook imports name and each of fromlist, recording failures.
// Only context errors are returned.
func (f *finder) safeImportHook(ctx context.Context, name string, caller *module, fromlist []string, level int) error {
	key := f.badKey(name, caller, level)
	if _, ok := f.bad[key]; ok {
		f.addBad(key, caller)
		return nil
	}

	m, err := f.importHook(ctx, name, caller, nil, level)
	if err != nil {
		return f.recordFailure(err, key, caller)
	}
	f.markImported(m, caller)

	for _, sub := range fromlist {
		full := key + "." + sub
		if _, ok := f.bad[full]; ok {
			f.addBad(full, caller)
			continue
		}
		m, err := f.importHook(ctx, name, caller, []string{sub}, level)
		if err != nil {
			if err := f.recordFailure(err, full, caller); err != nil {
				return err
			}
			continue
		}
		if sm, ok := f.modules[m.name+"."+sub]; ok {
			f.markImported(sm, caller)
		}
	}
	return nil
}

func (f *finder) recordFailure(err error, name string, caller *module) error {
	var ie *importError
	if !errors.As(err, &ie) {
		return err
	}
	f.logger.Debug("Import failed", "module", name, "importer", caller.path, "error", err)
	f.addBad(name, caller)
	return nil
}

// badKey names an unresolved relative import by its absolute name when the
// parent package is known, so it can be looked up like any other module.
func (f *finder) badKey(name string, caller *module, level int) string {
	if level == 0 {
		return name
	}
	parent, err := f.determineParent(caller, level)
	if err != nil || parent == nil {
		return strings.Repeat(".", level) + name
	}
	return parent.name + "." + name
}

func (f *finder) importHook(ctx context.Context, name string, caller *module, fromlist []string, level int) (*module, error) {
	parent, err := f.determineParent(caller, level)
	if err != nil {
		return nil, err
	}
	q, tail, err := f.findHeadPackage(ctx, parent, name)
	if err != nil {
		return nil, err
	}
	m, err := f.loadTail(ctx, q, tail)
	if err != nil {
		return nil, err
	}
	if len(fromlist) > 0 && m.pkgDir != "" {
		if err := f.ensureFromlist(ctx, m, fromlist, false); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (f *finder) determineParent(caller *module, level int) (*module, error) {
	if caller == nil || level == 0 {
		return nil, nil
	}
	pname := caller.name
	if caller.pkgDir != "" {
		level--
	}
	if level == 0 {
		return f.modules[pname], nil
	}
	if strings.Count(pname, ".") < level {
		return nil, &importError{name: strings.Repeat(".", level), cause: errors.New("relative import beyond top-level package")}
	}
	parts := strings.Split(pname, ".")
	return f.modules[strings.Join(parts[:len(parts)-level], ".")], nil
}

func (f *finder) findHeadPackage(ctx context.Context, parent *module, name string) (*module, string, error) {
	head, tail := name, ""
	if i := strings.IndexByte(name, '.'); i >= 0 {
		head, tail = name[:i], name[i+1:]
	}
	qname := head
	if parent != nil {
		qname = parent.name + "." + head
	}

	q, err := f.importModule(ctx, head, qname, parent)
	if err != nil {
		return nil, "", err
	}
	if q != nil {
		return q, tail, nil
	}
	if parent != nil {
		q, err = f.importModule(ctx, head, head, nil)
		if err != nil {
			return nil, "", err
		}
		if q != nil {
			return q, tail, nil
		}
	}
	return nil, "", &importError{name: qname}
}

func (f *finder) loadTail(ctx context.Context, q *module, tail string) (*module, error) {
	m := q
	for tail != "" {
		head, rest := tail, ""
		if i := strings.IndexByte(tail, '.'); i >= 0 {
			head, rest = tail[:i], tail[i+1:]
		}
		mname := m.name + "." + head
		next, err := f.importModule(ctx, head, mname, m)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, &importError{name: mname}
		}
		m, tail = next, rest
	}
	return m, nil
}

func (f *finder) ensureFromlist(ctx context.Context, m *module, fromlist []string, recursive bool) error {
	for _, sub := range fromlist {
		if sub == "*" {
			if !recursive {
				if all := f.findAllSubmodules(m); len(all) > 0 {
					if err := f.ensureFromlist(ctx, m, all, true); err != nil {
						return err
					}
				}
			}
			continue
		}
		subname := m.name + "." + sub
		if _, ok := f.modules[subname]; ok {
			continue
		}
		submod, err := f.importModule(ctx, sub, subname, m)
		if err != nil {
			return err
		}
		if submod == nil {
			// A name bound in the package namespace is an attribute, not a
			// missing submodule. Stricter than the interpreter's finder, which
			// would still record pkg.name as bad.
			if m.scan != nil && (m.scan.StarImport || m.scan.HasGlobal(sub)) {
				continue
			}
			return &importError{name: subname}
		}
	}
	return nil
}

func (f *finder) findAllSubmodules(m *module) []string {
	var subs []string
	seen := make(map[string]bool)
	for name, isDir := range f.listing(m.pkgDir) {
		if isDir {
			continue
		}
		mod := moduleNameOf(name)
		if mod == "" || mod == "__init__" || seen[mod] {
			continue
		}
		seen[mod] = true
		subs = append(subs, mod)
	}
	sort.Strings(subs)
	return subs
}

// moduleNameOf returns the module a file in a package directory provides,
// or "" when the file is not importable.
func moduleNameOf(file string) string {
	switch {
	case strings.HasSuffix(file, ".py"):
		return strings.TrimSuffix(file, ".py")
	case strings.HasSuffix(file, ".pyc"):
		return strings.TrimSuffix(file, ".pyc")
	case strings.HasSuffix(file, ".pyd"):
		return strings.TrimSuffix(file, ".pyd")
	case strings.HasSuffix(file, ".so"):
		if i := strings.IndexByte(file, '.'); i > 0 {
			return file[:i]
		}
	}
	return ""
}

func (f *finder) importModule(ctx context.Context, partname, fqname string, parent *module) (*module, error) {
	if m, ok := f.modules[fqname]; ok {
		return m, nil
	}
	if _, ok := f.bad[fqname]; ok {
		return nil, nil
	}
	if parent != nil && parent.pkgDir == "" {
		return nil, nil
	}
	loc, ok := f.findModule(partname, parent)
	if !ok {
		return nil, nil
	}
	return f.loadModule(ctx, fqname, loc)
}

// findModule looks for partname in the parent package's directory, or on
// the search path for top-level modules. Within a directory a package wins
// over an extension module, which wins over source, then bytecode.
func (f *finder) findModule(partname string, parent *module) (location, bool) {
	dirs := f.dirs
	if parent != nil {
		dirs = []string{parent.pkgDir}
	} else if f.builtins[partname] {
		return location{kind: KindBuiltin}, true
	}

	for _, dir := range dirs {
		entries := f.listing(dir)
		if len(entries) == 0 {
			continue
		}
		base := filepath.Join(dir, partname)
		if entries[partname] && isFile(filepath.Join(base, initFile)) {
			return location{path: base, kind: KindPackage}, true
		}
		if name := extensionFile(entries, partname); name != "" {
			return location{path: filepath.Join(dir, name), kind: KindExtension}, true
		}
		if isDir, ok := entries[partname+".py"]; ok && !isDir {
			return location{path: base + ".py", kind: KindSource}, true
		}
		if isDir, ok := entries[partname+".pyc"]; ok && !isDir {
			return location{path: base + ".pyc", kind: KindCompiled}, true
		}
	}
	return location{}, false
}

func (f *finder) loadModule(ctx context.Context, fqname string, loc location) (*module, error) {
	m := &module{name: fqname, path: loc.path, kind: loc.kind}
	// Registered before scanning so import cycles terminate.
	f.modules[fqname] = m

	scanPath := ""
	switch loc.kind {
	case KindPackage:
		m.pkgDir = loc.path
		m.path = filepath.Join(loc.path, initFile)
		scanPath = m.path
	case KindSource:
		scanPath = m.path
	}

	if scanPath != "" {
		scan, err := f.load(ctx, scanPath)
		if err != nil {
			delete(f.modules, fqname)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, &importError{name: fqname, cause: err}
		}
		m.scan = scan
	}

	f.resolved[fqname] = &ModuleReference{Name: fqname, Path: m.path, Kind: m.kind}
	if m.scan != nil {
		if err := f.scanModule(ctx, m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (f *finder) markImported(m, caller *module) {
	if m == nil || caller == nil {
		return
	}
	if ref, ok := f.resolved[m.name]; ok {
		ref.addImporter(caller.path)
	}
}

func (f *finder) addBad(name string, caller *module) {
	ref, ok := f.bad[name]
	if !ok {
		ref = &ModuleReference{Name: name, Kind: KindMissing}
		f.bad[name] = ref
	}
	if caller != nil {
		ref.addImporter(caller.path)
	}
}

// listing returns the entries of dir, read once per pass. Unreadable
// directories are treated as empty, as the interpreter does.
func (f *finder) listing(dir string) map[string]bool {
	if entries, ok := f.listings[dir]; ok {
		return entries
	}
	readDir := dir
	if readDir == "" {
		readDir = "."
	}
	entries := make(map[string]bool)
	des, err := os.ReadDir(readDir)
	if err == nil {
		for _, de := range des {
			isDir := de.IsDir()
			if de.Type()&os.ModeSymlink != 0 {
				if info, err := os.Stat(filepath.Join(readDir, de.Name())); err == nil {
					isDir = info.IsDir()
				}
			}
			entries[de.Name()] = isDir
		}
	}
	f.listings[dir] = entries
	return entries
}

// extensionFile returns the extension module file for partname in a
// directory listing: partname.so, partname.pyd or partname.<tag>.so where
// tag is an ABI tag (abi3, cpython-*, pypy*) with no dots. Tagged names win
// over plain .so; ties go to the first in sorted order.
func extensionFile(entries map[string]bool, partname string) string {
	var tagged []string
	for name, isDir := range entries {
		if isDir || !strings.HasPrefix(name, partname+".") || !strings.HasSuffix(name, ".so") {
			continue
		}
		tag := strings.TrimSuffix(strings.TrimPrefix(name, partname+"."), ".so")
		if isABITag(tag) {
			tagged = append(tagged, name)
		}
	}
	if len(tagged) > 0 {
		sort.Strings(tagged)
		return tagged[0]
	}
	for _, name := range []string{partname + ".so", partname + ".pyd"} {
		if isDir, ok := entries[name]; ok && !isDir {
			return name
		}
	}
	return ""
}

func isABITag(tag string) bool {
	if tag == "" || strings.Contains(tag, ".") {
		return false
	}
	return tag == "abi3" || strings.HasPrefix(tag, "cpython-") || strings.HasPrefix(tag, "pypy")
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// dependencySet collects the pass results, excluding the entry script.
func (f *finder) dependencySet(source string) *DependencySet {
	set := newDependencySet(source)
	for name, ref := range f.resolved {
		if name == mainModule {
			continue
		}
		set.Resolved[name] = ref
	}
	for name, ref := range f.bad {
		if _, ok := set.Resolved[name]; ok {
			continue
		}
		set.Unresolved[name] = ref
	}
	return set
}
