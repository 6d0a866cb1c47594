package discover

import "sort"

// Kind classifies how a resolved module is backed.
type Kind string

const (
	KindSource    Kind = "source"    // a .py file
	KindPackage   Kind = "package"   // a directory with __init__.py
	KindExtension Kind = "extension" // a compiled extension module
	KindCompiled  Kind = "compiled"  // a .pyc without source
	KindBuiltin   Kind = "builtin"   // compiled into the interpreter
	KindMissing   Kind = "missing"   // unresolved
)

// ModuleReference is a module named by source code. Resolved references
// carry the file they were found at; unresolved ones only a name.
type ModuleReference struct {
	Name string
	Path string
	Kind Kind

	// ImportedBy lists the files that named this module, in discovery order.
	ImportedBy []string
}

// Resolved reports whether the module was found.
func (m *ModuleReference) Resolved() bool {
	return m.Kind != KindMissing
}

func (m *ModuleReference) addImporter(path string) {
	if path == "" {
		return
	}
	for _, p := range m.ImportedBy {
		if p == path {
			return
		}
	}
	m.ImportedBy = append(m.ImportedBy, path)
}

// DependencySet is the outcome of one discovery pass. The two maps are
// disjoint and keyed by module name.
type DependencySet struct {
	Source     string
	Resolved   map[string]*ModuleReference
	Unresolved map[string]*ModuleReference
}

func newDependencySet(source string) *DependencySet {
	return &DependencySet{
		Source:     source,
		Resolved:   make(map[string]*ModuleReference),
		Unresolved: make(map[string]*ModuleReference),
	}
}

// ResolvedNames returns the resolved module names, sorted.
func (s *DependencySet) ResolvedNames() []string {
	return sortedKeys(s.Resolved)
}

// UnresolvedNames returns the unresolved module names, sorted.
func (s *DependencySet) UnresolvedNames() []string {
	return sortedKeys(s.Unresolved)
}

// Empty reports whether the pass found no dependencies at all.
func (s *DependencySet) Empty() bool {
	return len(s.Resolved) == 0 && len(s.Unresolved) == 0
}

func sortedKeys(m map[string]*ModuleReference) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
