// Package rule adapts dependency building to the build-rule convention:
// a rule builds one target and reports what it produced.
package rule

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/c360studio/pydep/builder"
	"github.com/c360studio/pydep/searchpath"
)

// Artifacts is what a rule reports after building a target.
type Artifacts struct {
	// NotOnPath are the sources built for the target whose directories are
	// not on the search path.
	NotOnPath []string

	// Dirs are the distinct directories of NotOnPath.
	Dirs []string

	// ExitCode is the exit status of a script run by the rule.
	ExitCode int
}

// Rule builds a target.
type Rule interface {
	Build(ctx context.Context, target string) (*Artifacts, error)
}

// Context carries the redo rule arguments for callers that need more than
// the target: $2 is the target without its extension and $3 the temporary
// output file.
type Context struct {
	Target  string
	Stem    string
	LogPath string
}

// NewContext derives the rule arguments for target.
func NewContext(target string) Context {
	return Context{
		Target:  target,
		Stem:    strings.TrimSuffix(target, filepath.Ext(target)),
		LogPath: target + ".out",
	}
}

// DepsBuilder builds the missing dependencies of a source file.
type DepsBuilder interface {
	BuildMissingDeps(ctx context.Context, source string, path searchpath.SearchPath) (*builder.Result, error)
}

// DirsToAdd returns the distinct directories of paths, sorted.
func DirsToAdd(paths []string) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, p := range paths {
		d := filepath.Dir(p)
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	sort.Strings(dirs)
	return dirs
}

// Invoke builds target with r and then calls reset, whether or not the
// build succeeded, so the next invocation starts from clean state. reset
// may be nil.
func Invoke(ctx context.Context, r Rule, target string, reset func()) (*Artifacts, error) {
	if reset != nil {
		defer reset()
	}
	return r.Build(ctx, target)
}

func artifacts(res *builder.Result) *Artifacts {
	return &Artifacts{
		NotOnPath: res.NotOnPath,
		Dirs:      DirsToAdd(res.NotOnPath),
	}
}
