// Package searchpath provides the ordered directory list used to resolve
// module names to source files.
package searchpath

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// DefaultEnv is the environment variable read when no search path is given.
const DefaultEnv = "PYTHONPATH"

const separator = ":"

// ErrNoSearchPath is returned when neither an explicit search path nor the
// environment variable is available.
var ErrNoSearchPath = errors.New("no search path available")

// SearchPath is an ordered sequence of directories. Lookups are first-match,
// so duplicates are harmless. The zero value is an empty path.
type SearchPath struct {
	dirs []string
}

// New returns a search path over dirs, in order.
func New(dirs ...string) SearchPath {
	return SearchPath{dirs: append([]string(nil), dirs...)}
}

// Parse splits a colon-separated list. Empty entries are kept; they resolve
// relative to the working directory.
func Parse(s string) SearchPath {
	return New(strings.Split(s, separator)...)
}

// FromEnv reads a colon-separated search path from the named variable.
func FromEnv(name string) (SearchPath, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return SearchPath{}, fmt.Errorf("%w: %s is not set", ErrNoSearchPath, name)
	}
	return Parse(v), nil
}

// Resolve returns explicit when it is non-empty, otherwise the path read from
// the environment variable env.
func Resolve(explicit SearchPath, env string) (SearchPath, error) {
	if explicit.Len() > 0 {
		return explicit, nil
	}
	if env == "" {
		env = DefaultEnv
	}
	return FromEnv(env)
}

// Dirs returns a copy of the directories in order.
func (p SearchPath) Dirs() []string {
	return append([]string(nil), p.dirs...)
}

// Len returns the number of entries.
func (p SearchPath) Len() int {
	return len(p.dirs)
}

// String returns the colon-joined form suitable for an environment variable.
func (p SearchPath) String() string {
	return strings.Join(p.dirs, separator)
}

// Contains reports whether dir is an entry of the path.
func (p SearchPath) Contains(dir string) bool {
	for _, d := range p.dirs {
		if d == dir {
			return true
		}
	}
	return false
}

// Extend returns a new path with dirs appended. The receiver is unchanged.
func (p SearchPath) Extend(dirs ...string) SearchPath {
	out := make([]string, 0, len(p.dirs)+len(dirs))
	out = append(out, p.dirs...)
	out = append(out, dirs...)
	return SearchPath{dirs: out}
}

// Append extends a caller-owned path in place.
func (p *SearchPath) Append(dirs ...string) {
	p.dirs = append(p.dirs, dirs...)
}
