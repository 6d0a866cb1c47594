package rule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/pydep/searchpath"
	"github.com/c360studio/pydep/shell"
)

// DepsOnly builds the dependencies of the target and leaves the search path
// alone.
type DepsOnly struct {
	Builder DepsBuilder
	Path    searchpath.SearchPath
}

func (r *DepsOnly) Build(ctx context.Context, target string) (*Artifacts, error) {
	res, err := r.Builder.BuildMissingDeps(ctx, target, r.Path)
	if err != nil {
		return nil, err
	}
	return artifacts(res), nil
}

// DepsWithPath builds the dependencies of the target and appends their
// directories to Path, which the caller owns. An empty Path is first
// filled from the Env variable so the extension keeps its entries.
// Repeated builds may append the same directory more than once.
type DepsWithPath struct {
	Builder DepsBuilder
	Path    *searchpath.SearchPath
	Env     string // default searchpath.DefaultEnv
	Logger  *slog.Logger
}

func (r *DepsWithPath) Build(ctx context.Context, target string) (*Artifacts, error) {
	if r.Path == nil {
		return nil, errors.New("search path to extend is nil")
	}
	if r.Path.Len() == 0 {
		resolved, err := searchpath.Resolve(*r.Path, r.Env)
		if err != nil {
			return nil, err
		}
		*r.Path = resolved
	}
	res, err := r.Builder.BuildMissingDeps(ctx, target, *r.Path)
	if err != nil {
		return nil, err
	}
	a := artifacts(res)
	r.Path.Append(a.Dirs...)
	if r.Logger != nil && len(a.Dirs) > 0 {
		r.Logger.Info("Extended search path", "dirs", a.Dirs)
	}
	return a, nil
}

// Runner executes a shell command line.
type Runner interface {
	Run(ctx context.Context, commandLine string) (int, error)
}

// RunScript builds the dependencies of the target, then runs the target
// with the interpreter, with the dependency directories appended to the
// search-path variable.
type RunScript struct {
	Builder     DepsBuilder
	Path        searchpath.SearchPath
	Runner      Runner
	Interpreter string // default "python"
	Env         string // default searchpath.DefaultEnv
}

func (r *RunScript) Build(ctx context.Context, target string) (*Artifacts, error) {
	res, err := r.Builder.BuildMissingDeps(ctx, target, r.Path)
	if err != nil {
		return nil, err
	}
	a := artifacts(res)

	cmd := r.CommandLine(target, a.Dirs)
	code, err := r.Runner.Run(ctx, cmd)
	a.ExitCode = code
	if err != nil {
		return a, fmt.Errorf("run %s: %w", target, err)
	}
	return a, nil
}

// CommandLine returns the shell command that runs target with dirs appended
// to the search-path variable. With no dirs the variable is passed through
// unchanged; no trailing empty entry is added, so the working directory is
// not put on the child's import path.
func (r *RunScript) CommandLine(target string, dirs []string) string {
	env := r.Env
	if env == "" {
		env = searchpath.DefaultEnv
	}
	interpreter := r.Interpreter
	if interpreter == "" {
		interpreter = "python"
	}

	var b strings.Builder
	b.WriteString(env + "=$" + env)
	for _, d := range dirs {
		b.WriteString(":" + shell.Quote(d))
	}
	b.WriteString(" " + interpreter + " " + shell.Quote(target))
	return b.String()
}
