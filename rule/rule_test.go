package rule

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/pydep/builder"
	"github.com/c360studio/pydep/discover"
	_ "github.com/c360studio/pydep/discover/python"
	"github.com/c360studio/pydep/searchpath"
	"github.com/c360studio/pydep/shell"
	"github.com/c360studio/pydep/sourcedb"
)

type fakeBuilder struct {
	notOnPath []string
	err       error
	paths     []searchpath.SearchPath
}

func (f *fakeBuilder) BuildMissingDeps(_ context.Context, _ string, path searchpath.SearchPath) (*builder.Result, error) {
	f.paths = append(f.paths, path)
	if f.err != nil {
		return nil, f.err
	}
	return &builder.Result{NotOnPath: f.notOnPath}, nil
}

type fakeRunner struct {
	commands []string
	code     int
	err      error
}

func (f *fakeRunner) Run(_ context.Context, commandLine string) (int, error) {
	f.commands = append(f.commands, commandLine)
	return f.code, f.err
}

func TestNewContext(t *testing.T) {
	c := NewContext("/src/tool.py")
	assert.Equal(t, Context{Target: "/src/tool.py", Stem: "/src/tool", LogPath: "/src/tool.py.out"}, c)
}

func TestDirsToAdd(t *testing.T) {
	got := DirsToAdd([]string{"/gen/b/x.py", "/gen/a/y.py", "/gen/b/z.py"})
	assert.Equal(t, []string{"/gen/a", "/gen/b"}, got)
	assert.Empty(t, DirsToAdd(nil))
}

func TestDepsOnly(t *testing.T) {
	b := &fakeBuilder{notOnPath: []string{"/gen/beta.py"}}
	path := searchpath.New("/lib")
	r := &DepsOnly{Builder: b, Path: path}

	a, err := r.Build(context.Background(), "/src/main.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"/gen/beta.py"}, a.NotOnPath)
	assert.Equal(t, []string{"/gen"}, a.Dirs)
	assert.Equal(t, []string{"/lib"}, path.Dirs())
}

func TestDepsWithPath(t *testing.T) {
	b := &fakeBuilder{notOnPath: []string{"/gen/beta.py", "/gen/gamma.py"}}
	path := searchpath.New("/lib")
	r := &DepsWithPath{Builder: b, Path: &path}

	_, err := r.Build(context.Background(), "/src/main.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"/lib", "/gen"}, path.Dirs())

	// The builder saw the path as it was before the extension.
	assert.Equal(t, []string{"/lib"}, b.paths[0].Dirs())

	_, err = r.Build(context.Background(), "/src/main.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"/lib", "/gen", "/gen"}, path.Dirs(), "duplicates accumulate")
}

func TestDepsWithPath_EmptyPathKeepsEnvironment(t *testing.T) {
	t.Setenv("PYDEP_TEST_PATH", "/lib:/site")
	b := &fakeBuilder{notOnPath: []string{"/gen/beta.py"}}
	var path searchpath.SearchPath
	r := &DepsWithPath{Builder: b, Path: &path, Env: "PYDEP_TEST_PATH"}

	_, err := r.Build(context.Background(), "/src/main.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"/lib", "/site"}, b.paths[0].Dirs())
	assert.Equal(t, []string{"/lib", "/site", "/gen"}, path.Dirs())
}

func TestDepsWithPath_EmptyPathNoEnvironment(t *testing.T) {
	var path searchpath.SearchPath
	r := &DepsWithPath{Builder: &fakeBuilder{}, Path: &path, Env: "PYDEP_TEST_UNSET_PATH"}
	_, err := r.Build(context.Background(), "/src/main.py")
	assert.ErrorIs(t, err, searchpath.ErrNoSearchPath)
}

// touchRebuilder creates each requested target as an empty file.
type touchRebuilder struct{}

func (touchRebuilder) RedoIfChange(_ context.Context, targets ...string) error {
	for _, target := range targets {
		if err := os.WriteFile(target, nil, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func TestDepsWithPath_RebuildKeepsEnvironmentModules(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	lib := filepath.Join(root, "lib")
	gen := filepath.Join(root, "gen")
	require.NoError(t, os.MkdirAll(lib, 0o755))
	require.NoError(t, os.MkdirAll(gen, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(lib, "alpha.py"), nil, 0o644))
	entry := filepath.Join(root, "main.py")
	require.NoError(t, os.WriteFile(entry, []byte("import alpha\nimport beta\n"), 0o644))
	t.Setenv("PYTHONPATH", lib)

	store, err := sourcedb.Open(sourcedb.Config{InMemory: true})
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Put(ctx, "beta", filepath.Join(gen, "beta.py")))

	disc, err := discover.New(discover.Config{})
	require.NoError(t, err)
	b, err := builder.New(builder.Config{
		Discoverer: disc,
		Locator:    sourcedb.NewLocator(sourcedb.SharedOpener(store), nil),
		Rebuilder:  touchRebuilder{},
	})
	require.NoError(t, err)

	var path searchpath.SearchPath
	r := &DepsWithPath{Builder: b, Path: &path}
	_, err = Invoke(ctx, r, entry, disc.Reset)
	require.NoError(t, err)
	assert.Equal(t, []string{lib, gen}, path.Dirs())

	set, err := disc.Discover(ctx, entry, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, set.ResolvedNames())
	assert.Empty(t, set.UnresolvedNames())
}

func TestDepsWithPath_NilPath(t *testing.T) {
	r := &DepsWithPath{Builder: &fakeBuilder{}}
	_, err := r.Build(context.Background(), "/src/main.py")
	assert.Error(t, err)
}

func TestRunScript(t *testing.T) {
	b := &fakeBuilder{notOnPath: []string{"/gen/beta.py", "/other dir/x.py"}}
	run := &fakeRunner{}
	r := &RunScript{Builder: b, Runner: run}

	a, err := r.Build(context.Background(), "/src/main.py")
	require.NoError(t, err)
	assert.Equal(t, 0, a.ExitCode)
	require.Len(t, run.commands, 1)
	assert.Equal(t, "PYTHONPATH=$PYTHONPATH:/gen:'/other dir' python /src/main.py", run.commands[0])
}

func TestRunScript_NoDirs(t *testing.T) {
	r := &RunScript{Interpreter: "python3", Env: "MYPATH"}
	assert.Equal(t, "MYPATH=$MYPATH python3 /src/main.py", r.CommandLine("/src/main.py", nil))
}

func TestRunScript_Failures(t *testing.T) {
	buildErr := errors.New("redo failed")
	run := &fakeRunner{}
	r := &RunScript{Builder: &fakeBuilder{err: buildErr}, Runner: run}
	_, err := r.Build(context.Background(), "/src/main.py")
	assert.ErrorIs(t, err, buildErr)
	assert.Empty(t, run.commands, "script is not run when dependencies fail")

	exitErr := &shell.ExitError{Command: "x", Code: 2}
	r = &RunScript{Builder: &fakeBuilder{}, Runner: &fakeRunner{code: 2, err: exitErr}}
	a, err := r.Build(context.Background(), "/src/main.py")
	assert.ErrorIs(t, err, exitErr)
	require.NotNil(t, a)
	assert.Equal(t, 2, a.ExitCode)
}

func TestRunScript_RealShell(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "show.sh")
	require.NoError(t, os.WriteFile(script, []byte("echo \"$PYDEP_TEST_PATH\"\n"), 0o644))

	var out bytes.Buffer
	r := &RunScript{
		Builder:     &fakeBuilder{notOnPath: []string{"/gen/beta.py"}},
		Runner:      &shell.Runner{Env: []string{"PYDEP_TEST_PATH=/lib"}, Stdout: &out},
		Interpreter: "sh",
		Env:         "PYDEP_TEST_PATH",
	}
	_, err := r.Build(context.Background(), script)
	require.NoError(t, err)
	assert.Equal(t, "/lib:/gen", strings.TrimSpace(out.String()))
}

func TestInvoke_ResetsAfterEachCall(t *testing.T) {
	resets := 0
	reset := func() { resets++ }

	_, err := Invoke(context.Background(), &DepsOnly{Builder: &fakeBuilder{}}, "/src/main.py", reset)
	require.NoError(t, err)
	assert.Equal(t, 1, resets)

	_, err = Invoke(context.Background(), &DepsOnly{Builder: &fakeBuilder{err: errors.New("x")}}, "/src/main.py", reset)
	assert.Error(t, err)
	assert.Equal(t, 2, resets)

	_, err = Invoke(context.Background(), &DepsOnly{Builder: &fakeBuilder{}}, "/src/main.py", nil)
	assert.NoError(t, err)
}
