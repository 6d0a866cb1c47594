package redo

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedo writes a script that appends its arguments to a log file.
func fakeRedo(t *testing.T, body string) (script, log string) {
	t.Helper()
	dir := t.TempDir()
	log = filepath.Join(dir, "calls.log")
	script = filepath.Join(dir, "fake redo")
	content := "#!/bin/sh\necho \"$@\" >> '" + log + "'\n" + body + "\n"
	require.NoError(t, os.WriteFile(script, []byte(content), 0o755))
	return script, log
}

func quoted(s string) string {
	return "'" + s + "'"
}

func TestRedoIfChange(t *testing.T) {
	script, log := fakeRedo(t, "exit 0")
	c, err := New(Config{Command: quoted(script) + " -x"})
	require.NoError(t, err)

	require.NoError(t, c.RedoIfChange(context.Background(), "/src/a.py", "/src/b.py"))

	data, err := os.ReadFile(log)
	require.NoError(t, err)
	assert.Equal(t, "-x /src/a.py /src/b.py\n", string(data))
}

func TestRedoIfChange_EmptyBatch(t *testing.T) {
	script, log := fakeRedo(t, "exit 0")
	c, err := New(Config{Command: quoted(script)})
	require.NoError(t, err)

	require.NoError(t, c.RedoIfChange(context.Background()))
	_, err = os.Stat(log)
	assert.True(t, os.IsNotExist(err), "command must not run for an empty batch")
}

func TestRedoIfChange_Failure(t *testing.T) {
	script, _ := fakeRedo(t, "echo 'no rule to make beta.py' >&2\nexit 3")
	var stderr bytes.Buffer
	c, err := New(Config{Command: quoted(script), Stderr: &stderr})
	require.NoError(t, err)

	err = c.RedoIfChange(context.Background(), "/src/beta.py")
	require.Error(t, err)

	var redoErr *Error
	require.True(t, errors.As(err, &redoErr))
	assert.Equal(t, 3, redoErr.ExitCode)
	assert.Equal(t, []string{"/src/beta.py"}, redoErr.Targets)
	assert.Contains(t, err.Error(), "no rule to make beta.py")
	assert.Contains(t, stderr.String(), "no rule to make beta.py", "stderr is streamed too")
}

func TestRedoIfChange_Timeout(t *testing.T) {
	script, _ := fakeRedo(t, "exec sleep 5")
	c, err := New(Config{Command: quoted(script), Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	err = c.RedoIfChange(context.Background(), "/src/a.py")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedoIfChange_Stdout(t *testing.T) {
	script, _ := fakeRedo(t, "echo built")
	var stdout bytes.Buffer
	c, err := New(Config{Command: quoted(script), Stdout: &stdout})
	require.NoError(t, err)

	require.NoError(t, c.RedoIfChange(context.Background(), "x"))
	assert.Equal(t, "built", strings.TrimSpace(stdout.String()))
}

func TestNew_BadCommand(t *testing.T) {
	_, err := New(Config{Command: "'unterminated"})
	assert.Error(t, err)

	_, err = New(Config{Command: "   "})
	assert.Error(t, err)
}

func TestNew_Default(t *testing.T) {
	c, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultCommand}, c.argv)
}
