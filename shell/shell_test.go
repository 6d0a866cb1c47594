package shell

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	var out bytes.Buffer
	r := &Runner{Stdout: &out}

	code, err := r.Run(context.Background(), "echo hello; echo world")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "hello\nworld\n", out.String())
}

func TestRun_ExitStatus(t *testing.T) {
	r := &Runner{}
	code, err := r.Run(context.Background(), "exit 7")
	assert.Equal(t, 7, code)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 7, exitErr.Code)
	assert.Equal(t, "exit 7", exitErr.Command)
}

func TestRun_EnvAndDir(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	r := &Runner{Dir: dir, Env: []string{"PYDEP_TEST_VAR=set"}, Stdout: &out}

	_, err := r.Run(context.Background(), "echo $PYDEP_TEST_VAR; pwd")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "set", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], strings.TrimPrefix(dir, "/private")))
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code, err := (&Runner{}).Run(ctx, "exec sleep 5")
	assert.Equal(t, -1, code)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_MissingShell(t *testing.T) {
	code, err := (&Runner{Shell: "/nonexistent/sh"}).Run(context.Background(), "true")
	assert.Equal(t, -1, code)
	assert.Error(t, err)
	var exitErr *ExitError
	assert.False(t, errors.As(err, &exitErr))
}

func TestQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "''"},
		{"/src/beta.py", "/src/beta.py"},
		{"PYTHONPATH=a:b", "PYTHONPATH=a:b"},
		{"has space", "'has space'"},
		{"it's", `'it'"'"'s'`},
		{"$HOME", "'$HOME'"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Quote(tt.in), "Quote(%q)", tt.in)
	}
}

func TestQuote_RoundTrip(t *testing.T) {
	var out bytes.Buffer
	r := &Runner{Stdout: &out}
	word := `a 'b' "c" $d`
	_, err := r.Run(context.Background(), "printf %s "+Quote(word))
	require.NoError(t, err)
	assert.Equal(t, word, out.String())
}
