package searchpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	p := Parse("/a:/b:/c")
	assert.Equal(t, []string{"/a", "/b", "/c"}, p.Dirs())
	assert.Equal(t, "/a:/b:/c", p.String())

	// An empty variable still yields one entry, the working directory.
	assert.Equal(t, []string{""}, Parse("").Dirs())
}

func TestFromEnv(t *testing.T) {
	t.Setenv("PYDEP_TEST_PATH", "/x:/y")

	p, err := FromEnv("PYDEP_TEST_PATH")
	require.NoError(t, err)
	assert.Equal(t, []string{"/x", "/y"}, p.Dirs())

	_, err = FromEnv("PYDEP_TEST_PATH_UNSET")
	assert.ErrorIs(t, err, ErrNoSearchPath)
}

func TestResolve(t *testing.T) {
	t.Setenv("PYDEP_TEST_PATH", "/env")

	p, err := Resolve(New("/explicit"), "PYDEP_TEST_PATH")
	require.NoError(t, err)
	assert.Equal(t, []string{"/explicit"}, p.Dirs())

	p, err = Resolve(SearchPath{}, "PYDEP_TEST_PATH")
	require.NoError(t, err)
	assert.Equal(t, []string{"/env"}, p.Dirs())

	_, err = Resolve(SearchPath{}, "PYDEP_TEST_PATH_UNSET")
	assert.ErrorIs(t, err, ErrNoSearchPath)
}

func TestExtendDoesNotMutate(t *testing.T) {
	base := New("/a")
	ext := base.Extend("/b", "/a")

	assert.Equal(t, []string{"/a"}, base.Dirs())
	assert.Equal(t, []string{"/a", "/b", "/a"}, ext.Dirs())
	assert.True(t, ext.Contains("/b"))
	assert.False(t, base.Contains("/b"))
}

func TestAppend(t *testing.T) {
	var p SearchPath
	p.Append("/a")
	p.Append("/b")
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, "/a:/b", p.String())
}

func TestDirsReturnsCopy(t *testing.T) {
	p := New("/a")
	dirs := p.Dirs()
	dirs[0] = "/changed"
	assert.Equal(t, []string{"/a"}, p.Dirs())
}
