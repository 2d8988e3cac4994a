package snapstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveThenLoadRoundtrips(t *testing.T) {
	dir := t.TempDir()
	store := ForSourceFile(filepath.Join(dir, "login_test.go"))

	_, ok, err := store.Load("my test", 0)
	require.NoError(t, err)
	assert.False(t, ok, "no snapshot written yet")

	require.NoError(t, store.Save("my test", 0, "hello\n"))

	content, ok, err := store.Load("my test", 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello\n", content)
}

func TestSequenceNumbersAreIndependent(t *testing.T) {
	dir := t.TempDir()
	store := ForSourceFile(filepath.Join(dir, "app_test.go"))

	require.NoError(t, store.Save("t", 0, "first\n"))
	require.NoError(t, store.Save("t", 1, "second\n"))

	c0, _, _ := store.Load("t", 0)
	c1, _, _ := store.Load("t", 1)
	assert.Equal(t, "first\n", c0)
	assert.Equal(t, "second\n", c1)
}

func TestNormalizeTrimsAndCollapsesTrailingBlankLines(t *testing.T) {
	got := Normalize("line one   \nline two\n\n\n")
	assert.Equal(t, "line one\nline two\n", got)
}
