package declare

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/cboone/tact/internal/suite"
	"github.com/cboone/tact/internal/terminal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileSuite(t *testing.T) *suite.Suite {
	t.Helper()
	root := suite.NewRoot()
	proj, err := root.AddChild("proj", suite.Project)
	require.NoError(t, err)
	file, err := proj.AddChild("app_test", suite.File)
	require.NoError(t, err)
	return file
}

func TestDeclaratorRegistersTests(t *testing.T) {
	file := newFileSuite(t)
	d, reg := NewForFile(file)

	d.Test("does a thing", func(ctx context.Context, tc *TestContext) error { return nil })
	d.Skip("not yet", func(ctx context.Context, tc *TestContext) error { return nil })

	require.Len(t, file.Tests, 2)
	assert.False(t, file.Tests[0].HasAnnotation(suite.Skip))
	assert.True(t, file.Tests[1].HasAnnotation(suite.Skip))

	_, ok := reg.Lookup(file.Tests[0].ID)
	assert.True(t, ok, "registered test func must be retrievable by id")
}

func TestDescribeNestsAndRestoresAmbientSuite(t *testing.T) {
	file := newFileSuite(t)
	d, _ := NewForFile(file)

	d.Test("top level", func(ctx context.Context, tc *TestContext) error { return nil })

	err := d.Describe("group", func(child *Declarator) {
		child.Test("nested", func(ctx context.Context, tc *TestContext) error { return nil })
	})
	require.NoError(t, err)

	d.Test("top level again", func(ctx context.Context, tc *TestContext) error { return nil })

	require.Len(t, file.Tests, 2, "describe callback's test must not land on the file suite")
	require.Len(t, file.Children, 1)
	assert.Len(t, file.Children[0].Tests, 1)
}

func TestUseMergesOptions(t *testing.T) {
	file := newFileSuite(t)
	d, _ := NewForFile(file)

	rows := 40
	err := d.Use(suite.TestOptions{Rows: &rows})
	require.NoError(t, err)
	require.NotNil(t, file.Options.Rows)
	assert.Equal(t, 40, *file.Options.Rows)
}

func TestUseInsideHookIsRejected(t *testing.T) {
	file := newFileSuite(t)
	d, _ := NewForFile(file)

	d.BeforeEach(func(ctx context.Context) error {
		err := d.Use(suite.TestOptions{})
		assert.ErrorIs(t, err, ErrUseInsideHook)
		return nil
	})

	require.NoError(t, d.RunBeforeEach(context.Background()))
}

func TestTestContextMatchUsesCombinators(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available in this environment")
	}
	term, err := terminal.Spawn("/bin/sh", []string{"-c", "printf 'ready\\n'; sleep 5"}, 24, 80, os.Environ(), "", terminal.Options{})
	require.NoError(t, err)
	defer term.Kill()

	tc := &TestContext{Terminal: term}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = tc.Match(ctx, terminal.All(terminal.AnyLineContains("ready"), terminal.Not(terminal.Text("error"))), 2*time.Second)
	require.NoError(t, err)
}

func TestOnlyAnnotation(t *testing.T) {
	file := newFileSuite(t)
	d, _ := NewForFile(file)

	d.Test("plain", func(ctx context.Context, tc *TestContext) error { return nil })
	d.Only("the chosen one", func(ctx context.Context, tc *TestContext) error { return nil })

	assert.False(t, file.Tests[0].HasAnnotation(suite.Only))
	assert.True(t, file.Tests[1].HasAnnotation(suite.Only))
}
