package terminal

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/cboone/tact/internal/snapstore"
	"github.com/cboone/tact/internal/suite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollSucceedsAsSoonAsPredicateHolds(t *testing.T) {
	calls := 0
	predicate := func() bool {
		calls++
		return calls >= 3
	}
	ok := poll(context.Background(), predicate, time.Millisecond, time.Second, true)
	assert.True(t, ok)
	assert.Equal(t, 3, calls)
}

func TestPollNeverSucceedsAfterDeadline(t *testing.T) {
	predicate := func() bool { return false }
	ok := poll(context.Background(), predicate, time.Millisecond, 20*time.Millisecond, true)
	assert.False(t, ok)
}

func TestPollInversionDuality(t *testing.T) {
	// The same predicate cannot satisfy both expect_truthy=true and
	// expect_truthy=false within a single sample (spec.md §8 invariant 6).
	value := true
	predicate := func() bool { return value }

	okTrue := poll(context.Background(), predicate, time.Millisecond, 10*time.Millisecond, true)
	okFalse := poll(context.Background(), predicate, time.Millisecond, 10*time.Millisecond, false)
	assert.True(t, okTrue)
	assert.False(t, okFalse)
}

func TestToMatchSnapshotWritesThenMatches(t *testing.T) {
	sh := requireSh(t)
	if _, err := os.Stat(sh); err != nil {
		t.Skip("/bin/sh not available")
	}
	dir := t.TempDir()
	store := snapstore.ForSourceFile(dir + "/fixture_test.go")

	spawnOne := func(update bool) *Terminal {
		term, err := Spawn(sh, []string{"-c", "printf fixed-output; sleep 2"}, 5, 20, os.Environ(), "", Options{
			Store:          store,
			TestID:         "snapshot test",
			UpdateSnapshot: update,
		})
		require.NoError(t, err)
		t.Cleanup(func() { term.Kill() })
		require.NoError(t, term.ToHaveValue(context.Background(), "fixed-output", ValueOptions{Timeout: time.Second}))
		return term
	}

	first := spawnOne(true)
	status, err := first.ToMatchSnapshot()
	require.NoError(t, err)
	assert.Equal(t, suite.SnapshotWritten, status.Outcome)

	second := spawnOne(false)
	status, err = second.ToMatchSnapshot()
	require.NoError(t, err)
	assert.Equal(t, suite.SnapshotMatched, status.Outcome)
}
