package terminal

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func requireSh(t *testing.T) string {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available in this environment")
	}
	return "/bin/sh"
}

func TestToHaveValueSeesPromptOutput(t *testing.T) {
	sh := requireSh(t)
	term, err := Spawn(sh, []string{"-c", "printf 'ready> '; sleep 5"}, 24, 80, os.Environ(), "", Options{})
	require.NoError(t, err)
	defer term.Kill()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = term.ToHaveValue(ctx, "ready>", ValueOptions{Timeout: 2 * time.Second})
	require.NoError(t, err)
}

func TestNotToHaveValueTimesOutWhilePresent(t *testing.T) {
	sh := requireSh(t)
	term, err := Spawn(sh, []string{"-c", "printf steady; sleep 5"}, 24, 80, os.Environ(), "", Options{})
	require.NoError(t, err)
	defer term.Kill()

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	err = term.ToHaveValue(ctx, "steady", ValueOptions{Timeout: time.Second})
	require.NoError(t, err)

	err = term.NotToHaveValue(context.Background(), "steady", ValueOptions{Timeout: 200 * time.Millisecond})
	require.Error(t, err, "text stays on screen, so not.toHaveValue must time out")
}

func TestMatchCombinesMatchers(t *testing.T) {
	sh := requireSh(t)
	term, err := Spawn(sh, []string{"-c", "printf 'build: ok\\n'; sleep 5"}, 24, 80, os.Environ(), "", Options{})
	require.NoError(t, err)
	defer term.Kill()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = term.Match(ctx, All(AnyLineContains("build:"), Not(Text("error"))), 2*time.Second, false)
	require.NoError(t, err)
}

func TestExitCodePropagates(t *testing.T) {
	sh := requireSh(t)
	term, err := Spawn(sh, []string{"-c", "exit 7"}, 24, 80, os.Environ(), "", Options{})
	require.NoError(t, err)
	code, err := term.Wait()
	require.NoError(t, err)
	require.Equal(t, 7, code)
}
