package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandProperties(t *testing.T) {
	cmd := rootCmd(new(int))
	assert.Equal(t, "tact [filters...]", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.True(t, cmd.SilenceUsage)
}

func TestRootCommandRegistersHiddenWorkerSubcommand(t *testing.T) {
	cmd := rootCmd(new(int))
	var found bool
	for _, c := range cmd.Commands() {
		if c.Name() == "worker" {
			found = true
			assert.True(t, c.Hidden)
		}
	}
	assert.True(t, found, "expected hidden worker subcommand to be registered")
}

func TestRootCommandHelpMentionsFilters(t *testing.T) {
	cmd := rootCmd(new(int))
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())
	assert.True(t, strings.Contains(buf.String(), "regular expressions"))
}

func TestUpdateSnapshotFlagRegistered(t *testing.T) {
	cmd := rootCmd(new(int))
	flag := cmd.Flags().Lookup("update-snapshot")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}
