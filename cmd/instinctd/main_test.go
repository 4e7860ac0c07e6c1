package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_RegistersAllCommands(t *testing.T) {
	want := []string{
		"observe", "hook", "stats", "analyze", "learn", "patterns",
		"candidates", "promote", "auto-promote", "ledger", "checkpoint",
		"version",
	}

	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, name := range want {
		assert.True(t, names[name], "missing command %s", name)
	}
}

func TestCheckpointCommand_RegistersSubcommands(t *testing.T) {
	want := []string{"save", "list", "restore", "diff", "export", "import"}

	names := map[string]bool{}
	for _, cmd := range checkpointCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, name := range want {
		assert.True(t, names[name], "missing checkpoint subcommand %s", name)
	}
}

func TestReadPayload_InlineJSON(t *testing.T) {
	obsPayload = `{"tool": "grep", "count": 2}`
	defer func() { obsPayload = "" }()

	payload, err := readPayload()
	require.NoError(t, err)
	assert.Equal(t, "grep", payload["tool"])
	assert.Equal(t, float64(2), payload["count"])
}

func TestReadPayload_RejectsNonObject(t *testing.T) {
	obsPayload = `[1, 2, 3]`
	defer func() { obsPayload = "" }()

	_, err := readPayload()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payload must be a JSON object")
}
