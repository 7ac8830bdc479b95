package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "telos", cmd.Use)
	assert.Contains(t, cmd.Long, "content-addressed")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"init"}, {"intent"}, {"decide"}, {"constraint"}, {"supersede"}, {"deprecate"},
		{"bind"}, {"agent-log"}, {"changeset"}, {"show"}, {"log"}, {"context"},
		{"check"}, {"fsck"}, {"reindex"}, {"export"},
		{"query", "intents"}, {"query", "decisions"}, {"query", "constraints"},
		{"query", "agent-ops"}, {"query", "bindings"}, {"query", "changesets"},
		{"stream", "create"}, {"stream", "list"}, {"stream", "switch"}, {"stream", "delete"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	dirFlag := cmd.PersistentFlags().Lookup("dir")
	require.NotNil(t, dirFlag)
	assert.Equal(t, "C", dirFlag.Shorthand)

	require.NotNil(t, cmd.PersistentFlags().Lookup("json"))
}

func TestIntentCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	intentCmd, _, err := cmd.Find([]string{"intent"})
	require.NoError(t, err)

	statementFlag := intentCmd.Flags().Lookup("statement")
	require.NotNil(t, statementFlag)
	assert.Equal(t, "s", statementFlag.Shorthand)

	for _, name := range []string{"impact", "constraint", "behavior", "parent"} {
		assert.NotNil(t, intentCmd.Flags().Lookup(name), name)
	}
}

func TestConstraintCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	constraintCmd, _, err := cmd.Find([]string{"constraint"})
	require.NoError(t, err)

	severityFlag := constraintCmd.Flags().Lookup("severity")
	require.NotNil(t, severityFlag)
	assert.Equal(t, "should", severityFlag.DefValue)
}

func TestLogCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	logCmd, _, err := cmd.Find([]string{"log"})
	require.NoError(t, err)

	maxFlag := logCmd.Flags().Lookup("max-count")
	require.NotNil(t, maxFlag)
	assert.Equal(t, "n", maxFlag.Shorthand)
	assert.Equal(t, "20", maxFlag.DefValue)
}

func TestQueryConstraintsDefaultsToActive(t *testing.T) {
	cmd := NewRootCommand()
	sub, _, err := cmd.Find([]string{"query", "constraints"})
	require.NoError(t, err)

	statusFlag := sub.Flags().Lookup("status")
	require.NotNil(t, statusFlag)
	assert.Equal(t, "active", statusFlag.DefValue)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "log"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
