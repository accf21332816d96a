//go:build !integration

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"run", "serve", "runs", "export", "categories"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "leadscout", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunCommand_Flags(t *testing.T) {
	for _, name := range []string{
		"region", "category", "tier", "country",
		"min-rating", "max-rating", "min-reviews", "max-reviews",
		"min-violations", "classify-all", "format", "output",
	} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "run should have --%s", name)
	}

	region := runCmd.Flags().Lookup("region")
	require.NotNil(t, region)
	assert.Equal(t, "r", region.Shorthand)
	assert.Contains(t, region.Annotations, "cobra_annotation_bash_completion_one_required_flag")
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "stats"} {
		assert.True(t, names[name], "runs should have subcommand %q", name)
	}

	limit := runsListCmd.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "50", limit.DefValue)
}

func TestExportCommand_Args(t *testing.T) {
	assert.Error(t, exportCmd.Args(exportCmd, nil))
	assert.NoError(t, exportCmd.Args(exportCmd, []string{"run-1"}))
	assert.NotNil(t, exportCmd.Flags().Lookup("format"))
}
