package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thep200/repo-harvester/cfg"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitRunFailure, exitCode(errors.New("boom")))
	assert.Equal(t, exitDatabase, exitCode(withCode(exitDatabase, "down")))
	assert.Equal(t, exitInterrupted, exitCode(withCode(exitInterrupted, "stop")))
}

func TestRunFlags_OnlyChangedFlagsOverride(t *testing.T) {
	cmd := newRunCommand()
	require.NoError(t, cmd.Flags().Parse([]string{"--target", "25", "--from", "2015-01-01"}))

	config := cfg.Default()
	config.Crawl.StartOffset = 4
	require.NoError(t, (&runFlags{target: 25, from: "2015-01-01"}).apply(cmd)(config))

	assert.Equal(t, 25, config.Crawl.Target)
	assert.Equal(t, "2015-01-01", config.Crawl.StartDate)
	assert.Equal(t, 4, config.Crawl.StartOffset, "unset flag keeps the configured value")
}

func TestRun_MissingCredentialIsConfigError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mode.yaml"), []byte("githubapi:\n  access_token: \"\"\n"), 0o600))
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("HARVESTER_GITHUB_TOKEN", "")

	root := newRootCommand()
	root.SetArgs([]string{"run", "--config", dir})
	err := root.Execute()

	require.Error(t, err)
	assert.Equal(t, exitConfig, exitCode(err))
	var cfgErr *cfg.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
