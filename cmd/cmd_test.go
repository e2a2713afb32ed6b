package cmd

import (
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lance13c/roster/internal/config"
)

func withProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	prevProject, prevFile := projectDir, cfgFile
	projectDir, cfgFile = dir, ""
	t.Cleanup(func() {
		projectDir, cfgFile = prevProject, prevFile
		rosterConfig, configErr = nil, nil
	})
	return dir
}

func TestInitWritesLoadableConfig(t *testing.T) {
	dir := withProject(t)

	cmd := &cobra.Command{}
	cmd.Flags().Bool("force", false, "")
	require.NoError(t, runInit(cmd, nil))
	assert.FileExists(t, filepath.Join(dir, config.ConfigDirName, config.ConfigFileName))

	// A second init refuses to overwrite
	assert.Error(t, runInit(cmd, nil))
	require.NoError(t, cmd.Flags().Set("force", "true"))
	assert.NoError(t, runInit(cmd, nil))

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, config.DefaultCourses(), cfg.Courses)
}

func TestCommandConfigSelectsCourses(t *testing.T) {
	withProject(t)
	cfg := config.DefaultConfig()
	cfg.Courses = config.DefaultCourses()
	rosterConfig = cfg

	cmd := &cobra.Command{}
	addCourseFlags(cmd)
	require.NoError(t, cmd.Flags().Set("course", "8474"))
	require.NoError(t, cmd.Flags().Set("headless", "false"))

	got, jobs, err := commandConfig(cmd)
	require.NoError(t, err)
	assert.False(t, got.Site.Headless)
	require.Len(t, jobs, 1)
	assert.Equal(t, "ECG", jobs[0].Ledger)

	require.NoError(t, cmd.Flags().Set("course", "1"))
	_, _, err = commandConfig(cmd)
	assert.Error(t, err)
}

func TestRequireConfigExplainsMissingConfig(t *testing.T) {
	withProject(t)
	rosterConfig, configErr = loadConfig()

	_, err := requireConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "roster init")
}
