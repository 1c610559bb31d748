package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/labelforge/labelscan/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	assert.NotNil(t, rootCmd)
	assert.Equal(t, "labelscan", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRootCommandHelp(t *testing.T) {
	cmd := rootCmd

	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)

	cmd.SetArgs([]string{"--help"})
	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "DOM")
	assert.Contains(t, output, "Available Commands:")
	assert.Contains(t, output, "run")
}

func TestRunCommandRegistered(t *testing.T) {
	var found bool
	for _, c := range rootCmd.Commands() {
		if c.Name() == "run" {
			found = true
			assert.NotNil(t, c.Flags().Lookup("output"))
			assert.NotNil(t, c.Flags().Lookup("workers"))
		}
	}
	assert.True(t, found)
}

func TestBatchConfigCarriesAllKnobs(t *testing.T) {
	cfg := config.Default()
	cfg.CropsDir = "/srv/crops"
	cfg.DOMDir = "/srv/dom"
	cfg.Batch.ChunkSize = 7
	cfg.Batch.HygieneEvery = 3
	cfg.Batch.DOMMaxAgeHours = 48

	got := batchConfigFrom(cfg)
	assert.Equal(t, "/srv/crops", got.CropsDir)
	assert.Equal(t, "/srv/dom", got.DOMDir)
	assert.Equal(t, 7, got.ChunkSize)
	assert.Equal(t, 3, got.HygieneEvery)
	assert.Equal(t, 48*time.Hour, got.DOMMaxAge)
}

func TestDiscoverIdentifiersMissingDir(t *testing.T) {
	_, err := discoverIdentifiers("/nonexistent/crops")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read crops directory")
}

func TestDiscoverIdentifiersSorted(t *testing.T) {
	dir := t.TempDir()
	for _, id := range []string{"200", "100", "150"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, id), 0o755))
	}

	ids, err := discoverIdentifiers(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"100", "150", "200"}, ids)
}
