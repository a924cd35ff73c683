package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energyrag/internal/config"
	"energyrag/internal/domain"
)

// writeOfflineConfig saves a config using the hashing embedder at dim and a
// sqlite index under dir, and points --config at it.
func writeOfflineConfig(t *testing.T, dir string, dim int) {
	t.Helper()
	cfg := config.Example()
	cfg.Data.ResourceDir = filepath.Join(dir, "resources")
	cfg.Retrieval.ActiveEmbedding = "offline"
	cfg.Retrieval.ActiveDB = "local"
	offline := cfg.Embeddings["offline"]
	offline.Dimensions = dim
	cfg.Embeddings["offline"] = offline
	local := cfg.DB["local"]
	local.Path = filepath.Join(dir, "index.db")
	cfg.DB["local"] = local

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, config.Save(path, cfg))
	cfgPath = path
}

func runIndexCommand(t *testing.T, reset bool) (string, error) {
	t.Helper()
	indexReset = reset
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetOut(&out)
	err := runIndex(cmd, nil)
	return out.String(), err
}

func TestIndexResetAfterDimensionChange(t *testing.T) {
	t.Cleanup(func() { cfgPath, indexDir, indexReset, indexJSON = "", "", false, false })
	dir := t.TempDir()
	resources := filepath.Join(dir, "resources")
	require.NoError(t, os.MkdirAll(resources, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(resources, "boilers.txt"),
		[]byte("Boiler tuning\n\nAdjust the burner air ratio to cut flue losses and fuel use."), 0o644))

	writeOfflineConfig(t, dir, 8)
	out, err := runIndexCommand(t, false)
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 1 documents")

	writeOfflineConfig(t, dir, 16)
	_, err = runIndexCommand(t, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDimension)

	out, err = runIndexCommand(t, true)
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 1 documents")
}
