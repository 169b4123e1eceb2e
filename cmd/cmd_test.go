package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/glazeware/glaze/internal/config"
)

func TestInitScaffoldsProject(t *testing.T) {
	dir := t.TempDir()

	rootCmd.SetArgs([]string{"init", dir})
	require.NoError(t, rootCmd.Execute())

	for _, rel := range []string{
		".glaze.yml",
		"components/counter/counter.html",
		"components/counter/counter.js",
		"pages/index.html",
	} {
		_, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel)))
		assert.NoError(t, err, rel)
	}

	// The scaffolded config must round-trip through the config loader shape.
	raw, err := os.ReadFile(filepath.Join(dir, ".glaze.yml"))
	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, yaml.Unmarshal(raw, &cfg))
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "./components", cfg.Paths.Components)
	require.NoError(t, cfg.Validate())
}

func TestInitRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".glaze.yml"), []byte("server:\n  port: 9999\n"), 0o644))

	rootCmd.SetArgs([]string{"init", dir})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	// The existing file survives.
	raw, err := os.ReadFile(filepath.Join(dir, ".glaze.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "9999")
}

func TestInitForceOverwrites(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".glaze.yml"), []byte("old"), 0o644))

	rootCmd.SetArgs([]string{"init", dir, "--force"})
	require.NoError(t, rootCmd.Execute())

	raw, err := os.ReadFile(filepath.Join(dir, ".glaze.yml"))
	require.NoError(t, err)
	assert.NotEqual(t, "old", string(raw))
}
