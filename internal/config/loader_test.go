package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the search paths at empty directories.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, ".config"))
	t.Chdir(dir)
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := NewLoaderWithViper(viper.New()).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), *cfg)
}

func TestLoad_FromSearchPath(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "glens.yaml"), `
log_level: debug
server:
  port: 9000
search:
  max_pages: 4
  proxy: http://proxy.internal:3128
crop:
  default_strategy: 0
`)

	l := NewLoaderWithViper(viper.New())
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Search.MaxPages)
	assert.Equal(t, "http://proxy.internal:3128", cfg.Search.Proxy)
	assert.Equal(t, 0, cfg.Crop.DefaultStrategy)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "unset keys keep defaults")
	assert.Equal(t, "glens.yaml", filepath.Base(l.GetConfigFileUsed()))
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("GLENS_SERVER_PORT", "9100")
	t.Setenv("GLENS_SEARCH_BASE_URL", "https://mirror.example")
	t.Setenv("GLENS_CACHE_ENABLED", "true")

	cfg, err := NewLoaderWithViper(viper.New()).Load()
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "https://mirror.example", cfg.Search.BaseURL)
	assert.True(t, cfg.Cache.Enabled)
}

func TestLoadWithFile(t *testing.T) {
	dir := isolate(t)

	t.Run("explicit file", func(t *testing.T) {
		path := filepath.Join(dir, "custom.yaml")
		writeFile(t, path, "detector:\n  conf_threshold: 0.5\n")

		cfg, err := NewLoaderWithViper(viper.New()).LoadWithFile(path)
		require.NoError(t, err)
		assert.InDelta(t, 0.5, cfg.Detector.ConfThreshold, 1e-9)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewLoaderWithViper(viper.New()).LoadWithFile(filepath.Join(dir, "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not exist")
	})

	t.Run("invalid values", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		writeFile(t, path, "server:\n  port: -1\n")

		_, err := NewLoaderWithViper(viper.New()).LoadWithFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validation failed")

		cfg, err := NewLoaderWithViper(viper.New()).LoadWithoutValidation(path)
		require.NoError(t, err)
		assert.Equal(t, -1, cfg.Server.Port)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yaml")
		writeFile(t, path, "server: [unclosed\n")

		_, err := NewLoaderWithViper(viper.New()).LoadWithFile(path)
		require.Error(t, err)
	})
}

func TestGenerateDefaultConfigFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "generated.yaml")

	require.NoError(t, GenerateDefaultConfigFile(path))

	cfg, err := NewLoaderWithViper(viper.New()).LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), *cfg)
}

func TestGetConfigSearchPaths(t *testing.T) {
	dir := isolate(t)

	paths := GetConfigSearchPaths()
	assert.Equal(t, ".", paths[0])
	assert.Contains(t, paths, dir)
	assert.Contains(t, paths, filepath.Join(dir, ".config", "glens"))
	assert.Equal(t, "/etc/glens", paths[len(paths)-1])
}
