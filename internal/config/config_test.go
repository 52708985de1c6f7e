package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRepoConfig(t *testing.T, root, content string) {
	t.Helper()
	dir := filepath.Join(root, ".cwt")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(content), 0o600))
}

func TestLoadRepoConfigDefaultsWhenMissing(t *testing.T) {
	cfg := LoadRepoConfig(t.TempDir())
	require.Len(t, cfg.Symlinks, 2)
	assert.Equal(t, SymlinkRule{Name: ".env", Strategy: StrategyNearest}, cfg.Symlinks[0])
	assert.Equal(t, SymlinkRule{Name: "node_modules", Strategy: StrategyLocal}, cfg.Symlinks[1])
	assert.True(t, cfg.AutoDiscover())
}

func TestLoadRepoConfigAcceptsJSONC(t *testing.T) {
	root := t.TempDir()
	writeRepoConfig(t, root, `{
		// shared environment file
		"symlinks": [
			{"name": ".env", "strategy": "parent"},
		],
		"nested_repositories": {
			"paths": ["services/api"],
			"auto_discover": false,
		},
	}`)

	cfg := LoadRepoConfig(root)
	require.Len(t, cfg.Symlinks, 1)
	assert.Equal(t, StrategyParent, cfg.Symlinks[0].Strategy)
	assert.Equal(t, []string{"services/api"}, cfg.Nested.Paths)
	assert.False(t, cfg.AutoDiscover())
}

func TestLoadRepoConfigMalformedDegradesToDefaults(t *testing.T) {
	root := t.TempDir()
	writeRepoConfig(t, root, `{"symlinks": [`)

	cfg := LoadRepoConfig(root)
	assert.Equal(t, DefaultRepoConfig(), cfg)
}

func TestLoadRepoConfigCoercesUnknownStrategy(t *testing.T) {
	root := t.TempDir()
	writeRepoConfig(t, root, `{"symlinks": [
		{"name": "cache", "strategy": "sideways"},
		{"name": ".env"}
	]}`)

	cfg := LoadRepoConfig(root)
	require.Len(t, cfg.Symlinks, 2)
	assert.Equal(t, StrategyNearest, cfg.Symlinks[0].Strategy)
	assert.Equal(t, StrategyNearest, cfg.Symlinks[1].Strategy, "empty strategy defaults to nearest")
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.True(t, cfg.AutoRefresh)
	assert.True(t, cfg.ShowAllRepositories)
	assert.Empty(t, cfg.DebugLog)
}

func TestLoadConfigFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"auto_refresh: false\nshow_all_repositories: false\ndebug_log: /tmp/cwt.log\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, cfg.AutoRefresh)
	assert.False(t, cfg.ShowAllRepositories)
	assert.Equal(t, "/tmp/cwt.log", cfg.DebugLog)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auto_refresh: [nope"), 0o600))

	cfg, err := LoadConfig(path)
	require.Error(t, err)
	assert.Equal(t, DefaultConfig(), cfg, "errors still yield usable defaults")
}

func TestDefaultConfigPathHonorsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "cwt", "config.yaml"), DefaultConfigPath())
}
