package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8, cfg.Workspace.Concurrency)
	assert.False(t, cfg.Workspace.ShareOldGroupsToUsers)
	assert.Equal(t, 10*time.Minute, cfg.ExportTimeout)
	assert.Equal(t, "./data/blobs", cfg.Storage.LocalRoot)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("WORKSPACE_SHARE_OLD_GROUPS_TO_USERS", "true")
	t.Setenv("WORKSPACE_CONCURRENCY", "2")
	t.Setenv("MONGO_DATABASE", "ent")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Workspace.ShareOldGroupsToUsers)
	assert.Equal(t, 2, cfg.Workspace.Concurrency)
	assert.Equal(t, "ent", cfg.Mongo.Database)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\nworkspace:\n  concurrency: 3\n"), 0o600))
	t.Setenv("CONFIG_PATH", path)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3, cfg.Workspace.Concurrency)
}

func TestValidate(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("WORKSPACE_CONCURRENCY", "0")
	t.Setenv("MINIO_ENDPOINT", "localhost:9000")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concurrency")
	assert.Contains(t, err.Error(), "credentials")
}
