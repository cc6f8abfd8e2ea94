package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemalift/pkg/models"
)

func withTempConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	t.Setenv("SCHEMALIFT_CONFIG", file)
	return file
}

func TestLoadMissingReturnsDefaults(t *testing.T) {
	withTempConfig(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "schemas", cfg.SchemaDir)
	assert.Contains(t, cfg.Templating.EnvironmentTags, "SIT")
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	withTempConfig(t)

	cfg := &models.Config{
		SchemaDir: "tracked",
		Connections: map[string]models.Connection{
			"SRC": {
				Account:   "xy12345.eu-west-1",
				Username:  "EXTRACT_SVC",
				Password:  "secret",
				Role:      "SYSADMIN",
				Warehouse: "COMPUTE_WH",
			},
		},
		Templating: models.Templating{
			DBBase:          "PLATFORM",
			EnvironmentTags: []string{"SIT", "PROD"},
		},
	}

	require.NoError(t, Save(cfg))
	assert.True(t, Exists())

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "tracked", loaded.SchemaDir)
	assert.Equal(t, "EXTRACT_SVC", loaded.Connections["SRC"].Username)
	assert.Equal(t, "PLATFORM", loaded.Templating.DBBase)
}

func TestSaveUsesSecurePermissions(t *testing.T) {
	file := withTempConfig(t)

	require.NoError(t, Save(&models.Config{SchemaDir: "schemas"}))

	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestResolveConnection(t *testing.T) {
	withTempConfig(t)

	cfg := &models.Config{
		Connections: map[string]models.Connection{
			"SRC": {Account: "acct", Username: "u", Password: "inline"},
		},
	}

	conn, err := ResolveConnection(cfg, "SRC")
	require.NoError(t, err)
	assert.Equal(t, "inline", conn.Password)

	_, err = ResolveConnection(cfg, "MISSING")
	assert.Error(t, err)
}

func TestResolveEnvironmentMissing(t *testing.T) {
	withTempConfig(t)

	_, err := ResolveEnvironment(&models.Config{}, "dev")
	assert.Error(t, err)
}
