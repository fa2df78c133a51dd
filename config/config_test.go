package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Database.InitialInterval)
	assert.Equal(t, 2*time.Minute, cfg.Database.MaxInterval)
	assert.Equal(t, "http://localhost:8529", cfg.Database.Endpoint())
	assert.Equal(t, 10, cfg.View.DefaultPageSize)
	assert.Equal(t, 1, cfg.Engine.IndexShards)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ARANGO_HOST", "arango.internal")
	t.Setenv("ARANGO_PORT", "9999")
	t.Setenv("MS_PORT", "8080")
	t.Setenv("VULNPRIO_ENGINE_INDEX_SHARDS", "4")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://arango.internal:9999", cfg.Database.Endpoint())
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 4, cfg.Engine.IndexShards)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vulnprio.yaml")
	content := []byte(`
view:
  default_page_size: 25
  max_page_size: 200
database:
  url: https://db.example.com:8529
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.View.DefaultPageSize)
	assert.Equal(t, 200, cfg.View.MaxPageSize)
	assert.Equal(t, "https://db.example.com:8529", cfg.Database.Endpoint())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"empty port", "server.port", ""},
		{"zero page size", "view.default_page_size", 0},
		{"max below default", "view.max_page_size", 5},
		{"no shards", "engine.index_shards", 0},
		{"no database name", "database.name", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			SetDefaults(v)
			v.Set(tt.key, tt.val)
			_, err := NewConfigFromViper(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
		})
	}
}
