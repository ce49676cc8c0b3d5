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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, 60.0, cfg.Cluster.RadiusPx)
	assert.Equal(t, 17, cfg.Cluster.MaxZoom)
	assert.Equal(t, 64, cfg.Cluster.NodeSize)
	assert.Equal(t, 16, cfg.Disclosure.SpiderfyZoomFloor)
	assert.Equal(t, 18, cfg.Disclosure.MaxFlyZoom)
	assert.Equal(t, 65.0, cfg.Disclosure.BaseLeg)
	assert.Equal(t, 4, cfg.Viewport.GlobeModeZoomFloor)
	assert.Equal(t, 40.0, cfg.Globe.RadiusPx)
	assert.Equal(t, SourceSQLite, cfg.Source.Kind)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: ":9090"
cluster:
  radius_px: 80
  max_zoom: 15
views:
  idle_timeout: 10m
source:
  kind: file
  file: ./notes.json
  watch: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("MEMORYMAP_SERVER_PORT", ":7070")
	t.Setenv("MEMORYMAP_DISCLOSURE_SPIDERFY_ZOOM_FLOOR", "14")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Port, "env wins over the file")
	assert.Equal(t, 80.0, cfg.Cluster.RadiusPx)
	assert.Equal(t, 15, cfg.Cluster.MaxZoom)
	assert.Equal(t, 0, cfg.Cluster.MinZoom, "unset keys keep their defaults")
	assert.Equal(t, 10*time.Minute, cfg.Views.IdleTimeout)
	assert.Equal(t, 14, cfg.Disclosure.SpiderfyZoomFloor)
	assert.Equal(t, SourceFile, cfg.Source.Kind)
	assert.True(t, cfg.Source.Watch)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "server.port", envKey("MEMORYMAP_SERVER_PORT"))
	assert.Equal(t, "cluster.radius_px", envKey("MEMORYMAP_CLUSTER_RADIUS_PX"))
	assert.Equal(t, "debug", envKey("MEMORYMAP_DEBUG"))
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero radius", func(c *Config) { c.Cluster.RadiusPx = 0 }},
		{"inverted zoom range", func(c *Config) { c.Cluster.MinZoom = 10; c.Cluster.MaxZoom = 5 }},
		{"inverted floors", func(c *Config) { c.Viewport.GlobeModeZoomFloor = 17 }},
		{"fly zoom under globe floor", func(c *Config) { c.Disclosure.MaxFlyZoom = 2 }},
		{"file source without file", func(c *Config) { c.Source.Kind = SourceFile }},
		{"unknown source", func(c *Config) { c.Source.Kind = "s3" }},
		{"no secret", func(c *Config) { c.Auth.ViewTokenSecret = "" }},
	}

	def := Default()
	require.NoError(t, def.Validate())

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
