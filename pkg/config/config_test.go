package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTOMLKeepsDefaults(t *testing.T) {
	path := writeFile(t, "sitecrawl.toml", `
[target]
root_url = "https://site.example/"
max_depth = 3

[crawler]
delay_min = "0s"
delay_max = "0s"
respect_robots = true

[downloader]
workers = 4

[logging]
format = "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://site.example/", cfg.Target.RootURL)
	assert.Equal(t, 3, cfg.Target.MaxDepth)
	assert.Equal(t, DefaultProxyPrefix, cfg.Target.ProxyPrefix)
	assert.Equal(t, time.Duration(0), cfg.Crawler.GetDelayMax())
	assert.True(t, cfg.Crawler.RespectRobots)
	assert.Equal(t, 10, cfg.Crawler.CheckpointEvery)
	assert.Equal(t, 60*time.Second, cfg.Crawler.GetRateLimitBackoff())
	assert.Equal(t, 4, cfg.Downloader.Workers)
	assert.Equal(t, 120*time.Second, cfg.Downloader.GetRateLimitBackoff())
	assert.Equal(t, 10*time.Second, cfg.Downloader.GetFailureBackoff())
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "info", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "sitecrawl.yaml", `
target:
  root_url: https://site.example/
  max_depth: 1
downloader:
  timeout: 30s
  responses_dir: out
checkpoint:
  backend: sqlite
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Target.MaxDepth)
	assert.Equal(t, 30*time.Second, cfg.Downloader.GetTimeout())
	assert.Equal(t, "2s", cfg.Downloader.DelayMin)
	assert.Equal(t, "out", cfg.Downloader.ResponsesDir)
	assert.Equal(t, BackendSQLite, cfg.Checkpoint.Backend)
	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := writeFile(t, "broken.toml", "[target\nroot_url =")
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Target.RootURL = "https://site.example/"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"ok", func(*Config) {}, nil},
		{"missing root", func(c *Config) { c.Target.RootURL = "" }, ErrNoRootURL},
		{"relative root", func(c *Config) { c.Target.RootURL = "/path" }, ErrInvalidRootURL},
		{"ftp root", func(c *Config) { c.Target.RootURL = "ftp://site.example/" }, ErrInvalidRootURL},
		{"zero depth", func(c *Config) { c.Target.MaxDepth = 0 }, ErrInvalidMaxDepth},
		{"bad duration", func(c *Config) { c.Crawler.Timeout = "soon" }, ErrInvalidDuration},
		{"negative duration", func(c *Config) { c.Downloader.FailureBackoff = "-1s" }, ErrInvalidDuration},
		{"inverted delay", func(c *Config) { c.Downloader.DelayMin = "9s" }, ErrInvalidDelayRange},
		{"zero flush", func(c *Config) { c.Downloader.FlushEvery = 0 }, ErrInvalidFlushInterval},
		{"zero workers", func(c *Config) { c.Downloader.Workers = 0 }, ErrInvalidWorkers},
		{"unknown backend", func(c *Config) { c.Checkpoint.Backend = "redis" }, ErrUnknownBackend},
		{"postgres without dsn", func(c *Config) { c.Checkpoint.Backend = BackendPostgres }, ErrMissingDSN},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestResolveExplicitMissing(t *testing.T) {
	_, _, err := Resolve(filepath.Join(t.TempDir(), "nope.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestResolveExplicit(t *testing.T) {
	path := writeFile(t, "custom.toml", "[target]\nroot_url = \"http://site.example/\"\n")

	cfg, found, err := Resolve(path)
	require.NoError(t, err)
	assert.Equal(t, path, found)
	assert.Equal(t, "http://site.example/", cfg.Target.RootURL)
}

func TestExampleConfigIsValid(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "sitecrawl.example.toml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, BackendFile, cfg.Checkpoint.Backend)
	assert.Equal(t, 2*time.Minute, cfg.Downloader.GetRateLimitBackoff())
	assert.Equal(t, 10, cfg.Crawler.CheckpointEvery)
}
