package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/Sternrassler/crm-client/pkg/logging"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080/api", cfg.API.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.API.Timeout)
	assert.Equal(t, 3, cfg.API.MaxRetries)
	assert.Equal(t, 15, cfg.List.PerPage)
	assert.Equal(t, 500*time.Millisecond, cfg.List.Debounce)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "sqlite", cfg.Stub.DBDriver)
	assert.Equal(t, []string{"*"}, cfg.Stub.CORSOrigins)
	assert.Nil(t, cfg.RedisClient())
}

func TestLoad_ConfigFileInConfigsDir(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, "configs/config.yml", `
api:
  base_url: https://crm.example.com/api
  timeout: 3s
list:
  per_page: 25
lang: ar
`)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://crm.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.API.Timeout)
	assert.Equal(t, 25, cfg.List.PerPage)
	assert.Equal(t, language.Arabic, cfg.Language())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeFile(t, dir, "custom.yml", "list:\n  per_page: 25\n")
	t.Setenv("CRM_LIST_PER_PAGE", "50")
	t.Setenv("CRM_STUB_CORS_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("CRM_LIST_DEBOUNCE", "250ms")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.List.PerPage)
	assert.Equal(t, 250*time.Millisecond, cfg.List.Debounce)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Stub.CORSOrigins)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, ".env", "CRM_API_TOKEN=from-dotenv\n")
	t.Cleanup(func() { os.Unsetenv("CRM_API_TOKEN") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.API.Token)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Load("does-not-exist.yml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"per page", func(c *Config) { c.List.PerPage = 0 }},
		{"debounce", func(c *Config) { c.List.Debounce = -time.Second }},
		{"retries", func(c *Config) { c.API.MaxRetries = 0 }},
		{"rate", func(c *Config) { c.API.RateLimit = -1 }},
		{"log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"driver", func(c *Config) { c.Stub.DBDriver = "postgres" }},
		{"throttle", func(c *Config) { c.Stub.Throttle = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestClientConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CRM_API_TOKEN", "secret")
	t.Setenv("CRM_CACHE_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)

	cc := cfg.ClientConfig(nil)
	assert.Equal(t, cfg.API.BaseURL, cc.BaseURL)
	assert.Equal(t, "secret", cc.Token)
	assert.Equal(t, 10.0, cc.RateLimit)
	assert.False(t, cc.CacheEnabled)
	assert.Nil(t, cc.Redis)
}

func TestRedisClient(t *testing.T) {
	cfg := Config{Redis: RedisConfig{Addr: "localhost:6379", DB: 3}}
	rdb := cfg.RedisClient()
	require.NotNil(t, rdb)
	defer rdb.Close()
	assert.Equal(t, 3, rdb.Options().DB)
}

func TestLoggingConfig(t *testing.T) {
	cfg := Config{Log: LogConfig{Level: "debug"}}
	lc := cfg.LoggingConfig(os.Stderr)
	assert.Equal(t, logging.LevelDebug, lc.Level)
}
