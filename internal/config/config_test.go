package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"DATABASE_DRIVER", "DATABASE_URL", "SQLITE_PATH", "PROVIDER_BASE_URL", "PROVIDER_API_KEY",
		"HTTPS_PROXY", "FETCH_MAX_ATTEMPTS", "FETCH_RETRY_DELAY", "LOG_LEVEL", "LOG_FORMAT",
		"WARM_CRON", "WARM_USER",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "data/stocklens.db", cfg.Database.SQLitePath)
	assert.Equal(t, 3, cfg.Fetch.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Fetch.RetryDelay)
	assert.Equal(t, 1000, cfg.Fetch.ChunkSize)
	assert.Equal(t, 30*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, "1y", cfg.Warm.Period)
	require.NoError(t, cfg.Validate())
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
database:
  driver: sqlite
  sqlite_path: /tmp/prices.db
fetch:
  max_attempts: 5
  retry_delay: 500ms
  chunk_size: 250
log:
  level: debug
warm:
  user: me@example.com
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/stocks")
	t.Setenv("FETCH_RETRY_DELAY", "1s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Database.Driver, "explicit driver in yaml wins unless DATABASE_DRIVER is set")
	assert.Equal(t, "postgresql://u:p@localhost:5432/stocks", cfg.Database.URL)
	assert.Equal(t, 5, cfg.Fetch.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Fetch.RetryDelay)
	assert.Equal(t, 250, cfg.Fetch.ChunkSize)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "me@example.com", cfg.Warm.User)
}

func TestLoad_DatabaseURLSelectsPostgres(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgresql://localhost/stocks")
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	require.NoError(t, cfg.Validate())
}

func TestLoad_BadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: [oops"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c := &Config{}
		c.applyDefaults()
		return c
	}

	c := base()
	c.Database.Driver = DriverPostgres
	assert.Error(t, c.Validate(), "postgres without url")

	c = base()
	c.Database.Driver = "mysql"
	assert.Error(t, c.Validate())

	c = base()
	c.Fetch.MaxAttempts = -1
	assert.Error(t, c.Validate())

	c = base()
	c.Database.MinConns = 20
	assert.Error(t, c.Validate())

	assert.NoError(t, base().Validate())
}
