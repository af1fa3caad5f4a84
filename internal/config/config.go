package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// Config holds all application configuration.
// It is built once at process start and shared read-only afterwards.
type Config struct {
	Database Database `yaml:"database"`
	Provider Provider `yaml:"provider"`
	Fetch    Fetch    `yaml:"fetch"`
	Log      Log      `yaml:"log"`
	Warm     Warm     `yaml:"warm"`
}

// Database selects and sizes the persistent store.
type Database struct {
	Driver          string        `yaml:"driver"`
	SQLitePath      string        `yaml:"sqlite_path"`
	URL             string        `yaml:"url"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// Provider configures the remote market data source. An empty BaseURL selects Yahoo Finance.
type Provider struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Proxy   string        `yaml:"proxy"`
	Timeout time.Duration `yaml:"timeout"`
}

// Fetch holds the retry and write-back policy for remote fetches.
type Fetch struct {
	MaxAttempts int           `yaml:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	Deadline    time.Duration `yaml:"deadline"` // 0 = bounded by attempts only
	ChunkSize   int           `yaml:"chunk_size"`
}

// Log configures the global logger.
type Log struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"` // json, pretty
	FileEnabled   bool   `yaml:"file_enabled"`
	FilePath      string `yaml:"file_path"`
	RotationSize  int    `yaml:"rotation_size"` // MB
	RetentionDays int    `yaml:"retention_days"`
}

// Warm configures the scheduled watchlist cache warmer.
type Warm struct {
	Cron        string `yaml:"cron"`
	User        string `yaml:"user"`
	Period      string `yaml:"period"`
	Concurrency int    `yaml:"concurrency"`
}

// Load reads config from a YAML file, then applies .env and environment variable overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	// .env is optional; real environment variables take precedence over it.
	_ = godotenv.Load()

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
		if c.Database.Driver == "" {
			c.Database.Driver = DriverPostgres
		}
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("PROVIDER_BASE_URL"); v != "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv("PROVIDER_API_KEY"); v != "" {
		c.Provider.APIKey = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Provider.Proxy = v
	}
	if v := os.Getenv("FETCH_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Fetch.MaxAttempts = n
		}
	}
	if v := os.Getenv("FETCH_RETRY_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Fetch.RetryDelay = d
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("WARM_CRON"); v != "" {
		c.Warm.Cron = v
	}
	if v := os.Getenv("WARM_USER"); v != "" {
		c.Warm.User = v
	}
}

func (c *Config) applyDefaults() {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	// Heroku-style URLs use the short scheme.
	if strings.HasPrefix(c.Database.URL, "postgres://") {
		c.Database.URL = "postgresql://" + strings.TrimPrefix(c.Database.URL, "postgres://")
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/stocklens.db"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 10
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = 1
	}
	if c.Database.MaxConnLifetime == 0 {
		c.Database.MaxConnLifetime = time.Hour
	}
	if c.Database.MaxConnIdleTime == 0 {
		c.Database.MaxConnIdleTime = 30 * time.Minute
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = 30 * time.Second
	}
	if c.Fetch.MaxAttempts == 0 {
		c.Fetch.MaxAttempts = 3
	}
	if c.Fetch.RetryDelay == 0 {
		c.Fetch.RetryDelay = 2 * time.Second
	}
	if c.Fetch.ChunkSize == 0 {
		c.Fetch.ChunkSize = 1000
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "pretty"
	}
	if c.Log.FilePath == "" {
		c.Log.FilePath = "logs"
	}
	if c.Log.RotationSize == 0 {
		c.Log.RotationSize = 100
	}
	if c.Log.RetentionDays == 0 {
		c.Log.RetentionDays = 7
	}
	if c.Warm.Cron == "" {
		c.Warm.Cron = "0 30 22 * * 1-5"
	}
	if c.Warm.Period == "" {
		c.Warm.Period = "1y"
	}
	if c.Warm.Concurrency == 0 {
		c.Warm.Concurrency = 4
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverNone:
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for driver %q", DriverPostgres)
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database.min_conns must not exceed database.max_conns")
	}
	if c.Fetch.MaxAttempts < 1 {
		return fmt.Errorf("fetch.max_attempts must be at least 1")
	}
	if c.Fetch.RetryDelay < 0 {
		return fmt.Errorf("fetch.retry_delay must not be negative")
	}
	if c.Fetch.ChunkSize < 1 {
		return fmt.Errorf("fetch.chunk_size must be positive")
	}
	if c.Warm.Concurrency < 1 {
		return fmt.Errorf("warm.concurrency must be positive")
	}
	return nil
}
