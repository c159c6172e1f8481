// Package config loads service configuration from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	Storage      StorageConfig      `yaml:"storage"`
	Birdeye      BirdeyeConfig      `yaml:"birdeye"`
	Redis        RedisConfig        `yaml:"redis"`
	Verification VerificationConfig `yaml:"verification"`
	Backfill     BackfillConfig     `yaml:"backfill"`
	Leaderboard  LeaderboardConfig  `yaml:"leaderboard"`
	Log          LogConfig          `yaml:"log"`
}

// HTTPConfig controls the API server.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	PublicBaseURL   string        `yaml:"public_base_url"` // prefix of artifact references
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AdminToken      string        `yaml:"admin_token"` // empty leaves /admin open
}

// StorageConfig selects the persistence backends.
type StorageConfig struct {
	UseMemory        bool   `yaml:"use_memory"`
	PostgresDSN      string `yaml:"postgres_dsn"`
	PostgresMaxConns int32  `yaml:"postgres_max_conns"` // 0 keeps the pgx default
	ClickHouseDSN    string `yaml:"clickhouse_dsn"`     // empty disables artifact storage
	Migrate          bool   `yaml:"migrate"`
}

// BirdeyeConfig configures the price history provider.
type BirdeyeConfig struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Chain      string        `yaml:"chain"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RPS        float64       `yaml:"rps"` // 0 disables client-side limiting
	Burst      int           `yaml:"burst"`
}

// RedisConfig configures the provider response cache.
type RedisConfig struct {
	Addr      string        `yaml:"addr"` // empty disables the cache
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	TTL       time.Duration `yaml:"ttl"`
	KeyPrefix string        `yaml:"key_prefix"`
}

// VerificationConfig controls the recurring verification run.
type VerificationConfig struct {
	Disabled      bool          `yaml:"disabled"`   // no cron trigger, manual runs only
	Schedule      string        `yaml:"schedule"`   // cron spec with seconds field
	ItemDelay     time.Duration `yaml:"item_delay"` // provider pacing, shared with backfill
	FetchTimeout  time.Duration `yaml:"fetch_timeout"`
	MaxPendingAge time.Duration `yaml:"max_pending_age"` // 0 retries forever
}

// BackfillConfig controls the artifact backfill job.
// It is paced by verification.item_delay.
type BackfillConfig struct {
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// LeaderboardConfig controls leaderboard paging.
type LeaderboardConfig struct {
	DefaultLimit int `yaml:"default_limit"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level    string `yaml:"level"`    // debug | info | warn | error
	Encoding string `yaml:"encoding"` // json | console
}

// Default values.
const (
	DefaultHTTPAddr        = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultSchedule        = "0 0 * * * *"
	DefaultItemDelay       = time.Second
	DefaultFetchTimeout    = 30 * time.Second
	DefaultLeaderboardSize = 20
)

// Load reads the configuration and validates it.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return cfg, nil
}

// Read loads the YAML file at path, applies .env and environment overrides
// and fills defaults without validating. An empty path skips the file.
// Commands that override fields from flags call Validate afterwards.
func Read(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	setDefaults(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("PUBLIC_BASE_URL"); v != "" {
		cfg.HTTP.PublicBaseURL = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		cfg.HTTP.AdminToken = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		cfg.Storage.ClickHouseDSN = v
	}
	if v := os.Getenv("BIRDEYE_API_KEY"); v != "" {
		cfg.Birdeye.APIKey = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		cfg.Redis.DB = db
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_ENCODING"); v != "" {
		cfg.Log.Encoding = v
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = DefaultHTTPAddr
	}
	if cfg.HTTP.PublicBaseURL == "" {
		cfg.HTTP.PublicBaseURL = "http://localhost" + cfg.HTTP.Addr
	}
	if cfg.HTTP.ShutdownTimeout <= 0 {
		cfg.HTTP.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Birdeye.BaseURL == "" {
		cfg.Birdeye.BaseURL = "https://public-api.birdeye.so"
	}
	if cfg.Birdeye.Chain == "" {
		cfg.Birdeye.Chain = "solana"
	}
	if cfg.Birdeye.Timeout <= 0 {
		cfg.Birdeye.Timeout = 30 * time.Second
	}
	if cfg.Birdeye.MaxRetries <= 0 {
		cfg.Birdeye.MaxRetries = 3
	}
	if cfg.Birdeye.RPS > 0 && cfg.Birdeye.Burst <= 0 {
		cfg.Birdeye.Burst = 1
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = 24 * time.Hour
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "pricefeed:"
	}
	if cfg.Verification.Schedule == "" {
		cfg.Verification.Schedule = DefaultSchedule
	}
	if cfg.Verification.ItemDelay == 0 {
		cfg.Verification.ItemDelay = DefaultItemDelay
	}
	if cfg.Verification.FetchTimeout <= 0 {
		cfg.Verification.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Backfill.FetchTimeout <= 0 {
		cfg.Backfill.FetchTimeout = cfg.Verification.FetchTimeout
	}
	if cfg.Leaderboard.DefaultLimit <= 0 {
		cfg.Leaderboard.DefaultLimit = DefaultLeaderboardSize
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Encoding == "" {
		cfg.Log.Encoding = "json"
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	if !c.Storage.UseMemory && c.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("storage.postgres_dsn is required unless storage.use_memory is set"))
	}
	if c.Verification.ItemDelay < 0 {
		errs = append(errs, fmt.Errorf("verification.item_delay must not be negative, got %s", c.Verification.ItemDelay))
	}
	if c.Verification.MaxPendingAge < 0 {
		errs = append(errs, fmt.Errorf("verification.max_pending_age must not be negative, got %s", c.Verification.MaxPendingAge))
	}
	if c.Birdeye.RPS < 0 {
		errs = append(errs, fmt.Errorf("birdeye.rps must not be negative, got %v", c.Birdeye.RPS))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Encoding {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.encoding %q is not one of json, console", c.Log.Encoding))
	}

	return errors.Join(errs...)
}
