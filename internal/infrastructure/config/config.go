package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const Prefix = "MVARIANT"

// Database holds libsql configuration. An empty URL selects a local file
// under the XDG data directory.
type Database struct {
	URL       string `envconfig:"DATABASE_URL"`
	AuthToken string `envconfig:"AUTH_TOKEN"`
}

// Redis holds configuration for the Redis config source.
type Redis struct {
	Addr     string `envconfig:"REDIS_ADDR"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
	HashKey  string `envconfig:"REDIS_HASH_KEY" default:"mvariant:config"`
}

// Fetch configures the config fetcher.
type Fetch struct {
	MinRefreshInterval time.Duration `envconfig:"FETCH_MIN_REFRESH_INTERVAL" default:"1h"`
	MaxAttempts        int           `envconfig:"FETCH_MAX_ATTEMPTS" default:"3"`
	BaseDelay          time.Duration `envconfig:"FETCH_BASE_DELAY" default:"1s"`
}

// Catalog configures the experiment catalog cache.
type Catalog struct {
	Key             string        `envconfig:"CATALOG_KEY" default:"experiments"`
	RefreshInterval time.Duration `envconfig:"CATALOG_REFRESH_INTERVAL" default:"5m"`
	FailureTTL      time.Duration `envconfig:"CATALOG_FAILURE_TTL" default:"30s"`
}

// Log configures the zap logger.
type Log struct {
	Mode        string `envconfig:"LOG_MODE" default:"dev"`
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	HashUserIDs bool   `envconfig:"LOG_HASH_USER_IDS" default:"false"`
	HashSalt    string `envconfig:"LOG_HASH_SALT"`
}

// Config is the full engine configuration.
type Config struct {
	// Source selects the config source: turso, redis or memory.
	Source string `envconfig:"SOURCE" default:"turso"`

	// Sections are processed on their own so their keys stay flat.
	Database Database `ignored:"true"`
	Redis    Redis    `ignored:"true"`
	Fetch    Fetch    `ignored:"true"`
	Catalog  Catalog  `ignored:"true"`
	Log      Log      `ignored:"true"`

	AssignmentCacheSize uint64 `envconfig:"ASSIGNMENT_CACHE_SIZE" default:"10000"`
	AnalyticsBuffer     int    `envconfig:"ANALYTICS_BUFFER" default:"256"`
}

// Load reads the configuration from MVARIANT_* environment variables.
func Load() (*Config, error) {
	var cfg Config
	for _, section := range []interface{}{&cfg, &cfg.Database, &cfg.Redis, &cfg.Fetch, &cfg.Catalog, &cfg.Log} {
		if err := envconfig.Process(Prefix, section); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Source {
	case "turso", "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("%s_REDIS_ADDR is required when %s_SOURCE=redis", Prefix, Prefix)
		}
	default:
		return fmt.Errorf("unknown config source %q", c.Source)
	}
	if c.Fetch.MaxAttempts < 1 {
		return fmt.Errorf("fetch max attempts must be at least 1, got %d", c.Fetch.MaxAttempts)
	}
	return nil
}
