// Package config loads the server configuration from a YAML file and
// AGENTHUB_-prefixed environment variables, environment taking precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/phamhung075/4genthub-sub028/pkg/auth"
	"github.com/phamhung075/4genthub-sub028/pkg/cache"
	"github.com/phamhung075/4genthub-sub028/pkg/observability"
)

// Config holds the complete application configuration
type Config struct {
	API      APIConfig                   `mapstructure:"api"`
	Database DatabaseConfig              `mapstructure:"database"`
	Auth     auth.ServiceConfig          `mapstructure:"auth"`
	Cache    CacheConfig                 `mapstructure:"cache"`
	Redis    cache.RedisConfig           `mapstructure:"redis"`
	Logging  observability.LoggingConfig `mapstructure:"logging"`
	Metrics  observability.MetricsConfig `mapstructure:"metrics"`
	Limits   LimitsConfig                `mapstructure:"limits"`
	Tools    ToolsConfig                 `mapstructure:"tools"`
}

// APIConfig holds HTTP server settings
type APIConfig struct {
	ListenAddress  string        `mapstructure:"listen_address"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DatabaseConfig holds storage gateway settings
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Driver          string        `mapstructure:"driver"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// CacheConfig holds the in-process cache settings
type CacheConfig struct {
	// InheritanceCache entry cap
	InheritanceCacheSize int `mapstructure:"inheritance_cache_size"`
	// Facade cache entry cap and TTL
	FacadeCacheSize int           `mapstructure:"facade_cache_size"`
	FacadeCacheTTL  time.Duration `mapstructure:"facade_cache_ttl"`
	// Shared cache entry cap (memory backend)
	SharedCacheSize int           `mapstructure:"shared_cache_size"`
	SharedCacheTTL  time.Duration `mapstructure:"shared_cache_ttl"`
	// Use Redis for the shared cache when an address is configured
	UseRedis bool `mapstructure:"use_redis"`
}

// LimitsConfig holds request and quota limits
type LimitsConfig struct {
	MaxPayloadBytes    int64 `mapstructure:"max_payload_bytes"`
	MaxDependencyEdges int   `mapstructure:"max_dependency_edges"`
	RateLimitEnabled   bool  `mapstructure:"rate_limit_enabled"`
	RateLimitPerMinute int   `mapstructure:"rate_limit_per_minute"`
	DelegationMaxTries int   `mapstructure:"delegation_max_tries"`
}

// ToolsConfig enables or disables individual tools
type ToolsConfig struct {
	Disabled []string `mapstructure:"disabled"`
}

// Enabled reports whether the named tool is enabled
func (t ToolsConfig) Enabled(name string) bool {
	for _, d := range t.Disabled {
		if d == name {
			return false
		}
	}
	return true
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	configFile := os.Getenv("AGENTHUB_CONFIG_FILE")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("AGENTHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; environment variables may carry everything
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// DATABASE_URL wins over any configured DSN, matching deploy tooling
	if url := os.Getenv("DATABASE_URL"); url != "" {
		config.Database.DSN = url
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.listen_address", ":8080")
	v.SetDefault("api.read_timeout", 30*time.Second)
	v.SetDefault("api.write_timeout", 30*time.Second)
	v.SetDefault("api.idle_timeout", 90*time.Second)
	v.SetDefault("api.request_timeout", 30*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.connect_timeout", 10*time.Second)
	v.SetDefault("database.migrations_path", "migrations/sql")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("auth.clock_skew", 30*time.Second)
	v.SetDefault("auth.jwks_refresh", 15*time.Minute)

	v.SetDefault("cache.inheritance_cache_size", 4096)
	v.SetDefault("cache.facade_cache_size", 1024)
	v.SetDefault("cache.facade_cache_ttl", 30*time.Minute)
	v.SetDefault("cache.shared_cache_size", 8192)
	v.SetDefault("cache.shared_cache_ttl", 5*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "agenthub")

	v.SetDefault("limits.max_payload_bytes", int64(1<<20))
	v.SetDefault("limits.max_dependency_edges", 10000)
	v.SetDefault("limits.rate_limit_enabled", false)
	v.SetDefault("limits.rate_limit_per_minute", 600)
	v.SetDefault("limits.delegation_max_tries", 5)
}
