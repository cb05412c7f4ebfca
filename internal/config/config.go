package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/omniview/internal/domain/layout"
)

// Store drivers.
const (
	DriverDynamoDB = "dynamodb"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// Config holds the omniview maintainer configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Store      StoreConfig      `yaml:"store"`
	Feed       FeedConfig       `yaml:"feed"`
	Maintainer MaintainerConfig `yaml:"maintainer"`
	Layout     LayoutConfig     `yaml:"layout"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// StoreConfig holds aggregate store settings.
type StoreConfig struct {
	Driver           string `yaml:"driver"` // dynamodb, redis, memory (default: dynamodb)
	ReadinessTimeout int    `yaml:"readiness_timeout_sec"`

	// dynamodb
	Table    string `yaml:"table"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`

	// redis
	Addrs    []string `yaml:"addrs"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	Key      string   `yaml:"key"`
}

// FeedConfig selects the change-batch sources the daemon listens on.
type FeedConfig struct {
	HTTP  HTTPFeedConfig  `yaml:"http"`
	Redis RedisFeedConfig `yaml:"redis"`
}

// HTTPFeedConfig toggles the POST /v1/batches endpoint.
type HTTPFeedConfig struct {
	Enabled bool `yaml:"enabled"`
}

// RedisFeedConfig holds Redis Streams consumer settings.
type RedisFeedConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
	Stream   string   `yaml:"stream"`
	Group    string   `yaml:"group"`
	Consumer string   `yaml:"consumer"`
	Count    int64    `yaml:"count"`
	BlockMS  int      `yaml:"block_ms"`
}

// MaintainerConfig holds batch processing settings.
type MaintainerConfig struct {
	MaxConflictRetries int `yaml:"max_conflict_retries"`
}

// LayoutConfig overrides the key shapes of the table. Empty fields keep the default.
type LayoutConfig struct {
	ItemPrefix           string `yaml:"item_prefix"`
	ItemSortKey          string `yaml:"item_sort_key"`
	TagPrefix            string `yaml:"tag_prefix"`
	RestrictionPartition string `yaml:"restriction_partition"`
	EntityAttribute      string `yaml:"entity_attribute"`
	TypeAttribute        string `yaml:"type_attribute"`
	AggregatePK          string `yaml:"aggregate_pk"`
	AggregateSK          string `yaml:"aggregate_sk"`
}

// Layout returns the effective table layout.
func (l LayoutConfig) Layout() layout.Layout {
	return layout.Layout{
		ItemPrefix:           l.ItemPrefix,
		ItemSortKey:          l.ItemSortKey,
		TagPrefix:            l.TagPrefix,
		RestrictionPartition: l.RestrictionPartition,
		EntityAttribute:      l.EntityAttribute,
		TypeAttribute:        l.TypeAttribute,
		AggregatePK:          l.AggregatePK,
		AggregateSK:          l.AggregateSK,
	}.Merge()
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// FromEnv builds the configuration of a function deployment, where there is
// no config file and the platform passes settings as environment variables.
func FromEnv() (Config, error) {
	cfg := Config{
		HTTP: HTTPConfig{Port: 8080},
		Store: StoreConfig{
			Driver:   DriverDynamoDB,
			Table:    os.Getenv("TABLE_NAME"),
			Region:   os.Getenv("AWS_REGION"),
			Endpoint: os.Getenv("DYNAMODB_ENDPOINT"),
		},
		Layout: LayoutConfig{
			AggregatePK: os.Getenv("AGGREGATE_PK"),
			AggregateSK: os.Getenv("AGGREGATE_SK"),
		},
		Logging: LoggingConfig{Level: os.Getenv("LOG_LEVEL")},
	}
	if v := os.Getenv("MAX_CONFLICT_RETRIES"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &cfg.Maintainer.MaxConflictRetries); err != nil {
			return Config{}, fmt.Errorf("invalid MAX_CONFLICT_RETRIES %q: %w", v, err)
		}
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverDynamoDB
	}
	if c.Store.ReadinessTimeout <= 0 {
		c.Store.ReadinessTimeout = 10
	}
	if c.Store.Key == "" {
		c.Store.Key = "omni"
	}
	if c.Feed.Redis.Enabled {
		if len(c.Feed.Redis.Addrs) == 0 {
			c.Feed.Redis.Addrs = c.Store.Addrs
		}
		if c.Feed.Redis.Group == "" {
			c.Feed.Redis.Group = "omniview"
		}
		if c.Feed.Redis.Consumer == "" {
			c.Feed.Redis.Consumer, _ = os.Hostname()
		}
		if c.Feed.Redis.Count <= 0 {
			c.Feed.Redis.Count = 50
		}
		if c.Feed.Redis.BlockMS <= 0 {
			c.Feed.Redis.BlockMS = 5000
		}
	}
	if c.Maintainer.MaxConflictRetries <= 0 {
		c.Maintainer.MaxConflictRetries = 5
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Store.Driver {
	case DriverDynamoDB:
		if c.Store.Table == "" {
			return fmt.Errorf("store.table is required for driver %q", c.Store.Driver)
		}
	case DriverRedis:
		if len(c.Store.Addrs) == 0 {
			return fmt.Errorf("store.addrs is required for driver %q", c.Store.Driver)
		}
	case DriverMemory:
		// ok
	default:
		return fmt.Errorf("store.driver must be %q, %q or %q, got %q",
			DriverDynamoDB, DriverRedis, DriverMemory, c.Store.Driver)
	}
	if c.Feed.Redis.Enabled {
		if c.Feed.Redis.Stream == "" {
			return fmt.Errorf("feed.redis.stream is required when the redis feed is enabled")
		}
		if len(c.Feed.Redis.Addrs) == 0 {
			return fmt.Errorf("feed.redis.addrs is required when the redis feed is enabled")
		}
	}
	if err := c.Layout.Layout().Validate(); err != nil {
		return fmt.Errorf("layout: %w", err)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
