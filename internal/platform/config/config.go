// Package config loads daemon configuration from YAML and the environment.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the resilience core.
type Config struct {
	Store         StoreConfig         `mapstructure:"store"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Connectivity  ConnectivityConfig  `mapstructure:"connectivity"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	AWS           AWSConfig           `mapstructure:"aws"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	HTTP          HTTPConfig          `mapstructure:"http"`
}

// StoreConfig selects and configures the persistent store backend.
type StoreConfig struct {
	Backend string      `mapstructure:"backend"` // bolt, redis, dynamo, memory
	Bolt    BoltConfig  `mapstructure:"bolt"`
	Redis   RedisConfig `mapstructure:"redis"`
	Dynamo  DynamoConfig `mapstructure:"dynamo"`
}

// BoltConfig holds bbolt settings.
type BoltConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DynamoConfig holds DynamoDB settings.
type DynamoConfig struct {
	Table string `mapstructure:"table"`
}

// CacheConfig holds two-tier cache settings.
type CacheConfig struct {
	DefaultTTL       time.Duration `mapstructure:"default_ttl"`
	DefaultNamespace string        `mapstructure:"default_namespace"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	WarmNamespaces   []string      `mapstructure:"warm_namespaces"`
}

// QueueConfig holds action queue settings.
type QueueConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	ReplayTimeout   time.Duration `mapstructure:"replay_timeout"`
	ReplayBaseURL   string        `mapstructure:"replay_base_url"`
	DefaultPriority int           `mapstructure:"default_priority"`
}

// ConnectivityConfig holds connectivity monitor settings.
type ConnectivityConfig struct {
	ReconnectPulse time.Duration `mapstructure:"reconnect_pulse"`
	Probe          ProbeConfig   `mapstructure:"probe"`
}

// ProbeConfig holds the active HTTP probe settings.
type ProbeConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	URL      string        `mapstructure:"url"`
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// NotificationsConfig holds dropped-action notification settings.
type NotificationsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	SNSTopicARN string `mapstructure:"sns_topic_arn"`
}

// AWSConfig holds AWS client settings.
type AWSConfig struct {
	Region string `mapstructure:"region"`
}

// ObservabilityConfig holds observability settings.
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// TracingConfig holds tracing settings.
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HTTPConfig holds the operational HTTP server settings.
type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env vars apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	// Store defaults
	v.SetDefault("store.backend", "bolt")
	v.SetDefault("store.bolt.path", "syncbox.db")
	v.SetDefault("store.redis.address", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.dynamo.table", "syncbox")

	// Cache defaults
	v.SetDefault("cache.default_ttl", "5m")
	v.SetDefault("cache.default_namespace", "app")
	v.SetDefault("cache.sweep_interval", "60s")
	v.SetDefault("cache.warm_namespaces", []string{})

	// Queue defaults
	v.SetDefault("queue.max_attempts", 5)
	v.SetDefault("queue.replay_timeout", "30s")
	v.SetDefault("queue.replay_base_url", "")
	v.SetDefault("queue.default_priority", 1)

	// Connectivity defaults
	v.SetDefault("connectivity.reconnect_pulse", "5s")
	v.SetDefault("connectivity.probe.enabled", false)
	v.SetDefault("connectivity.probe.url", "")
	v.SetDefault("connectivity.probe.interval", "15s")
	v.SetDefault("connectivity.probe.timeout", "5s")

	// Notification defaults
	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.sns_topic_arn", "")

	// AWS defaults
	v.SetDefault("aws.region", "us-east-1")

	// Observability defaults
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")

	// HTTP defaults
	v.SetDefault("http.port", 8080)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "bolt":
		if c.Store.Bolt.Path == "" {
			return fmt.Errorf("bolt store requires a path")
		}
	case "redis":
		if c.Store.Redis.Address == "" {
			return fmt.Errorf("redis store requires an address")
		}
	case "dynamo":
		if c.Store.Dynamo.Table == "" {
			return fmt.Errorf("dynamo store requires a table name")
		}
		if c.AWS.Region == "" {
			return fmt.Errorf("dynamo store requires an AWS region")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store backend: %s", c.Store.Backend)
	}

	if c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("cache default TTL must be positive")
	}
	if c.Cache.DefaultNamespace == "" {
		return fmt.Errorf("cache default namespace is required")
	}
	if c.Cache.SweepInterval <= 0 {
		return fmt.Errorf("cache sweep interval must be positive")
	}

	if c.Queue.MaxAttempts <= 0 {
		return fmt.Errorf("queue max attempts must be positive")
	}
	if c.Queue.ReplayTimeout <= 0 {
		return fmt.Errorf("queue replay timeout must be positive")
	}

	if c.Connectivity.ReconnectPulse <= 0 {
		return fmt.Errorf("reconnect pulse must be positive")
	}
	if c.Connectivity.Probe.Enabled && c.Connectivity.Probe.URL == "" {
		return fmt.Errorf("connectivity probe requires a URL")
	}

	if c.Notifications.Enabled && c.Notifications.SNSTopicARN == "" {
		return fmt.Errorf("notifications require an SNS topic ARN")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Observability.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Observability.Logging.Level)
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Observability.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Observability.Logging.Format)
	}

	return nil
}
