package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration. Values land here from the YAML
// file; deploy-time secrets and addresses may be overridden from the
// environment (see applyEnv).
type Config struct {
	Server   ServerConfig             `yaml:"server"`
	Logging  LoggingConfig            `yaml:"logging"`
	Shutdown ShutdownConfig           `yaml:"shutdown"`
	Store    StoreConfig              `yaml:"store"`
	Queue    QueueConfig              `yaml:"queue"`
	Breakers map[string]BreakerConfig `yaml:"breakers"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ShutdownConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig selects and configures the durable job store backend.
type StoreConfig struct {
	// Driver is one of "memory", "redis", "postgres".
	Driver   string         `yaml:"driver"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// QueueConfig tunes the retry/backoff behavior.
type QueueConfig struct {
	MaxRetries int           `yaml:"maxRetries"`
	BaseDelay  time.Duration `yaml:"baseDelay"`
	MaxJitter  time.Duration `yaml:"maxJitter"`
}

// BreakerConfig fixes one dependency's circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failureThreshold"`
	RecoveryTimeout  time.Duration `yaml:"recoveryTimeout"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
		Shutdown: ShutdownConfig{Timeout: 30 * time.Second},
		Store: StoreConfig{
			Driver: "memory",
			Redis:  RedisConfig{Addr: "localhost:6379"},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "articleforge",
				Database: "articleforge",
				SSLMode:  "disable",
			},
		},
		Queue: QueueConfig{
			MaxRetries: 5,
			BaseDelay:  time.Second,
			MaxJitter:  200 * time.Millisecond,
		},
		Breakers: map[string]BreakerConfig{
			"search-provider": {FailureThreshold: 5, RecoveryTimeout: 10 * time.Second},
			"ai-provider":     {FailureThreshold: 3, RecoveryTimeout: 30 * time.Second},
			"publish-target":  {FailureThreshold: 2, RecoveryTimeout: 5 * time.Second},
		},
	}
}

// Load reads configuration from a YAML file, applies environment
// overrides, and validates. An empty path loads defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides the values operators set per deployment.
func (c *Config) applyEnv() {
	c.Store.Driver = getEnv("STORE_DRIVER", c.Store.Driver)
	c.Store.Redis.Addr = getEnv("REDIS_ADDR", c.Store.Redis.Addr)
	c.Store.Redis.Password = getEnv("REDIS_PASSWORD", c.Store.Redis.Password)
	c.Store.Postgres.Host = getEnv("DB_HOST", c.Store.Postgres.Host)
	c.Store.Postgres.Port = getEnvInt("DB_PORT", c.Store.Postgres.Port)
	c.Store.Postgres.User = getEnv("DB_USER", c.Store.Postgres.User)
	c.Store.Postgres.Password = getEnv("DB_PASSWORD", c.Store.Postgres.Password)
	c.Store.Postgres.Database = getEnv("DB_NAME", c.Store.Postgres.Database)
	c.Store.Postgres.SSLMode = getEnv("DB_SSLMODE", c.Store.Postgres.SSLMode)
	c.Server.Port = getEnvInt("PORT", c.Server.Port)
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	if c.Shutdown.Timeout <= 0 {
		return fmt.Errorf("shutdown.timeout must be positive")
	}

	switch c.Store.Driver {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("invalid store.driver: %s", c.Store.Driver)
	}

	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue.maxRetries must be non-negative")
	}
	if c.Queue.BaseDelay <= 0 {
		return fmt.Errorf("queue.baseDelay must be positive")
	}

	for service, b := range c.Breakers {
		if b.FailureThreshold < 1 {
			return fmt.Errorf("breakers.%s.failureThreshold must be at least 1", service)
		}
		if b.RecoveryTimeout <= 0 {
			return fmt.Errorf("breakers.%s.recoveryTimeout must be positive", service)
		}
	}

	return nil
}

// getEnv gets an environment variable or returns the fallback.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns the fallback.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
