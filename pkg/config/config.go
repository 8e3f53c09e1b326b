package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/apache/airavata-custos-sub001/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage"`

	// Sharing engine configuration
	Sharing SharingConfig `yaml:"sharing"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"-"`
	WriteTimeout    time.Duration `yaml:"-"`
	IdleTimeout     time.Duration `yaml:"-"`
	ShutdownTimeout time.Duration `yaml:"-"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// StorageConfig holds database and cache configuration
type StorageConfig struct {
	PostgresURL      string        `yaml:"postgres_url"`
	PostgresMaxConns int           `yaml:"postgres_max_conns"`
	PostgresMaxIdle  int           `yaml:"postgres_max_idle"`
	PostgresTimeout  time.Duration `yaml:"-"`

	RedisURL      string `yaml:"redis_url"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	CacheEnabled bool          `yaml:"cache_enabled"`
	CacheTTL     time.Duration `yaml:"-"`
}

// SharingConfig holds sharing engine settings
type SharingConfig struct {
	ReconcilerEnabled  bool          `yaml:"reconciler_enabled"`
	ReconcilerSchedule string        `yaml:"reconciler_schedule"`
	ReconcilerTimeout  time.Duration `yaml:"-"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// ParsedLogLevel returns the configured log level
func (c ObservabilityConfig) ParsedLogLevel() observability.LogLevel {
	return observability.ParseLogLevel(c.LogLevel)
}

// LoadConfig loads configuration from environment variables. When
// SHARING_CONFIG_FILE points at a YAML file, the file is loaded first and
// environment variables override it.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("SHARING_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns the built-in defaults
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Storage: StorageConfig{
			PostgresMaxConns: 25,
			PostgresMaxIdle:  5,
			PostgresTimeout:  5 * time.Second,
			RedisDB:          0,
			CacheEnabled:     false,
			CacheTTL:         5 * time.Minute,
		},
		Sharing: SharingConfig{
			ReconcilerEnabled:  true,
			ReconcilerSchedule: "@every 1h",
			ReconcilerTimeout:  10 * time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			MetricsEnabled: true,
		},
	}
}

// fileDurations mirrors the duration fields of the YAML file. YAML cannot
// decode "15s" into a time.Duration, so durations are carried as strings and
// parsed explicitly.
type fileDurations struct {
	Server struct {
		ReadTimeout     string `yaml:"read_timeout"`
		WriteTimeout    string `yaml:"write_timeout"`
		IdleTimeout     string `yaml:"idle_timeout"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Storage struct {
		PostgresTimeout string `yaml:"postgres_timeout"`
		CacheTTL        string `yaml:"cache_ttl"`
	} `yaml:"storage"`
	Sharing struct {
		ReconcilerTimeout string `yaml:"reconciler_timeout"`
	} `yaml:"sharing"`
}

// applyFile overlays values from a YAML configuration file
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	var durations fileDurations
	if err := yaml.Unmarshal(data, &durations); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	for _, d := range []struct {
		value string
		dest  *time.Duration
	}{
		{durations.Server.ReadTimeout, &c.Server.ReadTimeout},
		{durations.Server.WriteTimeout, &c.Server.WriteTimeout},
		{durations.Server.IdleTimeout, &c.Server.IdleTimeout},
		{durations.Server.ShutdownTimeout, &c.Server.ShutdownTimeout},
		{durations.Storage.PostgresTimeout, &c.Storage.PostgresTimeout},
		{durations.Storage.CacheTTL, &c.Storage.CacheTTL},
		{durations.Sharing.ReconcilerTimeout, &c.Sharing.ReconcilerTimeout},
	} {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid duration %q in config file %s: %w", d.value, path, err)
		}
		*d.dest = parsed
	}
	return nil
}

// applyEnv overlays values from environment variables
func (c *Config) applyEnv() {
	c.Server.Host = getEnv("SHARING_HOST", c.Server.Host)
	c.Server.Port = getEnv("SHARING_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("SHARING_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("SHARING_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("SHARING_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("SHARING_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.HealthPort = getEnv("SHARING_HEALTH_PORT", c.Server.HealthPort)

	c.Storage.PostgresURL = getEnv("SHARING_POSTGRES_URL", c.Storage.PostgresURL)
	c.Storage.PostgresMaxConns = getEnvInt("SHARING_POSTGRES_MAX_CONNS", c.Storage.PostgresMaxConns)
	c.Storage.PostgresMaxIdle = getEnvInt("SHARING_POSTGRES_MAX_IDLE", c.Storage.PostgresMaxIdle)
	c.Storage.PostgresTimeout = getEnvDuration("SHARING_POSTGRES_TIMEOUT", c.Storage.PostgresTimeout)
	c.Storage.RedisURL = getEnv("SHARING_REDIS_URL", c.Storage.RedisURL)
	c.Storage.RedisPassword = getEnv("SHARING_REDIS_PASSWORD", c.Storage.RedisPassword)
	c.Storage.RedisDB = getEnvInt("SHARING_REDIS_DB", c.Storage.RedisDB)
	c.Storage.CacheEnabled = getEnvBool("SHARING_CACHE_ENABLED", c.Storage.CacheEnabled)
	c.Storage.CacheTTL = getEnvDuration("SHARING_CACHE_TTL", c.Storage.CacheTTL)

	c.Sharing.ReconcilerEnabled = getEnvBool("SHARING_RECONCILER_ENABLED", c.Sharing.ReconcilerEnabled)
	c.Sharing.ReconcilerSchedule = getEnv("SHARING_RECONCILER_SCHEDULE", c.Sharing.ReconcilerSchedule)
	c.Sharing.ReconcilerTimeout = getEnvDuration("SHARING_RECONCILER_TIMEOUT", c.Sharing.ReconcilerTimeout)

	c.Observability.LogLevel = getEnv("SHARING_LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.MetricsEnabled = getEnvBool("SHARING_METRICS_ENABLED", c.Observability.MetricsEnabled)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Storage.CacheEnabled && c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required when the access cache is enabled")
	}

	if c.Sharing.ReconcilerEnabled && c.Sharing.ReconcilerSchedule == "" {
		return fmt.Errorf("reconciler schedule is required when the reconciler is enabled")
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
