// Package config loads and validates the application configuration from an
// optional YAML file, environment variables, and built-in defaults.
package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/plantlog/plantlog/pkg/models"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Metrics  MetricsConfig  `yaml:"metrics" mapstructure:"metrics"`
	Logging  LoggingConfig  `yaml:"logging" mapstructure:"logging"`
	Storage  StorageConfig  `yaml:"storage" mapstructure:"storage"`
	Readings ReadingsConfig `yaml:"readings" mapstructure:"readings"`
}

// ServerConfig contains server configuration
type ServerConfig struct {
	Port        string   `yaml:"port" mapstructure:"port"`
	Host        string   `yaml:"host" mapstructure:"host"`
	CORSOrigins []string `yaml:"corsOrigins" mapstructure:"corsOrigins"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string            `yaml:"level" mapstructure:"level"`
	Format string            `yaml:"format" mapstructure:"format"`
	Output string            `yaml:"output" mapstructure:"output"`
	Fields map[string]string `yaml:"fields" mapstructure:"fields"`
}

// StorageConfig selects and configures the storage backend. When Backend is
// empty, the presence of a Postgres URL decides.
type StorageConfig struct {
	Backend  string         `yaml:"backend" mapstructure:"backend"`
	SQLite   SQLiteConfig   `yaml:"sqlite" mapstructure:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// SQLiteConfig contains the embedded backend configuration
type SQLiteConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains the networked backend configuration
type PostgresConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// ReadingsConfig contains ingestion and query policy
type ReadingsConfig struct {
	DefaultDeviceID string          `yaml:"defaultDeviceId" mapstructure:"defaultDeviceId"`
	StaleAfter      models.Duration `yaml:"staleAfter" mapstructure:"staleAfter"`
	HistoryHours    int             `yaml:"historyHours" mapstructure:"historyHours"`
	HistoryLimit    int             `yaml:"historyLimit" mapstructure:"historyLimit"`
	MaxHistoryLimit int             `yaml:"maxHistoryLimit" mapstructure:"maxHistoryLimit"`
}

// LoadConfig loads configuration from an optional file, applying defaults
// and environment overrides (DATABASE_URL selects the Postgres backend,
// DB_PATH moves the SQLite file)
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", "5000")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("storage.backend", "")
	v.SetDefault("storage.sqlite.path", "/tmp/plant_readings.db")
	v.SetDefault("storage.postgres.url", "")
	v.SetDefault("readings.defaultDeviceId", models.DefaultDeviceID)
	v.SetDefault("readings.staleAfter", "10m")
	v.SetDefault("readings.historyHours", 168)
	v.SetDefault("readings.historyLimit", 500)
	v.SetDefault("readings.maxHistoryLimit", 5000)

	// Enable environment variable substitution
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Deployment-platform conventions
	if err := v.BindEnv("storage.postgres.url", "DATABASE_URL"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("storage.sqlite.path", "DB_PATH"); err != nil {
		return nil, err
	}

	// Config file is optional; defaults and env cover a bare deployment
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/plantlog")
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		stringToModelsDurationHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// stringToModelsDurationHook decodes "10m"-style strings into models.Duration
func stringToModelsDurationHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(models.Duration(0)) {
			return data, nil
		}
		d, err := time.ParseDuration(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid duration string %q: %w", data.(string), err)
		}
		return models.Duration(d), nil
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	switch c.Storage.Backend {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid storage backend: %s (valid options: sqlite, postgres)", c.Storage.Backend)
	}

	if c.Storage.Backend == "postgres" && c.Storage.Postgres.URL == "" {
		return fmt.Errorf("storage.postgres.url is required for the postgres backend")
	}
	if (c.Storage.Backend == "sqlite" || c.Storage.Backend == "") && c.Storage.SQLite.Path == "" && c.Storage.Postgres.URL == "" {
		return fmt.Errorf("storage.sqlite.path is required for the sqlite backend")
	}

	if c.Readings.DefaultDeviceID == "" {
		return fmt.Errorf("readings.defaultDeviceId is required")
	}
	if c.Readings.StaleAfter <= 0 {
		return fmt.Errorf("readings.staleAfter must be positive")
	}
	if c.Readings.HistoryHours <= 0 {
		return fmt.Errorf("readings.historyHours must be > 0")
	}
	if c.Readings.MaxHistoryLimit <= 0 {
		return fmt.Errorf("readings.maxHistoryLimit must be > 0")
	}
	if c.Readings.HistoryLimit <= 0 || c.Readings.HistoryLimit > c.Readings.MaxHistoryLimit {
		return fmt.Errorf("readings.historyLimit must be between 1 and %d", c.Readings.MaxHistoryLimit)
	}

	return nil
}
