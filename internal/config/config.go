// Package config loads stereotype.yaml with environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/conduit-lang/stereotype/internal/annotation"
)

// EnvPrefix prefixes every environment override, e.g. STEREOTYPE_LOG_LEVEL
const EnvPrefix = "STEREOTYPE"

// Drivers lists the database/sql driver names the CLI registers
var Drivers = []string{"sqlite3", "pgx", "postgres"}

// Config represents the stereotype configuration
type Config struct {
	Annotation AnnotationConfig `mapstructure:"annotation"`
	Log        LogConfig        `mapstructure:"log"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Server     ServerConfig     `mapstructure:"server"`
}

// AnnotationConfig configures the annotation store
type AnnotationConfig struct {
	Policy string `mapstructure:"policy"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
}

// RedisConfig represents the catalog's Redis connection
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CatalogConfig configures catalog publishing
type CatalogConfig struct {
	Prefix string `mapstructure:"prefix"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Policy returns the parsed annotation policy
func (c *Config) Policy() annotation.Policy {
	p, err := annotation.ParsePolicy(c.Annotation.Policy)
	if err != nil {
		return annotation.PolicyOverwrite
	}
	return p
}

// Load loads the configuration from stereotype.yaml in the working directory
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom loads the configuration from stereotype.yaml in dir
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("stereotype")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("annotation.policy", annotation.PolicyOverwrite.String())
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.url", ":memory:")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("catalog.prefix", "stereotype:")
	v.SetDefault("server.addr", ":8080")
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if _, err := annotation.ParsePolicy(cfg.Annotation.Policy); err != nil {
		return fmt.Errorf("annotation.policy: %w", err)
	}
	if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	known := false
	for _, d := range Drivers {
		if cfg.Database.Driver == d {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("database.driver must be one of %s, got: %s", strings.Join(Drivers, ", "), cfg.Database.Driver)
	}

	if cfg.Redis.DB < 0 {
		return fmt.Errorf("redis.db must not be negative, got: %d", cfg.Redis.DB)
	}
	return nil
}
