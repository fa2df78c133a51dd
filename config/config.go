// Package config loads the service configuration from defaults, an optional
// YAML file and the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	View     ViewConfig     `mapstructure:"view" yaml:"view"`
	Engine   EngineConfig   `mapstructure:"engine" yaml:"engine"`
}

// LoggerConfig configures the zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	// LogFile enables a rotated JSON log file next to the console output.
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// DatabaseConfig holds the ArangoDB connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            string        `mapstructure:"port" yaml:"port"`
	User            string        `mapstructure:"user" yaml:"user"`
	Password        string        `mapstructure:"password" yaml:"-"`
	URL             string        `mapstructure:"url" yaml:"url"`
	Name            string        `mapstructure:"name" yaml:"name"`
	InitialInterval time.Duration `mapstructure:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval" yaml:"max_interval"`
	// MaxElapsedTime of 0 retries the connection forever.
	MaxElapsedTime time.Duration `mapstructure:"max_elapsed_time" yaml:"max_elapsed_time"`
}

// Endpoint returns the database URL, derived from host and port when unset.
func (d DatabaseConfig) Endpoint() string {
	if d.URL != "" {
		return d.URL
	}
	return "http://" + d.Host + ":" + d.Port
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Port        string        `mapstructure:"port" yaml:"port"`
	BodyLimit   int           `mapstructure:"body_limit" yaml:"body_limit"`
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
}

// ViewConfig bounds the paging parameters accepted from clients.
type ViewConfig struct {
	DefaultPageSize int `mapstructure:"default_page_size" yaml:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size" yaml:"max_page_size"`
}

// EngineConfig tunes the snapshot pass.
type EngineConfig struct {
	IndexShards int `mapstructure:"index_shards" yaml:"index_shards"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "vulnprio")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Database --
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "8529")
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "")
	v.SetDefault("database.url", "")
	v.SetDefault("database.name", "vulnmgt")
	v.SetDefault("database.initial_interval", "10s")
	v.SetDefault("database.max_interval", "2m")
	v.SetDefault("database.max_elapsed_time", "0s")

	// -- Server --
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.body_limit", 50*1024*1024)
	v.SetDefault("server.read_timeout", "60s")

	// -- View --
	v.SetDefault("view.default_page_size", 10)
	v.SetDefault("view.max_page_size", 100)

	// -- Engine --
	v.SetDefault("engine.index_shards", 1)
}

// bindEnv keeps the environment variable names the deployment already uses.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("VULNPRIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("database.host", "ARANGO_HOST")
	_ = v.BindEnv("database.port", "ARANGO_PORT")
	_ = v.BindEnv("database.user", "ARANGO_USER")
	_ = v.BindEnv("database.password", "ARANGO_PASS")
	_ = v.BindEnv("database.url", "ARANGO_URL")
	_ = v.BindEnv("server.port", "MS_PORT")
}

// NewDefaultConfig returns the configuration built from defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Load reads defaults, the optional config file at path and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	bindEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}
	return NewConfigFromViper(v)
}

// NewConfigFromViper unmarshals and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is a required configuration field")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is a required configuration field")
	}
	if c.View.DefaultPageSize <= 0 {
		return fmt.Errorf("view.default_page_size must be a positive integer")
	}
	if c.View.MaxPageSize < c.View.DefaultPageSize {
		return fmt.Errorf("view.max_page_size must not be smaller than view.default_page_size")
	}
	if c.Engine.IndexShards <= 0 {
		return fmt.Errorf("engine.index_shards must be a positive integer")
	}
	return nil
}
