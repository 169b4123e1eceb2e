// Package config provides configuration management for the glaze server
// using Viper, loading from .glaze.yml, GLAZE_-prefixed environment
// variables, and command-line flags bound by the CLI layer.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Paths       PathsConfig       `yaml:"paths" mapstructure:"paths"`
	Pool        PoolConfig        `yaml:"pool" mapstructure:"pool"`
	Watch       WatchConfig       `yaml:"watch" mapstructure:"watch"`
	Database    DatabaseConfig    `yaml:"database" mapstructure:"database"`
	Development DevelopmentConfig `yaml:"development" mapstructure:"development"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

type ServerConfig struct {
	Host           string        `yaml:"host" mapstructure:"host"`
	Port           int           `yaml:"port" mapstructure:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
}

type PathsConfig struct {
	Components string `yaml:"components" mapstructure:"components"`
	Pages      string `yaml:"pages" mapstructure:"pages"`
}

type PoolConfig struct {
	Workers        int           `yaml:"workers" mapstructure:"workers"`
	Dispatch       string        `yaml:"dispatch" mapstructure:"dispatch"`
	QueueDepth     int           `yaml:"queue_depth" mapstructure:"queue_depth"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout" mapstructure:"acquire_timeout"`
	Retries        int           `yaml:"retries" mapstructure:"retries"`
	Backoff        time.Duration `yaml:"backoff" mapstructure:"backoff"`
}

type WatchConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
}

type DatabaseConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

type DevelopmentConfig struct {
	HotReload    bool `yaml:"hot_reload" mapstructure:"hot_reload"`
	ErrorOverlay bool `yaml:"error_overlay" mapstructure:"error_overlay"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SetDefaults installs the default values on a viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 10*time.Second)
	v.SetDefault("paths.components", "./components")
	v.SetDefault("paths.pages", "./pages")
	v.SetDefault("pool.workers", 4)
	v.SetDefault("pool.dispatch", "round_robin")
	v.SetDefault("pool.queue_depth", 1)
	v.SetDefault("pool.acquire_timeout", 250*time.Millisecond)
	v.SetDefault("pool.retries", 3)
	v.SetDefault("pool.backoff", 50*time.Millisecond)
	v.SetDefault("watch.enabled", true)
	v.SetDefault("watch.debounce", 100*time.Millisecond)
	v.SetDefault("development.hot_reload", true)
	v.SetDefault("development.error_overlay", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load unmarshals the effective configuration from the given viper
// instance and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Paths.Components == "" {
		return fmt.Errorf("paths.components must not be empty")
	}
	if c.Paths.Pages == "" {
		return fmt.Errorf("paths.pages must not be empty")
	}
	if c.Pool.Workers < 1 {
		return fmt.Errorf("pool.workers must be at least 1")
	}
	switch c.Pool.Dispatch {
	case "round_robin", "least_busy":
	default:
		return fmt.Errorf("pool.dispatch %q unknown (round_robin, least_busy)", c.Pool.Dispatch)
	}
	if c.Watch.Debounce <= 0 {
		return fmt.Errorf("watch.debounce must be positive")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q unknown (text, json)", c.Log.Format)
	}
	return nil
}

// Addr returns the host:port the server binds.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
