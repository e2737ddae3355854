package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "tarottracker/libs/config"
)

// Config defines tracker service configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"TRACKER_HTTP_PORT"`
	} `yaml:"http"`
	Database struct {
		DSN string `yaml:"dsn" env:"TRACKER_POSTGRES_DSN"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr" env:"TRACKER_REDIS_ADDR"`
		Password string `yaml:"password" env:"TRACKER_REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"TRACKER_REDIS_DB"`
	} `yaml:"redis"`
	Auth struct {
		// Secret enables bearer-token auth on the tools API when non-empty.
		Secret string `yaml:"secret" env:"TRACKER_AUTH_SECRET"`
	} `yaml:"auth"`
	Cache struct {
		Namespace string `yaml:"namespace" env:"TRACKER_CACHE_NAMESPACE"`
	} `yaml:"cache"`
	Static struct {
		// Dir, when set, is served at the web root for the PWA assets.
		Dir string `yaml:"dir" env:"TRACKER_STATIC_DIR"`
	} `yaml:"static"`
	Notifier struct {
		Interval time.Duration `yaml:"interval" env:"TRACKER_NOTIFIER_INTERVAL"`
	} `yaml:"notifier"`
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Port = "8080"
	cfg.Redis.Addr = "localhost:6379"
	cfg.Cache.Namespace = "readingTracker"
	cfg.Notifier.Interval = time.Hour

	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, errors.New("config: database dsn required")
	}
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return nil, errors.New("config: redis addr required")
	}
	if cfg.Notifier.Interval <= 0 {
		cfg.Notifier.Interval = time.Hour
	}
	return cfg, nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}
