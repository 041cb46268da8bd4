package config

import (
	"log/slog"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime settings. Values come from an optional
// configs/config.yaml, overridden by environment variables, with
// defaults so the binary runs bare.
type Config struct {
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`

	SQLite struct {
		Path          string `mapstructure:"path"`
		MigrationsDir string `mapstructure:"migrations_dir"`
	} `mapstructure:"sqlite"`

	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Session struct {
		TTL time.Duration `mapstructure:"ttl"`
	} `mapstructure:"session"`
}

// Load reads configuration from file and environment.
func Load() *Config {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile("configs/config.yaml")

	v.SetEnvPrefix("KITPACK")
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("sqlite.path", "kitpack.db")
	v.SetDefault("sqlite.migrations_dir", "")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("session.ttl", 12*time.Hour)

	// Config file is optional.
	if err := v.ReadInConfig(); err != nil {
		slog.Info("no config file, using defaults and environment", slog.Any("err", err))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("unmarshal config failed, using defaults", slog.Any("err", err))
	}
	return &cfg
}
