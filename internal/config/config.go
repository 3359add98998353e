// Package config loads cardsync settings from .cardsync.{toml,yaml},
// CARDSYNC_* environment variables and command-line flags.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. CARDSYNC_DB_PATH.
const EnvPrefix = "CARDSYNC"

// DashboardConfig holds settings for the HTTP and WebSocket server.
type DashboardConfig struct {
	Port int `mapstructure:"port" toml:"port" yaml:"port"`
}

// LogConfig controls where log output goes.
type LogConfig struct {
	// File is the log file path. Empty logs to stderr only.
	File       string `mapstructure:"file" toml:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" toml:"max_age_days" yaml:"max_age_days"`
	Verbose    bool   `mapstructure:"verbose" toml:"verbose" yaml:"verbose"`
}

// Config holds all runtime configuration.
// Values are populated from the config file, CARDSYNC_* env vars, and CLI flags.
type Config struct {
	CardsDir      string          `mapstructure:"cards_dir" toml:"cards_dir" yaml:"cards_dir"`
	DBPath        string          `mapstructure:"db_path" toml:"db_path" yaml:"db_path"`
	AllowRawWhere bool            `mapstructure:"allow_raw_where" toml:"allow_raw_where" yaml:"allow_raw_where"`
	Dashboard     DashboardConfig `mapstructure:"dashboard" toml:"dashboard" yaml:"dashboard"`
	Log           LogConfig       `mapstructure:"log" toml:"log" yaml:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		CardsDir:      "./cards",
		DBPath:        filepath.Join(".cardsync", "index.db"),
		AllowRawWhere: true,
		Dashboard:     DashboardConfig{Port: 8080},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// SetDefaults registers the built-in defaults with v.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("cards_dir", d.CardsDir)
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("allow_raw_where", d.AllowRawWhere)
	v.SetDefault("dashboard.port", d.Dashboard.Port)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.verbose", d.Log.Verbose)
}

// Load reads configuration from the global viper instance, applying
// built-in defaults for any values not set by config file, environment,
// or flags.
func Load() (Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads configuration from v.
func LoadFrom(v *viper.Viper) (Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values that cannot be defaulted.
func (c Config) Validate() error {
	if c.CardsDir == "" {
		return fmt.Errorf("cards_dir cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path cannot be empty")
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port %d out of range", c.Dashboard.Port)
	}
	return nil
}

// Encode renders cfg as TOML.
func Encode(cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteDefault writes the default configuration as TOML to path. It
// refuses to overwrite an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	data, err := Encode(Default())
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
