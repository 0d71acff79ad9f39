// Package config loads server settings from the environment and an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreFile   = "file"
	StoreMemory = "memory"
)

// Config holds the settings of the server and CLI.
type Config struct {
	Port        int    `mapstructure:"port"`
	DatabaseURL string `mapstructure:"database_url"`
	Store       string `mapstructure:"store"`
	// DataDir is the document directory of the file store.
	DataDir string `mapstructure:"data_dir"`
	// Catalog is a CUE package directory of kinds. Empty selects the
	// built-in kinds.
	Catalog         string        `mapstructure:"catalog"`
	LogLevel        string        `mapstructure:"log_level"`
	LiveIdleTimeout time.Duration `mapstructure:"live_idle_timeout"`
	HistorySize     int           `mapstructure:"history_size"`
}

// envNames lists the variables bound to each key, in precedence order.
var envNames = map[string][]string{
	"port":              {"CANVAS_PORT", "PORT"},
	"database_url":      {"CANVAS_DATABASE_URL", "DATABASE_URL"},
	"store":             {"CANVAS_STORE"},
	"data_dir":          {"CANVAS_DATA_DIR"},
	"catalog":           {"CANVAS_CATALOG"},
	"log_level":         {"CANVAS_LOG_LEVEL", "LOG_LEVEL"},
	"live_idle_timeout": {"CANVAS_LIVE_IDLE_TIMEOUT"},
	"history_size":      {"CANVAS_HISTORY_SIZE"},
}

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("port", 8080)
	v.SetDefault("database_url", "file:canvas.db?_pragma=busy_timeout(5000)")
	v.SetDefault("store", StoreSQLite)
	v.SetDefault("data_dir", "documents")
	v.SetDefault("catalog", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("live_idle_timeout", "10m")
	v.SetDefault("history_size", 200)
	for key, names := range envNames {
		_ = v.BindEnv(append([]string{key}, names...)...)
	}
	return v
}

// Load reads settings from the environment. A file named by CANVAS_CONFIG
// is read first; environment variables override it.
func Load() (Config, error) {
	v := New()
	_ = v.BindEnv("config", "CANVAS_CONFIG")
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks that the settings are usable.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.Store {
	case StoreSQLite:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("sqlite store needs a database url"))
		}
	case StoreFile:
		if c.DataDir == "" {
			errs = append(errs, errors.New("file store needs a data dir"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	if c.LiveIdleTimeout < 0 {
		errs = append(errs, errors.New("live idle timeout must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Logger builds a production logger at the configured level, or a
// development logger at debug level.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("config: log level: %w", err)
	}
	if level == zapcore.DebugLevel {
		return zap.NewDevelopment()
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
