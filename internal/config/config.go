// Package config provides configuration management for the key-value store.
// It loads settings from YAML files and environment variables, with
// thread-safe singleton access.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/arjunvostrikov/barrelkv/internal/engine"
)

// Config holds all application configuration values.
type Config struct {
	DATA_DIR        string `yaml:"DATA_DIR"`        // Directory where the store's files live
	MAX_FILE_SIZE   int64  `yaml:"MAX_FILE_SIZE"`   // Active file rotates at/above this size, in bytes
	READ_WRITE      bool   `yaml:"READ_WRITE"`      // Whether the engine is opened for writes
	SYNC_ON_PUT     bool   `yaml:"SYNC_ON_PUT"`     // Whether every Put fsyncs the active file
	KEYDIR_CAPACITY int    `yaml:"KEYDIR_CAPACITY"` // Initial KeyDir capacity; must be a power of two
	LOG_LEVEL       string `yaml:"LOG_LEVEL"`       // slog level name: debug, info, warn, error
}

// Options converts the loaded configuration into an engine.Options value,
// so callers depend only on the engine's configuration surface rather than
// the YAML shape.
func (c *Config) Options() engine.Options {
	return engine.Options{
		ReadWrite:      c.READ_WRITE,
		SyncOnPut:      c.SYNC_ON_PUT,
		MaxFileSize:    c.MAX_FILE_SIZE,
		KeydirCapacity: c.KEYDIR_CAPACITY,
	}
}

// SlogLevel parses LOG_LEVEL into a slog.Level, defaulting to Info for an
// empty or unrecognized value.
func (c *Config) SlogLevel() slog.Level {
	switch c.LOG_LEVEL {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var (
	appConfig *Config
	once      sync.Once
	initErr   error
)

// LoadConfig reads configuration values from config.yml and optionally from
// a .env file. It uses a sync.Once to ensure configuration is loaded only
// once, even with concurrent calls. Environment variables in the YAML file
// are expanded using os.ExpandEnv. Returns the loaded configuration and any
// error encountered.
func LoadConfig() (*Config, error) {
	once.Do(func() {
		// Load .env file if it exists (optional - no error if missing)
		if err := godotenv.Load(); err != nil {
			slog.Debug("config: no .env file found or error loading it", "error", err)
		} else {
			slog.Debug("config: .env file loaded successfully")
		}

		file, err := os.ReadFile("internal/config/config.yml")
		if err != nil {
			initErr = fmt.Errorf("read config.yml: %w", err)
			return
		}

		var cfg Config
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(file))), &cfg); err != nil {
			initErr = fmt.Errorf("unmarshal config.yml: %w", err)
			return
		}
		appConfig = &cfg
	})
	if initErr != nil {
		return nil, initErr
	}
	return appConfig, nil
}

// GetConfig returns the singleton configuration instance.
// Panics if configuration has not been loaded yet. This function should
// only be called after LoadConfig has been successfully called.
func GetConfig() *Config {
	if appConfig == nil {
		panic("config not loaded - call LoadConfig() first")
	}
	return appConfig
}
