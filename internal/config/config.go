// Package config reads the binaries' settings from the environment, after an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ErrInvalid wraps every rejected setting.
var ErrInvalid = errors.New("config: invalid setting")

// Config is the complete application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Log      LogConfig
	Engine   EngineConfig
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Addr string
}

// DatabaseConfig holds the form-builder database connection. An empty URL
// disables stored-form endpoints.
type DatabaseConfig struct {
	URL string
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string // trace, debug, info, warn, error
	Format string // json, console
}

// EngineConfig holds evaluation settings.
type EngineConfig struct {
	MaxIterations int
	Parallelism   int // 0 means one worker per CPU
	// ValidationTypes is a YAML/JSON file of validation type overrides.
	ValidationTypes string
}

// Load reads .env files (missing ones are ignored) and then the environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv reads the configuration from the process environment only.
func FromEnv() (*Config, error) {
	maxIterations, err := getEnvIntOrDefault("FORMLOGIC_MAX_ITERATIONS", 10)
	if err != nil {
		return nil, err
	}
	parallelism, err := getEnvIntOrDefault("FORMLOGIC_PARALLELISM", 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:   ServerConfig{Addr: getEnvOrDefault("FORMLOGIC_ADDR", ":8080")},
		Database: DatabaseConfig{URL: os.Getenv("DATABASE_URL")},
		Log: LogConfig{
			Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "json")),
		},
		Engine: EngineConfig{
			MaxIterations:   maxIterations,
			Parallelism:     parallelism,
			ValidationTypes: os.Getenv("FORMLOGIC_VALIDATION_TYPES"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.Engine.MaxIterations < 1 {
		return fmt.Errorf("%w: FORMLOGIC_MAX_ITERATIONS must be at least 1, got %d", ErrInvalid, c.Engine.MaxIterations)
	}
	if c.Engine.Parallelism < 0 {
		return fmt.Errorf("%w: FORMLOGIC_PARALLELISM must not be negative, got %d", ErrInvalid, c.Engine.Parallelism)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: LOG_FORMAT must be json or console, got %q", ErrInvalid, c.Log.Format)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: FORMLOGIC_ADDR is empty", ErrInvalid)
	}
	return nil
}

func getEnvOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvIntOrDefault(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, key, v)
	}
	return n, nil
}
