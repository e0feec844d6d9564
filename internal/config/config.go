// Package config loads hub-server configuration from environment variables
// with an optional YAML file overlay.
package config

import (
	"fmt"
	"os"
	"strconv"

	yaml "gopkg.in/yaml.v2"
)

// Config holds all configuration for the hub server.
type Config struct {
	// HTTP server
	ListenAddr string `yaml:"listen_addr"`

	// Durable store backend: "file" or "redis"
	StoreBackend string `yaml:"store_backend"`
	StatePath    string `yaml:"state_path"`

	// Redis settings, used when StoreBackend is "redis"
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// Load builds configuration from defaults, an optional YAML file named by
// HUB_CONFIG_FILE, then environment variable overrides in that order.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:   ":8085",
		StoreBackend: "file",
		StatePath:    "hub-state.json",
		RedisAddr:    "localhost:6379",
		LogLevel:     "info",
	}

	if path := os.Getenv("HUB_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.ListenAddr = getEnv("HUB_LISTEN_ADDR", cfg.ListenAddr)
	cfg.StoreBackend = getEnv("HUB_STORE_BACKEND", cfg.StoreBackend)
	cfg.StatePath = getEnv("HUB_STATE_PATH", cfg.StatePath)
	cfg.RedisAddr = getEnv("HUB_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("HUB_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("HUB_REDIS_DB", cfg.RedisDB)
	cfg.LogLevel = getEnv("HUB_LOG_LEVEL", cfg.LogLevel)

	if cfg.StoreBackend != "file" && cfg.StoreBackend != "redis" {
		return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
