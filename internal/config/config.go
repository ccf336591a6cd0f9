package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	DBPath   string `json:"db_path"`
	HTTPAddr string `json:"http_addr"`
	LogLevel string `json:"log_level"`
}

func Default() Config {
	return Config{HTTPAddr: ":8080", LogLevel: "info"}
}

func DefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "tasktrack", "config.json"), nil
}

// DefaultDBPath places tasks.db next to the config file.
func DefaultDBPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "tasks.db")
}

func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}

func Load(path string) (Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config.withEnv(), nil
		}
		return Config{}, err
	}

	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return config.withEnv(), nil
}

func Save(path string, cfg Config) error {
	if err := EnsureDir(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

// Environment variables override file values.
func (c Config) withEnv() Config {
	c.DBPath = getEnv("TASKTRACK_DB_PATH", c.DBPath)
	c.HTTPAddr = getEnv("TASKTRACK_HTTP_ADDR", c.HTTPAddr)
	c.LogLevel = getEnv("TASKTRACK_LOG_LEVEL", c.LogLevel)
	return c
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
