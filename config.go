package notekit

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Backend string       `toml:"backend"` // "badger" or "sqlite"
	Badger  BadgerConfig `toml:"badger"`
	SQLite  SQLiteConfig `toml:"sqlite"`
	Sync    SyncConfig   `toml:"sync"`
	Search  SearchConfig `toml:"search"`
}

// BadgerConfig contains key-value engine settings.
type BadgerConfig struct {
	Path     string `toml:"path"`
	InMemory bool   `toml:"in_memory"`
}

// SQLiteConfig contains relational engine settings.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// SyncConfig contains synchronizer settings.
type SyncConfig struct {
	RemoteURL           string `toml:"remote_url"`
	IntervalSeconds     int    `toml:"interval_seconds"`
	FetchTimeoutSeconds int    `toml:"fetch_timeout_seconds"`
	RetryAttempts       int    `toml:"retry_attempts"`
}

// Interval returns the sync interval as a duration.
func (c SyncConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// FetchTimeout returns the fetch timeout as a duration.
func (c SyncConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// SearchConfig contains search coordinator settings.
type SearchConfig struct {
	Limit        int `toml:"limit"`
	MinLocalHits int `toml:"min_local_hits"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// SaveConfig writes the configuration to the specified path as TOML,
// replacing any existing file.
func SaveConfig(path string, config *Config) error {
	data, err := toml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// CreateConfigFile creates a config file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
