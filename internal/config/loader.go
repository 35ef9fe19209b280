package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// DefaultDataDir is the directory under the user home used for the
	// database, index and default config file.
	DefaultDataDir = ".bridged"

	// ConfigFileName is the default config file name inside the data dir.
	ConfigFileName = "bridged_config.json"
)

// Load loads configuration from file, environment, and defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	setupViper()

	configPath := viper.GetString("config")
	if configPath != "" {
		if err := loadConfigFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	} else if _, path, err := findAndLoadConfigFile(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}

	// Override with viper (CLI flags and env vars).
	applyViperOverrides(cfg)

	if cfg.DataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(homeDir, DefaultDataDir)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", cfg.DataDir, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific file, skipping viper.
func LoadFromFile(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if err := loadConfigFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if cfg.DataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(homeDir, DefaultDataDir)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", cfg.DataDir, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViper configures viper with environment variable handling.
func setupViper() {
	viper.SetEnvPrefix("BRIDGED")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

// applyViperOverrides copies flag/env values into cfg where set.
func applyViperOverrides(cfg *Config) {
	if v := viper.GetString("listen"); v != "" {
		cfg.Listen = v
	}
	if v := viper.GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v := viper.GetString("backend-url"); v != "" {
		cfg.BackendURL = v
	}
	if v := viper.GetString("backend-origin"); v != "" {
		cfg.BackendOrigin = v
	}
	if v := viper.GetString("user-id"); v != "" {
		cfg.UserID = v
	}
	if v := viper.GetString("encryption-key"); v != "" {
		cfg.EncryptionKey = v
	}
	if v := viper.GetDuration("poll-interval"); v > 0 {
		cfg.PollInterval = Duration(v)
	}
	if v := viper.GetDuration("handshake-timeout"); v > 0 {
		cfg.HandshakeTimeout = Duration(v)
	}
	if v := viper.GetString("log-level"); v != "" && cfg.Logging != nil {
		cfg.Logging.Level = v
	}
}

// findAndLoadConfigFile looks for the config file in the default data dir.
func findAndLoadConfigFile(cfg *Config) (found bool, path string, err error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return false, "", nil
	}

	path = filepath.Join(homeDir, DefaultDataDir, ConfigFileName)
	if _, statErr := os.Stat(path); statErr != nil {
		return false, path, nil
	}

	return true, path, loadConfigFile(path, cfg)
}

// loadConfigFile reads a JSON config file into cfg.
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Save writes the configuration to the given path.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}
