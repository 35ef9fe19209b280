package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	defaultListen           = "127.0.0.1:8090"
	defaultPollInterval     = 4 * time.Second
	defaultHandshakeTimeout = 3 * time.Minute
)

// Duration wraps time.Duration so config files can use "4s"/"3m" strings.
type Duration time.Duration

// Duration returns the wrapped time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler, accepting both "4s" strings and
// raw nanosecond numbers.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration value: %v", v)
	}
}

// Config represents the main configuration structure.
type Config struct {
	Listen  string `json:"listen" mapstructure:"listen"`
	DataDir string `json:"data_dir" mapstructure:"data-dir"`

	// Broker backend the bridge talks to for authorization and tool calls.
	BackendURL string `json:"backend_url" mapstructure:"backend-url"`

	// Origin accepted on completion messages. Derived from BackendURL when
	// empty.
	BackendOrigin string `json:"backend_origin,omitempty" mapstructure:"backend-origin"`

	// Linked automation-platform account this instance acts for.
	UserID string `json:"user_id" mapstructure:"user-id"`

	// EncryptionKey is the vault key: a literal value or a ${env:NAME} /
	// ${keyring:alias} secret reference.
	EncryptionKey string `json:"encryption_key" mapstructure:"encryption-key"`

	// Handshake tuning.
	PollInterval     Duration `json:"poll_interval,omitempty" mapstructure:"poll-interval"`
	HandshakeTimeout Duration `json:"handshake_timeout,omitempty" mapstructure:"handshake-timeout"`

	// Logging configuration.
	Logging *LogConfig `json:"logging,omitempty" mapstructure:"logging"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level         string `json:"level" mapstructure:"level"`
	EnableFile    bool   `json:"enable_file" mapstructure:"enable-file"`
	EnableConsole bool   `json:"enable_console" mapstructure:"enable-console"`
	Filename      string `json:"filename" mapstructure:"filename"`
	LogDir        string `json:"log_dir,omitempty" mapstructure:"log-dir"`
	MaxSize       int    `json:"max_size" mapstructure:"max-size"`       // MB
	MaxBackups    int    `json:"max_backups" mapstructure:"max-backups"` // number of backup files
	MaxAge        int    `json:"max_age" mapstructure:"max-age"`         // days
	Compress      bool   `json:"compress" mapstructure:"compress"`
	JSONFormat    bool   `json:"json_format" mapstructure:"json-format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:           defaultListen,
		PollInterval:     Duration(defaultPollInterval),
		HandshakeTimeout: Duration(defaultHandshakeTimeout),
		Logging: &LogConfig{
			Level:         "info",
			EnableFile:    false,
			EnableConsole: true,
			Filename:      "main.log",
			MaxSize:       10,
			MaxBackups:    5,
			MaxAge:        30,
			Compress:      true,
			JSONFormat:    false,
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("backend_url is required")
	}
	if _, err := url.ParseRequestURI(c.BackendURL); err != nil {
		return fmt.Errorf("invalid backend_url: %w", err)
	}
	if c.PollInterval.Duration() <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.HandshakeTimeout.Duration() <= c.PollInterval.Duration() {
		return fmt.Errorf("handshake_timeout must exceed poll_interval")
	}
	return nil
}

// ResolveBackendOrigin returns the origin completion messages must carry.
func (c *Config) ResolveBackendOrigin() (string, error) {
	raw := c.BackendOrigin
	if raw == "" {
		raw = c.BackendURL
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("cannot derive backend origin from %q", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

// NormalizeInstanceURL canonicalizes an n8n instance URL: the MCP endpoint
// suffix and any trailing slash are stripped so the same instance always maps
// to the same stored record.
func NormalizeInstanceURL(raw string) string {
	normalized := strings.TrimSpace(raw)
	if idx := strings.Index(normalized, "/mcp-server/"); idx >= 0 {
		normalized = normalized[:idx]
	}
	return strings.TrimRight(normalized, "/")
}
