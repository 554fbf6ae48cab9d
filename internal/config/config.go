package config

import (
	"encoding/json"
	"fmt"

	"github.com/aryo/wabridge/pkg/connection"
)

// Config represents the main wabridge configuration. Everything is resolved
// once at process start; there is no runtime reconfiguration.
type Config struct {
	// Bootstrap selects and parameterizes the credential bootstrap flow.
	Bootstrap BootstrapConfig `json:"bootstrap" mapstructure:"bootstrap"`

	// Session tunes the connection manager.
	Session SessionConfig `json:"session" mapstructure:"session"`

	// Gateway configures the observer-facing push server.
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// AutoReply configures the automated reply stub.
	AutoReply AutoReplyConfig `json:"auto_reply" mapstructure:"auto_reply"`

	// Logging holds logging configuration.
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// DataDir holds the credential store, PID file and logs.
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// StorePath is the credential database path. Defaults to
	// DataDir/session.db.
	StorePath string `json:"store_path" mapstructure:"store_path"`
}

// BootstrapConfig selects between QR and phone pairing bootstrap.
type BootstrapConfig struct {
	Mode        string `json:"mode" mapstructure:"mode"` // qr, pairing
	PhoneNumber string `json:"phone_number" mapstructure:"phone_number"`

	// SettleDelaySeconds is the wait after session creation before a
	// pairing code is requested.
	SettleDelaySeconds int `json:"settle_delay_seconds" mapstructure:"settle_delay_seconds"`
	// MaxAttempts bounds pairing code requests per session.
	MaxAttempts int `json:"max_attempts" mapstructure:"max_attempts"`
	// RetryBackoffSeconds separates pairing attempts.
	RetryBackoffSeconds int `json:"retry_backoff_seconds" mapstructure:"retry_backoff_seconds"`

	// PrintQRInTerminal also renders QR payloads as terminal glyphs.
	PrintQRInTerminal bool `json:"print_qr_in_terminal" mapstructure:"print_qr_in_terminal"`
}

// SessionConfig tunes the reconnect policy.
type SessionConfig struct {
	// ReconnectBackoffSeconds separates session creation attempts. Must be
	// positive.
	ReconnectBackoffSeconds int `json:"reconnect_backoff_seconds" mapstructure:"reconnect_backoff_seconds"`
}

// GatewayConfig holds push gateway configuration.
type GatewayConfig struct {
	Port      int    `json:"port" mapstructure:"port"`
	Host      string `json:"host" mapstructure:"host"`
	AssetsDir string `json:"assets_dir" mapstructure:"assets_dir"`
}

// AutoReplyConfig holds the automated reply stub settings.
type AutoReplyConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	File   string `json:"file" mapstructure:"file"`
	Pretty bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	return &Config{
		Bootstrap: BootstrapConfig{
			Mode:                string(connection.ModeQR),
			SettleDelaySeconds:  6,
			MaxAttempts:         3,
			RetryBackoffSeconds: 5,
			PrintQRInTerminal:   true,
		},
		Session: SessionConfig{
			ReconnectBackoffSeconds: 2,
		},
		Gateway: GatewayConfig{
			Port:      3000,
			Host:      "0.0.0.0",
			AssetsDir: "public",
		},
		AutoReply: AutoReplyConfig{
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// String returns a JSON representation of the config.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	mode, err := connection.ParseMode(c.Bootstrap.Mode)
	if err != nil {
		return err
	}
	if mode == connection.ModePairing {
		if err := connection.ValidatePhoneNumber(c.Bootstrap.PhoneNumber); err != nil {
			return err
		}
	}

	if c.Session.ReconnectBackoffSeconds <= 0 {
		return fmt.Errorf("session reconnect backoff must be positive, got %d", c.Session.ReconnectBackoffSeconds)
	}

	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("invalid gateway port: %d", c.Gateway.Port)
	}

	return nil
}
