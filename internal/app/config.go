package app

import (
	"io"
	"net/http"

	"authz/internal/authz"
	"authz/internal/config"
)

// Config holds the application configuration
type Config struct {
	// ConfigPath is the configuration directory. Empty means ~/.config/authz.
	ConfigPath string

	// LogLevel overrides the level from config.yaml when set.
	LogLevel string

	// Silent discards all log output.
	Silent bool

	// Out receives user-facing messages such as the authorization URL.
	Out io.Writer

	// Settings skips loading config.yaml when pre-populated.
	Settings *config.Config

	// Acquirer replaces the loopback acquirer.
	Acquirer authz.Acquirer

	// HTTPClient is used for token exchanges.
	HTTPClient *http.Client
}

// NewConfig creates a new application configuration
func NewConfig(configPath, logLevel string) *Config {
	return &Config{
		ConfigPath: configPath,
		LogLevel:   logLevel,
	}
}
