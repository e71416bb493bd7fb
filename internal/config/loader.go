package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"authz/internal/sessionstore"
	"authz/pkg/logging"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/authz"
	configFileName = "config.yaml"
)

// envOverrides are applied on top of config.yaml. Unset variables leave the
// file value alone.
type envOverrides struct {
	LogLevel     string `env:"AUTHZ_LOG_LEVEL"`
	CallbackPort int    `env:"AUTHZ_CALLBACK_PORT"`
	StoreType    string `env:"AUTHZ_STORE_TYPE"`
	StorePath    string `env:"AUTHZ_STORE_PATH"`
}

func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}

	return filepath.Join(homeDir, userConfigDir)
}

// ConfigFilePath returns the location of config.yaml inside configPath.
func ConfigFilePath(configPath string) string {
	return filepath.Join(configPath, configFileName)
}

// LoadConfig loads config.yaml from configPath, applies AUTHZ_* environment
// overrides and validates the result. A missing file yields the defaults.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := ConfigFilePath(configPath)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
	case err != nil:
		logging.Info("ConfigLoader", "Error loading config.yaml from %s: %s", configFilePath, err)
		return Config{}, newConfigurationError(configFilePath, ErrorTypeIO, "cannot read configuration file", err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, newConfigurationError(configFilePath, ErrorTypeParse, "malformed YAML", err,
				"check the indentation and quoting of config.yaml")
		}
		logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	}

	if err := applyEnv(&config); err != nil {
		return Config{}, newConfigurationError(configFilePath, ErrorTypeEnv, "invalid environment override", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, newConfigurationError(configFilePath, ErrorTypeValidation, err.Error(), err)
	}
	return config, nil
}

func applyEnv(config *Config) error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if overrides.LogLevel != "" {
		config.LogLevel = overrides.LogLevel
	}
	if overrides.CallbackPort != 0 {
		config.CallbackPort = overrides.CallbackPort
	}
	if overrides.StoreType != "" {
		config.Store.Type = overrides.StoreType
	}
	if overrides.StorePath != "" {
		config.Store.Path = overrides.StorePath
	}
	return nil
}

// SaveConfig writes config to configPath/config.yaml. The file may hold
// client secrets, so it is only readable by the owner.
func SaveConfig(configPath string, config Config) error {
	configFilePath := ConfigFilePath(configPath)

	if err := config.Validate(); err != nil {
		return newConfigurationError(configFilePath, ErrorTypeValidation, err.Error(), err)
	}

	data, err := yaml.Marshal(&config)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.MkdirAll(configPath, 0700); err != nil {
		return newConfigurationError(configFilePath, ErrorTypeIO, "cannot create configuration directory", err)
	}
	if err := os.WriteFile(configFilePath, data, 0600); err != nil {
		return newConfigurationError(configFilePath, ErrorTypeIO, "cannot write configuration file", err)
	}

	logging.Info("ConfigLoader", "Saved configuration to %s", configFilePath)
	return nil
}

// Validate checks the store settings and every account.
func (c *Config) Validate() error {
	switch sessionstore.Kind(strings.ToLower(c.Store.Type)) {
	case sessionstore.KindMemory, sessionstore.KindFile, sessionstore.KindSQLite:
	default:
		return fmt.Errorf("store.type %q must be one of memory, file, sqlite", c.Store.Type)
	}

	if c.CallbackPort < 0 || c.CallbackPort > 65535 {
		return fmt.Errorf("callbackPort %d is out of range", c.CallbackPort)
	}

	seen := make(map[string]bool, len(c.Accounts))
	for i, a := range c.Accounts {
		if seen[a.AccountID] {
			return fmt.Errorf("accounts[%d]: duplicate accountId %q", i, a.AccountID)
		}
		seen[a.AccountID] = true

		if _, err := a.OAuthConfig(); err != nil {
			return fmt.Errorf("accounts[%d]: %w", i, err)
		}
	}
	return nil
}

// StoreLocation returns the path handed to the session store, resolving an
// empty or relative Store.Path against configPath.
func (c *Config) StoreLocation(configPath string) string {
	path := c.Store.Path
	if path == "" {
		switch sessionstore.Kind(strings.ToLower(c.Store.Type)) {
		case sessionstore.KindMemory:
			return ""
		case sessionstore.KindFile:
			path = defaultSessionDir
		default:
			path = defaultSQLiteFile
		}
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(configPath, path)
}
