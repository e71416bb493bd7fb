package config

import "authz/internal/sessionstore"

const (
	DefaultLogLevel  = "info"
	DefaultStoreType = string(sessionstore.KindSQLite)

	defaultSQLiteFile = "sessions.db"
	defaultSessionDir = "sessions"
)

// GetDefaultConfig returns the configuration used when config.yaml is absent.
func GetDefaultConfig() Config {
	return Config{
		LogLevel: DefaultLogLevel,
		Store: StoreConfig{
			Type: DefaultStoreType,
		},
	}
}
