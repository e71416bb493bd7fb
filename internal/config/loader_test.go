package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"authz/pkg/oauth"
)

// Helper function to create a temporary config file
func createTempConfigFile(t *testing.T, dir string, content string) string {
	t.Helper()
	tempFilePath := filepath.Join(dir, configFileName)
	err := os.WriteFile(tempFilePath, []byte(content), 0600)
	require.NoError(t, err)
	return tempFilePath
}

func TestLoadConfig_DefaultOnly(t *testing.T) {
	tempDir := t.TempDir()

	config, err := LoadConfig(tempDir)
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), config)
}

func TestLoadConfig_FromFile(t *testing.T) {
	tempDir := t.TempDir()
	createTempConfigFile(t, tempDir, `
logLevel: debug
callbackPort: 8085
store:
  type: file
  path: /var/lib/authz
accounts:
  - accountId: work
    provider: keycloak
    realm: eng
    baseURL: https://sso.example.com/auth
    clientId: cli
    scopes: [openid, profile]
    additionalAuthorizationParams:
      - key: prompt
        value: consent
`)

	config, err := LoadConfig(tempDir)
	require.NoError(t, err)

	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, 8085, config.CallbackPort)
	assert.Equal(t, StoreConfig{Type: "file", Path: "/var/lib/authz"}, config.Store)
	require.Len(t, config.Accounts, 1)

	account := config.Accounts[0]
	assert.Equal(t, "work", account.AccountID)
	assert.Equal(t, "keycloak", account.Provider)
	assert.Equal(t, "eng", account.Realm)
	assert.Equal(t, []string{"openid", "profile"}, account.Scopes)
	assert.Equal(t, []oauth.Param{{Key: "prompt", Value: "consent"}}, account.AdditionalAuthorizationParams)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	tempDir := t.TempDir()
	createTempConfigFile(t, tempDir, "logLevel: debug\nstore:\n  type: file\n")

	t.Setenv("AUTHZ_LOG_LEVEL", "warn")
	t.Setenv("AUTHZ_STORE_TYPE", "memory")
	t.Setenv("AUTHZ_CALLBACK_PORT", "9000")

	config, err := LoadConfig(tempDir)
	require.NoError(t, err)
	assert.Equal(t, "warn", config.LogLevel)
	assert.Equal(t, "memory", config.Store.Type)
	assert.Equal(t, 9000, config.CallbackPort)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		env       map[string]string
		errorType string
	}{
		{
			name:      "malformed yaml",
			content:   "store: [unterminated",
			errorType: ErrorTypeParse,
		},
		{
			name:      "unknown store type",
			content:   "store:\n  type: redis\n",
			errorType: ErrorTypeValidation,
		},
		{
			name:      "invalid account",
			content:   "accounts:\n  - accountId: a\n    provider: keycloak\n",
			errorType: ErrorTypeValidation,
		},
		{
			name:      "duplicate account",
			content:   "accounts:\n  - accountId: a\n    provider: google\n  - accountId: a\n    provider: google\n",
			errorType: ErrorTypeValidation,
		},
		{
			name:      "bad env value",
			content:   "logLevel: info\n",
			env:       map[string]string{"AUTHZ_CALLBACK_PORT": "not-a-port"},
			errorType: ErrorTypeEnv,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()
			path := createTempConfigFile(t, tempDir, tt.content)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadConfig(tempDir)
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tt.errorType, cfgErr.ErrorType)
			assert.Equal(t, path, cfgErr.FilePath)
			assert.Contains(t, cfgErr.DetailedError(), tt.errorType)
		})
	}
}

func TestSaveConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested")

	config := GetDefaultConfig()
	config.SetAccount(AccountConfig{
		Provider: oauth.ProviderGoogle,
		Config: oauth.Config{
			AccountID:    "personal",
			ClientID:     "id",
			ClientSecret: "secret",
		},
	})
	require.NoError(t, SaveConfig(configPath, config))

	info, err := os.Stat(ConfigFilePath(configPath))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, config, loaded)
}

func TestSaveConfig_RejectsInvalid(t *testing.T) {
	configPath := t.TempDir()
	config := GetDefaultConfig()
	config.Store.Type = "nope"

	err := SaveConfig(configPath, config)
	assert.Error(t, err)
	_, statErr := os.Stat(ConfigFilePath(configPath))
	assert.True(t, os.IsNotExist(statErr))
}

func TestAccountConfig_OAuthConfig(t *testing.T) {
	t.Run("preset endpoints", func(t *testing.T) {
		cfg, err := AccountConfig{
			Provider: "Google",
			Config:   oauth.Config{AccountID: "a", ClientID: "id"},
		}.OAuthConfig()
		require.NoError(t, err)
		assert.Equal(t, "https://accounts.google.com/o/oauth2/auth", cfg.AuthorizationEndpointURL())
		assert.Equal(t, "id", cfg.ClientID)
	})

	t.Run("inline fields win over preset", func(t *testing.T) {
		cfg, err := AccountConfig{
			Provider: oauth.ProviderGoogle,
			Config: oauth.Config{
				AccountID:   "a",
				RedirectURL: "http://127.0.0.1:8085/cb",
			},
		}.OAuthConfig()
		require.NoError(t, err)
		assert.Equal(t, "http://127.0.0.1:8085/cb", cfg.RedirectURL)
	})

	t.Run("no preset", func(t *testing.T) {
		cfg, err := AccountConfig{
			Config: oauth.Config{
				AccountID:           "a",
				BaseURL:             "https://idp.example",
				AuthzEndpoint:       "authorize",
				AccessTokenEndpoint: "token",
				RefreshEndpoint:     "token",
			},
		}.OAuthConfig()
		require.NoError(t, err)
		assert.Equal(t, "https://idp.example/token", cfg.AccessTokenURL())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := AccountConfig{Provider: "myspace", Config: oauth.Config{AccountID: "a"}}.OAuthConfig()
		var cfgErr *oauth.ConfigurationError
		assert.True(t, errors.As(err, &cfgErr))
	})
}

func TestConfig_Accounts(t *testing.T) {
	var config Config
	config.SetAccount(AccountConfig{Config: oauth.Config{AccountID: "a", ClientID: "1"}})
	config.SetAccount(AccountConfig{Config: oauth.Config{AccountID: "b"}})
	config.SetAccount(AccountConfig{Config: oauth.Config{AccountID: "a", ClientID: "2"}})

	require.Len(t, config.Accounts, 2)
	a, ok := config.Account("a")
	require.True(t, ok)
	assert.Equal(t, "2", a.ClientID)

	assert.True(t, config.RemoveAccount("a"))
	assert.False(t, config.RemoveAccount("a"))
	_, ok = config.Account("a")
	assert.False(t, ok)
}

func TestConfig_StoreLocation(t *testing.T) {
	tests := []struct {
		store StoreConfig
		want  string
	}{
		{StoreConfig{Type: "sqlite"}, "/cfg/sessions.db"},
		{StoreConfig{Type: "file"}, "/cfg/sessions"},
		{StoreConfig{Type: "memory"}, ""},
		{StoreConfig{Type: "sqlite", Path: "db/s.db"}, "/cfg/db/s.db"},
		{StoreConfig{Type: "file", Path: "/abs/dir"}, "/abs/dir"},
	}

	for _, tt := range tests {
		config := Config{Store: tt.store}
		assert.Equal(t, tt.want, config.StoreLocation("/cfg"), "%+v", tt.store)
	}
}

func TestAccountConfig_YAMLIsFlat(t *testing.T) {
	data, err := yaml.Marshal(AccountConfig{
		Provider: "google",
		Config:   oauth.Config{AccountID: "a", ClientID: "id"},
	})
	require.NoError(t, err)
	assert.Contains(t, string(data), "accountId: a")
	assert.NotContains(t, string(data), "config:")
}
