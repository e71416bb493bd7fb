package config

import (
	"strings"

	"authz/pkg/oauth"
)

// Config is the top-level structure of config.yaml.
type Config struct {
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"logLevel,omitempty"`

	// CallbackPort overrides the port of the loopback callback server.
	// 0 uses the port of each account's redirect URL.
	CallbackPort int `yaml:"callbackPort,omitempty"`

	Store    StoreConfig     `yaml:"store"`
	Accounts []AccountConfig `yaml:"accounts,omitempty"`
}

// StoreConfig selects the session store backend.
type StoreConfig struct {
	// Type is memory, file or sqlite.
	Type string `yaml:"type"`

	// Path is the sessions directory (file) or database file (sqlite).
	// Relative paths resolve against the configuration directory.
	Path string `yaml:"path,omitempty"`
}

// AccountConfig describes one OAuth2 account. Provider names an optional
// preset whose endpoints are used wherever the inline fields are empty.
type AccountConfig struct {
	Provider string `yaml:"provider,omitempty"`
	Realm    string `yaml:"realm,omitempty"`

	oauth.Config `yaml:",inline"`
}

// OAuthConfig resolves the preset and returns the validated oauth.Config.
func (a AccountConfig) OAuthConfig() (*oauth.Config, error) {
	var cfg oauth.Config
	if err := oauth.ApplyPreset(&cfg, a.Provider, a.Realm); err != nil {
		return nil, err
	}

	cfg.AccountID = a.AccountID
	cfg.ClientID = a.ClientID
	cfg.ClientSecret = a.ClientSecret
	cfg.Scopes = a.Scopes
	cfg.AdditionalAuthorizationParams = a.AdditionalAuthorizationParams
	cfg.AdditionalAccessParams = a.AdditionalAccessParams
	override(&cfg.BaseURL, a.BaseURL)
	override(&cfg.AuthzEndpoint, a.AuthzEndpoint)
	override(&cfg.AccessTokenEndpoint, a.AccessTokenEndpoint)
	override(&cfg.RefreshEndpoint, a.RefreshEndpoint)
	override(&cfg.RedirectURL, a.RedirectURL)

	return oauth.NewConfig(cfg)
}

func override(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

// Account returns the account with the given id.
func (c *Config) Account(accountID string) (AccountConfig, bool) {
	for _, a := range c.Accounts {
		if a.AccountID == accountID {
			return a, true
		}
	}
	return AccountConfig{}, false
}

// SetAccount adds the account, replacing any account with the same id.
func (c *Config) SetAccount(account AccountConfig) {
	for i, a := range c.Accounts {
		if a.AccountID == account.AccountID {
			c.Accounts[i] = account
			return
		}
	}
	c.Accounts = append(c.Accounts, account)
}

// RemoveAccount removes the account and reports whether it existed.
func (c *Config) RemoveAccount(accountID string) bool {
	for i, a := range c.Accounts {
		if a.AccountID == accountID {
			c.Accounts = append(c.Accounts[:i], c.Accounts[i+1:]...)
			return true
		}
	}
	return false
}
