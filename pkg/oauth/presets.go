package oauth

import (
	"fmt"
	"strings"
)

// Provider preset names accepted by ApplyPreset.
const (
	ProviderGoogle   = "google"
	ProviderKeycloak = "keycloak"
	ProviderFacebook = "facebook"
)

// GooglePreset fills in Google's OAuth2 endpoints.
func GooglePreset(cfg *Config) {
	cfg.BaseURL = "https://accounts.google.com"
	cfg.AuthzEndpoint = "o/oauth2/auth"
	cfg.RedirectURL = "http://localhost"
	cfg.AccessTokenEndpoint = "o/oauth2/token"
	cfg.RefreshEndpoint = "o/oauth2/token"
}

// KeycloakPreset fills in the endpoints of a Keycloak realm. BaseURL must be
// set by the caller to the Keycloak server URL.
func KeycloakPreset(cfg *Config, realm string) {
	cfg.AuthzEndpoint = fmt.Sprintf("realms/%s/tokens/login", realm)
	cfg.AccessTokenEndpoint = fmt.Sprintf("realms/%s/tokens/access/codes", realm)
	cfg.RedirectURL = "http://oauth2callback"
	cfg.RefreshEndpoint = fmt.Sprintf("realms/%s/tokens/refresh", realm)
}

// FacebookPreset fills in Facebook's endpoints. Its endpoints live on
// different hosts, so the base is only the scheme.
func FacebookPreset(cfg *Config) {
	cfg.BaseURL = "https://"
	cfg.AuthzEndpoint = "www.facebook.com/dialog/oauth"
	cfg.AccessTokenEndpoint = "graph.facebook.com/oauth/access_token"
	cfg.RedirectURL = "https://localhost/"
	cfg.RefreshEndpoint = "graph.facebook.com/oauth/access_token"
}

// ApplyPreset applies the named provider preset to cfg. An empty name is a no-op.
func ApplyPreset(cfg *Config, provider, realm string) error {
	switch strings.ToLower(provider) {
	case "":
		return nil
	case ProviderGoogle:
		GooglePreset(cfg)
	case ProviderKeycloak:
		if realm == "" {
			return &ConfigurationError{Field: "realm", Message: "is required for the keycloak provider"}
		}
		KeycloakPreset(cfg, realm)
	case ProviderFacebook:
		FacebookPreset(cfg)
	default:
		return &ConfigurationError{Field: "provider", Message: fmt.Sprintf("unknown provider %q", provider)}
	}
	return nil
}

// ConfigFromSettings builds a validated Config from a flat settings map using
// the keys accountId, base, authzEndpoint, accessTokenEndpoint,
// refreshTokenEndpoint, redirectURL, clientId, and optionally clientSecret and
// scopes (comma separated).
func ConfigFromSettings(settings map[string]string) (*Config, error) {
	for _, key := range []string{"accountId", "base", "authzEndpoint", "accessTokenEndpoint", "refreshTokenEndpoint", "redirectURL", "clientId"} {
		if _, ok := settings[key]; !ok {
			return nil, &ConfigurationError{Field: key, Message: "is required"}
		}
	}

	cfg := Config{
		AccountID:           settings["accountId"],
		BaseURL:             settings["base"],
		AuthzEndpoint:       settings["authzEndpoint"],
		AccessTokenEndpoint: settings["accessTokenEndpoint"],
		RefreshEndpoint:     settings["refreshTokenEndpoint"],
		RedirectURL:         settings["redirectURL"],
		ClientID:            settings["clientId"],
		ClientSecret:        settings["clientSecret"],
	}
	if scopes, ok := settings["scopes"]; ok && scopes != "" {
		cfg.Scopes = strings.Split(scopes, ",")
	}

	return NewConfig(cfg)
}
