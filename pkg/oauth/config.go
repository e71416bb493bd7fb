package oauth

import (
	"net/url"
	"strings"
)

// Param is a single key/value pair appended verbatim (URL-encoded) to a request.
type Param struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Config holds the endpoint and client settings of one authorization module.
//
// Relative endpoints are resolved against BaseURL. A Config is validated once
// with Validate (or NewConfig) and must not be mutated afterwards; modules keep
// their own copy.
type Config struct {
	// BaseURL is the URL every relative endpoint is appended to.
	BaseURL string `json:"baseURL" yaml:"baseURL"`

	// AuthzEndpoint is where the user grants consent and an authorization code is issued.
	AuthzEndpoint string `json:"authzEndpoint" yaml:"authzEndpoint"`

	// AccessTokenEndpoint receives authorization code exchanges.
	AccessTokenEndpoint string `json:"accessTokenEndpoint" yaml:"accessTokenEndpoint"`

	// RefreshEndpoint receives refresh token exchanges.
	RefreshEndpoint string `json:"refreshEndpoint" yaml:"refreshEndpoint"`

	// RedirectURL is the redirect_uri registered with the authorization server.
	RedirectURL string `json:"redirectURL" yaml:"redirectURL"`

	ClientID string `json:"clientId" yaml:"clientId"`

	// ClientSecret is optional. When empty, client_secret is omitted from requests.
	ClientSecret string `json:"clientSecret,omitempty" yaml:"clientSecret,omitempty"`

	Scopes []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`

	AdditionalAuthorizationParams []Param `json:"additionalAuthorizationParams,omitempty" yaml:"additionalAuthorizationParams,omitempty"`
	AdditionalAccessParams        []Param `json:"additionalAccessParams,omitempty" yaml:"additionalAccessParams,omitempty"`

	// AccountID is the session key the module built from this config operates on.
	AccountID string `json:"accountId" yaml:"accountId"`
}

// NewConfig returns a validated, normalized copy of cfg.
func NewConfig(cfg Config) (*Config, error) {
	c := cfg.Clone()
	c.AdditionalAuthorizationParams = dedupParams(c.AdditionalAuthorizationParams)
	c.AdditionalAccessParams = dedupParams(c.AdditionalAccessParams)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the settings needed before any exchange can run.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return &ConfigurationError{Field: "baseURL", Message: "is required"}
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return &ConfigurationError{Field: "baseURL", Message: "is not a valid URL: " + err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ConfigurationError{Field: "baseURL", Message: "must use http or https"}
	}
	if strings.TrimSpace(c.AccountID) == "" {
		return &ConfigurationError{Field: "accountId", Message: "is required"}
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c Config) Clone() *Config {
	out := c
	out.Scopes = append([]string(nil), c.Scopes...)
	out.AdditionalAuthorizationParams = append([]Param(nil), c.AdditionalAuthorizationParams...)
	out.AdditionalAccessParams = append([]Param(nil), c.AdditionalAccessParams...)
	return &out
}

// AuthorizationEndpointURL returns the resolved authorization endpoint.
func (c *Config) AuthorizationEndpointURL() string {
	return JoinURL(c.BaseURL, c.AuthzEndpoint)
}

// AccessTokenURL returns the resolved endpoint for authorization code exchanges.
func (c *Config) AccessTokenURL() string {
	return JoinURL(c.BaseURL, c.AccessTokenEndpoint)
}

// RefreshURL returns the resolved endpoint for refresh token exchanges.
func (c *Config) RefreshURL() string {
	return JoinURL(c.BaseURL, c.RefreshEndpoint)
}

// JoinURL appends endpoint to base with exactly one slash between them.
// Absolute endpoint URLs are returned unchanged.
func JoinURL(base, endpoint string) string {
	if endpoint == "" {
		return base
	}
	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" && u.Host != "" {
		return endpoint
	}
	switch {
	case strings.HasSuffix(base, "/") && strings.HasPrefix(endpoint, "/"):
		return base + endpoint[1:]
	case strings.HasSuffix(base, "/") || strings.HasPrefix(endpoint, "/"):
		return base + endpoint
	default:
		return base + "/" + endpoint
	}
}

// dedupParams removes repeated (key, value) pairs, keeping first occurrence order.
func dedupParams(params []Param) []Param {
	if len(params) == 0 {
		return nil
	}
	seen := make(map[Param]struct{}, len(params))
	out := make([]Param, 0, len(params))
	for _, p := range params {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
