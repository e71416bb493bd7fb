package oauth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"authz/pkg/logging"
)

const (
	// DefaultHTTPTimeout is the default timeout for token endpoint requests.
	DefaultHTTPTimeout = 30 * time.Second

	// GrantTypeAuthorizationCode selects the authorization code exchange.
	GrantTypeAuthorizationCode = "authorization_code"

	// GrantTypeRefreshToken selects the refresh token exchange.
	GrantTypeRefreshToken = "refresh_token"

	// maxTokenResponseBytes bounds how much of a token response is read.
	maxTokenResponseBytes = 1 << 20
)

// Client runs the token exchange protocol against an authorization server.
// It builds the form-encoded requests, posts them and applies the parsed
// response to a Session. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	now        func() time.Time
}

// ClientOption configures the OAuth client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithClock sets the time source used to compute expiry timestamps.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient creates a new OAuth client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ExchangeCode exchanges the session's authorization code for tokens.
// On success the session holds the new tokens and its authorization code is cleared.
// The session is left untouched on failure.
func (c *Client) ExchangeCode(ctx context.Context, cfg *Config, session *Session) error {
	return c.doTokenRequest(ctx, GrantTypeAuthorizationCode, cfg.AccessTokenURL(), codeExchangeForm(cfg, session), session)
}

// Refresh obtains a new access token with the session's refresh token.
// The session is left untouched on failure.
func (c *Client) Refresh(ctx context.Context, cfg *Config, session *Session) error {
	return c.doTokenRequest(ctx, GrantTypeRefreshToken, cfg.RefreshURL(), refreshForm(cfg, session), session)
}

// doTokenRequest posts the form and applies the response to session.
func (c *Client) doTokenRequest(ctx context.Context, grantType, endpoint string, data form, session *Session) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return &TransportError{URL: endpoint, Err: fmt.Errorf("failed to read token response: %w", err)}
	}

	if resp.StatusCode == http.StatusBadRequest {
		if raw, ok := parseErrorBody(body); ok {
			logging.Debug("TokenExchange", "Authorization server rejected %s grant for account %s: %s",
				grantType, session.AccountID, raw)
			return NewAuthorizationError(raw)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logging.Debug("TokenExchange", "Token request for account %s failed with status %d",
			session.AccountID, resp.StatusCode)
		return &HTTPError{StatusCode: resp.StatusCode, Body: body}
	}

	parsed, err := parseTokenResponse(body)
	if err != nil {
		authErr := NewAuthorizationError(string(body))
		authErr.Err = err
		return authErr
	}

	parsed.apply(session, c.now())
	session.AuthorizationCode = ""

	logging.Debug("TokenExchange", "Completed %s grant for account %s (expiresOn=%d, refresh=%t)",
		grantType, session.AccountID, session.ExpiresOn, session.RefreshToken != "")
	return nil
}

// codeExchangeForm builds the authorization_code request body.
func codeExchangeForm(cfg *Config, session *Session) form {
	var f form
	f.add("code", session.AuthorizationCode)
	f.add("client_id", clientIDFor(cfg, session))
	if cfg.RedirectURL != "" {
		f.add("redirect_uri", cfg.RedirectURL)
	}
	f.add("grant_type", GrantTypeAuthorizationCode)
	if cfg.ClientSecret != "" {
		f.add("client_secret", cfg.ClientSecret)
	}
	f = append(f, cfg.AdditionalAccessParams...)
	return f
}

// refreshForm builds the refresh_token request body.
func refreshForm(cfg *Config, session *Session) form {
	var f form
	f.add("refresh_token", session.RefreshToken)
	f.add("grant_type", GrantTypeRefreshToken)
	f.add("client_id", clientIDFor(cfg, session))
	if cfg.ClientSecret != "" {
		f.add("client_secret", cfg.ClientSecret)
	}
	f = append(f, cfg.AdditionalAccessParams...)
	return f
}

// clientIDFor prefers the client id recorded on the session.
func clientIDFor(cfg *Config, session *Session) string {
	if session.ClientID != "" {
		return session.ClientID
	}
	return cfg.ClientID
}

// form is an ordered application/x-www-form-urlencoded body.
// url.Values cannot be used because it sorts keys on Encode.
type form []Param

func (f *form) add(key, value string) {
	*f = append(*f, Param{Key: key, Value: value})
}

// Get returns the first value for key.
func (f form) Get(key string) string {
	for _, p := range f {
		if p.Key == key {
			return p.Value
		}
	}
	return ""
}

// Encode renders the body, URL-encoding keys and values in insertion order.
func (f form) Encode() string {
	var b strings.Builder
	for i, p := range f {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}
