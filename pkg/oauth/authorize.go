package oauth

import (
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// AuthorizationRequest is everything an authorization-code acquirer needs to
// send the user to the authorization server and recognise the redirect.
type AuthorizationRequest struct {
	// AuthorizationURL is the fully built consent URL.
	AuthorizationURL string

	// RedirectURL is the redirect_uri prefix the acquirer must capture.
	RedirectURL string

	// State is the anti-forgery value the redirect must echo back.
	State string

	Scopes           []string
	AdditionalParams []Param
}

// NewState returns a fresh anti-forgery state value.
func NewState() string {
	return uuid.NewString()
}

// NewAuthorizationRequest builds the request for cfg with the given state.
func NewAuthorizationRequest(cfg *Config, state string) AuthorizationRequest {
	return AuthorizationRequest{
		AuthorizationURL: BuildAuthorizationURL(cfg, state),
		RedirectURL:      cfg.RedirectURL,
		State:            state,
		Scopes:           append([]string(nil), cfg.Scopes...),
		AdditionalParams: append([]Param(nil), cfg.AdditionalAuthorizationParams...),
	}
}

// BuildAuthorizationURL returns
//
//	<base+authzEndpoint>?scope=..&redirect_uri=..&client_id=..&state=..&response_type=code[&extra...]
//
// Scopes are URL-encoded individually and joined with '+'.
func BuildAuthorizationURL(cfg *Config, state string) string {
	var b strings.Builder
	b.WriteString(cfg.AuthorizationEndpointURL())
	b.WriteString("?scope=")
	b.WriteString(FormatScopes(cfg.Scopes))
	b.WriteString("&redirect_uri=")
	b.WriteString(url.QueryEscape(cfg.RedirectURL))
	b.WriteString("&client_id=")
	b.WriteString(url.QueryEscape(cfg.ClientID))
	b.WriteString("&state=")
	b.WriteString(url.QueryEscape(state))
	b.WriteString("&response_type=code")
	for _, p := range cfg.AdditionalAuthorizationParams {
		b.WriteByte('&')
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}

// FormatScopes URL-encodes each scope and joins them with '+'.
func FormatScopes(scopes []string) string {
	encoded := make([]string, len(scopes))
	for i, scope := range scopes {
		encoded[i] = url.QueryEscape(scope)
	}
	return strings.Join(encoded, "+")
}
