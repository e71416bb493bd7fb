// Package oauth implements the OAuth2 token exchange protocol used by authz.
//
// It holds the types every other package shares:
//
//   - Session: the durable per-account record (tokens, pending code, expiry)
//   - Config: endpoint and client settings of one authorization module
//   - Client: builds authorization_code / refresh_token requests, posts them
//     and applies the response to a Session
//   - AuthorizationError, HTTPError, TransportError, ConfigurationError: the
//     error taxonomy callers match with errors.As
//   - BuildAuthorizationURL / NewState: inputs for an authorization-code acquirer
//   - Provider presets for Google, Keycloak and Facebook
//
// # Token responses
//
// Successful responses are parsed as a JSON object first. When the body is
// not a JSON object the parser falls back to the legacy form-encoded format
// (access_token=...&expires_in=...). In both cases access_token is required,
// expires_in (seconds) sets Session.ExpiresOn, and refresh_token only
// overwrites the stored refresh token when it is non-empty.
//
// An HTTP 400 whose body is a JSON object with an "error" member becomes an
// *AuthorizationError classified by ErrorKind. Every other non-2xx status is
// returned as an *HTTPError.
//
// # Usage
//
//	cfg, err := oauth.NewConfig(oauth.Config{
//	    AccountID:           "keycloak",
//	    BaseURL:             "https://sso.example.com/auth",
//	    AccessTokenEndpoint: "realms/demo/protocol/openid-connect/token",
//	    RefreshEndpoint:     "realms/demo/protocol/openid-connect/token",
//	    ClientID:            "cli",
//	})
//
//	client := oauth.NewClient()
//	session := &oauth.Session{AccountID: cfg.AccountID, AuthorizationCode: code}
//	if err := client.ExchangeCode(ctx, cfg, session); err != nil {
//	    var authErr *oauth.AuthorizationError
//	    if errors.As(err, &authErr) && authErr.Kind == oauth.ErrorInvalidGrant {
//	        // the code was already used or expired
//	    }
//	}
package oauth
