package oauth

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDialogDismissed is reported when the user abandons the authorization-code UI.
// It is not an OAuth2 error and is never classified into an ErrorKind.
var ErrDialogDismissed = errors.New("dialog_dismissed")

// ErrorKind classifies the OAuth2 "error" value returned by a token endpoint.
type ErrorKind string

const (
	ErrorInvalidRequest       ErrorKind = "invalid_request"
	ErrorInvalidClient        ErrorKind = "invalid_client"
	ErrorInvalidGrant         ErrorKind = "invalid_grant"
	ErrorUnauthorizedClient   ErrorKind = "unauthorized_client"
	ErrorUnsupportedGrantType ErrorKind = "unsupported_grant_type"
	ErrorInvalidScope         ErrorKind = "invalid_scope"
	ErrorOther                ErrorKind = "other"
)

var knownErrorKinds = []ErrorKind{
	ErrorInvalidRequest,
	ErrorInvalidClient,
	ErrorInvalidGrant,
	ErrorUnauthorizedClient,
	ErrorUnsupportedGrantType,
	ErrorInvalidScope,
}

// ClassifyError maps a raw error string to its kind by case-insensitive exact match.
func ClassifyError(raw string) ErrorKind {
	for _, kind := range knownErrorKinds {
		if strings.EqualFold(string(kind), raw) {
			return kind
		}
	}
	return ErrorOther
}

// AuthorizationError is an OAuth2 error reported by the authorization server,
// or a token response that could not be parsed.
type AuthorizationError struct {
	// Raw is the server's error string, or the raw body when parsing failed.
	Raw string
	// Kind is the classification of Raw.
	Kind ErrorKind
	// Err is the underlying cause, a *ResponseParseError for unparseable bodies.
	Err error
}

// NewAuthorizationError creates an AuthorizationError and classifies raw.
func NewAuthorizationError(raw string) *AuthorizationError {
	return &AuthorizationError{Raw: raw, Kind: ClassifyError(raw)}
}

// Error implements the error interface.
func (e *AuthorizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authorization error: %s: %v", e.Raw, e.Err)
	}
	return "authorization error: " + e.Raw
}

// Unwrap returns the underlying cause for error chain inspection.
func (e *AuthorizationError) Unwrap() error {
	return e.Err
}

// IsAuthorizationError reports whether err is an AuthorizationError of the given kind.
func IsAuthorizationError(err error, kind ErrorKind) bool {
	var authErr *AuthorizationError
	return errors.As(err, &authErr) && authErr.Kind == kind
}

// HTTPError is a non-2xx response that is not an OAuth2 error body.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("token request failed with status %d", e.StatusCode)
}

// TransportError is a connection level failure (dial, TLS, timeout).
type TransportError struct {
	// URL is the endpoint that could not be reached.
	URL string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("token request to %s failed: %v", e.URL, e.Err)
}

// Unwrap returns the underlying network error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ResponseParseError means a token response was neither a JSON object nor a
// form-encoded body carrying an access token.
type ResponseParseError struct {
	Reason string
}

// Error implements the error interface.
func (e *ResponseParseError) Error() string {
	return "unparseable token response: " + e.Reason
}

// ConfigurationError is raised synchronously when a configuration is unusable.
type ConfigurationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Message)
}
