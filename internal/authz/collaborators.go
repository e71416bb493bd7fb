package authz

import (
	"context"

	"golang.org/x/oauth2"

	"authz/pkg/oauth"
)

// Acquirer obtains an authorization code from the user, typically by sending
// them to req.AuthorizationURL and capturing the redirect to req.RedirectURL.
//
// AcquireCode returns exactly one of: the code, an *oauth.AuthorizationError
// carrying the error the server put on the redirect, or
// oauth.ErrDialogDismissed when the user gave up.
type Acquirer interface {
	AcquireCode(ctx context.Context, req oauth.AuthorizationRequest) (string, error)
}

// AlternateTokenSource hands out bearer tokens directly, bypassing the code
// exchange (a platform federated login, for instance). Callers must check
// Available before calling Token.
type AlternateTokenSource interface {
	Available() bool
	Token(ctx context.Context, selector string) (*oauth2.Token, error)
}
