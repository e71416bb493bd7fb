// Package acquirer obtains OAuth2 authorization codes from a user on the
// local machine: it opens the authorization URL in the system browser and
// captures the redirect on a loopback HTTP server.
package acquirer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"authz/pkg/logging"
	"authz/pkg/oauth"
)

// DefaultCallbackPort is used when neither Loopback.Port nor the redirect
// URL name a port.
const DefaultCallbackPort = 3000

// DefaultTimeout is how long AcquireCode waits for the user.
const DefaultTimeout = 10 * time.Minute

// Loopback implements authz.Acquirer with a callback server on 127.0.0.1.
//
// The server answers at the path of the request's redirect URL and listens
// on Port, or on the redirect URL's port when Port is 0. The redirect URL
// registered with the authorization server must therefore point at this
// machine, e.g. http://127.0.0.1:3000/callback.
type Loopback struct {
	// Port overrides the listening port.
	Port int

	// OpenBrowser opens the authorization URL. Defaults to OpenBrowser.
	OpenBrowser func(url string) error

	// Out receives the authorization URL so the user can open it by hand.
	// Nothing is printed when nil.
	Out io.Writer

	// Timeout bounds the wait for the redirect. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// AcquireCode sends the user to req.AuthorizationURL and waits for the
// redirect. It returns the code, an *oauth.AuthorizationError when the
// redirect carries an error, or oauth.ErrDialogDismissed when ctx ends or
// the timeout expires first.
func (l *Loopback) AcquireCode(ctx context.Context, req oauth.AuthorizationRequest) (string, error) {
	path, port, err := l.listenAddress(req.RedirectURL)
	if err != nil {
		return "", err
	}

	server := newCallbackServer(path, req.State)
	if err := server.start(port); err != nil {
		return "", err
	}
	defer server.stop()

	if l.Out != nil {
		fmt.Fprintf(l.Out, "Open the following URL to authorize:\n\n  %s\n\n", req.AuthorizationURL)
	}

	open := l.OpenBrowser
	if open == nil {
		open = OpenBrowser
	}
	if err := open(req.AuthorizationURL); err != nil {
		logging.Warn("Acquirer", "Could not open browser: %v", err)
	}

	timeout := l.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := server.wait(waitCtx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			logging.Info("Acquirer", "Authorization abandoned: %v", err)
			return "", oauth.ErrDialogDismissed
		}
		return "", fmt.Errorf("callback server failed: %w", err)
	}

	if result.Error != "" {
		logging.Info("Acquirer", "Authorization server redirected with error %s", result.Error)
		return "", oauth.NewAuthorizationError(result.Error)
	}
	return result.Code, nil
}

func (l *Loopback) listenAddress(redirectURL string) (string, int, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return "", 0, &oauth.ConfigurationError{Field: "redirectURL", Message: "is not a valid URL: " + err.Error()}
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	port := l.Port
	if port == 0 && u.Port() != "" {
		port, err = strconv.Atoi(u.Port())
		if err != nil {
			return "", 0, &oauth.ConfigurationError{Field: "redirectURL", Message: "has an invalid port"}
		}
	}
	if port == 0 {
		port = DefaultCallbackPort
	}
	return path, port, nil
}
