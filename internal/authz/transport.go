package authz

import (
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// Transport is an http.RoundTripper that authorizes requests with the
// module's bearer token.
//
// Before sending, an unauthorized module gets one RefreshAccess as a
// pre-flight check. A 401 or 403 response is passed to HandleError, and
// when it asks for a retry the request is sent once more, provided its body
// can be replayed.
type Transport struct {
	Module *Module

	// Base is the underlying RoundTripper. http.DefaultTransport when nil.
	Base http.RoundTripper
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if !t.Module.IsAuthorized() {
		t.Module.RefreshAccess(ctx)
	}

	rt := &oauth2.Transport{Source: t.Module, Base: t.base()}
	resp, err := rt.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
		return resp, nil
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return resp, nil
	}
	if !t.Module.HandleError(ctx, resp.StatusCode) {
		return resp, nil
	}

	retry := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return resp, nil
		}
		retry.Body = body
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	return rt.RoundTrip(retry)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// Client returns an *http.Client using this transport.
func (t *Transport) Client() *http.Client {
	return &http.Client{Transport: t}
}
