package authz

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"

	"authz/pkg/logging"
	"authz/pkg/oauth"
)

// AuthorizationFields are the values an outbound request needs to be
// authorized: headers to set and query parameters to add.
type AuthorizationFields struct {
	Headers map[string]string
	Params  map[string]string
}

// Module is the client facing API for one account. It keeps a cached copy of
// the account's session; state queries and GetAuthorizationFields read only
// that copy, while RequestAccess and RefreshAccess talk to the Service and
// refresh the copy afterwards.
//
// Module implements oauth2.TokenSource over the cached session.
type Module struct {
	cfg       *oauth.Config
	service   *Service
	acquirer  Acquirer
	alternate AlternateTokenSource
	worker    Executor

	mu      sync.RWMutex
	session *oauth.Session
}

var _ oauth2.TokenSource = (*Module)(nil)

// ModuleOption configures a Module.
type ModuleOption func(*Module)

// WithAcquirer sets the collaborator used to obtain an authorization code
// when the account has no session yet.
func WithAcquirer(a Acquirer) ModuleOption {
	return func(m *Module) {
		m.acquirer = a
	}
}

// WithAlternateTokenSource enables RequestAlternateAccess.
func WithAlternateTokenSource(src AlternateTokenSource) ModuleOption {
	return func(m *Module) {
		m.alternate = src
	}
}

// WithWorker sets the executor asynchronous requests run on. Defaults to Goroutine.
func WithWorker(exec Executor) ModuleOption {
	return func(m *Module) {
		if exec != nil {
			m.worker = exec
		}
	}
}

// NewModule validates cfg, keeps a private copy of it and loads the cached
// session of cfg.AccountID from the service's store.
func NewModule(ctx context.Context, cfg oauth.Config, service *Service, opts ...ModuleOption) (*Module, error) {
	validated, err := oauth.NewConfig(cfg)
	if err != nil {
		return nil, err
	}
	if service == nil {
		return nil, errors.New("authorization service is required")
	}

	m := &Module{
		cfg:     validated,
		service: service,
		worker:  Goroutine,
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := m.Reload(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// AccountID returns the account this module operates on.
func (m *Module) AccountID() string {
	return m.cfg.AccountID
}

// Config returns a copy of the module configuration.
func (m *Module) Config() oauth.Config {
	return *m.cfg.Clone()
}

// Session returns a copy of the cached session, or nil when there is none.
func (m *Module) Session() *oauth.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.Clone()
}

// State returns the derived lifecycle state of the cached session.
func (m *Module) State() oauth.SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.State(m.service.Now())
}

// Reload replaces the cached session with the stored record.
func (m *Module) Reload(ctx context.Context) error {
	session, err := m.service.GetAccount(ctx, m.cfg.AccountID)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return fmt.Errorf("failed to load session for account %s: %w", m.cfg.AccountID, err)
	}

	m.mu.Lock()
	m.session = session
	m.mu.Unlock()
	return nil
}

// HasCredentials reports whether the cached session holds an access token,
// expired or not.
func (m *Module) HasCredentials() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session != nil && m.session.AccessToken != ""
}

// IsAuthorized reports whether the cached session holds an unexpired access token.
func (m *Module) IsAuthorized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session != nil && m.session.AccessToken != "" && m.session.TokenIsNotExpired(m.service.Now())
}

// RequestAccess obtains an access token on the module's worker. Without a
// stored account the Acquirer is asked for an authorization code first,
// which is stored and exchanged immediately. Otherwise the service decides
// between the cached token, a refresh and a pending code exchange.
//
// On success the cached session is reloaded from the store.
func (m *Module) RequestAccess(ctx context.Context) *Operation {
	op := newOperation()
	m.worker.Execute(func() {
		token, err := m.requestAccess(ctx)
		if err != nil {
			logging.Warn("AuthzModule", "Access request for account %s failed: %v", m.cfg.AccountID, err)
		}
		op.complete(token, err)
	})
	return op
}

func (m *Module) requestAccess(ctx context.Context) (string, error) {
	hasAccount, err := m.service.HasAccount(ctx, m.cfg.AccountID)
	if err != nil {
		return "", err
	}

	if !hasAccount {
		if m.acquirer == nil {
			return "", ErrNoAcquirer
		}

		req := oauth.NewAuthorizationRequest(m.cfg, oauth.NewState())
		logging.Info("AuthzModule", "Requesting authorization code for account %s", m.cfg.AccountID)

		code, err := m.acquirer.AcquireCode(ctx, req)
		if err != nil {
			return "", err
		}

		session := &oauth.Session{
			AccountID:         m.cfg.AccountID,
			ClientID:          m.cfg.ClientID,
			AuthorizationCode: code,
		}
		if err := m.service.AddAccount(ctx, session); err != nil {
			return "", err
		}
	}

	token, err := m.service.FetchAccessToken(ctx, m.cfg.AccountID, m.cfg)
	if reloadErr := m.Reload(ctx); reloadErr != nil {
		logging.Warn("AuthzModule", "Failed to reload session for account %s: %v", m.cfg.AccountID, reloadErr)
	}
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// RequestAlternateAccess obtains a token from the alternate token source and
// stores it as the account's session. It fails with ErrAlternateUnavailable
// unless a source was configured and reports itself available.
func (m *Module) RequestAlternateAccess(ctx context.Context, selector string) *Operation {
	if m.alternate == nil || !m.alternate.Available() {
		return completedOperation("", ErrAlternateUnavailable)
	}

	op := newOperation()
	m.worker.Execute(func() {
		token, err := m.requestAlternateAccess(ctx, selector)
		op.complete(token, err)
	})
	return op
}

func (m *Module) requestAlternateAccess(ctx context.Context, selector string) (string, error) {
	tok, err := m.alternate.Token(ctx, selector)
	if err != nil {
		return "", err
	}
	if tok == nil || tok.AccessToken == "" {
		return "", ErrNoToken
	}

	session := &oauth.Session{
		AccountID:    m.cfg.AccountID,
		ClientID:     m.cfg.ClientID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		session.ExpiresOn = tok.Expiry.UnixMilli()
	}

	if err := m.service.AddAccount(ctx, session); err != nil {
		return "", err
	}
	if err := m.Reload(ctx); err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// RefreshAccess blocks until the module holds a usable token. It returns
// true when already authorized, false when there is no account at all, and
// otherwise the outcome of an exchange. Exchange errors are logged and
// reported as false.
func (m *Module) RefreshAccess(ctx context.Context) bool {
	hasAccount, err := m.service.HasAccount(ctx, m.cfg.AccountID)
	if err != nil {
		logging.Warn("AuthzModule", "Failed to look up account %s: %v", m.cfg.AccountID, err)
		return false
	}
	if !hasAccount {
		return false
	}
	if m.IsAuthorized() {
		return true
	}

	token, err := m.service.FetchAccessToken(ctx, m.cfg.AccountID, m.cfg)
	if reloadErr := m.Reload(ctx); reloadErr != nil {
		logging.Warn("AuthzModule", "Failed to reload session for account %s: %v", m.cfg.AccountID, reloadErr)
	}
	if err != nil {
		logging.Warn("AuthzModule", "Refresh for account %s failed: %v", m.cfg.AccountID, err)
		return false
	}
	return token != ""
}

// GetAuthorizationFields returns the bearer header for the cached access
// token. It never triggers an exchange, even when the token is stale; the
// caller reacts to a rejected request with HandleError. The request
// arguments are accepted for signing schemes and unused by bearer tokens.
func (m *Module) GetAuthorizationFields(requestURI, method string, body []byte) AuthorizationFields {
	fields := AuthorizationFields{
		Headers: map[string]string{},
		Params:  map[string]string{},
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session != nil && m.session.AccessToken != "" {
		fields.Headers["Authorization"] = "Bearer " + m.session.AccessToken
	}
	return fields
}

// Apply copies the authorization fields onto req.
func (m *Module) Apply(req *http.Request) {
	fields := m.GetAuthorizationFields(req.URL.RequestURI(), req.Method, nil)
	for k, v := range fields.Headers {
		req.Header.Set(k, v)
	}
	if len(fields.Params) > 0 {
		q := req.URL.Query()
		for k, v := range fields.Params {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}
}

// HandleError tells the caller whether a request rejected with status should
// be retried. For 401 and 403 that is the case when the module was authorized
// and RefreshAccess succeeds; every other status returns false.
func (m *Module) HandleError(ctx context.Context, status int) bool {
	if status != http.StatusUnauthorized && status != http.StatusForbidden {
		return false
	}
	return m.IsAuthorized() && m.RefreshAccess(ctx)
}

// DeleteAccount removes the account's session from the store.
func (m *Module) DeleteAccount(ctx context.Context) error {
	if err := m.service.RemoveAccount(ctx, m.cfg.AccountID); err != nil {
		return err
	}

	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()
	return nil
}

// Token returns the cached access token without contacting the server.
func (m *Module) Token() (*oauth2.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil || m.session.AccessToken == "" {
		return nil, ErrNoToken
	}
	return m.session.Token(), nil
}
