package authz

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"authz/internal/sessionstore"
	"authz/pkg/logging"
	"authz/pkg/oauth"
)

// Service owns the session store and decides which token exchange to run
// for an account. One Service is shared by every Module of a process.
//
// Exchanges are serialized per account: concurrent FetchAccessToken calls
// for the same account share a single in-flight exchange, so a rotated
// refresh token is never raced by a second refresh using the old one.
type Service struct {
	store   sessionstore.Store
	client  *oauth.Client
	now     func() time.Time
	metrics *Metrics

	// fetchGroup deduplicates concurrent fetches per account id.
	fetchGroup singleflight.Group

	locksMu sync.Mutex
	locks   map[string]*accountLock
}

// accountLock is a per-account mutex. refs counts holders and waiters so the
// entry can be dropped once nobody references it.
type accountLock struct {
	mu   sync.Mutex
	refs int
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	httpClient *http.Client
	now        func() time.Time
	metrics    *Metrics
}

// WithHTTPClient sets the HTTP client used for token requests.
func WithHTTPClient(httpClient *http.Client) ServiceOption {
	return func(o *serviceOptions) {
		o.httpClient = httpClient
	}
}

// WithClock sets the time source for expiry checks and expiry computation.
func WithClock(now func() time.Time) ServiceOption {
	return func(o *serviceOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMetrics records exchange activity on m.
func WithMetrics(m *Metrics) ServiceOption {
	return func(o *serviceOptions) {
		o.metrics = m
	}
}

// NewService creates a Service on top of store.
func NewService(store sessionstore.Store, opts ...ServiceOption) *Service {
	o := serviceOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return &Service{
		store:   store,
		client:  oauth.NewClient(oauth.WithHTTPClient(o.httpClient), oauth.WithClock(o.now)),
		now:     o.now,
		metrics: o.metrics,
		locks:   make(map[string]*accountLock),
	}
}

// Now returns the current time of the service clock.
func (s *Service) Now() time.Time {
	return s.now()
}

// HasAccount reports whether a record exists for id and holds either an
// authorization code or an access token.
func (s *Service) HasAccount(ctx context.Context, id string) (bool, error) {
	session, err := s.store.Read(ctx, id)
	if err != nil {
		if errors.Is(err, sessionstore.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read account %s: %w", id, err)
	}
	return session.HasPendingExchange(), nil
}

// AddAccount stores session, replacing any prior record for its account id.
func (s *Service) AddAccount(ctx context.Context, session *oauth.Session) error {
	if session == nil || session.AccountID == "" {
		return errors.New("session with an account id is required")
	}

	unlock := s.lockAccount(session.AccountID)
	defer unlock()

	if err := s.store.Save(ctx, session); err != nil {
		return fmt.Errorf("failed to add account %s: %w", session.AccountID, err)
	}
	logging.Audit(logging.AuditEvent{Action: "account_added", Outcome: "success", AccountID: session.AccountID})
	return nil
}

// GetAccount returns a copy of the stored record or ErrAccountNotFound.
func (s *Service) GetAccount(ctx context.Context, id string) (*oauth.Session, error) {
	session, err := s.store.Read(ctx, id)
	if err != nil {
		if errors.Is(err, sessionstore.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to read account %s: %w", id, err)
	}
	return session, nil
}

// GetAccounts returns the ids of all stored records.
func (s *Service) GetAccounts(ctx context.Context) ([]string, error) {
	sessions, err := s.store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	ids := make([]string, 0, len(sessions))
	for _, session := range sessions {
		ids = append(ids, session.AccountID)
	}
	return ids, nil
}

// RemoveAccount deletes the record for id. Removing a missing account is a no-op.
func (s *Service) RemoveAccount(ctx context.Context, id string) error {
	unlock := s.lockAccount(id)
	defer unlock()

	if err := s.store.Remove(ctx, id); err != nil {
		return fmt.Errorf("failed to remove account %s: %w", id, err)
	}
	logging.Audit(logging.AuditEvent{Action: "account_removed", Outcome: "success", AccountID: id})
	return nil
}

// FetchAccessToken returns a usable access token for accountID, running an
// exchange against the server described by cfg when needed:
//
//  1. no record: "" without a network call
//  2. unexpired access token: the cached token without a network call
//  3. refresh token present: refresh exchange
//  4. authorization code present: code exchange
//  5. otherwise: ""
//
// Successful exchanges are persisted before returning. On failure the stored
// record is left unchanged and the error is returned, typically an
// *oauth.AuthorizationError, *oauth.HTTPError or *oauth.TransportError.
//
// Callers joining an exchange already in flight for the same account share
// its result, including its context.
func (s *Service) FetchAccessToken(ctx context.Context, accountID string, cfg *oauth.Config) (string, error) {
	session, err := s.store.Read(ctx, accountID)
	if err != nil {
		if errors.Is(err, sessionstore.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read account %s: %w", accountID, err)
	}

	if session.AccessToken != "" && session.TokenIsNotExpired(s.now()) {
		s.metrics.cacheHit()
		return session.AccessToken, nil
	}

	v, err, shared := s.fetchGroup.Do(accountID, func() (interface{}, error) {
		return s.exchange(ctx, accountID, cfg)
	})
	if shared {
		s.metrics.sharedFetch()
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// exchange runs under the account lock and re-reads the record first, since
// a previous exchange may have completed between the cache check and now.
func (s *Service) exchange(ctx context.Context, accountID string, cfg *oauth.Config) (string, error) {
	unlock := s.lockAccount(accountID)
	defer unlock()

	session, err := s.store.Read(ctx, accountID)
	if err != nil {
		if errors.Is(err, sessionstore.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read account %s: %w", accountID, err)
	}

	if session.AccessToken != "" && session.TokenIsNotExpired(s.now()) {
		s.metrics.cacheHit()
		return session.AccessToken, nil
	}

	var (
		grantType string
		target    string
		run       func(context.Context, *oauth.Config, *oauth.Session) error
	)
	switch {
	case session.RefreshToken != "":
		grantType, target, run = oauth.GrantTypeRefreshToken, cfg.RefreshURL(), s.client.Refresh
	case session.AuthorizationCode != "":
		grantType, target, run = oauth.GrantTypeAuthorizationCode, cfg.AccessTokenURL(), s.client.ExchangeCode
	default:
		logging.Debug("AuthzService", "Account %s has no credential to exchange", accountID)
		return "", nil
	}

	// The client mutates its argument; keep the stored record intact until the exchange succeeded.
	updated := session.Clone()
	started := time.Now()
	err = run(ctx, cfg, updated)
	s.metrics.observeExchange(grantType, started, err)

	if err != nil {
		logging.Audit(logging.AuditEvent{
			Action:    grantType + "_exchange",
			Outcome:   "failure",
			AccountID: accountID,
			Target:    target,
			Error:     err.Error(),
		})
		return "", err
	}

	if err := s.store.Save(ctx, updated); err != nil {
		return "", fmt.Errorf("failed to persist tokens for account %s: %w", accountID, err)
	}

	logging.Audit(logging.AuditEvent{
		Action:    grantType + "_exchange",
		Outcome:   "success",
		AccountID: accountID,
		Target:    target,
	})
	return updated.AccessToken, nil
}

// lockAccount acquires the lock for accountID and returns its release func.
func (s *Service) lockAccount(accountID string) func() {
	s.locksMu.Lock()
	lock, ok := s.locks[accountID]
	if !ok {
		lock = &accountLock{}
		s.locks[accountID] = lock
	}
	lock.refs++
	s.locksMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()

		s.locksMu.Lock()
		defer s.locksMu.Unlock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, accountID)
		}
	}
}
