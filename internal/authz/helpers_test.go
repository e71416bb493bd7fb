package authz

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"authz/internal/sessionstore"
	"authz/pkg/oauth"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// authServer is a fake authorization server answering every token request
// with the configured status and body.
type authServer struct {
	*httptest.Server

	calls atomic.Int32

	mu     sync.Mutex
	status int
	body   string
	forms  []url.Values
	gate   chan struct{}
}

func newAuthServer(t *testing.T, status int, body string) *authServer {
	t.Helper()
	as := &authServer{status: status, body: body}
	as.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		as.calls.Add(1)
		raw, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(raw))

		as.mu.Lock()
		as.forms = append(as.forms, form)
		status, body, gate := as.status, as.body, as.gate
		as.mu.Unlock()

		if gate != nil {
			<-gate
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(as.Close)
	return as
}

func (as *authServer) respond(status int, body string) {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.status, as.body = status, body
}

func (as *authServer) lastForm(t *testing.T) url.Values {
	t.Helper()
	as.mu.Lock()
	defer as.mu.Unlock()
	require.NotEmpty(t, as.forms)
	return as.forms[len(as.forms)-1]
}

func (as *authServer) config(accountID string) oauth.Config {
	return oauth.Config{
		AccountID:           accountID,
		BaseURL:             as.URL,
		AuthzEndpoint:       "authorize",
		AccessTokenEndpoint: "token",
		RefreshEndpoint:     "refresh",
		RedirectURL:         "http://127.0.0.1:3000/callback",
		ClientID:            "client-1",
		Scopes:              []string{"openid"},
	}
}

type testEnv struct {
	store   *sessionstore.MemoryStore
	clock   *fakeClock
	metrics *Metrics
	service *Service
	server  *authServer
}

func newTestEnv(t *testing.T, status int, body string) *testEnv {
	t.Helper()
	env := &testEnv{
		store:   sessionstore.NewMemoryStore(),
		clock:   newFakeClock(),
		metrics: NewMetrics(prometheus.NewRegistry()),
		server:  newAuthServer(t, status, body),
	}
	env.service = NewService(env.store,
		WithClock(env.clock.Now),
		WithMetrics(env.metrics),
		WithHTTPClient(env.server.Client()),
	)
	return env
}

func (env *testEnv) seed(t *testing.T, session *oauth.Session) {
	t.Helper()
	require.NoError(t, env.store.Save(context.Background(), session))
}

func (env *testEnv) stored(t *testing.T, accountID string) *oauth.Session {
	t.Helper()
	session, err := env.store.Read(context.Background(), accountID)
	require.NoError(t, err)
	return session
}

func (env *testEnv) cfg(t *testing.T, accountID string) *oauth.Config {
	t.Helper()
	cfg, err := oauth.NewConfig(env.server.config(accountID))
	require.NoError(t, err)
	return cfg
}

func (env *testEnv) nowMillis() int64 {
	return env.clock.Now().UnixMilli()
}

// fakeAcquirer returns a fixed code or error and records the request it got.
type fakeAcquirer struct {
	mu    sync.Mutex
	code  string
	err   error
	calls int
	last  oauth.AuthorizationRequest
}

func (a *fakeAcquirer) AcquireCode(_ context.Context, req oauth.AuthorizationRequest) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.last = req
	return a.code, a.err
}
