package authz

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"authz/pkg/oauth"
)

func newTestModule(t *testing.T, env *testEnv, opts ...ModuleOption) *Module {
	t.Helper()
	opts = append([]ModuleOption{WithWorker(Inline)}, opts...)
	m, err := NewModule(context.Background(), env.server.config("acct"), env.service, opts...)
	require.NoError(t, err)
	return m
}

func TestNewModule(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, `{}`)

	t.Run("rejects invalid configuration", func(t *testing.T) {
		cfg := env.server.config("acct")
		cfg.BaseURL = ""
		_, err := NewModule(context.Background(), cfg, env.service)

		var cfgErr *oauth.ConfigurationError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "baseURL", cfgErr.Field)
	})

	t.Run("loads the stored session", func(t *testing.T) {
		env.seed(t, &oauth.Session{AccountID: "acct", AccessToken: "t1"})
		m := newTestModule(t, env)

		assert.Equal(t, "acct", m.AccountID())
		assert.True(t, m.IsAuthorized())
		assert.Equal(t, "t1", m.Session().AccessToken)
	})

	t.Run("keeps a private copy of the configuration", func(t *testing.T) {
		cfg := env.server.config("acct")
		m, err := NewModule(context.Background(), cfg, env.service)
		require.NoError(t, err)

		cfg.Scopes[0] = "mutated"
		assert.Equal(t, []string{"openid"}, m.Config().Scopes)
	})
}

func TestModule_RequestAccess(t *testing.T) {
	ctx := context.Background()

	t.Run("acquires a code for a new account", func(t *testing.T) {
		env := newTestEnv(t, http.StatusOK, `{"access_token":"t3","refresh_token":"r3","expires_in":60}`)
		acq := &fakeAcquirer{code: "c1"}
		m := newTestModule(t, env, WithAcquirer(acq))

		token, err := m.RequestAccess(ctx).Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, "t3", token)

		require.Equal(t, 1, acq.calls)
		assert.NotEmpty(t, acq.last.State)
		assert.Contains(t, acq.last.AuthorizationURL, "state="+acq.last.State)
		assert.True(t, strings.HasPrefix(acq.last.AuthorizationURL, env.server.URL+"/authorize?scope=openid"))
		assert.Equal(t, "http://127.0.0.1:3000/callback", acq.last.RedirectURL)

		assert.Equal(t, "c1", env.server.lastForm(t).Get("code"))
		assert.True(t, m.IsAuthorized())
		assert.Equal(t, oauth.StateHasTokens, m.State())
		assert.Empty(t, env.stored(t, "acct").AuthorizationCode)
		assert.Equal(t, "Bearer t3", m.GetAuthorizationFields("/", http.MethodGet, nil).Headers["Authorization"])
	})

	t.Run("skips acquisition for an existing account", func(t *testing.T) {
		env := newTestEnv(t, http.StatusOK, `{"access_token":"t2"}`)
		env.seed(t, &oauth.Session{AccountID: "acct", AccessToken: "t1", RefreshToken: "r1", ExpiresOn: env.nowMillis() - 1})
		acq := &fakeAcquirer{code: "unused"}
		m := newTestModule(t, env, WithAcquirer(acq))

		token, err := m.RequestAccess(ctx).Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, "t2", token)
		assert.Zero(t, acq.calls)
	})

	t.Run("dialog dismissed", func(t *testing.T) {
		env := newTestEnv(t, http.StatusOK, `{"access_token":"x"}`)
		m := newTestModule(t, env, WithAcquirer(&fakeAcquirer{err: oauth.ErrDialogDismissed}))

		_, err := m.RequestAccess(ctx).Wait(ctx)
		assert.ErrorIs(t, err, oauth.ErrDialogDismissed)
		assert.Zero(t, env.server.calls.Load())
		assert.Equal(t, oauth.StateNoSession, m.State())
	})

	t.Run("code exchange failure keeps the code pending", func(t *testing.T) {
		env := newTestEnv(t, http.StatusBadRequest, `{"error":"invalid_client"}`)
		m := newTestModule(t, env, WithAcquirer(&fakeAcquirer{code: "c1"}))

		_, err := m.RequestAccess(ctx).Wait(ctx)
		assert.True(t, oauth.IsAuthorizationError(err, oauth.ErrorInvalidClient))
		assert.Equal(t, oauth.StateCodePending, m.State())
		assert.Equal(t, "c1", env.stored(t, "acct").AuthorizationCode)
	})

	t.Run("no acquirer", func(t *testing.T) {
		env := newTestEnv(t, http.StatusOK, `{}`)
		m := newTestModule(t, env)

		_, err := m.RequestAccess(ctx).Wait(ctx)
		assert.ErrorIs(t, err, ErrNoAcquirer)
	})

	t.Run("runs on the worker", func(t *testing.T) {
		env := newTestEnv(t, http.StatusOK, `{}`)
		env.seed(t, &oauth.Session{AccountID: "acct", AccessToken: "t1"})

		var queued []func()
		worker := ExecutorFunc(func(fn func()) { queued = append(queued, fn) })
		m := newTestModule(t, env, WithWorker(worker))

		op := m.RequestAccess(ctx)
		select {
		case <-op.Done():
			t.Fatal("operation completed before the worker ran it")
		default:
		}

		require.Len(t, queued, 1)
		queued[0]()
		token, err := op.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, "t1", token)
	})
}

type fakeAlternate struct {
	available bool
	token     *oauth2.Token
	err       error
	selector  string
}

func (f *fakeAlternate) Available() bool { return f.available }

func (f *fakeAlternate) Token(_ context.Context, selector string) (*oauth2.Token, error) {
	f.selector = selector
	return f.token, f.err
}

func TestModule_RequestAlternateAccess(t *testing.T) {
	ctx := context.Background()

	t.Run("not configured", func(t *testing.T) {
		env := newTestEnv(t, http.StatusOK, `{}`)
		m := newTestModule(t, env)

		_, err := m.RequestAlternateAccess(ctx, "me@example.com").Wait(ctx)
		assert.ErrorIs(t, err, ErrAlternateUnavailable)
	})

	t.Run("configured but unavailable", func(t *testing.T) {
		env := newTestEnv(t, http.StatusOK, `{}`)
		m := newTestModule(t, env, WithAlternateTokenSource(&fakeAlternate{available: false}))

		_, err := m.RequestAlternateAccess(ctx, "me@example.com").Wait(ctx)
		assert.ErrorIs(t, err, ErrAlternateUnavailable)
	})

	t.Run("stores the returned token", func(t *testing.T) {
		env := newTestEnv(t, http.StatusOK, `{}`)
		expiry := env.clock.Now().Add(time.Hour)
		src := &fakeAlternate{available: true, token: &oauth2.Token{AccessToken: "fed", Expiry: expiry}}
		m := newTestModule(t, env, WithAlternateTokenSource(src))

		token, err := m.RequestAlternateAccess(ctx, "me@example.com").Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, "fed", token)
		assert.Equal(t, "me@example.com", src.selector)

		stored := env.stored(t, "acct")
		assert.Equal(t, "fed", stored.AccessToken)
		assert.Empty(t, stored.RefreshToken)
		assert.Empty(t, stored.AuthorizationCode)
		assert.Equal(t, expiry.UnixMilli(), stored.ExpiresOn)
		assert.True(t, m.IsAuthorized())
		assert.Zero(t, env.server.calls.Load())
	})
}

func TestModule_RefreshAccess(t *testing.T) {
	ctx := context.Background()

	t.Run("no account", func(t *testing.T) {
		env := newTestEnv(t, http.StatusOK, `{"access_token":"x"}`)
		m := newTestModule(t, env)

		assert.False(t, m.RefreshAccess(ctx))
		assert.Zero(t, env.server.calls.Load())
	})

	t.Run("already authorized", func(t *testing.T) {
		env := newTestEnv(t, http.StatusOK, `{"access_token":"x"}`)
		env.seed(t, &oauth.Session{AccountID: "acct", AccessToken: "t1", ExpiresOn: env.nowMillis() + 60000})
		m := newTestModule(t, env)

		assert.True(t, m.RefreshAccess(ctx))
		assert.Zero(t, env.server.calls.Load())
	})

	t.Run("refreshes an expired token", func(t *testing.T) {
		env := newTestEnv(t, http.StatusOK, `{"access_token":"t2","expires_in":3600}`)
		env.seed(t, &oauth.Session{AccountID: "acct", AccessToken: "t1", RefreshToken: "r1", ExpiresOn: env.nowMillis() - 1})
		m := newTestModule(t, env)
		require.False(t, m.IsAuthorized())

		assert.True(t, m.RefreshAccess(ctx))
		assert.True(t, m.IsAuthorized())
		assert.Equal(t, "t2", m.Session().AccessToken)
	})

	t.Run("swallows exchange failures", func(t *testing.T) {
		env := newTestEnv(t, http.StatusBadRequest, `{"error":"invalid_grant"}`)
		env.seed(t, &oauth.Session{AccountID: "acct", AccessToken: "t1", RefreshToken: "r1", ExpiresOn: env.nowMillis() - 1})
		m := newTestModule(t, env)

		assert.False(t, m.RefreshAccess(ctx))
		assert.Equal(t, oauth.StateExpired, m.State())
	})
}

func TestModule_HandleError(t *testing.T) {
	ctx := context.Background()

	t.Run("other statuses never retry", func(t *testing.T) {
		env := newTestEnv(t, http.StatusOK, `{}`)
		env.seed(t, &oauth.Session{AccountID: "acct", AccessToken: "t1"})
		m := newTestModule(t, env)

		for _, status := range []int{http.StatusOK, http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError} {
			assert.False(t, m.HandleError(ctx, status), "status %d", status)
		}
	})

	t.Run("authorized module retries 401 and 403", func(t *testing.T) {
		env := newTestEnv(t, http.StatusOK, `{}`)
		env.seed(t, &oauth.Session{AccountID: "acct", AccessToken: "t1", ExpiresOn: env.nowMillis() + 60000})
		m := newTestModule(t, env)

		assert.True(t, m.HandleError(ctx, http.StatusUnauthorized))
		assert.True(t, m.HandleError(ctx, http.StatusForbidden))
	})

	t.Run("unauthorized module does not retry", func(t *testing.T) {
		env := newTestEnv(t, http.StatusOK, `{"access_token":"t2"}`)
		env.seed(t, &oauth.Session{AccountID: "acct", AccessToken: "t1", RefreshToken: "r1", ExpiresOn: env.nowMillis() - 1})
		m := newTestModule(t, env)

		assert.False(t, m.HandleError(ctx, http.StatusUnauthorized))
		assert.Zero(t, env.server.calls.Load())
	})
}

func TestModule_GetAuthorizationFieldsIsSideEffectFree(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, `{"access_token":"fresh"}`)
	env.seed(t, &oauth.Session{AccountID: "acct", AccessToken: "stale", RefreshToken: "r1", ExpiresOn: env.nowMillis() - 1})
	m := newTestModule(t, env)

	fields := m.GetAuthorizationFields("/api", http.MethodPost, []byte("{}"))
	assert.Equal(t, "Bearer stale", fields.Headers["Authorization"])
	assert.Empty(t, fields.Params)
	assert.Zero(t, env.server.calls.Load())

	req := httptest.NewRequest(http.MethodGet, "https://api.example/v1", nil)
	m.Apply(req)
	assert.Equal(t, "Bearer stale", req.Header.Get("Authorization"))
}

func TestModule_GetAuthorizationFieldsWithoutToken(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, `{}`)
	m := newTestModule(t, env)

	fields := m.GetAuthorizationFields("/api", http.MethodGet, nil)
	assert.Empty(t, fields.Headers)

	_, err := m.Token()
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestModule_DeleteAccount(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, http.StatusOK, `{}`)
	env.seed(t, &oauth.Session{AccountID: "acct", AccessToken: "t1"})
	m := newTestModule(t, env)

	require.NoError(t, m.DeleteAccount(ctx))
	assert.Nil(t, m.Session())
	assert.False(t, m.HasCredentials())

	has, err := env.service.HasAccount(ctx, "acct")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, m.DeleteAccount(ctx), "deleting twice is fine")
}

func TestModule_StateMachine(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, http.StatusOK, `{"access_token":"t1","refresh_token":"r1","expires_in":60}`)
	acq := &fakeAcquirer{code: "c1"}
	m := newTestModule(t, env, WithAcquirer(acq))

	assert.Equal(t, oauth.StateNoSession, m.State())

	// CODE_PENDING: a code was stored but the exchange has not run.
	require.NoError(t, env.service.AddAccount(ctx, &oauth.Session{AccountID: "acct", AuthorizationCode: "c1"}))
	require.NoError(t, m.Reload(ctx))
	assert.Equal(t, oauth.StateCodePending, m.State())
	assert.False(t, m.HasCredentials())

	_, err := m.RequestAccess(ctx).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, oauth.StateHasTokens, m.State())
	assert.Zero(t, acq.calls, "a pending code is exchanged without asking the user again")

	env.clock.Advance(2 * time.Minute)
	assert.Equal(t, oauth.StateExpired, m.State())
	assert.True(t, m.HasCredentials())
	assert.False(t, m.IsAuthorized())

	env.server.respond(http.StatusOK, `{"access_token":"t2","expires_in":60}`)
	assert.True(t, m.RefreshAccess(ctx))
	assert.Equal(t, oauth.StateHasTokens, m.State())

	tok, err := m.Token()
	require.NoError(t, err)
	assert.Equal(t, "t2", tok.AccessToken)
	assert.Equal(t, "r1", tok.RefreshToken)
}
