package oauth

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/oauth2"
)

// SessionState is the derived authorization state of one account.
type SessionState string

const (
	// StateNoSession means no record exists, or the record holds no credential at all.
	StateNoSession SessionState = "NO_SESSION"

	// StateCodePending means an authorization code was captured but not exchanged yet.
	StateCodePending SessionState = "CODE_PENDING"

	// StateHasTokens means a non-expired access token is available.
	StateHasTokens SessionState = "HAS_TOKENS"

	// StateExpired means the access token expired (or is absent) but a refresh is possible.
	StateExpired SessionState = "EXPIRED"
)

// Session is the durable authorization state of one account, keyed by AccountID.
//
// Empty strings mean "none issued". ExpiresOn is in epoch milliseconds and the
// value 0 is a sentinel for "never expires".
type Session struct {
	AccountID         string `json:"account_id"`
	ClientID          string `json:"client_id"`
	AccessToken       string `json:"access_token,omitempty"`
	RefreshToken      string `json:"refresh_token,omitempty"`
	AuthorizationCode string `json:"authorization_code,omitempty"`
	ExpiresOn         int64  `json:"expires_on"`
}

// TokenIsNotExpired reports whether the access token is still usable at now.
func (s *Session) TokenIsNotExpired(now time.Time) bool {
	return s.ExpiresOn == 0 || s.ExpiresOn > now.UnixMilli()
}

// HasPendingExchange reports whether the record has an authorization code or an access token.
func (s *Session) HasPendingExchange() bool {
	return s.AuthorizationCode != "" || s.AccessToken != ""
}

// Expiry returns ExpiresOn as a time. The zero time is returned for sessions that never expire.
func (s *Session) Expiry() time.Time {
	if s.ExpiresOn == 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.ExpiresOn)
}

// SetExpiresIn sets ExpiresOn to now plus the given number of seconds.
// Lifetimes past the int64 millisecond range saturate at math.MaxInt64, and
// negative ones are treated as already expired.
func (s *Session) SetExpiresIn(now time.Time, seconds int64) {
	nowMillis := now.UnixMilli()
	switch {
	case seconds < 0:
		seconds = 0
	case seconds > (math.MaxInt64-nowMillis)/1000:
		s.ExpiresOn = math.MaxInt64
		return
	}
	s.ExpiresOn = nowMillis + seconds*1000
}

// State derives the lifecycle state of the session at now. A nil session has no state.
func (s *Session) State(now time.Time) SessionState {
	if s == nil {
		return StateNoSession
	}
	switch {
	case s.AccessToken != "" && s.TokenIsNotExpired(now):
		return StateHasTokens
	case s.AccessToken != "" || s.RefreshToken != "":
		return StateExpired
	case s.AuthorizationCode != "":
		return StateCodePending
	default:
		return StateNoSession
	}
}

// Clone returns a copy of the session. Clone of nil is nil.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Token converts the session to an oauth2.Token for use with golang.org/x/oauth2.
func (s *Session) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: s.RefreshToken,
		Expiry:       s.Expiry(),
	}
}

// String implements fmt.Stringer without exposing credential values.
func (s *Session) String() string {
	if s == nil {
		return "Session(nil)"
	}
	return fmt.Sprintf("Session{account=%s client=%s access=%s refresh=%s code=%s expiresOn=%d}",
		s.AccountID, s.ClientID,
		NewRedactedToken(s.AccessToken), NewRedactedToken(s.RefreshToken), NewRedactedToken(s.AuthorizationCode),
		s.ExpiresOn)
}
