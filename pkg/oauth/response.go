package oauth

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// tokenResponse holds the fields of a successful token response this package uses.
type tokenResponse struct {
	accessToken  string
	refreshToken string
	expiresIn    int64
	hasExpiresIn bool
}

// apply writes the response onto the session. A refresh token is only
// overwritten by a non-empty value, so a working one is never cleared.
func (r *tokenResponse) apply(s *Session, now time.Time) {
	s.AccessToken = r.accessToken
	if r.hasExpiresIn {
		s.SetExpiresIn(now, r.expiresIn)
	}
	if r.refreshToken != "" {
		s.RefreshToken = r.refreshToken
	}
}

// parseTokenResponse parses a JSON object body, falling back to the legacy
// form-encoded format (access_token=...&expires_in=...) some servers return.
func parseTokenResponse(body []byte) (*tokenResponse, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err == nil && fields != nil {
		return tokenResponseFromJSON(fields)
	}
	return tokenResponseFromForm(string(body))
}

func tokenResponseFromJSON(fields map[string]json.RawMessage) (*tokenResponse, error) {
	raw, ok := fields["access_token"]
	if !ok || isJSONNull(raw) {
		return nil, &ResponseParseError{Reason: "missing access_token"}
	}
	accessToken, err := jsonScalarString(raw)
	if err != nil {
		return nil, &ResponseParseError{Reason: "access_token: " + err.Error()}
	}
	if accessToken == "" {
		return nil, &ResponseParseError{Reason: "missing access_token"}
	}

	resp := &tokenResponse{accessToken: accessToken}

	if raw, ok := fields["expires_in"]; ok && !isJSONNull(raw) {
		expiresIn, err := jsonInt64(raw)
		if err != nil {
			return nil, &ResponseParseError{Reason: "expires_in: " + err.Error()}
		}
		resp.expiresIn = expiresIn
		resp.hasExpiresIn = true
	}

	if raw, ok := fields["refresh_token"]; ok && !isJSONNull(raw) {
		refreshToken, err := jsonScalarString(raw)
		if err != nil {
			return nil, &ResponseParseError{Reason: "refresh_token: " + err.Error()}
		}
		resp.refreshToken = refreshToken
	}

	return resp, nil
}

func tokenResponseFromForm(body string) (*tokenResponse, error) {
	resp := &tokenResponse{}

	for _, pair := range strings.Split(strings.TrimSpace(body), "&") {
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, &ResponseParseError{Reason: "body is neither a JSON object nor form-encoded"}
		}
		value, err := url.QueryUnescape(value)
		if err != nil {
			return nil, &ResponseParseError{Reason: key + ": " + err.Error()}
		}

		switch key {
		case "access_token":
			resp.accessToken = value
		case "expires_in":
			expiresIn, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, &ResponseParseError{Reason: "expires_in: " + err.Error()}
			}
			resp.expiresIn = expiresIn
			resp.hasExpiresIn = true
		case "refresh_token":
			resp.refreshToken = value
		}
	}

	if resp.accessToken == "" {
		return nil, &ResponseParseError{Reason: "missing access_token"}
	}
	return resp, nil
}

// parseErrorBody extracts the "error" member of a JSON object body. Primitive
// values are used as their string value; objects and arrays are stringified.
func parseErrorBody(body []byte) (string, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return "", false
	}
	raw, ok := fields["error"]
	if !ok {
		return "", false
	}

	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0:
		return "", true
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return string(trimmed), true
		}
		return s, true
	case trimmed[0] == '{' || trimmed[0] == '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return string(trimmed), true
		}
		return buf.String(), true
	default:
		// numbers, booleans and null
		return string(trimmed), true
	}
}

func isJSONNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

// jsonScalarString returns a JSON string's value, or the literal text of a JSON number.
func jsonScalarString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// jsonInt64 accepts a JSON number or a string holding a number.
func jsonInt64(raw json.RawMessage) (int64, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	// 2^63 itself is not representable, hence >=.
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, errors.New("value out of range")
	}
	return int64(f), nil
}
