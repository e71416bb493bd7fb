package oauth

// RedactedToken wraps a credential (access token, refresh token or
// authorization code) so it cannot leak through fmt, encoding/json or
// encoding.TextMarshaler.
//
// An empty credential prints as "<none>" so log lines still show which
// credentials a session holds.
//
//	fmt.Println(oauth.NewRedactedToken("abc")) // [REDACTED]
//	fmt.Println(oauth.NewRedactedToken(""))    // <none>
type RedactedToken struct {
	value string
}

const (
	redactedMarker = "[REDACTED]"
	emptyMarker    = "<none>"
)

// NewRedactedToken creates a new RedactedToken wrapping the given value.
func NewRedactedToken(value string) RedactedToken {
	return RedactedToken{value: value}
}

// Value returns the actual credential. Never log the result.
func (t RedactedToken) Value() string {
	return t.value
}

// IsEmpty returns true if no credential is wrapped.
func (t RedactedToken) IsEmpty() bool {
	return t.value == ""
}

func (t RedactedToken) marker() string {
	if t.value == "" {
		return emptyMarker
	}
	return redactedMarker
}

// String implements fmt.Stringer.
func (t RedactedToken) String() string {
	return t.marker()
}

// GoString implements fmt.GoStringer for %#v formatting.
func (t RedactedToken) GoString() string {
	return "oauth.RedactedToken{" + t.marker() + "}"
}

// MarshalText implements encoding.TextMarshaler.
func (t RedactedToken) MarshalText() ([]byte, error) {
	return []byte(t.marker()), nil
}

// MarshalJSON implements json.Marshaler.
func (t RedactedToken) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.marker() + `"`), nil
}
