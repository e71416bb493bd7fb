package authz

import "errors"

var (
	// ErrAccountNotFound is returned by GetAccount when no record is stored.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAlternateUnavailable is reported by RequestAlternateAccess when no
	// alternate token source was configured or it is not available.
	ErrAlternateUnavailable = errors.New("alternate token source unavailable")

	// ErrNoAcquirer is reported by RequestAccess when the account has no
	// session yet and the module cannot obtain an authorization code.
	ErrNoAcquirer = errors.New("no authorization code acquirer configured")

	// ErrNoToken means the account holds no usable credential, so the user
	// has to authorize again.
	ErrNoToken = errors.New("no access token available")
)
