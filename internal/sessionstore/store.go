// Package sessionstore persists oauth.Session records keyed by account id.
//
// Three backends implement Store:
//
//   - MemoryStore keeps records in process memory only
//   - FileStore writes one JSON file per account and watches its directory
//     with fsnotify so changes made by other processes are picked up
//   - SQLiteStore keeps all records in a single SQLite database
//
// All backends copy sessions in and out, so callers never share a record
// with the store. Save is an upsert that replaces the whole record.
package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"authz/pkg/oauth"
)

// ErrNotFound is returned by Read when no record exists for the account.
var ErrNotFound = errors.New("session not found")

// Store is a keyed durable store of sessions.
type Store interface {
	// Read returns a copy of the record for accountID or ErrNotFound.
	Read(ctx context.Context, accountID string) (*oauth.Session, error)

	// Save replaces any record stored under session.AccountID.
	Save(ctx context.Context, session *oauth.Session) error

	// Remove deletes the record. Removing a missing record is not an error.
	Remove(ctx context.Context, accountID string) error

	// ReadAll returns every stored record ordered by account id.
	ReadAll(ctx context.Context) ([]*oauth.Session, error)

	Close() error
}

// Kind names a store backend.
type Kind string

const (
	KindMemory Kind = "memory"
	KindFile   Kind = "file"
	KindSQLite Kind = "sqlite"
)

// New opens the backend named by kind. path is the database file for
// KindSQLite and the directory for KindFile; it is ignored for KindMemory.
func New(kind Kind, path string) (Store, error) {
	switch Kind(strings.ToLower(string(kind))) {
	case KindMemory:
		return NewMemoryStore(), nil
	case KindFile:
		return NewFileStore(path)
	case KindSQLite, "":
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown session store type %q", kind)
	}
}

func validateSession(session *oauth.Session) error {
	if session == nil {
		return errors.New("session is required")
	}
	if strings.TrimSpace(session.AccountID) == "" {
		return errors.New("session account id is required")
	}
	return nil
}
