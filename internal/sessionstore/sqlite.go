package sessionstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"authz/pkg/logging"
	"authz/pkg/oauth"
)

// DefaultSQLitePath is the default database file, relative to the home directory.
const DefaultSQLitePath = ".config/authz/sessions.db"

const sessionsSchema = `
CREATE TABLE IF NOT EXISTS sessions (
    account_id TEXT PRIMARY KEY,
    client_id TEXT NOT NULL DEFAULT '',
    access_token TEXT NOT NULL DEFAULT '',
    refresh_token TEXT NOT NULL DEFAULT '',
    authorization_code TEXT NOT NULL DEFAULT '',
    expires_on INTEGER NOT NULL DEFAULT 0
)`

// SQLiteStore keeps sessions in a single SQLite table.
type SQLiteStore struct {
	sqlDB *sql.DB
}

// OpenSQLite opens (creating if needed) the session database at path. An
// empty path selects ~/.config/authz/sessions.db.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, DefaultSQLitePath)
	}

	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0700); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}

	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := sqlDB.Exec(sessionsSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create sessions table: %w", err)
	}

	logging.Debug("SessionStore", "Opened sqlite session store %s", cleanPath)
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

func (s *SQLiteStore) Read(ctx context.Context, accountID string) (*oauth.Session, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT account_id, client_id, access_token, refresh_token, authorization_code, expires_on
		 FROM sessions
		 WHERE account_id = ?`,
		accountID,
	)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read session: %w", err)
	}
	return session, nil
}

// Save upserts the whole record, so no field of a previous record survives.
func (s *SQLiteStore) Save(ctx context.Context, session *oauth.Session) error {
	if err := validateSession(session); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO sessions (
		    account_id, client_id, access_token, refresh_token, authorization_code, expires_on
		 ) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(account_id) DO UPDATE SET
		    client_id = excluded.client_id,
		    access_token = excluded.access_token,
		    refresh_token = excluded.refresh_token,
		    authorization_code = excluded.authorization_code,
		    expires_on = excluded.expires_on`,
		session.AccountID,
		session.ClientID,
		session.AccessToken,
		session.RefreshToken,
		session.AuthorizationCode,
		session.ExpiresOn,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, accountID string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM sessions WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ReadAll(ctx context.Context) ([]*oauth.Session, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT account_id, client_id, access_token, refresh_token, authorization_code, expires_on
		 FROM sessions
		 ORDER BY account_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*oauth.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

// Close releases the underlying SQLite connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*oauth.Session, error) {
	var session oauth.Session
	if err := row.Scan(
		&session.AccountID,
		&session.ClientID,
		&session.AccessToken,
		&session.RefreshToken,
		&session.AuthorizationCode,
		&session.ExpiresOn,
	); err != nil {
		return nil, err
	}
	return &session, nil
}
