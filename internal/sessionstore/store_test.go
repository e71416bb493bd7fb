package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authz/pkg/oauth"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()

	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "sessions"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = fileStore.Close() })

	sqliteStore, err := OpenSQLite(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
		"sqlite": sqliteStore,
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("read missing", func(t *testing.T) {
				_, err := store.Read(ctx, "missing")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("save and read", func(t *testing.T) {
				in := &oauth.Session{
					AccountID:    "acct-1",
					ClientID:     "client",
					AccessToken:  "t1",
					RefreshToken: "r1",
					ExpiresOn:    1_700_000_000_000,
				}
				require.NoError(t, store.Save(ctx, in))

				got, err := store.Read(ctx, "acct-1")
				require.NoError(t, err)
				assert.Equal(t, in, got)

				got.AccessToken = "mutated"
				again, err := store.Read(ctx, "acct-1")
				require.NoError(t, err)
				assert.Equal(t, "t1", again.AccessToken, "store must hand out copies")
			})

			t.Run("save replaces the whole record", func(t *testing.T) {
				require.NoError(t, store.Save(ctx, &oauth.Session{AccountID: "acct-2", AuthorizationCode: "c1", RefreshToken: "r0"}))
				require.NoError(t, store.Save(ctx, &oauth.Session{AccountID: "acct-2", AccessToken: "t2"}))

				got, err := store.Read(ctx, "acct-2")
				require.NoError(t, err)
				assert.Equal(t, &oauth.Session{AccountID: "acct-2", AccessToken: "t2"}, got)
			})

			t.Run("save rejects records without an account id", func(t *testing.T) {
				assert.Error(t, store.Save(ctx, &oauth.Session{AccessToken: "t"}))
				assert.Error(t, store.Save(ctx, nil))
			})

			t.Run("read all is ordered", func(t *testing.T) {
				require.NoError(t, store.Save(ctx, &oauth.Session{AccountID: "acct-0", AccessToken: "t0"}))

				all, err := store.ReadAll(ctx)
				require.NoError(t, err)
				ids := make([]string, 0, len(all))
				for _, s := range all {
					ids = append(ids, s.AccountID)
				}
				assert.Equal(t, []string{"acct-0", "acct-1", "acct-2"}, ids)
			})

			t.Run("remove is idempotent", func(t *testing.T) {
				require.NoError(t, store.Remove(ctx, "acct-1"))
				require.NoError(t, store.Remove(ctx, "acct-1"))

				_, err := store.Read(ctx, "acct-1")
				assert.ErrorIs(t, err, ErrNotFound)
			})
		})
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		kind Kind
		path string
		want any
	}{
		{KindMemory, "", &MemoryStore{}},
		{KindFile, filepath.Join(t.TempDir(), "files"), &FileStore{}},
		{KindSQLite, filepath.Join(t.TempDir(), "s.db"), &SQLiteStore{}},
		{"SQLite", filepath.Join(t.TempDir(), "upper.db"), &SQLiteStore{}},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			store, err := New(tt.kind, tt.path)
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })
			assert.IsType(t, tt.want, store)
		})
	}

	_, err := New("redis", "")
	assert.Error(t, err)
}

func TestFileStore_Permissions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sessions")
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Save(context.Background(), &oauth.Session{AccountID: "../../etc/passwd", AccessToken: "t"}))

	dirInfo, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm())

	path := filepath.Join(dir, sessionFileName("../../etc/passwd"))
	fileInfo, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), fileInfo.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files may be left behind")
}

func TestFileStore_ObservesExternalChanges(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "sessions")

	store, err := NewFileStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Save(ctx, &oauth.Session{AccountID: "acct", AccessToken: "old"}))
	got, err := store.Read(ctx, "acct")
	require.NoError(t, err)
	require.Equal(t, "old", got.AccessToken)

	// A second process rewrites the record.
	data, err := json.Marshal(&oauth.Session{AccountID: "acct", AccessToken: "new"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, sessionFileName("acct")), data, 0600))

	assert.Eventually(t, func() bool {
		s, err := store.Read(ctx, "acct")
		return err == nil && s.AccessToken == "new"
	}, 2*time.Second, 20*time.Millisecond)

	// And then deletes it.
	require.NoError(t, os.Remove(filepath.Join(dir, sessionFileName("acct"))))
	assert.Eventually(t, func() bool {
		_, err := store.Read(ctx, "acct")
		return err == ErrNotFound
	}, 2*time.Second, 20*time.Millisecond)
}

func TestFileStore_SkipsUnreadableFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sessions")
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "garbage.json"), []byte("{not json"), 0600))
	require.NoError(t, store.Save(context.Background(), &oauth.Session{AccountID: "acct", AccessToken: "t"}))

	all, err := store.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "acct", all[0].AccountID)
}

func TestSQLiteStore_Schema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sessions.db")
	store, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), &oauth.Session{AccountID: "acct", RefreshToken: "r"}))
	require.NoError(t, store.Close())

	sqlDB, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer func() { _ = sqlDB.Close() }()

	var refresh string
	var expiresOn int64
	err = sqlDB.QueryRow(`SELECT refresh_token, expires_on FROM sessions WHERE account_id = ?`, "acct").Scan(&refresh, &expiresOn)
	require.NoError(t, err)
	assert.Equal(t, "r", refresh)
	assert.Zero(t, expiresOn)

	var journalMode string
	require.NoError(t, sqlDB.QueryRow(`PRAGMA journal_mode`).Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	got, err := reopened.Read(context.Background(), "acct")
	require.NoError(t, err)
	assert.Equal(t, "r", got.RefreshToken)
}
