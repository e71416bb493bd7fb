package sessionstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"authz/pkg/logging"
	"authz/pkg/oauth"
)

// DefaultSessionDir is the default directory, relative to the home directory,
// for FileStore records.
const DefaultSessionDir = ".config/authz/sessions"

// FileStore keeps one JSON file per account.
//
// SECURITY: records hold live credentials.
//   - Files are created with 0600 permissions (owner read/write only)
//   - The directory is created with 0700 permissions
//   - File names are a hash of the account id, token values are never logged
//
// Decoded records are cached in memory. The directory is watched with
// fsnotify and a cached record is dropped as soon as its file changes, so
// another process sharing the directory (a second CLI invocation, say) is
// observed on the next Read.
type FileStore struct {
	mu    sync.RWMutex
	dir   string
	cache map[string]*oauth.Session // keyed by file name
	gen   uint64                    // bumped on every invalidation

	watcher   *fsnotify.Watcher
	closeOnce sync.Once
	done      chan struct{}
}

// NewFileStore opens (creating if needed) a file store in dir. An empty dir
// selects ~/.config/authz/sessions.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, DefaultSessionDir)
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create session directory watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch session directory: %w", err)
	}

	s := &FileStore{
		dir:     dir,
		cache:   make(map[string]*oauth.Session),
		watcher: watcher,
		done:    make(chan struct{}),
	}
	go s.processEvents()

	logging.Debug("SessionStore", "Watching session directory %s", dir)
	return s, nil
}

// Dir returns the directory holding the session files.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) Read(_ context.Context, accountID string) (*oauth.Session, error) {
	name := sessionFileName(accountID)

	s.mu.RLock()
	if session, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return session.Clone(), nil
	}
	gen := s.gen
	s.mu.RUnlock()

	session, err := s.readFile(name)
	if err != nil {
		return nil, err
	}
	if session.AccountID != accountID {
		// hash prefix collision, treat as absent
		return nil, ErrNotFound
	}

	s.mu.Lock()
	if s.gen == gen {
		s.cache[name] = session
	}
	s.mu.Unlock()

	return session.Clone(), nil
}

func (s *FileStore) Save(_ context.Context, session *oauth.Session) error {
	if err := validateSession(session); err != nil {
		return err
	}

	name := sessionFileName(session.AccountID)
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFileAtomic(filepath.Join(s.dir, name), data); err != nil {
		return fmt.Errorf("failed to persist session for account %s: %w", session.AccountID, err)
	}
	s.cache[name] = session.Clone()

	logging.Debug("SessionStore", "Stored session for account %s in %s", session.AccountID, name)
	return nil
}

func (s *FileStore) Remove(_ context.Context, accountID string) error {
	name := sessionFileName(accountID)

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cache, name)
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session for account %s: %w", accountID, err)
	}
	return nil
}

func (s *FileStore) ReadAll(_ context.Context) ([]*oauth.Session, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list session directory: %w", err)
	}

	var out []*oauth.Session
	for _, entry := range entries {
		if entry.IsDir() || !isSessionFile(entry.Name()) {
			continue
		}
		session, err := s.readFile(entry.Name())
		if err != nil {
			logging.Warn("SessionStore", "Skipping unreadable session file %s: %v", entry.Name(), err)
			continue
		}
		out = append(out, session)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

// Close stops the directory watcher.
func (s *FileStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.watcher.Close()
		<-s.done
	})
	return err
}

// processEvents drops cached records whose files changed on disk.
func (s *FileStore) processEvents() {
	defer close(s.done)
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleFsEvent(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("SessionStore", err, "Session directory watcher error")
		}
	}
}

func (s *FileStore) handleFsEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if !isSessionFile(name) {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	s.mu.Lock()
	_, cached := s.cache[name]
	delete(s.cache, name)
	s.gen++
	s.mu.Unlock()

	if cached {
		logging.Debug("SessionStore", "Invalidated cached session %s after %s", name, event.Op)
	}
}

func (s *FileStore) readFile(name string) (*oauth.Session, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var session oauth.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse session file %s: %w", name, err)
	}
	if session.AccountID == "" {
		return nil, errors.New("session file has no account id")
	}
	return &session, nil
}

// writeFileAtomic writes data to a temp file in the same directory and
// renames it over path, so readers never observe a partial record.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".session-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// sessionFileName derives the file name from the account id so arbitrary
// ids cannot escape the directory.
func sessionFileName(accountID string) string {
	hash := sha256.Sum256([]byte(accountID))
	return hex.EncodeToString(hash[:16]) + ".json"
}

func isSessionFile(name string) bool {
	return strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".")
}
