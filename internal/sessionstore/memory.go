package sessionstore

import (
	"context"
	"sort"
	"sync"

	"authz/pkg/oauth"
)

// MemoryStore is an in-process Store. Records are lost when the process exits.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*oauth.Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*oauth.Session)}
}

func (s *MemoryStore) Read(_ context.Context, accountID string) (*oauth.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[accountID]
	if !ok {
		return nil, ErrNotFound
	}
	return session.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, session *oauth.Session) error {
	if err := validateSession(session); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.AccountID] = session.Clone()
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, accountID)
	return nil
}

func (s *MemoryStore) ReadAll(_ context.Context) ([]*oauth.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*oauth.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
