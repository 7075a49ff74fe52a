package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

type entry struct {
	state     *domain.SessionState
	expiresAt time.Time
}

// SessionStore is a process-local store for development and tests. Expired
// entries are dropped lazily on access and by PurgeExpired.
type SessionStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry
	now     func() time.Time
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (*domain.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(sessionID)
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "get session", fmt.Errorf("session %s", sessionID))
	}
	return e.state.Clone(), nil
}

func (s *SessionStore) Put(_ context.Context, state *domain.SessionState) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if e, ok := s.live(state.SessionID); ok {
		current = e.state.Version
	}
	if current != state.Version {
		return 0, domain.WrapError(domain.ErrVersionConflict, "put session",
			fmt.Errorf("session %s stored at version %d, expected %d", state.SessionID, current, state.Version))
	}

	next := state.Clone()
	next.Version = current + 1
	s.entries[state.SessionID] = entry{state: next, expiresAt: s.now().Add(s.ttl)}
	return next.Version, nil
}

func (s *SessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.live(sessionID); !ok {
		return domain.WrapError(domain.ErrSessionNotFound, "delete session", fmt.Errorf("session %s", sessionID))
	}
	delete(s.entries, sessionID)
	return nil
}

func (s *SessionStore) PurgeExpired(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var n int64
	for id, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, id)
			n++
		}
	}
	return n, nil
}

// live must be called with mu held.
func (s *SessionStore) live(sessionID string) (entry, bool) {
	e, ok := s.entries[sessionID]
	if !ok {
		return entry{}, false
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, sessionID)
		return entry{}, false
	}
	return e, true
}
