package bootstrap

import (
	"context"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
)

type storeObserver interface {
	SessionConflict()
	SessionStoreError(operation string)
}

// instrumentedStore counts conflicts and failures of the wrapped store.
type instrumentedStore struct {
	next     ports.SessionStore
	observer storeObserver
}

func newInstrumentedStore(next ports.SessionStore, observer storeObserver) ports.SessionStore {
	if observer == nil {
		return next
	}
	return &instrumentedStore{next: next, observer: observer}
}

func (s *instrumentedStore) Get(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	state, err := s.next.Get(ctx, sessionID)
	if err != nil && !domain.IsKind(err, domain.ErrSessionNotFound) {
		s.observer.SessionStoreError("get")
	}
	return state, err
}

func (s *instrumentedStore) Put(ctx context.Context, state *domain.SessionState) (int64, error) {
	version, err := s.next.Put(ctx, state)
	switch {
	case err == nil:
	case domain.IsKind(err, domain.ErrVersionConflict):
		s.observer.SessionConflict()
	default:
		s.observer.SessionStoreError("put")
	}
	return version, err
}

func (s *instrumentedStore) Delete(ctx context.Context, sessionID string) error {
	err := s.next.Delete(ctx, sessionID)
	if err != nil && !domain.IsKind(err, domain.ErrSessionNotFound) {
		s.observer.SessionStoreError("delete")
	}
	return err
}
