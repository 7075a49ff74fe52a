package memory

import (
	"context"
	"testing"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

func newTestStore(ttl time.Duration) (*SessionStore, *time.Time) {
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	s := NewSessionStore(ttl)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestPutGetVersioning(t *testing.T) {
	s, _ := newTestStore(time.Hour)
	ctx := context.Background()

	state := domain.NewSessionState("abc123", time.Now())
	v, err := s.Put(ctx, state)
	if err != nil || v != 1 {
		t.Fatalf("Put() = %d, %v", v, err)
	}
	if _, err := s.Put(ctx, state); !domain.IsKind(err, domain.ErrVersionConflict) {
		t.Fatalf("expected conflict on stale version, got %v", err)
	}

	got, err := s.Get(ctx, "abc123")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got.ValidCount = 1
	v, err = s.Put(ctx, got)
	if err != nil || v != 2 {
		t.Fatalf("Put() = %d, %v", v, err)
	}
}

func TestGetReturnsIsolatedCopy(t *testing.T) {
	s, _ := newTestStore(time.Hour)
	ctx := context.Background()
	state := domain.NewSessionState("s", time.Now())
	state.Files[domain.DocTypeIdentity] = []string{"id.jpg"}
	if _, err := s.Put(ctx, state); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, _ := s.Get(ctx, "s")
	got.Files[domain.DocTypeIdentity][0] = "mutated"
	again, _ := s.Get(ctx, "s")
	if again.Files[domain.DocTypeIdentity][0] != "id.jpg" {
		t.Fatalf("store state leaked to caller")
	}
}

func TestExpiryAndPurge(t *testing.T) {
	s, now := newTestStore(time.Minute)
	ctx := context.Background()
	if _, err := s.Put(ctx, domain.NewSessionState("a", *now)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := s.Put(ctx, domain.NewSessionState("b", *now)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	*now = now.Add(2 * time.Minute)
	if _, err := s.Get(ctx, "a"); !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected expired session to be gone, got %v", err)
	}
	n, err := s.PurgeExpired(ctx)
	if err != nil || n != 1 {
		t.Fatalf("PurgeExpired() = %d, %v (a was dropped lazily)", n, err)
	}

	if _, err := s.Put(ctx, domain.NewSessionState("a", *now)); err != nil {
		t.Fatalf("expected expired session to be recreatable at version 0, got %v", err)
	}
}

func TestDeleteMissing(t *testing.T) {
	s, _ := newTestStore(time.Hour)
	if err := s.Delete(context.Background(), "nope"); !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
