//go:build integration

package redis_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/infrastructure/repository/redis"
)

type SessionStoreSuite struct {
	suite.Suite
	container *tcredis.RedisContainer
	client    *goredis.Client
	store     *redis.SessionStore
}

func TestSessionStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(SessionStoreSuite))
}

func (s *SessionStoreSuite) SetupSuite() {
	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	s.Require().NoError(err)
	s.container = container

	url, err := container.ConnectionString(ctx)
	s.Require().NoError(err)

	client, err := redis.Open(ctx, url)
	s.Require().NoError(err)
	s.client = client
	s.store = redis.NewSessionStore(client, time.Minute)
}

func (s *SessionStoreSuite) TearDownSuite() {
	ctx := context.Background()
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(ctx)
	}
}

func (s *SessionStoreSuite) SetupTest() {
	s.Require().NoError(s.client.FlushAll(context.Background()).Err())
}

func (s *SessionStoreSuite) TestPutThenGetRoundTrip() {
	ctx := context.Background()
	state := domain.NewSessionState("abc123", time.Now().UTC())
	state.ProductLine = "VEHICLE_REG"
	state.Accepted[domain.DocTypeIdentity] = domain.ProcessedRecord{Success: true, Source: "id.jpg", DocumentType: domain.DocTypeIdentity}

	version, err := s.store.Put(ctx, state)
	s.Require().NoError(err)
	s.Equal(int64(1), version)

	got, err := s.store.Get(ctx, "abc123")
	s.Require().NoError(err)
	s.Equal(int64(1), got.Version)
	s.Equal("VEHICLE_REG", got.ProductLine)
	s.Contains(got.Accepted, domain.DocTypeIdentity)
}

func (s *SessionStoreSuite) TestStaleVersionConflicts() {
	ctx := context.Background()
	state := domain.NewSessionState("abc123", time.Now().UTC())
	_, err := s.store.Put(ctx, state)
	s.Require().NoError(err)

	_, err = s.store.Put(ctx, state)
	s.True(domain.IsKind(err, domain.ErrVersionConflict), "expected conflict, got %v", err)
}

func (s *SessionStoreSuite) TestPutRefreshesTTL() {
	ctx := context.Background()
	_, err := s.store.Put(ctx, domain.NewSessionState("ttl", time.Now().UTC()))
	s.Require().NoError(err)

	ttl, err := s.client.TTL(ctx, "intake:session:ttl").Result()
	s.Require().NoError(err)
	s.Greater(ttl, 50*time.Second)
}

func (s *SessionStoreSuite) TestConcurrentWritersExactlyOneWins() {
	ctx := context.Background()
	base := domain.NewSessionState("race", time.Now().UTC())
	_, err := s.store.Put(ctx, base)
	s.Require().NoError(err)
	current, err := s.store.Get(ctx, "race")
	s.Require().NoError(err)

	const writers = 20
	var wg sync.WaitGroup
	var wins, conflicts, other atomic.Int32
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Put(ctx, current.Clone())
			switch {
			case err == nil:
				wins.Add(1)
			case domain.IsKind(err, domain.ErrVersionConflict):
				conflicts.Add(1)
			default:
				other.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load(), "exactly one writer should win")
	s.Equal(int32(writers-1), conflicts.Load())
	s.Equal(int32(0), other.Load())
}

func (s *SessionStoreSuite) TestDeleteAndMissing() {
	ctx := context.Background()
	_, err := s.store.Put(ctx, domain.NewSessionState("gone", time.Now().UTC()))
	s.Require().NoError(err)

	s.Require().NoError(s.store.Delete(ctx, "gone"))
	_, err = s.store.Get(ctx, "gone")
	s.True(domain.IsKind(err, domain.ErrSessionNotFound))
	s.True(domain.IsKind(s.store.Delete(ctx, "gone"), domain.ErrSessionNotFound))
}
