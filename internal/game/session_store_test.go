package game

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/wfunc/draw-guess/internal/errors"
)

// SessionStoreTestSuite 对两种存储跑同一组用例
type SessionStoreTestSuite struct {
	suite.Suite
	newStore func(t *testing.T) SessionStore
	store    SessionStore
	ctx      context.Context
}

func (s *SessionStoreTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore(s.T())
}

func testSession(id, room, name string) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		RoomCode:  room,
		Username:  name,
		PlayerID:  "conn-" + id,
		PlayerKey: "key-" + name,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func (s *SessionStoreTestSuite) TestSaveLoad() {
	in := testSession("s1", "ABCDEF", "alice")
	s.Require().NoError(s.store.Save(s.ctx, in))

	out, err := s.store.Load(s.ctx, "s1")
	s.Require().NoError(err)
	s.Equal(in.RoomCode, out.RoomCode)
	s.Equal(in.Username, out.Username)
	s.Equal(in.PlayerKey, out.PlayerKey)
	s.Equal(in.PlayerID, out.PlayerID)

	_, err = s.store.Load(s.ctx, "missing")
	s.True(errors.Is(err, errors.ErrSessionNotFound))
}

func (s *SessionStoreTestSuite) TestFindBySlotIgnoresCase() {
	s.Require().NoError(s.store.Save(s.ctx, testSession("s1", "ABCDEF", "Alice")))

	got, err := s.store.FindBySlot(s.ctx, "ABCDEF", " alice ")
	s.Require().NoError(err)
	s.Equal("s1", got.ID)

	_, err = s.store.FindBySlot(s.ctx, "ABCDEF", "bobby")
	s.True(errors.Is(err, errors.ErrSessionNotFound))
}

func (s *SessionStoreTestSuite) TestDeleteKeepsNewerSlot() {
	s.Require().NoError(s.store.Save(s.ctx, testSession("old", "ABCDEF", "alice")))
	s.Require().NoError(s.store.Save(s.ctx, testSession("new", "ABCDEF", "alice")))

	s.Require().NoError(s.store.Delete(s.ctx, "old"))
	got, err := s.store.FindBySlot(s.ctx, "ABCDEF", "alice")
	s.Require().NoError(err)
	s.Equal("new", got.ID)

	s.Require().NoError(s.store.Delete(s.ctx, "new"))
	_, err = s.store.FindBySlot(s.ctx, "ABCDEF", "alice")
	s.True(errors.Is(err, errors.ErrSessionNotFound))

	s.NoError(s.store.Delete(s.ctx, "never-existed"))
}

func (s *SessionStoreTestSuite) TestDeleteRoom() {
	s.Require().NoError(s.store.Save(s.ctx, testSession("s1", "ABCDEF", "alice")))
	s.Require().NoError(s.store.Save(s.ctx, testSession("s2", "ABCDEF", "bobby")))
	s.Require().NoError(s.store.Save(s.ctx, testSession("s3", "GHIJKL", "carol")))

	s.Require().NoError(s.store.DeleteRoom(s.ctx, "ABCDEF"))

	_, err := s.store.Load(s.ctx, "s1")
	s.True(errors.Is(err, errors.ErrSessionNotFound))
	_, err = s.store.FindBySlot(s.ctx, "ABCDEF", "bobby")
	s.True(errors.Is(err, errors.ErrSessionNotFound))

	_, err = s.store.Load(s.ctx, "s3")
	s.NoError(err)
}

func TestMemorySessionStoreSuite(t *testing.T) {
	suite.Run(t, &SessionStoreTestSuite{
		newStore: func(*testing.T) SessionStore { return NewMemorySessionStore() },
	})
}

func TestRedisSessionStoreSuite(t *testing.T) {
	suite.Run(t, &SessionStoreTestSuite{
		newStore: func(t *testing.T) SessionStore {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return NewRedisSessionStore(client, "")
		},
	})
}

func TestMemorySessionStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()
	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(ctx, testSession("s1", "ABCDEF", "alice")))
	now = now.Add(2 * time.Hour)

	_, err := store.Load(ctx, "s1")
	assert.True(t, errors.Is(err, errors.ErrSessionNotFound))
	assert.Zero(t, store.Len(), "expired session is evicted on load")
}

func TestRedisSessionStoreTTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewRedisSessionStore(client, "test:")

	require.NoError(t, store.Save(ctx, testSession("s1", "ABCDEF", "alice")))
	assert.True(t, mr.Exists("test:id:s1"))
	assert.True(t, mr.Exists("test:slot:ABCDEF:alice"))
	assert.Greater(t, mr.TTL("test:id:s1"), 59*time.Minute)

	mr.FastForward(2 * time.Hour)
	_, err := store.Load(ctx, "s1")
	assert.True(t, errors.Is(err, errors.ErrSessionNotFound))

	expired := testSession("s2", "ABCDEF", "bobby")
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	err = store.Save(ctx, expired)
	assert.True(t, errors.Is(err, errors.ErrTokenExpired))
}
