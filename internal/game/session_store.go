package game

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wfunc/draw-guess/internal/errors"
)

// Session 断线重连会话
type Session struct {
	ID        string    `json:"id"`
	RoomCode  string    `json:"roomCode"`
	Username  string    `json:"username"`
	PlayerID  string    `json:"playerId"`
	PlayerKey string    `json:"playerKey"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Session) expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

func slotKey(roomCode, username string) string {
	return roomCode + ":" + strings.ToLower(strings.TrimSpace(username))
}

// SessionStore 会话存储接口
type SessionStore interface {
	// Save 保存会话
	Save(ctx context.Context, s *Session) error
	// Load 按会话ID加载，不存在或已过期返回 ErrSessionNotFound
	Load(ctx context.Context, id string) (*Session, error)
	// Delete 删除会话
	Delete(ctx context.Context, id string) error
	// FindBySlot 按房间和用户名查找会话
	FindBySlot(ctx context.Context, roomCode, username string) (*Session, error)
	// DeleteRoom 删除房间内全部会话
	DeleteRoom(ctx context.Context, roomCode string) error
}

// MemorySessionStore 内存会话存储
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	slots    map[string]string
	now      func() time.Time
}

// NewMemorySessionStore 创建内存会话存储
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*Session),
		slots:    make(map[string]string),
		now:      time.Now,
	}
}

// Save 保存会话
func (m *MemorySessionStore) Save(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.sessions[s.ID] = &cp
	m.slots[slotKey(s.RoomCode, s.Username)] = s.ID
	return nil
}

// Load 加载会话
func (m *MemorySessionStore) Load(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, errors.New(errors.ErrSessionNotFound)
	}
	if s.expired(m.now()) {
		_ = m.Delete(ctx, id)
		return nil, errors.New(errors.ErrSessionNotFound)
	}
	cp := *s
	return &cp, nil
}

// Delete 删除会话
func (m *MemorySessionStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	delete(m.sessions, id)
	key := slotKey(s.RoomCode, s.Username)
	if m.slots[key] == id {
		delete(m.slots, key)
	}
	return nil
}

// FindBySlot 按房间和用户名查找
func (m *MemorySessionStore) FindBySlot(ctx context.Context, roomCode, username string) (*Session, error) {
	m.mu.RLock()
	id, ok := m.slots[slotKey(roomCode, username)]
	m.mu.RUnlock()

	if !ok {
		return nil, errors.New(errors.ErrSessionNotFound)
	}
	return m.Load(ctx, id)
}

// DeleteRoom 删除房间内全部会话
func (m *MemorySessionStore) DeleteRoom(ctx context.Context, roomCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.sessions {
		if s.RoomCode == roomCode {
			delete(m.sessions, id)
			delete(m.slots, slotKey(s.RoomCode, s.Username))
		}
	}
	return nil
}

// Len 会话数量
func (m *MemorySessionStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// RedisSessionStore Redis会话存储，所有键带TTL，过期由Redis清理
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisSessionStore 创建Redis会话存储
func NewRedisSessionStore(client redis.UniversalClient, prefix string) *RedisSessionStore {
	if prefix == "" {
		prefix = "draw-guess:session:"
	}
	return &RedisSessionStore{client: client, prefix: prefix}
}

func (r *RedisSessionStore) idKey(id string) string {
	return r.prefix + "id:" + id
}

func (r *RedisSessionStore) slotKey(roomCode, username string) string {
	return r.prefix + "slot:" + slotKey(roomCode, username)
}

func (r *RedisSessionStore) roomKey(roomCode string) string {
	return r.prefix + "room:" + roomCode
}

// Save 保存会话
func (r *RedisSessionStore) Save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, errors.ErrSessionStore, "marshal session")
	}

	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return errors.New(errors.ErrTokenExpired)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.idKey(s.ID), data, ttl)
	pipe.Set(ctx, r.slotKey(s.RoomCode, s.Username), s.ID, ttl)
	pipe.SAdd(ctx, r.roomKey(s.RoomCode), s.ID)
	pipe.Expire(ctx, r.roomKey(s.RoomCode), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, errors.ErrSessionStore, "save session")
	}
	return nil
}

// Load 加载会话
func (r *RedisSessionStore) Load(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, r.idKey(id)).Bytes()
	if err == redis.Nil {
		return nil, errors.New(errors.ErrSessionNotFound)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrSessionStore, "load session")
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, errors.ErrSessionStore, "unmarshal session")
	}
	return &s, nil
}

// Delete 删除会话
func (r *RedisSessionStore) Delete(ctx context.Context, id string) error {
	s, err := r.Load(ctx, id)
	if errors.Is(err, errors.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.idKey(id))
	pipe.SRem(ctx, r.roomKey(s.RoomCode), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, errors.ErrSessionStore, "delete session")
	}

	// 槽位可能已经指向新会话
	slot := r.slotKey(s.RoomCode, s.Username)
	if current, err := r.client.Get(ctx, slot).Result(); err == nil && current == id {
		r.client.Del(ctx, slot)
	}
	return nil
}

// FindBySlot 按房间和用户名查找
func (r *RedisSessionStore) FindBySlot(ctx context.Context, roomCode, username string) (*Session, error) {
	id, err := r.client.Get(ctx, r.slotKey(roomCode, username)).Result()
	if err == redis.Nil {
		return nil, errors.New(errors.ErrSessionNotFound)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrSessionStore, "find session")
	}
	return r.Load(ctx, id)
}

// DeleteRoom 删除房间内全部会话
func (r *RedisSessionStore) DeleteRoom(ctx context.Context, roomCode string) error {
	ids, err := r.client.SMembers(ctx, r.roomKey(roomCode)).Result()
	if err != nil && err != redis.Nil {
		return errors.Wrap(err, errors.ErrSessionStore, "list room sessions")
	}

	keys := []string{r.roomKey(roomCode)}
	for _, id := range ids {
		keys = append(keys, r.idKey(id))
		if s, err := r.Load(ctx, id); err == nil {
			keys = append(keys, r.slotKey(s.RoomCode, s.Username))
		}
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, errors.ErrSessionStore, "delete room sessions")
	}
	return nil
}
