package game

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/draw-guess/internal/errors"
	"github.com/wfunc/draw-guess/internal/utils"
	"go.uber.org/zap"
)

// SessionReconnector 签发和解析重连令牌。每个 (房间, 用户名) 同时只有一个有效令牌。
type SessionReconnector struct {
	store  SessionStore
	tokens *utils.TokenManager
	logger *zap.Logger
}

// NewSessionReconnector 创建重连管理器
func NewSessionReconnector(store SessionStore, tokens *utils.TokenManager, logger *zap.Logger) *SessionReconnector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionReconnector{store: store, tokens: tokens, logger: logger}
}

// Issue 为玩家签发令牌并保存，同一槽位的旧令牌随之失效
func (r *SessionReconnector) Issue(ctx context.Context, roomCode, username, playerID, playerKey string) (string, error) {
	token, s, err := r.Mint(roomCode, username, playerID, playerKey)
	if err != nil {
		return "", err
	}
	if err := r.Commit(ctx, s); err != nil {
		return "", err
	}
	return token, nil
}

// Mint 只签名不落库，可在房间锁内调用
func (r *SessionReconnector) Mint(roomCode, username, playerID, playerKey string) (string, *Session, error) {
	id := uuid.NewString()
	token, expiresAt, err := r.tokens.Generate(id, roomCode, username, playerKey)
	if err != nil {
		return "", nil, errors.Wrap(err, errors.ErrInternal, "sign session token")
	}
	return token, &Session{
		ID:        id,
		RoomCode:  roomCode,
		Username:  username,
		PlayerID:  playerID,
		PlayerKey: playerKey,
		IssuedAt:  time.Now(),
		ExpiresAt: expiresAt,
	}, nil
}

// Commit 撤销槽位上的旧会话并保存新会话
func (r *SessionReconnector) Commit(ctx context.Context, s *Session) error {
	if old, err := r.store.FindBySlot(ctx, s.RoomCode, s.Username); err == nil && old.ID != s.ID {
		if err := r.store.Delete(ctx, old.ID); err != nil {
			return err
		}
	}
	if err := r.store.Save(ctx, s); err != nil {
		return err
	}

	r.logger.Debug("签发会话令牌",
		zap.String("room", s.RoomCode),
		zap.String("username", s.Username),
		zap.String("session_id", s.ID))
	return nil
}

// Resolve 解析令牌。签名错误或过期返回授权错误，已撤销返回未找到
func (r *SessionReconnector) Resolve(ctx context.Context, token string) (*Session, error) {
	claims, err := r.tokens.Validate(token)
	switch {
	case err == utils.ErrExpiredToken:
		return nil, errors.New(errors.ErrTokenExpired)
	case err != nil:
		return nil, errors.New(errors.ErrTokenInvalid)
	}

	s, err := r.store.Load(ctx, claims.SessionID())
	if err != nil {
		return nil, err
	}
	if s.RoomCode != claims.RoomCode || !sameName(s.Username, claims.Username) {
		return nil, errors.New(errors.ErrTokenInvalid)
	}
	return s, nil
}

// Rebind 重连后把会话绑定到新连接
func (r *SessionReconnector) Rebind(ctx context.Context, s *Session, newPlayerID string) error {
	s.PlayerID = newPlayerID
	return r.store.Save(ctx, s)
}

// Revoke 撤销令牌对应的会话
func (r *SessionReconnector) Revoke(ctx context.Context, token string) error {
	claims, err := r.tokens.Validate(token)
	if err != nil {
		return nil
	}
	return r.store.Delete(ctx, claims.SessionID())
}

// RevokeSession 按会话ID撤销，会话不存在时不报错
func (r *SessionReconnector) RevokeSession(ctx context.Context, id string) error {
	return r.store.Delete(ctx, id)
}

// RevokeRoom 撤销房间内全部会话
func (r *SessionReconnector) RevokeRoom(ctx context.Context, roomCode string) error {
	return r.store.DeleteRoom(ctx, roomCode)
}

// Lookup 按槽位查询会话
func (r *SessionReconnector) Lookup(ctx context.Context, roomCode, username string) (*Session, error) {
	return r.store.FindBySlot(ctx, roomCode, username)
}
