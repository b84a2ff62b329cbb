package middleware

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/draw-guess/internal/errors"
	"github.com/wfunc/draw-guess/internal/game"
)

// 上下文键
const (
	ContextSession = "session"
	ContextToken   = "token"
)

// SessionResolver 校验会话令牌，由 game.SessionReconnector 实现
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*game.Session, error)
}

// AuthMiddleware 会话令牌认证中间件
type AuthMiddleware struct {
	sessions SessionResolver
}

// NewAuthMiddleware 创建认证中间件
func NewAuthMiddleware(sessions SessionResolver) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions}
}

// RequireSession 要求有效的会话令牌
func (m *AuthMiddleware) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			abort(c, errors.New(errors.ErrTokenInvalid).WithMessage("Missing session token"))
			return
		}
		if m.sessions == nil {
			abort(c, errors.New(errors.ErrSessionNotFound))
			return
		}

		sess, err := m.sessions.Resolve(c.Request.Context(), token)
		if err != nil {
			abort(c, err)
			return
		}

		c.Set(ContextSession, sess)
		c.Set(ContextToken, token)
		c.Next()
	}
}

func abort(c *gin.Context, err error) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		appErr = errors.Wrap(err, errors.ErrInternal)
	}
	status := appErr.HTTPStatus()
	if appErr.Category() == errors.CategoryNotFound {
		// 令牌无效和会话不存在对外都是 401
		status = http.StatusUnauthorized
	}
	c.AbortWithStatusJSON(status, gin.H{
		"code":    appErr.Code,
		"message": errors.PublicMessage(appErr),
	})
}

// extractToken 依次从 Authorization 头、X-Session-Token 头取令牌
func extractToken(c *gin.Context) string {
	if bearer := c.GetHeader("Authorization"); bearer != "" {
		parts := strings.SplitN(bearer, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(c.GetHeader("X-Session-Token"))
}

// GetSession 从上下文获取会话
func GetSession(c *gin.Context) (*game.Session, bool) {
	v, ok := c.Get(ContextSession)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*game.Session)
	return sess, ok
}

// GetToken 从上下文获取令牌
func GetToken(c *gin.Context) string {
	return c.GetString(ContextToken)
}
