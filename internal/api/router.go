package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/wfunc/draw-guess/internal/config"
	"github.com/wfunc/draw-guess/internal/errors"
	"github.com/wfunc/draw-guess/internal/game"
	"github.com/wfunc/draw-guess/internal/middleware"
	"github.com/wfunc/draw-guess/internal/repository"
	"github.com/wfunc/draw-guess/internal/websocket"
	"go.uber.org/zap"
)

// Dependencies 路由依赖
type Dependencies struct {
	Config    *config.Config
	Game      *game.Service
	Sessions  middleware.SessionResolver
	Matches   repository.MatchRepository // 为nil时历史接口返回503
	WebSocket *websocket.Handler
	Logger    *zap.Logger
}

// Router API路由器
type Router struct {
	engine *gin.Engine
	cfg    *config.Config

	rooms   *RoomHandler
	matches *MatchHandler
	ws      *websocket.Handler
	auth    *middleware.AuthMiddleware

	log *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(deps *Dependencies) *Router {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger(log))
	engine.Use(cors.New(corsConfig(cfg.Server.CORSOrigins)))

	r := &Router{
		engine:  engine,
		cfg:     cfg,
		rooms:   NewRoomHandler(deps.Game),
		matches: NewMatchHandler(deps.Matches, log),
		ws:      deps.WebSocket,
		auth:    middleware.NewAuthMiddleware(deps.Sessions),
		log:     log,
	}
	r.setupRoutes()
	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Session-Token"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	return c
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.healthCheck)
	r.engine.GET("/", r.healthCheck)

	v1 := r.engine.Group("/api/v1")
	{
		v1.GET("/words", r.rooms.Words)
		v1.GET("/rooms/:code", r.rooms.Room)
		v1.GET("/session", r.auth.RequireSession(), r.rooms.Session)

		matches := v1.Group("/matches")
		matches.Use(r.matches.requireArchive)
		{
			matches.GET("", r.matches.List)
			matches.GET("/:id", r.matches.Get)
		}
	}

	if r.ws != nil {
		path := r.cfg.WebSocket.Path
		if path == "" {
			path = "/ws"
		}
		r.engine.GET(path, r.ws.HandleWebSocket)
	}

	registerOpenAPIRoutes(r.engine)
	registerSwaggerRoutes(r.engine)

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    errors.ErrNotFound,
			Message: "Not found",
		})
	})
}

// healthCheck 存活探针
func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "draw-guess",
		"rooms":   len(r.rooms.svc.Registry().Rooms()),
	})
}

// Handler 返回 http.Handler
func (r *Router) Handler() http.Handler {
	return r.engine
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
