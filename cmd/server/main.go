package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/wfunc/draw-guess/internal/api"
	"github.com/wfunc/draw-guess/internal/config"
	"github.com/wfunc/draw-guess/internal/database"
	"github.com/wfunc/draw-guess/internal/errors"
	"github.com/wfunc/draw-guess/internal/game"
	"github.com/wfunc/draw-guess/internal/logger"
	"github.com/wfunc/draw-guess/internal/repository"
	"github.com/wfunc/draw-guess/internal/utils"
	"github.com/wfunc/draw-guess/internal/websocket"
	"github.com/wfunc/draw-guess/internal/words"
	"go.uber.org/zap"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	words    *words.Bank
	matches  repository.MatchRepository
	redis    *redis.Client
	sessions *game.SessionReconnector
	hub      *websocket.Hub
	game     *game.Service
	http     *http.Server

	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	var (
		configPath  = flag.String("config", os.Getenv("DRAW_GUESS_CONFIG"), "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
	)
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}
	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	printStartInfo(cfg)

	server := NewServer(cfg)
	if err := server.Start(); err != nil {
		logger.Fatal("服务器启动失败", zap.Error(err))
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("服务器已安全关闭")
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		logger: logger.GetLogger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 初始化组件并开始监听
func (s *Server) Start() error {
	s.logger.Info("正在启动你画我猜服务器...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode),
	)

	if err := s.initComponents(); err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "初始化组件失败")
	}
	if err := s.startServices(); err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "启动服务失败")
	}

	config.Watch(func(newCfg *config.Config) {
		s.logger.Info("配置已更新，正在重新加载...")
		s.reloadConfig(newCfg)
	})

	s.logger.Info("服务器启动成功",
		zap.String("http", s.http.Addr),
		zap.String("websocket", s.cfg.WebSocket.Path),
	)
	return nil
}

// initComponents 初始化组件
func (s *Server) initComponents() error {
	s.logger.Info("初始化组件...")

	if err := s.initWords(); err != nil {
		return err
	}
	if err := s.initDatabase(); err != nil {
		return err
	}
	if err := s.initSessions(); err != nil {
		return err
	}

	s.hub = websocket.NewHub(logger.GetModuleLogger("websocket"))

	var recorder game.MatchRecorder
	if s.matches != nil {
		recorder = game.NewRepositoryRecorder(s.matches)
	}
	s.game = game.NewService(&game.ServiceConfig{
		Options:     game.OptionsFromConfig(s.cfg),
		Words:       s.words,
		Sessions:    s.sessions,
		Broadcaster: s.hub,
		Recorder:    recorder,
		Logger:      logger.GetModuleLogger("game"),
	})

	wsHandler := websocket.NewHandler(s.game, s.hub, &s.cfg.WebSocket, s.cfg.Server.CORSOrigins,
		logger.GetModuleLogger("websocket"))

	if s.cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(&api.Dependencies{
		Config:    s.cfg,
		Game:      s.game,
		Sessions:  s.sessions,
		Matches:   s.matches,
		WebSocket: wsHandler,
		Logger:    logger.GetModuleLogger("http"),
	})

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      router.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	s.logger.Info("所有组件初始化完成")
	return nil
}

// initWords 加载词库
func (s *Server) initWords() error {
	if s.cfg.Words.Path == "" {
		s.words = words.Default()
	} else {
		bank, err := words.Load(s.cfg.Words.Path)
		if err != nil {
			return errors.Wrap(err, errors.ErrConfigLoad, "加载词库失败")
		}
		s.words = bank
	}
	s.logger.Info("词库已加载", zap.Int("count", s.words.Len()))
	return nil
}

// initDatabase 初始化对局归档，未启用时跳过
func (s *Server) initDatabase() error {
	if !s.cfg.Database.Enabled {
		s.logger.Info("对局归档未启用")
		return nil
	}
	s.logger.Info("初始化数据库...", zap.String("driver", s.cfg.Database.Driver))

	if err := database.Init(&s.cfg.Database); err != nil {
		return errors.Wrap(err, errors.ErrDatabaseConnect, "初始化数据库连接失败")
	}
	if s.cfg.Database.AutoMigrate {
		s.logger.Info("执行数据库自动迁移...")
		if err := database.AutoMigrate(database.GetDB()); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}
	s.matches = repository.NewMatchRepository(database.GetDB())

	s.logger.Info("数据库初始化完成")
	return nil
}

// initSessions 初始化会话存储与令牌
func (s *Server) initSessions() error {
	var store game.SessionStore
	switch s.cfg.Session.Store {
	case "redis":
		rc := s.cfg.Session.Redis
		s.redis = redis.NewClient(&redis.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		})
		ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseConnect, "连接Redis失败")
		}
		store = game.NewRedisSessionStore(s.redis, rc.Prefix)
		s.logger.Info("会话存储: redis", zap.String("addr", rc.Addr))
	default:
		store = game.NewMemorySessionStore()
		s.logger.Info("会话存储: memory")
	}

	if s.cfg.Session.Secret == "change-me-in-production" && s.cfg.Server.Mode == "production" {
		s.logger.Warn("会话密钥仍为默认值，请通过 DRAW_GUESS_SESSION_SECRET 设置")
	}
	tokens := utils.NewTokenManager(s.cfg.Session.Secret, s.cfg.Session.TTL)
	s.sessions = game.NewSessionReconnector(store, tokens, logger.GetModuleLogger("session"))
	return nil
}

// startServices 启动服务
func (s *Server) startServices() error {
	s.logger.Info("启动服务...")

	go s.hub.Run()

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 端口占用等错误会立即返回
	select {
	case err := <-errCh:
		return err
	case <-time.After(200 * time.Millisecond):
	}

	go func() {
		select {
		case err := <-errCh:
			s.logger.Error("HTTP服务异常退出", zap.Error(err))
			s.cancel()
		case <-s.ctx.Done():
		}
	}()

	s.logger.Info("所有服务启动完成")
	return nil
}

// WaitForShutdown 等待退出信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case sig := <-sigCh:
		s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
	case <-s.ctx.Done():
		s.logger.Warn("服务已停止，准备退出")
	}
}

// Shutdown 优雅关闭
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")
	s.cancel()

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("停止接收新请求...")
	var firstErr error
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Warn("HTTP关闭超时，强制退出", zap.Error(err))
		firstErr = err
	}

	if err := s.closeComponents(); err != nil {
		s.logger.Error("关闭组件失败", zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}

	if err := logger.Sync(); err != nil {
		fmt.Printf("同步日志失败: %v\n", err)
	}
	return firstErr
}

// closeComponents 关闭组件
func (s *Server) closeComponents() error {
	s.logger.Info("关闭组件...")

	// 先断开连接，再停计时器，归档最后关
	s.hub.Stop()
	s.game.Shutdown()

	var firstErr error
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("关闭Redis失败", zap.Error(err))
			firstErr = err
		}
	}
	if database.IsConnected() {
		if err := database.Close(); err != nil {
			s.logger.Error("关闭数据库失败", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	s.logger.Info("所有组件已关闭")
	return firstErr
}

// reloadConfig 热更新日志级别和游戏参数，已在进行中的回合不受影响
func (s *Server) reloadConfig(newCfg *config.Config) {
	logger.SetLevel(newCfg.Log.Level)
	s.game.SetOptions(game.OptionsFromConfig(newCfg))
	s.logger.Info("配置重新加载完成",
		zap.String("log_level", newCfg.Log.Level),
		zap.Int("round_time", newCfg.Game.RoundTime),
		zap.Int("max_rounds", newCfg.Game.MaxRounds),
	)
}

func printVersion() {
	fmt.Printf("你画我猜游戏服务器\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func printHelp() {
	fmt.Println("你画我猜游戏服务器")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  draw-guess-server [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  DRAW_GUESS_CONFIG             配置文件路径")
	fmt.Println("  DRAW_GUESS_SERVER_PORT        监听端口")
	fmt.Println("  DRAW_GUESS_SESSION_SECRET     会话令牌签名密钥")
	fmt.Println("  DRAW_GUESS_SESSION_STORE      会话存储 (memory/redis)")
	fmt.Println("  DRAW_GUESS_DATABASE_ENABLED   启用对局归档")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  draw-guess-server -config=/path/to/config.yaml")
	fmt.Println("  draw-guess-server -version")
}

func printStartInfo(cfg *config.Config) {
	fmt.Println("========================================")
	fmt.Println("          你画我猜游戏服务器")
	fmt.Println("========================================")
	fmt.Printf("版本:     %s\n", Version)
	fmt.Printf("模式:     %s\n", cfg.Server.Mode)
	fmt.Printf("HTTP:     %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("WS路径:   %s\n", cfg.WebSocket.Path)
	fmt.Printf("会话存储: %s\n", cfg.Session.Store)
	fmt.Printf("对局归档: %v\n", cfg.Database.Enabled)
	fmt.Printf("日志级别: %s\n", cfg.Log.Level)
	fmt.Println("========================================")
}
