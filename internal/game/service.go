package game

import (
	"context"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/draw-guess/internal/config"
	"github.com/wfunc/draw-guess/internal/errors"
	"github.com/wfunc/draw-guess/internal/logger"
	"github.com/wfunc/draw-guess/internal/words"
	"go.uber.org/zap"
)

// Options 房间与回合参数
type Options struct {
	Defaults       Settings
	MinPlayers     int
	WordChoices    int
	RoundEndDelay  time.Duration
	TickInterval   time.Duration
	StrokeInterval time.Duration
	StrokeBurst    int
	MaxGuessLength int
	GracePeriod    time.Duration
	OfferRetry     time.Duration
	StoreTimeout   time.Duration
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		Defaults:       DefaultSettings(),
		MinPlayers:     2,
		WordChoices:    3,
		RoundEndDelay:  5 * time.Second,
		TickInterval:   time.Second,
		StrokeInterval: 10 * time.Millisecond,
		StrokeBurst:    20,
		MaxGuessLength: 100,
		GracePeriod:    30 * time.Second,
		OfferRetry:     100 * time.Millisecond,
		StoreTimeout:   5 * time.Second,
	}
}

// OptionsFromConfig 从配置构建参数
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	opts.Defaults = Settings{
		RoundTime:    cfg.Game.RoundTime,
		MaxRounds:    cfg.Game.MaxRounds,
		MaxPlayers:   cfg.Game.MaxPlayers,
		HintsEnabled: cfg.Game.HintsEnabled,
	}
	opts.MinPlayers = cfg.Game.MinPlayers
	opts.WordChoices = cfg.Game.WordChoices
	opts.RoundEndDelay = cfg.Game.RoundEndDelay
	opts.TickInterval = cfg.Game.TickInterval
	opts.StrokeInterval = cfg.Game.StrokeInterval
	opts.StrokeBurst = cfg.Game.StrokeBurst
	opts.MaxGuessLength = cfg.Game.MaxGuessLength
	opts.GracePeriod = cfg.Session.GracePeriod
	return opts
}

// ServiceConfig 服务依赖
type ServiceConfig struct {
	Options     Options
	Words       *words.Bank
	Sessions    *SessionReconnector
	Broadcaster Broadcaster
	Recorder    MatchRecorder // 为nil时不归档
	Logger      *zap.Logger
}

// Service 处理全部房间指令。同一房间内的指令、计时回调和延迟任务都在房间锁内串行执行，
// 不同房间互不影响。
type Service struct {
	mu   sync.RWMutex
	opts Options

	registry *Registry
	words    *words.Bank
	scoring  *ScoringEngine
	sessions *SessionReconnector
	bus      Broadcaster
	recorder MatchRecorder
	logger   *zap.Logger

	pickArtist func(n int) int
	now        func() time.Time
}

// NewService 创建服务
func NewService(cfg *ServiceConfig) *Service {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	bank := cfg.Words
	if bank == nil {
		bank = words.Default()
	}
	return &Service{
		opts:       cfg.Options,
		registry:   NewRegistry(cfg.Options.StrokeInterval, cfg.Options.StrokeBurst, log),
		words:      bank,
		scoring:    NewScoringEngine(DefaultScoringConfig()),
		sessions:   cfg.Sessions,
		bus:        cfg.Broadcaster,
		recorder:   cfg.Recorder,
		logger:     log,
		pickArtist: func(n int) int { return rand.Intn(n) },
		now:        time.Now,
	}
}

// Registry 房间注册表
func (s *Service) Registry() *Registry {
	return s.registry
}

// Words 词库
func (s *Service) Words() *words.Bank {
	return s.words
}

// Scoring 计分引擎
func (s *Service) Scoring() *ScoringEngine {
	return s.scoring
}

// Options 当前参数
func (s *Service) Options() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

// SetOptions 热更新参数，只影响之后创建的房间和回合
func (s *Service) SetOptions(opts Options) {
	s.mu.Lock()
	s.opts = opts
	s.mu.Unlock()

	s.registry.mu.Lock()
	s.registry.strokeInterval = opts.StrokeInterval
	s.registry.strokeBurst = opts.StrokeBurst
	s.registry.mu.Unlock()

	s.logger.Info("房间参数已更新",
		zap.Int("round_time", opts.Defaults.RoundTime),
		zap.Int("max_rounds", opts.Defaults.MaxRounds),
		zap.Int("max_players", opts.Defaults.MaxPlayers))
}

// withRoom 在房间锁内执行 fn。fn 中的 panic 会被恢复并转成内部错误，
// 通过 deferAfter 登记的函数在解锁后依次执行。
func (s *Service) withRoom(room *Room, op string, fn func() error) (err error) {
	room.mu.Lock()
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				logger.LogPanic(s.logger, rec, debug.Stack(),
					zap.String("room", room.code),
					zap.String("op", op))
				err = errors.New(errors.ErrPanic, op)
			}
		}()
		if room.closed {
			err = errors.New(errors.ErrRoomNotFound)
			return
		}
		err = fn()
	}()
	after := room.takeAfter()
	room.mu.Unlock()

	for _, f := range after {
		s.runAfter(room.code, op, f)
	}
	return err
}

func (s *Service) runAfter(code, op string, f func()) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.LogPanic(s.logger, rec, debug.Stack(),
				zap.String("room", code),
				zap.String("op", op+".after"))
		}
	}()
	f()
}

// withPlayer 找到连接所在房间，在房间锁内执行 fn
func (s *Service) withPlayer(connID, op string, fn func(room *Room, p *Player) error) error {
	room, ok := s.registry.LookupByConn(connID)
	if !ok {
		return errors.New(errors.ErrNotInRoom)
	}
	return s.withRoom(room, op, func() error {
		p := room.playerByID(connID)
		if p == nil {
			return errors.New(errors.ErrNotInRoom)
		}
		return fn(room, p)
	})
}

func (s *Service) storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.Options().StoreTimeout)
}

// CreateRoom 创建房间，连接已在其他房间时先离开
func (s *Service) CreateRoom(ctx context.Context, connID, username string) (*Room, error) {
	name, err := ValidateUsername(username)
	if err != nil {
		return nil, err
	}
	if _, ok := s.registry.LookupByConn(connID); ok {
		s.LeaveRoom(ctx, connID)
	}

	opts := s.Options()
	player := s.newPlayer(connID, name)
	room, err := s.registry.CreateRoom(player, opts.Defaults)
	if err != nil {
		return nil, err
	}

	err = s.withRoom(room, "create", func() error {
		s.bus.Join(room.code, connID)
		payload := JoinedPayload{RoomState: room.state(player)}
		payload.SessionToken = s.mintToken(room, player)
		return s.bus.Send(connID, EventRoomCreated, payload)
	})
	if err != nil {
		s.logger.Warn("发送房间创建结果失败", zap.String("room", room.code), zap.Error(err))
	}

	logger.LogGameEvent("room_created", room.code, zap.String("host", name))
	return room, nil
}

// JoinRoom 加入房间
func (s *Service) JoinRoom(ctx context.Context, connID, code, username string) (*Room, error) {
	name, err := ValidateUsername(username)
	if err != nil {
		return nil, err
	}
	code, err = NormalizeRoomCode(code)
	if err != nil {
		return nil, err
	}
	if current, ok := s.registry.LookupByConn(connID); ok {
		if current.code == code {
			return nil, errors.New(errors.ErrState).WithMessage("Already in this room")
		}
		s.LeaveRoom(ctx, connID)
	}

	room, ok := s.registry.GetRoom(code)
	if !ok {
		return nil, errors.New(errors.ErrRoomNotFound)
	}

	player := s.newPlayer(connID, name)
	err = s.withRoom(room, "join", func() error {
		if err := s.registry.admit(room, player); err != nil {
			return err
		}
		s.bus.BroadcastExcept(room.code, connID, EventPlayerJoined, PlayersPayload{
			Username: player.Username,
			Players:  room.playerViews(),
		})
		s.bus.Join(room.code, connID)

		payload := JoinedPayload{RoomState: room.state(player)}
		payload.SessionToken = s.mintToken(room, player)
		if err := s.bus.Send(connID, EventRoomJoined, payload); err != nil {
			s.logger.Warn("发送加入结果失败", zap.String("room", room.code), zap.Error(err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.LogGameEvent("player_joined", room.code, zap.String("username", name))
	return room, nil
}

func (s *Service) newPlayer(connID, username string) *Player {
	return &Player{
		ID:        connID,
		Key:       uuid.NewString(),
		Username:  username,
		Connected: true,
		JoinedAt:  s.now(),
	}
}

// mintToken 锁内签名，解锁后落库
func (s *Service) mintToken(room *Room, p *Player) string {
	if s.sessions == nil {
		return ""
	}
	token, sess, err := s.sessions.Mint(room.code, p.Username, p.ID, p.Key)
	if err != nil {
		s.logger.Error("签发会话令牌失败", zap.String("room", room.code), zap.Error(err))
		return ""
	}
	p.SessionID = sess.ID
	room.deferAfter(func() {
		ctx, cancel := s.storeContext()
		defer cancel()
		if err := s.sessions.Commit(ctx, sess); err != nil {
			s.logger.Error("保存会话失败",
				zap.String("room", sess.RoomCode),
				zap.String("username", sess.Username),
				zap.Error(err))
		}
	})
	return token
}

// LeaveRoom 主动离开房间，连接不在房间时不做处理
func (s *Service) LeaveRoom(ctx context.Context, connID string) {
	room, ok := s.registry.LookupByConn(connID)
	if !ok {
		return
	}
	err := s.withRoom(room, "leave", func() error {
		p := room.playerByID(connID)
		if p == nil {
			return nil
		}
		s.removePlayer(room, p)
		return nil
	})
	if err != nil && !errors.Is(err, errors.ErrRoomNotFound) {
		s.logger.Warn("离开房间失败", zap.String("conn", connID), zap.Error(err))
	}
}

// removePlayer 移除玩家并处理房主转移、提前结束回合或整局
func (s *Service) removePlayer(room *Room, p *Player) {
	res := s.registry.remove(room, p.Key)
	if res.player == nil {
		return
	}
	s.bus.Leave(room.code, p.ID)
	s.revokeSession(room, p)
	logger.LogGameEvent("player_left", room.code, zap.String("username", p.Username))

	if res.empty {
		code := room.code
		room.deferAfter(func() {
			if s.sessions == nil {
				return
			}
			ctx, cancel := s.storeContext()
			defer cancel()
			if err := s.sessions.RevokeRoom(ctx, code); err != nil {
				s.logger.Error("清理房间会话失败", zap.String("room", code), zap.Error(err))
			}
		})
		return
	}

	s.bus.Broadcast(room.code, EventPlayerLeft, PlayersPayload{
		Username: p.Username,
		Players:  room.playerViews(),
	})
	if res.hostChanged {
		if h := room.hostPlayer(); h != nil {
			s.bus.Broadcast(room.code, EventHostChanged, HostChangedPayload{HostID: h.ID, Username: h.Username})
		}
	}

	if room.round == nil {
		return
	}
	if len(room.players) < s.Options().MinPlayers {
		s.finishGame(room, true)
		return
	}

	switch room.machine.Phase() {
	case PhaseRoundStart, PhaseDrawing:
		if room.artist() == nil || room.allGuessed() {
			s.endRound(room)
		}
	}
}

// revokeSession 按会话ID撤销，同名玩家重新加入后签发的新会话不受影响
func (s *Service) revokeSession(room *Room, p *Player) {
	if s.sessions == nil || p.SessionID == "" {
		return
	}
	code, username, id := room.code, p.Username, p.SessionID
	room.deferAfter(func() {
		ctx, cancel := s.storeContext()
		defer cancel()
		if err := s.sessions.RevokeSession(ctx, id); err != nil {
			s.logger.Error("撤销会话失败", zap.String("room", code), zap.String("username", username), zap.Error(err))
		}
	})
}

// Disconnect 连接断开：保留玩家位置，宽限期内未重连再移除
func (s *Service) Disconnect(connID string) {
	room, ok := s.registry.LookupByConn(connID)
	if !ok {
		return
	}
	grace := s.Options().GracePeriod

	_ = s.withRoom(room, "disconnect", func() error {
		p := room.playerByID(connID)
		if p == nil {
			return nil
		}
		if grace <= 0 {
			s.removePlayer(room, p)
			return nil
		}

		p.Connected = false
		s.registry.unbind(connID, room.code)
		s.bus.Leave(room.code, connID)
		s.bus.Broadcast(room.code, EventPlayerDisconnected, PlayersPayload{
			Username: p.Username,
			Players:  room.playerViews(),
		})

		key := p.Key
		room.cancelGrace(key)
		room.grace[key] = Schedule(grace, func(t *Task) {
			s.graceExpired(room, key, t)
		})

		s.logger.Info("玩家断线，等待重连",
			zap.String("room", room.code),
			zap.String("username", p.Username),
			zap.Duration("grace", grace))
		return nil
	})
}

func (s *Service) graceExpired(room *Room, key string, t *Task) {
	_ = s.withRoom(room, "grace", func() error {
		if room.grace[key] != t || t.Canceled() {
			return nil
		}
		delete(room.grace, key)
		p := room.playerByKey(key)
		if p == nil || p.Connected {
			return nil
		}
		s.logger.Info("重连宽限期已过，移除玩家",
			zap.String("room", room.code),
			zap.String("username", p.Username))
		s.removePlayer(room, p)
		return nil
	})
}

// Reconnect 用会话令牌恢复玩家：成员、分数和回合状态保持不变，只换连接
func (s *Service) Reconnect(ctx context.Context, connID, token string) (*Room, error) {
	if s.sessions == nil {
		return nil, errors.New(errors.ErrSessionNotFound)
	}
	sess, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	room, ok := s.registry.GetRoom(sess.RoomCode)
	if !ok {
		return nil, errors.New(errors.ErrRoomNotFound)
	}
	if current, ok := s.registry.LookupByConn(connID); ok && current != room {
		s.LeaveRoom(ctx, connID)
	}

	err = s.withRoom(room, "reconnect", func() error {
		p := room.playerByKey(sess.PlayerKey)
		if p == nil || !sameName(p.Username, sess.Username) {
			return errors.New(errors.ErrPlayerNotFound)
		}

		oldID := p.ID
		if oldID != connID {
			s.bus.Leave(room.code, oldID)
		}
		p.ID = connID
		p.Connected = true
		p.SessionID = sess.ID
		s.registry.rebind(oldID, connID, room.code)
		room.cancelGrace(p.Key)
		s.bus.Join(room.code, connID)

		if err := s.bus.Send(connID, EventReconnectSuccess, JoinedPayload{
			RoomState:    room.state(p),
			SessionToken: token,
		}); err != nil {
			s.logger.Warn("发送重连结果失败", zap.String("room", room.code), zap.Error(err))
		}
		s.bus.BroadcastExcept(room.code, connID, EventPlayerReconnected, PlayersPayload{
			Username: p.Username,
			Players:  room.playerViews(),
		})

		room.deferAfter(func() {
			ctx, cancel := s.storeContext()
			defer cancel()
			if err := s.sessions.Rebind(ctx, sess, connID); err != nil {
				s.logger.Error("更新会话连接失败", zap.String("room", sess.RoomCode), zap.Error(err))
			}
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.LogGameEvent("player_reconnected", room.code, zap.String("username", sess.Username))
	return room, nil
}

// UpdateSettings 房主在大厅修改设置
func (s *Service) UpdateSettings(ctx context.Context, connID string, patch *SettingsPatch) error {
	return s.withPlayer(connID, "update_settings", func(room *Room, p *Player) error {
		if !room.isHost(p) {
			return errors.New(errors.ErrNotHost)
		}
		if room.machine.InGame() {
			return errors.New(errors.ErrGameInProgress)
		}
		next := patch.Apply(room.settings)
		if err := next.Validate(); err != nil {
			return err
		}
		if next.MaxPlayers < len(room.players) {
			return errors.New(errors.ErrInvalidSettings).
				WithMessage("Max players cannot be less than current player count")
		}

		room.settings = next
		s.bus.Broadcast(room.code, EventSettingsUpdated, SettingsPayload{Settings: next})
		s.logger.Info("房间设置已更新",
			zap.String("room", room.code),
			zap.Int("round_time", next.RoundTime),
			zap.Int("max_rounds", next.MaxRounds),
			zap.Int("max_players", next.MaxPlayers),
			zap.Bool("hints", next.HintsEnabled))
		return nil
	})
}

// RoomSnapshot 房间公开快照
func (s *Service) RoomSnapshot(code string) (RoomState, error) {
	code, err := NormalizeRoomCode(code)
	if err != nil {
		return RoomState{}, err
	}
	room, ok := s.registry.GetRoom(code)
	if !ok {
		return RoomState{}, errors.New(errors.ErrRoomNotFound)
	}
	return room.Snapshot(), nil
}

// SessionView 令牌持有者视角的房间快照
func (s *Service) SessionView(ctx context.Context, token string) (*Session, RoomState, error) {
	if s.sessions == nil {
		return nil, RoomState{}, errors.New(errors.ErrSessionNotFound)
	}
	sess, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		return nil, RoomState{}, err
	}
	room, ok := s.registry.GetRoom(sess.RoomCode)
	if !ok {
		return nil, RoomState{}, errors.New(errors.ErrRoomNotFound)
	}
	st, ok := room.SnapshotFor(sess.Username)
	if !ok {
		return nil, RoomState{}, errors.New(errors.ErrPlayerNotFound)
	}
	return sess, st, nil
}

// Shutdown 停止所有房间的计时器和延迟任务
func (s *Service) Shutdown() {
	for _, room := range s.registry.Rooms() {
		room.mu.Lock()
		room.teardown()
		room.mu.Unlock()
	}
	s.logger.Info("房间服务已停止", zap.Int("rooms", s.registry.Count()))
}
