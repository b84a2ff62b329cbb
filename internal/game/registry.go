package game

import (
	"crypto/rand"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/wfunc/draw-guess/internal/errors"
	"go.uber.org/zap"
)

const (
	roomCodeLength  = 6
	roomCodeLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	maxCodeAttempts = 100
)

// Registry 房间注册表。锁顺序：先房间锁，后注册表锁。
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	conns map[string]string // 连接ID -> 房间号

	strokeInterval time.Duration
	strokeBurst    int
	logger         *zap.Logger
	genCode        func() (string, error)
}

// NewRegistry 创建房间注册表
func NewRegistry(strokeInterval time.Duration, strokeBurst int, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		rooms:          make(map[string]*Room),
		conns:          make(map[string]string),
		strokeInterval: strokeInterval,
		strokeBurst:    strokeBurst,
		logger:         logger,
		genCode:        randomRoomCode,
	}
}

func randomRoomCode() (string, error) {
	limit := big.NewInt(int64(len(roomCodeLetters)))
	b := make([]byte, roomCodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = roomCodeLetters[n.Int64()]
	}
	return string(b), nil
}

// CreateRoom 创建房间，player 成为房主
func (g *Registry) CreateRoom(player *Player, settings Settings) (*Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var code string
	for attempt := 0; ; attempt++ {
		if attempt == maxCodeAttempts {
			return nil, errors.New(errors.ErrInternal, "room code space exhausted")
		}
		c, err := g.genCode()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrInternal, "generate room code")
		}
		if _, taken := g.rooms[c]; !taken {
			code = c
			break
		}
	}

	room := newRoom(code, settings, NewStrokeRelay(g.strokeInterval, g.strokeBurst), g.logger)
	room.players = []*Player{player}
	room.host = player.Key
	g.rooms[code] = room
	g.conns[player.ID] = code

	g.logger.Info("房间已创建",
		zap.String("room", code),
		zap.String("host", player.Username))
	return room, nil
}

// LookupByConn 按连接ID查找房间
func (g *Registry) LookupByConn(connID string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	code, ok := g.conns[connID]
	if !ok {
		return nil, false
	}
	room, ok := g.rooms[code]
	return room, ok
}

// GetRoom 按房间号查找
func (g *Registry) GetRoom(code string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	room, ok := g.rooms[code]
	return room, ok
}

// Rooms 全部房间，按房间号排序
func (g *Registry) Rooms() []*Room {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].code < rooms[j].code })
	return rooms
}

// Count 房间数量
func (g *Registry) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// 以下方法要求调用方持有房间锁

// admit 校验并加入玩家
func (g *Registry) admit(room *Room, player *Player) error {
	switch {
	case room.closed:
		return errors.New(errors.ErrRoomNotFound)
	case room.machine.InGame():
		return errors.New(errors.ErrGameInProgress)
	case len(room.players) >= room.settings.MaxPlayers:
		return errors.New(errors.ErrRoomFull)
	case room.playerByUsername(player.Username) != nil:
		return errors.New(errors.ErrUsernameTaken)
	}

	room.players = append(room.players, player)
	g.bind(player.ID, room.code)
	return nil
}

// removal 一次移除的结果
type removal struct {
	player      *Player
	empty       bool
	hostChanged bool
}

// remove 移除玩家，房主离开时转给加入最早的玩家，房间清空时销毁
func (g *Registry) remove(room *Room, key string) removal {
	i := room.indexOfKey(key)
	if i < 0 {
		return removal{}
	}
	p := room.players[i]
	room.players = append(room.players[:i], room.players[i+1:]...)
	g.unbind(p.ID, room.code)
	room.cancelGrace(key)
	room.ring.Remove(key)

	res := removal{player: p}
	if len(room.players) == 0 {
		res.empty = true
		room.teardown()
		g.delete(room.code)
		return res
	}
	if room.host == key {
		room.host = room.players[0].Key
		res.hostChanged = true
	}
	return res
}

func (g *Registry) bind(connID, code string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.conns[connID] = code
}

// unbind 仅当连接仍指向该房间时解绑
func (g *Registry) unbind(connID, code string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conns[connID] == code {
		delete(g.conns, connID)
	}
}

func (g *Registry) rebind(oldID, newID, code string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conns[oldID] == code {
		delete(g.conns, oldID)
	}
	g.conns[newID] = code
}

func (g *Registry) delete(code string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rooms, code)
	for conn, c := range g.conns {
		if c == code {
			delete(g.conns, conn)
		}
	}
	g.logger.Info("房间已销毁", zap.String("room", code))
}
