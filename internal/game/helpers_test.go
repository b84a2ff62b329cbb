package game

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wfunc/draw-guess/internal/utils"
	"go.uber.org/zap"
)

// delivery 一条送达某个连接的消息
type delivery struct {
	Conn    string
	Event   string
	Payload any
}

// recordingBus 记录所有送达消息的广播组
type recordingBus struct {
	mu         sync.Mutex
	groups     map[string]map[string]bool
	deliveries []delivery
	failing    map[string]bool
}

func newRecordingBus() *recordingBus {
	return &recordingBus{
		groups:  make(map[string]map[string]bool),
		failing: make(map[string]bool),
	}
}

func (b *recordingBus) Join(roomCode, connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.groups[roomCode] == nil {
		b.groups[roomCode] = make(map[string]bool)
	}
	b.groups[roomCode][connID] = true
}

func (b *recordingBus) Leave(roomCode, connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.groups[roomCode], connID)
}

func (b *recordingBus) Send(connID, event string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing[connID] {
		return fmt.Errorf("connection %s unavailable", connID)
	}
	b.deliveries = append(b.deliveries, delivery{Conn: connID, Event: event, Payload: payload})
	return nil
}

func (b *recordingBus) Broadcast(roomCode, event string, payload any) {
	b.BroadcastExcept(roomCode, "", event, payload)
}

func (b *recordingBus) BroadcastExcept(roomCode, except, event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.groups[roomCode] {
		if conn == except {
			continue
		}
		b.deliveries = append(b.deliveries, delivery{Conn: conn, Event: event, Payload: payload})
	}
}

func (b *recordingBus) setFailing(connID string, failing bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failing[connID] = failing
}

// received 某连接收到的某类事件
func (b *recordingBus) received(connID, event string) []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []any
	for _, d := range b.deliveries {
		if d.Conn == connID && d.Event == event {
			out = append(out, d.Payload)
		}
	}
	return out
}

func (b *recordingBus) last(connID, event string) any {
	got := b.received(connID, event)
	if len(got) == 0 {
		return nil
	}
	return got[len(got)-1]
}

// count 某类事件的送达总数
func (b *recordingBus) count(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, d := range b.deliveries {
		if d.Event == event {
			n++
		}
	}
	return n
}

func (b *recordingBus) members(roomCode string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.groups[roomCode])
}

// testOptions 计时器足够慢，不会干扰同步断言
func testOptions() Options {
	opts := DefaultOptions()
	opts.TickInterval = time.Hour
	opts.RoundEndDelay = time.Hour
	opts.GracePeriod = time.Hour
	opts.OfferRetry = 10 * time.Millisecond
	opts.StrokeInterval = 0
	return opts
}

func newTestService(t *testing.T, opts Options) (*Service, *recordingBus) {
	t.Helper()
	bus := newRecordingBus()
	sessions := NewSessionReconnector(
		NewMemorySessionStore(),
		utils.NewTokenManager("test-secret", time.Hour),
		zap.NewNop(),
	)
	svc := NewService(&ServiceConfig{
		Options:     opts,
		Sessions:    sessions,
		Broadcaster: bus,
		Logger:      zap.NewNop(),
	})
	svc.pickArtist = func(int) int { return 0 }
	t.Cleanup(svc.Shutdown)
	return svc, bus
}

// newLobby 创建房间并让 names[1:] 依次加入，连接ID为 c0, c1 ...
func newLobby(t *testing.T, svc *Service, names ...string) *Room {
	t.Helper()
	ctx := context.Background()
	room, err := svc.CreateRoom(ctx, "c0", names[0])
	require.NoError(t, err)
	for i, name := range names[1:] {
		_, err := svc.JoinRoom(ctx, fmt.Sprintf("c%d", i+1), room.Code(), name)
		require.NoError(t, err)
	}
	return room
}

// inspect 在房间锁内读取状态
func inspect[T any](room *Room, fn func() T) T {
	room.mu.Lock()
	defer room.mu.Unlock()
	return fn()
}

func artistConn(room *Room) string {
	return inspect(room, func() string {
		if a := room.artist(); a != nil {
			return a.ID
		}
		return ""
	})
}

func playerNamed(room *Room, name string) Player {
	return inspect(room, func() Player {
		p := room.playerByUsername(name)
		if p == nil {
			return Player{}
		}
		return *p
	})
}

// startDrawing 开始游戏并让画手选第一个候选词，返回目标词
func startDrawing(t *testing.T, svc *Service, room *Room) string {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, svc.StartGame(ctx, "c0", nil))
	return selectFirstCandidate(t, svc, room)
}

func selectFirstCandidate(t *testing.T, svc *Service, room *Room) string {
	t.Helper()
	word := inspect(room, func() string { return room.round.Candidates[0] })
	require.NoError(t, svc.SelectWord(context.Background(), artistConn(room), word))
	return word
}

// forceNextRound 立即结束当前回合并进入下一回合
func forceNextRound(svc *Service, room *Room) {
	_ = svc.withRoom(room, "test_next", func() error {
		if room.machine.Phase() != PhaseRoundEnd {
			svc.endRound(room)
		}
		room.pending.Cancel()
		room.pending = nil
		svc.nextRound(room)
		return nil
	})
}

func intPtr(v int) *int { return &v }
