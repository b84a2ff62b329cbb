package game

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Room 一个游戏房间。除 code 和 createdAt 外的字段都由 mu 保护。
type Room struct {
	mu        sync.Mutex
	code      string
	createdAt time.Time

	players  []*Player
	host     string // 房主的玩家Key
	settings Settings

	machine *RoundMachine
	round   *RoundState
	ring    *artistRing
	relay   *StrokeRelay

	timer   *RoundTimer
	pending *Task            // 回合结束后的下一回合任务
	offer   *Task            // 选词推送重试
	grace   map[string]*Task // 断线玩家的延迟移除

	closed bool
	after  []func()
}

func newRoom(code string, settings Settings, relay *StrokeRelay, logger *zap.Logger) *Room {
	r := &Room{
		code:      code,
		createdAt: time.Now(),
		settings:  settings,
		machine:   NewRoundMachine(code, logger),
		relay:     relay,
		grace:     make(map[string]*Task),
	}
	r.machine.OnPhaseChange(func(from, to Phase, event string) {
		logger.Info("阶段变更",
			zap.String("room", code),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.String("event", event))
	})
	return r
}

// Code 房间号
func (r *Room) Code() string {
	return r.code
}

// CreatedAt 创建时间
func (r *Room) CreatedAt() time.Time {
	return r.createdAt
}

// Snapshot 公开快照，不含目标词和候选词
func (r *Room) Snapshot() RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state(nil)
}

// SnapshotFor 指定玩家视角的快照
func (r *Room) SnapshotFor(username string) (RoomState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.playerByUsername(username)
	if p == nil {
		return RoomState{}, false
	}
	return r.state(p), true
}

// PlayerCount 玩家数量
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// Phase 当前阶段
func (r *Room) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.machine.Phase()
}

// 以下方法要求调用方持有 mu

func (r *Room) deferAfter(fn func()) {
	r.after = append(r.after, fn)
}

func (r *Room) takeAfter() []func() {
	fns := r.after
	r.after = nil
	return fns
}

func (r *Room) artist() *Player {
	if r.round == nil || r.ring == nil {
		return nil
	}
	return r.playerByKey(r.ring.Current())
}

func (r *Room) isArtist(p *Player) bool {
	a := r.artist()
	return a != nil && p != nil && a.Key == p.Key
}

// artistIndex 画手在当前玩家列表中的下标，画手已离开返回 -1
func (r *Room) artistIndex() int {
	a := r.artist()
	if a == nil {
		return -1
	}
	return r.indexOfKey(a.Key)
}

func (r *Room) indexOfKey(key string) int {
	for i, p := range r.players {
		if p.Key == key {
			return i
		}
	}
	return -1
}

func (r *Room) playerByKey(key string) *Player {
	if key == "" {
		return nil
	}
	if i := r.indexOfKey(key); i >= 0 {
		return r.players[i]
	}
	return nil
}

func (r *Room) playerByID(id string) *Player {
	for _, p := range r.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *Room) playerByUsername(name string) *Player {
	for _, p := range r.players {
		if sameName(p.Username, name) {
			return p
		}
	}
	return nil
}

func (r *Room) hostPlayer() *Player {
	return r.playerByKey(r.host)
}

func (r *Room) isHost(p *Player) bool {
	return p != nil && p.Key == r.host
}

func (r *Room) playerKeys() []string {
	keys := make([]string, len(r.players))
	for i, p := range r.players {
		keys[i] = p.Key
	}
	return keys
}

// allGuessed 除画手外的玩家是否全部猜中
func (r *Room) allGuessed() bool {
	artist := r.artist()
	guessers := 0
	for _, p := range r.players {
		if artist != nil && p.Key == artist.Key {
			continue
		}
		if !p.HasGuessed {
			return false
		}
		guessers++
	}
	return guessers > 0
}

func (r *Room) resetRoundFlags() {
	for _, p := range r.players {
		p.HasGuessed = false
	}
}

func (r *Room) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Room) cancelTasks() {
	r.pending.Cancel()
	r.pending = nil
	r.offer.Cancel()
	r.offer = nil
}

func (r *Room) cancelGrace(key string) {
	if t, ok := r.grace[key]; ok {
		t.Cancel()
		delete(r.grace, key)
	}
}

// teardown 关闭房间并停止全部计时任务
func (r *Room) teardown() {
	r.closed = true
	r.stopTimer()
	r.cancelTasks()
	for key := range r.grace {
		r.cancelGrace(key)
	}
}

func (r *Room) playerViews() []PlayerView {
	views := make([]PlayerView, len(r.players))
	for i, p := range r.players {
		views[i] = PlayerView{
			ID:         p.ID,
			Username:   p.Username,
			Score:      p.Score,
			HasGuessed: p.HasGuessed,
			Streak:     p.Streak,
			Connected:  p.Connected,
			IsHost:     r.isHost(p),
		}
	}
	return views
}

func scoreLines(players []*Player) []ScoreLine {
	lines := make([]ScoreLine, len(players))
	for i, p := range players {
		lines[i] = ScoreLine{
			Username:   p.Username,
			Score:      p.Score,
			HasGuessed: p.HasGuessed,
			Streak:     p.Streak,
		}
	}
	return lines
}

func (r *Room) state(viewer *Player) RoomState {
	st := RoomState{
		RoomCode: r.code,
		Phase:    r.machine.Phase(),
		Players:  r.playerViews(),
		Settings: r.settings,
		Round:    r.roundView(viewer),
	}
	if h := r.hostPlayer(); h != nil {
		st.HostID = h.ID
	}
	if viewer != nil {
		st.Username = viewer.Username
		st.PlayerID = viewer.ID
	}
	return st
}

// roundView 按观察者裁剪回合信息：只有画手能看到目标词和候选词
func (r *Room) roundView(viewer *Player) *RoundView {
	if r.round == nil {
		return nil
	}
	rs := r.round
	v := &RoundView{
		CurrentRound: rs.CurrentRound,
		MaxRounds:    rs.MaxRounds,
		ArtistIndex:  r.artistIndex(),
		WordLength:   len([]rune(rs.TargetWord)),
		TimeLeft:     rs.TimeLeft,
		Strokes:      r.relay.Replay(),
	}
	if a := r.artist(); a != nil {
		v.ArtistID = a.ID
		v.Artist = a.Username
	}
	if rs.TargetWord != "" {
		v.Pattern = rs.hints.Pattern()
	}
	if viewer != nil {
		v.HasGuessed = viewer.HasGuessed
		if r.isArtist(viewer) {
			v.Word = rs.TargetWord
			if rs.TargetWord == "" {
				v.Candidates = append([]string(nil), rs.Candidates...)
			}
		}
	}
	return v
}
