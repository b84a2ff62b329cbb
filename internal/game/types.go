package game

import (
	"strings"
	"time"

	"github.com/wfunc/draw-guess/internal/errors"
)

// Settings 房间设置
type Settings struct {
	RoundTime    int  `json:"roundTime"`
	MaxRounds    int  `json:"maxRounds"`
	MaxPlayers   int  `json:"maxPlayers"`
	HintsEnabled bool `json:"hintsEnabled"`
}

// 设置取值范围
const (
	MinRoundTime  = 30
	MaxRoundTime  = 180
	MinMaxRounds  = 1
	MaxMaxRounds  = 10
	MinMaxPlayers = 2
	MaxMaxPlayers = 12
)

// DefaultSettings 新房间的默认设置
func DefaultSettings() Settings {
	return Settings{RoundTime: 90, MaxRounds: 3, MaxPlayers: 8, HintsEnabled: true}
}

// Validate 校验设置范围
func (s Settings) Validate() error {
	if s.RoundTime < MinRoundTime || s.RoundTime > MaxRoundTime {
		return errors.New(errors.ErrInvalidSettings).WithMessage("Round time must be between 30 and 180 seconds")
	}
	if s.MaxRounds < MinMaxRounds || s.MaxRounds > MaxMaxRounds {
		return errors.New(errors.ErrInvalidSettings).WithMessage("Max rounds must be between 1 and 10")
	}
	if s.MaxPlayers < MinMaxPlayers || s.MaxPlayers > MaxMaxPlayers {
		return errors.New(errors.ErrInvalidSettings).WithMessage("Max players must be between 2 and 12")
	}
	return nil
}

// SettingsPatch 部分更新的设置，nil 字段保持原值
type SettingsPatch struct {
	RoundTime    *int  `json:"roundTime,omitempty"`
	MaxRounds    *int  `json:"maxRounds,omitempty"`
	MaxPlayers   *int  `json:"maxPlayers,omitempty"`
	HintsEnabled *bool `json:"hintsEnabled,omitempty"`
}

// Apply 在 base 上应用修改
func (p *SettingsPatch) Apply(base Settings) Settings {
	if p == nil {
		return base
	}
	if p.RoundTime != nil {
		base.RoundTime = *p.RoundTime
	}
	if p.MaxRounds != nil {
		base.MaxRounds = *p.MaxRounds
	}
	if p.MaxPlayers != nil {
		base.MaxPlayers = *p.MaxPlayers
	}
	if p.HintsEnabled != nil {
		base.HintsEnabled = *p.HintsEnabled
	}
	return base
}

// Empty 没有任何字段
func (p *SettingsPatch) Empty() bool {
	return p == nil || (p.RoundTime == nil && p.MaxRounds == nil && p.MaxPlayers == nil && p.HintsEnabled == nil)
}

// Player 房间内的玩家
type Player struct {
	ID         string // 当前连接ID，重连后会变化
	Key        string // 房间内稳定身份
	Username   string
	Score      int
	HasGuessed bool
	Streak     int
	Connected  bool
	JoinedAt   time.Time
	SessionID  string // 最近一次签发的会话，离开时按它撤销
}

// RoundState 一局游戏的回合数据，大厅阶段为nil
type RoundState struct {
	CurrentRound int
	MaxRounds    int
	TargetWord   string
	Candidates   []string
	UsedWords    []string
	StartTime    time.Time
	TimeLeft     int
	StartedAt    time.Time

	artistName string
	hints      *hintReveal
}

// PlayerView 下发给客户端的玩家信息
type PlayerView struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Score      int    `json:"score"`
	HasGuessed bool   `json:"hasGuessed"`
	Streak     int    `json:"streak"`
	Connected  bool   `json:"connected"`
	IsHost     bool   `json:"isHost"`
}

// ScoreLine 回合结束/游戏结束时的分数条目
type ScoreLine struct {
	Username   string `json:"username"`
	Score      int    `json:"score"`
	HasGuessed bool   `json:"hasGuessed"`
	Streak     int    `json:"streak"`
}

// RoundView 回合快照，按观察者裁剪
type RoundView struct {
	CurrentRound int      `json:"currentRound"`
	MaxRounds    int      `json:"maxRounds"`
	ArtistIndex  int      `json:"currentDrawer"`
	ArtistID     string   `json:"drawerId"`
	Artist       string   `json:"drawer"`
	WordLength   int      `json:"wordLength"`
	Pattern      string   `json:"pattern,omitempty"`
	Word         string   `json:"word,omitempty"`
	Candidates   []string `json:"words,omitempty"`
	TimeLeft     int      `json:"timeLeft"`
	HasGuessed   bool     `json:"hasGuessed"`
	Strokes      []Stroke `json:"strokes"`
}

// RoomState 房间完整快照
type RoomState struct {
	RoomCode string       `json:"roomCode"`
	Phase    Phase        `json:"phase"`
	Players  []PlayerView `json:"players"`
	HostID   string       `json:"hostId"`
	Settings Settings     `json:"settings"`
	Round    *RoundView   `json:"gameState"`
	Username string       `json:"username,omitempty"`
	PlayerID string       `json:"playerId,omitempty"`
}

func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
