package models

import (
	"time"
)

// Match 已结束的对局
type Match struct {
	BaseModel
	RoomCode     string        `gorm:"size:6;not null;index" json:"room_code"`
	RoundsPlayed int           `gorm:"not null" json:"rounds_played"`
	MaxRounds    int           `gorm:"not null" json:"max_rounds"`
	RoundTime    int           `gorm:"not null" json:"round_time"` // 秒
	PlayerCount  int           `gorm:"not null" json:"player_count"`
	Winner       string        `gorm:"size:20" json:"winner"`
	WinnerScore  int           `gorm:"default:0" json:"winner_score"`
	Forced       bool          `gorm:"default:false" json:"forced"` // 人数不足提前结束
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      time.Time     `gorm:"index" json:"ended_at"`
	Players      []MatchPlayer `gorm:"foreignKey:MatchID" json:"players,omitempty"`
}

// MatchPlayer 对局中的玩家成绩
type MatchPlayer struct {
	BaseModel
	MatchID  uint   `gorm:"not null;index" json:"match_id"`
	Username string `gorm:"size:20;not null;index" json:"username"`
	Score    int    `gorm:"not null" json:"score"`
	Rank     int    `gorm:"column:standing;not null" json:"rank"`
	Streak   int    `gorm:"default:0" json:"streak"`
}

// Duration 对局时长
func (m *Match) Duration() time.Duration {
	if m.EndedAt.Before(m.StartedAt) {
		return 0
	}
	return m.EndedAt.Sub(m.StartedAt)
}
