package game

import (
	"context"
	"time"

	"github.com/wfunc/draw-guess/internal/models"
	"github.com/wfunc/draw-guess/internal/repository"
)

// MatchSummary 一局结束时的归档数据
type MatchSummary struct {
	RoomCode     string
	RoundsPlayed int
	Settings     Settings
	Forced       bool
	StartedAt    time.Time
	EndedAt      time.Time
	Standings    []ScoreLine // 排行榜顺序
}

// MatchRecorder 对局归档
type MatchRecorder interface {
	RecordMatch(ctx context.Context, summary *MatchSummary) error
}

// RepositoryRecorder 通过仓储把对局写入数据库
type RepositoryRecorder struct {
	repo repository.MatchRepository
}

// NewRepositoryRecorder 创建数据库归档
func NewRepositoryRecorder(repo repository.MatchRepository) *RepositoryRecorder {
	return &RepositoryRecorder{repo: repo}
}

// RecordMatch 写入对局和玩家名次
func (r *RepositoryRecorder) RecordMatch(ctx context.Context, s *MatchSummary) error {
	match := &models.Match{
		RoomCode:     s.RoomCode,
		RoundsPlayed: s.RoundsPlayed,
		MaxRounds:    s.Settings.MaxRounds,
		RoundTime:    s.Settings.RoundTime,
		PlayerCount:  len(s.Standings),
		Forced:       s.Forced,
		StartedAt:    s.StartedAt,
		EndedAt:      s.EndedAt,
	}
	if len(s.Standings) > 0 {
		match.Winner = s.Standings[0].Username
		match.WinnerScore = s.Standings[0].Score
	}
	for i, line := range s.Standings {
		match.Players = append(match.Players, models.MatchPlayer{
			Username: line.Username,
			Score:    line.Score,
			Rank:     i + 1,
			Streak:   line.Streak,
		})
	}
	return r.repo.Create(ctx, match)
}
