package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/draw-guess/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB 为测试套件创建内存数据库
func SetupTestDB() *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(err)
	}

	// 内存库每个连接各自独立，固定为单连接
	sqlDB, err := db.DB()
	if err != nil {
		panic(err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.Match{}, &models.MatchPlayer{}); err != nil {
		panic(err)
	}
	return db
}

// CleanupTestDB 关闭测试数据库
func CleanupTestDB(db *gorm.DB) {
	sqlDB, _ := db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}

// TestDB 创建测试数据库，测试结束时自动关闭
func TestDB(t *testing.T) *gorm.DB {
	db := SetupTestDB()
	t.Cleanup(func() { CleanupTestDB(db) })
	return db
}

// CreateTestMatch 构造一局已结束的对局，standings 按名次排列
func CreateTestMatch(roomCode string, endedAt time.Time, standings ...string) *models.Match {
	match := &models.Match{
		RoomCode:     roomCode,
		RoundsPlayed: 3,
		MaxRounds:    3,
		RoundTime:    90,
		PlayerCount:  len(standings),
		StartedAt:    endedAt.Add(-5 * time.Minute),
		EndedAt:      endedAt,
	}
	for i, name := range standings {
		score := (len(standings) - i) * 100
		match.Players = append(match.Players, models.MatchPlayer{
			Username: name,
			Score:    score,
			Rank:     i + 1,
		})
	}
	if len(standings) > 0 {
		match.Winner = standings[0]
		match.WinnerScore = match.Players[0].Score
	}
	return match
}

// SeedMatches 写入 n 局对局，结束时间从 base 起每局递增一分钟
func SeedMatches(t *testing.T, repo MatchRepository, base time.Time, n int) []*models.Match {
	t.Helper()
	out := make([]*models.Match, 0, n)
	for i := 0; i < n; i++ {
		m := CreateTestMatch(fmt.Sprintf("ROOM%c%c", 'A'+i/26, 'A'+i%26), base.Add(time.Duration(i)*time.Minute), "alice", "bobby")
		require.NoError(t, repo.Create(context.Background(), m))
		out = append(out, m)
	}
	return out
}

// AssertMatch 验证对局摘要
func AssertMatch(t *testing.T, expected, actual *models.Match) {
	assert.Equal(t, expected.RoomCode, actual.RoomCode)
	assert.Equal(t, expected.Winner, actual.Winner)
	assert.Equal(t, expected.WinnerScore, actual.WinnerScore)
	assert.Equal(t, expected.PlayerCount, actual.PlayerCount)
	assert.Equal(t, expected.Forced, actual.Forced)
}
