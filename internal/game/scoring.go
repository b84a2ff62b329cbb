package game

import (
	"sort"
	"strings"
)

// ScoringConfig 计分参数
type ScoringConfig struct {
	BasePoints            int
	MinPoints             int
	DecayPerSecond        int
	DrawerShare           float64
	FirstGuessBonus       int
	SpeedThreshold        int // 秒
	SpeedBonus            int
	StreakBonusPerTwo     int
	DrawerCompletionBonus int
	MaxScore              int
	MaxElapsed            int // 秒，未给出回合时长时的上限
}

// DefaultScoringConfig 默认计分参数
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		BasePoints:            100,
		MinPoints:             10,
		DecayPerSecond:        2,
		DrawerShare:           0.5,
		FirstGuessBonus:       20,
		SpeedThreshold:        10,
		SpeedBonus:            30,
		StreakBonusPerTwo:     15,
		DrawerCompletionBonus: 25,
		MaxScore:              999999,
		MaxElapsed:            MaxRoundTime,
	}
}

// Bonuses 猜中时的加成明细
type Bonuses struct {
	FirstGuess int `json:"firstGuess"`
	SpeedBonus int `json:"speedBonus"`
	Streak     int `json:"streak"`
}

// GuessResult 一次猜中的计分结果
type GuessResult struct {
	GuesserPoints int     `json:"points"`
	DrawerPoints  int     `json:"drawerPoints"`
	Bonuses       Bonuses `json:"bonuses"`
	TimeElapsed   int     `json:"timeElapsed"`
}

// RoundEndResult 回合结算结果
type RoundEndResult struct {
	DrawerBonus   int `json:"drawerBonus"`
	GuessersCount int `json:"guessersCount"`
	TotalPlayers  int `json:"totalPlayers"`
}

// ScoringEngine 计分引擎，无内部状态，直接修改传入的玩家
type ScoringEngine struct {
	cfg ScoringConfig
}

// NewScoringEngine 创建计分引擎
func NewScoringEngine(cfg ScoringConfig) *ScoringEngine {
	return &ScoringEngine{cfg: cfg}
}

// Config 计分参数
func (e *ScoringEngine) Config() ScoringConfig {
	return e.cfg
}

// GuessPoints 猜中得分，elapsed 截断到 [0, MaxElapsed]
func (e *ScoringEngine) GuessPoints(elapsed int, isFirst bool) int {
	return e.GuessPointsWithin(elapsed, e.cfg.MaxElapsed, isFirst)
}

// GuessPointsWithin 猜中得分，elapsed 截断到 [0, duration]
func (e *ScoringEngine) GuessPointsWithin(elapsed, duration int, isFirst bool) int {
	elapsed = clamp(elapsed, 0, duration)

	points := e.cfg.BasePoints - elapsed*e.cfg.DecayPerSecond
	if points < e.cfg.MinPoints {
		points = e.cfg.MinPoints
	}
	if elapsed <= e.cfg.SpeedThreshold {
		points += e.cfg.SpeedBonus
	}
	if isFirst {
		points += e.cfg.FirstGuessBonus
	}
	return points
}

// DrawerPoints 画手从一次猜中获得的分数
func (e *ScoringEngine) DrawerPoints(guesserPoints int) int {
	if guesserPoints <= 0 {
		return 0
	}
	return int(float64(guesserPoints) * e.cfg.DrawerShare)
}

// StreakBonus 连续猜中加成，每两轮一档
func (e *ScoringEngine) StreakBonus(streak int) int {
	if streak < 2 {
		return 0
	}
	return e.cfg.StreakBonusPerTwo * (streak / 2)
}

// DrawerCompletionBonus 至少有一人猜中时画手的完成奖励
func (e *ScoringEngine) DrawerCompletionBonus(guessers int) int {
	if guessers > 0 {
		return e.cfg.DrawerCompletionBonus
	}
	return 0
}

// AwardPoints 加分并封顶
func (e *ScoringEngine) AwardPoints(p *Player, points int) bool {
	if p == nil || points < 0 {
		return false
	}
	p.Score += points
	if p.Score > e.cfg.MaxScore || p.Score < 0 {
		p.Score = e.cfg.MaxScore
	}
	return true
}

// ProcessCorrectGuess 处理一次猜中。调用方必须先把 guesser.HasGuessed 置为 true，
// 再调用本方法，这样并发的重复猜中只会被计分一次。
func (e *ScoringEngine) ProcessCorrectGuess(room *Room, guesser *Player, elapsed int) GuessResult {
	if room == nil || guesser == nil {
		return GuessResult{}
	}

	artist := room.artist()
	if artist != nil && artist.Key == guesser.Key {
		return GuessResult{}
	}

	elapsed = clamp(elapsed, 0, room.settings.RoundTime)

	isFirst := true
	for _, p := range room.players {
		if p.Key == guesser.Key || (artist != nil && p.Key == artist.Key) {
			continue
		}
		if p.HasGuessed {
			isFirst = false
			break
		}
	}

	base := e.GuessPointsWithin(elapsed, room.settings.RoundTime, isFirst)
	bonuses := Bonuses{Streak: e.StreakBonus(guesser.Streak)}
	if isFirst {
		bonuses.FirstGuess = e.cfg.FirstGuessBonus
	}
	if elapsed <= e.cfg.SpeedThreshold {
		bonuses.SpeedBonus = e.cfg.SpeedBonus
	}

	result := GuessResult{
		GuesserPoints: base + bonuses.Streak,
		Bonuses:       bonuses,
		TimeElapsed:   elapsed,
	}

	e.AwardPoints(guesser, result.GuesserPoints)
	if artist != nil {
		result.DrawerPoints = e.DrawerPoints(base)
		e.AwardPoints(artist, result.DrawerPoints)
	}

	guesser.Streak++

	return result
}

// ProcessRoundEnd 回合结算：有人猜中则画手获得完成奖励，未猜中的玩家连击清零
func (e *ScoringEngine) ProcessRoundEnd(room *Room) RoundEndResult {
	if room == nil {
		return RoundEndResult{}
	}

	artist := room.artist()
	artistKey := ""
	if artist != nil {
		artistKey = artist.Key
	}

	var result RoundEndResult
	for _, p := range room.players {
		if p.Key == artistKey {
			continue
		}
		result.TotalPlayers++
		if p.HasGuessed {
			result.GuessersCount++
		} else {
			p.Streak = 0
		}
	}

	if artist != nil {
		result.DrawerBonus = e.DrawerCompletionBonus(result.GuessersCount)
		if result.DrawerBonus > 0 {
			e.AwardPoints(artist, result.DrawerBonus)
		}
	}

	return result
}

// Leaderboard 按分数降序排列，同分按用户名升序
func (e *ScoringEngine) Leaderboard(players []*Player) []*Player {
	out := make([]*Player, len(players))
	copy(out, players)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return strings.ToLower(out[i].Username) < strings.ToLower(out[j].Username)
	})
	return out
}

// ResetScores 新一局前清零
func (e *ScoringEngine) ResetScores(players []*Player) {
	for _, p := range players {
		p.Score = 0
		p.HasGuessed = false
		p.Streak = 0
	}
}

// ValidatePlayerScores 修正异常分数：负数归零、超过上限截断、连击不为负
func (e *ScoringEngine) ValidatePlayerScores(players []*Player) {
	for _, p := range players {
		if p == nil {
			continue
		}
		if p.Score < 0 {
			p.Score = 0
		}
		if p.Score > e.cfg.MaxScore {
			p.Score = e.cfg.MaxScore
		}
		if p.Streak < 0 {
			p.Streak = 0
		}
	}
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
