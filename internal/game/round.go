package game

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/wfunc/draw-guess/internal/errors"
	"github.com/wfunc/draw-guess/internal/logger"
	"go.uber.org/zap"
)

// StartGame 在大厅开始一局。只有房主携带的设置会被应用
func (s *Service) StartGame(ctx context.Context, connID string, patch *SettingsPatch) error {
	return s.withPlayer(connID, "start_game", func(room *Room, p *Player) error {
		if room.machine.Phase() != PhaseLobby {
			return errors.New(errors.ErrGameInProgress)
		}
		opts := s.Options()
		if len(room.players) < opts.MinPlayers {
			return errors.New(errors.ErrNotEnoughPlayers)
		}
		if !patch.Empty() && room.isHost(p) {
			next := patch.Apply(room.settings)
			if err := next.Validate(); err != nil {
				return err
			}
			if next.MaxPlayers < len(room.players) {
				return errors.New(errors.ErrInvalidSettings).
					WithMessage("Max players cannot be less than current player count")
			}
			room.settings = next
		}

		if err := room.machine.Trigger(ctx, EventStart); err != nil {
			return err
		}

		s.scoring.ResetScores(room.players)
		room.relay.Reset()
		room.ring = newArtistRing(room.playerKeys(), s.pickArtist(len(room.players)))
		room.round = &RoundState{
			CurrentRound: 1,
			MaxRounds:    room.settings.MaxRounds,
			StartedAt:    s.now(),
		}

		s.bus.Broadcast(room.code, EventGameStarted, GameStartedPayload{
			Settings:  room.settings,
			Players:   room.playerViews(),
			MaxRounds: room.settings.MaxRounds,
		})
		logger.LogGameEvent("game_started", room.code,
			zap.Int("players", len(room.players)),
			zap.Int("max_rounds", room.settings.MaxRounds))

		s.beginRound(room)
		return nil
	})
}

// beginRound 准备新回合：清空标记和画板，给画手推送候选词
func (s *Service) beginRound(room *Room) {
	rs := room.round
	opts := s.Options()

	rs.TargetWord = ""
	rs.hints = nil
	rs.StartTime = s.now()
	rs.TimeLeft = room.settings.RoundTime
	rs.Candidates = s.words.Choices(opts.WordChoices, rs.UsedWords...)
	room.resetRoundFlags()
	room.relay.Reset()

	artist := room.artist()
	if artist != nil {
		rs.artistName = artist.Username
	}

	s.offerWords(room)

	payload := RoundStartedPayload{
		Round:       rs.CurrentRound,
		MaxRounds:   rs.MaxRounds,
		ArtistIndex: room.artistIndex(),
		Players:     room.playerViews(),
	}
	if artist != nil {
		payload.Drawer = artist.Username
		payload.DrawerID = artist.ID
	}
	s.bus.Broadcast(room.code, EventRoundStarted, payload)
}

// offerWords 私发候选词给画手，发送失败时稍后重试一次。
// 候选词从不广播到房间，画手重连时会在快照里拿到。
func (s *Service) offerWords(room *Room) {
	room.offer.Cancel()
	room.offer = nil

	if s.sendCandidates(room) {
		return
	}
	room.offer = Schedule(s.Options().OfferRetry, func(t *Task) {
		_ = s.withRoom(room, "offer_retry", func() error {
			if room.offer != t {
				return nil
			}
			room.offer = nil
			if room.machine.Phase() != PhaseRoundStart {
				return nil
			}
			if !s.sendCandidates(room) {
				s.logger.Warn("无法向画手推送候选词", zap.String("room", room.code))
			}
			return nil
		})
	})
}

func (s *Service) sendCandidates(room *Room) bool {
	artist := room.artist()
	if artist == nil || !artist.Connected || room.round == nil {
		return false
	}
	err := s.bus.Send(artist.ID, EventYourTurn, YourTurnPayload{
		Words:    append([]string(nil), room.round.Candidates...),
		Round:    room.round.CurrentRound,
		RoomCode: room.code,
	})
	return err == nil
}

// RequestWords 画手重新获取本回合的候选词
func (s *Service) RequestWords(ctx context.Context, connID string) error {
	return s.withPlayer(connID, "request_words", func(room *Room, p *Player) error {
		if room.round == nil {
			return errors.New(errors.ErrGameNotStarted)
		}
		if room.machine.Phase() != PhaseRoundStart {
			return errors.New(errors.ErrState)
		}
		if !room.isArtist(p) {
			return errors.New(errors.ErrNotYourTurn)
		}
		return s.bus.Send(p.ID, EventYourTurn, YourTurnPayload{
			Words:    append([]string(nil), room.round.Candidates...),
			Round:    room.round.CurrentRound,
			RoomCode: room.code,
		})
	})
}

// SelectWord 画手从候选词中选词，进入作画阶段并启动计时
func (s *Service) SelectWord(ctx context.Context, connID, word string) error {
	return s.withPlayer(connID, "select_word", func(room *Room, p *Player) error {
		rs := room.round
		if rs == nil {
			return errors.New(errors.ErrGameNotStarted)
		}
		if room.machine.Phase() != PhaseRoundStart {
			return errors.New(errors.ErrState)
		}
		if !room.isArtist(p) {
			return errors.New(errors.ErrNotYourTurn)
		}

		chosen := strings.ToLower(strings.TrimSpace(word))
		offered := false
		for _, c := range rs.Candidates {
			if c == chosen {
				offered = true
				break
			}
		}
		if !offered || !s.words.Contains(chosen) {
			return errors.New(errors.ErrInvalidWord)
		}

		if err := room.machine.Trigger(ctx, EventSelectWord); err != nil {
			return err
		}

		room.offer.Cancel()
		room.offer = nil
		rs.TargetWord = chosen
		rs.UsedWords = append(rs.UsedWords, chosen)
		rs.StartTime = s.now()
		rs.TimeLeft = room.settings.RoundTime
		rs.hints = newHintReveal(chosen, room.settings.RoundTime, room.settings.HintsEnabled)

		s.bus.BroadcastExcept(room.code, p.ID, EventWordSelected, WordSelectedPayload{
			WordLength: utf8.RuneCountInString(chosen),
			Pattern:    rs.hints.Pattern(),
		})
		s.bus.Broadcast(room.code, EventDrawingStarted, DrawingStartedPayload{
			Drawer:   p.Username,
			DrawerID: p.ID,
			TimeLeft: rs.TimeLeft,
			Round:    rs.CurrentRound,
		})
		s.startTimer(room)

		s.logger.Debug("画手已选词",
			zap.String("room", room.code),
			zap.String("artist", p.Username),
			zap.Int("round", rs.CurrentRound))
		return nil
	})
}

func (s *Service) startTimer(room *Room) {
	room.stopTimer()
	t := NewRoundTimer(room.settings.RoundTime, s.Options().TickInterval,
		func(t *RoundTimer, left int) { s.onTick(room, t, left) },
		func(t *RoundTimer) { s.onExpire(room, t) },
	)
	room.timer = t
	t.Start()
}

func (s *Service) onTick(room *Room, t *RoundTimer, left int) {
	_ = s.withRoom(room, "timer_tick", func() error {
		if room.timer != t || room.round == nil {
			return nil
		}
		rs := room.round
		rs.TimeLeft = left
		s.bus.Broadcast(room.code, EventTimerUpdate, TimerPayload{TimeLeft: left, RoomCode: room.code})
		if rs.hints.At(left) {
			s.bus.Broadcast(room.code, EventHintRevealed, HintPayload{Hint: rs.hints.Pattern()})
		}
		return nil
	})
}

func (s *Service) onExpire(room *Room, t *RoundTimer) {
	_ = s.withRoom(room, "timer_expire", func() error {
		if room.timer != t {
			return nil
		}
		room.timer = nil
		if room.machine.Phase() == PhaseDrawing {
			s.endRound(room)
		}
		return nil
	})
}

// SendGuess 处理猜词或聊天
func (s *Service) SendGuess(ctx context.Context, connID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) > s.Options().MaxGuessLength {
		return errors.New(errors.ErrInvalidGuess)
	}

	return s.withPlayer(connID, "send_guess", func(room *Room, p *Player) error {
		rs := room.round
		if rs == nil {
			return errors.New(errors.ErrGameNotStarted)
		}
		chat := ChatMessage{Username: p.Username, Message: text, Type: "message"}

		if room.machine.Phase() != PhaseDrawing {
			s.bus.Broadcast(room.code, EventNewMessage, chat)
			return nil
		}
		if room.isArtist(p) {
			return s.bus.Send(p.ID, EventNewMessage, systemMessage(errors.New(errors.ErrArtistGuess).Message))
		}

		verdict := Classify(text, rs.TargetWord)
		if p.HasGuessed {
			// 已猜中的玩家再提到答案只回显给自己
			if verdict == Miss && !strings.Contains(strings.ToLower(text), rs.TargetWord) {
				s.bus.Broadcast(room.code, EventNewMessage, chat)
				return nil
			}
			return s.bus.Send(p.ID, EventNewMessage, chat)
		}

		switch verdict {
		case Exact:
			s.acceptGuess(room, p)
		case Close:
			s.bus.Broadcast(room.code, EventNewMessage, chat)
			_ = s.bus.Send(p.ID, EventCloseGuess, CloseGuessPayload{
				Guess:   text,
				Message: "'" + text + "' is close!",
			})
		default:
			s.bus.Broadcast(room.code, EventNewMessage, chat)
		}
		return nil
	})
}

// acceptGuess 先置 hasGuessed 再计分，重复的正确答案不会二次计分
func (s *Service) acceptGuess(room *Room, p *Player) {
	rs := room.round
	p.HasGuessed = true
	s.scoring.ValidatePlayerScores(room.players)

	elapsed := int(s.now().Sub(rs.StartTime).Seconds())
	res := s.scoring.ProcessCorrectGuess(room, p, elapsed)

	payload := CorrectGuessPayload{
		Username:     p.Username,
		Points:       res.GuesserPoints,
		Drawer:       rs.artistName,
		DrawerPoints: res.DrawerPoints,
		Bonuses:      res.Bonuses,
		TimeElapsed:  res.TimeElapsed,
	}
	s.bus.Broadcast(room.code, EventCorrectGuess, payload)
	s.bus.Broadcast(room.code, EventNewMessage, systemMessage(p.Username+" guessed the word!"))
	s.bus.Broadcast(room.code, EventUpdatePlayers, PlayersPayload{Players: room.playerViews()})

	logger.LogGameEvent("correct_guess", room.code,
		zap.String("username", p.Username),
		zap.Int("points", res.GuesserPoints),
		zap.Int("drawer_points", res.DrawerPoints),
		zap.Int("elapsed", res.TimeElapsed))

	if room.allGuessed() {
		s.endRound(room)
	}
}

// endRound 结束回合：停止计时、结算、广播并安排下一回合
func (s *Service) endRound(room *Room) {
	room.stopTimer()
	if err := room.machine.Trigger(context.Background(), EventFinishRound); err != nil {
		s.logger.Warn("结束回合失败", zap.String("room", room.code), zap.Error(err))
		return
	}
	room.offer.Cancel()
	room.offer = nil

	rs := room.round
	s.scoring.ValidatePlayerScores(room.players)
	res := s.scoring.ProcessRoundEnd(room)

	s.bus.Broadcast(room.code, EventRoundEnd, RoundEndPayload{
		Word:          rs.TargetWord,
		Scores:        scoreLines(s.scoring.Leaderboard(room.players)),
		Drawer:        rs.artistName,
		Round:         rs.CurrentRound,
		RoundEndBonus: res,
	})
	logger.LogGameEvent("round_end", room.code,
		zap.Int("round", rs.CurrentRound),
		zap.Int("guessers", res.GuessersCount),
		zap.Int("drawer_bonus", res.DrawerBonus))

	room.pending.Cancel()
	room.pending = Schedule(s.Options().RoundEndDelay, func(t *Task) {
		_ = s.withRoom(room, "next_round", func() error {
			if room.pending != t {
				return nil
			}
			room.pending = nil
			s.nextRound(room)
			return nil
		})
	})
}

// nextRound 进入下一回合，回合用完或人数不足时结束整局
func (s *Service) nextRound(room *Room) {
	rs := room.round
	if rs == nil {
		return
	}
	if rs.CurrentRound >= rs.MaxRounds {
		s.finishGame(room, false)
		return
	}
	if len(room.players) < s.Options().MinPlayers {
		s.finishGame(room, true)
		return
	}
	if err := room.machine.Trigger(context.Background(), EventNext); err != nil {
		s.logger.Warn("进入下一回合失败", zap.String("room", room.code), zap.Error(err))
		return
	}

	rs.CurrentRound++
	room.ring.Advance()
	s.beginRound(room)
}

// finishGame 结束整局：广播最终排名、归档并回到大厅
func (s *Service) finishGame(room *Room, forced bool) {
	rs := room.round
	if rs == nil {
		return
	}
	room.stopTimer()
	room.cancelTasks()
	if err := room.machine.Trigger(context.Background(), EventGameOver); err != nil {
		s.logger.Warn("结束游戏失败", zap.String("room", room.code), zap.Error(err))
	}

	lines := scoreLines(s.scoring.Leaderboard(room.players))
	payload := GameEndedPayload{Scores: lines, Forced: forced}
	if len(lines) > 0 {
		payload.Winner = &Winner{Username: lines[0].Username, Score: lines[0].Score}
	}
	s.bus.Broadcast(room.code, EventGameEnded, payload)
	logger.LogGameEvent("game_ended", room.code,
		zap.Int("rounds", rs.CurrentRound),
		zap.Bool("forced", forced))

	if s.recorder != nil {
		summary := &MatchSummary{
			RoomCode:     room.code,
			RoundsPlayed: rs.CurrentRound,
			Settings:     room.settings,
			Forced:       forced,
			StartedAt:    rs.StartedAt,
			EndedAt:      s.now(),
			Standings:    lines,
		}
		room.deferAfter(func() { s.archive(summary) })
	}

	room.round = nil
	room.ring = nil
	room.relay.Reset()
	room.resetRoundFlags()
	if err := room.machine.Trigger(context.Background(), EventReset); err != nil {
		s.logger.Warn("回到大厅失败", zap.String("room", room.code), zap.Error(err))
	}
}

func (s *Service) archive(summary *MatchSummary) {
	ctx, cancel := s.storeContext()
	defer cancel()
	if err := s.recorder.RecordMatch(ctx, summary); err != nil {
		s.logger.Error("对局归档失败", zap.String("room", summary.RoomCode), zap.Error(err))
		return
	}
	s.logger.Info("对局已归档",
		zap.String("room", summary.RoomCode),
		zap.Int("players", len(summary.Standings)))
}

// ResetGame 房主随时重开：停止计时，清空分数并回到大厅
func (s *Service) ResetGame(ctx context.Context, connID string) error {
	return s.withPlayer(connID, "restart_game", func(room *Room, p *Player) error {
		if !room.isHost(p) {
			return errors.New(errors.ErrNotHost).WithMessage("Only the host can restart the game")
		}
		room.stopTimer()
		room.cancelTasks()
		room.round = nil
		room.ring = nil
		room.relay.Reset()
		s.scoring.ResetScores(room.players)
		if err := room.machine.Trigger(ctx, EventReset); err != nil {
			return err
		}

		s.bus.Broadcast(room.code, EventGameReset, ResetPayload{
			Players:  room.playerViews(),
			Settings: room.settings,
		})
		logger.LogGameEvent("game_reset", room.code, zap.String("by", p.Username))
		return nil
	})
}
