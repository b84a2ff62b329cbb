package game

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/draw-guess/internal/errors"
)

func fixedClock(svc *Service) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return at }
}

func joinedToken(t *testing.T, bus *recordingBus, conn, event string) string {
	t.Helper()
	payload, ok := bus.last(conn, event).(JoinedPayload)
	require.True(t, ok, "no %s for %s", event, conn)
	require.NotEmpty(t, payload.SessionToken)
	return payload.SessionToken
}

func TestCreateRoom(t *testing.T) {
	svc, bus := newTestService(t, testOptions())
	room, err := svc.CreateRoom(context.Background(), "c0", "  alice ")
	require.NoError(t, err)

	payload, ok := bus.last("c0", EventRoomCreated).(JoinedPayload)
	require.True(t, ok)
	assert.Equal(t, room.Code(), payload.RoomCode)
	assert.Equal(t, "c0", payload.HostID)
	assert.Equal(t, "alice", payload.Username)
	assert.Equal(t, PhaseLobby, payload.Phase)
	assert.Nil(t, payload.Round)
	assert.NotEmpty(t, payload.SessionToken)
	assert.Equal(t, 1, bus.members(room.Code()))
}

func TestCreateRoomLeavesPreviousRoom(t *testing.T) {
	svc, _ := newTestService(t, testOptions())
	first := newLobby(t, svc, "alice", "bobby")

	second, err := svc.CreateRoom(context.Background(), "c1", "bobby")
	require.NoError(t, err)
	assert.NotEqual(t, first.Code(), second.Code())
	assert.Equal(t, 1, first.PlayerCount())
	got, _ := svc.Registry().LookupByConn("c1")
	assert.Same(t, second, got)
}

func TestCreateRoomRejectsBadUsername(t *testing.T) {
	svc, _ := newTestService(t, testOptions())
	for _, name := range []string{"", "ab", strings.Repeat("x", 21), "bad name", "dash-name"} {
		_, err := svc.CreateRoom(context.Background(), "c0", name)
		assert.True(t, errors.Is(err, errors.ErrInvalidUsername), name)
	}
	_, err := svc.CreateRoom(context.Background(), "c0", "bad!")
	assert.Equal(t, "Username can only contain letters, numbers, and underscores", errors.PublicMessage(err))
	assert.Zero(t, svc.Registry().Count())
}

func TestJoinRoomErrors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, testOptions())
	room := newLobby(t, svc, "alice", "bobby")
	code := room.Code()

	_, err := svc.JoinRoom(ctx, "c9", "abc", "carol")
	assert.True(t, errors.Is(err, errors.ErrInvalidRoomCode))

	_, err = svc.JoinRoom(ctx, "c9", "ZZZZZZ", "carol")
	assert.True(t, errors.Is(err, errors.ErrRoomNotFound))

	_, err = svc.JoinRoom(ctx, "c9", strings.ToLower(code), "Alice")
	assert.True(t, errors.Is(err, errors.ErrUsernameTaken))

	_, err = svc.JoinRoom(ctx, "c1", code, "bobby")
	assert.True(t, errors.Is(err, errors.ErrState))
	assert.Equal(t, "Already in this room", errors.PublicMessage(err))

	// 游戏开始后不能加入
	require.NoError(t, svc.StartGame(ctx, "c0", nil))
	_, err = svc.JoinRoom(ctx, "c9", code, "carol")
	assert.True(t, errors.Is(err, errors.ErrGameInProgress))
}

func TestJoinRoomFull(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, testOptions())
	room := newLobby(t, svc, "alice", "bobby")
	require.NoError(t, svc.UpdateSettings(ctx, "c0", &SettingsPatch{MaxPlayers: intPtr(2)}))

	_, err := svc.JoinRoom(ctx, "c9", room.Code(), "carol")
	assert.True(t, errors.Is(err, errors.ErrRoomFull))
	assert.Equal(t, 2, room.PlayerCount())
}

func TestJoinRoomNotifiesOthers(t *testing.T) {
	svc, bus := newTestService(t, testOptions())
	room := newLobby(t, svc, "alice", "bobby")

	joined, ok := bus.last("c0", EventPlayerJoined).(PlayersPayload)
	require.True(t, ok)
	assert.Equal(t, "bobby", joined.Username)
	assert.Len(t, joined.Players, 2)
	assert.Empty(t, bus.received("c1", EventPlayerJoined))

	payload, ok := bus.last("c1", EventRoomJoined).(JoinedPayload)
	require.True(t, ok)
	assert.Equal(t, room.Code(), payload.RoomCode)
	assert.Equal(t, "c0", payload.HostID)
	assert.NotEmpty(t, payload.SessionToken)
}

func TestLeaveRoomTransfersHost(t *testing.T) {
	svc, bus := newTestService(t, testOptions())
	room := newLobby(t, svc, "alice", "bobby", "carol")

	svc.LeaveRoom(context.Background(), "c0")
	assert.Equal(t, 2, room.PlayerCount())

	changed, ok := bus.last("c1", EventHostChanged).(HostChangedPayload)
	require.True(t, ok)
	assert.Equal(t, "bobby", changed.Username)
	assert.Equal(t, "c1", room.Snapshot().HostID)
	assert.NotEmpty(t, bus.received("c2", EventPlayerLeft))

	svc.LeaveRoom(context.Background(), "c1")
	svc.LeaveRoom(context.Background(), "c2")
	_, ok = svc.Registry().GetRoom(room.Code())
	assert.False(t, ok)
}

func TestStartGameRequiresPlayers(t *testing.T) {
	svc, _ := newTestService(t, testOptions())
	newLobby(t, svc, "alice")

	err := svc.StartGame(context.Background(), "c0", nil)
	assert.True(t, errors.Is(err, errors.ErrNotEnoughPlayers))

	err = svc.StartGame(context.Background(), "nobody", nil)
	assert.True(t, errors.Is(err, errors.ErrNotInRoom))
}

func TestStartGameAppliesHostSettingsOnly(t *testing.T) {
	ctx := context.Background()
	svc, bus := newTestService(t, testOptions())
	room := newLobby(t, svc, "alice", "bobby")

	require.NoError(t, svc.StartGame(ctx, "c1", &SettingsPatch{MaxRounds: intPtr(7)}))
	started, ok := bus.last("c0", EventGameStarted).(GameStartedPayload)
	require.True(t, ok)
	assert.Equal(t, 3, started.MaxRounds)

	err := svc.StartGame(ctx, "c0", nil)
	assert.True(t, errors.Is(err, errors.ErrGameInProgress))

	require.NoError(t, svc.ResetGame(ctx, "c0"))
	require.NoError(t, svc.StartGame(ctx, "c0", &SettingsPatch{MaxRounds: intPtr(7)}))
	assert.Equal(t, 7, inspect(room, func() int { return room.round.MaxRounds }))

	require.NoError(t, svc.ResetGame(ctx, "c0"))
	err = svc.StartGame(ctx, "c0", &SettingsPatch{RoundTime: intPtr(5)})
	assert.True(t, errors.Is(err, errors.ErrInvalidSettings))
	assert.Equal(t, PhaseLobby, room.Phase())
}

func TestRoundStartOffersCandidatesPrivately(t *testing.T) {
	svc, bus := newTestService(t, testOptions())
	room := newLobby(t, svc, "alice", "bobby", "carol")
	require.NoError(t, svc.StartGame(context.Background(), "c0", nil))

	offer, ok := bus.last("c0", EventYourTurn).(YourTurnPayload)
	require.True(t, ok)
	assert.Len(t, offer.Words, 3)
	assert.Empty(t, bus.received("c1", EventYourTurn))
	assert.Empty(t, bus.received("c2", EventYourTurn))

	started, ok := bus.last("c2", EventRoundStarted).(RoundStartedPayload)
	require.True(t, ok)
	assert.Equal(t, "alice", started.Drawer)
	assert.Equal(t, 0, started.ArtistIndex)
	assert.Equal(t, 1, started.Round)

	// 快照只有画手能看到候选词
	public := room.Snapshot()
	require.NotNil(t, public.Round)
	assert.Empty(t, public.Round.Candidates)
	guesser, _ := room.SnapshotFor("bobby")
	assert.Empty(t, guesser.Round.Candidates)
	artist, _ := room.SnapshotFor("alice")
	assert.Equal(t, offer.Words, artist.Round.Candidates)
}

func TestRequestWords(t *testing.T) {
	ctx := context.Background()
	svc, bus := newTestService(t, testOptions())
	room := newLobby(t, svc, "alice", "bobby")

	err := svc.RequestWords(ctx, "c0")
	assert.True(t, errors.Is(err, errors.ErrGameNotStarted))

	require.NoError(t, svc.StartGame(ctx, "c0", nil))
	require.NoError(t, svc.RequestWords(ctx, "c0"))
	assert.Len(t, bus.received("c0", EventYourTurn), 2)

	err = svc.RequestWords(ctx, "c1")
	assert.True(t, errors.Is(err, errors.ErrNotYourTurn))

	selectFirstCandidate(t, svc, room)
	err = svc.RequestWords(ctx, "c0")
	assert.True(t, errors.Is(err, errors.ErrState))
}

func TestSelectWord(t *testing.T) {
	ctx := context.Background()
	svc, bus := newTestService(t, testOptions())
	room := newLobby(t, svc, "alice", "bobby")
	require.NoError(t, svc.StartGame(ctx, "c0", nil))
	candidates := inspect(room, func() []string { return room.round.Candidates })

	err := svc.SelectWord(ctx, "c1", candidates[0])
	assert.True(t, errors.Is(err, errors.ErrNotYourTurn))

	err = svc.SelectWord(ctx, "c0", "definitely-not-offered")
	assert.True(t, errors.Is(err, errors.ErrInvalidWord))
	assert.Equal(t, PhaseRoundStart, room.Phase())

	require.NoError(t, svc.SelectWord(ctx, "c0", strings.ToUpper(candidates[1])))
	assert.Equal(t, PhaseDrawing, room.Phase())

	selected, ok := bus.last("c1", EventWordSelected).(WordSelectedPayload)
	require.True(t, ok)
	assert.Equal(t, len([]rune(candidates[1])), selected.WordLength)
	assert.NotContains(t, selected.Pattern, candidates[1])
	assert.Empty(t, bus.received("c0", EventWordSelected))
	assert.NotEmpty(t, bus.received("c0", EventDrawingStarted))
	assert.NotEmpty(t, bus.received("c1", EventDrawingStarted))

	guesser, _ := room.SnapshotFor("bobby")
	assert.Empty(t, guesser.Round.Word)
	artist, _ := room.SnapshotFor("alice")
	assert.Equal(t, candidates[1], artist.Round.Word)

	err = svc.SelectWord(ctx, "c0", candidates[0])
	assert.True(t, errors.Is(err, errors.ErrState))
}

func TestArtistRotation(t *testing.T) {
	svc, _ := newTestService(t, testOptions())
	room := newLobby(t, svc, "alice", "bobby", "carol", "dave")
	require.NoError(t, svc.StartGame(context.Background(), "c0", &SettingsPatch{MaxRounds: intPtr(5)}))

	var artists []string
	for i := 0; i < 5; i++ {
		artists = append(artists, artistConn(room))
		if i < 4 {
			forceNextRound(svc, room)
		}
	}
	assert.Equal(t, []string{"c0", "c1", "c2", "c3", "c0"}, artists)
	assert.Equal(t, 5, inspect(room, func() int { return room.round.CurrentRound }))
}

func TestCorrectGuessScoresAndEndsRound(t *testing.T) {
	ctx := context.Background()
	svc, bus := newTestService(t, testOptions())
	fixedClock(svc)
	room := newLobby(t, svc, "alice", "bobby")
	word := startDrawing(t, svc, room)

	require.NoError(t, svc.SendGuess(ctx, "c1", strings.ToUpper(word)))

	correct, ok := bus.last("c0", EventCorrectGuess).(CorrectGuessPayload)
	require.True(t, ok)
	assert.Equal(t, "bobby", correct.Username)
	assert.Equal(t, 150, correct.Points)
	assert.Equal(t, 75, correct.DrawerPoints)
	assert.Equal(t, "alice", correct.Drawer)
	assert.Equal(t, Bonuses{FirstGuess: 20, SpeedBonus: 30}, correct.Bonuses)

	assert.Equal(t, PhaseRoundEnd, room.Phase())
	end, ok := bus.last("c1", EventRoundEnd).(RoundEndPayload)
	require.True(t, ok)
	assert.Equal(t, word, end.Word)
	assert.Equal(t, RoundEndResult{DrawerBonus: 25, GuessersCount: 1, TotalPlayers: 1}, end.RoundEndBonus)
	require.Len(t, end.Scores, 2)
	assert.Equal(t, ScoreLine{Username: "bobby", Score: 150, HasGuessed: true, Streak: 1}, end.Scores[0])
	assert.Equal(t, 100, end.Scores[1].Score)
}

func TestSecondGuesserGetsNoFirstBonus(t *testing.T) {
	ctx := context.Background()
	svc, bus := newTestService(t, testOptions())
	fixedClock(svc)
	room := newLobby(t, svc, "alice", "bobby", "carol")
	word := startDrawing(t, svc, room)

	require.NoError(t, svc.SendGuess(ctx, "c1", word))
	assert.Equal(t, PhaseDrawing, room.Phase())
	require.NoError(t, svc.SendGuess(ctx, "c2", word))

	got := bus.received("c0", EventCorrectGuess)
	require.Len(t, got, 2)
	second := got[1].(CorrectGuessPayload)
	assert.Equal(t, 130, second.Points)
	assert.Equal(t, 65, second.DrawerPoints)
	assert.Zero(t, second.Bonuses.FirstGuess)

	assert.Equal(t, 75+65+25, playerNamed(room, "alice").Score)
	assert.Equal(t, PhaseRoundEnd, room.Phase())
}

func TestConcurrentDuplicateGuessScoresOnce(t *testing.T) {
	svc, bus := newTestService(t, testOptions())
	fixedClock(svc)
	room := newLobby(t, svc, "alice", "bobby", "carol")
	word := startDrawing(t, svc, room)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.SendGuess(context.Background(), "c1", word)
		}()
	}
	wg.Wait()

	assert.Equal(t, 150, playerNamed(room, "bobby").Score)
	assert.Equal(t, 75, playerNamed(room, "alice").Score)
	assert.Len(t, bus.received("c2", EventCorrectGuess), 1)
	assert.Equal(t, PhaseDrawing, room.Phase())
}

func TestGuessedPlayerCannotLeakWord(t *testing.T) {
	ctx := context.Background()
	svc, bus := newTestService(t, testOptions())
	room := newLobby(t, svc, "alice", "bobby", "carol")
	word := startDrawing(t, svc, room)

	require.NoError(t, svc.SendGuess(ctx, "c1", word))
	require.NoError(t, svc.SendGuess(ctx, "c1", "the answer is "+word))
	require.NoError(t, svc.SendGuess(ctx, "c1", word))

	for _, m := range bus.received("c2", EventNewMessage) {
		msg := m.(ChatMessage)
		if msg.Type == "message" {
			assert.NotContains(t, strings.ToLower(msg.Message), word)
		}
	}
	var echoed int
	for _, m := range bus.received("c1", EventNewMessage) {
		if m.(ChatMessage).Message == word {
			echoed++
		}
	}
	assert.Equal(t, 1, echoed)
	assert.Len(t, bus.received("c2", EventCorrectGuess), 1)
}

func TestArtistCannotGuess(t *testing.T) {
	ctx := context.Background()
	svc, bus := newTestService(t, testOptions())
	room := newLobby(t, svc, "alice", "bobby")
	word := startDrawing(t, svc, room)

	require.NoError(t, svc.SendGuess(ctx, "c0", word))
	msg, ok := bus.last("c0", EventNewMessage).(ChatMessage)
	require.True(t, ok)
	assert.Equal(t, "system", msg.Type)
	assert.Equal(t, "You are drawing! You cannot guess.", msg.Message)
	assert.Empty(t, bus.received("c1", EventNewMessage))
	assert.Zero(t, playerNamed(room, "alice").Score)
	assert.Equal(t, PhaseDrawing, room.Phase())
}

func TestCloseGuess(t *testing.T) {
	ctx := context.Background()
	svc, bus := newTestService(t, testOptions())
	room := newLobby(t, svc, "alice", "bobby", "carol")
	word := startDrawing(t, svc, room)
	near := word + "x"

	require.NoError(t, svc.SendGuess(ctx, "c1", near))
	hint, ok := bus.last("c1", EventCloseGuess).(CloseGuessPayload)
	require.True(t, ok)
	assert.Equal(t, near, hint.Guess)
	assert.Equal(t, "'"+near+"' is close!", hint.Message)
	assert.Empty(t, bus.received("c2", EventCloseGuess))
	assert.Len(t, bus.received("c2", EventNewMessage), 1)
	assert.False(t, playerNamed(room, "bobby").HasGuessed)
}

func TestSendGuessValidation(t *testing.T) {
	ctx := context.Background()
	svc, bus := newTestService(t, testOptions())
	room := newLobby(t, svc, "alice", "bobby")

	assert.True(t, errors.Is(svc.SendGuess(ctx, "c1", "   "), errors.ErrInvalidGuess))
	assert.True(t, errors.Is(svc.SendGuess(ctx, "c1", strings.Repeat("a", 101)), errors.ErrInvalidGuess))
	assert.True(t, errors.Is(svc.SendGuess(ctx, "c1", "hello"), errors.ErrGameNotStarted))

	// 选词阶段的消息按聊天广播
	require.NoError(t, svc.StartGame(ctx, "c0", nil))
	require.NoError(t, svc.SendGuess(ctx, "c1", "good luck"))
	assert.Len(t, bus.received("c0", EventNewMessage), 1)
	assert.Equal(t, PhaseRoundStart, room.Phase())
}

func TestOneRoundGameEnds(t *testing.T) {
	ctx := context.Background()
	svc, bus := newTestService(t, testOptions())
	fixedClock(svc)
	room := newLobby(t, svc, "alice", "bobby")
	require.NoError(t, svc.StartGame(ctx, "c0", &SettingsPatch{MaxRounds: intPtr(1)}))
	word := selectFirstCandidate(t, svc, room)
	require.NoError(t, svc.SendGuess(ctx, "c1", word))

	forceNextRound(svc, room)

	ended, ok := bus.last("c0", EventGameEnded).(GameEndedPayload)
	require.True(t, ok)
	require.NotNil(t, ended.Winner)
	assert.Equal(t, Winner{Username: "bobby", Score: 150}, *ended.Winner)
	assert.False(t, ended.Forced)
	assert.Equal(t, PhaseLobby, room.Phase())
	assert.Nil(t, room.Snapshot().Round)
	// 分数保留到下一局开始
	assert.Equal(t, 150, playerNamed(room, "bobby").Score)

	require.NoError(t, svc.StartGame(ctx, "c0", nil))
	assert.Zero(t, playerNamed(room, "bobby").Score)
}

func TestTimerExpiryWithNoGuessers(t *testing.T) {
	opts := testOptions()
	opts.TickInterval = time.Millisecond
	opts.Defaults.RoundTime = MinRoundTime
	svc, bus := newTestService(t, opts)
	room := newLobby(t, svc, "alice", "bobby")
	startDrawing(t, svc, room)
	inspect(room, func() int { room.players[1].Streak = 3; return 0 })

	require.Eventually(t, func() bool { return room.Phase() == PhaseRoundEnd }, 2*time.Second, 5*time.Millisecond)

	end, ok := bus.last("c1", EventRoundEnd).(RoundEndPayload)
	require.True(t, ok)
	assert.Equal(t, RoundEndResult{GuessersCount: 0, TotalPlayers: 1}, end.RoundEndBonus)
	assert.Zero(t, playerNamed(room, "alice").Score)
	assert.Zero(t, playerNamed(room, "bobby").Streak)
	assert.Equal(t, MinRoundTime, bus.count(EventTimerUpdate)/2)

	last, ok := bus.last("c1", EventTimerUpdate).(TimerPayload)
	require.True(t, ok)
	assert.Zero(t, last.TimeLeft)
	assert.NotEmpty(t, bus.received("c1", EventHintRevealed))
}

func TestArtistLeavesMidRound(t *testing.T) {
	svc, bus := newTestService(t, testOptions())
	room := newLobby(t, svc, "alice", "bobby", "carol")
	startDrawing(t, svc, room)

	svc.LeaveRoom(context.Background(), "c0")
	assert.Equal(t, PhaseRoundEnd, room.Phase())
	assert.NotEmpty(t, bus.received("c1", EventRoundEnd))
	assert.Equal(t, "c1", room.Snapshot().HostID)

	forceNextRound(svc, room)
	assert.Equal(t, "c1", artistConn(room))
	assert.Equal(t, PhaseRoundStart, room.Phase())
}

func TestLeaveBelowMinimumForcesGameEnd(t *testing.T) {
	svc, bus := newTestService(t, testOptions())
	room := newLobby(t, svc, "alice", "bobby")
	startDrawing(t, svc, room)

	svc.LeaveRoom(context.Background(), "c1")
	ended, ok := bus.last("c0", EventGameEnded).(GameEndedPayload)
	require.True(t, ok)
	assert.True(t, ended.Forced)
	assert.Equal(t, PhaseLobby, room.Phase())
	assert.Nil(t, inspect(room, func() *RoundTimer { return room.timer }))
}

func TestGuesserLeavingCompletesRound(t *testing.T) {
	svc, _ := newTestService(t, testOptions())
	room := newLobby(t, svc, "alice", "bobby", "carol")
	word := startDrawing(t, svc, room)

	require.NoError(t, svc.SendGuess(context.Background(), "c1", word))
	assert.Equal(t, PhaseDrawing, room.Phase())

	svc.LeaveRoom(context.Background(), "c2")
	assert.Equal(t, PhaseRoundEnd, room.Phase())
}

func TestDisconnectAndReconnect(t *testing.T) {
	ctx := context.Background()
	svc, bus := newTestService(t, testOptions())
	fixedClock(svc)
	room := newLobby(t, svc, "alice", "bobby", "carol")
	token := joinedToken(t, bus, "c1", EventRoomJoined)
	word := startDrawing(t, svc, room)
	require.NoError(t, svc.SendGuess(ctx, "c1", word))
	before := playerNamed(room, "bobby")

	svc.Disconnect("c1")
	assert.False(t, playerNamed(room, "bobby").Connected)
	assert.NotEmpty(t, bus.received("c0", EventPlayerDisconnected))
	_, bound := svc.Registry().LookupByConn("c1")
	assert.False(t, bound)
	assert.True(t, errors.Is(svc.SendGuess(ctx, "c1", "hi"), errors.ErrNotInRoom))

	got, err := svc.Reconnect(ctx, "c9", token)
	require.NoError(t, err)
	assert.Same(t, room, got)

	after := playerNamed(room, "bobby")
	assert.Equal(t, "c9", after.ID)
	assert.Equal(t, before.Key, after.Key)
	assert.Equal(t, before.Score, after.Score)
	assert.True(t, after.HasGuessed)
	assert.True(t, after.Connected)
	assert.Equal(t, 3, room.PlayerCount())

	success, ok := bus.last("c9", EventReconnectSuccess).(JoinedPayload)
	require.True(t, ok)
	assert.Equal(t, PhaseDrawing, success.Phase)
	assert.True(t, success.Round.HasGuessed)
	assert.Empty(t, success.Round.Word)
	assert.NotEmpty(t, bus.received("c0", EventPlayerReconnected))

	// 新连接可以继续发指令，仍然不会重复计分
	require.NoError(t, svc.SendGuess(ctx, "c9", word))
	assert.Equal(t, before.Score, playerNamed(room, "bobby").Score)

	sess, err := svc.sessions.Lookup(ctx, room.Code(), "bobby")
	require.NoError(t, err)
	assert.Equal(t, "c9", sess.PlayerID)
}

func TestLeaveRevokeKeepsRejoinedSession(t *testing.T) {
	ctx := context.Background()
	svc, bus := newTestService(t, testOptions())
	room := newLobby(t, svc, "alice", "bobby", "carol")
	oldToken := joinedToken(t, bus, "c1", EventRoomJoined)
	left := inspect(room, func() Player { return *room.playerByID("c1") })
	require.NotEmpty(t, left.SessionID)

	svc.LeaveRoom(ctx, "c1")
	_, err := svc.JoinRoom(ctx, "c9", room.Code(), "bobby")
	require.NoError(t, err)
	newToken := joinedToken(t, bus, "c9", EventRoomJoined)

	// 离开时的撤销晚于重新加入落库，只能影响旧会话
	require.NoError(t, svc.withRoom(room, "late_revoke", func() error {
		svc.revokeSession(room, &left)
		return nil
	}))

	_, err = svc.sessions.Resolve(ctx, oldToken)
	assert.Error(t, err)
	sess, err := svc.sessions.Resolve(ctx, newToken)
	require.NoError(t, err)
	assert.Equal(t, "c9", sess.PlayerID)
}

func TestReconnectArtistGetsWord(t *testing.T) {
	ctx := context.Background()
	svc, bus := newTestService(t, testOptions())
	room := newLobby(t, svc, "alice", "bobby")
	token := joinedToken(t, bus, "c0", EventRoomCreated)
	word := startDrawing(t, svc, room)

	svc.Disconnect("c0")
	_, err := svc.Reconnect(ctx, "c5", token)
	require.NoError(t, err)

	success := bus.last("c5", EventReconnectSuccess).(JoinedPayload)
	assert.Equal(t, word, success.Round.Word)
	assert.Equal(t, "c5", artistConn(room))
}

func TestReconnectRejectsRevokedToken(t *testing.T) {
	ctx := context.Background()
	svc, bus := newTestService(t, testOptions())
	room := newLobby(t, svc, "alice", "bobby", "carol")
	token := joinedToken(t, bus, "c2", EventRoomJoined)

	svc.LeaveRoom(ctx, "c2")
	_, err := svc.Reconnect(ctx, "c9", token)
	assert.True(t, errors.Is(err, errors.ErrSessionNotFound))

	_, err = svc.Reconnect(ctx, "c9", "garbage")
	assert.True(t, errors.Is(err, errors.ErrTokenInvalid))
	assert.Equal(t, 2, room.PlayerCount())
}

func TestGracePeriodRemovesPlayer(t *testing.T) {
	opts := testOptions()
	opts.GracePeriod = 20 * time.Millisecond
	svc, bus := newTestService(t, opts)
	room := newLobby(t, svc, "alice", "bobby", "carol")
	token := joinedToken(t, bus, "c2", EventRoomJoined)

	svc.Disconnect("c2")
	assert.Equal(t, 3, room.PlayerCount())
	require.Eventually(t, func() bool { return room.PlayerCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.NotEmpty(t, bus.received("c0", EventPlayerLeft))

	_, err := svc.Reconnect(context.Background(), "c9", token)
	assert.Error(t, err)
}

func TestDisconnectWithoutGraceRemovesImmediately(t *testing.T) {
	opts := testOptions()
	opts.GracePeriod = 0
	svc, _ := newTestService(t, opts)
	room := newLobby(t, svc, "alice", "bobby")

	svc.Disconnect("c1")
	assert.Equal(t, 1, room.PlayerCount())
}

func TestUpdateSettings(t *testing.T) {
	ctx := context.Background()
	svc, bus := newTestService(t, testOptions())
	room := newLobby(t, svc, "alice", "bobby", "carol")

	err := svc.UpdateSettings(ctx, "c1", &SettingsPatch{RoundTime: intPtr(60)})
	assert.True(t, errors.Is(err, errors.ErrNotHost))

	err = svc.UpdateSettings(ctx, "c0", &SettingsPatch{RoundTime: intPtr(10)})
	assert.Equal(t, "Round time must be between 30 and 180 seconds", errors.PublicMessage(err))

	err = svc.UpdateSettings(ctx, "c0", &SettingsPatch{MaxPlayers: intPtr(2)})
	assert.Equal(t, "Max players cannot be less than current player count", errors.PublicMessage(err))

	require.NoError(t, svc.UpdateSettings(ctx, "c0", &SettingsPatch{RoundTime: intPtr(60), HintsEnabled: boolPtr(false)}))
	updated, ok := bus.last("c2", EventSettingsUpdated).(SettingsPayload)
	require.True(t, ok)
	assert.Equal(t, Settings{RoundTime: 60, MaxRounds: 3, MaxPlayers: 8, HintsEnabled: false}, updated.Settings)
	assert.Equal(t, updated.Settings, room.Snapshot().Settings)

	require.NoError(t, svc.StartGame(ctx, "c0", nil))
	err = svc.UpdateSettings(ctx, "c0", &SettingsPatch{MaxRounds: intPtr(5)})
	assert.True(t, errors.Is(err, errors.ErrGameInProgress))
}

func TestDrawingCommandsOnlyFromArtist(t *testing.T) {
	svc, bus := newTestService(t, testOptions())
	room := newLobby(t, svc, "alice", "bobby", "carol")
	require.NoError(t, svc.StartGame(context.Background(), "c0", nil))

	// 选词前画板不接受笔画
	require.NoError(t, svc.DrawStroke("c0", seg(0, 0, 1, 1)))
	assert.Zero(t, bus.count(EventCanvasUpdate))

	selectFirstCandidate(t, svc, room)
	require.NoError(t, svc.DrawStroke("c1", seg(0, 0, 1, 1)))
	assert.Zero(t, bus.count(EventCanvasUpdate))

	require.NoError(t, svc.DrawStroke("c0", seg(0, 0, 1, 1)))
	require.NoError(t, svc.DrawStroke("c0", Stroke{Color: "#ff0000"}))
	assert.Len(t, bus.received("c1", EventCanvasUpdate), 1)
	assert.Len(t, bus.received("c2", EventCanvasUpdate), 1)
	assert.Empty(t, bus.received("c0", EventCanvasUpdate))

	require.NoError(t, svc.UndoStroke("c0"))
	assert.Len(t, bus.received("c1", EventUndoStroke), 1)
	require.NoError(t, svc.RedoStroke("c0", nil))
	redo, ok := bus.last("c1", EventRedoStroke).(RedoPayload)
	require.True(t, ok)
	assert.Equal(t, 1.0, *redo.Stroke.X1)
	assert.Len(t, room.Snapshot().Round.Strokes, 1)

	require.NoError(t, svc.ClearCanvas("c0"))
	cleared, ok := bus.last("c2", EventCanvasUpdate).(Stroke)
	require.True(t, ok)
	assert.Equal(t, StrokeTypeClear, cleared.Type)
	assert.Empty(t, room.Snapshot().Round.Strokes)

	require.NoError(t, svc.UndoStroke("c0"))
	assert.Len(t, bus.received("c1", EventUndoStroke), 1, "nothing to undo after clear")

	require.NoError(t, svc.ClearCanvas("c1"))
	assert.Len(t, bus.received("c2", EventCanvasUpdate), 2)
}

func TestClearStrokeClearsCanvas(t *testing.T) {
	svc, bus := newTestService(t, testOptions())
	room := newLobby(t, svc, "alice", "bobby")
	require.NoError(t, svc.StartGame(context.Background(), "c0", nil))
	selectFirstCandidate(t, svc, room)

	require.NoError(t, svc.DrawStroke("c0", seg(0, 0, 1, 1)))
	require.NoError(t, svc.DrawStroke("c0", seg(1, 1, 2, 2)))
	require.Len(t, room.Snapshot().Round.Strokes, 2)

	require.NoError(t, svc.DrawStroke("c0", Stroke{Type: StrokeTypeClear}))
	cleared, ok := bus.last("c1", EventCanvasUpdate).(Stroke)
	require.True(t, ok)
	assert.Equal(t, StrokeTypeClear, cleared.Type)
	assert.Empty(t, room.Snapshot().Round.Strokes)

	// 非画手的清屏笔画同样被丢弃
	require.NoError(t, svc.DrawStroke("c0", seg(2, 2, 3, 3)))
	require.NoError(t, svc.DrawStroke("c1", Stroke{Type: StrokeTypeClear}))
	assert.Len(t, room.Snapshot().Round.Strokes, 1)
}

func TestPanicIsIsolatedToCommand(t *testing.T) {
	svc, _ := newTestService(t, testOptions())
	room := newLobby(t, svc, "alice", "bobby")

	err := svc.withRoom(room, "explode", func() error {
		room.deferAfter(func() { panic("after hook") })
		panic("boom")
	})
	assert.True(t, errors.Is(err, errors.ErrPanic))

	err = svc.withRoom(room, "after_only", func() error {
		room.deferAfter(func() { panic("after hook") })
		return nil
	})
	assert.NoError(t, err)

	// 锁已释放，房间仍可用
	require.NoError(t, svc.StartGame(context.Background(), "c0", nil))
	assert.Equal(t, PhaseRoundStart, room.Phase())
}

func TestWordOfferRetry(t *testing.T) {
	opts := testOptions()
	opts.OfferRetry = 50 * time.Millisecond
	svc, bus := newTestService(t, opts)
	newLobby(t, svc, "alice", "bobby")

	bus.setFailing("c0", true)
	require.NoError(t, svc.StartGame(context.Background(), "c0", nil))
	bus.setFailing("c0", false)
	assert.Empty(t, bus.received("c0", EventYourTurn))

	require.Eventually(t, func() bool {
		return len(bus.received("c0", EventYourTurn)) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestResetGame(t *testing.T) {
	ctx := context.Background()
	svc, bus := newTestService(t, testOptions())
	room := newLobby(t, svc, "alice", "bobby")
	word := startDrawing(t, svc, room)
	require.NoError(t, svc.SendGuess(ctx, "c1", word))

	err := svc.ResetGame(ctx, "c1")
	assert.Equal(t, "Only the host can restart the game", errors.PublicMessage(err))

	require.NoError(t, svc.ResetGame(ctx, "c0"))
	assert.Equal(t, PhaseLobby, room.Phase())
	assert.Zero(t, playerNamed(room, "bobby").Score)
	assert.NotEmpty(t, bus.received("c1", EventGameReset))
	assert.Nil(t, inspect(room, func() *Task { return room.pending }))
}

func TestRoomSnapshotAndSessionView(t *testing.T) {
	ctx := context.Background()
	svc, bus := newTestService(t, testOptions())
	room := newLobby(t, svc, "alice", "bobby")
	token := joinedToken(t, bus, "c0", EventRoomCreated)
	word := startDrawing(t, svc, room)

	st, err := svc.RoomSnapshot(strings.ToLower(room.Code()))
	require.NoError(t, err)
	assert.Equal(t, PhaseDrawing, st.Phase)
	assert.Empty(t, st.Round.Word)
	assert.Equal(t, len([]rune(word)), st.Round.WordLength)

	_, err = svc.RoomSnapshot("QQQQQQ")
	assert.True(t, errors.Is(err, errors.ErrRoomNotFound))

	sess, view, err := svc.SessionView(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", sess.Username)
	assert.Equal(t, word, view.Round.Word)
}

func TestShutdownClosesRooms(t *testing.T) {
	svc, _ := newTestService(t, testOptions())
	room := newLobby(t, svc, "alice", "bobby")
	startDrawing(t, svc, room)

	svc.Shutdown()
	err := svc.StartGame(context.Background(), "c0", nil)
	assert.True(t, errors.Is(err, errors.ErrRoomNotFound))
	assert.Nil(t, inspect(room, func() *RoundTimer { return room.timer }))
}

func boolPtr(v bool) *bool { return &v }
