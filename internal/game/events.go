package game

// 下行事件名称
const (
	EventRoomCreated        = "room-created"
	EventRoomJoined         = "room-joined"
	EventPlayerJoined       = "player-joined"
	EventPlayerLeft         = "player-left"
	EventPlayerDisconnected = "player-disconnected"
	EventPlayerReconnected  = "player-reconnected"
	EventHostChanged        = "host-changed"

	EventGameStarted    = "game-started"
	EventRoundStarted   = "round-started"
	EventYourTurn       = "your-turn"
	EventWordSelected   = "word-selected"
	EventDrawingStarted = "drawing-started"
	EventTimerUpdate    = "timer-update"
	EventHintRevealed   = "hint-revealed"
	EventRoundEnd       = "round-end"
	EventGameEnded      = "game-ended"
	EventGameReset      = "game-reset"

	EventCorrectGuess  = "correct-guess"
	EventUpdatePlayers = "update-players"
	EventNewMessage    = "new-message"
	EventCloseGuess    = "close-guess"

	EventCanvasUpdate = "canvas-update"
	EventUndoStroke   = "undo-stroke"
	EventRedoStroke   = "redo-stroke"

	EventSettingsUpdated  = "settings-updated"
	EventReconnectSuccess = "reconnect-success"
)

// Broadcaster 房间广播组。所有方法都必须是非阻塞的，
// 慢连接的消息直接丢弃，不能拖住房间处理。
type Broadcaster interface {
	Join(roomCode, connID string)
	Leave(roomCode, connID string)
	Send(connID, event string, payload any) error
	Broadcast(roomCode, event string, payload any)
	BroadcastExcept(roomCode, exceptConnID, event string, payload any)
}

// ChatMessage 聊天消息
type ChatMessage struct {
	Username string `json:"username"`
	Message  string `json:"message"`
	Type     string `json:"type"` // message, system
}

func systemMessage(text string) ChatMessage {
	return ChatMessage{Username: "System", Message: text, Type: "system"}
}

// JoinedPayload room-created / room-joined / reconnect-success
type JoinedPayload struct {
	RoomState
	SessionToken string `json:"sessionToken,omitempty"`
}

// PlayersPayload 成员变化通知
type PlayersPayload struct {
	Username string       `json:"username,omitempty"`
	Players  []PlayerView `json:"players"`
}

// HostChangedPayload 房主变更
type HostChangedPayload struct {
	HostID   string `json:"hostId"`
	Username string `json:"username"`
}

// GameStartedPayload 游戏开始
type GameStartedPayload struct {
	Settings  Settings     `json:"settings"`
	Players   []PlayerView `json:"players"`
	MaxRounds int          `json:"maxRounds"`
}

// RoundStartedPayload 新回合
type RoundStartedPayload struct {
	Round       int          `json:"round"`
	MaxRounds   int          `json:"maxRounds"`
	Drawer      string       `json:"drawer"`
	DrawerID    string       `json:"drawerId"`
	ArtistIndex int          `json:"currentDrawer"`
	Players     []PlayerView `json:"players"`
}

// YourTurnPayload 画手的候选词
type YourTurnPayload struct {
	Words    []string `json:"words"`
	Round    int      `json:"round"`
	RoomCode string   `json:"roomCode"`
}

// WordSelectedPayload 非画手看到的词长和提示
type WordSelectedPayload struct {
	WordLength int    `json:"wordLength"`
	Pattern    string `json:"pattern"`
}

// DrawingStartedPayload 开始作画
type DrawingStartedPayload struct {
	Drawer   string `json:"drawer"`
	DrawerID string `json:"drawerId"`
	TimeLeft int    `json:"timeLeft"`
	Round    int    `json:"round"`
}

// TimerPayload 倒计时
type TimerPayload struct {
	TimeLeft int    `json:"timeLeft"`
	RoomCode string `json:"roomCode"`
}

// HintPayload 提示
type HintPayload struct {
	Hint string `json:"hint"`
}

// CorrectGuessPayload 猜中通知
type CorrectGuessPayload struct {
	Username     string  `json:"username"`
	Points       int     `json:"points"`
	Drawer       string  `json:"drawer"`
	DrawerPoints int     `json:"drawerPoints"`
	Bonuses      Bonuses `json:"bonuses"`
	TimeElapsed  int     `json:"timeElapsed"`
}

// CloseGuessPayload 接近提示，只发给猜词者
type CloseGuessPayload struct {
	Guess   string `json:"guess"`
	Message string `json:"message"`
}

// RoundEndPayload 回合结算
type RoundEndPayload struct {
	Word          string         `json:"word"`
	Scores        []ScoreLine    `json:"scores"`
	Drawer        string         `json:"drawer"`
	Round         int            `json:"round"`
	RoundEndBonus RoundEndResult `json:"roundEndBonus"`
}

// Winner 冠军
type Winner struct {
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// GameEndedPayload 整局结束
type GameEndedPayload struct {
	Winner *Winner     `json:"winner"`
	Scores []ScoreLine `json:"scores"`
	Forced bool        `json:"forced,omitempty"`
}

// ResetPayload 重开
type ResetPayload struct {
	Players  []PlayerView `json:"players"`
	Settings Settings     `json:"settings"`
}

// SettingsPayload 设置变更
type SettingsPayload struct {
	Settings Settings `json:"settings"`
}

// RedoPayload 重做的笔画
type RedoPayload struct {
	Stroke Stroke `json:"stroke"`
}
