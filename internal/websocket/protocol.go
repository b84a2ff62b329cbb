package websocket

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wfunc/draw-guess/internal/errors"
	"github.com/wfunc/draw-guess/internal/game"
)

// 客户端指令
const (
	CmdCreateRoom      = "create-room"
	CmdJoinRoom        = "join-room"
	CmdLeaveRoom       = "leave-room"
	CmdStartGame       = "start-game"
	CmdRequestWords    = "request-words"
	CmdSelectWord      = "select-word"
	CmdDrawStroke      = "draw-stroke"
	CmdClearCanvas     = "clear-canvas"
	CmdUndoStroke      = "undo-stroke"
	CmdRedoStroke      = "redo-stroke"
	CmdSendGuess       = "send-guess"
	CmdRestartGame     = "restart-game"
	CmdUpdateSettings  = "update-settings"
	CmdReconnectPlayer = "reconnect-player"
)

// 失败事件
const (
	EventRoomError      = "room-error"
	EventGameError      = "game-error"
	EventSettingsError  = "settings-error"
	EventReconnectError = "reconnect-error"
	EventConnected      = "connected"
)

// maxEventName 事件名长度上限
const maxEventName = 32

// ClientMessage 客户端消息 {event, data}
type ClientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ServerMessage 服务端消息
type ServerMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// ErrorPayload 失败事件内容
type ErrorPayload struct {
	Message string           `json:"message"`
	Code    errors.ErrorCode `json:"code"`
}

// ConnectedPayload 连接建立后下发的连接ID
type ConnectedPayload struct {
	ConnID string `json:"connId"`
}

// 各指令的请求体

type CreateRoomRequest struct {
	Username string `json:"username"`
}

type JoinRoomRequest struct {
	RoomCode string `json:"roomCode"`
	Username string `json:"username"`
}

type StartGameRequest struct {
	Settings *game.SettingsPatch `json:"settings,omitempty"`
}

type SelectWordRequest struct {
	Word string `json:"word"`
}

type SendGuessRequest struct {
	Guess string `json:"guess"`
}

type UpdateSettingsRequest struct {
	Settings *game.SettingsPatch `json:"settings"`
}

type ReconnectRequest struct {
	SessionToken string `json:"sessionToken"`
}

// Protocol JSON 信封编解码
type Protocol struct {
	Debug bool
}

// NewProtocol 创建协议处理器
func NewProtocol() *Protocol {
	return &Protocol{}
}

// DecodeClientMessage 解码客户端消息
func (p *Protocol) DecodeClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(err, errors.ErrMessageFormat)
	}
	msg.Event = strings.TrimSpace(msg.Event)
	if msg.Event == "" || len(msg.Event) > maxEventName {
		return nil, errors.New(errors.ErrMessageFormat, "事件名为空或过长")
	}
	return &msg, nil
}

// EncodeServerMessage 编码服务端消息
func (p *Protocol) EncodeServerMessage(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(ServerMessage{Event: event, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("编码消息 %s 失败: %w", event, err)
	}
	return data, nil
}

// CreateErrorResponse 把错误转换为可下发的内容，内部错误不暴露细节
func (p *Protocol) CreateErrorResponse(err error) ErrorPayload {
	code := errors.GetCode(err)
	if errors.CategoryOf(code) == errors.CategoryInternal {
		code = errors.ErrInternal
	}
	return ErrorPayload{Message: errors.PublicMessage(err), Code: code}
}

// DecodeData 解析指令数据，空数据保持零值
func DecodeData(msg *ClientMessage, v any) error {
	if len(msg.Data) == 0 || string(msg.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		return errors.Wrap(err, errors.ErrMessageFormat)
	}
	return nil
}

// ErrorEventFor 指令失败时使用的事件名，画板指令失败静默丢弃
func ErrorEventFor(cmd string) string {
	switch cmd {
	case CmdCreateRoom, CmdJoinRoom, CmdLeaveRoom:
		return EventRoomError
	case CmdUpdateSettings:
		return EventSettingsError
	case CmdReconnectPlayer:
		return EventReconnectError
	case CmdDrawStroke, CmdClearCanvas, CmdUndoStroke, CmdRedoStroke:
		return ""
	default:
		return EventGameError
	}
}
