package websocket

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/wfunc/draw-guess/internal/config"
	"github.com/wfunc/draw-guess/internal/errors"
	"github.com/wfunc/draw-guess/internal/game"
	"github.com/wfunc/draw-guess/internal/logger"
	"go.uber.org/zap"
)

// GameCommands 连接层需要的游戏指令，由 game.Service 实现
type GameCommands interface {
	CreateRoom(ctx context.Context, connID, username string) (*game.Room, error)
	JoinRoom(ctx context.Context, connID, code, username string) (*game.Room, error)
	LeaveRoom(ctx context.Context, connID string)
	StartGame(ctx context.Context, connID string, patch *game.SettingsPatch) error
	RequestWords(ctx context.Context, connID string) error
	SelectWord(ctx context.Context, connID, word string) error
	DrawStroke(connID string, stroke game.Stroke) error
	ClearCanvas(connID string) error
	UndoStroke(connID string) error
	RedoStroke(connID string, stroke *game.Stroke) error
	SendGuess(ctx context.Context, connID, text string) error
	ResetGame(ctx context.Context, connID string) error
	UpdateSettings(ctx context.Context, connID string, patch *game.SettingsPatch) error
	Reconnect(ctx context.Context, connID, token string) (*game.Room, error)
	Disconnect(connID string)
}

// Handler WebSocket 接入与指令分发
type Handler struct {
	game     GameCommands
	hub      *Hub
	cfg      *config.WebSocketConfig
	upgrader websocket.Upgrader
	protocol *Protocol
	logger   *zap.Logger
}

// NewHandler 创建处理器，连接断开时通知游戏服务
func NewHandler(commands GameCommands, hub *Hub, cfg *config.WebSocketConfig, origins []string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg == nil {
		cfg = &config.WebSocketConfig{}
	}
	h := &Handler{
		game:     commands,
		hub:      hub,
		cfg:      cfg,
		protocol: NewProtocol(),
		logger:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    cfg.ReadBufferSize,
			WriteBufferSize:   cfg.WriteBufferSize,
			EnableCompression: cfg.EnableCompression,
			CheckOrigin:       originChecker(origins),
		},
	}
	hub.OnUnregister(commands.Disconnect)
	return h
}

// originChecker 允许列表为空或包含 * 时放行所有来源
func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[strings.TrimRight(origin, "/")]
		return ok
	}
}

// HandleWebSocket 升级连接并启动读写循环
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket升级失败", zap.Error(err))
		return
	}

	client := NewClient(h.hub, conn, h.cfg)
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump(h)
}

// HandleClientMessage 解码并分发一条客户端消息
func (h *Handler) HandleClientMessage(ctx context.Context, c *Client, data []byte) {
	msg, err := h.protocol.DecodeClientMessage(data)
	if err != nil {
		h.logger.Debug("丢弃无法解析的消息", zap.String("conn", c.ID), zap.Error(err))
		h.hub.Send(c.ID, EventGameError, h.protocol.CreateErrorResponse(err))
		return
	}
	logger.LogWebSocketMessage("recv", msg.Event, c.ID)

	if err := h.dispatch(ctx, c.ID, msg); err != nil {
		h.reply(c.ID, msg.Event, err)
	}
}

func (h *Handler) reply(connID, cmd string, err error) {
	event := ErrorEventFor(cmd)
	if event == "" {
		h.logger.Debug("画板指令被丢弃", zap.String("conn", connID), zap.String("cmd", cmd), zap.Error(err))
		return
	}
	if errors.GetCategory(err) == errors.CategoryInternal {
		h.logger.Error("指令执行失败", zap.String("conn", connID), zap.String("cmd", cmd), zap.Error(err))
	}
	h.hub.Send(connID, event, h.protocol.CreateErrorResponse(err))
}

func (h *Handler) dispatch(ctx context.Context, connID string, msg *ClientMessage) error {
	switch msg.Event {
	case CmdCreateRoom:
		var req CreateRoomRequest
		if err := DecodeData(msg, &req); err != nil {
			return err
		}
		_, err := h.game.CreateRoom(ctx, connID, req.Username)
		return err

	case CmdJoinRoom:
		var req JoinRoomRequest
		if err := DecodeData(msg, &req); err != nil {
			return err
		}
		_, err := h.game.JoinRoom(ctx, connID, req.RoomCode, req.Username)
		return err

	case CmdLeaveRoom:
		h.game.LeaveRoom(ctx, connID)
		return nil

	case CmdStartGame:
		var req StartGameRequest
		if err := DecodeData(msg, &req); err != nil {
			return err
		}
		return h.game.StartGame(ctx, connID, req.Settings)

	case CmdRequestWords:
		return h.game.RequestWords(ctx, connID)

	case CmdSelectWord:
		var req SelectWordRequest
		if err := DecodeData(msg, &req); err != nil {
			return err
		}
		return h.game.SelectWord(ctx, connID, req.Word)

	case CmdDrawStroke:
		var stroke game.Stroke
		if err := DecodeData(msg, &stroke); err != nil {
			return err
		}
		return h.game.DrawStroke(connID, stroke)

	case CmdClearCanvas:
		return h.game.ClearCanvas(connID)

	case CmdUndoStroke:
		return h.game.UndoStroke(connID)

	case CmdRedoStroke:
		var stroke game.Stroke
		if err := DecodeData(msg, &stroke); err != nil {
			return err
		}
		if !stroke.Valid() {
			return h.game.RedoStroke(connID, nil)
		}
		return h.game.RedoStroke(connID, &stroke)

	case CmdSendGuess:
		var req SendGuessRequest
		if err := DecodeData(msg, &req); err != nil {
			return err
		}
		return h.game.SendGuess(ctx, connID, req.Guess)

	case CmdRestartGame:
		return h.game.ResetGame(ctx, connID)

	case CmdUpdateSettings:
		var req UpdateSettingsRequest
		if err := DecodeData(msg, &req); err != nil {
			return err
		}
		if req.Settings == nil {
			return errors.New(errors.ErrInvalidSettings)
		}
		return h.game.UpdateSettings(ctx, connID, req.Settings)

	case CmdReconnectPlayer:
		var req ReconnectRequest
		if err := DecodeData(msg, &req); err != nil {
			return err
		}
		if req.SessionToken == "" {
			return errors.New(errors.ErrSessionNotFound)
		}
		_, err := h.game.Reconnect(ctx, connID, req.SessionToken)
		return err

	default:
		return errors.New(errors.ErrMessageFormat, "未知指令: "+msg.Event)
	}
}
