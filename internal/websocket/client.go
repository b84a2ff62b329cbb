package websocket

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wfunc/draw-guess/internal/config"
	"github.com/wfunc/draw-guess/internal/logger"
	"go.uber.org/zap"
)

// 错误定义
var (
	ErrClientNotFound = errors.New("客户端未找到")
	ErrSendBufferFull = errors.New("发送缓冲区已满")
)

// 未配置时使用的连接参数
const (
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 64 * 1024
	defaultSendBuffer     = 256
)

// connTimings 单个连接的读写时限
type connTimings struct {
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	maxMessageSize int64
	sendBuffer     int
}

func timingsFrom(cfg *config.WebSocketConfig) connTimings {
	t := connTimings{
		writeWait:      defaultWriteWait,
		pongWait:       defaultPongWait,
		maxMessageSize: defaultMaxMessageSize,
		sendBuffer:     defaultSendBuffer,
	}
	if cfg != nil {
		if cfg.WriteTimeout > 0 {
			t.writeWait = cfg.WriteTimeout
		}
		if cfg.PongTimeout > 0 {
			t.pongWait = cfg.PongTimeout
		}
		if cfg.PingInterval > 0 {
			t.pingPeriod = cfg.PingInterval
		}
		if cfg.MaxMessageSize > 0 {
			t.maxMessageSize = cfg.MaxMessageSize
		}
		if cfg.SendBuffer > 0 {
			t.sendBuffer = cfg.SendBuffer
		}
	}
	// ping 周期必须小于 pong 超时
	if t.pingPeriod <= 0 || t.pingPeriod >= t.pongWait {
		t.pingPeriod = t.pongWait * 9 / 10
	}
	return t
}

// MessageHandler 处理客户端上行消息
type MessageHandler interface {
	HandleClientMessage(ctx context.Context, c *Client, data []byte)
}

// Client 一个 WebSocket 连接
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	room string // 由 Hub 在锁内维护

	timings connTimings
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewClient 创建新客户端，连接ID即玩家ID
func NewClient(hub *Hub, conn *websocket.Conn, cfg *config.WebSocketConfig) *Client {
	t := timingsFrom(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:      uuid.New().String(),
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, t.sendBuffer),
		timings: t,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ReadPump 读取消息直到连接关闭，退出时注销客户端
func (c *Client) ReadPump(handler MessageHandler) {
	defer func() {
		c.cancel()
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.timings.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.timings.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.timings.pongWait))
		return nil
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket读取错误",
					zap.String("conn", c.ID),
					zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		handler.HandleClientMessage(c.ctx, c, message)
	}
}

// WritePump 把发送通道中的消息逐帧写出，并定期发送 ping
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.timings.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.timings.writeWait))
			if !ok {
				// Hub关闭了通道
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.LogWebSocketMessage("send_failed", "text", c.ID)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.timings.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Context 连接生命周期的上下文，连接关闭时取消
func (c *Client) Context() context.Context {
	return c.ctx
}
