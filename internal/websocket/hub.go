package websocket

import (
	"sync"

	"go.uber.org/zap"
)

// Hub 连接管理中心，按房间码分组广播。
// 所有发送都是非阻塞的：缓冲区满的连接丢弃消息并记录警告。
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client

	protocol *Protocol

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once

	// onUnregister 连接注销后回调，在 Hub 锁外执行
	onUnregister func(connID string)

	logger *zap.Logger
}

// NewHub 创建Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		protocol:   NewProtocol(),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// OnUnregister 设置连接断开回调
func (h *Hub) OnUnregister(fn func(connID string)) {
	h.onUnregister = fn
}

// Run 处理注册和注销，直到 Stop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case <-h.done:
			h.closeAll()
			return
		}
	}
}

// Stop 停止Hub并关闭所有连接的发送通道
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Register 注册客户端
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()

	h.logger.Info("WebSocket客户端连接", zap.String("conn", client.ID))
	h.Send(client.ID, EventConnected, ConnectedPayload{ConnID: client.ID})
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client.ID]
	if ok {
		delete(h.clients, client.ID)
		h.dropFromRoomLocked(client)
		close(client.send)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	h.logger.Info("WebSocket客户端断开", zap.String("conn", client.ID))
	// 回调可能落库，不能占用 Run 循环
	if h.onUnregister != nil {
		go h.onUnregister(client.ID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		close(client.send)
		delete(h.clients, id)
	}
	h.rooms = make(map[string]map[string]*Client)
}

func (h *Hub) dropFromRoomLocked(client *Client) {
	if client.room == "" {
		return
	}
	if members, ok := h.rooms[client.room]; ok {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, client.room)
		}
	}
	client.room = ""
}

// Join 把连接加入房间广播组，一个连接只属于一个房间
func (h *Hub) Join(roomCode, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return
	}
	if client.room == roomCode {
		return
	}
	h.dropFromRoomLocked(client)
	members, ok := h.rooms[roomCode]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[roomCode] = members
	}
	members[connID] = client
	client.room = roomCode
}

// Leave 把连接移出房间广播组
func (h *Hub) Leave(roomCode, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connID]
	if !ok || client.room != roomCode {
		return
	}
	h.dropFromRoomLocked(client)
}

// Send 发送给单个连接
func (h *Hub) Send(connID, event string, payload any) error {
	data, err := h.protocol.EncodeServerMessage(event, payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[connID]
	if !ok {
		return ErrClientNotFound
	}
	if !h.deliver(client, event, data) {
		return ErrSendBufferFull
	}
	return nil
}

// Broadcast 广播给房间内所有连接
func (h *Hub) Broadcast(roomCode, event string, payload any) {
	h.BroadcastExcept(roomCode, "", event, payload)
}

// BroadcastExcept 广播给房间内除 exceptConnID 外的连接
func (h *Hub) BroadcastExcept(roomCode, exceptConnID, event string, payload any) {
	data, err := h.protocol.EncodeServerMessage(event, payload)
	if err != nil {
		h.logger.Error("序列化广播消息失败", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, client := range h.rooms[roomCode] {
		if id == exceptConnID {
			continue
		}
		h.deliver(client, event, data)
	}
}

// deliver 调用方持有读锁
func (h *Hub) deliver(client *Client, event string, data []byte) bool {
	select {
	case client.send <- data:
		return true
	default:
		h.logger.Warn("客户端发送缓冲区满，丢弃消息",
			zap.String("conn", client.ID),
			zap.String("event", event))
		return false
	}
}

// RoomMembers 房间广播组中的连接数
func (h *Hub) RoomMembers(roomCode string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomCode])
}

// GetOnlineCount 获取在线连接数
func (h *Hub) GetOnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
