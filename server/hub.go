package server

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"MTCPlayer/logger"
	"MTCPlayer/model"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 8192
	sendBuffer     = 256
)

// PresenceRecorder mirrors relay presence into a shared store (redis).
type PresenceRecorder interface {
	Heartbeat(ctx context.Context, room string, p model.Presence) error
	Remove(ctx context.Context, room, peer string) error
}

// Client 中继客户端
type Client struct {
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte
	Room string
	Peer string

	mu       sync.RWMutex
	presence *model.Presence
}

// Hub 派对中继中心：按房间转发帧并维护在线列表
type Hub struct {
	// 房间 -> 客户端集合
	rooms map[string]map[*Client]bool

	// roomID:peerID -> 客户端（一个 peer 在一个房间只能有一个连接）
	peers map[string]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan *outbound

	presence PresenceRecorder

	mu   sync.RWMutex
	done chan struct{}
	once sync.Once
}

type outbound struct {
	room    string
	data    []byte
	exclude *Client
}

// NewHub 创建中继 Hub，presence 可为 nil
func NewHub(presence PresenceRecorder) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		peers:      make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *outbound, sendBuffer),
		presence:   presence,
		done:       make(chan struct{}),
	}
}

// Run 启动 Hub 主循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.broadcastToRoom(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := peerKey(client.Room, client.Peer)
	// 同一 peer 重连，踢掉旧连接
	if old, ok := h.peers[key]; ok {
		h.removeLocked(old)
	}
	if h.rooms[client.Room] == nil {
		h.rooms[client.Room] = make(map[*Client]bool)
	}
	h.rooms[client.Room][client] = true
	h.peers[key] = client

	logger.Info("relay client registered",
		logger.String("room", client.Room),
		logger.String("peer", client.Peer))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

// removeLocked 移除客户端并通知房间其他人（需要持有锁）
func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.rooms[client.Room]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.rooms, client.Room)
	}
	key := peerKey(client.Room, client.Peer)
	if h.peers[key] == client {
		delete(h.peers, key)
	}

	if p := client.Presence(); p != nil {
		if h.presence != nil {
			if err := h.presence.Remove(context.Background(), client.Room, client.Peer); err != nil {
				logger.Warn("failed to remove peer presence",
					logger.ErrorField(err),
					logger.String("room", client.Room),
					logger.String("peer", client.Peer))
			}
		}
		h.fanoutLocked(client.Room, model.RelayFrame{Type: model.RelayLeave, Room: client.Room, Presences: []model.Presence{*p}}, nil)
		h.syncLocked(client.Room)
	}

	logger.Info("relay client unregistered",
		logger.String("room", client.Room),
		logger.String("peer", client.Peer))
}

// track 记录 peer 在线状态并广播 join + sync
func (h *Hub) track(client *Client, p model.Presence) {
	p.PeerID = client.Peer
	client.mu.Lock()
	client.presence = &p
	client.mu.Unlock()

	if h.presence != nil {
		if err := h.presence.Heartbeat(context.Background(), client.Room, p); err != nil {
			logger.Warn("failed to update peer presence",
				logger.ErrorField(err),
				logger.String("room", client.Room),
				logger.String("peer", client.Peer))
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.rooms[client.Room][client] {
		return
	}
	h.fanoutLocked(client.Room, model.RelayFrame{Type: model.RelayJoin, Room: client.Room, Presences: []model.Presence{p}}, nil)
	h.syncLocked(client.Room)
}

func (h *Hub) syncLocked(room string) {
	list := make([]model.Presence, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		if p := c.Presence(); p != nil {
			list = append(list, *p)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].PeerID < list[j].PeerID })
	h.fanoutLocked(room, model.RelayFrame{Type: model.RelaySync, Room: room, Presences: list}, nil)
}

func (h *Hub) fanoutLocked(room string, f model.RelayFrame, exclude *Client) {
	data, err := json.Marshal(f)
	if err != nil {
		logger.Error("marshal relay frame failed", logger.ErrorField(err))
		return
	}
	for c := range h.rooms[room] {
		if c == exclude {
			continue
		}
		select {
		case c.Send <- data:
		default:
			logger.Warn("relay send buffer full, dropping frame",
				logger.String("room", room),
				logger.String("peer", c.Peer))
		}
	}
}

// broadcastToRoom 向房间广播消息
func (h *Hub) broadcastToRoom(msg *outbound) {
	h.mu.RLock()
	clients, ok := h.rooms[msg.room]
	if !ok {
		h.mu.RUnlock()
		return
	}
	// 复制客户端列表以避免长时间持有锁
	list := make([]*Client, 0, len(clients))
	for c := range clients {
		if c != msg.exclude {
			list = append(list, c)
		}
	}
	h.mu.RUnlock()

	var slow []*Client
	for _, c := range list {
		if !h.trySend(c, msg.data) {
			slow = append(slow, c)
		}
	}
	// 发送缓冲区满，移除客户端
	for _, c := range slow {
		h.unregisterClient(c)
	}
}

// trySend delivers unless the buffer is full or the client was removed
// concurrently (closed Send).
func (h *Hub) trySend(c *Client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.rooms[c.Room][c] {
		return true
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// Publish 广播帧给房间内除 from 外的所有客户端
func (h *Hub) Publish(from *Client, f model.RelayFrame) error {
	f.Room, f.Peer = from.Room, from.Peer
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- &outbound{room: from.Room, data: data, exclude: from}:
	case <-h.done:
	}
	return nil
}

// PeerCount 房间内已宣告在线的 peer 数量
func (h *Hub) PeerCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.rooms[room] {
		if c.Presence() != nil {
			n++
		}
	}
	return n
}

// RoomCount 活跃房间数量
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// cleanup 清理所有连接
func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.rooms {
		for c := range clients {
			close(c.Send)
		}
	}
	h.rooms = make(map[string]map[*Client]bool)
	h.peers = make(map[string]*Client)
}

func peerKey(room, peer string) string {
	return room + ":" + peer
}

// ========== Client 方法 ==========

// Presence 返回 peer 宣告的在线信息（线程安全）
func (c *Client) Presence() *model.Presence {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.presence
}

// ReadPump 读取消息循环
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error",
					logger.ErrorField(err),
					logger.String("room", c.Room),
					logger.String("peer", c.Peer))
			}
			return
		}

		var f model.RelayFrame
		if err := json.Unmarshal(message, &f); err != nil {
			logger.Warn("invalid relay frame", logger.ErrorField(err), logger.String("room", c.Room))
			continue
		}

		switch f.Type {
		case model.RelayTrack:
			if len(f.Presences) == 0 {
				continue
			}
			c.Hub.track(c, f.Presences[0])
		case model.RelayBroadcast:
			if err := c.Hub.Publish(c, f); err != nil {
				logger.Warn("relay publish failed", logger.ErrorField(err), logger.String("room", c.Room))
			}
		default:
			logger.Debug("ignoring relay frame", logger.String("type", string(f.Type)), logger.String("peer", c.Peer))
		}
	}
}

// WritePump 写入消息循环
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// 合并发送队列中的消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
