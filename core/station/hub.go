package station

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"WaveFM/cache"
	"WaveFM/logger"
	"WaveFM/model"

	"github.com/gorilla/websocket"
)

// Listener 一个已连接的监听者
type Listener struct {
	Hub       *Hub
	Conn      *websocket.Conn
	Send      chan []byte
	ChannelID int64
	UUID      string // 监听者身份，评分用
}

// broadcastMessage 投递到某个频道组的消息
type broadcastMessage struct {
	group   string
	message []byte
}

// Hub 监听者广播中心。按频道分组（组名 "#<channelID>"），
// 事件按进入顺序投递，单个频道内不会乱序。
type Hub struct {
	// 组 -> 监听者集合
	groups map[string]map[*Listener]bool

	register   chan *Listener
	unregister chan *Listener
	broadcast  chan *broadcastMessage

	mu   sync.RWMutex
	done chan struct{}
}

// NewHub 创建广播中心
func NewHub() *Hub {
	return &Hub{
		groups:     make(map[string]map[*Listener]bool),
		register:   make(chan *Listener),
		unregister: make(chan *Listener),
		broadcast:  make(chan *broadcastMessage, 256),
		done:       make(chan struct{}),
	}
}

// GroupName 频道对应的广播组名
func GroupName(channelID int64) string {
	return fmt.Sprintf("#%d", channelID)
}

// Run 启动主循环
func (h *Hub) Run() {
	for {
		select {
		case listener := <-h.register:
			h.registerListener(listener)

		case listener := <-h.unregister:
			h.unregisterListener(listener)

		case msg := <-h.broadcast:
			h.broadcastToGroup(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止主循环并断开所有监听者
func (h *Hub) Stop() {
	close(h.done)
}

// Register 注册监听者
func (h *Hub) Register(listener *Listener) {
	h.register <- listener
}

// Unregister 注销监听者
func (h *Hub) Unregister(listener *Listener) {
	h.unregister <- listener
}

// Broadcast 向频道组广播事件
func (h *Hub) Broadcast(channelID int64, ev *model.ChannelEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.broadcast <- &broadcastMessage{group: GroupName(channelID), message: data}
	return nil
}

// ListenerCount 频道组当前的监听者数量，组不存在时为 0
func (h *Hub) ListenerCount(channelID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[GroupName(channelID)])
}

func (h *Hub) registerListener(listener *Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group := GroupName(listener.ChannelID)
	if h.groups[group] == nil {
		h.groups[group] = make(map[*Listener]bool)
	}
	h.groups[group][listener] = true

	// 同步 Redis 在线状态
	ctx := context.Background()
	channelCache := cache.NewChannelCache()
	if err := channelCache.UpdateListenerPresence(ctx, listener.ChannelID, listener.UUID); err != nil {
		logger.Warn("failed to update listener presence on register",
			logger.ErrorField(err),
			logger.Int64("channel", listener.ChannelID),
			logger.String("listener", listener.UUID))
	}

	logger.Info("listener joined",
		logger.Int64("channel", listener.ChannelID),
		logger.String("listener", listener.UUID))
}

func (h *Hub) unregisterListener(listener *Listener) {
	h.mu.Lock()
	removed := h.removeListenerLocked(listener)
	h.mu.Unlock()

	if !removed {
		return
	}

	ctx := context.Background()
	channelCache := cache.NewChannelCache()
	if err := channelCache.RemoveListenerPresence(ctx, listener.ChannelID, listener.UUID); err != nil {
		logger.Warn("failed to remove listener presence on unregister",
			logger.ErrorField(err),
			logger.Int64("channel", listener.ChannelID),
			logger.String("listener", listener.UUID))
	}

	logger.Info("listener left",
		logger.Int64("channel", listener.ChannelID),
		logger.String("listener", listener.UUID))
}

// removeListenerLocked 把监听者移出所在组并关闭其发送通道。
// 调用方必须持有 h.mu；已移除过的监听者返回 false。
func (h *Hub) removeListenerLocked(listener *Listener) bool {
	group := GroupName(listener.ChannelID)
	listeners, ok := h.groups[group]
	if !ok {
		return false
	}
	if _, ok := listeners[listener]; !ok {
		return false
	}

	delete(listeners, listener)
	close(listener.Send)
	if len(listeners) == 0 {
		delete(h.groups, group)
	}
	return true
}

func (h *Hub) broadcastToGroup(msg *broadcastMessage) {
	h.mu.RLock()
	listeners, ok := h.groups[msg.group]
	if !ok {
		h.mu.RUnlock()
		return
	}

	// 复制监听者列表，避免发送期间长时间持锁
	targets := make([]*Listener, 0, len(listeners))
	for listener := range listeners {
		targets = append(targets, listener)
	}
	h.mu.RUnlock()

	var slow []*Listener
	for _, listener := range targets {
		select {
		case listener.Send <- msg.message:
		default:
			slow = append(slow, listener)
		}
	}

	// 发送缓冲区满的监听者就地断开。不能投回 unregister 通道：
	// 主循环正停在这里，没人消费，会把整个 Hub 锁死。
	for _, listener := range slow {
		logger.Warn("disconnecting slow listener",
			logger.Int64("channel", listener.ChannelID),
			logger.String("listener", listener.UUID))
		h.unregisterListener(listener)
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, listeners := range h.groups {
		for listener := range listeners {
			close(listener.Send)
		}
	}
	h.groups = make(map[string]map[*Listener]bool)
}

// ========== Listener 方法 ==========

// ReadPump 读取循环：只处理心跳，监听者不上行业务消息
func (l *Listener) ReadPump(ctx context.Context) {
	defer func() {
		l.Hub.Unregister(l)
		l.Conn.Close()
	}()

	l.Conn.SetReadLimit(1024)
	l.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	l.Conn.SetPongHandler(func(string) error {
		l.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if _, _, err := l.Conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warn("websocket read error",
						logger.ErrorField(err),
						logger.Int64("channel", l.ChannelID),
						logger.String("listener", l.UUID))
				}
				return
			}

			// 任何上行消息都当作心跳
			channelCache := cache.NewChannelCache()
			if err := channelCache.UpdateListenerPresence(ctx, l.ChannelID, l.UUID); err != nil {
				logger.Warn("failed to update listener presence",
					logger.ErrorField(err),
					logger.Int64("channel", l.ChannelID),
					logger.String("listener", l.UUID))
			}
		}
	}
}

// WritePump 写入循环
func (l *Listener) WritePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		l.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-l.Send:
			l.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub 关闭了通道
				l.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := l.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// 合并发送队列中积压的消息
			n := len(l.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-l.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			l.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := l.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
