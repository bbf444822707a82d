// internal/service/push/hub.go
package push

import (
	"context"
	"sync"

	"haggle/internal/pkg/logger"
)

// Hub 维护所有活跃的 WebSocket 连接，并按 UserID 定向投递消息。
type Hub struct {
	clients    map[string]*Client // 使用UserID作为Key
	register   chan *Client
	unregister chan *Client
	lock       sync.RWMutex
	done       chan struct{} // Run 退出后关闭，让挂在 register/unregister 上的连接解除阻塞

	nodeID string
}

func NewHub(nodeID string) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		nodeID:     nodeID,
	}
}

// Run 驱动注册/注销循环，直到 ctx 取消。
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case client := <-h.register:
			h.lock.Lock()
			// 同一用户重连时踢掉旧连接
			if old, ok := h.clients[client.userID]; ok {
				close(old.send)
			}
			h.clients[client.userID] = client
			h.lock.Unlock()
			logger.Logger.Info().Str("user_id", client.userID).Str("node", h.nodeID).Msg("client registered")
		case client := <-h.unregister:
			h.lock.Lock()
			if current, ok := h.clients[client.userID]; ok && current == client {
				delete(h.clients, client.userID)
				close(client.send)
			}
			h.lock.Unlock()
			logger.Logger.Info().Str("user_id", client.userID).Msg("client unregistered")
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return nil
		}
	}
}

// Push 向指定用户投递一条消息。用户不在本节点时返回 false。
// 发送必须在读锁内完成：send 通道只会在写锁内被关闭，
// 锁外发送会撞上重连/注销时刚关闭的通道。
func (h *Hub) Push(userID string, message []byte) bool {
	h.lock.RLock()
	defer h.lock.RUnlock()
	client, ok := h.clients[userID]
	if !ok {
		return false
	}
	select {
	case client.send <- message:
		return true
	default:
		// 发送缓冲已满，视为连接不健康
		return false
	}
}

func (h *Hub) closeAll() {
	h.lock.Lock()
	defer h.lock.Unlock()
	for userID, client := range h.clients {
		close(client.send)
		delete(h.clients, userID)
	}
}
