// internal/service/push/client.go
package push

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"haggle/internal/pkg/logger"
	"haggle/internal/pkg/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { // 简化处理，允许所有跨域
		return true
	},
}

// Client 是一个WebSocket连接的代表
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	userID     string
	sessionMgr *session.Manager
}

// writePump 把 send channel 里的消息写到连接上，并周期性发送心跳。
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了通道
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 消费客户端上行消息（目前只有心跳），并在连接断开时注销。
func (c *Client) readPump() {
	defer func() {
		// Hub 已经关停时注销通道没有消费者，不能死等
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
		if c.sessionMgr != nil {
			if err := c.sessionMgr.RemoveUserGateway(context.Background(), c.userID); err != nil {
				logger.Logger.Warn().Err(err).Str("user_id", c.userID).Msg("failed to clear gateway session")
			}
		}
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// ServeWS 把 HTTP 请求升级为 WebSocket 并接入 Hub。
func ServeWS(hub *Hub, sessionMgr *session.Manager, w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	// 先在 Redis 中登记用户所在的网关节点；登记失败就不接入 Hub，
	// 不然会留下一个没有读写泵的死连接占着用户位
	if err := sessionMgr.SetUserGateway(context.Background(), userID, hub.nodeID); err != nil {
		logger.Logger.Error().Err(err).Str("user_id", userID).Msg("failed to set gateway session")
		conn.Close()
		return
	}

	client := &Client{hub: hub, conn: conn, send: make(chan []byte, 256), userID: userID, sessionMgr: sessionMgr}
	select {
	case client.hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
