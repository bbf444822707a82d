// internal/pkg/session/manager.go
package session

import (
	"context"
	"fmt"
	"time"

	"haggle/internal/pkg/redis"
)

const gatewayKeyTTL = 24 * time.Hour

// Manager 在 Redis 里维护 用户 -> 推送网关节点 的映射，
// 让消息路由方知道某个在线用户挂在哪个网关实例上。
type Manager struct {
	client *redis.Client
}

func NewManager(client *redis.Client) *Manager {
	return &Manager{client: client}
}

func gatewayKey(userID string) string {
	return fmt.Sprintf("push:gateway:%s", userID)
}

// SetUserGateway 记录用户当前连接的网关节点。
func (m *Manager) SetUserGateway(ctx context.Context, userID, nodeID string) error {
	return m.client.GetClient().Set(ctx, gatewayKey(userID), nodeID, gatewayKeyTTL).Err()
}

// RemoveUserGateway 在连接断开时清理映射。
func (m *Manager) RemoveUserGateway(ctx context.Context, userID string) error {
	return m.client.GetClient().Del(ctx, gatewayKey(userID)).Err()
}
