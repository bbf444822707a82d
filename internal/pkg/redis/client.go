// internal/pkg/redis/client.go
package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Client 封装了 go-redis 客户端。
type Client struct {
	client *goredis.Client
}

// NewClient 创建一个新的 Redis 客户端封装。
func NewClient(addr string) *Client {
	return &Client{
		client: goredis.NewClient(&goredis.Options{
			Addr: addr,
		}),
	}
}

// GetClient 暴露底层客户端，供需要 pipeline 等高级能力的调用方使用。
func (c *Client) GetClient() *goredis.Client {
	return c.client
}

// SetNX 带 TTL 的原子占位写，常用于幂等去重。返回 true 表示占位成功。
func (c *Client) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, value, ttl).Result()
}

// Close 关闭底层连接。
func (c *Client) Close() error {
	return c.client.Close()
}
