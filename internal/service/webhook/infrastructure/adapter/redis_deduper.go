// internal/service/webhook/infrastructure/adapter/redis_deduper.go
package adapter

import (
	"context"
	"time"

	"haggle/internal/pkg/redis"
)

// RedisDeduper 用 Redis SETNX 做 Webhook 投递去重。
// key 在 TTL 内只会被占位一次，之后的同 key 投递视为重复。
type RedisDeduper struct {
	client *redis.Client
}

func NewRedisDeduper(client *redis.Client) *RedisDeduper {
	return &RedisDeduper{client: client}
}

// FirstDelivery 尝试占位。返回 true 表示这是首次投递。
func (d *RedisDeduper) FirstDelivery(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return d.client.SetNX(ctx, key, 1, ttl)
}
