// internal/service/negotiation/infrastructure/adapter/zk_locker.go
package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

const lockRoot = "/haggle/session_locks" // 所有议价会话锁的根节点

// ZkSessionLocker 用 ZooKeeper 的临时顺序节点实现跨实例的会话锁，
// 保证同一 (sku, user) 的出价在整个集群内串行。
type ZkSessionLocker struct {
	conn *zk.Conn
}

// NewZkSessionLocker 连接 ZooKeeper 并确保锁的根路径存在。
func NewZkSessionLocker(servers []string) (*ZkSessionLocker, error) {
	conn, _, err := zk.Connect(servers, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper: %w", err)
	}

	// 逐级创建根路径；节点已存在不算错误
	parts := strings.Split(strings.TrimPrefix(lockRoot, "/"), "/")
	path := ""
	for _, part := range parts {
		path += "/" + part
		_, err := conn.Create(path, []byte{}, 0, zk.WorldACL(zk.PermAll))
		if err != nil && err != zk.ErrNodeExists {
			conn.Close()
			return nil, fmt.Errorf("failed to create lock root %s: %w", path, err)
		}
	}

	return &ZkSessionLocker{conn: conn}, nil
}

// Lock 阻塞直到拿到 key 对应的锁。key 里的 '/' 会被替换掉，
// 避免被 ZooKeeper 当成路径分隔符。
func (l *ZkSessionLocker) Lock(ctx context.Context, key string) (func(), error) {
	node := lockRoot + "/" + strings.ReplaceAll(key, "/", "_")
	lock := zk.NewLock(l.conn, node, zk.WorldACL(zk.PermAll))

	// zk 客户端的 Lock 不接受 context，放到 goroutine 里配合 ctx 等待
	done := make(chan error, 1)
	go func() { done <- lock.Lock() }()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("failed to acquire zk lock %s: %w", node, err)
		}
		return func() { _ = lock.Unlock() }, nil
	case <-ctx.Done():
		// 锁最终拿到了也要立刻放掉，不能让它泄漏
		go func() {
			if err := <-done; err == nil {
				_ = lock.Unlock()
			}
		}()
		return nil, ctx.Err()
	}
}

// Close 断开 ZooKeeper 连接，持有中的临时节点随会话释放。
func (l *ZkSessionLocker) Close() {
	l.conn.Close()
}
