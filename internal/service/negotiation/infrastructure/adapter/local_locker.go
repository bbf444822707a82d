// internal/service/negotiation/infrastructure/adapter/local_locker.go
package adapter

import (
	"context"
	"sync"
)

// LocalSessionLocker 是单实例部署用的进程内会话锁。
// 多实例部署必须换成 ZkSessionLocker，否则锁不住跨实例的并发出价。
type LocalSessionLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocalSessionLocker() *LocalSessionLocker {
	return &LocalSessionLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *LocalSessionLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}
