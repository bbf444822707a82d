// internal/service/negotiation/port/locker.go
package port

import "context"

// SessionLocker 对同一个会话上的报价做串行化。
// 并发的报价会打乱轮数与历史的顺序，所以 read-evaluate-append-write
// 这段必须持锁执行；存储层的乐观锁是它之下的最后一道防线。
type SessionLocker interface {
	// Lock 阻塞直到拿到 key 对应的锁，返回解锁函数。
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
