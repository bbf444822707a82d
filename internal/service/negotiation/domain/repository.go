// internal/service/negotiation/domain/repository.go
package domain

import "context"

// SessionRepository 定义了议价会话聚合的持久化接口。
// 它位于领域层，由基础设施层实现。
//
// 两个带条件的写操作是这套接口的关键：
//   - Update 以 Version 做乐观并发控制，版本不匹配时返回 ErrSessionConflict；
//   - MarkDiscountApplied 必须是存储层的单条原子条件更新
//     （discount_applied 由 false 翻转为 true），并发的第二个写入者
//     观察到 ErrAlreadyApplied，而不是静默地再成功一次。
type SessionRepository interface {
	// Create 持久化一个新会话。
	Create(ctx context.Context, session *NegotiationSession) error

	// FindByID 按会话 ID 查找。
	FindByID(ctx context.Context, id string) (*NegotiationSession, error)

	// FindPendingBySKUAndUser 查找 (sku, user) 对上进行中的会话。
	// 没有时返回 ErrSessionNotFound。
	FindPendingBySKUAndUser(ctx context.Context, sku, userID string) (*NegotiationSession, error)

	// FindByToken 按折扣凭证查找已成交的会话。
	FindByToken(ctx context.Context, token string) (*NegotiationSession, error)

	// FindActiveDiscounts 返回某用户全部可用的折扣凭证
	// （accepted、未核销、未过期），按成交时间倒序。
	FindActiveDiscounts(ctx context.Context, userID string) ([]*NegotiationSession, error)

	// Update 以乐观锁保存会话的状态变更。
	Update(ctx context.Context, session *NegotiationSession) error

	// MarkDiscountApplied 原子地把折扣标记为已核销。
	// 凭证已被核销过时返回 ErrAlreadyApplied。
	MarkDiscountApplied(ctx context.Context, sessionID string) error

	// CancelCredential 在凭证尚未核销的前提下把会话置为 expired。
	// 已核销时返回 ErrAlreadyApplied。
	CancelCredential(ctx context.Context, sessionID string) error
}
