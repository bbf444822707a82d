// internal/service/negotiation/domain/session.go
package domain

import (
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// Status 定义了议价会话的生命周期状态。
// pending 是唯一的非终态；任何终态之间都不允许再迁移。
type Status string

const (
	StatusPending  Status = "pending"  // 议价进行中
	StatusAccepted Status = "accepted" // 已成交，持有折扣凭证
	StatusRejected Status = "rejected" // 轮数耗尽仍未达成一致
	StatusExpired  Status = "expired"  // 超时或被主动取消
)

// NegotiationSession 是议价聚合的根实体：一个 (sku, user) 对上的一次
// 完整讨价还价过程，包括逐轮历史和成交后的折扣凭证。
type NegotiationSession struct {
	ID     string
	SKU    string
	UserID string

	// BasePrice 是议价开始时的商品原价，此后不可变
	BasePrice float64

	CurrentRound int
	OfferHistory []Round
	Status       Status

	// 以下字段只在 Status = accepted 后有值
	FinalPrice      float64
	DiscountToken   string
	DiscountApplied bool
	ExpiresAt       time.Time
	AcceptedAt      time.Time

	// Version 用于存储层的乐观并发控制，每次成功写入递增
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSession 创建一个处于第 0 轮的全新会话。
func NewSession(sku, userID string, basePrice float64, now time.Time) (*NegotiationSession, error) {
	if sku == "" || userID == "" {
		return nil, errors.New("cannot create session with empty sku or user")
	}
	if basePrice <= 0 {
		return nil, errors.New("cannot create session with non-positive base price")
	}
	return &NegotiationSession{
		ID:        ulid.Make().String(),
		SKU:       sku,
		UserID:    userID,
		BasePrice: basePrice,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// AppendRound 追加一轮已评估的报价。历史是只增的，轮数与历史长度始终相等。
func (s *NegotiationSession) AppendRound(r Round) error {
	if s.Status != StatusPending {
		return ErrSessionClosed
	}
	s.OfferHistory = append(s.OfferHistory, r)
	s.CurrentRound = len(s.OfferHistory)
	s.UpdatedAt = r.Timestamp
	return nil
}

// Accept 将会话迁移到成交态并铸造折扣凭证。只允许发生一次。
func (s *NegotiationSession) Accept(token string, finalPrice float64, ttl time.Duration, now time.Time) error {
	if s.Status != StatusPending {
		return ErrSessionClosed
	}
	if token == "" {
		return errors.New("cannot accept without a discount token")
	}
	if finalPrice > s.BasePrice {
		return errors.New("final price cannot exceed base price")
	}
	s.Status = StatusAccepted
	s.FinalPrice = finalPrice
	s.DiscountToken = token
	s.ExpiresAt = now.Add(ttl)
	s.AcceptedAt = now
	s.UpdatedAt = now
	return nil
}

// Reject 在轮数耗尽仍未成交时关闭会话。
func (s *NegotiationSession) Reject(now time.Time) error {
	if s.Status != StatusPending {
		return ErrSessionClosed
	}
	s.Status = StatusRejected
	s.UpdatedAt = now
	return nil
}

// ExpireIfStale 对会话做惰性过期检查，发生迁移时返回 true。
// pending 会话按闲置时间过期；accepted 会话按凭证有效期过期，
// 但已核销的凭证保持 accepted 不动（作为成交记录）。
func (s *NegotiationSession) ExpireIfStale(idleTimeout time.Duration, now time.Time) bool {
	switch s.Status {
	case StatusPending:
		if idleTimeout > 0 && now.Sub(s.UpdatedAt) > idleTimeout {
			s.Status = StatusExpired
			s.UpdatedAt = now
			return true
		}
	case StatusAccepted:
		if !s.DiscountApplied && now.After(s.ExpiresAt) {
			s.Status = StatusExpired
			s.UpdatedAt = now
			return true
		}
	}
	return false
}

// CredentialUsable 校验凭证当前是否可以核销。
func (s *NegotiationSession) CredentialUsable(now time.Time) error {
	if s.Status != StatusAccepted {
		return ErrInvalidToken
	}
	if now.After(s.ExpiresAt) {
		return ErrExpired
	}
	if s.DiscountApplied {
		return ErrAlreadyApplied
	}
	return nil
}

// IsTerminal 返回会话是否已进入终态。
func (s *NegotiationSession) IsTerminal() bool {
	return s.Status != StatusPending
}
