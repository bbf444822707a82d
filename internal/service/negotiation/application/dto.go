// internal/service/negotiation/application/dto.go
package application

import (
	"time"

	"haggle/internal/service/negotiation/domain"
)

// EvaluateOfferRequest 是一次出价请求。
// BasePrice 与 Category 只在会话创建时生效，之后以会话内锁定的原价为准。
type EvaluateOfferRequest struct {
	SKU          string  `json:"sku"`
	UserID       string  `json:"user_id"`
	BasePrice    float64 `json:"base_price"`
	OfferedPrice float64 `json:"offered_price"`
	Category     string  `json:"category,omitempty"`
}

// EvaluateOfferResponse 是一次出价的完整结果：评估决策加上会话状态。
type EvaluateOfferResponse struct {
	SessionID string        `json:"session_id,omitempty"`
	Status    domain.Status `json:"status"`

	Decision     domain.Decision `json:"decision"`
	CounterOffer float64         `json:"counter_offer"`
	DiscountPct  float64         `json:"discount_pct"`
	Savings      float64         `json:"savings"`
	Message      string          `json:"message"`
	Reasoning    string          `json:"reasoning"`
	OfferAttempt int             `json:"offer_attempt"`
	CanNegotiate bool            `json:"can_negotiate"`

	// 成交后才有值
	FinalPrice    float64    `json:"final_price,omitempty"`
	DiscountToken string     `json:"discount_token,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// CancelDiscountResponse 是取消折扣凭证的响应体。
type CancelDiscountResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// DiscountSummary 是“我的折扣”列表里的一项。
type DiscountSummary struct {
	Token      string    `json:"token"`
	SKU        string    `json:"sku"`
	BasePrice  float64   `json:"base_price"`
	FinalPrice float64   `json:"final_price"`
	Savings    float64   `json:"savings"`
	AcceptedAt time.Time `json:"accepted_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}
