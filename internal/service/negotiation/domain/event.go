// internal/service/negotiation/domain/event.go
package domain

import "time"

// 事件类型常量，同时用作 Kafka 消息里的 type 字段。
const (
	EventTypeNegotiationAccepted = "negotiation.accepted"
	EventTypeDiscountRedeemed    = "discount.redeemed"
)

// NegotiationAccepted 在会话成交、折扣凭证铸造完成后发布。
type NegotiationAccepted struct {
	SessionID     string    `json:"sessionId"`
	SKU           string    `json:"sku"`
	UserID        string    `json:"userId"`
	BasePrice     float64   `json:"basePrice"`
	FinalPrice    float64   `json:"finalPrice"`
	DiscountToken string    `json:"discountToken"`
	ExpiresAt     time.Time `json:"expiresAt"`
	AcceptedAt    time.Time `json:"acceptedAt"`
}

// DiscountRedeemed 在折扣凭证被核销后发布。
// Source 标识核销来自结账核销接口还是外部平台的 Webhook 对账。
type DiscountRedeemed struct {
	SessionID     string    `json:"sessionId"`
	SKU           string    `json:"sku"`
	UserID        string    `json:"userId"`
	DiscountToken string    `json:"discountToken"`
	Source        string    `json:"source"` // "checkout" | "webhook"
	RedeemedAt    time.Time `json:"redeemedAt"`
}
