// internal/service/negotiation/infrastructure/gorm_model.go
package infrastructure

import (
	"database/sql"
	"time"
)

// NegotiationSessionModel 对应数据库中的 negotiation_sessions 表。
// discount_token 上的唯一索引在存储层兜底凭证的全局唯一性。
type NegotiationSessionModel struct {
	ID     string `gorm:"primaryKey;size:26"`
	SKU    string `gorm:"column:sku;size:64;index:idx_sku_user_status"`
	UserID string `gorm:"size:64;index:idx_sku_user_status;index:idx_user"`

	BasePrice    float64 `gorm:"type:decimal(12,2)"`
	CurrentRound int
	OfferHistory string `gorm:"type:json"` // 逐轮历史，只增的 JSON 数组
	Status       string `gorm:"size:16;index:idx_sku_user_status"`

	FinalPrice      float64        `gorm:"type:decimal(12,2)"`
	DiscountToken   sql.NullString `gorm:"uniqueIndex;size:36"`
	DiscountApplied bool
	ExpiresAt       sql.NullTime
	AcceptedAt      sql.NullTime

	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定 GORM 应该使用的表名
func (NegotiationSessionModel) TableName() string {
	return "negotiation_sessions"
}
