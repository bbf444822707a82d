// internal/service/negotiation/domain/policy.go
package domain

import "context"

// PolicyFact 是议价资格规则的评估输入。
type PolicyFact struct {
	SKU       string  `json:"sku"`
	BasePrice float64 `json:"base_price"`
	Category  string  `json:"category"`
}

// PolicyEngine 判定某个商品是否允许议价。
// 规则本身（例如一条 CEL 表达式）属于配置，引擎实现在基础设施层。
type PolicyEngine interface {
	Negotiable(ctx context.Context, fact PolicyFact) (bool, error)
}
