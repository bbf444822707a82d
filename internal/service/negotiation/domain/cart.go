// internal/service/negotiation/domain/cart.go
package domain

import "time"

// CartItem 是结账购物车中的一行商品。
// NegotiationSessionID 非空时表示这一行商品带有议价价格。
type CartItem struct {
	SKU                  string  `json:"sku"`
	Price                float64 `json:"price"`
	Quantity             int     `json:"quantity"`
	NegotiationSessionID string  `json:"negotiationSessionId,omitempty"`
}

// Cart 是一次结账的购物车快照。
type Cart struct {
	UserID string     `json:"userId"`
	Items  []CartItem `json:"items"`
}

// FindBySKU 返回第一行匹配 sku 的商品。
func (c *Cart) FindBySKU(sku string) (CartItem, bool) {
	for _, item := range c.Items {
		if item.SKU == sku {
			return item, true
		}
	}
	return CartItem{}, false
}

// DiscountDescriptor 是一次成功核销返回给结账流程的折扣描述。
type DiscountDescriptor struct {
	Code            string            `json:"code"`
	SKU             string            `json:"sku"`
	OriginalPrice   float64           `json:"originalPrice"`
	DiscountedPrice float64           `json:"discountedPrice"`
	DiscountAmount  float64           `json:"discountAmount"`
	DiscountPct     float64           `json:"discountPct"`
	Quantity        int               `json:"quantity"`
	ExpiresAt       time.Time         `json:"expiresAt"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// CartValidationResult 汇总一次购物车校验发现的全部问题。
// 校验不会在第一个错误处停下，调用方一次就能看到完整清单。
type CartValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}
