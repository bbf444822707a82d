// internal/service/negotiation/domain/errors.go
package domain

import "errors"

// 议价与折扣凭证相关的领域错误。
// 应用层通过 errors.Is 判断类型，接口层据此映射为结构化响应。
var (
	ErrSessionNotFound = errors.New("negotiation session not found")
	ErrSessionClosed   = errors.New("negotiation session is closed")
	ErrSessionConflict = errors.New("negotiation session was modified concurrently")

	ErrInvalidToken   = errors.New("discount token is invalid")
	ErrAlreadyApplied = errors.New("discount has already been applied")
	ErrExpired        = errors.New("discount has expired")
	ErrSkuMismatch    = errors.New("cart does not contain the negotiated sku")
	ErrPriceMismatch  = errors.New("cart price does not match the negotiated price")

	ErrNotNegotiable = errors.New("product is not negotiable")
)
