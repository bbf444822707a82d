// internal/service/checkout/application/validator.go
package application

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"haggle/internal/pkg/clock"
	"haggle/internal/service/negotiation/domain"
)

// CartValidator 在结账前交叉核对购物车与议价会话。
// 它只读：所有问题一次性收集完返回，绝不在第一个错误处短路，
// 让调用方一轮就能向买家展示完整的问题清单。
type CartValidator struct {
	repo   domain.SessionRepository
	clk    clock.Clock
	tracer trace.Tracer
}

func NewCartValidator(repo domain.SessionRepository, clk clock.Clock, tracer trace.Tracer) *CartValidator {
	return &CartValidator{repo: repo, clk: clk, tracer: tracer}
}

// ValidateNegotiatedCart 校验购物车中所有引用了议价会话的行。
// 返回 error 仅代表基础设施故障；业务问题都进 result.Errors / Warnings。
func (v *CartValidator) ValidateNegotiatedCart(ctx context.Context, cart *domain.Cart) (*domain.CartValidationResult, error) {
	ctx, span := v.tracer.Start(ctx, "app.ValidateNegotiatedCart")
	defer span.End()
	span.SetAttributes(attribute.Int("cart.items", len(cart.Items)))

	result := &domain.CartValidationResult{
		Errors:   []string{},
		Warnings: []string{},
	}
	now := v.clk.Now()

	for _, item := range cart.Items {
		if item.NegotiationSessionID == "" {
			continue // 普通商品行，与议价无关
		}

		session, err := v.repo.FindByID(ctx, item.NegotiationSessionID)
		if err != nil {
			if errors.Is(err, domain.ErrSessionNotFound) {
				result.Errors = append(result.Errors,
					fmt.Sprintf("sku %s: negotiation session %s not found", item.SKU, item.NegotiationSessionID))
				continue
			}
			span.RecordError(err)
			return nil, err
		}

		switch {
		case session.Status == domain.StatusExpired,
			session.Status == domain.StatusAccepted && now.After(session.ExpiresAt):
			result.Errors = append(result.Errors,
				fmt.Sprintf("sku %s: negotiated price expired", item.SKU))
			continue
		case session.Status != domain.StatusAccepted:
			result.Errors = append(result.Errors,
				fmt.Sprintf("sku %s: negotiation session %s has no agreed price (status %s)", item.SKU, session.ID, session.Status))
			continue
		}

		if item.Price != session.FinalPrice {
			result.Errors = append(result.Errors,
				fmt.Sprintf("sku %s: cart price %s does not match negotiated price %s",
					item.SKU, domain.FormatPrice(item.Price), domain.FormatPrice(session.FinalPrice)))
		}
		if session.DiscountApplied {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("sku %s: discount was already applied", item.SKU))
		}
	}

	result.Valid = len(result.Errors) == 0
	return result, nil
}
