// internal/service/negotiation/port/events.go
package port

import (
	"context"

	"haggle/internal/service/negotiation/domain"
)

// EventPublisher 把领域事件发布到消息总线，供推送网关等下游消费。
type EventPublisher interface {
	PublishAccepted(ctx context.Context, event *domain.NegotiationAccepted) error
	PublishRedeemed(ctx context.Context, event *domain.DiscountRedeemed) error
}
