// internal/service/negotiation/infrastructure/adapter/kafka_publisher.go
package adapter

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"haggle/internal/pkg/mq"
	"haggle/internal/service/negotiation/domain"
)

// KafkaEventPublisher 把议价领域事件发布到 negotiation-events Topic。
// 消息以 userId 作 Key，保证同一用户的事件在分区内有序。
type KafkaEventPublisher struct {
	writer *kafka.Writer
}

func NewKafkaEventPublisher(writer *kafka.Writer) *KafkaEventPublisher {
	return &KafkaEventPublisher{writer: writer}
}

// eventEnvelope 是事件在消息总线上的统一外壳。
type eventEnvelope struct {
	Type    string          `json:"type"`
	UserID  string          `json:"userId"`
	Payload json.RawMessage `json:"payload"`
}

func (p *KafkaEventPublisher) PublishAccepted(ctx context.Context, event *domain.NegotiationAccepted) error {
	return p.publish(ctx, domain.EventTypeNegotiationAccepted, event.UserID, event)
}

func (p *KafkaEventPublisher) PublishRedeemed(ctx context.Context, event *domain.DiscountRedeemed) error {
	return p.publish(ctx, domain.EventTypeDiscountRedeemed, event.UserID, event)
}

func (p *KafkaEventPublisher) publish(ctx context.Context, eventType, userID string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	envelope, err := json.Marshal(eventEnvelope{Type: eventType, UserID: userID, Payload: body})
	if err != nil {
		return err
	}
	return mq.ProduceMessage(ctx, p.writer, []byte(userID), envelope)
}
