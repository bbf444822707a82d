// internal/service/push/consumer.go
package push

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"haggle/internal/pkg/logger"
	"haggle/internal/pkg/mq"
)

// eventEnvelope 对应消息总线上的事件外壳。
type eventEnvelope struct {
	Type    string          `json:"type"`
	UserID  string          `json:"userId"`
	Payload json.RawMessage `json:"payload"`
}

// Consumer 消费议价事件并把它们推送给在线用户。
type Consumer struct {
	reader *kafka.Reader
	hub    *Hub
	tracer trace.Tracer
}

func NewConsumer(reader *kafka.Reader, hub *Hub, tracer trace.Tracer) *Consumer {
	return &Consumer{reader: reader, hub: hub, tracer: tracer}
}

// Run 阻塞消费，直到 ctx 取消。
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Ctx(ctx).Error().Err(err).Msg("kafka read failed")
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	// 恢复生产方注入的追踪上下文，打通跨进程链路
	carrier := mq.KafkaHeaderCarrier(msg.Headers)
	ctx = otel.GetTextMapPropagator().Extract(ctx, &carrier)
	ctx, span := c.tracer.Start(ctx, "push.HandleEvent")
	defer span.End()

	var envelope eventEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("dropping malformed event")
		return
	}
	if envelope.UserID == "" {
		return
	}

	if delivered := c.hub.Push(envelope.UserID, msg.Value); !delivered {
		// 用户不在本节点或不在线，正常情况，由离线通知兜底
		logger.Ctx(ctx).Debug().
			Str("user_id", envelope.UserID).Str("type", envelope.Type).
			Msg("user not connected to this node")
		return
	}
	logger.Ctx(ctx).Info().
		Str("user_id", envelope.UserID).Str("type", envelope.Type).
		Msg("event pushed to client")
}
