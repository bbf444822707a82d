// internal/service/webhook/application/reconciler.go
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"haggle/internal/pkg/logger"
	negotiation "haggle/internal/service/negotiation/domain"
	"haggle/internal/service/webhook/domain"
)

var webhookCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "haggle_webhook_events_total",
	Help: "Webhook deliveries by platform, event and outcome.",
}, []string{"platform", "event", "result"})

// Redeemer 是对账路径需要的议价服务能力：按会话 ID 核销凭证。
type Redeemer interface {
	RedeemBySessionID(ctx context.Context, sessionID, source string) error
}

// Deduper 对平台的重复投递做幂等去重。首次见到返回 true。
type Deduper interface {
	FirstDelivery(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Result 是一次 Webhook 处理的结论。
// Processed=false 且无错误表示“确认收到但无事可做”，
// 平台看到 2xx 后不会再重试。
type Result struct {
	Processed bool   `json:"processed"`
	Result    string `json:"result"`
}

type handlerFunc func(ctx context.Context, rawBody []byte) (*Result, error)

type dispatchKey struct {
	platform domain.Platform
	event    string
}

// ReconcilerService 消费外部平台签名过的事件，把平台订单里嵌入的
// 议价会话对账回来，标记折扣凭证已消费。
type ReconcilerService struct {
	secrets  map[string]string // platform -> shared secret
	redeemer Redeemer
	deduper  Deduper
	dedupTTL time.Duration
	tracer   trace.Tracer

	handlers map[dispatchKey]handlerFunc
}

// NewReconcilerService 创建对账服务并装配 (platform, event) 分发表。
func NewReconcilerService(secrets map[string]string, redeemer Redeemer, deduper Deduper, dedupTTL time.Duration, tracer trace.Tracer) *ReconcilerService {
	s := &ReconcilerService{
		secrets:  secrets,
		redeemer: redeemer,
		deduper:  deduper,
		dedupTTL: dedupTTL,
		tracer:   tracer,
	}
	s.handlers = map[dispatchKey]handlerFunc{
		{domain.PlatformShopify, "orders/create"}: func(ctx context.Context, body []byte) (*Result, error) {
			return s.handleOrderCreated(ctx, domain.PlatformShopify, body)
		},
		{domain.PlatformShopify, "checkouts/create"}: s.handleCheckoutCreated,
		{domain.PlatformWooCommerce, "order.created"}: func(ctx context.Context, body []byte) (*Result, error) {
			return s.handleOrderCreated(ctx, domain.PlatformWooCommerce, body)
		},
		{domain.PlatformWooCommerce, "checkout.created"}: s.handleCheckoutCreated,
	}
	return s
}

// HandleWebhook 是唯一入口。签名校验发生在任何状态读取之前；
// 未知的 (platform, event) 组合确认收到但不处理，避免平台重试风暴。
func (s *ReconcilerService) HandleWebhook(ctx context.Context, platform domain.Platform, event string, rawBody []byte, signature string) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "app.HandleWebhook")
	defer span.End()
	span.SetAttributes(
		attribute.String("webhook.platform", string(platform)),
		attribute.String("webhook.event", event),
	)

	if _, known := platform.SignatureHeader(); !known {
		webhookCounter.WithLabelValues(string(platform), event, "unsupported_platform").Inc()
		return nil, domain.ErrUnsupportedPlatform
	}

	// 1. 先验签，后处理；验签失败时不允许碰任何状态
	if err := domain.VerifySignature(platform, s.secrets[string(platform)], rawBody, signature); err != nil {
		webhookCounter.WithLabelValues(string(platform), event, "signature_invalid").Inc()
		span.RecordError(err)
		return nil, err
	}

	// 2. 分发；未知组合是 no-op，不是错误
	handler, ok := s.handlers[dispatchKey{platform, event}]
	if !ok {
		logger.Ctx(ctx).Info().
			Str("platform", string(platform)).Str("event", event).
			Msg("unhandled webhook event acknowledged")
		webhookCounter.WithLabelValues(string(platform), event, "ignored").Inc()
		return &Result{Processed: false, Result: "ignored"}, nil
	}

	result, err := handler(ctx, rawBody)
	if err != nil {
		webhookCounter.WithLabelValues(string(platform), event, "error").Inc()
		span.RecordError(err)
		return nil, err
	}
	webhookCounter.WithLabelValues(string(platform), event, result.Result).Inc()
	return result, nil
}

// handleOrderCreated 扫描订单行里的议价会话 ID，逐个核销。
// 平台此刻是事实来源，不再重复校验购物车内容。
func (s *ReconcilerService) handleOrderCreated(ctx context.Context, platform domain.Platform, rawBody []byte) (*Result, error) {
	order, err := domain.ParseOrderEvent(platform, rawBody)
	if err != nil {
		return nil, err
	}

	if len(order.SessionIDs) == 0 {
		return &Result{Processed: false, Result: "no_negotiated_items"}, nil
	}

	redeemed := 0
	for _, sessionID := range order.SessionIDs {
		err := s.redeemer.RedeemBySessionID(ctx, sessionID, "webhook")
		switch {
		case err == nil:
			redeemed++
		case errors.Is(err, negotiation.ErrAlreadyApplied):
			// 结账路径抢先核销了，对账结论一致
			logger.Ctx(ctx).Info().Str("session_id", sessionID).Msg("discount already applied, reconciliation is a no-op")
		case errors.Is(err, negotiation.ErrSessionNotFound), errors.Is(err, negotiation.ErrInvalidToken):
			logger.Ctx(ctx).Warn().Str("session_id", sessionID).Msg("order references unknown or unaccepted negotiation session")
		default:
			// 此时去重位还没被占，5xx 会让平台重投这条事件
			return nil, err
		}
	}

	// 全部核销落定之后才占去重位。提前占位的话，一次核销失败的投递
	// 会在 TTL 内被后续重试当成 duplicate 确认掉，订单就此漏对账。
	// 重复投递因此会重跑核销，但核销是幂等的条件更新，结果不变。
	if order.EventID != "" {
		first, err := s.deduper.FirstDelivery(ctx, fmt.Sprintf("webhook:%s:%s", platform, order.EventID), s.dedupTTL)
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("webhook dedup unavailable, delivery handled without marking")
		} else if !first {
			return &Result{Processed: false, Result: "duplicate"}, nil
		}
	}

	logger.Ctx(ctx).Info().
		Str("event_id", order.EventID).
		Int("redeemed", redeemed).Int("total", len(order.SessionIDs)).
		Msg("order reconciled")
	return &Result{Processed: true, Result: "redeemed"}, nil
}

// handleCheckoutCreated 目前只确认收到。结账创建不代表成交，
// 凭证要等 order-created 才算消费。
func (s *ReconcilerService) handleCheckoutCreated(ctx context.Context, rawBody []byte) (*Result, error) {
	return &Result{Processed: true, Result: "acknowledged"}, nil
}
