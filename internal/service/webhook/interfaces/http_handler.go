// internal/service/webhook/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"haggle/internal/pkg/logger"
	"haggle/internal/service/webhook/application"
	"haggle/internal/service/webhook/domain"
)

// WebhookHandler 接收外部平台回调。每个平台一条独立路由，
// 平台身份来自路由本身而不是请求内容。
type WebhookHandler struct {
	reconciler *application.ReconcilerService
}

func NewWebhookHandler(reconciler *application.ReconcilerService) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler}
}

func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/webhooks/shopify", h.platformHandler(domain.PlatformShopify))
	mux.HandleFunc("/webhooks/woocommerce", h.platformHandler(domain.PlatformWooCommerce))
}

func (h *WebhookHandler) platformHandler(platform domain.Platform) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := otel.Tracer("webhook").Start(ctx, "http.Webhook")
		defer span.End()

		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}

		// 必须读原始字节：Shopify 的签名是对原始请求体计算的
		rawBody, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "cannot read body", http.StatusBadRequest)
			return
		}

		sigHeader, _ := platform.SignatureHeader()
		eventHeader, _ := platform.EventHeader()
		signature := r.Header.Get(sigHeader)
		event := r.Header.Get(eventHeader)

		result, err := h.reconciler.HandleWebhook(ctx, platform, event, rawBody, signature)
		if err != nil {
			span.RecordError(err)
			switch {
			case errors.Is(err, domain.ErrSignatureInvalid):
				http.Error(w, "signature verification failed", http.StatusUnauthorized)
			case errors.Is(err, domain.ErrMalformedPayload), errors.Is(err, domain.ErrUnsupportedPlatform):
				http.Error(w, err.Error(), http.StatusBadRequest)
			default:
				logger.Ctx(ctx).Error().Err(err).
					Str("platform", string(platform)).Str("event", event).
					Msg("webhook processing failed")
				// 5xx 触发平台重试，配合去重层保证最终处理一次
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(result)
	}
}
