// internal/service/checkout/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"haggle/internal/pkg/logger"
	"haggle/internal/service/checkout/application"
	"haggle/internal/service/negotiation/domain"
)

// CheckoutHandler 暴露结账前的购物车校验接口。
type CheckoutHandler struct {
	validator *application.CartValidator
}

func NewCheckoutHandler(validator *application.CartValidator) *CheckoutHandler {
	return &CheckoutHandler{validator: validator}
}

func (h *CheckoutHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/cart/validate", h.handleValidateCart)
}

func (h *CheckoutHandler) handleValidateCart(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer("checkout").Start(ctx, "http.ValidateCart")
	defer span.End()

	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var cart domain.Cart
	if err := json.NewDecoder(r.Body).Decode(&cart); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	result, err := h.validator.ValidateNegotiatedCart(ctx, &cart)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("cart validation failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}
