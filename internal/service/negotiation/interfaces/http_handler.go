// internal/service/negotiation/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"haggle/internal/pkg/logger"
	"haggle/internal/service/negotiation/application"
	"haggle/internal/service/negotiation/domain"
)

const serviceName = "negotiation-service"

// NegotiationHandler 封装了议价服务的 HTTP 处理器。
type NegotiationHandler struct {
	service *application.NegotiationService
}

// NewNegotiationHandler 创建一个新的 HTTP 处理器实例。
func NewNegotiationHandler(service *application.NegotiationService) *NegotiationHandler {
	return &NegotiationHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *NegotiationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/negotiate/offer", h.handleOffer)
	mux.HandleFunc("/discounts/apply", h.handleApplyDiscount)
	mux.HandleFunc("/discounts/cancel", h.handleCancelDiscount)
	mux.HandleFunc("/discounts/active", h.handleActiveDiscounts)
}

func (h *NegotiationHandler) handleOffer(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)
	ctx, span := otel.Tracer(serviceName).Start(ctx, "http.HandleOffer")
	defer span.End()

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}

	var req application.EvaluateOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	resp, err := h.service.HandleOffer(ctx, &req)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("sku", req.SKU).Msg("offer handling failed")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type applyDiscountRequest struct {
	Token string       `json:"token"`
	Cart  *domain.Cart `json:"cart"`
}

func (h *NegotiationHandler) handleApplyDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)
	ctx, span := otel.Tracer(serviceName).Start(ctx, "http.ApplyDiscount")
	defer span.End()

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}

	var req applyDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Cart == nil {
		writeError(w, http.StatusBadRequest, "bad_request", "token and cart are required")
		return
	}

	descriptor, err := h.service.ApplyDiscountToCart(ctx, req.Token, req.Cart)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, descriptor)
}

type cancelDiscountRequest struct {
	Token string `json:"token"`
}

func (h *NegotiationHandler) handleCancelDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)
	ctx, span := otel.Tracer(serviceName).Start(ctx, "http.CancelDiscount")
	defer span.End()

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}

	var req cancelDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	if err := h.service.CancelDiscount(ctx, req.Token); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, application.CancelDiscountResponse{
		Success: true,
		Message: "discount cancelled",
	})
}

func (h *NegotiationHandler) handleActiveDiscounts(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)
	ctx, span := otel.Tracer(serviceName).Start(ctx, "http.ActiveDiscounts")
	defer span.End()

	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "userId is required")
		return
	}

	summaries, err := h.service.GetActiveDiscounts(ctx, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// --- 响应辅助 ---

func extractTraceContext(r *http.Request) context.Context {
	return otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// writeDomainError 把领域错误映射为结构化的 HTTP 失败响应。
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidToken), errors.Is(err, domain.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "invalid_token", err.Error())
	case errors.Is(err, domain.ErrExpired):
		writeError(w, http.StatusGone, "expired", err.Error())
	case errors.Is(err, domain.ErrAlreadyApplied):
		writeError(w, http.StatusConflict, "already_applied", err.Error())
	case errors.Is(err, domain.ErrSkuMismatch):
		writeError(w, http.StatusUnprocessableEntity, "sku_mismatch", err.Error())
	case errors.Is(err, domain.ErrPriceMismatch):
		writeError(w, http.StatusUnprocessableEntity, "price_mismatch", err.Error())
	case errors.Is(err, domain.ErrSessionConflict):
		writeError(w, http.StatusConflict, "conflict", "please retry the request")
	default:
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
