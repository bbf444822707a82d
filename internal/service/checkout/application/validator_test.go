package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"haggle/internal/pkg/clock"
	"haggle/internal/service/negotiation/domain"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// stubRepo 只支撑校验器用到的读路径。
type stubRepo struct {
	sessions map[string]*domain.NegotiationSession
}

func (r *stubRepo) FindByID(_ context.Context, id string) (*domain.NegotiationSession, error) {
	if s, ok := r.sessions[id]; ok {
		return s, nil
	}
	return nil, domain.ErrSessionNotFound
}

func (r *stubRepo) Create(context.Context, *domain.NegotiationSession) error { return nil }
func (r *stubRepo) FindPendingBySKUAndUser(context.Context, string, string) (*domain.NegotiationSession, error) {
	return nil, domain.ErrSessionNotFound
}
func (r *stubRepo) FindByToken(context.Context, string) (*domain.NegotiationSession, error) {
	return nil, domain.ErrSessionNotFound
}
func (r *stubRepo) FindActiveDiscounts(context.Context, string) ([]*domain.NegotiationSession, error) {
	return nil, nil
}
func (r *stubRepo) Update(context.Context, *domain.NegotiationSession) error { return nil }
func (r *stubRepo) MarkDiscountApplied(context.Context, string) error        { return nil }
func (r *stubRepo) CancelCredential(context.Context, string) error           { return nil }

func acceptedSession(id, sku string, finalPrice float64) *domain.NegotiationSession {
	return &domain.NegotiationSession{
		ID:         id,
		SKU:        sku,
		UserID:     "user-1",
		BasePrice:  10000,
		Status:     domain.StatusAccepted,
		FinalPrice: finalPrice,
		ExpiresAt:  testNow.Add(time.Hour),
		AcceptedAt: testNow,
	}
}

func newValidator(sessions ...*domain.NegotiationSession) *CartValidator {
	repo := &stubRepo{sessions: make(map[string]*domain.NegotiationSession)}
	for _, s := range sessions {
		repo.sessions[s.ID] = s
	}
	return NewCartValidator(repo, clock.Fixed{T: testNow}, noop.NewTracerProvider().Tracer("test"))
}

func TestValidateCleanCart(t *testing.T) {
	v := newValidator(acceptedSession("sess-1", "sku-1", 9500))
	cart := &domain.Cart{UserID: "user-1", Items: []domain.CartItem{
		{SKU: "sku-plain", Price: 300, Quantity: 1}, // 普通商品行不参与校验
		{SKU: "sku-1", Price: 9500, Quantity: 1, NegotiationSessionID: "sess-1"},
	}}

	result, err := v.ValidateNegotiatedCart(context.Background(), cart)
	require.NoError(t, err)

	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestValidateAccumulatesAllProblems(t *testing.T) {
	expired := acceptedSession("sess-expired", "sku-2", 9500)
	expired.ExpiresAt = testNow.Add(-time.Minute)
	pending := acceptedSession("sess-pending", "sku-3", 0)
	pending.Status = domain.StatusPending
	pending.FinalPrice = 0

	v := newValidator(
		acceptedSession("sess-1", "sku-1", 9500),
		expired,
		pending,
	)
	cart := &domain.Cart{UserID: "user-1", Items: []domain.CartItem{
		{SKU: "sku-1", Price: 9400, Quantity: 1, NegotiationSessionID: "sess-1"},       // 价格不符
		{SKU: "sku-2", Price: 9500, Quantity: 1, NegotiationSessionID: "sess-expired"}, // 凭证过期
		{SKU: "sku-3", Price: 9500, Quantity: 1, NegotiationSessionID: "sess-pending"}, // 未成交
		{SKU: "sku-4", Price: 100, Quantity: 1, NegotiationSessionID: "sess-ghost"},    // 会话不存在
	}}

	result, err := v.ValidateNegotiatedCart(context.Background(), cart)
	require.NoError(t, err)

	// 四个问题一次性全部返回，不在第一个错误处短路
	assert.False(t, result.Valid)
	assert.Len(t, result.Errors, 4)
}

func TestValidateWarnsOnAppliedDiscount(t *testing.T) {
	applied := acceptedSession("sess-1", "sku-1", 9500)
	applied.DiscountApplied = true

	v := newValidator(applied)
	cart := &domain.Cart{UserID: "user-1", Items: []domain.CartItem{
		{SKU: "sku-1", Price: 9500, Quantity: 1, NegotiationSessionID: "sess-1"},
	}}

	result, err := v.ValidateNegotiatedCart(context.Background(), cart)
	require.NoError(t, err)

	assert.True(t, result.Valid)
	assert.Len(t, result.Warnings, 1)
}
