package application

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"haggle/internal/service/negotiation/domain"
)

// ---- 测试替身 ----

type memRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.NegotiationSession
}

func newMemRepo() *memRepo {
	return &memRepo{sessions: make(map[string]*domain.NegotiationSession)}
}

func (r *memRepo) clone(s *domain.NegotiationSession) *domain.NegotiationSession {
	cp := *s
	cp.OfferHistory = append([]domain.Round(nil), s.OfferHistory...)
	return &cp
}

func (r *memRepo) Create(_ context.Context, session *domain.NegotiationSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = r.clone(session)
	return nil
}

func (r *memRepo) FindByID(_ context.Context, id string) (*domain.NegotiationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return r.clone(s), nil
}

func (r *memRepo) FindPendingBySKUAndUser(_ context.Context, sku, userID string) (*domain.NegotiationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.SKU == sku && s.UserID == userID && s.Status == domain.StatusPending {
			return r.clone(s), nil
		}
	}
	return nil, domain.ErrSessionNotFound
}

func (r *memRepo) FindByToken(_ context.Context, token string) (*domain.NegotiationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.DiscountToken == token {
			return r.clone(s), nil
		}
	}
	return nil, domain.ErrSessionNotFound
}

func (r *memRepo) FindActiveDiscounts(_ context.Context, userID string) ([]*domain.NegotiationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.NegotiationSession
	for _, s := range r.sessions {
		if s.UserID == userID && s.Status == domain.StatusAccepted && !s.DiscountApplied {
			out = append(out, r.clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AcceptedAt.After(out[j].AcceptedAt) })
	return out, nil
}

func (r *memRepo) Update(_ context.Context, session *domain.NegotiationSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[session.ID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if stored.Version != session.Version {
		return domain.ErrSessionConflict
	}
	session.Version++
	r.sessions[session.ID] = r.clone(session)
	return nil
}

func (r *memRepo) MarkDiscountApplied(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if s.DiscountApplied {
		return domain.ErrAlreadyApplied
	}
	if s.Status != domain.StatusAccepted {
		return domain.ErrInvalidToken
	}
	s.DiscountApplied = true
	s.Version++
	return nil
}

func (r *memRepo) CancelCredential(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if s.DiscountApplied {
		return domain.ErrAlreadyApplied
	}
	s.Status = domain.StatusExpired
	s.Version++
	return nil
}

type noopLocker struct{ locks int }

func (l *noopLocker) Lock(context.Context, string) (func(), error) {
	l.locks++
	return func() {}, nil
}

type capturingPublisher struct {
	accepted []*domain.NegotiationAccepted
	redeemed []*domain.DiscountRedeemed
}

func (p *capturingPublisher) PublishAccepted(_ context.Context, e *domain.NegotiationAccepted) error {
	p.accepted = append(p.accepted, e)
	return nil
}

func (p *capturingPublisher) PublishRedeemed(_ context.Context, e *domain.DiscountRedeemed) error {
	p.redeemed = append(p.redeemed, e)
	return nil
}

type capturingNotifier struct{ messages []string }

func (n *capturingNotifier) NotifyDecision(_ context.Context, _, _, message string) error {
	n.messages = append(n.messages, message)
	return nil
}

type policyFunc func(domain.PolicyFact) (bool, error)

func (f policyFunc) Negotiable(_ context.Context, fact domain.PolicyFact) (bool, error) {
	return f(fact)
}

func allowAll() policyFunc {
	return func(domain.PolicyFact) (bool, error) { return true, nil }
}

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time          { return c.t }
func (c *stepClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	svc       *NegotiationService
	repo      *memRepo
	locker    *noopLocker
	publisher *capturingPublisher
	notifier  *capturingNotifier
	clk       *stepClock
}

func newFixture(t *testing.T, policy domain.PolicyEngine) *fixture {
	t.Helper()
	f := &fixture{
		repo:      newMemRepo(),
		locker:    &noopLocker{},
		publisher: &capturingPublisher{},
		notifier:  &capturingNotifier{},
		clk:       &stepClock{t: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)},
	}
	evaluator := domain.NewEvaluator(domain.DefaultEvaluatorConfig(), domain.NewMessageCatalog(1))
	f.svc = NewNegotiationService(
		f.repo, evaluator, policy, f.locker, f.publisher, f.notifier,
		noop.NewTracerProvider().Tracer("test"), f.clk,
		LifecycleConfig{DiscountTTL: 24 * time.Hour, IdleTimeout: 30 * time.Minute},
	)
	return f
}

func offer(sku string, offered float64) *EvaluateOfferRequest {
	return &EvaluateOfferRequest{SKU: sku, UserID: "user-1", BasePrice: 10000, OfferedPrice: offered}
}

// ---- 用例 ----

func TestHandleOfferCountersAndPersistsRound(t *testing.T) {
	f := newFixture(t, allowAll())

	resp, err := f.svc.HandleOffer(context.Background(), offer("sku-1", 9100))
	require.NoError(t, err)

	assert.Equal(t, domain.DecisionCounter, resp.Decision)
	assert.Equal(t, domain.StatusPending, resp.Status)
	assert.True(t, resp.CanNegotiate)
	assert.Equal(t, 1, resp.OfferAttempt)
	assert.Equal(t, 1, f.locker.locks)

	stored, err := f.repo.FindByID(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CurrentRound)
	require.Len(t, stored.OfferHistory, 1)
	assert.InDelta(t, 9100, stored.OfferHistory[0].OfferedPrice, 1e-9)
}

func TestHandleOfferAcceptMintsCredential(t *testing.T) {
	f := newFixture(t, allowAll())

	resp, err := f.svc.HandleOffer(context.Background(), offer("sku-1", 9500))
	require.NoError(t, err)

	assert.Equal(t, domain.DecisionAccept, resp.Decision)
	assert.Equal(t, domain.StatusAccepted, resp.Status)
	assert.NotEmpty(t, resp.DiscountToken)
	assert.InDelta(t, 9500, resp.FinalPrice, 1e-9)
	require.NotNil(t, resp.ExpiresAt)
	assert.Equal(t, f.clk.Now().Add(24*time.Hour), *resp.ExpiresAt)
	assert.False(t, resp.CanNegotiate)

	require.Len(t, f.publisher.accepted, 1)
	assert.Equal(t, resp.SessionID, f.publisher.accepted[0].SessionID)
	assert.Len(t, f.notifier.messages, 1)
}

func TestHandleOfferRoundCapClosesSession(t *testing.T) {
	f := newFixture(t, allowAll())
	ctx := context.Background()

	var resp *EvaluateOfferResponse
	var err error
	for i := 0; i < 4; i++ {
		resp, err = f.svc.HandleOffer(ctx, offer("sku-1", 100))
		require.NoError(t, err)
		f.clk.advance(time.Minute)
	}

	assert.Equal(t, domain.DecisionReject, resp.Decision)
	assert.Equal(t, domain.StatusRejected, resp.Status)
	assert.False(t, resp.CanNegotiate)

	// 会话关闭后的下一次出价会开一个新会话
	next, err := f.svc.HandleOffer(ctx, offer("sku-1", 100))
	require.NoError(t, err)
	assert.NotEqual(t, resp.SessionID, next.SessionID)
	assert.Equal(t, 1, next.OfferAttempt)
}

func TestHandleOfferNotNegotiable(t *testing.T) {
	f := newFixture(t, policyFunc(func(domain.PolicyFact) (bool, error) { return false, nil }))

	resp, err := f.svc.HandleOffer(context.Background(), offer("sku-fixed", 9500))
	require.NoError(t, err)

	assert.Empty(t, resp.SessionID)
	assert.Equal(t, domain.DecisionReject, resp.Decision)
	assert.Equal(t, "not_negotiable", resp.Reasoning)
	assert.False(t, resp.CanNegotiate)
	assert.Empty(t, f.repo.sessions)
}

func TestHandleOfferRecreatesStaleSession(t *testing.T) {
	f := newFixture(t, allowAll())
	ctx := context.Background()

	first, err := f.svc.HandleOffer(ctx, offer("sku-1", 9100))
	require.NoError(t, err)

	f.clk.advance(31 * time.Minute)

	second, err := f.svc.HandleOffer(ctx, offer("sku-1", 9100))
	require.NoError(t, err)

	assert.NotEqual(t, first.SessionID, second.SessionID)
	assert.Equal(t, 1, second.OfferAttempt)

	stale, err := f.repo.FindByID(ctx, first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, stale.Status)
}

func acceptDeal(t *testing.T, f *fixture, sku string) *EvaluateOfferResponse {
	t.Helper()
	resp, err := f.svc.HandleOffer(context.Background(), offer(sku, 9500))
	require.NoError(t, err)
	require.Equal(t, domain.StatusAccepted, resp.Status)
	return resp
}

func cartFor(sku string, price float64, sessionID string) *domain.Cart {
	return &domain.Cart{
		UserID: "user-1",
		Items: []domain.CartItem{
			{SKU: sku, Price: price, Quantity: 2, NegotiationSessionID: sessionID},
		},
	}
}

func TestApplyDiscountToCart(t *testing.T) {
	f := newFixture(t, allowAll())
	deal := acceptDeal(t, f, "sku-1")

	desc, err := f.svc.ApplyDiscountToCart(context.Background(), deal.DiscountToken, cartFor("sku-1", 9500, deal.SessionID))
	require.NoError(t, err)

	assert.Equal(t, deal.DiscountToken, desc.Code)
	assert.InDelta(t, 10000, desc.OriginalPrice, 1e-9)
	assert.InDelta(t, 9500, desc.DiscountedPrice, 1e-9)
	assert.InDelta(t, 500, desc.DiscountAmount, 1e-9)
	assert.InDelta(t, 5, desc.DiscountPct, 1e-9)
	assert.Equal(t, 2, desc.Quantity)

	require.Len(t, f.publisher.redeemed, 1)
	assert.Equal(t, "checkout", f.publisher.redeemed[0].Source)

	// 同一凭证的第二次核销必须失败
	_, err = f.svc.ApplyDiscountToCart(context.Background(), deal.DiscountToken, cartFor("sku-1", 9500, deal.SessionID))
	assert.ErrorIs(t, err, domain.ErrAlreadyApplied)
}

func TestApplyDiscountSkuMismatchLeavesCredentialUsable(t *testing.T) {
	f := newFixture(t, allowAll())
	deal := acceptDeal(t, f, "sku-1")

	_, err := f.svc.ApplyDiscountToCart(context.Background(), deal.DiscountToken, cartFor("sku-other", 9500, deal.SessionID))
	assert.ErrorIs(t, err, domain.ErrSkuMismatch)

	// 凭证未被消耗，换对购物车后仍可核销
	_, err = f.svc.ApplyDiscountToCart(context.Background(), deal.DiscountToken, cartFor("sku-1", 9500, deal.SessionID))
	assert.NoError(t, err)
}

func TestApplyDiscountExpiredCredential(t *testing.T) {
	f := newFixture(t, allowAll())
	deal := acceptDeal(t, f, "sku-1")

	f.clk.advance(25 * time.Hour)

	_, err := f.svc.ApplyDiscountToCart(context.Background(), deal.DiscountToken, cartFor("sku-1", 9500, deal.SessionID))
	assert.ErrorIs(t, err, domain.ErrExpired)

	// 惰性过期已落库
	stored, err := f.repo.FindByID(context.Background(), deal.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, stored.Status)
}

func TestApplyDiscountUnknownToken(t *testing.T) {
	f := newFixture(t, allowAll())

	_, err := f.svc.ApplyDiscountToCart(context.Background(), "no-such-token", cartFor("sku-1", 9500, ""))
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	_, err = f.svc.ApplyDiscountToCart(context.Background(), "", cartFor("sku-1", 9500, ""))
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestCancelDiscount(t *testing.T) {
	f := newFixture(t, allowAll())
	deal := acceptDeal(t, f, "sku-1")

	require.NoError(t, f.svc.CancelDiscount(context.Background(), deal.DiscountToken))

	stored, err := f.repo.FindByID(context.Background(), deal.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, stored.Status)

	// 取消后的凭证不可再核销
	_, err = f.svc.ApplyDiscountToCart(context.Background(), deal.DiscountToken, cartFor("sku-1", 9500, deal.SessionID))
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestCancelDiscountAfterRedemption(t *testing.T) {
	f := newFixture(t, allowAll())
	deal := acceptDeal(t, f, "sku-1")

	_, err := f.svc.ApplyDiscountToCart(context.Background(), deal.DiscountToken, cartFor("sku-1", 9500, deal.SessionID))
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.CancelDiscount(context.Background(), deal.DiscountToken), domain.ErrAlreadyApplied)
}

func TestGetActiveDiscounts(t *testing.T) {
	f := newFixture(t, allowAll())
	first := acceptDeal(t, f, "sku-1")
	f.clk.advance(time.Minute)
	second := acceptDeal(t, f, "sku-2")

	summaries, err := f.svc.GetActiveDiscounts(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// 成交时间倒序
	assert.Equal(t, second.DiscountToken, summaries[0].Token)
	assert.Equal(t, first.DiscountToken, summaries[1].Token)
	assert.InDelta(t, 500, summaries[0].Savings, 1e-9)
}

func TestRedeemBySessionID(t *testing.T) {
	f := newFixture(t, allowAll())
	deal := acceptDeal(t, f, "sku-1")

	require.NoError(t, f.svc.RedeemBySessionID(context.Background(), deal.SessionID, "webhook"))

	stored, err := f.repo.FindByID(context.Background(), deal.SessionID)
	require.NoError(t, err)
	assert.True(t, stored.DiscountApplied)

	require.Len(t, f.publisher.redeemed, 1)
	assert.Equal(t, "webhook", f.publisher.redeemed[0].Source)

	// 重复对账是幂等冲突，不是第二次成功
	assert.ErrorIs(t, f.svc.RedeemBySessionID(context.Background(), deal.SessionID, "webhook"), domain.ErrAlreadyApplied)
}

func TestRedeemBySessionIDRequiresAcceptedSession(t *testing.T) {
	f := newFixture(t, allowAll())

	resp, err := f.svc.HandleOffer(context.Background(), offer("sku-1", 9100))
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, resp.Status)

	assert.ErrorIs(t, f.svc.RedeemBySessionID(context.Background(), resp.SessionID, "webhook"), domain.ErrInvalidToken)
	assert.ErrorIs(t, f.svc.RedeemBySessionID(context.Background(), "no-such-session", "webhook"), domain.ErrSessionNotFound)
}
