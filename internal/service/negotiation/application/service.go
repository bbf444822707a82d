// internal/service/negotiation/application/service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"haggle/internal/pkg/clock"
	"haggle/internal/pkg/logger"
	"haggle/internal/service/negotiation/domain"
	"haggle/internal/service/negotiation/port"
)

// NegotiationService 编排议价的全部业务用例：出价评估、折扣凭证的
// 核销/取消/查询，以及来自外部平台对账的核销。
type NegotiationService struct {
	repo      domain.SessionRepository
	evaluator *domain.Evaluator
	policy    domain.PolicyEngine
	locker    port.SessionLocker
	publisher port.EventPublisher
	notifier  port.Notifier
	tracer    trace.Tracer
	clk       clock.Clock

	cfg LifecycleConfig
}

// LifecycleConfig 是会话生命周期相关的参数。
type LifecycleConfig struct {
	DiscountTTL time.Duration // 折扣凭证有效期
	IdleTimeout time.Duration // pending 会话的闲置过期时间
}

// NewNegotiationService 创建议价应用服务。
func NewNegotiationService(repo domain.SessionRepository, evaluator *domain.Evaluator, policy domain.PolicyEngine, locker port.SessionLocker, publisher port.EventPublisher, notifier port.Notifier, tracer trace.Tracer, clk clock.Clock, cfg LifecycleConfig) *NegotiationService {
	return &NegotiationService{
		repo: repo, evaluator: evaluator, policy: policy, locker: locker,
		publisher: publisher, notifier: notifier, tracer: tracer, clk: clk, cfg: cfg,
	}
}

// HandleOffer 处理一次出价：找到（或创建）会话，调用评估器，追加本轮
// 历史，并在成交时铸造折扣凭证。同一 (sku, user) 上的出价持锁串行执行。
func (s *NegotiationService) HandleOffer(ctx context.Context, req *EvaluateOfferRequest) (*EvaluateOfferResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.HandleOffer")
	defer span.End()

	span.SetAttributes(
		attribute.String("negotiation.sku", req.SKU),
		attribute.String("user.id", req.UserID),
		attribute.Float64("negotiation.offered_price", req.OfferedPrice),
	)

	// 1. 议价资格：不可议价的商品直接给出终局拒绝，不创建会话
	negotiable, err := s.policy.Negotiable(ctx, domain.PolicyFact{
		SKU: req.SKU, BasePrice: req.BasePrice, Category: req.Category,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("policy evaluation failed: %w", err)
	}
	if !negotiable {
		span.AddEvent("Product not negotiable, terminal reject.")
		return &EvaluateOfferResponse{
			Status:       domain.StatusRejected,
			Decision:     domain.DecisionReject,
			CounterOffer: req.BasePrice,
			Message:      "This item is sold at a fixed price.",
			Reasoning:    "not_negotiable",
			OfferAttempt: 1,
			CanNegotiate: false,
		}, nil
	}

	// 2. 同一 (sku, user) 的出价串行化，避免并发写坏轮次顺序
	unlock, err := s.locker.Lock(ctx, req.SKU+":"+req.UserID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to acquire session lock: %w", err)
	}
	defer unlock()

	now := s.clk.Now()

	session, err := s.loadOrCreateSession(ctx, req, now)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("negotiation.session_id", session.ID))

	// 3. 纯函数评估：会话里锁定的原价 + 既有历史
	eval := s.evaluator.Evaluate(session.BasePrice, req.OfferedPrice, session.OfferHistory)
	decisionCounter.WithLabelValues(string(eval.Decision)).Inc()

	if err := session.AppendRound(domain.Round{
		OfferedPrice: req.OfferedPrice,
		Decision:     eval.Decision,
		CounterPrice: eval.CounterOffer,
		Timestamp:    now,
	}); err != nil {
		span.RecordError(err)
		return nil, err
	}

	// 4. 依据决策推进会话状态
	switch {
	case eval.Decision == domain.DecisionAccept:
		token := uuid.NewString()
		if err := session.Accept(token, eval.CounterOffer, s.cfg.DiscountTTL, now); err != nil {
			span.RecordError(err)
			return nil, err
		}
	case session.CurrentRound >= s.evaluator.Config().RoundCap:
		// 轮数耗尽仍未成交，会话关闭
		if err := session.Reject(now); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, session); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist negotiation round")
		return nil, err
	}

	if session.Status == domain.StatusAccepted {
		s.afterAccept(ctx, session, eval)
	}

	resp := &EvaluateOfferResponse{
		SessionID:    session.ID,
		Status:       session.Status,
		Decision:     eval.Decision,
		CounterOffer: eval.CounterOffer,
		DiscountPct:  eval.DiscountPct,
		Savings:      eval.Savings,
		Message:      eval.Message,
		Reasoning:    eval.Reasoning,
		OfferAttempt: eval.OfferAttempt,
		CanNegotiate: eval.CanNegotiate && !session.IsTerminal(),
	}
	if session.Status == domain.StatusAccepted {
		expires := session.ExpiresAt
		resp.FinalPrice = session.FinalPrice
		resp.DiscountToken = session.DiscountToken
		resp.ExpiresAt = &expires
	}
	return resp, nil
}

// loadOrCreateSession 找到进行中的会话；闲置过期的会话先落库过期，
// 再开一个新会话。
func (s *NegotiationService) loadOrCreateSession(ctx context.Context, req *EvaluateOfferRequest, now time.Time) (*domain.NegotiationSession, error) {
	session, err := s.repo.FindPendingBySKUAndUser(ctx, req.SKU, req.UserID)
	switch {
	case err == nil:
		if session.ExpireIfStale(s.cfg.IdleTimeout, now) {
			if err := s.repo.Update(ctx, session); err != nil {
				return nil, err
			}
			logger.Ctx(ctx).Info().Str("session_id", session.ID).Msg("stale pending session expired, starting fresh")
			return s.createSession(ctx, req, now)
		}
		return session, nil
	case errors.Is(err, domain.ErrSessionNotFound):
		return s.createSession(ctx, req, now)
	default:
		return nil, err
	}
}

func (s *NegotiationService) createSession(ctx context.Context, req *EvaluateOfferRequest, now time.Time) (*domain.NegotiationSession, error) {
	session, err := domain.NewSession(req.SKU, req.UserID, req.BasePrice, now)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// afterAccept 处理成交后的旁路动作：发布领域事件、投递话术通知。
// 二者失败都只记日志，议价本身已经成功。
func (s *NegotiationService) afterAccept(ctx context.Context, session *domain.NegotiationSession, eval domain.Evaluation) {
	event := &domain.NegotiationAccepted{
		SessionID:     session.ID,
		SKU:           session.SKU,
		UserID:        session.UserID,
		BasePrice:     session.BasePrice,
		FinalPrice:    session.FinalPrice,
		DiscountToken: session.DiscountToken,
		ExpiresAt:     session.ExpiresAt,
		AcceptedAt:    session.AcceptedAt,
	}
	if err := s.publisher.PublishAccepted(ctx, event); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("session_id", session.ID).Msg("failed to publish acceptance event")
	}
	if err := s.notifier.NotifyDecision(ctx, session.UserID, session.SKU, eval.Message); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("session_id", session.ID).Msg("failed to deliver acceptance notification")
	}
}

// ApplyDiscountToCart 在结账时核销折扣凭证。
// discount_applied 的翻转交给存储层的条件更新，并发的第二个调用者
// 会得到 ErrAlreadyApplied，而不是拿到第二份折扣。
func (s *NegotiationService) ApplyDiscountToCart(ctx context.Context, token string, cart *domain.Cart) (*domain.DiscountDescriptor, error) {
	ctx, span := s.tracer.Start(ctx, "app.ApplyDiscountToCart")
	defer span.End()

	session, err := s.findByToken(ctx, token)
	if err != nil {
		redemptionCounter.WithLabelValues("checkout", "invalid_token").Inc()
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("negotiation.session_id", session.ID))

	now := s.clk.Now()
	if err := session.CredentialUsable(now); err != nil {
		if errors.Is(err, domain.ErrExpired) {
			// 惰性过期：顺手把状态落库，失败不影响本次判定
			if session.ExpireIfStale(s.cfg.IdleTimeout, now) {
				if updateErr := s.repo.Update(ctx, session); updateErr != nil {
					logger.Ctx(ctx).Warn().Err(updateErr).Str("session_id", session.ID).Msg("failed to persist lazy expiry")
				}
			}
		}
		redemptionCounter.WithLabelValues("checkout", reasonLabel(err)).Inc()
		span.RecordError(err)
		return nil, err
	}

	item, ok := cart.FindBySKU(session.SKU)
	if !ok {
		redemptionCounter.WithLabelValues("checkout", "sku_mismatch").Inc()
		return nil, domain.ErrSkuMismatch
	}

	// 原子条件更新：false -> true，只许成功一次
	if err := s.repo.MarkDiscountApplied(ctx, session.ID); err != nil {
		redemptionCounter.WithLabelValues("checkout", reasonLabel(err)).Inc()
		span.RecordError(err)
		return nil, err
	}
	redemptionCounter.WithLabelValues("checkout", "ok").Inc()

	s.publishRedeemed(ctx, session, "checkout")

	return &domain.DiscountDescriptor{
		Code:            session.DiscountToken,
		SKU:             session.SKU,
		OriginalPrice:   session.BasePrice,
		DiscountedPrice: session.FinalPrice,
		DiscountAmount:  session.BasePrice - session.FinalPrice,
		DiscountPct:     (session.BasePrice - session.FinalPrice) / session.BasePrice * 100,
		Quantity:        item.Quantity,
		ExpiresAt:       session.ExpiresAt,
		Metadata: map[string]string{
			"session_id": session.ID,
			"user_id":    session.UserID,
		},
	}, nil
}

// CancelDiscount 在凭证尚未核销时作废它。
func (s *NegotiationService) CancelDiscount(ctx context.Context, token string) error {
	ctx, span := s.tracer.Start(ctx, "app.CancelDiscount")
	defer span.End()

	session, err := s.findByToken(ctx, token)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := s.repo.CancelCredential(ctx, session.ID); err != nil {
		span.RecordError(err)
		return err
	}
	logger.Ctx(ctx).Info().Str("session_id", session.ID).Msg("discount credential cancelled")
	return nil
}

// GetActiveDiscounts 返回某用户全部可用的折扣凭证，按成交时间倒序。
func (s *NegotiationService) GetActiveDiscounts(ctx context.Context, userID string) ([]DiscountSummary, error) {
	ctx, span := s.tracer.Start(ctx, "app.GetActiveDiscounts")
	defer span.End()

	sessions, err := s.repo.FindActiveDiscounts(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	summaries := make([]DiscountSummary, 0, len(sessions))
	for _, sess := range sessions {
		summaries = append(summaries, DiscountSummary{
			Token:      sess.DiscountToken,
			SKU:        sess.SKU,
			BasePrice:  sess.BasePrice,
			FinalPrice: sess.FinalPrice,
			Savings:    sess.BasePrice - sess.FinalPrice,
			AcceptedAt: sess.AcceptedAt,
			ExpiresAt:  sess.ExpiresAt,
		})
	}
	return summaries, nil
}

// RedeemBySessionID 由 Webhook 对账路径调用：外部平台的订单是此刻的
// 事实来源，跳过购物车校验，直接做同一条原子翻转。
func (s *NegotiationService) RedeemBySessionID(ctx context.Context, sessionID, source string) error {
	ctx, span := s.tracer.Start(ctx, "app.RedeemBySessionID")
	defer span.End()
	span.SetAttributes(attribute.String("negotiation.session_id", sessionID))

	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		redemptionCounter.WithLabelValues(source, "not_found").Inc()
		span.RecordError(err)
		return err
	}
	if session.Status != domain.StatusAccepted {
		redemptionCounter.WithLabelValues(source, "invalid_token").Inc()
		return domain.ErrInvalidToken
	}

	if err := s.repo.MarkDiscountApplied(ctx, session.ID); err != nil {
		redemptionCounter.WithLabelValues(source, reasonLabel(err)).Inc()
		span.RecordError(err)
		return err
	}
	redemptionCounter.WithLabelValues(source, "ok").Inc()

	s.publishRedeemed(ctx, session, source)
	return nil
}

func (s *NegotiationService) findByToken(ctx context.Context, token string) (*domain.NegotiationSession, error) {
	if token == "" {
		return nil, domain.ErrInvalidToken
	}
	session, err := s.repo.FindByToken(ctx, token)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, domain.ErrInvalidToken
	}
	return session, err
}

func (s *NegotiationService) publishRedeemed(ctx context.Context, session *domain.NegotiationSession, source string) {
	event := &domain.DiscountRedeemed{
		SessionID:     session.ID,
		SKU:           session.SKU,
		UserID:        session.UserID,
		DiscountToken: session.DiscountToken,
		Source:        source,
		RedeemedAt:    s.clk.Now(),
	}
	if err := s.publisher.PublishRedeemed(ctx, event); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("session_id", session.ID).Msg("failed to publish redemption event")
	}
}

func reasonLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrAlreadyApplied):
		return "already_applied"
	case errors.Is(err, domain.ErrExpired):
		return "expired"
	case errors.Is(err, domain.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, domain.ErrSkuMismatch):
		return "sku_mismatch"
	default:
		return "error"
	}
}
