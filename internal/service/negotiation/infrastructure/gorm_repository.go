// internal/service/negotiation/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"haggle/internal/service/negotiation/domain"
)

// GormSessionRepository 是 domain.SessionRepository 的 GORM + MySQL 实现。
//
// 所有状态翻转都是带 WHERE 条件的单条 UPDATE：
//   - 普通更新以 version 做乐观锁；
//   - discount_applied 的翻转以旧值 false 为条件，保证至多成功一次。
type GormSessionRepository struct {
	db *gorm.DB
}

// NewGormSessionRepository 创建一个新的 GORM 仓储实例。
func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db}
}

// AutoMigrate 建表，供服务启动和测试环境初始化使用。
func (r *GormSessionRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&NegotiationSessionModel{})
}

func (r *GormSessionRepository) Create(ctx context.Context, session *domain.NegotiationSession) error {
	model, err := FromDomainSession(session)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return errors.Wrap(err, "failed to create negotiation session")
	}
	return nil
}

func (r *GormSessionRepository) FindByID(ctx context.Context, id string) (*domain.NegotiationSession, error) {
	var model NegotiationSessionModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, errors.Wrap(err, "failed to load negotiation session")
	}
	return ToDomainSession(&model)
}

func (r *GormSessionRepository) FindPendingBySKUAndUser(ctx context.Context, sku, userID string) (*domain.NegotiationSession, error) {
	var model NegotiationSessionModel
	err := r.db.WithContext(ctx).
		Where("sku = ? AND user_id = ? AND status = ?", sku, userID, string(domain.StatusPending)).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, errors.Wrap(err, "failed to load pending session")
	}
	return ToDomainSession(&model)
}

func (r *GormSessionRepository) FindByToken(ctx context.Context, token string) (*domain.NegotiationSession, error) {
	var model NegotiationSessionModel
	err := r.db.WithContext(ctx).Where("discount_token = ?", token).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, errors.Wrap(err, "failed to load session by token")
	}
	return ToDomainSession(&model)
}

func (r *GormSessionRepository) FindActiveDiscounts(ctx context.Context, userID string) ([]*domain.NegotiationSession, error) {
	var models []*NegotiationSessionModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND discount_applied = ? AND expires_at > ?",
			userID, string(domain.StatusAccepted), false, time.Now()).
		Order("accepted_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active discounts")
	}

	sessions := make([]*domain.NegotiationSession, 0, len(models))
	for _, m := range models {
		session, err := ToDomainSession(m)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// Update 以乐观锁保存整行状态。WHERE version = 读取时的版本，
// 没命中说明有并发写入者抢先了，返回 ErrSessionConflict 让调用方重试。
func (r *GormSessionRepository) Update(ctx context.Context, session *domain.NegotiationSession) error {
	model, err := FromDomainSession(session)
	if err != nil {
		return err
	}

	updates := map[string]interface{}{
		"current_round":  model.CurrentRound,
		"offer_history":  model.OfferHistory,
		"status":         model.Status,
		"final_price":    model.FinalPrice,
		"discount_token": model.DiscountToken,
		"expires_at":     model.ExpiresAt,
		"accepted_at":    model.AcceptedAt,
		"updated_at":     model.UpdatedAt,
		"version":        session.Version + 1,
	}

	res := r.db.WithContext(ctx).Model(&NegotiationSessionModel{}).
		Where("id = ? AND version = ?", session.ID, session.Version).
		Updates(updates)
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to update negotiation session")
	}
	if res.RowsAffected == 0 {
		return domain.ErrSessionConflict
	}
	session.Version++
	return nil
}

// MarkDiscountApplied 是核销的原子翻转：false -> true 只许成功一次。
func (r *GormSessionRepository) MarkDiscountApplied(ctx context.Context, sessionID string) error {
	res := r.db.WithContext(ctx).Model(&NegotiationSessionModel{}).
		Where("id = ? AND status = ? AND discount_applied = ?", sessionID, string(domain.StatusAccepted), false).
		Updates(map[string]interface{}{
			"discount_applied": true,
			"version":          gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to mark discount applied")
	}
	if res.RowsAffected == 1 {
		return nil
	}
	return r.explainFlipFailure(ctx, sessionID)
}

// CancelCredential 只在凭证未核销时作废会话。
func (r *GormSessionRepository) CancelCredential(ctx context.Context, sessionID string) error {
	res := r.db.WithContext(ctx).Model(&NegotiationSessionModel{}).
		Where("id = ? AND status = ? AND discount_applied = ?", sessionID, string(domain.StatusAccepted), false).
		Updates(map[string]interface{}{
			"status":  string(domain.StatusExpired),
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to cancel discount credential")
	}
	if res.RowsAffected == 1 {
		return nil
	}
	return r.explainFlipFailure(ctx, sessionID)
}

// explainFlipFailure 在条件更新没命中后回查一次，把失败翻译成领域错误。
func (r *GormSessionRepository) explainFlipFailure(ctx context.Context, sessionID string) error {
	session, err := r.FindByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.DiscountApplied {
		return domain.ErrAlreadyApplied
	}
	if session.Status != domain.StatusAccepted {
		return domain.ErrInvalidToken
	}
	return domain.ErrSessionConflict
}
