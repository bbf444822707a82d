// internal/service/negotiation/infrastructure/mapper.go
package infrastructure

import (
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"

	"haggle/internal/service/negotiation/domain"
)

// ToDomainSession 将数据库模型转换为领域模型。
func ToDomainSession(model *NegotiationSessionModel) (*domain.NegotiationSession, error) {
	if model == nil {
		return nil, nil
	}

	var history []domain.Round
	if model.OfferHistory != "" {
		if err := json.Unmarshal([]byte(model.OfferHistory), &history); err != nil {
			return nil, errors.Wrapf(err, "corrupt offer history for session %s", model.ID)
		}
	}

	session := &domain.NegotiationSession{
		ID:              model.ID,
		SKU:             model.SKU,
		UserID:          model.UserID,
		BasePrice:       model.BasePrice,
		CurrentRound:    model.CurrentRound,
		OfferHistory:    history,
		Status:          domain.Status(model.Status),
		FinalPrice:      model.FinalPrice,
		DiscountApplied: model.DiscountApplied,
		Version:         model.Version,
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
	if model.DiscountToken.Valid {
		session.DiscountToken = model.DiscountToken.String
	}
	if model.ExpiresAt.Valid {
		session.ExpiresAt = model.ExpiresAt.Time
	}
	if model.AcceptedAt.Valid {
		session.AcceptedAt = model.AcceptedAt.Time
	}
	return session, nil
}

// FromDomainSession 将领域模型转换为数据库模型。
func FromDomainSession(session *domain.NegotiationSession) (*NegotiationSessionModel, error) {
	if session == nil {
		return nil, nil
	}

	history, err := json.Marshal(session.OfferHistory)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot serialize offer history for session %s", session.ID)
	}

	model := &NegotiationSessionModel{
		ID:              session.ID,
		SKU:             session.SKU,
		UserID:          session.UserID,
		BasePrice:       session.BasePrice,
		CurrentRound:    session.CurrentRound,
		OfferHistory:    string(history),
		Status:          string(session.Status),
		FinalPrice:      session.FinalPrice,
		DiscountApplied: session.DiscountApplied,
		Version:         session.Version,
		CreatedAt:       session.CreatedAt,
		UpdatedAt:       session.UpdatedAt,
	}
	if session.DiscountToken != "" {
		model.DiscountToken = sql.NullString{String: session.DiscountToken, Valid: true}
	}
	if !session.ExpiresAt.IsZero() {
		model.ExpiresAt = sql.NullTime{Time: session.ExpiresAt, Valid: true}
	}
	if !session.AcceptedAt.IsZero() {
		model.AcceptedAt = sql.NullTime{Time: session.AcceptedAt, Valid: true}
	}
	return model, nil
}
