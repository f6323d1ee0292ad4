package repos

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/talkform/talkform-backend/internal/domain"
	"github.com/talkform/talkform-backend/internal/pkg/dbctx"
	"github.com/talkform/talkform-backend/internal/pkg/logger"
)

type QuestionResponseRepo interface {
	GetByPair(dbc dbctx.Context, questionID, formResponseID uuid.UUID) (*domain.QuestionResponse, error)
	// Upsert keeps at most one row per (question_id, form_response_id). A
	// conflicting write overwrites the response text and bumps retry_count.
	Upsert(dbc dbctx.Context, qr *domain.QuestionResponse) (*domain.QuestionResponse, error)
	ListByFormResponse(dbc dbctx.Context, formResponseID uuid.UUID) ([]*domain.QuestionResponse, error)
}

type questionResponseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuestionResponseRepo(db *gorm.DB, log *logger.Logger) QuestionResponseRepo {
	return &questionResponseRepo{db: db, log: log.With("repo", "QuestionResponseRepo")}
}

func (r *questionResponseRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *questionResponseRepo) GetByPair(dbc dbctx.Context, questionID, formResponseID uuid.UUID) (*domain.QuestionResponse, error) {
	var out domain.QuestionResponse
	err := r.handle(dbc).
		First(&out, "question_id = ? AND form_response_id = ?", questionID, formResponseID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *questionResponseRepo) Upsert(dbc dbctx.Context, qr *domain.QuestionResponse) (*domain.QuestionResponse, error) {
	if qr == nil {
		return nil, fmt.Errorf("missing question response")
	}
	if qr.QuestionID == uuid.Nil || qr.FormResponseID == uuid.Nil {
		return nil, fmt.Errorf("missing question_id or form_response_id")
	}
	err := r.handle(dbc).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "question_id"}, {Name: "form_response_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"response":    qr.Response,
				"retry_count": gorm.Expr("retry_count + 1"),
			}),
		}).
		Create(qr).Error
	if err != nil {
		return nil, fmt.Errorf("upsert question response: %w", err)
	}
	return r.GetByPair(dbc, qr.QuestionID, qr.FormResponseID)
}

func (r *questionResponseRepo) ListByFormResponse(dbc dbctx.Context, formResponseID uuid.UUID) ([]*domain.QuestionResponse, error) {
	var out []*domain.QuestionResponse
	if err := r.handle(dbc).
		Where("form_response_id = ?", formResponseID).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
