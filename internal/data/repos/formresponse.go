package repos

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/talkform/talkform-backend/internal/domain"
	"github.com/talkform/talkform-backend/internal/pkg/apierr"
	"github.com/talkform/talkform-backend/internal/pkg/dbctx"
	"github.com/talkform/talkform-backend/internal/pkg/logger"
)

type FormResponseRepo interface {
	Create(dbc dbctx.Context, fr *domain.FormResponse) (*domain.FormResponse, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.FormResponse, error)
	ListByForm(dbc dbctx.Context, formID uuid.UUID) ([]*domain.FormResponse, error)
	SetCompletedAt(dbc dbctx.Context, id uuid.UUID, completedAt time.Time) error
	UpdateRespondent(dbc dbctx.Context, id uuid.UUID, name, email *string) error
}

type formResponseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFormResponseRepo(db *gorm.DB, log *logger.Logger) FormResponseRepo {
	return &formResponseRepo{db: db, log: log.With("repo", "FormResponseRepo")}
}

func (r *formResponseRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *formResponseRepo) Create(dbc dbctx.Context, fr *domain.FormResponse) (*domain.FormResponse, error) {
	if fr == nil {
		return nil, fmt.Errorf("missing form response")
	}
	if fr.FormID == uuid.Nil {
		return nil, fmt.Errorf("missing form_id")
	}
	if err := r.handle(dbc).Create(fr).Error; err != nil {
		return nil, fmt.Errorf("create form response: %w", err)
	}
	return fr, nil
}

func (r *formResponseRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.FormResponse, error) {
	if id == uuid.Nil {
		return nil, apierr.ErrNotFound
	}
	var out domain.FormResponse
	err := r.handle(dbc).
		Preload("QuestionResponses").
		First(&out, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *formResponseRepo) ListByForm(dbc dbctx.Context, formID uuid.UUID) ([]*domain.FormResponse, error) {
	var out []*domain.FormResponse
	if err := r.handle(dbc).
		Where("form_id = ?", formID).
		Order("started_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *formResponseRepo) SetCompletedAt(dbc dbctx.Context, id uuid.UUID, completedAt time.Time) error {
	res := r.handle(dbc).
		Model(&domain.FormResponse{}).
		Where("id = ?", id).
		Update("completed_at", completedAt)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apierr.ErrNotFound
	}
	return nil
}

// UpdateRespondent patches only the supplied fields; nil means leave as is.
func (r *formResponseRepo) UpdateRespondent(dbc dbctx.Context, id uuid.UUID, name, email *string) error {
	updates := map[string]interface{}{}
	if name != nil {
		updates["respondent_name"] = *name
	}
	if email != nil {
		updates["respondent_email"] = *email
	}
	if len(updates) == 0 {
		return nil
	}
	res := r.handle(dbc).
		Model(&domain.FormResponse{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apierr.ErrNotFound
	}
	return nil
}
