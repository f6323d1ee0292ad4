package repos

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/talkform/talkform-backend/internal/domain"
	"github.com/talkform/talkform-backend/internal/pkg/apierr"
	"github.com/talkform/talkform-backend/internal/pkg/dbctx"
	"github.com/talkform/talkform-backend/internal/pkg/logger"
)

type FormRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Form, error)
	UpdateSummary(dbc dbctx.Context, id uuid.UUID, summary string) error
}

type formRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFormRepo(db *gorm.DB, log *logger.Logger) FormRepo {
	return &formRepo{db: db, log: log.With("repo", "FormRepo")}
}

func (r *formRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *formRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Form, error) {
	if id == uuid.Nil {
		return nil, apierr.ErrNotFound
	}
	var out domain.Form
	err := r.handle(dbc).
		Preload("Questions", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position ASC")
		}).
		First(&out, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *formRepo) UpdateSummary(dbc dbctx.Context, id uuid.UUID, summary string) error {
	res := r.handle(dbc).
		Model(&domain.Form{}).
		Where("id = ?", id).
		Update("summary", summary)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apierr.ErrNotFound
	}
	return nil
}
