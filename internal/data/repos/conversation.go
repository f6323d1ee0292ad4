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

type ConversationRepo interface {
	Create(dbc dbctx.Context, conv *domain.Conversation) (*domain.Conversation, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Conversation, error)
	GetByFormResponseID(dbc dbctx.Context, formResponseID uuid.UUID) (*domain.Conversation, error)
	ListStale(dbc dbctx.Context, status domain.ConversationStatus, startedBefore time.Time) ([]*domain.Conversation, error)
	// TransitionStatus performs a conditional update: the row is only touched
	// while it still holds fromStatus. Returns false when another writer won.
	TransitionStatus(dbc dbctx.Context, id uuid.UUID, from, to domain.ConversationStatus, endedAt time.Time) (bool, error)
	UpdateSummary(dbc dbctx.Context, id uuid.UUID, summary string) error
}

type conversationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationRepo(db *gorm.DB, log *logger.Logger) ConversationRepo {
	return &conversationRepo{db: db, log: log.With("repo", "ConversationRepo")}
}

func (r *conversationRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *conversationRepo) Create(dbc dbctx.Context, conv *domain.Conversation) (*domain.Conversation, error) {
	if conv == nil {
		return nil, fmt.Errorf("missing conversation")
	}
	if err := r.handle(dbc).Create(conv).Error; err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

func (r *conversationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Conversation, error) {
	if id == uuid.Nil {
		return nil, apierr.ErrNotFound
	}
	var out domain.Conversation
	err := r.handle(dbc).
		Preload("Messages", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("timestamp ASC, seq ASC")
		}).
		Preload("FormResponse").
		Preload("FormResponse.Form").
		First(&out, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *conversationRepo) GetByFormResponseID(dbc dbctx.Context, formResponseID uuid.UUID) (*domain.Conversation, error) {
	if formResponseID == uuid.Nil {
		return nil, apierr.ErrNotFound
	}
	var out domain.Conversation
	err := r.handle(dbc).
		Preload("Messages", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("timestamp ASC, seq ASC")
		}).
		Preload("FormResponse").
		First(&out, "form_response_id = ?", formResponseID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *conversationRepo) ListStale(dbc dbctx.Context, status domain.ConversationStatus, startedBefore time.Time) ([]*domain.Conversation, error) {
	var out []*domain.Conversation
	if err := r.handle(dbc).
		Preload("FormResponse").
		Where("status = ? AND started_at < ?", status, startedBefore).
		Order("started_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *conversationRepo) TransitionStatus(dbc dbctx.Context, id uuid.UUID, from, to domain.ConversationStatus, endedAt time.Time) (bool, error) {
	updates := map[string]interface{}{"status": to}
	if to.Terminal() {
		updates["ended_at"] = endedAt
	}
	res := r.handle(dbc).
		Model(&domain.Conversation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *conversationRepo) UpdateSummary(dbc dbctx.Context, id uuid.UUID, summary string) error {
	res := r.handle(dbc).
		Model(&domain.Conversation{}).
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
