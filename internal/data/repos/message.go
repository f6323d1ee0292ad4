package repos

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/talkform/talkform-backend/internal/domain"
	"github.com/talkform/talkform-backend/internal/pkg/dbctx"
	"github.com/talkform/talkform-backend/internal/pkg/logger"
)

type ConversationMessageRepo interface {
	Create(dbc dbctx.Context, msg *domain.ConversationMessage) (*domain.ConversationMessage, error)
	ListByConversation(dbc dbctx.Context, conversationID uuid.UUID) ([]*domain.ConversationMessage, error)
}

type conversationMessageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationMessageRepo(db *gorm.DB, log *logger.Logger) ConversationMessageRepo {
	return &conversationMessageRepo{db: db, log: log.With("repo", "ConversationMessageRepo")}
}

func (r *conversationMessageRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

// Create appends a message. Seq is assigned from the current per-conversation
// maximum so that two messages created in the same clock tick still have a
// total order.
func (r *conversationMessageRepo) Create(dbc dbctx.Context, msg *domain.ConversationMessage) (*domain.ConversationMessage, error) {
	if msg == nil {
		return nil, fmt.Errorf("missing message")
	}
	if msg.ConversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation_id")
	}
	h := r.handle(dbc)
	if msg.Seq == 0 {
		var maxSeq int64
		if err := h.
			Model(&domain.ConversationMessage{}).
			Select("COALESCE(MAX(seq), 0)").
			Where("conversation_id = ?", msg.ConversationID).
			Scan(&maxSeq).Error; err != nil {
			return nil, err
		}
		msg.Seq = maxSeq + 1
	}
	if err := h.Create(msg).Error; err != nil {
		return nil, fmt.Errorf("create conversation message: %w", err)
	}
	return msg, nil
}

func (r *conversationMessageRepo) ListByConversation(dbc dbctx.Context, conversationID uuid.UUID) ([]*domain.ConversationMessage, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation_id")
	}
	var out []*domain.ConversationMessage
	if err := r.handle(dbc).
		Where("conversation_id = ?", conversationID).
		Order("timestamp ASC, seq ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
