package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/talkform/talkform-backend/internal/data/repos"
	"github.com/talkform/talkform-backend/internal/domain"
	"github.com/talkform/talkform-backend/internal/pkg/apierr"
	"github.com/talkform/talkform-backend/internal/pkg/dbctx"
	"github.com/talkform/talkform-backend/internal/pkg/logger"
	"github.com/talkform/talkform-backend/internal/platform/openai"
)

// ConversationService owns conversation lifecycle and message history.
// All status changes funnel through Transition so the monotonic
// in_progress -> terminal rule is enforced in one place.
type ConversationService interface {
	Create(ctx context.Context, formID uuid.UUID) (*domain.Conversation, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	GetByFormResponse(ctx context.Context, formResponseID uuid.UUID) (*domain.Conversation, error)
	AppendMessage(ctx context.Context, conversationID uuid.UUID, role domain.MessageRole, content string, questionID *uuid.UUID) (*domain.ConversationMessage, error)
	Transition(dbc dbctx.Context, id uuid.UUID, next domain.ConversationStatus) error
	ListStale(ctx context.Context, startedBefore time.Time) ([]*domain.Conversation, error)
	GenerateSummary(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error)
}

type conversationService struct {
	db            *gorm.DB
	conversations repos.ConversationRepo
	messages      repos.ConversationMessageRepo
	formResponses repos.FormResponseRepo
	ai            openai.Client
	log           *logger.Logger
}

func NewConversationService(
	db *gorm.DB,
	conversations repos.ConversationRepo,
	messages repos.ConversationMessageRepo,
	formResponses repos.FormResponseRepo,
	ai openai.Client,
	log *logger.Logger,
) ConversationService {
	return &conversationService{
		db:            db,
		conversations: conversations,
		messages:      messages,
		formResponses: formResponses,
		ai:            ai,
		log:           log.With("service", "conversation"),
	}
}

// Create opens a form response and its conversation in one transaction, so a
// half-created pair never exists.
func (s *conversationService) Create(ctx context.Context, formID uuid.UUID) (*domain.Conversation, error) {
	var conv *domain.Conversation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		fr, err := s.formResponses.Create(dbc, &domain.FormResponse{FormID: formID})
		if err != nil {
			return err
		}
		conv, err = s.conversations.Create(dbc, &domain.Conversation{
			Status:         domain.ConversationInProgress,
			FormResponseID: fr.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("conversation created", "conversation_id", conv.ID, "form_id", formID)
	return conv, nil
}

func (s *conversationService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	return s.conversations.GetByID(dbctx.Context{Ctx: ctx}, id)
}

func (s *conversationService) GetByFormResponse(ctx context.Context, formResponseID uuid.UUID) (*domain.Conversation, error) {
	return s.conversations.GetByFormResponseID(dbctx.Context{Ctx: ctx}, formResponseID)
}

// AppendMessage records one turn of the transcript. Messages are append-only;
// nothing in the service edits or removes a row once written.
func (s *conversationService) AppendMessage(ctx context.Context, conversationID uuid.UUID, role domain.MessageRole, content string, questionID *uuid.UUID) (*domain.ConversationMessage, error) {
	return s.messages.Create(dbctx.Context{Ctx: ctx}, &domain.ConversationMessage{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		QuestionID:     questionID,
	})
}

// Transition moves a conversation from in_progress to a terminal status. A
// conversation that is already terminal cannot move again; losing a race to
// another writer reports the same ErrInvalidTransition.
func (s *conversationService) Transition(dbc dbctx.Context, id uuid.UUID, next domain.ConversationStatus) error {
	conv, err := s.conversations.GetByID(dbc, id)
	if err != nil {
		return err
	}
	if !conv.Status.CanTransitionTo(next) {
		return apierr.ErrInvalidTransition
	}
	ok, err := s.conversations.TransitionStatus(dbc, id, conv.Status, next, time.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return apierr.ErrInvalidTransition
	}
	s.log.Info("conversation transitioned", "conversation_id", id, "from", conv.Status, "to", next)
	return nil
}

func (s *conversationService) ListStale(ctx context.Context, startedBefore time.Time) ([]*domain.Conversation, error) {
	return s.conversations.ListStale(dbctx.Context{Ctx: ctx}, domain.ConversationInProgress, startedBefore)
}

// GenerateSummary produces and stores a model-written summary of the
// transcript. Safe to call more than once; the latest summary wins.
func (s *conversationService) GenerateSummary(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error) {
	dbc := dbctx.Context{Ctx: ctx}
	conv, err := s.conversations.GetByID(dbc, conversationID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByConversation(dbc, conversationID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return conv, nil
	}
	summary, err := s.ai.GenerateText(ctx, conversationSummarySystemPrompt, buildConversationSummaryPrompt(conversationID, msgs))
	if err != nil {
		return nil, err
	}
	if err := s.conversations.UpdateSummary(dbc, conversationID, summary); err != nil {
		return nil, err
	}
	conv.Summary = &summary
	return conv, nil
}
