package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	redisclient "github.com/talkform/talkform-backend/internal/clients/redis"
	"github.com/talkform/talkform-backend/internal/data/repos"
	"github.com/talkform/talkform-backend/internal/domain"
	"github.com/talkform/talkform-backend/internal/pkg/apierr"
	"github.com/talkform/talkform-backend/internal/pkg/dbctx"
	"github.com/talkform/talkform-backend/internal/pkg/logger"
	"github.com/talkform/talkform-backend/internal/platform/openai"
)

// FormService reads form definitions (cache-first) and maintains the
// form-level summary rolled up from conversation summaries.
type FormService interface {
	GetForm(ctx context.Context, formID uuid.UUID) (*domain.Form, error)
	InvalidateForm(ctx context.Context, formID uuid.UUID) error
	GenerateFormSummary(ctx context.Context, formID uuid.UUID) error
}

type formService struct {
	forms         repos.FormRepo
	conversations repos.ConversationRepo
	formResponses repos.FormResponseRepo
	cache         redisclient.FormCache
	ai            openai.Client
	group         singleflight.Group
	log           *logger.Logger
}

func NewFormService(
	forms repos.FormRepo,
	conversations repos.ConversationRepo,
	formResponses repos.FormResponseRepo,
	cache redisclient.FormCache,
	ai openai.Client,
	log *logger.Logger,
) FormService {
	return &formService{
		forms:         forms,
		conversations: conversations,
		formResponses: formResponses,
		cache:         cache,
		ai:            ai,
		log:           log.With("service", "form"),
	}
}

// GetForm serves from Redis when possible and collapses concurrent misses for
// the same form into a single database read.
func (s *formService) GetForm(ctx context.Context, formID uuid.UUID) (*domain.Form, error) {
	if form, ok := s.cache.Get(ctx, formID); ok {
		return form, nil
	}
	v, err, _ := s.group.Do(formID.String(), func() (any, error) {
		form, err := s.forms.GetByID(dbctx.Context{Ctx: ctx}, formID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apierr.ErrNotFound
			}
			return nil, err
		}
		s.cache.Set(ctx, form)
		return form, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Form), nil
}

func (s *formService) InvalidateForm(ctx context.Context, formID uuid.UUID) error {
	return s.cache.Invalidate(ctx, formID)
}

// GenerateFormSummary rolls completed conversation summaries for this form
// into one form-level summary. Draft forms are skipped; their conversations
// are test runs by the owner and would skew the roll-up.
func (s *formService) GenerateFormSummary(ctx context.Context, formID uuid.UUID) error {
	dbc := dbctx.Context{Ctx: ctx}
	form, err := s.forms.GetByID(dbc, formID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apierr.ErrNotFound
		}
		return err
	}
	if !form.IsPublished {
		s.log.Debug("skipping summary for draft form", "form_id", formID)
		return nil
	}

	responses, err := s.formResponses.ListByForm(dbc, formID)
	if err != nil {
		return err
	}
	var summaries []string
	for _, fr := range responses {
		conv, err := s.conversations.GetByFormResponseID(dbc, fr.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return err
		}
		if conv.Summary != nil && *conv.Summary != "" {
			summaries = append(summaries, *conv.Summary)
		}
	}
	if len(summaries) == 0 {
		return nil
	}

	summary, err := s.ai.GenerateText(ctx, formSummarySystemPrompt, buildFormSummaryPrompt(form.Title, summaries))
	if err != nil {
		return fmt.Errorf("generate form summary: %w", err)
	}
	if err := s.forms.UpdateSummary(dbc, formID, summary); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, formID)
}
