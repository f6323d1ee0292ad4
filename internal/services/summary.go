package services

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/talkform/talkform-backend/internal/pkg/logger"
)

// SummaryScheduler runs summary generation off the request path. Work is
// fire-and-forget; a failed summary is logged and retried the next time the
// same conversation or form is enqueued.
type SummaryScheduler struct {
	conversations ConversationService
	forms         FormService
	log           *logger.Logger
	wg            sync.WaitGroup
}

func NewSummaryScheduler(conversations ConversationService, forms FormService, log *logger.Logger) *SummaryScheduler {
	return &SummaryScheduler{
		conversations: conversations,
		forms:         forms,
		log:           log.With("component", "summary_scheduler"),
	}
}

// EnqueueConversationSummary summarizes one conversation and then refreshes
// the owning form's roll-up, in that order, on a background goroutine.
func (s *SummaryScheduler) EnqueueConversationSummary(conversationID, formID uuid.UUID) {
	s.run(func(ctx context.Context) {
		if _, err := s.conversations.GenerateSummary(ctx, conversationID); err != nil {
			s.log.Warn("conversation summary failed", "conversation_id", conversationID, "error", err)
			return
		}
		if err := s.forms.GenerateFormSummary(ctx, formID); err != nil {
			s.log.Warn("form summary failed", "form_id", formID, "error", err)
		}
	})
}

// EnqueueFormSummary refreshes just the form roll-up.
func (s *SummaryScheduler) EnqueueFormSummary(formID uuid.UUID) {
	s.run(func(ctx context.Context) {
		if err := s.forms.GenerateFormSummary(ctx, formID); err != nil {
			s.log.Warn("form summary failed", "form_id", formID, "error", err)
		}
	})
}

func (s *SummaryScheduler) run(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("summary job panicked", "panic", r)
			}
		}()
		fn(context.Background())
	}()
}

// WaitIdle blocks until all enqueued summary work has finished. Used by
// graceful shutdown and by tests that need deterministic completion.
func (s *SummaryScheduler) WaitIdle() {
	s.wg.Wait()
}
