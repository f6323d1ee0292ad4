package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talkform/talkform-backend/internal/data/repos"
	"github.com/talkform/talkform-backend/internal/domain"
	"github.com/talkform/talkform-backend/internal/pkg/apierr"
	"github.com/talkform/talkform-backend/internal/pkg/ctxutil"
	"github.com/talkform/talkform-backend/internal/pkg/dbctx"
	"github.com/talkform/talkform-backend/internal/pkg/logger"
	"github.com/talkform/talkform-backend/internal/pkg/turnlock"
	"github.com/talkform/talkform-backend/internal/platform/grok"
	"github.com/talkform/talkform-backend/internal/platform/openai"
	"github.com/talkform/talkform-backend/internal/session"
	"github.com/talkform/talkform-backend/internal/sse"
)

// ChatRequest is one conversational turn. A nil ConversationID starts a new
// conversation; Question and Answer are both optional on a restored session.
type ChatRequest struct {
	FormID         uuid.UUID
	ConversationID *uuid.UUID
	Question       string
	Answer         string
}

// ChatService drives one turn end-to-end: context assembly, the tool-calling
// side channel, the user-facing token stream, and final persistence.
type ChatService interface {
	Chat(ctx context.Context, req ChatRequest, stream sse.Stream) error
	Restore(ctx context.Context, token string, stream sse.Stream) error
	// WaitIdle blocks until in-flight tool passes finish. Shutdown and tests.
	WaitIdle()
}

type chatService struct {
	forms         FormService
	conversations ConversationService
	users         repos.UserRepo
	tools         ToolExecutor
	toolModel     openai.Client
	streamModel   grok.Client
	sessions      *session.Codec
	locks         *turnlock.Registry
	streamTimeout time.Duration
	toolTimeout   time.Duration
	log           *logger.Logger
	wg            sync.WaitGroup
}

func NewChatService(
	forms FormService,
	conversations ConversationService,
	users repos.UserRepo,
	tools ToolExecutor,
	toolModel openai.Client,
	streamModel grok.Client,
	sessions *session.Codec,
	locks *turnlock.Registry,
	streamTimeout time.Duration,
	toolTimeout time.Duration,
	log *logger.Logger,
) ChatService {
	return &chatService{
		forms:         forms,
		conversations: conversations,
		users:         users,
		tools:         tools,
		toolModel:     toolModel,
		streamModel:   streamModel,
		sessions:      sessions,
		locks:         locks,
		streamTimeout: streamTimeout,
		toolTimeout:   toolTimeout,
		log:           log.With("service", "chat"),
	}
}

// Chat runs one turn and reports any failure to the client as a terminal
// "error" event before returning it.
func (s *chatService) Chat(ctx context.Context, req ChatRequest, stream sse.Stream) error {
	if err := s.runTurn(ctx, req, stream); err != nil {
		s.log.Warn("turn failed", "form_id", req.FormID, "error", err)
		_ = stream.SendEvent("error", map[string]any{"error": userMessage(err)})
		return err
	}
	return nil
}

// Restore re-enters the continuing-conversation path from a session token,
// with no question or answer; context is rebuilt purely from history.
func (s *chatService) Restore(ctx context.Context, token string, stream sse.Stream) error {
	sess, err := s.sessions.Verify(token)
	if err != nil {
		_ = stream.SendEvent("error", map[string]any{"error": userMessage(err)})
		return err
	}
	conv, err := s.conversations.GetByFormResponse(ctx, sess.FormResponseID)
	if err != nil {
		_ = stream.SendEvent("error", map[string]any{"error": userMessage(err)})
		return err
	}
	return s.Chat(ctx, ChatRequest{FormID: sess.FormID, ConversationID: &conv.ID}, stream)
}

func (s *chatService) runTurn(ctx context.Context, req ChatRequest, stream sse.Stream) error {
	form, err := s.forms.GetForm(ctx, req.FormID)
	if err != nil {
		return err
	}

	var conv *domain.Conversation
	isNew := req.ConversationID == nil
	if isNew {
		if form.IsPublished {
			owner, err := s.users.GetByID(dbctx.Context{Ctx: ctx}, form.UserID)
			if err != nil {
				return err
			}
			if owner.ConversationCount <= 0 {
				return apierr.ErrQuotaExceeded
			}
		}
		conv, err = s.conversations.Create(ctx, form.ID)
		if err != nil {
			return err
		}
	} else {
		conv, err = s.conversations.GetByID(ctx, *req.ConversationID)
		if err != nil {
			return err
		}
		if conv.Status != domain.ConversationInProgress {
			return apierr.ErrNotFound
		}
		if conv.FormResponse == nil || conv.FormResponse.FormID != form.ID {
			return apierr.ErrNotFound
		}
	}

	if !s.locks.TryAcquire(conv.ID) {
		return apierr.ErrTurnInProgress
	}
	defer s.locks.Release(conv.ID)

	if isNew {
		token, err := s.sessions.Sign(form.ID, conv.FormResponseID)
		if err != nil {
			return err
		}
		if err := stream.SendEvent("metadata", map[string]any{
			"conversationId": conv.ID,
			"formId":         form.ID,
			"sessionToken":   token,
		}); err != nil {
			return err
		}
	}

	history := conv.Messages
	if !isNew && req.Answer != "" {
		msg, err := s.conversations.AppendMessage(ctx, conv.ID, domain.RoleUser, req.Answer, nil)
		if err != nil {
			return err
		}
		history = append(history, msg)
	}

	currentQuestion := req.Question
	if isNew && len(form.Questions) > 0 {
		currentQuestion = form.Questions[0].Text
	}

	prompt := buildChatPrompt(chatPromptInput{
		Form:            form,
		ConversationID:  conv.ID,
		FormResponseID:  conv.FormResponseID,
		CurrentQuestion: currentQuestion,
		Answer:          req.Answer,
		Messages:        history,
	})

	// Side-effect pass. Runs detached so a client disconnect mid-stream never
	// rolls back or interrupts committed tool effects. Draft forms skip it:
	// previewing a form must not write responses or touch quota.
	if form.IsPublished {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("tool pass panicked", "conversation_id", conv.ID, "panic", r)
				}
			}()
			tctx, cancel := context.WithTimeout(ctxutil.Detached(ctx), s.toolTimeout)
			defer cancel()
			if _, err := s.toolModel.GenerateWithTools(tctx, toolSystemPrompt, prompt, s.tools.Definitions(), s.tools.Handler()); err != nil {
				s.log.Warn("tool pass failed", "conversation_id", conv.ID, "error", err)
			}
		}()
	}

	sctx, cancel := context.WithTimeout(ctx, s.streamTimeout)
	defer cancel()
	full, err := s.streamModel.StreamChat(sctx, []grok.Message{
		{Role: "system", Content: streamSystemPrompt},
		{Role: "user", Content: prompt},
	}, func(delta string) {
		_ = stream.SendDelta(delta)
	})
	if err != nil {
		// No assistant message is persisted for an errored stream; the turn
		// either fully completes or leaves no trace.
		return err
	}

	pctx, pcancel := context.WithTimeout(ctxutil.Detached(ctx), 15*time.Second)
	defer pcancel()
	if _, err := s.conversations.AppendMessage(pctx, conv.ID, domain.RoleAssistant, full, nil); err != nil {
		return err
	}

	return stream.SendEvent("end", map[string]any{"success": true, "complete": true})
}

func (s *chatService) WaitIdle() {
	s.wg.Wait()
}

// userMessage maps internal errors onto the strings sent in the "error"
// event. Unrecognized errors get a generic message; details stay in logs.
func userMessage(err error) string {
	switch {
	case errors.Is(err, apierr.ErrNotFound):
		return "conversation or form not found or no longer active"
	case errors.Is(err, apierr.ErrQuotaExceeded):
		return "this form is not accepting new conversations right now"
	case errors.Is(err, apierr.ErrTurnInProgress):
		return "a reply is already being generated for this conversation"
	case errors.Is(err, apierr.ErrInvalidSession):
		return "your session is invalid or has expired"
	case errors.Is(err, context.DeadlineExceeded):
		return "the response timed out, please try again"
	default:
		return "something went wrong generating a response"
	}
}
