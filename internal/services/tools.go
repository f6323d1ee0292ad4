package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

// ToolResult is the structured outcome handed back to the model. Tools never
// fail by error; every failure becomes {success:false, message} so a broken
// side effect cannot abort the conversational turn.
type ToolResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type SaveQuestionResponseArgs struct {
	FormResponseID    string `json:"formResponseId"`
	QuestionID        string `json:"questionId"`
	Response          string `json:"response"`
	IsValid           bool   `json:"isValid"`
	ValidationMessage string `json:"validationMessage,omitempty"`
}

type CompleteFormArgs struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsValid        bool   `json:"isValid"`
}

type UpdateRespondentIdentityArgs struct {
	ConversationID string  `json:"conversationId"`
	Name           *string `json:"name,omitempty"`
	Email          *string `json:"email,omitempty"`
}

// ToolExecutor is the fixed catalogue of side effects the model may invoke.
// Each tool runs in its own transaction; partial effects never leak.
type ToolExecutor interface {
	SaveQuestionResponse(ctx context.Context, args SaveQuestionResponseArgs) ToolResult
	CompleteForm(ctx context.Context, args CompleteFormArgs) ToolResult
	UpdateRespondentIdentity(ctx context.Context, args UpdateRespondentIdentityArgs) ToolResult
	Definitions() []openai.ToolDefinition
	Handler() openai.ToolHandler
}

type toolExecutor struct {
	db                *gorm.DB
	conversations     ConversationService
	conversationRepo  repos.ConversationRepo
	formResponses     repos.FormResponseRepo
	questionResponses repos.QuestionResponseRepo
	users             repos.UserRepo
	scheduler         *SummaryScheduler
	log               *logger.Logger
}

func NewToolExecutor(
	db *gorm.DB,
	conversations ConversationService,
	conversationRepo repos.ConversationRepo,
	formResponses repos.FormResponseRepo,
	questionResponses repos.QuestionResponseRepo,
	users repos.UserRepo,
	scheduler *SummaryScheduler,
	log *logger.Logger,
) ToolExecutor {
	return &toolExecutor{
		db:                db,
		conversations:     conversations,
		conversationRepo:  conversationRepo,
		formResponses:     formResponses,
		questionResponses: questionResponses,
		users:             users,
		scheduler:         scheduler,
		log:               log.With("service", "tools"),
	}
}

func failure(format string, args ...any) ToolResult {
	return ToolResult{Success: false, Message: fmt.Sprintf(format, args...)}
}

// SaveQuestionResponse persists a validated answer. Validity is the model's
// judgment, passed in; an invalid answer performs no write and echoes the
// validation message back so the model re-asks the question. A second valid
// answer to the same question updates the row in place and bumps retryCount.
func (t *toolExecutor) SaveQuestionResponse(ctx context.Context, args SaveQuestionResponseArgs) ToolResult {
	if !args.IsValid {
		msg := args.ValidationMessage
		if msg == "" {
			msg = "response is invalid"
		}
		return ToolResult{Success: false, Message: "not saved: " + msg}
	}
	questionID, err := uuid.Parse(args.QuestionID)
	if err != nil {
		return failure("invalid questionId: %v", err)
	}
	formResponseID, err := uuid.Parse(args.FormResponseID)
	if err != nil {
		return failure("invalid formResponseId: %v", err)
	}

	err = t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := t.formResponses.GetByID(dbc, formResponseID); err != nil {
			return err
		}
		_, err := t.questionResponses.Upsert(dbc, &domain.QuestionResponse{
			QuestionID:     questionID,
			FormResponseID: formResponseID,
			Response:       args.Response,
		})
		return err
	})
	if err != nil {
		t.log.Warn("save question response failed", "question_id", questionID, "error", err)
		return failure("failed to save response: %v", err)
	}
	return ToolResult{Success: true, Message: "response saved"}
}

// CompleteForm closes the conversation out. Calling it on an already
// completed conversation is a no-op success, so the quota is charged exactly
// once. The status transition, completedAt stamp, and quota decrement commit
// together or not at all; summaries are scheduled only after the commit.
func (t *toolExecutor) CompleteForm(ctx context.Context, args CompleteFormArgs) ToolResult {
	if !args.IsValid {
		return failure("form is not complete: outstanding answers are invalid or missing")
	}
	conversationID, err := uuid.Parse(args.ConversationID)
	if err != nil {
		return failure("invalid conversationId: %v", err)
	}
	userID, err := uuid.Parse(args.UserID)
	if err != nil {
		return failure("invalid userId: %v", err)
	}

	var formID uuid.UUID
	alreadyCompleted := false
	err = t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		conv, err := t.conversationRepo.GetByID(dbc, conversationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apierr.ErrNotFound
			}
			return err
		}
		if conv.Status == domain.ConversationCompleted {
			alreadyCompleted = true
			return nil
		}
		if err := t.conversations.Transition(dbc, conversationID, domain.ConversationCompleted); err != nil {
			return err
		}
		if err := t.formResponses.SetCompletedAt(dbc, conv.FormResponseID, time.Now().UTC()); err != nil {
			return err
		}
		ok, err := t.users.DecrementQuota(dbc, userID)
		if err != nil {
			return err
		}
		if !ok {
			return apierr.ErrQuotaExceeded
		}
		formID = conv.FormResponse.FormID
		return nil
	})
	if err != nil {
		t.log.Warn("complete form failed", "conversation_id", conversationID, "error", err)
		return failure("failed to complete form: %v", err)
	}
	if alreadyCompleted {
		return ToolResult{Success: true, Message: "form already completed"}
	}

	t.scheduler.EnqueueConversationSummary(conversationID, formID)
	return ToolResult{Success: true, Message: "form completed"}
}

// UpdateRespondentIdentity patches respondent name/email on the form
// response. Absent fields are left untouched; repeated calls overwrite.
func (t *toolExecutor) UpdateRespondentIdentity(ctx context.Context, args UpdateRespondentIdentityArgs) ToolResult {
	if args.Name == nil && args.Email == nil {
		return ToolResult{Success: true, Message: "nothing to update"}
	}
	conversationID, err := uuid.Parse(args.ConversationID)
	if err != nil {
		return failure("invalid conversationId: %v", err)
	}

	err = t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		conv, err := t.conversationRepo.GetByID(dbc, conversationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apierr.ErrNotFound
			}
			return err
		}
		return t.formResponses.UpdateRespondent(dbc, conv.FormResponseID, args.Name, args.Email)
	})
	if err != nil {
		t.log.Warn("update respondent failed", "conversation_id", conversationID, "error", err)
		return failure("failed to update respondent: %v", err)
	}
	return ToolResult{Success: true, Message: "respondent updated"}
}

const (
	toolSaveQuestionResponse     = "saveQuestionResponse"
	toolCompleteForm             = "completeForm"
	toolUpdateRespondentIdentity = "updateRespondentIdentity"
)

func (t *toolExecutor) Definitions() []openai.ToolDefinition {
	return []openai.ToolDefinition{
		{
			Name:        toolSaveQuestionResponse,
			Description: "Save the respondent's answer to a question once you have judged it valid. If the answer is invalid, call with isValid=false and a validationMessage; nothing is saved.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"formResponseId":    map[string]any{"type": "string", "description": "Form response id from the prompt context"},
					"questionId":        map[string]any{"type": "string", "description": "Id of the question being answered"},
					"response":          map[string]any{"type": "string", "description": "The respondent's answer text"},
					"isValid":           map[string]any{"type": "boolean", "description": "Whether the answer satisfies the question's validation rules"},
					"validationMessage": map[string]any{"type": "string", "description": "Why the answer is invalid, when isValid is false"},
				},
				"required": []string{"formResponseId", "questionId", "response", "isValid"},
			},
		},
		{
			Name:        toolCompleteForm,
			Description: "Mark the form as completed once every question has a valid saved answer. Call with isValid=false if anything is still outstanding.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"conversationId": map[string]any{"type": "string", "description": "Conversation id from the prompt context"},
					"userId":         map[string]any{"type": "string", "description": "Form owner user id from the prompt context"},
					"isValid":        map[string]any{"type": "boolean", "description": "Whether all questions have valid answers"},
				},
				"required": []string{"conversationId", "userId", "isValid"},
			},
		},
		{
			Name:        toolUpdateRespondentIdentity,
			Description: "Record the respondent's name and/or email when they share it during the conversation.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"conversationId": map[string]any{"type": "string", "description": "Conversation id from the prompt context"},
					"name":           map[string]any{"type": "string", "description": "Respondent's name"},
					"email":          map[string]any{"type": "string", "description": "Respondent's email address"},
				},
				"required": []string{"conversationId"},
			},
		},
	}
}

// Handler adapts the executor to the model client's tool-call callback.
// Unknown tools and malformed arguments come back as failed results, never
// as errors, so the model can correct itself on the next step.
func (t *toolExecutor) Handler() openai.ToolHandler {
	return func(ctx context.Context, call openai.ToolCall) (any, error) {
		switch call.Name {
		case toolSaveQuestionResponse:
			var args SaveQuestionResponseArgs
			if err := json.Unmarshal(call.Arguments, &args); err != nil {
				return failure("invalid arguments: %v", err), nil
			}
			return t.SaveQuestionResponse(ctx, args), nil
		case toolCompleteForm:
			var args CompleteFormArgs
			if err := json.Unmarshal(call.Arguments, &args); err != nil {
				return failure("invalid arguments: %v", err), nil
			}
			return t.CompleteForm(ctx, args), nil
		case toolUpdateRespondentIdentity:
			var args UpdateRespondentIdentityArgs
			if err := json.Unmarshal(call.Arguments, &args); err != nil {
				return failure("invalid arguments: %v", err), nil
			}
			return t.UpdateRespondentIdentity(ctx, args), nil
		default:
			return failure("unknown tool %q", call.Name), nil
		}
	}
}
