package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/talkform/talkform-backend/internal/http/response"
	"github.com/talkform/talkform-backend/internal/pkg/apierr"
	"github.com/talkform/talkform-backend/internal/services"
	"github.com/talkform/talkform-backend/internal/sse"
)

type ChatHandler struct {
	chat services.ChatService
}

func NewChatHandler(chat services.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type chatReq struct {
	ConversationID *uuid.UUID `json:"conversationId"`
	Question       string     `json:"question"`
	Answer         string     `json:"answer"`
}

type restoreReq struct {
	SessionToken string `json:"sessionToken"`
}

// POST /api/forms/:formId/chat
//
// Streams the assistant's reply as server-sent events. Errors after the
// stream opens arrive as an "error" event, not an HTTP status.
func (h *ChatHandler) Chat(c *gin.Context) {
	formID, err := uuid.Parse(c.Param("formId"))
	if err != nil {
		response.RespondError(c, apierr.New(http.StatusBadRequest, "invalid_form_id", err))
		return
	}
	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, apierr.New(http.StatusBadRequest, "invalid_request", err))
		return
	}

	stream, err := sse.NewWriter(c.Writer)
	if err != nil {
		response.RespondError(c, apierr.New(http.StatusInternalServerError, "streaming_unsupported", err))
		return
	}

	_ = h.chat.Chat(c.Request.Context(), services.ChatRequest{
		FormID:         formID,
		ConversationID: req.ConversationID,
		Question:       req.Question,
		Answer:         req.Answer,
	}, stream)
}

// POST /api/forms/:formId/chat/restore
//
// Resumes a conversation from a signed session token, supplied in the body
// or in the talkform_session cookie. The reply streams exactly like Chat.
func (h *ChatHandler) Restore(c *gin.Context) {
	var req restoreReq
	_ = c.ShouldBindJSON(&req)
	token := strings.TrimSpace(req.SessionToken)
	if token == "" {
		if v, err := c.Cookie("talkform_session"); err == nil {
			token = v
		}
	}
	if token == "" {
		response.RespondError(c, apierr.New(http.StatusUnauthorized, "missing_session_token", errors.New("session token required")))
		return
	}

	stream, err := sse.NewWriter(c.Writer)
	if err != nil {
		response.RespondError(c, apierr.New(http.StatusInternalServerError, "streaming_unsupported", err))
		return
	}

	_ = h.chat.Restore(c.Request.Context(), token, stream)
}
