package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/talkform/talkform-backend/internal/http/response"
	"github.com/talkform/talkform-backend/internal/services"
	"github.com/talkform/talkform-backend/internal/sse"
)

type stubChat struct {
	chatCalls    int
	restoreCalls int
	lastReq      services.ChatRequest
	lastToken    string
}

func (s *stubChat) Chat(ctx context.Context, req services.ChatRequest, stream sse.Stream) error {
	s.chatCalls++
	s.lastReq = req
	_ = stream.SendEvent("end", map[string]any{"success": true, "complete": true})
	return nil
}

func (s *stubChat) Restore(ctx context.Context, token string, stream sse.Stream) error {
	s.restoreCalls++
	s.lastToken = token
	_ = stream.SendEvent("end", map[string]any{"success": true, "complete": true})
	return nil
}

func (s *stubChat) WaitIdle() {}

func newChatRouter(stub *stubChat) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewChatHandler(stub)
	r.POST("/api/forms/:formId/chat", h.Chat)
	r.POST("/api/forms/:formId/chat/restore", h.Restore)
	return r
}

func TestChatEndpointStreams(t *testing.T) {
	stub := &stubChat{}
	r := newChatRouter(stub)

	req := httptest.NewRequest(http.MethodPost,
		"/api/forms/3b9b1f2e-8f6a-4f8e-b1a4-111111111111/chat",
		strings.NewReader(`{"answer":"Jane"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if stub.chatCalls != 1 {
		t.Fatalf("chat not invoked")
	}
	if stub.lastReq.Answer != "Jane" {
		t.Fatalf("answer not bound: %q", stub.lastReq.Answer)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type: got=%q", got)
	}
	if !strings.Contains(rec.Body.String(), "event: end") {
		t.Fatalf("end event missing from body: %q", rec.Body.String())
	}
}

func TestChatEndpointRejectsBadFormID(t *testing.T) {
	stub := &stubChat{}
	r := newChatRouter(stub)

	req := httptest.NewRequest(http.MethodPost, "/api/forms/not-a-uuid/chat", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got=%d want=%d", rec.Code, http.StatusBadRequest)
	}
	if stub.chatCalls != 0 {
		t.Fatalf("chat invoked despite invalid form id")
	}

	var env response.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if env.Error.Code != "invalid_form_id" {
		t.Fatalf("error code: got=%q want=%q", env.Error.Code, "invalid_form_id")
	}
}

func TestRestoreEndpointPrefersBodyToken(t *testing.T) {
	stub := &stubChat{}
	r := newChatRouter(stub)

	req := httptest.NewRequest(http.MethodPost,
		"/api/forms/3b9b1f2e-8f6a-4f8e-b1a4-111111111111/chat/restore",
		strings.NewReader(`{"sessionToken":"body-token"}`))
	req.AddCookie(&http.Cookie{Name: "talkform_session", Value: "cookie-token"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if stub.restoreCalls != 1 {
		t.Fatalf("restore not invoked")
	}
	if stub.lastToken != "body-token" {
		t.Fatalf("token precedence wrong: %q", stub.lastToken)
	}
}

func TestRestoreEndpointFallsBackToCookie(t *testing.T) {
	stub := &stubChat{}
	r := newChatRouter(stub)

	req := httptest.NewRequest(http.MethodPost,
		"/api/forms/3b9b1f2e-8f6a-4f8e-b1a4-111111111111/chat/restore",
		strings.NewReader(`{}`))
	req.AddCookie(&http.Cookie{Name: "talkform_session", Value: "cookie-token"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if stub.lastToken != "cookie-token" {
		t.Fatalf("cookie token not used: %q", stub.lastToken)
	}
}

func TestRestoreEndpointRequiresToken(t *testing.T) {
	stub := &stubChat{}
	r := newChatRouter(stub)

	req := httptest.NewRequest(http.MethodPost,
		"/api/forms/3b9b1f2e-8f6a-4f8e-b1a4-111111111111/chat/restore",
		strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: got=%d want=%d", rec.Code, http.StatusUnauthorized)
	}
	if stub.restoreCalls != 0 {
		t.Fatalf("restore invoked without a token")
	}

	var env response.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if env.Error.Code != "missing_session_token" {
		t.Fatalf("error code: got=%q want=%q", env.Error.Code, "missing_session_token")
	}
}
