package grok

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/talkform/talkform-backend/internal/pkg/logger"
)

type frame struct {
	event string
	data  string
}

func collectFrames(t *testing.T, input string) []frame {
	t.Helper()
	var out []frame
	err := streamSSE(strings.NewReader(input), func(event, data string) error {
		out = append(out, frame{event: event, data: data})
		return nil
	})
	if err != nil {
		t.Fatalf("streamSSE: %v", err)
	}
	return out
}

func TestStreamSSEParsesFrames(t *testing.T) {
	input := "event: metadata\ndata: {\"a\":1}\n\ndata: chunk1\n\ndata: chunk2\n\n"
	frames := collectFrames(t, input)

	want := []frame{
		{event: "metadata", data: `{"a":1}`},
		{event: "", data: "chunk1"},
		{event: "", data: "chunk2"},
	}
	if len(frames) != len(want) {
		t.Fatalf("frame count: got=%d want=%d", len(frames), len(want))
	}
	for i := range want {
		if frames[i] != want[i] {
			t.Fatalf("frame %d: got=%+v want=%+v", i, frames[i], want[i])
		}
	}
}

func TestStreamSSEJoinsMultiLineData(t *testing.T) {
	input := "data: line1\ndata: line2\n\n"
	frames := collectFrames(t, input)
	if len(frames) != 1 || frames[0].data != "line1\nline2" {
		t.Fatalf("multi-line data not joined: %+v", frames)
	}
}

func TestStreamSSESkipsCommentsAndFlushesAtEOF(t *testing.T) {
	input := ": keep-alive\ndata: tail"
	frames := collectFrames(t, input)
	if len(frames) != 1 || frames[0].data != "tail" {
		t.Fatalf("EOF flush or comment handling broken: %+v", frames)
	}
}

func TestStreamSSEHandlesCRLF(t *testing.T) {
	input := "data: windows\r\n\r\n"
	frames := collectFrames(t, input)
	if len(frames) != 1 || frames[0].data != "windows" {
		t.Fatalf("CRLF lines mishandled: %+v", frames)
	}
}

func TestStreamSSEPropagatesCallbackError(t *testing.T) {
	sentinel := errors.New("stop")
	err := streamSSE(strings.NewReader("data: x\n\n"), func(event, data string) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("callback error not propagated: %v", err)
	}
}

func TestStreamChatAccumulatesDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing auth header: %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"choices":[{"delta":{"content":"Hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo"}}]}`,
			`{"choices":[{"delta":{"content":""},"finish_reason":"stop"}]}`,
			"[DONE]",
		}
		for _, c := range chunks {
			_, _ = w.Write([]byte("data: " + c + "\n\n"))
		}
	}))
	defer srv.Close()

	t.Setenv("XAI_API_KEY", "test-key")
	t.Setenv("XAI_BASE_URL", srv.URL)

	log, err := logger.New("production")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	c, err := NewClient(log)
	if err != nil {
		t.Fatalf("client: %v", err)
	}

	var deltas []string
	full, err := c.StreamChat(t.Context(), []Message{{Role: "user", Content: "hi"}}, func(d string) {
		deltas = append(deltas, d)
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if full != "Hello" {
		t.Fatalf("accumulated text: got=%q want=%q", full, "Hello")
	}
	if len(deltas) != 2 {
		t.Fatalf("delta count: got=%d want=2", len(deltas))
	}
}

func TestStreamChatSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	t.Setenv("XAI_API_KEY", "test-key")
	t.Setenv("XAI_BASE_URL", srv.URL)

	log, _ := logger.New("production")
	c, err := NewClient(log)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if _, err := c.StreamChat(t.Context(), []Message{{Role: "user", Content: "hi"}}, nil); err == nil {
		t.Fatalf("expected error on 401")
	}
}
