package grok

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/talkform/talkform-backend/internal/pkg/envutil"
	"github.com/talkform/talkform-backend/internal/pkg/logger"
)

// Message is one chat-completions turn sent to the streaming backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is the low-latency streaming model used for the user-facing pass of
// a conversation turn. It never executes tools; side effects belong to the
// tool-calling client.
type Client interface {
	// StreamChat forwards each text delta to onDelta as it arrives and
	// returns the accumulated full text once the stream finishes.
	StreamChat(ctx context.Context, messages []Message, onDelta func(delta string)) (string, error)
}

type client struct {
	log         *logger.Logger
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
}

func NewClient(log *logger.Logger) (Client, error) {
	apiKey := strings.TrimSpace(os.Getenv("XAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing XAI_API_KEY")
	}

	baseURL := envutil.String("XAI_BASE_URL", "https://api.x.ai")
	baseURL = strings.TrimRight(baseURL, "/")

	model := envutil.String("XAI_MODEL", "grok-3")
	timeout := envutil.Duration("XAI_TIMEOUT", 120*time.Second)

	return &client{
		log:         log.With("client", "GrokClient"),
		baseURL:     baseURL,
		apiKey:      apiKey,
		model:       model,
		temperature: 0.5,
		httpClient:  &http.Client{Timeout: timeout},
	}, nil
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *client) StreamChat(ctx context.Context, messages []Message, onDelta func(delta string)) (string, error) {
	reqBody := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Stream:      true,
		Temperature: c.temperature,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/chat/completions", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("grok stream request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("grok api error: %d %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var full strings.Builder
	err = streamSSE(resp.Body, func(event string, data string) error {
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			return nil
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Malformed keep-alive frames are skipped, not fatal.
			c.log.Debug("skipping unparseable stream frame", "error", err)
			return nil
		}
		if chunk.Error != nil {
			return fmt.Errorf("grok stream error: %s", chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 {
			return nil
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			return nil
		}
		full.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return full.String(), nil
}
