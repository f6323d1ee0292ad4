package openai

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

// ToolDefinition describes one server-defined function the model may call.
// Parameters is a JSON-schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a model-initiated invocation of a ToolDefinition.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolHandler executes a tool call and returns a JSON-marshalable result that
// is fed back to the model. Errors are reported to the model as text; they do
// not abort the generation loop.
type ToolHandler func(ctx context.Context, call ToolCall) (any, error)

// Client is the reasoning-capable model used for the side-effect pass. It
// supports a bounded number of tool-call steps followed by a final response.
type Client interface {
	GenerateText(ctx context.Context, system string, user string) (string, error)
	GenerateWithTools(ctx context.Context, system string, user string, tools []ToolDefinition, handle ToolHandler) (string, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	maxSteps   int
	maxRetries int
	httpClient *http.Client
}

func NewClient(log *logger.Logger) (Client, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	baseURL := envutil.String("OPENAI_BASE_URL", "https://api.openai.com")
	baseURL = strings.TrimRight(baseURL, "/")

	model := envutil.String("OPENAI_MODEL", "gpt-4o-mini")
	timeout := envutil.Duration("OPENAI_TIMEOUT", 180*time.Second)

	// One tool call plus a final response.
	maxSteps := envutil.Int("OPENAI_MAX_TOOL_STEPS", 2)
	maxRetries := envutil.Int("OPENAI_MAX_RETRIES", 3)

	return &client{
		log:        log.With("client", "OpenAIClient"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		maxSteps:   maxSteps,
		maxRetries: maxRetries,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	} `json:"function"`
}

type chatCompletionRequest struct {
	Model      string        `json:"model"`
	Messages   []chatMessage `json:"messages"`
	Tools      []wireTool    `json:"tools,omitempty"`
	ToolChoice string        `json:"tool_choice,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *client) GenerateText(ctx context.Context, system string, user string) (string, error) {
	resp, err := c.complete(ctx, chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("no content in response")
	}
	return text, nil
}

// GenerateWithTools runs the bounded tool loop: the model may call tools for
// up to maxSteps-1 rounds, each result is fed back, and the final text (which
// may be empty when the model stops after a tool call) is returned.
func (c *client) GenerateWithTools(ctx context.Context, system string, user string, tools []ToolDefinition, handle ToolHandler) (string, error) {
	messages := []chatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}

	wireTools := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		var wt wireTool
		wt.Type = "function"
		wt.Function.Name = t.Name
		wt.Function.Description = t.Description
		wt.Function.Parameters = t.Parameters
		wireTools = append(wireTools, wt)
	}

	for step := 0; step < c.maxSteps; step++ {
		resp, err := c.complete(ctx, chatCompletionRequest{
			Model:      c.model,
			Messages:   messages,
			Tools:      wireTools,
			ToolChoice: "auto",
		})
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("no choices in response")
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			return strings.TrimSpace(msg.Content), nil
		}

		messages = append(messages, msg)
		for _, tc := range msg.ToolCalls {
			result := c.executeToolCall(ctx, handle, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: json.RawMessage(tc.Function.Arguments),
			})
			messages = append(messages, chatMessage{
				Role:       "tool",
				ToolCallID: tc.ID,
				Content:    result,
			})
		}
	}

	// Step budget exhausted with a pending tool round; the side effects have
	// already been applied, only the closing text is missing.
	return "", nil
}

func (c *client) executeToolCall(ctx context.Context, handle ToolHandler, call ToolCall) string {
	if handle == nil {
		return `{"success":false,"message":"no tool handler configured"}`
	}
	out, err := handle(ctx, call)
	if err != nil {
		c.log.Warn("tool handler error", "tool", call.Name, "error", err)
		return fmt.Sprintf(`{"success":false,"message":%q}`, err.Error())
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"message":%q}`, err.Error())
	}
	return string(raw)
}

func (c *client) complete(ctx context.Context, reqBody chatCompletionRequest) (*chatCompletionResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		resp, retryable, err := c.doComplete(ctx, reqBody)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		c.log.Warn("completion attempt failed", "attempt", attempt, "error", err)
	}
	return nil, lastErr
}

func (c *client) doComplete(ctx context.Context, reqBody chatCompletionRequest) (*chatCompletionResponse, bool, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/chat/completions", &buf)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("chat completion request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("chat completion status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("chat completion status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out chatCompletionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false, fmt.Errorf("decode completion response: %w", err)
	}
	if out.Error != nil {
		return nil, false, fmt.Errorf("completion error: %s", out.Error.Message)
	}
	return &out, false, nil
}
