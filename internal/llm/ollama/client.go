// Package ollama is an llm.Provider backed by an Ollama server.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"tradedesk/internal/llm"
)

const DefaultBaseURL = "http://localhost:11434"

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ollama: %d %s", e.Status, e.Message)
}

// Client talks to an Ollama server's /api/chat endpoint.
type Client struct {
	model  string
	format string
	http   *resty.Client
}

func New(baseURL, model string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	http := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json")
	if timeout > 0 {
		http.SetTimeout(timeout)
	}
	return &Client{model: model, http: http}
}

// SetFormat asks the server to constrain replies that carry no tool call,
// e.g. "json".
func (c *Client) SetFormat(format string) {
	c.format = format
}

func (c *Client) SupportsTools() bool {
	return true
}

func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	body := ChatRequest{
		Model:    c.model,
		Messages: toMessages(req),
		Tools:    toTools(req.Tools),
		Format:   c.format,
	}
	if req.Temperature != 0 {
		body.Options = map[string]any{"temperature": req.Temperature}
	}

	var (
		out    ChatResponse
		failed errorBody
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&failed).
		Post("/api/chat")
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}
	if resp.IsError() {
		msg := failed.Error
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return nil, &APIError{Status: resp.StatusCode(), Message: msg}
	}

	calls := fromCalls(out.Message.ToolCalls)
	slog.Debug("ollama chat complete",
		"model", out.Model,
		"prompt_tokens", out.PromptCount,
		"eval_tokens", out.EvalCount,
		"duration", time.Duration(out.TotalDuration),
		"tool_calls", len(calls),
	)

	return &llm.CompletionResponse{
		Message: llm.Message{
			Role:      llm.Role(out.Message.Role),
			Content:   out.Message.Content,
			ToolCalls: calls,
		},
		ToolCalls:    calls,
		FinishReason: out.DoneReason,
	}, nil
}

// fromCalls converts server tool calls, synthesizing ids the server left
// out.
func fromCalls(in []ToolCall) []llm.ToolCall {
	out := make([]llm.ToolCall, len(in))
	for i, tc := range in {
		out[i].ID = tc.ID
		if out[i].ID == "" {
			out[i].ID = fmt.Sprintf("call_%d", i)
		}
		out[i].Function.Name = tc.Function.Name
		out[i].Function.Arguments = normalizeArguments(tc.Function.Arguments)
	}
	return out
}

func toMessages(req llm.CompletionRequest) []Message {
	var out []Message
	if req.SystemPrompt != "" {
		out = append(out, Message{Role: string(llm.RoleSystem), Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		wire := Message{Role: string(m.Role), Content: m.Content}
		switch m.Role {
		case llm.RoleTool:
			wire.ToolName = m.Name
		default:
			wire.Name = m.Name
		}
		for _, call := range m.ToolCalls {
			var tc ToolCall
			tc.Function.Name = call.Function.Name
			tc.Function.Arguments = call.Function.Arguments
			wire.ToolCalls = append(wire.ToolCalls, tc)
		}
		out = append(out, wire)
	}
	return out
}

func toTools(tools []llm.Tool) []ToolSpec {
	if len(tools) == 0 {
		return nil
	}
	specs := make([]ToolSpec, len(tools))
	for i, t := range tools {
		specs[i] = ToolSpec{
			Type: "function",
			Function: FunctionSpec{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters().Map(),
			},
		}
	}
	return specs
}

// normalizeArguments unwraps arguments sent as a JSON string holding an
// object.
func normalizeArguments(args json.RawMessage) json.RawMessage {
	var encoded string
	if err := json.Unmarshal(args, &encoded); err == nil {
		return json.RawMessage(encoded)
	}
	return args
}
