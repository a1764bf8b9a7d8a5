// Package llm is a small chat-completion layer: a Provider abstraction over
// model backends and a Client that runs the tool-calling loop on top of it.
package llm

import (
	"context"
	"encoding/json"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of a conversation. Tool results carry the ToolCallID
// and Name of the call they answer.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

type ToolCall struct {
	ID       string
	Function ToolCallFunction
}

type ToolCallFunction struct {
	Name      string
	Arguments json.RawMessage
}

// Tool is a function the model may call. Execute receives the raw JSON
// arguments chosen by the model.
type Tool interface {
	Name() string
	Description() string
	Parameters() *Schema
	Execute(ctx context.Context, args json.RawMessage) (any, error)
}

// CompletionRequest is a single round trip to a Provider. SystemPrompt is
// only set when the client leaves message assembly to the backend.
type CompletionRequest struct {
	SystemPrompt string
	Messages     []Message
	Tools        []Tool
	Temperature  float64
}

type CompletionResponse struct {
	Message      Message
	ToolCalls    []ToolCall
	FinishReason string
}

// Calls returns the tool calls of the response regardless of which field the
// backend populated.
func (r *CompletionResponse) Calls() []ToolCall {
	if len(r.ToolCalls) > 0 {
		return r.ToolCalls
	}
	return r.Message.ToolCalls
}

// Provider is a chat backend. Implementations must honour ctx cancellation.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	SupportsTools() bool
}
