package ollama

import "encoding/json"

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Model    string          `json:"model"`
	Messages []Message       `json:"messages"`
	Tools    []ToolSpec      `json:"tools,omitempty"`
	Format   string          `json:"format,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
	Stream   bool            `json:"stream"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// Name identifies a participant; ToolName labels a tool result.
	Name      string     `json:"name,omitempty"`
	ToolName  string     `json:"tool_name,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

type ToolCall struct {
	ID       string `json:"id,omitempty"`
	Function struct {
		Name string `json:"name"`
		// Arguments is an object, or a string holding one on some models.
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

// ToolSpec declares a callable function to the model.
type ToolSpec struct {
	Type     string       `json:"type"`
	Function FunctionSpec `json:"function"`
}

type FunctionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type ChatResponse struct {
	Model      string  `json:"model"`
	Message    Message `json:"message"`
	Done       bool    `json:"done"`
	DoneReason string  `json:"done_reason,omitempty"`
	// Durations are in nanoseconds.
	TotalDuration int64 `json:"total_duration,omitempty"`
	LoadDuration  int64 `json:"load_duration,omitempty"`
	PromptCount   int   `json:"prompt_eval_count,omitempty"`
	EvalCount     int   `json:"eval_count,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}
