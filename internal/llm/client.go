package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

const defaultMaxIterations = 10

var (
	ErrMaxIterations = errors.New("llm: max tool iterations reached")
	ErrNoJSON        = errors.New("llm: no JSON object in content")
)

// Client runs the tool-calling loop on top of a Provider. Tools registered
// on the client are offered on every call; WithTools adds call-scoped ones.
type Client struct {
	provider Provider

	mu         sync.RWMutex
	registered []Tool
}

func New(provider Provider) *Client {
	return &Client{provider: provider}
}

// RegisterTool offers tool on every later call, replacing a registered tool
// of the same name.
func (c *Client) RegisterTool(tool Tool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registered = withTool(c.registered, tool)
}

type callOptions struct {
	system     string
	temp       float64
	iterations int
	tools      []Tool
}

type CompletionOption func(*callOptions)

func WithSystemPrompt(prompt string) CompletionOption {
	return func(o *callOptions) { o.system = prompt }
}

func WithTemperature(temp float64) CompletionOption {
	return func(o *callOptions) { o.temp = temp }
}

// WithMaxIterations bounds the number of provider round trips in a tool
// loop.
func WithMaxIterations(n int) CompletionOption {
	return func(o *callOptions) { o.iterations = n }
}

// WithTools offers extra tools for a single call. A call-scoped tool
// shadows a registered tool of the same name.
func WithTools(tools ...Tool) CompletionOption {
	return func(o *callOptions) {
		for _, t := range tools {
			o.tools = withTool(o.tools, t)
		}
	}
}

func withTool(tools []Tool, tool Tool) []Tool {
	for i, t := range tools {
		if t.Name() == tool.Name() {
			tools[i] = tool
			return tools
		}
	}
	return append(tools, tool)
}

// Complete sends prompt as a user message. When tools are on offer and the
// provider supports them, tool calls are executed and their results fed back
// until the model answers without calling a tool.
func (c *Client) Complete(ctx context.Context, prompt string, opts ...CompletionOption) (*CompletionResponse, error) {
	c.mu.RLock()
	o := callOptions{
		iterations: defaultMaxIterations,
		tools:      append([]Tool(nil), c.registered...),
	}
	c.mu.RUnlock()
	for _, opt := range opts {
		opt(&o)
	}

	user := Message{Role: RoleUser, Content: prompt}
	if len(o.tools) == 0 || !c.provider.SupportsTools() {
		return c.provider.Complete(ctx, CompletionRequest{
			SystemPrompt: o.system,
			Messages:     []Message{user},
			Temperature:  o.temp,
		})
	}

	conv := &conversation{tools: make(map[string]Tool, len(o.tools))}
	for _, t := range o.tools {
		conv.tools[t.Name()] = t
	}
	if o.system != "" {
		conv.add(Message{Role: RoleSystem, Content: o.system})
	}
	conv.add(user)

	for round := 0; round < o.iterations; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := c.provider.Complete(ctx, CompletionRequest{
			Messages:    conv.messages,
			Tools:       o.tools,
			Temperature: o.temp,
		})
		if err != nil {
			return nil, err
		}

		calls := resp.Calls()
		if len(calls) == 0 {
			return resp, nil
		}
		reply := resp.Message
		reply.ToolCalls = calls
		conv.add(reply)
		for _, call := range calls {
			conv.add(conv.answer(ctx, call))
		}
	}
	return nil, fmt.Errorf("%w (%d)", ErrMaxIterations, o.iterations)
}

// conversation is the message log of one tool loop.
type conversation struct {
	messages []Message
	tools    map[string]Tool
}

func (c *conversation) add(m Message) {
	c.messages = append(c.messages, m)
}

// answer executes call and returns the tool message reporting its result.
// Failures are reported to the model as {"error": ...} rather than ending the
// loop.
func (c *conversation) answer(ctx context.Context, call ToolCall) Message {
	msg := Message{Role: RoleTool, ToolCallID: call.ID, Name: call.Function.Name}

	tool, ok := c.tools[call.Function.Name]
	if !ok {
		slog.Warn("model called unknown tool", "tool", call.Function.Name)
		msg.Content = toolError(fmt.Errorf("tool not found: %s", call.Function.Name))
		return msg
	}

	result, err := tool.Execute(ctx, call.Function.Arguments)
	if err != nil {
		slog.Debug("tool call failed", "tool", call.Function.Name, "error", err)
		msg.Content = toolError(err)
		return msg
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		msg.Content = toolError(fmt.Errorf("encode result: %w", err))
		return msg
	}
	msg.Content = string(encoded)
	return msg
}

func toolError(err error) string {
	b, _ := json.Marshal(struct {
		Error string `json:"error"`
	}{err.Error()})
	return string(b)
}

// DecodeJSON unmarshals the first JSON object found in free-form model
// content. Prose or code fences around the object are ignored.
func DecodeJSON(content string, out any) error {
	content = strings.TrimSpace(content)
	if json.Valid([]byte(content)) {
		return json.Unmarshal([]byte(content), out)
	}

	start := strings.IndexByte(content, '{')
	if start < 0 {
		return ErrNoJSON
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(content[start:])))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode model json: %w", err)
	}
	return nil
}
