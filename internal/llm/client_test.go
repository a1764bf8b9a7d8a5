package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

// scripted replays canned responses and records every request it sees.
type scripted struct {
	replies  []*CompletionResponse
	requests []CompletionRequest
	tools    bool
}

func (s *scripted) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	s.requests = append(s.requests, req)
	if len(s.replies) == 0 {
		return &CompletionResponse{Message: Message{Role: RoleAssistant, Content: "default response"}}, nil
	}
	next := s.replies[0]
	s.replies = s.replies[1:]
	return next, nil
}

func (s *scripted) SupportsTools() bool { return s.tools }

func (s *scripted) last() CompletionRequest { return s.requests[len(s.requests)-1] }

func say(content string) *CompletionResponse {
	return &CompletionResponse{Message: Message{Role: RoleAssistant, Content: content}}
}

func callTool(name, args string) *CompletionResponse {
	return &CompletionResponse{
		ToolCalls: []ToolCall{
			{ID: "call_1", Function: ToolCallFunction{Name: name, Arguments: json.RawMessage(args)}},
		},
	}
}

type scoreArgs struct {
	Symbol string `json:"symbol"`
	Score  int    `json:"score"`
}

func TestCompletePlainReply(t *testing.T) {
	p := &scripted{replies: []*CompletionResponse{say("HOLD")}, tools: true}

	resp, err := New(p).Complete(context.Background(), "Analyze BTC", WithSystemPrompt("desk"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Message.Content != "HOLD" {
		t.Fatalf("expected HOLD, got %s", resp.Message.Content)
	}
	// Without tools the backend assembles the system message itself.
	if got := p.last(); got.SystemPrompt != "desk" || len(got.Messages) != 1 {
		t.Fatalf("expected system prompt passed through, got %+v", got)
	}
}

func TestCompleteRunsCallScopedTool(t *testing.T) {
	p := &scripted{replies: []*CompletionResponse{callTool("score", `{"symbol":"ETH","score":7}`), say("recorded")}, tools: true}

	var captured scoreArgs
	tool := FuncTool("score", "Record a score", func(ctx context.Context, args scoreArgs) (map[string]any, error) {
		captured = args
		return map[string]any{"status": "ok"}, nil
	})

	resp, err := New(p).Complete(context.Background(), "Score ETH", WithTools(tool), WithSystemPrompt("desk"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Message.Content != "recorded" {
		t.Fatalf("expected recorded, got %s", resp.Message.Content)
	}
	if captured != (scoreArgs{Symbol: "ETH", Score: 7}) {
		t.Fatalf("expected tool to capture arguments, got %+v", captured)
	}
	if len(p.requests) != 2 {
		t.Fatalf("expected 2 round trips, got %d", len(p.requests))
	}

	msgs := p.last().Messages
	if msgs[0].Role != RoleSystem || msgs[1].Role != RoleUser {
		t.Fatalf("expected system then user, got %s %s", msgs[0].Role, msgs[1].Role)
	}
	if len(msgs[2].ToolCalls) != 1 {
		t.Fatalf("expected assistant turn to carry the tool call, got %+v", msgs[2])
	}
	reply := msgs[len(msgs)-1]
	if reply.Role != RoleTool || reply.ToolCallID != "call_1" || reply.Content != `{"status":"ok"}` {
		t.Fatalf("expected tool result message, got %+v", reply)
	}
}

func TestCompleteWithoutToolSupport(t *testing.T) {
	p := &scripted{replies: []*CompletionResponse{say(`{"decision":"HOLD"}`)}}
	client := New(p)
	client.RegisterTool(FuncTool("noop", "noop", func(args scoreArgs) {}))

	if _, err := client.Complete(context.Background(), "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.last().Tools) != 0 {
		t.Fatalf("expected no tools to be forwarded")
	}
}

func TestCompleteMaxIterations(t *testing.T) {
	p := &scripted{
		replies: []*CompletionResponse{
			callTool("score", `{"symbol":"BTC","score":1}`),
			callTool("score", `{"symbol":"BTC","score":2}`),
		},
		tools: true,
	}
	client := New(p)
	client.RegisterTool(FuncTool("score", "Score", func(args scoreArgs) int { return args.Score }))

	_, err := client.Complete(context.Background(), "Test", WithMaxIterations(2))
	if !errors.Is(err, ErrMaxIterations) {
		t.Fatalf("expected ErrMaxIterations, got %v", err)
	}
	if len(p.requests) != 2 {
		t.Fatalf("expected 2 round trips, got %d", len(p.requests))
	}
}

func TestCompleteReportsToolFailures(t *testing.T) {
	p := &scripted{
		replies: []*CompletionResponse{
			callTool("unknown", `{}`),
			callTool("score", `not json`),
			say("handled"),
		},
		tools: true,
	}
	client := New(p)
	client.RegisterTool(FuncTool("score", "Score", func(args scoreArgs) int { return args.Score }))

	resp, err := client.Complete(context.Background(), "Test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Message.Content != "handled" {
		t.Fatalf("expected handled, got %s", resp.Message.Content)
	}
	for _, m := range p.last().Messages {
		if m.Role != RoleTool {
			continue
		}
		var body map[string]string
		if err := json.Unmarshal([]byte(m.Content), &body); err != nil || body["error"] == "" {
			t.Fatalf("expected error payload, got %q", m.Content)
		}
	}
}

func TestRegisteredToolShadowedPerCall(t *testing.T) {
	p := &scripted{replies: []*CompletionResponse{callTool("score", `{"score":3}`), say("done")}, tools: true}
	client := New(p)

	registered := 0
	client.RegisterTool(FuncTool("score", "Score", func(args scoreArgs) { registered++ }))
	scoped := 0
	if _, err := client.Complete(context.Background(), "x", WithTools(FuncTool("score", "Score", func(args scoreArgs) { scoped++ }))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if registered != 0 || scoped != 1 {
		t.Fatalf("expected call-scoped tool to win, got registered=%d scoped=%d", registered, scoped)
	}
	if len(p.last().Tools) != 1 {
		t.Fatalf("expected one tool offered, got %d", len(p.last().Tools))
	}
}

func TestCompleteStopsOnCancelledContext(t *testing.T) {
	p := &scripted{tools: true}
	client := New(p)
	client.RegisterTool(FuncTool("noop", "noop", func(args scoreArgs) {}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Complete(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(p.requests) != 0 {
		t.Fatalf("expected no provider call after cancel")
	}
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Decision   string  `json:"decision"`
		Confidence float64 `json:"confidence"`
	}

	for _, content := range []string{
		`{"decision":"BUY","confidence":0.9}`,
		"Here you go:\n```json\n{\"decision\":\"BUY\",\"confidence\":0.9}\n```",
		`Sure. {"decision":"BUY","confidence":0.9} Let me know {if} you need more.`,
	} {
		out.Decision, out.Confidence = "", 0
		if err := DecodeJSON(content, &out); err != nil {
			t.Fatalf("decode %q: %v", content, err)
		}
		if out.Decision != "BUY" || out.Confidence != 0.9 {
			t.Fatalf("unexpected decode result for %q: %+v", content, out)
		}
	}

	if err := DecodeJSON("no json here", &out); !errors.Is(err, ErrNoJSON) {
		t.Fatalf("expected ErrNoJSON, got %v", err)
	}
}
