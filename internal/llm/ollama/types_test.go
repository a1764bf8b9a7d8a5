package ollama

import (
	"encoding/json"
	"testing"

	"tradedesk/internal/llm"
)

func TestToMessagesMapsToolNames(t *testing.T) {
	msgs := toMessages(llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleTool, Content: "ok", Name: "submit_analysis"},
			{Role: llm.RoleUser, Content: "hi", Name: "desk"},
		},
	})

	data, err := json.Marshal(msgs[0])
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if payload["tool_name"] != "submit_analysis" {
		t.Fatalf("expected tool_name, got %v", payload["tool_name"])
	}
	if _, ok := payload["name"]; ok {
		t.Fatalf("did not expect name on tool message")
	}
	if msgs[1].Name != "desk" || msgs[1].ToolName != "" {
		t.Fatalf("expected name on user message, got %+v", msgs[1])
	}
}

func TestNormalizeArguments(t *testing.T) {
	obj := json.RawMessage(`{"decision":"SELL"}`)
	if got := normalizeArguments(obj); string(got) != string(obj) {
		t.Fatalf("expected object passthrough, got %s", got)
	}
	str := json.RawMessage(`"{\"decision\":\"SELL\"}"`)
	if got := normalizeArguments(str); string(got) != `{"decision":"SELL"}` {
		t.Fatalf("expected unwrapped string, got %s", got)
	}
}
