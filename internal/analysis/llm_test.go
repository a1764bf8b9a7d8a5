package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"tradedesk/internal/llm"
)

type fakeProvider struct {
	responses []*llm.CompletionResponse
	err       error
	prompts   []string
}

func (f *fakeProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	for _, m := range req.Messages {
		if m.Role == llm.RoleUser {
			f.prompts = append(f.prompts, m.Content)
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return &llm.CompletionResponse{
			Message: llm.Message{Role: llm.RoleAssistant, Content: "done"},
		}, nil
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func (f *fakeProvider) SupportsTools() bool {
	return true
}

func submitCall(args string) *llm.CompletionResponse {
	return &llm.CompletionResponse{
		Message: llm.Message{
			Role: llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{
				{
					ID: "call-1",
					Function: llm.ToolCallFunction{
						Name:      "submit_analysis",
						Arguments: json.RawMessage(args),
					},
				},
			},
		},
	}
}

func TestLLMAnalyze_ToolSubmission(t *testing.T) {
	provider := &fakeProvider{
		responses: []*llm.CompletionResponse{
			submitCall(`{"decision":"BUY","confidence":0.91,"rationale":"storage draw","rsi":28,"trend":"BULLISH","target_price":2.4,"sources":[{"title":"EIA","uri":"https://eia.gov/x"}]}`),
		},
	}
	analyzer := NewLLM(llm.New(provider), LLMConfig{Timeout: time.Second, ProfitTarget: 250})

	r := analyzer.Analyze(context.Background(), Request{
		Symbol: "NATGAS", Prices: []float64{2.1, 2.15}, Cash: 5000, Sentiment: Bullish,
	})

	if r.Decision != Buy || r.Confidence != 0.91 || r.Fallback {
		t.Fatalf("unexpected result: %+v", r)
	}
	if r.Indicators.RSI != 28 || r.Indicators.Trend != Bullish || r.Indicators.Sentiment != "BULLISH" {
		t.Fatalf("unexpected indicators: %+v", r.Indicators)
	}
	if len(r.Sources) != 1 || r.Sources[0].URI != "https://eia.gov/x" {
		t.Fatalf("expected source citation, got %+v", r.Sources)
	}
	if len(provider.prompts) == 0 || !strings.Contains(provider.prompts[0], "Instrument: NATGAS") {
		t.Fatalf("expected rendered prompt to name the instrument")
	}
}

func TestLLMAnalyze_JSONContentFallback(t *testing.T) {
	provider := &fakeProvider{
		responses: []*llm.CompletionResponse{
			{Message: llm.Message{Role: llm.RoleAssistant, Content: "```json\n{\"decision\":\"sell\",\"confidence\":0.9,\"rationale\":\"overbought\",\"rsi\":75,\"trend\":\"BEARISH\"}\n```"}},
		},
	}
	analyzer := NewLLM(llm.New(provider), LLMConfig{})

	r := analyzer.Analyze(context.Background(), Request{Symbol: "ETH", Prices: []float64{1, 2}, Held: 1})
	if r.Decision != Sell || r.Rationale != "overbought" {
		t.Fatalf("unexpected result: %+v", r)
	}
}

func TestLLMAnalyze_RetriesAfterRefusedSubmission(t *testing.T) {
	provider := &fakeProvider{
		responses: []*llm.CompletionResponse{
			submitCall(`{"decision":"STRONG BUY","confidence":0.99,"rationale":"moon","rsi":10,"trend":"BULLISH"}`),
			submitCall(`{"decision":"buy","confidence":0.88,"rationale":"retest held","rsi":35,"trend":"bullish"}`),
		},
	}
	analyzer := NewLLM(llm.New(provider), LLMConfig{})

	r := analyzer.Analyze(context.Background(), Request{Symbol: "SOL", Prices: []float64{140, 145}})
	if r.Decision != Buy || r.Confidence != 0.88 || r.Rationale != "retest held" {
		t.Fatalf("expected the corrected submission, got %+v", r)
	}
}

func TestLLMAnalyze_ProviderErrorFailsClosed(t *testing.T) {
	provider := &fakeProvider{err: errors.New("connection refused")}
	analyzer := NewLLM(llm.New(provider), LLMConfig{})

	r := analyzer.Analyze(context.Background(), Request{Symbol: "BTC"})
	if !r.Fallback || r.Decision != Hold || r.Confidence != 0 {
		t.Fatalf("expected fail-closed HOLD, got %+v", r)
	}
	if !strings.Contains(r.Rationale, "connection refused") {
		t.Fatalf("expected cause in rationale, got %q", r.Rationale)
	}
}

func TestLLMAnalyze_InvalidResponseFailsClosed(t *testing.T) {
	provider := &fakeProvider{
		responses: []*llm.CompletionResponse{
			{Message: llm.Message{Role: llm.RoleAssistant, Content: "I think it will go up"}},
		},
	}
	analyzer := NewLLM(llm.New(provider), LLMConfig{})

	r := analyzer.Analyze(context.Background(), Request{Symbol: "LINK"})
	if !r.Fallback {
		t.Fatalf("expected fallback, got %+v", r)
	}
}

func TestLLMAnalyze_TimeoutFailsClosed(t *testing.T) {
	analyzer := NewLLM(llm.New(blockingProvider{}), LLMConfig{Timeout: 20 * time.Millisecond})

	r := analyzer.Analyze(context.Background(), Request{Symbol: "SOL"})
	if !r.Fallback || !strings.Contains(r.Rationale, "timed out") {
		t.Fatalf("expected timeout fallback, got %+v", r)
	}
}

type blockingProvider struct{}

func (blockingProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingProvider) SupportsTools() bool { return true }
