package ollama_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"tradedesk/internal/llm"
	"tradedesk/internal/llm/ollama"
)

func TestOllamaIntegration_SubmitAnalysis(t *testing.T) {
	model := os.Getenv("OLLAMA_MODEL")
	if model == "" {
		t.Skip("set OLLAMA_MODEL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	provider := ollama.New(os.Getenv("OLLAMA_BASE_URL"), model, 60*time.Second)

	type analysisArgs struct {
		Decision   string  `json:"decision" enum:"BUY|SELL|HOLD"`
		Confidence float64 `json:"confidence" desc:"0 to 1"`
		Rationale  string  `json:"rationale"`
	}

	var submitted *analysisArgs
	tool := llm.FuncTool("submit_analysis", "Submit the trading analysis", func(args analysisArgs) map[string]any {
		submitted = &args
		return map[string]any{"status": "recorded"}
	})

	client := llm.New(provider)
	_, err := client.Complete(ctx,
		"BTC closes over the last five ticks: 100, 101, 102, 103, 104. Call submit_analysis with your decision.",
		llm.WithSystemPrompt("You are a trading desk analyst. Always answer by calling the submit_analysis tool."),
		llm.WithTools(tool),
		llm.WithMaxIterations(4),
	)
	if err != nil {
		t.Fatalf("client complete failed: %v", err)
	}
	if submitted == nil {
		t.Skip("model did not call submit_analysis; try another model")
	}

	switch strings.ToUpper(submitted.Decision) {
	case "BUY", "SELL", "HOLD":
	default:
		t.Fatalf("unexpected decision %q", submitted.Decision)
	}
}
