package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"tradedesk/internal/llm"
	"tradedesk/internal/llm/prompts"
)

type LLMConfig struct {
	SystemPromptPath   string
	AnalysisPromptPath string
	Context            string
	Timeout            time.Duration
	ProfitTarget       float64
	Temperature        float64
}

// LLM asks a chat model for a signal through the submit_analysis tool and
// falls back to parsing a JSON reply when the model answers in plain text.
type LLM struct {
	client         *llm.Client
	systemPrompt   string
	analysisPrompt string
	cfg            LLMConfig
}

type llmAnalysis struct {
	Decision    string  `json:"decision" enum:"BUY|SELL|HOLD" desc:"Trade decision"`
	Confidence  float64 `json:"confidence" desc:"Confidence between 0 and 1"`
	Rationale   string  `json:"rationale" desc:"One or two sentence justification"`
	RSI         float64 `json:"rsi" desc:"Relative strength index 0-100"`
	Trend       string  `json:"trend" enum:"BULLISH|BEARISH|NEUTRAL"`
	Sentiment   string  `json:"sentiment,omitempty"`
	TargetPrice float64 `json:"target_price,omitempty"`
	Sources     []struct {
		Title string `json:"title"`
		URI   string `json:"uri"`
	} `json:"sources,omitempty"`
}

func NewLLM(client *llm.Client, cfg LLMConfig) *LLM {
	systemPrompt := prompts.LoadTemplate(cfg.SystemPromptPath, prompts.DefaultSystemPrompt())
	return &LLM{
		client:         client,
		systemPrompt:   strings.TrimSpace(systemPrompt),
		analysisPrompt: prompts.LoadTemplate(cfg.AnalysisPromptPath, prompts.DefaultAnalysisPrompt()),
		cfg:            cfg,
	}
}

func (p *LLM) Analyze(ctx context.Context, req Request) Result {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	prompt, err := prompts.RenderAnalysisPrompt(p.analysisPrompt, prompts.AnalysisData{
		Context:      p.cfg.Context,
		Symbol:       req.Symbol,
		Prices:       prompts.FormatPrices(req.Prices),
		Cash:         req.Cash,
		Held:         req.Held,
		Sentiment:    string(req.Sentiment),
		ProfitTarget: p.cfg.ProfitTarget,
	})
	if err != nil {
		return FailClosed("prompt error")
	}

	var (
		mu        sync.Mutex
		submitted *llmAnalysis
	)
	tool := llm.FuncTool("submit_analysis", "Submit the trading analysis for the instrument", func(args llmAnalysis) map[string]any {
		mu.Lock()
		defer mu.Unlock()
		submitted = &args
		return map[string]any{"status": "recorded"}
	})

	opts := []llm.CompletionOption{
		llm.WithSystemPrompt(p.systemPrompt),
		llm.WithTools(tool),
		llm.WithMaxIterations(4),
	}
	if p.cfg.Temperature > 0 {
		opts = append(opts, llm.WithTemperature(p.cfg.Temperature))
	}

	resp, err := p.client.Complete(ctx, prompt, opts...)
	if err != nil {
		slog.Warn("analysis provider failed", "symbol", req.Symbol, "error", err)
		return FailClosed(fmt.Sprintf("intelligence gathering failed (%s)", summarize(err)))
	}

	mu.Lock()
	answer := submitted
	mu.Unlock()
	if answer == nil {
		var parsed llmAnalysis
		if err := llm.DecodeJSON(resp.Message.Content, &parsed); err != nil {
			slog.Warn("analysis provider returned no usable answer", "symbol", req.Symbol, "error", err)
			return FailClosed("invalid model response")
		}
		answer = &parsed
	}
	if strings.TrimSpace(answer.Decision) == "" {
		return FailClosed("model response missing decision")
	}

	return Normalize(answer.result(req.Sentiment))
}

func (a llmAnalysis) result(sentiment Trend) Result {
	r := Result{
		Decision:   ParseDecision(a.Decision),
		Confidence: a.Confidence,
		Rationale:  strings.TrimSpace(a.Rationale),
		Indicators: Indicators{
			RSI:       a.RSI,
			Trend:     Trend(a.Trend),
			Sentiment: a.Sentiment,
		},
		TargetPrice: a.TargetPrice,
	}
	if r.Indicators.Sentiment == "" {
		r.Indicators.Sentiment = string(sentiment)
	}
	if r.Rationale == "" {
		r.Rationale = "model decision"
	}
	for _, s := range a.Sources {
		if s.URI != "" {
			r.Sources = append(r.Sources, Source{Title: s.Title, URI: s.URI})
		}
	}
	return r
}

func summarize(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), context.DeadlineExceeded.Error()) {
		return "timed out"
	}
	msg := err.Error()
	if len(msg) > 80 {
		msg = msg[:80]
	}
	return msg
}
