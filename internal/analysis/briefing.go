package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradedesk/internal/llm"
	"tradedesk/internal/llm/prompts"
)

const briefingDateLayout = "2006-01-02"

var ErrEmptyBriefing = errors.New("briefing has no summary")

type Briefing struct {
	Date           string   `json:"date"`
	Summary        string   `json:"summary"`
	TotalPnL       float64  `json:"total_pnl"`
	MajorWins      []string `json:"major_wins"`
	Lessons        []string `json:"lessons"`
	StrategyUpdate string   `json:"strategy_update"`
	Fallback       bool     `json:"fallback,omitempty"`
}

type BriefingTrade struct {
	Side      string
	Symbol    string
	Size      float64
	Price     float64
	Rationale string
	Forced    bool
}

// BriefingRequest carries the most recent trades, newest first, and the
// session P&L.
type BriefingRequest struct {
	Date   time.Time
	PnL    float64
	Trades []BriefingTrade
}

type Briefer interface {
	Brief(ctx context.Context, req BriefingRequest) (Briefing, error)
}

// FallbackBriefing is substituted when a briefer fails.
func FallbackBriefing(date time.Time, pnl float64) Briefing {
	return Briefing{
		Date:           date.Format(briefingDateLayout),
		Summary:        "End of day processing for digital assets and energy encountered a delay.",
		TotalPnL:       pnl,
		MajorWins:      []string{"Session ledger reconciled"},
		Lessons:        []string{"Hybrid markets require fast analysis"},
		StrategyUpdate: "Monitor NATGAS storage data alongside BTC exchange inflows.",
		Fallback:       true,
	}
}

type LLMBriefer struct {
	client       *llm.Client
	prompt       string
	timeout      time.Duration
	profitTarget float64
}

func NewLLMBriefer(client *llm.Client, promptPath string, timeout time.Duration, profitTarget float64) *LLMBriefer {
	return &LLMBriefer{
		client:       client,
		prompt:       prompts.LoadTemplate(promptPath, prompts.DefaultBriefingPrompt()),
		timeout:      timeout,
		profitTarget: profitTarget,
	}
}

func (b *LLMBriefer) Brief(ctx context.Context, req BriefingRequest) (Briefing, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	data := prompts.BriefingData{
		Date:         req.Date.Format(briefingDateLayout),
		PnL:          req.PnL,
		ProfitTarget: b.profitTarget,
	}
	for _, t := range req.Trades {
		data.Trades = append(data.Trades, prompts.BriefingTrade{Side: t.Side, Symbol: t.Symbol, Size: t.Size, Price: t.Price})
	}
	prompt, err := prompts.RenderBriefingPrompt(b.prompt, data)
	if err != nil {
		return Briefing{}, err
	}

	resp, err := b.client.Complete(ctx, prompt)
	if err != nil {
		return Briefing{}, fmt.Errorf("briefing completion: %w", err)
	}

	var out Briefing
	if err := llm.DecodeJSON(resp.Message.Content, &out); err != nil {
		return Briefing{}, err
	}
	if strings.TrimSpace(out.Summary) == "" {
		return Briefing{}, ErrEmptyBriefing
	}
	out.Date = data.Date
	// P&L always comes from the ledger.
	out.TotalPnL = req.PnL
	return out, nil
}

// LocalBriefer summarises the session from the trade list alone.
type LocalBriefer struct {
	ProfitTarget float64
}

func (b LocalBriefer) Brief(ctx context.Context, req BriefingRequest) (Briefing, error) {
	if err := ctx.Err(); err != nil {
		return Briefing{}, err
	}

	buys, sells, exits := 0, 0, 0
	symbols := map[string]int{}
	var wins []string
	for _, t := range req.Trades {
		symbols[t.Symbol]++
		switch t.Side {
		case string(Buy):
			buys++
		case string(Sell):
			sells++
			if t.Forced {
				exits++
				wins = append(wins, fmt.Sprintf("%s closed at profit target @ %.4f", t.Symbol, t.Price))
			}
		}
	}
	if len(wins) == 0 {
		wins = []string{"No profit-target exits this session"}
	}

	busiest, busiestCount := "", 0
	for symbol, n := range symbols {
		if n > busiestCount || (n == busiestCount && symbol < busiest) {
			busiest, busiestCount = symbol, n
		}
	}

	direction := "flat"
	switch {
	case req.PnL > 0:
		direction = "up"
	case req.PnL < 0:
		direction = "down"
	}

	lessons := []string{fmt.Sprintf("%d buys and %d sells across %d instruments", buys, sells, len(symbols))}
	if exits > 0 {
		lessons = append(lessons, fmt.Sprintf("%d positions reached the %.2f profit target", exits, b.ProfitTarget))
	}

	return Briefing{
		Date:           req.Date.Format(briefingDateLayout),
		Summary:        fmt.Sprintf("Session %s %.2f over the last %d operations.", direction, req.PnL, len(req.Trades)),
		TotalPnL:       req.PnL,
		MajorWins:      wins,
		Lessons:        lessons,
		StrategyUpdate: fmt.Sprintf("Most active instrument: %s.", busiest),
	}, nil
}
