package surveillance

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"tradedesk/internal/analysis"
	"tradedesk/internal/engine"
	"tradedesk/internal/market"
	"tradedesk/internal/portfolio"
	"tradedesk/internal/risk"
)

type flatRand struct{}

func (flatRand) Float64() float64 { return 0.5 }

type scriptedProvider struct {
	results map[string]analysis.Result
	panics  map[string]bool
	calls   []analysis.Request
}

func (p *scriptedProvider) Analyze(ctx context.Context, req analysis.Request) analysis.Result {
	p.calls = append(p.calls, req)
	if p.panics[req.Symbol] {
		panic("provider exploded")
	}
	if r, ok := p.results[req.Symbol]; ok {
		return r
	}
	return analysis.Result{Decision: analysis.Hold, Confidence: 0.5}
}

type fixture struct {
	board    *market.Board
	ledger   *portfolio.Ledger
	engine   *engine.Engine
	provider *scriptedProvider
	sweeper  *Sweeper
}

func newFixture(t *testing.T, cash float64, ticks int) *fixture {
	t.Helper()
	instruments := []market.Instrument{
		{Symbol: "AAA", Class: market.ClassCrypto, InitialPrice: 100, Volatility: 0.05},
		{Symbol: "BBB", Class: market.ClassCrypto, InitialPrice: 100, Volatility: 0.05},
		{Symbol: "CCC", Class: market.ClassCrypto, InitialPrice: 100, Volatility: 0.05},
	}
	start := time.Unix(1700000000, 0)
	board := market.NewBoard(instruments, 50, start)
	syn := market.NewSynthesizer(flatRand{}, market.SynthConfig{})
	for i := 1; i <= ticks; i++ {
		board.Tick(syn, 50, start.Add(time.Duration(i)*time.Second))
	}

	lots := market.LotSizes{Crypto: 1, Commodity: 100}
	ledger := portfolio.NewLedger(cash, instruments)
	eng := engine.New(engine.Config{RunID: "test", LotSizes: lots}, board, ledger, nil, nil)
	provider := &scriptedProvider{results: map[string]analysis.Result{}, panics: map[string]bool{}}
	sweeper := New(Config{
		Lookback:         5,
		SourceCap:        3,
		IntelligenceStep: 0.02,
		IntelligenceCap:  100,
		LotSizes:         lots,
	}, board, ledger, provider, risk.Gate{Threshold: 0.82}, eng, nil, nil)

	return &fixture{board: board, ledger: ledger, engine: eng, provider: provider, sweeper: sweeper}
}

func buy(confidence float64) analysis.Result {
	return analysis.Result{Decision: analysis.Buy, Confidence: confidence, Rationale: "breakout"}
}

func TestSweepThreadsWorkingCash(t *testing.T) {
	f := newFixture(t, 250, 4)
	for _, s := range []string{"AAA", "BBB", "CCC"} {
		f.provider.results[s] = buy(0.9)
	}

	cycle := f.sweeper.Sweep(context.Background(), Cycle{Sentiment: analysis.Neutral, Intelligence: 95.2})

	if f.engine.TradeCount() != 2 {
		t.Fatalf("expected 2 fills, got %d", f.engine.TradeCount())
	}
	if !errors.Is(cycle.Outcomes[2].Rejected, risk.ErrInsufficientCash) {
		t.Fatalf("expected third buy to be refused for cash, got %v", cycle.Outcomes[2].Rejected)
	}
	if cycle.StartCash != 250 || cycle.WorkingCash != 50 {
		t.Fatalf("expected working cash 250 -> 50, got %v -> %v", cycle.StartCash, cycle.WorkingCash)
	}
	if f.ledger.Cash() < 0 {
		t.Fatalf("expected no overdraw, cash %v", f.ledger.Cash())
	}
	// The provider sees the cash left after earlier fills.
	if f.provider.calls[1].Cash != 150 || f.provider.calls[2].Cash != 50 {
		t.Fatalf("unexpected provider cash inputs: %v %v", f.provider.calls[1].Cash, f.provider.calls[2].Cash)
	}
	if cycle.Thought != "breakout" {
		t.Fatalf("expected thought from last fill, got %q", cycle.Thought)
	}
}

func TestSweepSkipsShortHistory(t *testing.T) {
	f := newFixture(t, 1000, 3)
	f.provider.results["AAA"] = buy(0.99)

	cycle := f.sweeper.Sweep(context.Background(), Cycle{Intelligence: 95.2})
	if len(f.provider.calls) != 0 {
		t.Fatalf("expected no provider calls with 4 points of history")
	}
	for _, o := range cycle.Outcomes {
		if !o.Skipped {
			t.Fatalf("expected %s skipped", o.Symbol)
		}
	}
	if math.Abs(cycle.Intelligence-95.22) > 1e-9 {
		t.Fatalf("expected intelligence to rise even on a skipped sweep, got %v", cycle.Intelligence)
	}
}

func TestSweepContinuesAfterProviderPanic(t *testing.T) {
	f := newFixture(t, 1000, 4)
	f.provider.panics["AAA"] = true
	f.provider.results["BBB"] = buy(0.95)

	cycle := f.sweeper.Sweep(context.Background(), Cycle{})
	if !cycle.Outcomes[0].Result.Fallback {
		t.Fatalf("expected fallback for the panicking instrument")
	}
	if cycle.Outcomes[1].Trade == nil {
		t.Fatalf("expected BBB to trade after AAA failed")
	}
}

func TestSweepLowConfidenceIsNoop(t *testing.T) {
	f := newFixture(t, 1000, 4)
	f.provider.results["AAA"] = buy(0.82)

	cycle := f.sweeper.Sweep(context.Background(), Cycle{})
	if f.engine.TradeCount() != 0 {
		t.Fatalf("expected no trades at threshold")
	}
	if !errors.Is(cycle.Outcomes[0].Rejected, risk.ErrLowConfidence) {
		t.Fatalf("expected ErrLowConfidence, got %v", cycle.Outcomes[0].Rejected)
	}
}

func TestSweepIntelligenceCapped(t *testing.T) {
	f := newFixture(t, 1000, 4)
	cycle := f.sweeper.Sweep(context.Background(), Cycle{Intelligence: 99.99})
	if cycle.Intelligence != 100 {
		t.Fatalf("expected cap at 100, got %v", cycle.Intelligence)
	}
}

func TestSweepStopsOnCancel(t *testing.T) {
	f := newFixture(t, 1000, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cycle := f.sweeper.Sweep(ctx, Cycle{})
	if len(cycle.Outcomes) != 0 || len(f.provider.calls) != 0 {
		t.Fatalf("expected no evaluations after cancel")
	}
}

func TestSweepMergesSources(t *testing.T) {
	f := newFixture(t, 1000, 4)
	f.provider.results["AAA"] = analysis.Result{Decision: analysis.Hold, Sources: []analysis.Source{{Title: "new", URI: "u1"}, {URI: "u4"}}}

	prev := Cycle{Sources: []analysis.Source{{Title: "old", URI: "u1"}, {URI: "u2"}, {URI: "u3"}}}
	cycle := f.sweeper.Sweep(context.Background(), prev)

	want := []string{"u1", "u4", "u2"}
	if len(cycle.Sources) != len(want) {
		t.Fatalf("expected %d sources, got %+v", len(want), cycle.Sources)
	}
	for i, uri := range want {
		if cycle.Sources[i].URI != uri {
			t.Fatalf("expected %s at %d, got %+v", uri, i, cycle.Sources)
		}
	}
	if cycle.Sources[0].Title != "new" {
		t.Fatalf("expected newest citation to win, got %q", cycle.Sources[0].Title)
	}
	if len(prev.Sources) != 3 || prev.Sources[0].Title != "old" {
		t.Fatalf("expected previous cycle untouched")
	}
}
