// Package surveillance runs one analysis pass over every tracked instrument
// and routes accepted signals to the execution engine.
package surveillance

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"tradedesk/internal/analysis"
	"tradedesk/internal/engine"
	"tradedesk/internal/journal"
	"tradedesk/internal/market"
	"tradedesk/internal/portfolio"
	"tradedesk/internal/risk"
)

type Config struct {
	Lookback         int
	SourceCap        int
	IntelligenceStep float64
	IntelligenceCap  float64
	LotSizes         market.LotSizes
}

type PriceHistory interface {
	Instruments() []market.Instrument
	History(symbol string) []float64
	Latest(symbol string) (float64, bool)
}

type Positions interface {
	Cash() float64
	Position(symbol string) (portfolio.Position, bool)
}

type Executor interface {
	Execute(ctx context.Context, req engine.Request) (engine.TradeRecord, error)
}

// Cycle is the session context threaded through consecutive sweeps. Sweep
// takes the previous cycle and returns the next one.
type Cycle struct {
	Sentiment    analysis.Trend
	Intelligence float64
	Sources      []analysis.Source
	Thought      string

	// Per-sweep results, reset on every call.
	StartedAt   time.Time
	StartCash   float64
	WorkingCash float64
	Outcomes    []Outcome
}

type Outcome struct {
	Symbol   string
	Skipped  bool
	Result   analysis.Result
	Rejected error
	Trade    *engine.TradeRecord
}

type Sweeper struct {
	cfg       Config
	prices    PriceHistory
	positions Positions
	provider  analysis.Provider
	gate      risk.Gate
	executor  Executor
	journal   journal.Journal
	now       func() time.Time
}

func New(cfg Config, prices PriceHistory, positions Positions, provider analysis.Provider, gate risk.Gate, executor Executor, j journal.Journal, now func() time.Time) *Sweeper {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 5
	}
	if cfg.SourceCap <= 0 {
		cfg.SourceCap = 10
	}
	if cfg.IntelligenceCap <= 0 {
		cfg.IntelligenceCap = 100
	}
	if j == nil {
		j = journal.Noop{}
	}
	if now == nil {
		now = time.Now
	}
	return &Sweeper{
		cfg:       cfg,
		prices:    prices,
		positions: positions,
		provider:  provider,
		gate:      gate,
		executor:  executor,
		journal:   j,
		now:       now,
	}
}

// Sweep evaluates every instrument in configuration order. One instrument's
// failure never aborts the sweep; a cancelled ctx stops it between
// instruments.
func (s *Sweeper) Sweep(ctx context.Context, prev Cycle) Cycle {
	next := Cycle{
		Sentiment:    prev.Sentiment,
		Intelligence: prev.Intelligence,
		Sources:      append([]analysis.Source(nil), prev.Sources...),
		Thought:      prev.Thought,
		StartedAt:    s.now(),
	}
	working := s.positions.Cash()
	next.StartCash = working

	for _, inst := range s.prices.Instruments() {
		if ctx.Err() != nil {
			slog.Info("surveillance sweep interrupted", "symbol", inst.Symbol)
			break
		}
		outcome := s.evaluate(ctx, inst, working, next.Sentiment)
		if outcome.Trade != nil {
			switch outcome.Trade.Side {
			case portfolio.Buy:
				working -= outcome.Trade.Notional()
			case portfolio.Sell:
				working += outcome.Trade.Notional()
			}
			next.Thought = outcome.Trade.Rationale
		}
		next.Sources = MergeSources(next.Sources, outcome.Result.Sources, s.cfg.SourceCap)
		next.Outcomes = append(next.Outcomes, outcome)
	}

	next.WorkingCash = working
	next.Intelligence = math.Min(s.cfg.IntelligenceCap, next.Intelligence+s.cfg.IntelligenceStep)
	return next
}

func (s *Sweeper) evaluate(ctx context.Context, inst market.Instrument, working float64, sentiment analysis.Trend) Outcome {
	outcome := Outcome{Symbol: inst.Symbol}

	history := s.prices.History(inst.Symbol)
	if len(history) < s.cfg.Lookback {
		outcome.Skipped = true
		return outcome
	}

	pos, _ := s.positions.Position(inst.Symbol)
	result := analysis.Safe(ctx, s.provider, analysis.Request{
		Symbol:    inst.Symbol,
		Prices:    history,
		Cash:      working,
		Held:      pos.Quantity,
		Sentiment: sentiment,
	})
	outcome.Result = result
	if result.Fallback {
		slog.Warn("analysis fell back to hold", "symbol", inst.Symbol, "rationale", result.Rationale)
	}

	price, _ := s.prices.Latest(inst.Symbol)
	// Re-read: an exit may have closed the position while the provider ran.
	pos, _ = s.positions.Position(inst.Symbol)
	entry := journal.DecisionEntry{
		Timestamp:  s.now().UTC(),
		Symbol:     inst.Symbol,
		Decision:   string(result.Decision),
		Confidence: result.Confidence,
		Price:      price,
		Rationale:  result.Rationale,
		Fallback:   result.Fallback,
	}

	approval, err := s.gate.Evaluate(result, risk.Context{
		Symbol:      inst.Symbol,
		Price:       price,
		WorkingCash: working,
		HeldQty:     pos.Quantity,
		DefaultSize: s.cfg.LotSizes.For(inst.Class),
	})
	if err != nil {
		outcome.Rejected = err
		entry.Outcome = journal.Rejected
		if errors.Is(err, risk.ErrHold) {
			entry.Outcome = journal.Held
		} else {
			entry.RejectReason = err.Error()
		}
		s.record(entry)
		return outcome
	}

	record, err := s.executor.Execute(ctx, engine.Request{
		Symbol:    inst.Symbol,
		Side:      approval.Side,
		Size:      approval.Size,
		Rationale: result.Rationale,
	})
	if err != nil {
		slog.Warn("execution failed", "symbol", inst.Symbol, "side", approval.Side, "error", err)
		outcome.Rejected = err
		entry.Outcome = journal.Failed
		entry.RejectReason = err.Error()
		s.record(entry)
		return outcome
	}

	outcome.Trade = &record
	entry.Outcome = journal.Executed
	entry.TradeID = record.ID
	s.record(entry)
	return outcome
}

func (s *Sweeper) record(entry journal.DecisionEntry) {
	if err := s.journal.RecordDecision(entry); err != nil {
		slog.Warn("journal decision failed", "symbol", entry.Symbol, "error", err)
	}
}

// MergeSources puts incoming citations ahead of existing ones, drops
// duplicate URIs keeping the newest, and caps the list.
func MergeSources(existing, incoming []analysis.Source, limit int) []analysis.Source {
	merged := make([]analysis.Source, 0, len(existing)+len(incoming))
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, list := range [][]analysis.Source{incoming, existing} {
		for _, src := range list {
			if src.URI == "" {
				continue
			}
			if _, ok := seen[src.URI]; ok {
				continue
			}
			seen[src.URI] = struct{}{}
			merged = append(merged, src)
			if limit > 0 && len(merged) == limit {
				return merged
			}
		}
	}
	return merged
}
