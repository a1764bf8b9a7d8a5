// Package desk runs a trading session: price ticks, valuation with profit
// exits, and surveillance sweeps on a shared ledger, plus the operator
// controls around them.
package desk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"tradedesk/internal/analysis"
	"tradedesk/internal/broker"
	"tradedesk/internal/engine"
	"tradedesk/internal/journal"
	"tradedesk/internal/market"
	"tradedesk/internal/portfolio"
	"tradedesk/internal/risk"
	"tradedesk/internal/schedule"
	"tradedesk/internal/state"
	"tradedesk/internal/surveillance"
)

const (
	actionSweeping = "Surveillance global asset sweep..."
	actionActive   = "Surveillance Active"
	actionStandby  = "Standby"
)

var (
	ErrNoTrades       = errors.New("no trades to summarise")
	ErrNoBroker       = errors.New("no broker configured")
	ErrAlreadyStarted = errors.New("desk already started")
)

type Config struct {
	RunID       string
	Instruments []market.Instrument

	HistoryLength int
	StartingCash  float64
	Sentiment     float64

	TickInterval      time.Duration
	ValuationInterval time.Duration
	AnalysisInterval  time.Duration

	Threshold    float64
	ProfitTarget float64
	LotSizes     market.LotSizes
	Synth        market.SynthConfig

	Lookback         int
	SourceCap        int
	IntelligenceStep float64

	ActivityLimit  int
	BriefingTrades int
}

// Deps are the collaborators a desk runs against. Only Provider and Runner
// are required.
type Deps struct {
	Provider analysis.Provider
	Briefer  analysis.Briefer
	Broker   broker.Broker
	Journal  journal.Journal
	Runner   schedule.Runner
	Clock    schedule.Clock
	Rand     market.Rand
	Status   *state.Store
}

type BrokerStatus struct {
	Name        string             `json:"name"`
	Connected   bool               `json:"connected"`
	Environment broker.Environment `json:"environment,omitempty"`
	LastSync    time.Time          `json:"last_sync,omitempty"`
	LastError   string             `json:"last_error,omitempty"`
}

type Desk struct {
	cfg Config

	board   *market.Board
	synth   *market.Synthesizer
	ledger  *portfolio.Ledger
	engine  *engine.Engine
	exit    *engine.ExitMonitor
	sweeper *surveillance.Sweeper

	briefer analysis.Briefer
	broker  broker.Broker
	runner  schedule.Runner
	clock   schedule.Clock
	status  *state.Store
	feed    *Feed

	mu        sync.Mutex
	runCtx    context.Context
	started   bool
	sentiment float64
	cycle     surveillance.Cycle
	briefing  *analysis.Briefing
	brokerSt  BrokerStatus
}

func New(cfg Config, deps Deps) (*Desk, error) {
	if len(cfg.Instruments) == 0 {
		return nil, errors.New("desk needs at least one instrument")
	}
	if deps.Provider == nil {
		return nil, errors.New("desk needs an analysis provider")
	}
	if deps.Runner == nil {
		return nil, errors.New("desk needs a task runner")
	}
	if deps.Clock == nil {
		deps.Clock = schedule.SystemClock{}
	}
	if deps.Rand == nil {
		return nil, errors.New("desk needs a random source")
	}
	if deps.Briefer == nil {
		deps.Briefer = analysis.LocalBriefer{ProfitTarget: cfg.ProfitTarget}
	}
	if deps.Journal == nil {
		deps.Journal = journal.Noop{}
	}
	if deps.Status == nil {
		deps.Status = state.NewStore(state.Status{})
	}
	deps.Status.Update(func(st *state.Status) {
		if st.LastAction == "" {
			st.LastAction = actionStandby
		}
	})
	if cfg.BriefingTrades <= 0 {
		cfg.BriefingTrades = 10
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = risk.DefaultThreshold
	}

	now := deps.Clock.Now
	board := market.NewBoard(cfg.Instruments, cfg.HistoryLength, now())
	ledger := portfolio.NewLedger(cfg.StartingCash, cfg.Instruments)
	eng := engine.New(engine.Config{RunID: cfg.RunID, LotSizes: cfg.LotSizes, Now: now}, board, ledger, deps.Broker, deps.Journal)
	sweeper := surveillance.New(surveillance.Config{
		Lookback:         cfg.Lookback,
		SourceCap:        cfg.SourceCap,
		IntelligenceStep: cfg.IntelligenceStep,
		LotSizes:         cfg.LotSizes,
	}, board, ledger, deps.Provider, risk.Gate{Threshold: cfg.Threshold}, eng, deps.Journal, now)

	status := deps.Status.Snapshot()
	d := &Desk{
		cfg:       cfg,
		board:     board,
		synth:     market.NewSynthesizer(deps.Rand, cfg.Synth),
		ledger:    ledger,
		engine:    eng,
		exit:      engine.NewExitMonitor(eng, ledger, cfg.ProfitTarget),
		sweeper:   sweeper,
		briefer:   deps.Briefer,
		broker:    deps.Broker,
		runner:    deps.Runner,
		clock:     deps.Clock,
		status:    deps.Status,
		feed:      NewFeed(cfg.ActivityLimit),
		sentiment: clampSentiment(cfg.Sentiment),
		cycle: surveillance.Cycle{
			Intelligence: status.Intelligence,
			Sources:      status.Sources,
			Thought:      status.CurrentThought,
		},
	}
	if deps.Broker != nil {
		d.brokerSt.Name = deps.Broker.Name()
	}
	eng.OnTrade(d.onTrade)
	return d, nil
}

// Run starts the periodic activities and blocks until ctx is done.
func (d *Desk) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	d.Stop()
	return nil
}

// Start registers the tick, valuation and sweep tasks and starts the
// runner. Task bodies use ctx for external calls.
func (d *Desk) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return ErrAlreadyStarted
	}
	d.started = true
	d.runCtx = ctx
	d.mu.Unlock()

	tasks := []struct {
		name  string
		every time.Duration
		fn    func()
	}{
		{"tick", d.cfg.TickInterval, d.tick},
		{"valuation", d.cfg.ValuationInterval, d.valuate},
		{"sweep", d.cfg.AnalysisInterval, d.sweep},
	}
	for _, task := range tasks {
		name, fn := task.name, task.fn
		if err := d.runner.Every(name, task.every, func() { d.guard(name, fn) }); err != nil {
			return fmt.Errorf("register %s task: %w", name, err)
		}
	}
	d.runner.Start()
	slog.Info("desk started",
		"run_id", d.cfg.RunID,
		"instruments", len(d.cfg.Instruments),
		"tick", d.cfg.TickInterval,
		"valuation", d.cfg.ValuationInterval,
		"analysis", d.cfg.AnalysisInterval,
	)
	return nil
}

func (d *Desk) Stop() {
	d.runner.Stop()
	d.status.SetMonitoring(false)
	slog.Info("desk stopped", "trades", d.engine.TradeCount(), "equity", d.ledger.Equity())
}

func (d *Desk) guard(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("task panicked", "task", name, "panic", r)
			d.log(LevelError, fmt.Sprintf("%s task failed: %v", name, r))
		}
	}()
	fn()
}

func (d *Desk) runContext() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.runCtx == nil {
		return context.Background()
	}
	return d.runCtx
}

func (d *Desk) tick() {
	d.board.Tick(d.synth, d.Sentiment(), d.clock.Now())
}

func (d *Desk) valuate() {
	d.ledger.MarkToMarket(d.board.Prices())
	if !d.status.Monitoring() {
		return
	}
	for _, record := range d.exit.Check(d.runContext()) {
		d.log(LevelInfo, fmt.Sprintf("PROFIT TARGET HIT: closed %s at %.4f", record.Symbol, record.Price))
	}
}

func (d *Desk) sweep() {
	if !d.status.Monitoring() {
		return
	}
	ctx := d.runContext()
	if ctx.Err() != nil {
		return
	}
	d.status.SetLastAction(actionSweeping)

	d.mu.Lock()
	prev := d.cycle
	d.mu.Unlock()
	prev.Sentiment = analysis.SentimentLabel(d.Sentiment())

	next := d.sweeper.Sweep(ctx, prev)

	d.mu.Lock()
	d.cycle = next
	d.mu.Unlock()

	var failure error
	for _, o := range next.Outcomes {
		switch {
		case o.Result.Fallback:
			d.log(LevelWarn, fmt.Sprintf("%s analysis unavailable: %s", o.Symbol, o.Result.Rationale))
		case errors.Is(o.Rejected, engine.ErrBrokerRejected):
			d.log(LevelError, fmt.Sprintf("Execution failure on %s: %v", o.Symbol, o.Rejected))
			failure = fmt.Errorf("%s: %w", o.Symbol, o.Rejected)
		}
	}
	d.status.SetError(failure)

	d.status.Update(func(st *state.Status) {
		st.Intelligence = next.Intelligence
		st.Sources = next.Sources
		st.CurrentThought = next.Thought
		st.LastSweep = next.StartedAt
		if st.Monitoring {
			st.LastAction = actionActive
		} else {
			st.LastAction = actionStandby
		}
	})
	slog.Debug("sweep complete", "evaluated", len(next.Outcomes), "working_cash", next.WorkingCash, "intelligence", next.Intelligence)
}

func (d *Desk) onTrade(t engine.TradeRecord) {
	d.log(LevelTrade, fmt.Sprintf("EXECUTED %s %g %s @ %.4f (%s)", t.Side, t.Size, t.Symbol, t.Price, t.Channel))
}

func (d *Desk) log(level Level, message string) {
	d.feed.Add(Activity{Time: d.clock.Now().UTC(), Level: level, Message: message})
}

func (d *Desk) StartMonitoring() {
	d.status.Update(func(st *state.Status) {
		st.Monitoring = true
		st.LastAction = actionActive
	})
	d.log(LevelInfo, "Surveillance engaged")
	slog.Info("monitoring started")
}

// StopMonitoring takes effect at the next scheduled sweep or exit check; a
// sweep already running finishes.
func (d *Desk) StopMonitoring() {
	d.status.Update(func(st *state.Status) {
		st.Monitoring = false
		st.LastAction = actionStandby
	})
	d.log(LevelInfo, "Surveillance paused")
	slog.Info("monitoring stopped")
}

func (d *Desk) Monitoring() bool {
	return d.status.Monitoring()
}

// SetSentiment clamps value to 0..100 and returns the resulting label.
func (d *Desk) SetSentiment(value float64) analysis.Trend {
	value = clampSentiment(value)
	d.mu.Lock()
	d.sentiment = value
	d.mu.Unlock()
	label := analysis.SentimentLabel(value)
	d.log(LevelInfo, fmt.Sprintf("Sentiment set to %.0f (%s)", value, label))
	return label
}

func (d *Desk) Sentiment() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sentiment
}

func clampSentiment(v float64) float64 {
	if math.IsNaN(v) {
		return 50
	}
	return math.Max(0, math.Min(100, v))
}

// SetLiveTrading toggles forwarding to the broker. Orders are forwarded only
// while the broker is also connected.
func (d *Desk) SetLiveTrading(on bool) {
	d.engine.SetLive(on)
	if on {
		d.log(LevelWarn, "Live trading enabled")
	} else {
		d.log(LevelInfo, "Live trading disabled")
	}
}

func (d *Desk) ConnectBroker(ctx context.Context, creds broker.Credentials) error {
	if d.broker == nil {
		return ErrNoBroker
	}
	err := d.broker.Connect(ctx, creds)

	d.mu.Lock()
	d.brokerSt.Environment = creds.Environment
	d.brokerSt.Connected = d.broker.Connected()
	if err != nil {
		d.brokerSt.LastError = err.Error()
	} else {
		d.brokerSt.LastError = ""
		d.brokerSt.LastSync = d.clock.Now().UTC()
	}
	d.mu.Unlock()

	if err != nil {
		slog.Warn("broker connect failed", "broker", d.broker.Name(), "error", err)
		d.log(LevelError, fmt.Sprintf("Broker connection failed: %v", err))
		d.status.SetError(fmt.Errorf("broker: %w", err))
		return fmt.Errorf("connect %s: %w", d.broker.Name(), err)
	}
	d.log(LevelInfo, fmt.Sprintf("Connected to %s (%s)", d.broker.Name(), creds.Environment))
	return nil
}

func (d *Desk) DisconnectBroker() {
	if d.broker == nil {
		return
	}
	d.broker.Disconnect()
	d.mu.Lock()
	d.brokerSt.Connected = false
	d.mu.Unlock()
	d.log(LevelInfo, "Broker disconnected")
}

func (d *Desk) BrokerStatus() BrokerStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.brokerSt
	if d.broker != nil {
		st.Connected = d.broker.Connected()
	}
	return st
}

// GenerateBriefing summarises the most recent trades. A briefer failure is
// replaced by a placeholder report, never returned.
func (d *Desk) GenerateBriefing(ctx context.Context) (analysis.Briefing, error) {
	recent := d.engine.Recent(d.cfg.BriefingTrades)
	if len(recent) == 0 {
		return analysis.Briefing{}, ErrNoTrades
	}

	now := d.clock.Now()
	pnl := d.ledger.Equity() - d.cfg.StartingCash
	req := analysis.BriefingRequest{Date: now, PnL: pnl}
	for _, t := range recent {
		req.Trades = append(req.Trades, analysis.BriefingTrade{
			Side:      string(t.Side),
			Symbol:    t.Symbol,
			Size:      t.Size,
			Price:     t.Price,
			Rationale: t.Rationale,
			Forced:    t.Forced,
		})
	}

	briefing, err := d.briefer.Brief(ctx, req)
	if err != nil {
		slog.Warn("briefing failed", "error", err)
		d.log(LevelWarn, "Briefing unavailable, placeholder report issued")
		briefing = analysis.FallbackBriefing(now, pnl)
	}

	d.mu.Lock()
	d.briefing = &briefing
	d.mu.Unlock()
	return briefing, nil
}

// Status returns the operator-facing session status.
func (d *Desk) Status() state.Status {
	return d.status.Snapshot()
}

func (d *Desk) Instruments() []market.Instrument {
	return d.board.Instruments()
}

func (d *Desk) Trades() []engine.TradeRecord {
	return d.engine.Trades()
}

func (d *Desk) Ledger() portfolio.Snapshot {
	return d.ledger.Snapshot()
}
