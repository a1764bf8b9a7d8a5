package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tradedesk/internal/analysis"
	"tradedesk/internal/broker"
	"tradedesk/internal/config"
	"tradedesk/internal/desk"
	"tradedesk/internal/journal"
	"tradedesk/internal/llm"
	"tradedesk/internal/llm/ollama"
	"tradedesk/internal/report"
	"tradedesk/internal/schedule"
	"tradedesk/internal/state"
)

type runOptions struct {
	duration  time.Duration
	monitor   bool
	live      bool
	seed      int64
	provider  string
	journal   string
	reportDir string
	sentiment float64
}

func runCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a trading session until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("monitor") {
				cfg.Surveillance.StartMonitoring = opts.monitor
			}
			if flags.Changed("live") {
				cfg.Broker.Live = opts.live
			}
			if flags.Changed("seed") {
				cfg.Session.Seed = opts.seed
			}
			if flags.Changed("provider") {
				cfg.Analysis.Provider = opts.provider
			}
			if flags.Changed("journal") {
				cfg.Journal.Kind = opts.journal
			}
			if flags.Changed("report-dir") {
				cfg.Report.Dir = opts.reportDir
			}
			if flags.Changed("sentiment") {
				cfg.Session.Sentiment = opts.sentiment
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if opts.duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.duration)
				defer cancel()
			}
			return runSession(ctx, cfg)
		},
	}

	cmd.Flags().DurationVar(&opts.duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().BoolVar(&opts.monitor, "monitor", false, "start surveillance immediately")
	cmd.Flags().BoolVar(&opts.live, "live", false, "forward fills to the connected broker")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "price walk seed (0 seeds from the clock)")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "analysis provider: technical or llm")
	cmd.Flags().StringVar(&opts.journal, "journal", "", "journal sink: none, ndjson or sqlite")
	cmd.Flags().StringVar(&opts.reportDir, "report-dir", "", "directory for the end-of-session report")
	cmd.Flags().Float64Var(&opts.sentiment, "sentiment", 50, "market sentiment 0-100")
	return cmd
}

func runSession(ctx context.Context, cfg config.Config) error {
	runID := generateRunID()
	instruments, err := cfg.MarketInstruments()
	if err != nil {
		return err
	}

	j, err := journal.Open(journal.Kind(cfg.Journal.Kind), cfg.Journal.Path, runID)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() {
		if err := j.Close(); err != nil {
			slog.Warn("close journal failed", "error", err)
		}
	}()

	provider, briefer := buildAnalysis(cfg)
	brokerAdapter := buildBroker(cfg)

	store := state.NewStore(state.Status{
		Intelligence: cfg.Surveillance.IntelligenceStart,
		Skills:       cfg.Surveillance.Skills,
		LastAction:   "Standby",
	})
	if cfg.State.Path != "" {
		if err := store.Load(cfg.State.Path); err != nil {
			slog.Warn("state load failed", "path", cfg.State.Path, "error", err)
		}
	}

	seed := cfg.Session.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	d, err := desk.New(desk.Config{
		RunID:             runID,
		Instruments:       instruments,
		HistoryLength:     cfg.Session.HistoryLength,
		StartingCash:      cfg.Session.StartingCash,
		Sentiment:         cfg.Session.Sentiment,
		TickInterval:      cfg.Intervals.Tick,
		ValuationInterval: cfg.Intervals.Valuation,
		AnalysisInterval:  cfg.Intervals.Analysis,
		Threshold:         cfg.Risk.Threshold,
		ProfitTarget:      cfg.Risk.ProfitTarget,
		LotSizes:          cfg.LotSizes(),
		Synth:             marketSynth(cfg),
		Lookback:          cfg.Surveillance.Lookback,
		SourceCap:         cfg.Surveillance.SourceCap,
		IntelligenceStep:  cfg.Surveillance.IntelligenceStep,
		ActivityLimit:     100,
		BriefingTrades:    10,
	}, desk.Deps{
		Provider: provider,
		Briefer:  briefer,
		Broker:   brokerAdapter,
		Journal:  j,
		Runner:   schedule.NewCron(slog.Default()),
		Rand:     rand.New(rand.NewSource(seed)),
		Status:   store,
	})
	if err != nil {
		return err
	}

	if cfg.Broker.AutoConnect {
		if err := d.ConnectBroker(ctx, cfg.Credentials()); err != nil {
			slog.Error("broker connect failed, continuing simulated", "error", err)
		}
	}
	d.SetLiveTrading(cfg.Broker.Live)
	if cfg.Surveillance.StartMonitoring {
		d.StartMonitoring()
	}

	slog.Info("session starting", "run_id", runID, "seed", seed, "provider", cfg.Analysis.Provider, "broker", cfg.Broker.Kind, "journal", cfg.Journal.Kind)
	if err := d.Run(ctx); err != nil {
		return err
	}
	d.DisconnectBroker()

	finish(d, cfg, runID, store)
	return nil
}

// finish writes the end-of-session briefing, report and state. Failures are
// logged; the session itself already completed.
func finish(d *desk.Desk, cfg config.Config, runID string, store *state.Store) {
	briefCtx, cancel := context.WithTimeout(context.Background(), cfg.Analysis.Timeout+5*time.Second)
	defer cancel()
	if _, err := d.GenerateBriefing(briefCtx); err != nil && !errors.Is(err, desk.ErrNoTrades) {
		slog.Warn("briefing failed", "error", err)
	}

	snap := d.Snapshot()
	if err := report.WriteText(os.Stdout, snap); err != nil {
		slog.Warn("write summary failed", "error", err)
	}
	if cfg.Report.Dir != "" {
		dir := filepath.Join(cfg.Report.Dir, runID)
		if _, err := report.WriteCSV(dir, snap); err != nil {
			slog.Warn("write csv report failed", "dir", dir, "error", err)
		}
		if err := writeJSONReport(filepath.Join(dir, "session.json"), snap); err != nil {
			slog.Warn("write json report failed", "dir", dir, "error", err)
		} else {
			slog.Info("report written", "dir", dir)
		}
	}

	if cfg.State.Path != "" {
		if err := store.Save(cfg.State.Path); err != nil {
			slog.Warn("state save failed", "path", cfg.State.Path, "error", err)
		}
	}
}

func writeJSONReport(path string, snap desk.Snapshot) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.WriteJSON(file, snap); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func buildAnalysis(cfg config.Config) (analysis.Provider, analysis.Briefer) {
	if cfg.Analysis.Provider != config.ProviderLLM {
		return analysis.NewTechnical(), analysis.LocalBriefer{ProfitTarget: cfg.Risk.ProfitTarget}
	}
	backend := ollama.New(cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.Timeout)
	client := llm.New(backend)
	provider := analysis.NewLLM(client, analysis.LLMConfig{
		SystemPromptPath:   cfg.Analysis.SystemPrompt,
		AnalysisPromptPath: cfg.Analysis.AnalysisPrompt,
		Context:            cfg.Analysis.Context,
		Timeout:            cfg.Analysis.Timeout,
		ProfitTarget:       cfg.Risk.ProfitTarget,
		Temperature:        cfg.Analysis.Temperature,
	})
	briefer := analysis.NewLLMBriefer(client, cfg.Analysis.BriefingPrompt, cfg.Analysis.Timeout, cfg.Risk.ProfitTarget)
	return provider, briefer
}

func buildBroker(cfg config.Config) broker.Broker {
	if cfg.Broker.Kind == config.BrokerAlpaca {
		return broker.NewAlpaca(cfg.Broker.BaseURL, cfg.Broker.Timeout, nil)
	}
	return broker.NewPaper()
}
