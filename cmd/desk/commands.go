package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tradedesk/internal/config"
	"tradedesk/internal/journal"
	"tradedesk/internal/market"
)

func marketSynth(cfg config.Config) market.SynthConfig {
	return market.SynthConfig{NeutralK: cfg.Session.NeutralK, MinPrice: cfg.Session.MinPrice}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the session configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Printf("configuration ok: %d instruments, tick %s, analysis %s, provider %s, broker %s\n",
				len(cfg.Instruments), cfg.Intervals.Tick, cfg.Intervals.Analysis, cfg.Analysis.Provider, cfg.Broker.Kind)
			return nil
		},
	}
}

func instrumentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "instruments",
		Short: "List tracked instruments and their default trade size",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			instruments, err := cfg.MarketInstruments()
			if err != nil {
				return err
			}
			lots := cfg.LotSizes()
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tNAME\tCLASS\tVOLATILITY\tINITIAL\tSIZE\tBROKER")
			for _, in := range instruments {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.3f\t%g\t%g\t%s\n",
					in.Symbol, in.Name, in.Class, in.Volatility, in.InitialPrice, lots.For(in.Class), in.BrokerTicker())
			}
			return w.Flush()
		},
	}
}

func historyCmd() *cobra.Command {
	var (
		limit int
		runID string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show archived trades from the sqlite journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if journal.Kind(cfg.Journal.Kind) != journal.KindSQLite {
				return fmt.Errorf("history needs journal.kind %q, configured %q", journal.KindSQLite, cfg.Journal.Kind)
			}
			db, err := journal.NewSQLite(cfg.Journal.Path, "")
			if err != nil {
				return err
			}
			defer db.Close()

			trades, err := db.Trades(limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tRUN\tSIDE\tSIZE\tSYMBOL\tPRICE\tCHANNEL\tRATIONALE")
			for _, t := range trades {
				fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%s\t%.4f\t%s\t%s\n",
					t.Timestamp.Format(time.DateTime), t.RunID, t.Side, t.Size, t.Symbol, t.Price, t.Channel, t.Rationale)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			counts, err := db.DecisionCounts(runID)
			if err != nil {
				return err
			}
			fmt.Printf("\ndecisions: executed=%d rejected=%d hold=%d failed=%d\n",
				counts[journal.Executed], counts[journal.Rejected], counts[journal.Held], counts[journal.Failed])
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of trades to show")
	cmd.Flags().StringVar(&runID, "run", "", "restrict decision counts to one run id")
	return cmd
}
