// Package report renders a desk snapshot for operators and spreadsheets.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"tradedesk/internal/desk"
)

const (
	OverviewFile  = "overview.csv"
	PortfolioFile = "portfolio.csv"
	TradesFile    = "trades.csv"
)

func WriteJSON(w io.Writer, snap desk.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// WriteCSV writes the overview, portfolio and trade tables into dir and
// returns the paths written.
func WriteCSV(dir string, snap desk.Snapshot) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	tables := []struct {
		name string
		rows [][]string
	}{
		{OverviewFile, overviewRows(snap)},
		{PortfolioFile, portfolioRows(snap)},
		{TradesFile, tradeRows(snap)},
	}

	var paths []string
	for _, table := range tables {
		path := filepath.Join(dir, table.name)
		if err := writeTable(path, table.rows); err != nil {
			return paths, fmt.Errorf("write %s: %w", table.name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeTable(path string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(file)
	if err := w.WriteAll(rows); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func overviewRows(snap desk.Snapshot) [][]string {
	s := snap.Summary
	return [][]string{
		{"Metric", "Value"},
		{"Generated At", s.GeneratedAt.Format(time.RFC3339)},
		{"Net Asset Value", money(s.Equity)},
		{"Cash", money(s.Cash)},
		{"Session P&L", money(s.SessionPnL)},
		{"Realized P&L", money(s.RealizedPnL)},
		{"Unrealized P&L", money(s.UnrealizedPnL)},
		{"Trades", strconv.Itoa(s.TradeCount)},
		{"Monitoring", strconv.FormatBool(s.Monitoring)},
		{"Live Trading", strconv.FormatBool(s.Live)},
		{"Sentiment", fmt.Sprintf("%.0f (%s)", s.Sentiment, s.SentimentLabel)},
	}
}

func portfolioRows(snap desk.Snapshot) [][]string {
	rows := [][]string{{"Symbol", "Name", "Class", "Quantity", "Avg Cost", "Mark", "Market Value", "Unrealized P&L", "Realized P&L"}}
	for _, p := range snap.Positions {
		rows = append(rows, []string{
			p.Symbol,
			p.Name,
			string(p.Class),
			number(p.Quantity),
			number(p.AvgCost),
			number(p.Mark),
			money(p.MarketValue),
			money(p.UnrealizedPnL),
			money(p.RealizedPnL),
		})
	}
	return rows
}

func tradeRows(snap desk.Snapshot) [][]string {
	rows := [][]string{{"ID", "Timestamp", "Symbol", "Side", "Size", "Price", "Notional", "Channel", "Forced", "Rationale"}}
	for _, t := range snap.Trades {
		rows = append(rows, []string{
			t.ID,
			t.Timestamp.Format(time.RFC3339),
			t.Symbol,
			string(t.Side),
			number(t.Size),
			number(t.Price),
			money(t.Notional()),
			string(t.Channel),
			strconv.FormatBool(t.Forced),
			t.Rationale,
		})
	}
	return rows
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteText prints a short operator summary.
func WriteText(w io.Writer, snap desk.Snapshot) error {
	s := snap.Summary
	if _, err := fmt.Fprintf(w, "NAV %s  cash %s  P&L %s (realized %s, unrealized %s)  trades %d\n",
		usd(s.Equity), usd(s.Cash), usd(s.SessionPnL), usd(s.RealizedPnL), usd(s.UnrealizedPnL), s.TradeCount); err != nil {
		return err
	}
	for _, p := range snap.Positions {
		if p.Quantity == 0 && p.RealizedPnL == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "  %-8s qty %-10s avg %-12s mark %-12s upl %s\n",
			p.Symbol, number(p.Quantity), usd(p.AvgCost), usd(p.Mark), usd(p.UnrealizedPnL)); err != nil {
			return err
		}
	}
	if b := snap.Briefing; b != nil {
		if _, err := fmt.Fprintf(w, "Briefing %s: %s\n", b.Date, b.Summary); err != nil {
			return err
		}
	}
	return nil
}

func usd(v float64) string {
	return "$" + humanize.CommafWithDigits(v, 2)
}
