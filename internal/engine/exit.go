package engine

import (
	"context"
	"fmt"
	"log/slog"

	"tradedesk/internal/portfolio"
)

// ExitMonitor closes any position whose unrealized profit has reached the
// target. It reads one ledger snapshot per check.
type ExitMonitor struct {
	engine *Engine
	ledger *portfolio.Ledger
	target float64
}

func NewExitMonitor(engine *Engine, ledger *portfolio.Ledger, target float64) *ExitMonitor {
	return &ExitMonitor{engine: engine, ledger: ledger, target: target}
}

func (m *ExitMonitor) Rationale() string {
	return fmt.Sprintf("Automated Profit Target Exit reached ($%.0f)", m.target)
}

func (m *ExitMonitor) Check(ctx context.Context) []TradeRecord {
	snap := m.ledger.Snapshot()

	var closed []TradeRecord
	for _, pos := range snap.Positions {
		if pos.Quantity <= 0 {
			continue
		}
		profit := (pos.Mark - pos.AvgCost) * pos.Quantity
		if profit < m.target {
			continue
		}
		if err := ctx.Err(); err != nil {
			return closed
		}

		record, err := m.engine.Execute(ctx, Request{
			Symbol:    pos.Symbol,
			Side:      portfolio.Sell,
			Size:      pos.Quantity,
			Rationale: m.Rationale(),
			Forced:    true,
		})
		if err != nil {
			slog.Warn("profit target exit failed", "symbol", pos.Symbol, "profit", profit, "error", err)
			continue
		}
		slog.Info("profit target exit", "symbol", pos.Symbol, "profit", profit, "size", record.Size)
		closed = append(closed, record)
	}
	return closed
}
