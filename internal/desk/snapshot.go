package desk

import (
	"time"

	"tradedesk/internal/analysis"
	"tradedesk/internal/engine"
	"tradedesk/internal/market"
	"tradedesk/internal/state"
)

type Summary struct {
	GeneratedAt    time.Time      `json:"generated_at"`
	Cash           float64        `json:"cash"`
	Equity         float64        `json:"equity"`
	SessionPnL     float64        `json:"session_pnl"`
	RealizedPnL    float64        `json:"realized_pnl"`
	UnrealizedPnL  float64        `json:"unrealized_pnl"`
	TradeCount     int            `json:"trade_count"`
	Monitoring     bool           `json:"monitoring"`
	Live           bool           `json:"live"`
	Sentiment      float64        `json:"sentiment"`
	SentimentLabel analysis.Trend `json:"sentiment_label"`
}

type PositionRow struct {
	Symbol        string            `json:"symbol"`
	Name          string            `json:"name"`
	Class         market.AssetClass `json:"class"`
	Quantity      float64           `json:"quantity"`
	AvgCost       float64           `json:"avg_cost"`
	Mark          float64           `json:"mark"`
	MarketValue   float64           `json:"market_value"`
	UnrealizedPnL float64           `json:"unrealized_pnl"`
	RealizedPnL   float64           `json:"realized_pnl"`
}

// Snapshot is a read-only view of the session for reporting.
type Snapshot struct {
	Summary   Summary              `json:"summary"`
	Positions []PositionRow        `json:"positions"`
	Trades    []engine.TradeRecord `json:"trades"`
	Activity  []Activity           `json:"activity"`
	Status    state.Status         `json:"status"`
	Broker    BrokerStatus         `json:"broker"`
	Briefing  *analysis.Briefing   `json:"briefing,omitempty"`
}

func (d *Desk) Snapshot() Snapshot {
	ledger := d.ledger.Snapshot()
	trades := d.engine.Recent(0)
	sentiment := d.Sentiment()

	snap := Snapshot{
		Summary: Summary{
			GeneratedAt:    d.clock.Now().UTC(),
			Cash:           ledger.Cash,
			Equity:         ledger.Equity,
			SessionPnL:     ledger.Equity - d.cfg.StartingCash,
			RealizedPnL:    ledger.Realized(),
			UnrealizedPnL:  ledger.Unrealized(),
			TradeCount:     len(trades),
			Monitoring:     d.status.Monitoring(),
			Live:           d.engine.Live(),
			Sentiment:      sentiment,
			SentimentLabel: analysis.SentimentLabel(sentiment),
		},
		Trades:   trades,
		Activity: d.feed.Entries(),
		Status:   d.status.Snapshot(),
		Broker:   d.BrokerStatus(),
	}

	for _, inst := range d.board.Instruments() {
		pos, _ := ledger.Position(inst.Symbol)
		snap.Positions = append(snap.Positions, PositionRow{
			Symbol:        inst.Symbol,
			Name:          inst.Name,
			Class:         inst.Class,
			Quantity:      pos.Quantity,
			AvgCost:       pos.AvgCost,
			Mark:          pos.Mark,
			MarketValue:   pos.MarketValue(),
			UnrealizedPnL: pos.Unrealized(),
			RealizedPnL:   pos.Realized,
		})
	}

	d.mu.Lock()
	if d.briefing != nil {
		b := *d.briefing
		snap.Briefing = &b
	}
	d.mu.Unlock()
	return snap
}
