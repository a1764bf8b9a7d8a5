package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tradedesk/internal/broker"
	"tradedesk/internal/journal"
	"tradedesk/internal/market"
	"tradedesk/internal/portfolio"
)

var (
	ErrUnknownSymbol  = errors.New("unknown symbol")
	ErrNoPrice        = errors.New("no price available")
	ErrBrokerRejected = errors.New("broker rejected order")
)

type Channel string

const (
	Simulated Channel = "SIMULATED"
	Live      Channel = "LIVE"
)

// TradeRecord is immutable once created.
type TradeRecord struct {
	ID        string         `json:"id"`
	Symbol    string         `json:"symbol"`
	Side      portfolio.Side `json:"side"`
	Price     float64        `json:"price"`
	Size      float64        `json:"size"`
	Timestamp time.Time      `json:"timestamp"`
	Rationale string         `json:"rationale"`
	Channel   Channel        `json:"channel"`
	Forced    bool           `json:"forced,omitempty"`
}

func (t TradeRecord) Notional() float64 {
	return t.Price * t.Size
}

type Request struct {
	Symbol    string
	Side      portfolio.Side
	Rationale string
	// Size zero means the instrument's default lot.
	Size   float64
	Forced bool
}

type PriceSource interface {
	Instrument(symbol string) (market.Instrument, bool)
	Latest(symbol string) (float64, bool)
}

type Config struct {
	RunID    string
	LotSizes market.LotSizes
	Now      func() time.Time
}

type Engine struct {
	cfg     Config
	prices  PriceSource
	ledger  *portfolio.Ledger
	broker  broker.Broker
	journal journal.Journal

	live        atomic.Bool
	orderSeqNum uint64

	mu     sync.Mutex
	trades []TradeRecord

	listenersMu sync.RWMutex
	onTrade     []func(TradeRecord)
}

// New builds an engine. brokerAdapter and j may be nil.
func New(cfg Config, prices PriceSource, ledger *portfolio.Ledger, brokerAdapter broker.Broker, j journal.Journal) *Engine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if j == nil {
		j = journal.Noop{}
	}
	return &Engine{
		cfg:     cfg,
		prices:  prices,
		ledger:  ledger,
		broker:  brokerAdapter,
		journal: j,
	}
}

// OnTrade registers a callback run after every fill, outside the engine
// lock.
func (e *Engine) OnTrade(fn func(TradeRecord)) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.onTrade = append(e.onTrade, fn)
}

func (e *Engine) SetLive(on bool) {
	e.live.Store(on)
}

func (e *Engine) Live() bool {
	return e.live.Load()
}

// Execute fills a request at the latest price. Fills are serialized. When
// live trading is on and the broker is connected the order is forwarded
// first; a broker rejection leaves the ledger untouched.
func (e *Engine) Execute(ctx context.Context, req Request) (TradeRecord, error) {
	record, err := e.execute(ctx, req)
	if err != nil {
		return TradeRecord{}, err
	}

	e.listenersMu.RLock()
	listeners := slices.Clone(e.onTrade)
	e.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(record)
	}
	return record, nil
}

func (e *Engine) execute(ctx context.Context, req Request) (TradeRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	inst, ok := e.prices.Instrument(req.Symbol)
	if !ok {
		return TradeRecord{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, req.Symbol)
	}
	price, ok := e.prices.Latest(req.Symbol)
	if !ok || price <= 0 {
		return TradeRecord{}, fmt.Errorf("%w: %s", ErrNoPrice, req.Symbol)
	}

	size := req.Size
	if size <= 0 {
		size = e.cfg.LotSizes.For(inst.Class)
	}
	if req.Side == portfolio.Sell {
		pos, _ := e.ledger.Position(req.Symbol)
		if pos.Quantity <= 0 {
			return TradeRecord{}, fmt.Errorf("%w: %s", portfolio.ErrNoPosition, req.Symbol)
		}
		if size > pos.Quantity {
			size = pos.Quantity
		}
	}

	channel := Simulated
	if e.live.Load() && e.broker != nil && e.broker.Connected() {
		order := broker.Order{
			Symbol:        inst.BrokerTicker(),
			Side:          req.Side,
			Size:          size,
			Class:         inst.Class,
			ClientOrderID: e.nextClientOrderID(),
		}
		if err := e.broker.Submit(ctx, order); err != nil {
			slog.Error("broker rejected order", "broker", e.broker.Name(), "symbol", req.Symbol, "side", req.Side, "size", size, "error", err)
			return TradeRecord{}, fmt.Errorf("%w: %v", ErrBrokerRejected, err)
		}
		channel = Live
	}

	result, err := e.ledger.ApplyFill(portfolio.Fill{Symbol: req.Symbol, Side: req.Side, Price: price, Size: size})
	if err != nil {
		return TradeRecord{}, err
	}

	record := TradeRecord{
		ID:        uuid.NewString(),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Price:     price,
		Size:      result.Filled,
		Timestamp: e.cfg.Now().UTC(),
		Rationale: req.Rationale,
		Channel:   channel,
		Forced:    req.Forced,
	}
	e.trades = append(e.trades, record)

	if err := e.journal.RecordTrade(journal.TradeEntry{
		ID:        record.ID,
		Timestamp: record.Timestamp,
		Symbol:    record.Symbol,
		Side:      string(record.Side),
		Price:     record.Price,
		Size:      record.Size,
		Channel:   string(record.Channel),
		Rationale: record.Rationale,
		Forced:    record.Forced,
	}); err != nil {
		slog.Warn("journal trade failed", "trade_id", record.ID, "error", err)
	}

	slog.Info("trade executed",
		"id", record.ID,
		"symbol", record.Symbol,
		"side", record.Side,
		"size", record.Size,
		"price", record.Price,
		"channel", record.Channel,
		"forced", record.Forced,
		"cash", result.Cash,
	)
	return record, nil
}

// Trades returns every trade of the session, oldest first.
func (e *Engine) Trades() []TradeRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]TradeRecord(nil), e.trades...)
}

// Recent returns up to n trades, newest first.
func (e *Engine) Recent(n int) []TradeRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n <= 0 || n > len(e.trades) {
		n = len(e.trades)
	}
	out := make([]TradeRecord, 0, n)
	for i := len(e.trades) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, e.trades[i])
	}
	return out
}

func (e *Engine) TradeCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.trades)
}

func (e *Engine) nextClientOrderID() string {
	seq := atomic.AddUint64(&e.orderSeqNum, 1)
	return fmt.Sprintf("%s-%d", e.cfg.RunID, seq)
}
