package portfolio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"tradedesk/internal/market"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

var (
	ErrUnknownSymbol = errors.New("unknown symbol")
	ErrNoPosition    = errors.New("no position to sell")
	ErrInvalidSize   = errors.New("size must be positive")
	ErrInvalidPrice  = errors.New("price must be positive")
	ErrInvalidSide   = errors.New("side must be BUY or SELL")
)

type Fill struct {
	Symbol string
	Side   Side
	Price  float64
	Size   float64
}

// FillResult reports what the ledger actually booked. Filled can be smaller
// than the requested size when a sell exceeds the held quantity.
type FillResult struct {
	Filled   float64
	Rejected float64
	Realized float64
	Cash     float64
}

type position struct {
	qty      decimal.Decimal
	avgCost  decimal.Decimal
	mark     decimal.Decimal
	realized decimal.Decimal
}

// Ledger holds cash and positions. ApplyFill is the only mutator of either.
type Ledger struct {
	mu        sync.RWMutex
	cash      decimal.Decimal
	order     []string
	positions map[string]*position
}

func NewLedger(cash float64, instruments []market.Instrument) *Ledger {
	l := &Ledger{
		cash:      decimal.NewFromFloat(cash),
		positions: make(map[string]*position, len(instruments)),
	}
	for _, inst := range instruments {
		l.order = append(l.order, inst.Symbol)
		l.positions[inst.Symbol] = &position{mark: decimal.NewFromFloat(inst.InitialPrice)}
	}
	return l
}

// ApplyFill books a fill. A buy may take cash below zero; the decision gate
// is responsible for refusing unaffordable buys. A sell larger than the held
// quantity is clamped and the excess reported as Rejected.
func (l *Ledger) ApplyFill(fill Fill) (FillResult, error) {
	if fill.Size <= 0 {
		return FillResult{}, ErrInvalidSize
	}
	if fill.Price <= 0 {
		return FillResult{}, ErrInvalidPrice
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[fill.Symbol]
	if !ok {
		return FillResult{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, fill.Symbol)
	}

	price := decimal.NewFromFloat(fill.Price)
	size := decimal.NewFromFloat(fill.Size)

	switch fill.Side {
	case Buy:
		cost := price.Mul(size)
		newQty := pos.qty.Add(size)
		pos.avgCost = pos.qty.Mul(pos.avgCost).Add(cost).Div(newQty)
		pos.qty = newQty
		pos.mark = price
		l.cash = l.cash.Sub(cost)
		return FillResult{Filled: fill.Size, Cash: l.cash.InexactFloat64()}, nil

	case Sell:
		if !pos.qty.IsPositive() {
			return FillResult{}, fmt.Errorf("%w: %s", ErrNoPosition, fill.Symbol)
		}
		filled := decimal.Min(size, pos.qty)
		realized := price.Sub(pos.avgCost).Mul(filled)
		pos.qty = pos.qty.Sub(filled)
		pos.realized = pos.realized.Add(realized)
		pos.mark = price
		if pos.qty.IsZero() {
			pos.avgCost = decimal.Zero
		}
		l.cash = l.cash.Add(price.Mul(filled))
		return FillResult{
			Filled:   filled.InexactFloat64(),
			Rejected: size.Sub(filled).InexactFloat64(),
			Realized: realized.InexactFloat64(),
			Cash:     l.cash.InexactFloat64(),
		}, nil

	default:
		return FillResult{}, fmt.Errorf("%w: %q", ErrInvalidSide, fill.Side)
	}
}

// MarkToMarket updates mark prices. Symbols the ledger does not track are
// ignored.
func (l *Ledger) MarkToMarket(prices map[string]float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for symbol, price := range prices {
		if pos, ok := l.positions[symbol]; ok && price > 0 {
			pos.mark = decimal.NewFromFloat(price)
		}
	}
}

func (l *Ledger) Cash() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cash.InexactFloat64()
}

func (l *Ledger) Equity() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.equityLocked().InexactFloat64()
}

func (l *Ledger) equityLocked() decimal.Decimal {
	total := l.cash
	for _, pos := range l.positions {
		total = total.Add(pos.qty.Mul(pos.mark))
	}
	return total
}

func (l *Ledger) Position(symbol string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return pos.view(symbol), true
}

type Position struct {
	Symbol   string
	Quantity float64
	AvgCost  float64
	Mark     float64
	Realized float64
}

func (p Position) MarketValue() float64 {
	return p.Quantity * p.Mark
}

func (p Position) Unrealized() float64 {
	if p.Quantity <= 0 {
		return 0
	}
	return (p.Mark - p.AvgCost) * p.Quantity
}

func (p *position) view(symbol string) Position {
	return Position{
		Symbol:   symbol,
		Quantity: p.qty.InexactFloat64(),
		AvgCost:  p.avgCost.InexactFloat64(),
		Mark:     p.mark.InexactFloat64(),
		Realized: p.realized.InexactFloat64(),
	}
}

// Snapshot is a consistent copy of the ledger taken under one lock.
type Snapshot struct {
	Cash      float64
	Equity    float64
	Positions []Position
}

func (s Snapshot) Position(symbol string) (Position, bool) {
	for _, p := range s.Positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return Position{}, false
}

func (s Snapshot) Realized() float64 {
	total := 0.0
	for _, p := range s.Positions {
		total += p.Realized
	}
	return total
}

func (s Snapshot) Unrealized() float64 {
	total := 0.0
	for _, p := range s.Positions {
		total += p.Unrealized()
	}
	return total
}

func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	snap := Snapshot{
		Cash:      l.cash.InexactFloat64(),
		Equity:    l.equityLocked().InexactFloat64(),
		Positions: make([]Position, 0, len(l.order)),
	}
	for _, symbol := range l.order {
		snap.Positions = append(snap.Positions, l.positions[symbol].view(symbol))
	}
	return snap
}
