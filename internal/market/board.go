package market

import (
	"sync"
	"time"
)

// Board owns the price series of every tracked instrument. Only Tick mutates
// it; every other component reads.
type Board struct {
	mu          sync.RWMutex
	instruments []Instrument
	index       map[string]int
	series      map[string]*Series
}

// NewBoard seeds each series with the instrument's initial price so that no
// series is ever empty.
func NewBoard(instruments []Instrument, capacity int, at time.Time) *Board {
	b := &Board{
		instruments: append([]Instrument(nil), instruments...),
		index:       make(map[string]int, len(instruments)),
		series:      make(map[string]*Series, len(instruments)),
	}
	for i, inst := range instruments {
		series := NewSeries(capacity)
		series.Add(PricePoint{Time: at, Price: inst.InitialPrice})
		b.index[inst.Symbol] = i
		b.series[inst.Symbol] = series
	}
	return b
}

// Tick appends one synthesized point per instrument, in configuration order,
// and returns the new latest prices.
func (b *Board) Tick(syn *Synthesizer, sentiment float64, at time.Time) map[string]float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	latest := make(map[string]float64, len(b.instruments))
	for _, inst := range b.instruments {
		series := b.series[inst.Symbol]
		last := inst.InitialPrice
		if point, ok := series.Last(); ok {
			last = point.Price
		}
		next := syn.Next(last, inst.Volatility, sentiment)
		series.Add(PricePoint{Time: at, Price: next})
		latest[inst.Symbol] = next
	}
	return latest
}

func (b *Board) Instruments() []Instrument {
	return append([]Instrument(nil), b.instruments...)
}

func (b *Board) Instrument(symbol string) (Instrument, bool) {
	i, ok := b.index[symbol]
	if !ok {
		return Instrument{}, false
	}
	return b.instruments[i], true
}

func (b *Board) Latest(symbol string) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	series, ok := b.series[symbol]
	if !ok {
		return 0, false
	}
	point, ok := series.Last()
	return point.Price, ok
}

func (b *Board) Prices() map[string]float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	prices := make(map[string]float64, len(b.series))
	for symbol, series := range b.series {
		if point, ok := series.Last(); ok {
			prices[symbol] = point.Price
		}
	}
	return prices
}

func (b *Board) History(symbol string) []float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	series, ok := b.series[symbol]
	if !ok {
		return nil
	}
	return series.Prices()
}

// Series returns a copy of the symbol's points, oldest first.
func (b *Board) Series(symbol string) []PricePoint {
	b.mu.RLock()
	defer b.mu.RUnlock()
	series, ok := b.series[symbol]
	if !ok {
		return nil
	}
	return series.Points()
}
