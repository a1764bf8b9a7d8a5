package market

import (
	"math/rand"
	"testing"
	"time"
)

type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }

func TestSynthesizerNext(t *testing.T) {
	syn := NewSynthesizer(fixedRand(1.0), SynthConfig{NeutralK: 1500, MinPrice: 0.01})
	// u = 0.5, bias = 0 at neutral sentiment
	got := syn.Next(100, 0.04, 50)
	if got != 102 {
		t.Fatalf("expected 102, got %v", got)
	}
}

func TestSynthesizerSentimentBias(t *testing.T) {
	syn := NewSynthesizer(fixedRand(1.0), SynthConfig{NeutralK: 1500})
	bull := syn.Next(100, 0.04, 80)
	neutral := syn.Next(100, 0.04, 50)
	if bull <= neutral {
		t.Fatalf("expected bullish sentiment to widen upward move, got %v <= %v", bull, neutral)
	}
}

func TestSynthesizerPriceFloor(t *testing.T) {
	syn := NewSynthesizer(fixedRand(0), SynthConfig{NeutralK: 1500, MinPrice: 0.01})
	// u = -0.5 with volatility 3 drives the walk far below zero
	got := syn.Next(1, 3, 50)
	if got != 0.01 {
		t.Fatalf("expected floor 0.01, got %v", got)
	}
}

func TestSynthesizerReproducible(t *testing.T) {
	a := NewSynthesizer(rand.New(rand.NewSource(7)), SynthConfig{})
	b := NewSynthesizer(rand.New(rand.NewSource(7)), SynthConfig{})
	lastA, lastB := 100.0, 100.0
	for i := 0; i < 20; i++ {
		lastA = a.Next(lastA, 0.05, 60)
		lastB = b.Next(lastB, 0.05, 60)
		if lastA != lastB {
			t.Fatalf("expected identical walks at step %d: %v vs %v", i, lastA, lastB)
		}
	}
}

func TestBoardTickBoundsHistory(t *testing.T) {
	instruments := []Instrument{
		{Symbol: "BTC", Volatility: 0.04, InitialPrice: 65420, Class: ClassCrypto},
		{Symbol: "NATGAS", Volatility: 0.035, InitialPrice: 2.15, Class: ClassCommodity},
	}
	start := time.Unix(0, 0)
	board := NewBoard(instruments, 50, start)

	if got := len(board.History("BTC")); got != 1 {
		t.Fatalf("expected seeded history, got %d points", got)
	}

	syn := NewSynthesizer(rand.New(rand.NewSource(1)), SynthConfig{})
	for i := 1; i <= 55; i++ {
		board.Tick(syn, 50, start.Add(time.Duration(i)*3*time.Second))
	}

	series := board.Series("NATGAS")
	if len(series) != 50 {
		t.Fatalf("expected 50 points, got %d", len(series))
	}
	for i := 1; i < len(series); i++ {
		if !series[i].Time.After(series[i-1].Time) {
			t.Fatalf("expected insertion order at %d", i)
		}
	}
	for _, p := range series {
		if p.Price < 0.01 {
			t.Fatalf("expected price above floor, got %v", p.Price)
		}
	}
	latest, ok := board.Latest("NATGAS")
	if !ok || latest != series[len(series)-1].Price {
		t.Fatalf("expected latest to match last point")
	}
	if _, ok := board.Latest("DOGE"); ok {
		t.Fatalf("expected unknown symbol to report missing")
	}
}
