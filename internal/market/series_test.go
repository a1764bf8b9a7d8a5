package market

import (
	"math"
	"testing"
	"time"
)

func TestSeriesSMA(t *testing.T) {
	series := NewSeries(5)
	for i, v := range []float64{1, 2, 3, 4, 5} {
		series.Add(PricePoint{Time: time.Unix(int64(i), 0), Price: v})
	}

	sma, err := series.SMA(3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := (3.0 + 4.0 + 5.0) / 3.0
	if sma != expected {
		t.Fatalf("expected SMA %.2f, got %.2f", expected, sma)
	}
}

func TestSeriesSMAInsufficientData(t *testing.T) {
	series := NewSeries(5)
	series.Add(PricePoint{Price: 1})

	if _, err := series.SMA(3); err == nil {
		t.Fatalf("expected error for insufficient data")
	}
}

func TestSeriesEvictsOldest(t *testing.T) {
	series := NewSeries(3)
	for i := 1; i <= 5; i++ {
		series.Add(PricePoint{Price: float64(i)})
	}

	prices := series.Prices()
	if len(prices) != 3 {
		t.Fatalf("expected 3 points, got %d", len(prices))
	}
	for i, want := range []float64{3, 4, 5} {
		if prices[i] != want {
			t.Fatalf("expected %v at %d, got %v", want, i, prices[i])
		}
	}
	last, ok := series.Last()
	if !ok || last.Price != 5 {
		t.Fatalf("expected last 5, got %v", last.Price)
	}
}

func TestRSI(t *testing.T) {
	rising := []float64{1, 2, 3, 4, 5, 6}
	rsi, err := RSI(rising, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rsi != 100 {
		t.Fatalf("expected RSI 100 for monotonic gains, got %.2f", rsi)
	}

	short, _ := RSI([]float64{1, 2}, 14)
	if short != 50 {
		t.Fatalf("expected neutral RSI for short history, got %.2f", short)
	}

	mixed, _ := RSI([]float64{10, 11, 10, 11, 10, 11, 10}, 2)
	if math.IsNaN(mixed) || mixed <= 0 || mixed >= 100 {
		t.Fatalf("expected RSI inside (0,100), got %.2f", mixed)
	}
}
