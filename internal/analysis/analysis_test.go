package analysis

import (
	"context"
	"math"
	"strings"
	"testing"
)

func TestSentimentLabel(t *testing.T) {
	cases := map[float64]Trend{0: Bearish, 39.9: Bearish, 40: Neutral, 50: Neutral, 60: Neutral, 60.1: Bullish, 100: Bullish}
	for value, want := range cases {
		if got := SentimentLabel(value); got != want {
			t.Fatalf("expected %s for %v, got %s", want, value, got)
		}
	}
}

func TestFailClosed(t *testing.T) {
	r := FailClosed("upstream timed out")
	if r.Decision != Hold || r.Confidence != 0 || !r.Fallback {
		t.Fatalf("expected fallback HOLD, got %+v", r)
	}
	if r.Indicators.RSI != 50 || r.Indicators.Trend != Neutral || r.Indicators.Sentiment != "UNKNOWN" {
		t.Fatalf("unexpected indicators: %+v", r.Indicators)
	}
	if !strings.HasPrefix(r.Rationale, "Safety Protocol:") || !strings.HasSuffix(r.Rationale, "Holding current position.") {
		t.Fatalf("unexpected rationale: %q", r.Rationale)
	}
}

func TestNormalize(t *testing.T) {
	r := Normalize(Result{
		Decision:   "buy",
		Confidence: 87,
		Indicators: Indicators{RSI: 140, Trend: "up"},
	})
	if r.Decision != Buy {
		t.Fatalf("expected BUY, got %s", r.Decision)
	}
	if r.Confidence != 0.87 {
		t.Fatalf("expected percentage confidence scaled to 0.87, got %v", r.Confidence)
	}
	if r.Indicators.RSI != 50 || r.Indicators.Trend != Neutral || r.Indicators.Sentiment != "UNKNOWN" {
		t.Fatalf("unexpected indicators: %+v", r.Indicators)
	}

	if got := Normalize(Result{Decision: "maybe", Confidence: -1}); got.Decision != Hold || got.Confidence != 0 {
		t.Fatalf("expected HOLD with zero confidence, got %+v", got)
	}
	if got := Normalize(Result{Confidence: 500}); got.Confidence != 1 {
		t.Fatalf("expected confidence clamped to 1, got %v", got.Confidence)
	}
}

func TestSafeRecoversPanic(t *testing.T) {
	p := ProviderFunc(func(ctx context.Context, req Request) Result {
		panic("boom")
	})
	r := Safe(context.Background(), p, Request{Symbol: "BTC"})
	if !r.Fallback || r.Decision != Hold {
		t.Fatalf("expected fallback HOLD after panic, got %+v", r)
	}
}

func TestSafeNormalizesProviderOutput(t *testing.T) {
	p := ProviderFunc(func(ctx context.Context, req Request) Result {
		return Result{Decision: "buy", Confidence: math.NaN(), Indicators: Indicators{RSI: 140}}
	})
	r := Safe(context.Background(), p, Request{Symbol: "ETH"})
	if r.Decision != Buy || r.Confidence != 0 || r.Indicators.RSI != 50 {
		t.Fatalf("expected normalized result, got %+v", r)
	}

	pct := ProviderFunc(func(ctx context.Context, req Request) Result {
		return Result{Decision: Sell, Confidence: 85}
	})
	if r := Safe(context.Background(), pct, Request{Symbol: "ETH"}); r.Confidence != 0.85 {
		t.Fatalf("expected percent confidence scaled to 0.85, got %v", r.Confidence)
	}
}
