// Package analysis turns a price history and position into a trade signal.
// Providers never return errors: every failure is folded into a fail-closed
// HOLD.
package analysis

import (
	"context"
	"fmt"
	"math"
	"strings"
)

type Decision string

const (
	Buy  Decision = "BUY"
	Sell Decision = "SELL"
	Hold Decision = "HOLD"
)

func ParseDecision(value string) Decision {
	switch Decision(strings.ToUpper(strings.TrimSpace(value))) {
	case Buy:
		return Buy
	case Sell:
		return Sell
	default:
		return Hold
	}
}

type Trend string

const (
	Bullish Trend = "BULLISH"
	Bearish Trend = "BEARISH"
	Neutral Trend = "NEUTRAL"
)

func ParseTrend(value string) Trend {
	switch Trend(strings.ToUpper(strings.TrimSpace(value))) {
	case Bullish:
		return Bullish
	case Bearish:
		return Bearish
	default:
		return Neutral
	}
}

// SentimentLabel maps the 0..100 operator sentiment onto a trend label.
func SentimentLabel(value float64) Trend {
	switch {
	case value > 60:
		return Bullish
	case value < 40:
		return Bearish
	default:
		return Neutral
	}
}

type Indicators struct {
	RSI       float64 `json:"rsi"`
	Trend     Trend   `json:"trend"`
	Sentiment string  `json:"sentiment"`
}

// Source is a citation returned with an analysis.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

type Request struct {
	Symbol    string
	Prices    []float64
	Cash      float64
	Held      float64
	Sentiment Trend
}

type Result struct {
	Decision    Decision   `json:"decision"`
	Confidence  float64    `json:"confidence"`
	Rationale   string     `json:"rationale"`
	Indicators  Indicators `json:"indicators"`
	TargetPrice float64    `json:"target_price,omitempty"`
	Sources     []Source   `json:"sources,omitempty"`
	// Fallback marks a result substituted for a failed provider call.
	Fallback bool `json:"fallback,omitempty"`
}

type Provider interface {
	Analyze(ctx context.Context, req Request) Result
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request) Result

func (f ProviderFunc) Analyze(ctx context.Context, req Request) Result {
	return f(ctx, req)
}

// FailClosed is the HOLD returned whenever a provider cannot produce a
// usable answer.
func FailClosed(reason string) Result {
	return Result{
		Decision:   Hold,
		Confidence: 0,
		Rationale:  fmt.Sprintf("Safety Protocol: %s. Holding current position.", reason),
		Indicators: Indicators{RSI: 50, Trend: Neutral, Sentiment: "UNKNOWN"},
		Fallback:   true,
	}
}

// Normalize clamps confidence and RSI into range and fills defaults so that
// downstream code can trust the result shape.
func Normalize(r Result) Result {
	r.Decision = ParseDecision(string(r.Decision))
	if math.IsNaN(r.Confidence) || r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		// Some models answer on a 0..100 scale.
		if r.Confidence <= 100 {
			r.Confidence /= 100
		} else {
			r.Confidence = 1
		}
	}
	if math.IsNaN(r.Indicators.RSI) || r.Indicators.RSI < 0 || r.Indicators.RSI > 100 {
		r.Indicators.RSI = 50
	}
	r.Indicators.Trend = ParseTrend(string(r.Indicators.Trend))
	if r.Indicators.Sentiment == "" {
		r.Indicators.Sentiment = "UNKNOWN"
	}
	if r.TargetPrice < 0 || math.IsNaN(r.TargetPrice) {
		r.TargetPrice = 0
	}
	return r
}

// Safe calls p, converts a panic into a fail-closed result and normalizes
// whatever the provider returned.
func Safe(ctx context.Context, p Provider, req Request) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = FailClosed(fmt.Sprintf("provider panic: %v", r))
		}
	}()
	return Normalize(p.Analyze(ctx, req))
}
