package analysis

import (
	"context"
	"fmt"
	"math"

	"tradedesk/internal/market"
)

// Technical is an offline provider built from SMA bands and RSI. It needs no
// network and is the default when no model is configured.
type Technical struct {
	SMAWindow  int
	RSIPeriod  int
	BandPct    float64
	Oversold   float64
	Overbought float64
}

func NewTechnical() Technical {
	return Technical{
		SMAWindow:  10,
		RSIPeriod:  14,
		BandPct:    0.015,
		Oversold:   35,
		Overbought: 65,
	}
}

func (t Technical) Analyze(ctx context.Context, req Request) Result {
	if err := ctx.Err(); err != nil {
		return FailClosed("analysis cancelled")
	}
	if len(req.Prices) < 2 {
		return FailClosed("insufficient price history")
	}

	window := t.SMAWindow
	if window > len(req.Prices) {
		window = len(req.Prices)
	}
	sma, err := market.SMA(req.Prices, window)
	if err != nil {
		return FailClosed(err.Error())
	}
	period := t.RSIPeriod
	if period >= len(req.Prices) {
		period = len(req.Prices) - 1
	}
	rsi, err := market.RSI(req.Prices, period)
	if err != nil {
		return FailClosed(err.Error())
	}

	last := req.Prices[len(req.Prices)-1]
	trend := Neutral
	switch {
	case last > sma:
		trend = Bullish
	case last < sma:
		trend = Bearish
	}
	indicators := Indicators{RSI: rsi, Trend: trend, Sentiment: string(req.Sentiment)}

	lower := sma * (1 - t.BandPct)
	upper := sma * (1 + t.BandPct)
	deviation := 0.0
	if sma > 0 {
		deviation = math.Abs(last-sma) / sma
	}

	switch {
	case last < lower && rsi < t.Oversold && req.Cash > 0:
		return Result{
			Decision:    Buy,
			Confidence:  t.confidence(deviation, t.Oversold-rsi, req.Sentiment == Bullish),
			Rationale:   fmt.Sprintf("%s trades %.2f%% below its %d-tick mean with RSI %.1f", req.Symbol, deviation*100, window, rsi),
			Indicators:  indicators,
			TargetPrice: sma,
		}
	case last > upper && rsi > t.Overbought && req.Held > 0:
		return Result{
			Decision:    Sell,
			Confidence:  t.confidence(deviation, rsi-t.Overbought, req.Sentiment == Bearish),
			Rationale:   fmt.Sprintf("%s trades %.2f%% above its %d-tick mean with RSI %.1f", req.Symbol, deviation*100, window, rsi),
			Indicators:  indicators,
			TargetPrice: sma,
		}
	default:
		return Result{
			Decision:   Hold,
			Confidence: 0.5,
			Rationale:  fmt.Sprintf("%s within bands (RSI %.1f)", req.Symbol, rsi),
			Indicators: indicators,
		}
	}
}

// confidence grows with band deviation and RSI extremity and gets a small
// lift when operator sentiment agrees with the signal.
func (t Technical) confidence(deviation, rsiExcess float64, aligned bool) float64 {
	c := 0.6 + math.Min(deviation/t.BandPct, 3)*0.08 + math.Min(rsiExcess, 35)/35*0.1
	if aligned {
		c += 0.05
	}
	return math.Min(c, 0.99)
}
