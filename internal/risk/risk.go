package risk

import (
	"errors"
	"fmt"
	"log/slog"

	"tradedesk/internal/analysis"
	"tradedesk/internal/portfolio"
)

const DefaultThreshold = 0.82

var (
	ErrHold             = errors.New("hold")
	ErrLowConfidence    = errors.New("confidence_below_threshold")
	ErrInsufficientCash = errors.New("insufficient_cash")
	ErrNoPosition       = errors.New("no_position_to_sell")
	ErrInvalidQuote     = errors.New("invalid_price_or_size")
	ErrBadConfidence    = errors.New("confidence_out_of_range")
)

// Context is what the gate sees of the desk at evaluation time. WorkingCash
// must already reflect fills made earlier in the same sweep.
type Context struct {
	Symbol      string
	Price       float64
	WorkingCash float64
	HeldQty     float64
	DefaultSize float64
}

type Approval struct {
	Side     portfolio.Side
	Size     float64
	Price    float64
	Notional float64
	Reason   string
}

type Gate struct {
	// Threshold is exclusive: confidence must be strictly greater. Confidence
	// is on a 0..1 scale; anything above 1 is refused.
	Threshold float64
}

func (g Gate) Evaluate(result analysis.Result, ctx Context) (Approval, error) {
	if result.Decision != analysis.Buy && result.Decision != analysis.Sell {
		return Approval{}, ErrHold
	}

	if result.Confidence > 1 {
		slog.Debug("risk rejected", "reason", ErrBadConfidence, "symbol", ctx.Symbol, "confidence", result.Confidence)
		return Approval{}, fmt.Errorf("%w: %.4f", ErrBadConfidence, result.Confidence)
	}
	// Negated so that NaN is rejected.
	if !(result.Confidence > g.Threshold) {
		slog.Debug("risk rejected", "reason", ErrLowConfidence, "symbol", ctx.Symbol, "confidence", result.Confidence, "threshold", g.Threshold)
		return Approval{}, fmt.Errorf("%w: %.4f <= %.4f", ErrLowConfidence, result.Confidence, g.Threshold)
	}
	if ctx.Price <= 0 || ctx.DefaultSize <= 0 {
		slog.Debug("risk rejected", "reason", ErrInvalidQuote, "symbol", ctx.Symbol, "price", ctx.Price, "size", ctx.DefaultSize)
		return Approval{}, ErrInvalidQuote
	}

	switch result.Decision {
	case analysis.Buy:
		notional := ctx.Price * ctx.DefaultSize
		if ctx.WorkingCash < notional {
			slog.Debug("risk rejected", "reason", ErrInsufficientCash, "symbol", ctx.Symbol, "notional", notional, "cash", ctx.WorkingCash)
			return Approval{}, fmt.Errorf("%w: need %.2f have %.2f", ErrInsufficientCash, notional, ctx.WorkingCash)
		}
		slog.Debug("risk approved", "side", portfolio.Buy, "symbol", ctx.Symbol, "size", ctx.DefaultSize, "notional", notional)
		return Approval{
			Side:     portfolio.Buy,
			Size:     ctx.DefaultSize,
			Price:    ctx.Price,
			Notional: notional,
			Reason:   result.Rationale,
		}, nil

	default:
		if ctx.HeldQty <= 0 {
			slog.Debug("risk rejected", "reason", ErrNoPosition, "symbol", ctx.Symbol)
			return Approval{}, ErrNoPosition
		}
		size := ctx.DefaultSize
		if size > ctx.HeldQty {
			size = ctx.HeldQty
		}
		slog.Debug("risk approved", "side", portfolio.Sell, "symbol", ctx.Symbol, "size", size)
		return Approval{
			Side:     portfolio.Sell,
			Size:     size,
			Price:    ctx.Price,
			Notional: ctx.Price * size,
			Reason:   result.Rationale,
		}, nil
	}
}
