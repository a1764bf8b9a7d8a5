package market

import "math"

// Rand is the random source behind price synthesis. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// Synthesizer produces the next price of a stochastic walk:
//
//	next = max(minPrice, last + last*(volatility+bias)*u)
//
// where u is uniform on [-0.5, 0.5) and bias = (sentiment-50)/neutralK.
// It is not safe for concurrent use; Board serializes calls.
type Synthesizer struct {
	rng      Rand
	neutralK float64
	minPrice float64
}

type SynthConfig struct {
	// NeutralK scales sentiment into a drift term; larger values damp it.
	NeutralK float64
	MinPrice float64
}

func NewSynthesizer(rng Rand, cfg SynthConfig) *Synthesizer {
	if cfg.NeutralK == 0 {
		cfg.NeutralK = 1500
	}
	if cfg.MinPrice <= 0 {
		cfg.MinPrice = 0.01
	}
	return &Synthesizer{rng: rng, neutralK: cfg.NeutralK, minPrice: cfg.MinPrice}
}

func (s *Synthesizer) Bias(sentiment float64) float64 {
	return (sentiment - 50) / s.neutralK
}

func (s *Synthesizer) Next(last, volatility, sentiment float64) float64 {
	u := s.rng.Float64() - 0.5
	next := last + last*(volatility+s.Bias(sentiment))*u
	if math.IsNaN(next) || next < s.minPrice {
		return s.minPrice
	}
	return next
}
