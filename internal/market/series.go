package market

import (
	"errors"
	"time"
)

type PricePoint struct {
	Time  time.Time
	Price float64
}

// Series is a fixed-capacity, insertion-ordered price history. Once full,
// every Add evicts the oldest point.
type Series struct {
	points []PricePoint
	size   int
	index  int
	filled bool
}

func NewSeries(size int) *Series {
	if size <= 0 {
		size = 1
	}
	return &Series{
		points: make([]PricePoint, size),
		size:   size,
	}
}

func (s *Series) Add(point PricePoint) {
	s.points[s.index] = point
	s.index = (s.index + 1) % s.size
	if s.index == 0 {
		s.filled = true
	}
}

func (s *Series) Len() int {
	if s.filled {
		return s.size
	}
	return s.index
}

func (s *Series) Cap() int {
	return s.size
}

// Points returns the retained points oldest first.
func (s *Series) Points() []PricePoint {
	length := s.Len()
	result := make([]PricePoint, 0, length)
	if length == 0 {
		return result
	}
	if s.filled {
		result = append(result, s.points[s.index:]...)
	}
	result = append(result, s.points[:s.index]...)
	return result
}

func (s *Series) Prices() []float64 {
	points := s.Points()
	prices := make([]float64, len(points))
	for i, p := range points {
		prices[i] = p.Price
	}
	return prices
}

func (s *Series) Last() (PricePoint, bool) {
	if s.Len() == 0 {
		return PricePoint{}, false
	}
	last := s.index - 1
	if last < 0 {
		last = s.size - 1
	}
	return s.points[last], true
}

func (s *Series) SMA(window int) (float64, error) {
	return SMA(s.Prices(), window)
}

func SMA(values []float64, window int) (float64, error) {
	if window <= 0 {
		return 0, errors.New("window must be positive")
	}
	if len(values) < window {
		return 0, errors.New("not enough data for SMA")
	}
	start := len(values) - window
	sum := 0.0
	for _, v := range values[start:] {
		sum += v
	}
	return sum / float64(window), nil
}

// RSI computes the Wilder-smoothed relative strength index. It returns 50
// when there are fewer than period+1 values.
func RSI(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(values) < period+1 {
		return 50, nil
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100, nil
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}
