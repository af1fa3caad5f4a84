package calculator

import (
	"errors"

	"StockLens/internal/model"
)

// Moving average windows carried by every Series.
const (
	ShortWindow  = 20
	MediumWindow = 50
	LongWindow   = 200
)

// CalculateSMA computes the simple moving average of the given prices over the specified period.
func CalculateSMA(prices []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(prices) < period {
		return 0, errors.New("not enough data for SMA calculation")
	}
	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += prices[i]
	}
	return sum / float64(period), nil
}

// MovingAverage returns the trailing simple moving average at every position of prices.
// Positions before the window fills are nil.
func MovingAverage(prices []float64, period int) []*float64 {
	out := make([]*float64, len(prices))
	if period <= 0 {
		return out
	}
	sum := 0.0
	for i, p := range prices {
		sum += p
		if i >= period {
			sum -= prices[i-period]
		}
		if i >= period-1 {
			avg := sum / float64(period)
			out[i] = &avg
		}
	}
	return out
}

// ApplyMovingAverages fills the 20/50/200 averages of s from its closes.
func ApplyMovingAverages(s *model.Series) {
	closes := Closes(s.Bars)
	s.MA20 = MovingAverage(closes, ShortWindow)
	s.MA50 = MovingAverage(closes, MediumWindow)
	s.MA200 = MovingAverage(closes, LongWindow)
}

// Closes extracts the close prices of bars in order.
func Closes(bars []model.PriceBar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}
