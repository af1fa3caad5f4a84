package calculator

import (
	"errors"
	"math"

	"StockLens/internal/model"
)

// PeriodRange scans all bars and returns the highest high and lowest low.
func PeriodRange(bars []model.PriceBar) (high, low float64, err error) {
	if len(bars) == 0 {
		return 0, 0, errors.New("no bars provided")
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for _, b := range bars {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	return high, low, nil
}

// RangePosition returns where the current price sits within [low, high] (0.0~1.0).
func RangePosition(current, high, low float64) (float64, error) {
	if high == low {
		return 0.5, nil
	}
	if high < low {
		return 0, errors.New("high must be >= low")
	}
	pos := (current - low) / (high - low)
	if pos < 0 {
		pos = 0
	}
	if pos > 1 {
		pos = 1
	}
	return pos, nil
}

// ChangePercent returns (current-previous)/previous*100, or 0 when previous is 0.
func ChangePercent(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return (current - previous) / previous * 100
}

// Summarize computes the period statistics of bars. An empty slice yields a zero summary.
func Summarize(bars []model.PriceBar) model.SeriesSummary {
	if len(bars) == 0 {
		return model.SeriesSummary{}
	}
	first := bars[0].Close
	last := bars[len(bars)-1].Close
	sum := model.SeriesSummary{
		First:         first,
		Last:          last,
		ChangePercent: ChangePercent(last, first),
	}
	high, low, err := PeriodRange(bars)
	if err != nil {
		return sum
	}
	sum.High, sum.Low = high, low
	if pos, err := RangePosition(last, high, low); err == nil {
		sum.RangePosition = pos
	}
	return sum
}
