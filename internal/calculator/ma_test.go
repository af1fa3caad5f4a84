package calculator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockLens/internal/model"
)

func TestMovingAverage_TrailingWindow(t *testing.T) {
	ma := MovingAverage([]float64{1, 2, 3, 4, 5}, 3)
	require.Len(t, ma, 5)
	assert.Nil(t, ma[0])
	assert.Nil(t, ma[1])
	require.NotNil(t, ma[2])
	assert.InDelta(t, 2.0, *ma[2], 1e-9)
	assert.InDelta(t, 3.0, *ma[3], 1e-9)
	assert.InDelta(t, 4.0, *ma[4], 1e-9)
}

func TestMovingAverage_ShortSeries(t *testing.T) {
	ma := MovingAverage([]float64{10, 11}, 20)
	require.Len(t, ma, 2)
	assert.Nil(t, ma[0])
	assert.Nil(t, ma[1])

	assert.Empty(t, MovingAverage(nil, 5))
	assert.Equal(t, []*float64{nil, nil}, MovingAverage([]float64{1, 2}, 0))
}

func TestMovingAverage_MatchesSMA(t *testing.T) {
	prices := make([]float64, 250)
	for i := range prices {
		prices[i] = 100 + float64(i%17) - float64(i%5)*0.5
	}
	ma := MovingAverage(prices, LongWindow)
	for i := LongWindow - 1; i < len(prices); i++ {
		want, err := CalculateSMA(prices[:i+1], LongWindow)
		require.NoError(t, err)
		require.NotNil(t, ma[i])
		assert.InDelta(t, want, *ma[i], 1e-9, "position %d", i)
	}
	assert.Nil(t, ma[LongWindow-2])
}

func TestCalculateSMA_Errors(t *testing.T) {
	_, err := CalculateSMA([]float64{1, 2}, 0)
	assert.Error(t, err)
	_, err = CalculateSMA([]float64{1, 2}, 3)
	assert.Error(t, err)
}

func TestApplyMovingAverages(t *testing.T) {
	bars := make([]model.PriceBar, 60)
	for i := range bars {
		bars[i] = model.PriceBar{Close: float64(i + 1)}
	}
	s := &model.Series{Bars: bars}
	ApplyMovingAverages(s)

	require.Len(t, s.MA20, 60)
	require.Len(t, s.MA50, 60)
	require.Len(t, s.MA200, 60)
	assert.Nil(t, s.MA20[18])
	assert.InDelta(t, 10.5, *s.MA20[19], 1e-9)
	assert.InDelta(t, 25.5, *s.MA50[49], 1e-9)
	for _, v := range s.MA200 {
		assert.Nil(t, v)
	}
}
