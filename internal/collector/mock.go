package collector

import (
	"context"
	"sync"
	"time"

	"StockLens/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
// Scripted errors are returned one per call, in order, before any success.
type MockFetcher struct {
	Price       float64
	Bars        []model.RawBar
	Info        model.Info
	HistoryErrs []error
	InfoErrs    []error

	mu           sync.Mutex
	historyCalls int
	infoCalls    int
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchHistory(ctx context.Context, _ string, period Period) ([]model.RawBar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historyCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n := m.historyCalls - 1; n < len(m.HistoryErrs) && m.HistoryErrs[n] != nil {
		return nil, m.HistoryErrs[n]
	}
	if m.Bars != nil {
		return m.Bars, nil
	}
	return generateMockBars(m.Price, period.Days), nil
}

func (m *MockFetcher) FetchInfo(ctx context.Context, symbol string) (model.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n := m.infoCalls - 1; n < len(m.InfoErrs) && m.InfoErrs[n] != nil {
		return nil, m.InfoErrs[n]
	}
	if m.Info != nil {
		out := make(model.Info, len(m.Info))
		for k, v := range m.Info {
			out[k] = v
		}
		return out, nil
	}
	return model.Info{
		"longName":      symbol + " Mock Corp",
		"currentPrice":  m.Price,
		"previousClose": m.Price,
	}, nil
}

// HistoryCalls returns how many times FetchHistory was called.
func (m *MockFetcher) HistoryCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.historyCalls
}

// InfoCalls returns how many times FetchInfo was called.
func (m *MockFetcher) InfoCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.infoCalls
}

func generateMockBars(basePrice float64, days int) []model.RawBar {
	end := model.TradingDay(time.Now())
	bars := make([]model.RawBar, 0, days)
	for i := days - 1; i >= 0; i-- {
		p := basePrice * (1 + float64(days/2-i)*0.001)
		o, h, l, c, v := p*0.999, p*1.005, p*0.995, p, 1000000.0
		bars = append(bars, model.RawBar{
			Date:   end.AddDate(0, 0, -i),
			Open:   &o,
			High:   &h,
			Low:    &l,
			Close:  &c,
			Volume: &v,
		})
	}
	return bars
}
