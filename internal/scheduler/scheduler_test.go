package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockLens/internal/config"
	"StockLens/internal/model"
)

type fakeSeries struct {
	mu       sync.Mutex
	calls    map[string]string
	inFlight int32
	peak     int32
	fail     map[string]error
	cached   map[string]bool
}

func (f *fakeSeries) GetSeries(_ context.Context, symbol, period string) (*model.Series, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls[symbol] = period
	f.mu.Unlock()

	if err := f.fail[symbol]; err != nil {
		return nil, err
	}
	src := model.SourceRemote
	if f.cached[symbol] {
		src = model.SourceCache
	}
	return &model.Series{Symbol: symbol, Period: period, Source: src}, nil
}

type fakeWatchlist struct {
	symbols []string
	err     error
}

func (w fakeWatchlist) Watchlist(_ context.Context, _ string) ([]model.Instrument, error) {
	out := make([]model.Instrument, len(w.symbols))
	for i, s := range w.symbols {
		out[i] = model.Instrument{Symbol: s}
	}
	return out, w.err
}

func TestRunNow(t *testing.T) {
	series := &fakeSeries{
		calls:  map[string]string{},
		fail:   map[string]error{"BAD": errors.New("provider down")},
		cached: map[string]bool{"MSFT": true},
	}
	wl := fakeWatchlist{symbols: []string{"AAPL", "MSFT", "BAD", "TSLA", "NVDA"}}
	s := NewScheduler(context.Background(), series, wl, config.Warm{User: "me@example.com", Period: "6mo", Concurrency: 2})

	res, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Symbols)
	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 1, res.Cached)
	assert.Equal(t, []string{"BAD"}, res.FailedSymbols())

	assert.Len(t, series.calls, 5)
	for _, period := range series.calls {
		assert.Equal(t, "6mo", period)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&series.peak), int32(2))
}

func TestRunNow_RequiresUser(t *testing.T) {
	s := NewScheduler(context.Background(), &fakeSeries{calls: map[string]string{}}, fakeWatchlist{}, config.Warm{Concurrency: 1})
	_, err := s.RunNow(context.Background())
	assert.Error(t, err)
}

func TestRunNow_WatchlistError(t *testing.T) {
	wl := fakeWatchlist{err: model.StorageFailure("watchlist", "", errors.New("locked"))}
	s := NewScheduler(context.Background(), &fakeSeries{calls: map[string]string{}}, wl, config.Warm{User: "me@example.com"})
	_, err := s.RunNow(context.Background())
	require.Error(t, err)
	assert.True(t, model.IsStorage(err))
}

func TestRegister(t *testing.T) {
	s := NewScheduler(context.Background(), &fakeSeries{calls: map[string]string{}}, fakeWatchlist{}, config.Warm{})
	require.NoError(t, s.Register("0 30 22 * * 1-5"))
	assert.Len(t, s.Cron.Entries(), 1)
	assert.Error(t, s.Register("not a cron spec"))

	s.Start()
	s.Stop()
}
