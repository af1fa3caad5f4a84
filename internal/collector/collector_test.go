package collector

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockLens/internal/config"
	"StockLens/internal/model"
	"StockLens/internal/store"
)

var testNow = time.Date(2024, 6, 14, 20, 0, 0, 0, time.UTC)

func fp(v float64) *float64 { return &v }

// dailyRows returns n complete rows on consecutive days ending at testNow.
func dailyRows(n int) []model.RawBar {
	rows := make([]model.RawBar, 0, n)
	for i := n - 1; i >= 0; i-- {
		c := 100 + float64(n-i)
		rows = append(rows, model.RawBar{
			Date:   model.TradingDay(testNow).AddDate(0, 0, -i).Add(13*time.Hour + 30*time.Minute),
			Open:   fp(c - 0.5),
			High:   fp(c + 1),
			Low:    fp(c - 1),
			Close:  fp(c),
			Volume: fp(5000),
		})
	}
	return rows
}

func testFetchConfig() config.Fetch {
	return config.Fetch{MaxAttempts: 3, RetryDelay: time.Millisecond, ChunkSize: 7}
}

func newTestCollector(t *testing.T, f Fetcher) (*Collector, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	c := NewCollector(st, f, testFetchConfig())
	c.Now = func() time.Time { return testNow }
	return c, st
}

func TestGetSeries_MissFetchesAndWritesThrough(t *testing.T) {
	mock := &MockFetcher{Bars: dailyRows(30)}
	c, st := newTestCollector(t, mock)
	ctx := context.Background()

	series, err := c.GetSeries(ctx, " aapl", "1mo")
	require.NoError(t, err)
	assert.Equal(t, model.SourceRemote, series.Source)
	assert.Equal(t, "AAPL", series.Symbol)
	assert.Equal(t, "1mo", series.Period)
	assert.Equal(t, 30, series.Len())
	assert.Equal(t, 1, mock.HistoryCalls())

	require.Len(t, series.MA20, 30)
	assert.Nil(t, series.MA20[18])
	require.NotNil(t, series.MA20[19])
	assert.InDelta(t, 110.5, *series.MA20[19], 1e-9)
	for _, v := range series.MA200 {
		assert.Nil(t, v)
	}

	inst, err := st.GetOrCreateInstrument(ctx, "AAPL")
	require.NoError(t, err)
	stored, err := st.ReadBars(ctx, inst, ParsePeriod("1mo").Cutoff(testNow))
	require.NoError(t, err)
	assert.Len(t, stored, 30)

	again, err := c.GetSeries(ctx, "AAPL", "1mo")
	require.NoError(t, err)
	assert.Equal(t, model.SourceCache, again.Source)
	assert.Equal(t, 30, again.Len())
	assert.Equal(t, 1, mock.HistoryCalls(), "second request is served from the store")
	assert.Equal(t, series.Summary, again.Summary)
}

func TestGetSeries_CacheHitNeverFetches(t *testing.T) {
	mock := &MockFetcher{}
	c, st := newTestCollector(t, mock)
	ctx := context.Background()

	_, err := st.WriteBars(ctx, "MSFT", dailyRows(5))
	require.NoError(t, err)

	series, err := c.GetSeries(ctx, "msft", "1mo")
	require.NoError(t, err)
	assert.Equal(t, model.SourceCache, series.Source)
	assert.Equal(t, 5, series.Len())
	assert.Equal(t, 0, mock.HistoryCalls())
	assert.InDelta(t, 105.0, series.Summary.Last, 1e-9)
}

func TestGetSeries_RetriesThenSucceeds(t *testing.T) {
	boom := errors.New("connection reset")
	mock := &MockFetcher{Bars: dailyRows(3), HistoryErrs: []error{boom, boom}}
	c, _ := newTestCollector(t, mock)

	var delays []time.Duration
	c.Retry.notify = func(_ error, wait time.Duration) { delays = append(delays, wait) }

	series, err := c.GetSeries(context.Background(), "IBM", "1mo")
	require.NoError(t, err)
	assert.Equal(t, 3, series.Len())
	assert.Equal(t, 3, mock.HistoryCalls())
	assert.Len(t, delays, 2)
}

func TestGetSeries_FetchErrorAfterBudget(t *testing.T) {
	boom := errors.New("503 service unavailable")
	mock := &MockFetcher{HistoryErrs: []error{boom, boom, boom, boom}}
	c, st := newTestCollector(t, mock)

	_, err := c.GetSeries(context.Background(), "ORCL", "1y")
	require.Error(t, err)
	assert.True(t, model.IsFetch(err))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "ORCL")
	assert.Equal(t, 3, mock.HistoryCalls())

	inst, err := st.GetOrCreateInstrument(context.Background(), "ORCL")
	require.NoError(t, err)
	bars, err := st.ReadBars(context.Background(), inst, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestGetSeries_EmptyResultIsRetried(t *testing.T) {
	mock := &MockFetcher{Bars: []model.RawBar{}}
	c, _ := newTestCollector(t, mock)

	_, err := c.GetSeries(context.Background(), "EMPTY", "1y")
	assert.True(t, model.IsFetch(err))
	assert.Equal(t, 3, mock.HistoryCalls())
}

func TestGetSeries_ValidationIsNotRetried(t *testing.T) {
	rows := dailyRows(3)
	rows[1].Volume = nil
	mock := &MockFetcher{Bars: rows}
	c, st := newTestCollector(t, mock)

	_, err := c.GetSeries(context.Background(), "BAD", "1mo")
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
	assert.False(t, model.IsFetch(err))
	assert.Contains(t, err.Error(), "volume")
	assert.Equal(t, 1, mock.HistoryCalls())

	inst, err := st.GetOrCreateInstrument(context.Background(), "BAD")
	require.NoError(t, err)
	bars, err := st.ReadBars(context.Background(), inst, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, bars, "nothing is persisted from a malformed response")
}

func TestGetSeries_UnknownPeriodBehavesAsOneYear(t *testing.T) {
	mock := &MockFetcher{Price: 50}
	c, _ := newTestCollector(t, mock)

	assert.Equal(t, ParsePeriod("1y"), ParsePeriod("7y"))
	assert.Equal(t, ParsePeriod("1y").Cutoff(testNow), ParsePeriod("7y").Cutoff(testNow))

	series, err := c.GetSeries(context.Background(), "SPY", "7y")
	require.NoError(t, err)
	assert.Equal(t, "1y", series.Period)
	assert.Equal(t, 365, series.Len())
	require.NotNil(t, series.MA200[364])
}

func TestGetSeries_BlankSymbol(t *testing.T) {
	mock := &MockFetcher{}
	c, _ := newTestCollector(t, mock)

	_, err := c.GetSeries(context.Background(), "   ", "1y")
	assert.True(t, model.IsInvalidRequest(err))
	assert.Equal(t, 0, mock.HistoryCalls())
}

type failingWriteStore struct {
	*store.NoopStore
}

func (failingWriteStore) WriteBars(_ context.Context, symbol string, _ []model.RawBar) (store.WriteResult, error) {
	return store.WriteResult{}, model.StorageFailure("write bars", symbol, errors.New("disk full"))
}

func TestGetSeries_WriteBackFailureSurfaces(t *testing.T) {
	mock := &MockFetcher{Bars: dailyRows(3)}
	c := NewCollector(failingWriteStore{store.NewNoopStore()}, mock, testFetchConfig())
	c.Now = func() time.Time { return testNow }

	_, err := c.GetSeries(context.Background(), "AMZN", "1mo")
	assert.True(t, model.IsStorage(err))
	assert.Equal(t, 1, mock.HistoryCalls(), "storage errors are not retried")
}

func TestGetSeries_ContextCancelledDuringBackoff(t *testing.T) {
	boom := errors.New("timeout")
	mock := &MockFetcher{HistoryErrs: []error{boom, boom, boom}}
	c, _ := newTestCollector(t, mock)
	c.Retry.Delay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	_, err := c.GetSeries(ctx, "NFLX", "1y")
	assert.True(t, model.IsFetch(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, 1, mock.HistoryCalls())
}

func TestGetSeries_ConcurrentMissesFetchOnce(t *testing.T) {
	mock := &MockFetcher{Bars: dailyRows(10)}
	c, _ := newTestCollector(t, mock)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := c.GetSeries(context.Background(), "GOOG", "1mo")
			if assert.NoError(t, err) {
				assert.Equal(t, 10, s.Len())
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, mock.HistoryCalls())
}

func TestGetSeries_MissServesSameWindowAsHit(t *testing.T) {
	mock := &MockFetcher{Bars: dailyRows(35)}
	c, _ := newTestCollector(t, mock)
	ctx := context.Background()

	miss, err := c.GetSeries(ctx, "AAPL", "1mo")
	require.NoError(t, err)
	require.Equal(t, model.SourceRemote, miss.Source)

	hit, err := c.GetSeries(ctx, "AAPL", "1mo")
	require.NoError(t, err)
	require.Equal(t, model.SourceCache, hit.Source)

	require.Equal(t, 31, miss.Len())
	require.Equal(t, hit.Len(), miss.Len())
	assert.Equal(t, hit.Bars[0].Date, miss.Bars[0].Date)
	assert.Equal(t, "2024-05-15", miss.Bars[0].Date.Format(time.DateOnly))
	assert.Equal(t, hit.MA20, miss.MA20)
	assert.Equal(t, hit.Summary, miss.Summary)
}

func TestGetSeries_CancelledCallerDoesNotFailOthers(t *testing.T) {
	boom := errors.New("connection reset")
	mock := &MockFetcher{Bars: dailyRows(3), HistoryErrs: []error{boom, boom}}
	c, _ := newTestCollector(t, mock)
	c.Retry.Delay = 50 * time.Millisecond

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.GetSeries(leaderCtx, "X", "1y")
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return mock.HistoryCalls() == 1 }, time.Second, time.Millisecond)

	type result struct {
		series *model.Series
		err    error
	}
	follower := make(chan result, 1)
	go func() {
		s, err := c.GetSeries(context.Background(), "X", "1y")
		follower <- result{s, err}
	}()
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		fl := c.flights["X|1y"]
		return fl != nil && fl.waiters == 2
	}, time.Second, time.Millisecond)

	cancel()
	err := <-leaderErr
	assert.ErrorIs(t, err, context.Canceled)

	res := <-follower
	require.NoError(t, res.err)
	assert.Equal(t, 3, res.series.Len())
	assert.Equal(t, 3, mock.HistoryCalls())
}

func TestGetSeries_CallersGetIndependentCopies(t *testing.T) {
	mock := &MockFetcher{Bars: dailyRows(25)}
	c, _ := newTestCollector(t, mock)
	ctx := context.Background()

	a, err := c.GetSeries(ctx, "META", "1mo")
	require.NoError(t, err)
	a.Bars[0].Close = -1
	*a.MA20[24] = -1

	b, err := c.GetSeries(ctx, "META", "1mo")
	require.NoError(t, err)
	assert.NotEqual(t, -1.0, b.Bars[0].Close)
	assert.NotEqual(t, -1.0, *b.MA20[24])
}

func TestBarsSince(t *testing.T) {
	inst := &model.Instrument{Symbol: "X"}
	bars := canonicalBars(inst, dailyRows(5))
	got := barsSince(bars, testNow.AddDate(0, 0, -2))
	require.Len(t, got, 3)
	assert.Equal(t, model.TradingDay(testNow).AddDate(0, 0, -2), got[0].Date)
	assert.Empty(t, barsSince(bars, testNow.AddDate(0, 0, 1)))
	assert.Len(t, barsSince(bars, time.Time{}), 5)
}

func TestCanonicalBars_SortsAndDedupes(t *testing.T) {
	rows := dailyRows(3)
	dup := rows[1]
	dup.Close = fp(999)
	bad := rows[0]
	bad.Close = nil
	in := []model.RawBar{rows[2], rows[1], dup, rows[0], bad}

	inst := &model.Instrument{Symbol: "X"}
	bars := canonicalBars(inst, in)
	require.Len(t, bars, 3)
	assert.True(t, bars[0].Date.Before(bars[1].Date))
	assert.True(t, bars[1].Date.Before(bars[2].Date))
	assert.Equal(t, *rows[1].Close, bars[1].Close)
}
