package collector

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"StockLens/internal/calculator"
	"StockLens/internal/config"
	"StockLens/internal/logger"
	"StockLens/internal/model"
	"StockLens/internal/store"
)

// Collector serves price series from the store and falls back to the
// remote provider on a miss, writing fetched rows back.
type Collector struct {
	Store     store.Store
	Fetcher   Fetcher
	Retry     RetryPolicy
	ChunkSize int
	Now       func() time.Time

	group   singleflight.Group
	mu      sync.Mutex
	flights map[string]*flight
	log     zerolog.Logger
}

// flight is one shared series load and the callers waiting on it. The load
// runs under its own context, cancelled once every waiter has gone.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewCollector creates a new Collector.
func NewCollector(st store.Store, fetcher Fetcher, cfg config.Fetch) *Collector {
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = 1000
	}
	return &Collector{
		Store:     st,
		Fetcher:   fetcher,
		Retry:     NewRetryPolicy(cfg),
		ChunkSize: chunk,
		Now:       time.Now,
		flights:   map[string]*flight{},
		log:       logger.Component("collector"),
	}
}

// GetSeries returns the daily series of symbol for the period token along
// with its 20/50/200-day moving averages. Concurrent identical requests
// share one load; a caller whose ctx ends stops waiting without cutting the
// load short for the others. Each caller gets its own copy of the series.
func (c *Collector) GetSeries(ctx context.Context, symbol, periodToken string) (*model.Series, error) {
	sym := store.NormalizeSymbol(symbol)
	if sym == "" {
		return nil, model.InvalidRequest("get series", symbol, "symbol is empty")
	}
	period := ParsePeriod(periodToken)
	key := sym + "|" + period.Token

	fl := c.join(ctx, key)
	ch := c.group.DoChan(key, func() (any, error) {
		return c.loadSeries(fl.ctx, sym, period)
	})

	select {
	case <-ctx.Done():
		c.leave(key, fl, true)
		return nil, model.FetchFailure("get series", sym, ctx.Err())
	case res := <-ch:
		c.leave(key, fl, false)
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.log.Debug().Str("symbol", sym).Str("period", period.Token).Msg("Shared in-flight series load")
		}
		return res.Val.(*model.Series).Clone(), nil
	}
}

func (c *Collector) join(ctx context.Context, key string) *flight {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flights == nil {
		c.flights = map[string]*flight{}
	}
	fl, ok := c.flights[key]
	if !ok {
		lctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		fl = &flight{ctx: lctx, cancel: cancel}
		c.flights[key] = fl
	}
	fl.waiters++
	return fl
}

// leave drops one waiter. The last waiter releases the flight; if it gave up
// early the load is cancelled and forgotten so later callers start afresh.
func (c *Collector) leave(key string, fl *flight, abandoned bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fl.waiters--
	if fl.waiters > 0 {
		return
	}
	fl.cancel()
	if c.flights[key] == fl {
		delete(c.flights, key)
	}
	if abandoned {
		c.group.Forget(key)
	}
}

func (c *Collector) loadSeries(ctx context.Context, sym string, period Period) (*model.Series, error) {
	now := c.Now()
	cutoff := period.Cutoff(now)
	l := c.log.With().Str("symbol", sym).Str("period", period.Token).Logger()

	inst, err := c.Store.GetOrCreateInstrument(ctx, sym)
	if err != nil {
		return nil, err
	}
	bars, err := c.Store.ReadBars(ctx, inst, cutoff)
	if err != nil {
		return nil, err
	}

	source := model.SourceCache
	if len(bars) > 0 {
		l.Debug().Int("bars", len(bars)).Time("cutoff", cutoff).Msg("Cache hit")
	} else {
		l.Info().Time("cutoff", cutoff).Str("provider", c.Fetcher.Name()).Msg("Cache miss, fetching from provider")
		bars, err = c.fetchAndStore(ctx, inst, period, cutoff, l)
		if err != nil {
			return nil, err
		}
		source = model.SourceRemote
	}

	series := &model.Series{
		Symbol:    sym,
		Period:    period.Token,
		Source:    source,
		Bars:      bars,
		FetchedAt: now,
	}
	calculator.ApplyMovingAverages(series)
	series.Summary = calculator.Summarize(bars)
	return series, nil
}

func (c *Collector) fetchAndStore(ctx context.Context, inst *model.Instrument, period Period, cutoff time.Time, l zerolog.Logger) ([]model.PriceBar, error) {
	sym := inst.Symbol

	var rows []model.RawBar
	attempts, err := c.Retry.Do(ctx, l, func(ctx context.Context) error {
		got, err := c.Fetcher.FetchHistory(ctx, sym, period)
		if err != nil {
			return err
		}
		if len(got) == 0 {
			return errEmptyResult
		}
		rows = got
		return nil
	})
	if err != nil {
		l.Error().Err(err).Int("attempts", attempts).Msg("Fetch failed")
		return nil, model.FetchFailure("fetch history", sym, fmt.Errorf("after %d attempts: %w", attempts, err))
	}

	if err := validateHistory(rows); err != nil {
		l.Error().Err(err).Int("rows", len(rows)).Msg("Provider returned malformed history")
		return nil, model.ValidationFailure("fetch history", sym, err)
	}

	var total store.WriteResult
	for start := 0; start < len(rows); start += c.ChunkSize {
		end := min(start+c.ChunkSize, len(rows))
		res, err := c.Store.WriteBars(ctx, sym, rows[start:end])
		if err != nil {
			l.Error().Err(err).Int("chunk_start", start).Msg("Write-back failed")
			return nil, err
		}
		total.Add(res)
	}
	l.Info().
		Int("rows", len(rows)).
		Int("inserted", total.Inserted).
		Int("duplicates", total.Duplicates).
		Int("skipped", total.Skipped).
		Int("attempts", attempts).
		Msg("Fetched and stored history")

	// the provider's range can reach past the cutoff; serve the same window a hit would
	return barsSince(canonicalBars(inst, rows), cutoff), nil
}

// barsSince drops ascending bars dated before the calendar day of cutoff.
func barsSince(bars []model.PriceBar, cutoff time.Time) []model.PriceBar {
	day := model.TradingDay(cutoff)
	i := sort.Search(len(bars), func(i int) bool { return !bars[i].Date.Before(day) })
	return bars[i:]
}

// canonicalBars converts fetched rows into ascending bars, one per day.
// Rows the store rejected are left out here as well.
func canonicalBars(inst *model.Instrument, rows []model.RawBar) []model.PriceBar {
	bars := make([]model.PriceBar, 0, len(rows))
	for _, r := range rows {
		b, err := r.Canonical(inst.ID)
		if err != nil {
			continue
		}
		bars = append(bars, b)
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	out := bars[:0]
	for i, b := range bars {
		if i > 0 && b.Date.Equal(out[len(out)-1].Date) {
			continue
		}
		out = append(out, b)
	}
	return out
}
