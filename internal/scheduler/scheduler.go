package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"StockLens/internal/config"
	"StockLens/internal/logger"
	"StockLens/internal/model"
)

// SeriesGetter loads a series through the cache.
type SeriesGetter interface {
	GetSeries(ctx context.Context, symbol, period string) (*model.Series, error)
}

// WatchlistReader lists the instruments a user follows.
type WatchlistReader interface {
	Watchlist(ctx context.Context, email string) ([]model.Instrument, error)
}

// WarmResult summarizes one warm run.
type WarmResult struct {
	Symbols  int
	Fetched  int // loaded from the provider and written back
	Cached   int // already in the store
	Failures map[string]error
	Duration time.Duration
}

// FailedSymbols returns the failed symbols in order.
func (r WarmResult) FailedSymbols() []string {
	out := make([]string, 0, len(r.Failures))
	for sym := range r.Failures {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Scheduler keeps the series of a user's watchlist warm on a cron schedule.
type Scheduler struct {
	Cron        *cron.Cron
	Series      SeriesGetter
	Watchlist   WatchlistReader
	User        string
	Period      string
	Concurrency int
	Ctx         context.Context

	log zerolog.Logger
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, series SeriesGetter, wl WatchlistReader, cfg config.Warm) *Scheduler {
	l := logger.Component("scheduler")
	cl := cronLogger{log: l}
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		Series:      series,
		Watchlist:   wl,
		User:        cfg.User,
		Period:      cfg.Period,
		Concurrency: cfg.Concurrency,
		Ctx:         ctx,
		log:         l,
	}
}

// Register adds the warm job under the given cron spec (with seconds field).
func (s *Scheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.warmTask); err != nil {
		return fmt.Errorf("register warm task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info().Str("user", s.User).Str("period", s.Period).Msg("Scheduler started")
}

// Stop stops the cron scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) warmTask() {
	res, err := s.RunNow(s.Ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Warm run failed")
		return
	}
	ev := s.log.Info()
	if len(res.Failures) > 0 {
		ev = s.log.Warn().Strs("failed", res.FailedSymbols())
	}
	ev.Int("symbols", res.Symbols).
		Int("fetched", res.Fetched).
		Int("cached", res.Cached).
		Dur("took", res.Duration).
		Msg("Warm run finished")
}

// RunNow loads every watchlist symbol once. A failing symbol is recorded
// and does not stop the others.
func (s *Scheduler) RunNow(ctx context.Context) (WarmResult, error) {
	start := time.Now()
	res := WarmResult{Failures: map[string]error{}}
	if s.User == "" {
		return res, fmt.Errorf("warm: no watchlist user configured")
	}

	instruments, err := s.Watchlist.Watchlist(ctx, s.User)
	if err != nil {
		return res, fmt.Errorf("warm: load watchlist: %w", err)
	}
	res.Symbols = len(instruments)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(max(s.Concurrency, 1))
	for _, inst := range instruments {
		sym := inst.Symbol
		g.Go(func() error {
			series, err := s.Series.GetSeries(ctx, sym, s.Period)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				s.log.Warn().Err(err).Str("symbol", sym).Msg("Warm failed for symbol")
				res.Failures[sym] = err
			case series.Source == model.SourceRemote:
				res.Fetched++
			default:
				res.Cached++
			}
			return nil
		})
	}
	g.Wait()

	res.Duration = time.Since(start)
	return res, nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
