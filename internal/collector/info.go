package collector

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"StockLens/internal/calculator"
	"StockLens/internal/config"
	"StockLens/internal/logger"
	"StockLens/internal/model"
	"StockLens/internal/store"
)

// RequiredInfoFields are always present in GetInfo results.
var RequiredInfoFields = []string{
	"longName",
	"currentPrice",
	"previousClose",
	"marketCap",
	"peRatio",
	"fiftyTwoWeekLow",
	"fiftyTwoWeekHigh",
	"volume",
	"averageVolume10days",
	"beta",
	"dayLow",
	"dayHigh",
	"totalRevenue",
	"profitMargins",
	"operatingMargins",
	"returnOnEquity",
}

// InfoFetcher retrieves instrument metadata straight from the provider. Nothing is cached.
type InfoFetcher struct {
	Fetcher Fetcher
	Retry   RetryPolicy

	log zerolog.Logger
}

// NewInfoFetcher creates a new InfoFetcher.
func NewInfoFetcher(fetcher Fetcher, cfg config.Fetch) *InfoFetcher {
	return &InfoFetcher{
		Fetcher: fetcher,
		Retry:   NewRetryPolicy(cfg),
		log:     logger.Component("info"),
	}
}

// GetInfo returns the metadata of symbol with every required field filled
// and the derived dayChange percentage.
func (f *InfoFetcher) GetInfo(ctx context.Context, symbol string) (model.Info, error) {
	sym := store.NormalizeSymbol(symbol)
	if sym == "" {
		return nil, model.InvalidRequest("get info", symbol, "symbol is empty")
	}
	l := f.log.With().Str("symbol", sym).Str("provider", f.Fetcher.Name()).Logger()

	var info model.Info
	attempts, err := f.Retry.Do(ctx, l, func(ctx context.Context) error {
		got, err := f.Fetcher.FetchInfo(ctx, sym)
		if err != nil {
			return err
		}
		if len(got) == 0 {
			return errEmptyResult
		}
		info = got
		return nil
	})
	if err != nil {
		l.Error().Err(err).Int("attempts", attempts).Msg("Info fetch failed")
		return nil, model.FetchFailure("fetch info", sym, fmt.Errorf("after %d attempts: %w", attempts, err))
	}

	fillInfoDefaults(info, sym)
	info["dayChange"] = calculator.ChangePercent(info.Float("currentPrice"), info.Float("previousClose"))

	l.Debug().Int("fields", len(info)).Int("attempts", attempts).Msg("Info fetched")
	return info, nil
}

func fillInfoDefaults(info model.Info, symbol string) {
	for _, key := range RequiredInfoFields {
		if key == "longName" {
			if info.String(key) == "" {
				info[key] = symbol
			}
			continue
		}
		if !info.Has(key) {
			info[key] = 0.0
		}
	}
}
