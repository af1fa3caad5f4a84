package collector

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"StockLens/internal/config"
	"StockLens/internal/model"
)

// Fetcher defines the interface for fetching market data from a remote provider.
type Fetcher interface {
	// FetchHistory returns daily rows for the period in any order. Missing values stay nil.
	FetchHistory(ctx context.Context, symbol string, period Period) ([]model.RawBar, error)
	// FetchInfo returns the provider's descriptive and statistical fields for symbol.
	FetchInfo(ctx context.Context, symbol string) (model.Info, error)
	Name() string
}

// NewFetcher selects the provider from cfg: "mock" for offline runs,
// any other base URL for the JSON bar service, Yahoo Finance otherwise.
func NewFetcher(cfg config.Provider) Fetcher {
	switch cfg.BaseURL {
	case "":
		return NewYahooFetcher(cfg.Proxy, cfg.Timeout)
	case "mock":
		return &MockFetcher{Price: 100}
	default:
		return NewHTTPFetcher(cfg.BaseURL, cfg.APIKey, cfg.Proxy, cfg.Timeout)
	}
}

func newHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
