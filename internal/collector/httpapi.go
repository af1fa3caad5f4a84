package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"StockLens/internal/model"
)

// HTTPFetcher implements Fetcher against a JSON bar service with bearer auth.
type HTTPFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPFetcher creates a new fetcher with optional proxy support.
func NewHTTPFetcher(baseURL, apiKey, proxyURL string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  newHTTPClient(proxyURL, timeout),
	}
}

func (f *HTTPFetcher) Name() string { return "http" }

// apiBar is the expected JSON shape from the bar service. Absent or null
// values decode to nil.
type apiBar struct {
	Timestamp int64    `json:"timestamp"`
	Open      *float64 `json:"open"`
	High      *float64 `json:"high"`
	Low       *float64 `json:"low"`
	Close     *float64 `json:"close"`
	Volume    *float64 `json:"volume"`
}

func (f *HTTPFetcher) FetchHistory(ctx context.Context, symbol string, period Period) ([]model.RawBar, error) {
	endpoint := fmt.Sprintf("%s/api/v1/bars/daily?symbol=%s&limit=%d",
		f.BaseURL, url.QueryEscape(symbol), period.Days)

	var apiBars []apiBar
	if err := f.getJSON(ctx, endpoint, &apiBars); err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}
	rows := make([]model.RawBar, len(apiBars))
	for i, b := range apiBars {
		rows[i] = model.RawBar{
			Date:   time.Unix(b.Timestamp, 0).UTC(),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
	}
	// Ensure chronological order
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	return rows, nil
}

func (f *HTTPFetcher) FetchInfo(ctx context.Context, symbol string) (model.Info, error) {
	endpoint := fmt.Sprintf("%s/api/v1/info?symbol=%s", f.BaseURL, url.QueryEscape(symbol))

	var info model.Info
	if err := f.getJSON(ctx, endpoint, &info); err != nil {
		return nil, fmt.Errorf("fetch info: %w", err)
	}
	return info, nil
}

func (f *HTTPFetcher) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
