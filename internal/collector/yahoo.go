package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"StockLens/internal/model"
)

const (
	yahooBaseURL   = "https://query1.finance.yahoo.com"
	yahooCookieURL = "https://fc.yahoo.com"
	yahooUserAgent = "Mozilla/5.0"
)

// quoteSummary modules in lookup order; the first module carrying a key wins.
var yahooInfoModules = []string{"summaryDetail", "financialData", "defaultKeyStatistics", "price", "assetProfile"}

// YahooFetcher implements Fetcher using Yahoo Finance public API.
type YahooFetcher struct {
	Client    *http.Client
	BaseURL   string
	CookieURL string            // primes the session cookie before a crumb request; empty skips it
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker

	mu    sync.Mutex
	crumb string
}

// NewYahooFetcher creates a new Yahoo Finance fetcher.
func NewYahooFetcher(proxyURL string, timeout time.Duration) *YahooFetcher {
	client := newHTTPClient(proxyURL, timeout)
	client.Jar, _ = cookiejar.New(nil)
	return &YahooFetcher{
		Client:    client,
		BaseURL:   yahooBaseURL,
		CookieURL: yahooCookieURL,
		SymbolMap: map[string]string{
			"SPX500": "^GSPC",
			"SPX":    "^GSPC",
			"SP500":  "^GSPC",
		},
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

func (f *YahooFetcher) yahooSymbol(symbol string) string {
	if mapped, ok := f.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

// yahooChart is the response structure from Yahoo Finance chart API.
// Null array entries decode to nil pointers.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				GMTOffset int64 `json:"gmtoffset"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func at(values []*float64, i int) *float64 {
	if i < len(values) {
		return values[i]
	}
	return nil
}

// FetchHistory implements Fetcher with the v8 chart API at daily interval.
func (f *YahooFetcher) FetchHistory(ctx context.Context, symbol string, period Period) ([]model.RawBar, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=%s",
		f.BaseURL, url.PathEscape(f.yahooSymbol(symbol)), url.QueryEscape(period.Token))

	body, err := f.get(ctx, u)
	if err != nil {
		return nil, err
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 {
		return nil, nil
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo: chart has timestamps but no quote block")
	}
	quote := result.Indicators.Quote[0]
	rows := make([]model.RawBar, 0, len(result.Timestamp))

	for i, ts := range result.Timestamp {
		row := model.RawBar{
			// shift to exchange-local time so the bar keeps its trading date
			Date:   time.Unix(ts+result.Meta.GMTOffset, 0).UTC(),
			Open:   at(quote.Open, i),
			High:   at(quote.High, i),
			Low:    at(quote.Low, i),
			Close:  at(quote.Close, i),
			Volume: at(quote.Volume, i),
		}
		if row.Open == nil && row.High == nil && row.Low == nil && row.Close == nil {
			continue // skip null bars (holidays etc.)
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	return rows, nil
}

// FetchInfo implements Fetcher with the v10 quoteSummary API. Yahoo's
// {raw, fmt} number objects are flattened to their raw value.
func (f *YahooFetcher) FetchInfo(ctx context.Context, symbol string) (model.Info, error) {
	crumb, err := f.getCrumb(ctx)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?modules=%s&crumb=%s",
		f.BaseURL, url.PathEscape(f.yahooSymbol(symbol)),
		strings.Join(yahooInfoModules, ","), url.QueryEscape(crumb))

	body, err := f.get(ctx, u)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusUnauthorized {
			f.resetCrumb()
		}
		return nil, err
	}

	if desc := gjson.GetBytes(body, "quoteSummary.error.description"); desc.Exists() {
		return nil, fmt.Errorf("yahoo api error: %s", desc.String())
	}
	result := gjson.GetBytes(body, "quoteSummary.result.0")
	if !result.Exists() {
		return nil, nil
	}
	return flattenQuoteSummary(result), nil
}

func flattenQuoteSummary(result gjson.Result) model.Info {
	info := model.Info{}
	for _, module := range yahooInfoModules {
		result.Get(module).ForEach(func(key, value gjson.Result) bool {
			k := key.String()
			if _, seen := info[k]; seen {
				return true
			}
			switch {
			case value.IsObject():
				if raw := value.Get("raw"); raw.Exists() && raw.Type == gjson.Number {
					info[k] = raw.Float()
				}
			case value.Type == gjson.Number:
				info[k] = value.Float()
			case value.Type == gjson.String:
				info[k] = value.String()
			case value.IsBool():
				info[k] = value.Bool()
			}
			return true
		})
	}

	if _, ok := info["peRatio"]; !ok {
		if pe, ok := info["trailingPE"]; ok {
			info["peRatio"] = pe
		}
	}
	if _, ok := info["currentPrice"]; !ok {
		if p, ok := info["regularMarketPrice"]; ok {
			info["currentPrice"] = p
		}
	}
	return info
}

func (f *YahooFetcher) getCrumb(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.crumb != "" {
		return f.crumb, nil
	}

	if f.CookieURL != "" {
		// fc.yahoo.com answers 404 but sets the session cookie
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.CookieURL, nil)
		if err != nil {
			return "", err
		}
		req.Header.Set("User-Agent", yahooUserAgent)
		if resp, err := f.Client.Do(req); err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}

	body, err := f.get(ctx, f.BaseURL+"/v1/test/getcrumb")
	if err != nil {
		return "", fmt.Errorf("yahoo crumb: %w", err)
	}
	crumb := strings.TrimSpace(string(body))
	if crumb == "" {
		return "", fmt.Errorf("yahoo crumb: empty response")
	}
	f.crumb = crumb
	return crumb, nil
}

func (f *YahooFetcher) resetCrumb() {
	f.mu.Lock()
	f.crumb = ""
	f.mu.Unlock()
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d, body: %s", e.code, e.body)
}

func (f *YahooFetcher) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", yahooUserAgent)

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: %w", &statusError{code: resp.StatusCode, body: truncate(string(body), 200)})
	}
	return body, nil
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
