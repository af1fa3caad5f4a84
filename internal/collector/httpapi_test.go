package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockLens/internal/config"
)

func TestHTTPFetcher(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/bars/daily", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "BRK.B", r.URL.Query().Get("symbol"))
		assert.Equal(t, "90", r.URL.Query().Get("limit"))
		w.Write([]byte(`[
			{"timestamp": 1717680600, "open": 2, "high": 3, "low": 1, "close": 2.5, "volume": 10},
			{"timestamp": 1717594200, "open": 1, "high": 2, "low": 0.5, "close": 1.5}
		]`))
	})
	mux.HandleFunc("/api/v1/info", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"longName": "Berkshire Hathaway", "currentPrice": 410.2}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL+"/", "secret", "", time.Second)
	assert.Equal(t, "http", f.Name())

	rows, err := f.FetchHistory(context.Background(), "BRK.B", ParsePeriod("3mo"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Date.Before(rows[1].Date))
	assert.Nil(t, rows[0].Volume)
	assert.Equal(t, 10.0, *rows[1].Volume)

	info, err := f.FetchInfo(context.Background(), "BRK.B")
	require.NoError(t, err)
	assert.Equal(t, "Berkshire Hathaway", info.String("longName"))
	assert.Equal(t, 410.2, info.Float("currentPrice"))
}

func TestHTTPFetcher_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, "", "", time.Second)
	_, err := f.FetchHistory(context.Background(), "X", ParsePeriod("1y"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestNewFetcher(t *testing.T) {
	assert.IsType(t, &YahooFetcher{}, NewFetcher(config.Provider{}))
	assert.IsType(t, &MockFetcher{}, NewFetcher(config.Provider{BaseURL: "mock"}))
	assert.IsType(t, &HTTPFetcher{}, NewFetcher(config.Provider{BaseURL: "http://bars.internal"}))
}
