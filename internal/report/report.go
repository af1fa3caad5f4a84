package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"StockLens/internal/model"
)

// FormatSeries formats the period summary and the last tail bars of a series.
func FormatSeries(s *model.Series, tail int) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("%s | %s | %d bars from %s (fetched %s)\n\n",
		s.Symbol, s.Period, s.Len(), s.Source, s.FetchedAt.Format("2006-01-02 15:04")))
	if s.Len() == 0 {
		return b.String()
	}

	sum := s.Summary
	b.WriteString(fmt.Sprintf("Range: %s - %s\n",
		s.Bars[0].Date.Format(time.DateOnly), s.Bars[s.Len()-1].Date.Format(time.DateOnly)))
	b.WriteString(fmt.Sprintf("Close: %.2f -> %.2f (%+.2f%%)\n", sum.First, sum.Last, sum.ChangePercent))
	b.WriteString(fmt.Sprintf("Period high/low: %.2f / %.2f (position %.0f%%)\n", sum.High, sum.Low, sum.RangePosition*100))

	last := s.Len() - 1
	b.WriteString(fmt.Sprintf("MA20: %s | MA50: %s | MA200: %s\n\n",
		maAt(s.MA20, last), maAt(s.MA50, last), maAt(s.MA200, last)))

	if tail <= 0 || tail > s.Len() {
		tail = s.Len()
	}
	b.WriteString(fmt.Sprintf("%-10s %10s %10s %10s %10s %15s\n", "Date", "Open", "High", "Low", "Close", "Volume"))
	for _, bar := range s.Bars[s.Len()-tail:] {
		b.WriteString(fmt.Sprintf("%-10s %10.2f %10.2f %10.2f %10.2f %15s\n",
			bar.Date.Format(time.DateOnly), bar.Open, bar.High, bar.Low, bar.Close, humanize.Comma(bar.Volume)))
	}
	return b.String()
}

func maAt(values []*float64, i int) string {
	if i < 0 || i >= len(values) || values[i] == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *values[i])
}

// FormatInfo formats the headline metrics and key statistics of an instrument.
func FormatInfo(symbol string, info model.Info) string {
	var b strings.Builder

	name := info.String("longName")
	if name == "" {
		name = symbol
	}
	b.WriteString(fmt.Sprintf("%s (%s)\n\n", name, symbol))

	b.WriteString(fmt.Sprintf("Current Price: $%.2f (%+.2f%%)\n", info.Float("currentPrice"), info.Float("dayChange")))
	b.WriteString(fmt.Sprintf("Market Cap: $%.2fB\n", info.Float("marketCap")/1e9))
	if pe := info.Float("peRatio"); pe != 0 {
		b.WriteString(fmt.Sprintf("P/E Ratio: %.2f\n", pe))
	} else {
		b.WriteString("P/E Ratio: N/A\n")
	}
	b.WriteString(fmt.Sprintf("52W Range: $%.2f - $%.2f\n\n", info.Float("fiftyTwoWeekLow"), info.Float("fiftyTwoWeekHigh")))

	b.WriteString("Trading Information\n")
	b.WriteString(fmt.Sprintf("  Volume: %s\n", humanize.Comma(int64(info.Float("volume")))))
	b.WriteString(fmt.Sprintf("  Avg Volume (10d): %s\n", humanize.Comma(int64(info.Float("averageVolume10days")))))
	b.WriteString(fmt.Sprintf("  Beta: %s\n", humanize.FtoaWithDigits(info.Float("beta"), 2)))
	b.WriteString(fmt.Sprintf("  Days Range: $%.2f - $%.2f\n\n", info.Float("dayLow"), info.Float("dayHigh")))

	b.WriteString("Financial Metrics\n")
	b.WriteString(fmt.Sprintf("  Revenue (TTM): $%.2fB\n", info.Float("totalRevenue")/1e9))
	b.WriteString(fmt.Sprintf("  Profit Margin: %.2f%%\n", info.Float("profitMargins")*100))
	b.WriteString(fmt.Sprintf("  Operating Margin: %.2f%%\n", info.Float("operatingMargins")*100))
	b.WriteString(fmt.Sprintf("  ROE: %.2f%%\n", info.Float("returnOnEquity")*100))
	return b.String()
}

// FormatFailure is the user-facing message for any failed request.
func FormatFailure(symbol string, err error) string {
	return fmt.Sprintf("Error: Unable to fetch data for symbol '%s'. Please check if the symbol is correct.\n%v", symbol, err)
}

// FormatWatchlist lists watched instruments with the time they were first tracked.
func FormatWatchlist(email string, instruments []model.Instrument) string {
	if len(instruments) == 0 {
		return fmt.Sprintf("Watchlist for %s is empty\n", email)
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Watchlist for %s (%d)\n", email, len(instruments)))
	for _, inst := range instruments {
		b.WriteString(fmt.Sprintf("  %-8s tracked %s\n", inst.Symbol, humanize.Time(inst.CreatedAt)))
	}
	return b.String()
}
