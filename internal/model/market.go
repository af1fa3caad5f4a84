package model

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Instrument is the identity record of a tracked symbol.
type Instrument struct {
	ID        uuid.UUID
	Symbol    string
	CreatedAt time.Time
}

// PriceBar represents one daily OHLCV observation for an instrument.
type PriceBar struct {
	InstrumentID uuid.UUID
	Date         time.Time
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       int64
}

// RawBar is a provider row before validation. A nil field was missing in the response.
type RawBar struct {
	Date   time.Time
	Open   *float64
	High   *float64
	Low    *float64
	Close  *float64
	Volume *float64
}

// Complete reports whether all five OHLCV fields are present.
func (r RawBar) Complete() bool {
	return r.Open != nil && r.High != nil && r.Low != nil && r.Close != nil && r.Volume != nil
}

// MissingFields lists the OHLCV fields absent from the row.
func (r RawBar) MissingFields() []string {
	var missing []string
	if r.Open == nil {
		missing = append(missing, "open")
	}
	if r.High == nil {
		missing = append(missing, "high")
	}
	if r.Low == nil {
		missing = append(missing, "low")
	}
	if r.Close == nil {
		missing = append(missing, "close")
	}
	if r.Volume == nil {
		missing = append(missing, "volume")
	}
	return missing
}

// Canonical converts the row into a PriceBar owned by instrumentID.
// The date is truncated to its UTC calendar day and volume becomes a whole share count.
func (r RawBar) Canonical(instrumentID uuid.UUID) (PriceBar, error) {
	if r.Date.IsZero() {
		return PriceBar{}, fmt.Errorf("bar has no date")
	}
	if missing := r.MissingFields(); len(missing) > 0 {
		return PriceBar{}, fmt.Errorf("bar %s missing %v", r.Date.Format(time.DateOnly), missing)
	}
	for _, v := range []float64{*r.Open, *r.High, *r.Low, *r.Close, *r.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return PriceBar{}, fmt.Errorf("bar %s has non-finite value", r.Date.Format(time.DateOnly))
		}
	}
	vol := math.Round(*r.Volume)
	if vol < 0 || vol >= math.MaxInt64 {
		return PriceBar{}, fmt.Errorf("bar %s volume %v out of range", r.Date.Format(time.DateOnly), *r.Volume)
	}
	return PriceBar{
		InstrumentID: instrumentID,
		Date:         TradingDay(r.Date),
		Open:         *r.Open,
		High:         *r.High,
		Low:          *r.Low,
		Close:        *r.Close,
		Volume:       int64(vol),
	}, nil
}

// TradingDay truncates t to midnight UTC of its calendar day.
func TradingDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SeriesSource tells where a Series' bars came from.
type SeriesSource string

const (
	SourceCache  SeriesSource = "cache"
	SourceRemote SeriesSource = "remote"
)

// SeriesSummary holds period statistics of a Series.
type SeriesSummary struct {
	First         float64
	Last          float64
	High          float64
	Low           float64
	ChangePercent float64
	RangePosition float64 // 0.0 ~ 1.0
}

// Series is an ordered run of bars with trailing moving averages over Close.
// A nil moving-average entry means the window is not yet filled.
type Series struct {
	Symbol    string
	Period    string
	Source    SeriesSource
	Bars      []PriceBar
	MA20      []*float64
	MA50      []*float64
	MA200     []*float64
	Summary   SeriesSummary
	FetchedAt time.Time
}

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.Bars) }

// Clone returns a deep copy of s.
func (s *Series) Clone() *Series {
	out := *s
	out.Bars = slices.Clone(s.Bars)
	out.MA20 = cloneAverages(s.MA20)
	out.MA50 = cloneAverages(s.MA50)
	out.MA200 = cloneAverages(s.MA200)
	return &out
}

func cloneAverages(values []*float64) []*float64 {
	if values == nil {
		return nil
	}
	out := make([]*float64, len(values))
	for i, v := range values {
		if v != nil {
			c := *v
			out[i] = &c
		}
	}
	return out
}

// User owns a watchlist of instruments.
type User struct {
	ID        uuid.UUID
	Email     string
	CreatedAt time.Time
}
