package export

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"StockLens/internal/model"
)

// Row is one exported bar with its moving averages. Undefined averages are null.
type Row struct {
	Date   string   `json:"date" parquet:"date"`
	Open   float64  `json:"open" parquet:"open"`
	High   float64  `json:"high" parquet:"high"`
	Low    float64  `json:"low" parquet:"low"`
	Close  float64  `json:"close" parquet:"close"`
	Volume int64    `json:"volume" parquet:"volume"`
	MA20   *float64 `json:"ma20" parquet:"ma20,optional"`
	MA50   *float64 `json:"ma50" parquet:"ma50,optional"`
	MA200  *float64 `json:"ma200" parquet:"ma200,optional"`
}

// Saver writes rows to a file in one format.
type Saver interface {
	Save(rows []Row, path string) error
	Extension() string
}

// NewSaver returns the saver for format: csv, json or parquet.
func NewSaver(format string) (Saver, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVSaver{}, nil
	case "json":
		return JSONSaver{}, nil
	case "parquet":
		return ParquetSaver{}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (use csv, json or parquet)", format)
	}
}

// Rows flattens a series into export rows.
func Rows(s *model.Series) []Row {
	rows := make([]Row, len(s.Bars))
	for i, b := range s.Bars {
		rows[i] = Row{
			Date:   b.Date.Format(time.DateOnly),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
			MA20:   at(s.MA20, i),
			MA50:   at(s.MA50, i),
			MA200:  at(s.MA200, i),
		}
	}
	return rows
}

func at(values []*float64, i int) *float64 {
	if i < len(values) {
		return values[i]
	}
	return nil
}

// FileName builds "<dir>/<SYMBOL>_<period>.<ext>".
func FileName(dir string, s *model.Series, saver Saver) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.%s", s.Symbol, s.Period, saver.Extension()))
}

// WriteSeries saves s under dir and returns the file path.
func WriteSeries(dir string, s *model.Series, saver Saver) (string, error) {
	path := FileName(dir, s, saver)
	if err := saver.Save(Rows(s), path); err != nil {
		return "", fmt.Errorf("export %s: %w", s.Symbol, err)
	}
	return path, nil
}
