package collector

import (
	"fmt"
	"strings"
	"time"

	"StockLens/internal/model"
)

// validateHistory requires at least one row and all five OHLCV fields on every row.
func validateHistory(rows []model.RawBar) error {
	if len(rows) == 0 {
		return errEmptyResult
	}
	for i, r := range rows {
		if missing := r.MissingFields(); len(missing) > 0 {
			return fmt.Errorf("row %d (%s) missing %s", i, r.Date.Format(time.DateOnly), strings.Join(missing, ", "))
		}
	}
	return nil
}
