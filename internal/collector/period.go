package collector

import "time"

// DefaultPeriod is used for any token not in the supported set.
const DefaultPeriod = "1y"

var periodDays = map[string]int{
	"1mo": 30,
	"3mo": 90,
	"6mo": 180,
	"1y":  365,
	"2y":  730,
	"5y":  1825,
}

// Period is a named lookback window measured in calendar days.
type Period struct {
	Token string
	Days  int
}

// ParsePeriod maps a token to its window. Unknown tokens silently become 1y.
func ParsePeriod(token string) Period {
	if days, ok := periodDays[token]; ok {
		return Period{Token: token, Days: days}
	}
	return Period{Token: DefaultPeriod, Days: periodDays[DefaultPeriod]}
}

// Cutoff returns the oldest instant inside the window ending at now.
func (p Period) Cutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -p.Days)
}

func (p Period) String() string { return p.Token }
