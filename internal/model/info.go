package model

import "strconv"

// Info maps descriptive and statistical field names to values for one symbol.
type Info map[string]any

// Float returns the numeric value of key, or 0 when it is absent or not numeric.
func (i Info) Float(key string) float64 {
	switch v := i[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// String returns the string value of key, or "" when absent.
func (i Info) String(key string) string {
	if s, ok := i[key].(string); ok {
		return s
	}
	return ""
}

// Has reports whether key is present with a non-nil value.
func (i Info) Has(key string) bool {
	v, ok := i[key]
	return ok && v != nil
}
