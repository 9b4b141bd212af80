package report

import (
	"strconv"
	"strings"
)

// Row is one loosely-typed report row.
type Row map[string]any

// MetricValue returns the first present non-null value among candidate keys,
// trying the exact key then its lowercased form. Missing metrics read as 0.
func MetricValue(row Row, candidates []string) float64 {
	for _, key := range candidates {
		if v, ok := row[key]; ok && v != nil {
			if f, ok := toFloat(v); ok {
				return f
			}
		}
		lower := strings.ToLower(key)
		if lower != key {
			if v, ok := row[lower]; ok && v != nil {
				if f, ok := toFloat(v); ok {
					return f
				}
			}
		}
	}
	return 0
}

// StringValue returns the first present non-empty string among candidate
// keys, with the same exact-then-lowercase lookup as MetricValue.
func StringValue(row Row, candidates []string) string {
	for _, key := range candidates {
		for _, k := range []string{key, strings.ToLower(key)} {
			if v, ok := row[k]; ok && v != nil {
				switch s := v.(type) {
				case string:
					if s != "" {
						return s
					}
				case float64:
					// Numeric ids come back as JSON numbers on some profiles.
					return formatID(s)
				}
			}
			if key == strings.ToLower(key) {
				break
			}
		}
	}
	return ""
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// formatID renders a float64 id without an exponent or trailing zeros.
func formatID(f float64) string {
	i := int64(f)
	if float64(i) == f {
		return strconv.FormatInt(i, 10)
	}
	return ""
}
