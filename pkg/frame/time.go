package frame

import (
	"encoding/json"
	"math"
	"time"
)

// Millis converts a time field value to epoch milliseconds.
// Accepts time.Time, *time.Time, integer, float, json.Number and RFC 3339
// string values.
func Millis(v any) (int64, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UnixMilli(), true
	case *time.Time:
		if t == nil {
			return 0, false
		}
		return t.UnixMilli(), true
	case int64:
		return t, true
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case uint64:
		if t > math.MaxInt64 {
			return 0, false
		}
		return int64(t), true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int64(t), true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		if f, err := t.Float64(); err == nil {
			return int64(f), true
		}
		return 0, false
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return 0, false
		}
		return parsed.UnixMilli(), true
	default:
		return 0, false
	}
}

// timeMillis returns the field's values as epoch milliseconds. Values that
// cannot be read as a timestamp map to math.MinInt64, which never lies after
// a bound.
func timeMillis(f *Field) []int64 {
	out := make([]int64, len(f.Values))
	for i, v := range f.Values {
		ms, ok := Millis(v)
		if !ok {
			ms = math.MinInt64
		}
		out[i] = ms
	}
	return out
}
