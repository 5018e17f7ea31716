package light

import (
	"encoding/json"
	"math"
)

// Descriptor values arrive from JSON (float64, json.Number) or YAML (int,
// float64), so numeric reads accept any of Go's numeric kinds.

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// toInt accepts integers and integral floats within int's range. The upper
// bound is -MinInt since MaxInt itself is not representable as a float64.
func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) || f >= -float64(math.MinInt) || f < float64(math.MinInt) {
		return 0, false
	}
	return int(f), true
}

// toStrings accepts []string and []any of strings.
func toStrings(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []ColorMode:
		out := make([]string, len(list))
		for i, m := range list {
			out[i] = string(m)
		}
		return out, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
