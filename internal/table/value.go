package table

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Canonical renders a cell value in its canonical string form. Every join
// key in the modeling layer passes through this function so that numeric
// and alphanumeric identifiers compare in a single representation. An
// integral float renders without a decimal point, so a key read back as
// 11000.0 still matches "11000".
func Canonical(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format("2006-01-02")
	default:
		return ""
	}
}

// IsBlank reports whether a cell is NULL or a string of only whitespace.
func IsBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// AsFloat converts a numeric cell to float64. The second result is false
// for NULL and non-numeric values.
func AsFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

// AsInt converts a numeric cell to int64, truncating floats.
func AsInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

// AsDate converts a cell to a date value.
func AsDate(v any) (time.Time, bool) {
	ts, ok := v.(time.Time)
	if !ok {
		return time.Time{}, false
	}
	return TruncateDate(ts), true
}
