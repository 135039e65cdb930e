package routing

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

type number struct {
	integer bool
	i       int64
	f       float64
}

func asNumber(value any) (number, bool) {
	switch typed := value.(type) {
	case int:
		return number{integer: true, i: int64(typed)}, true
	case int8:
		return number{integer: true, i: int64(typed)}, true
	case int16:
		return number{integer: true, i: int64(typed)}, true
	case int32:
		return number{integer: true, i: int64(typed)}, true
	case int64:
		return number{integer: true, i: typed}, true
	case uint:
		return unsignedNumber(uint64(typed)), true
	case uint8:
		return number{integer: true, i: int64(typed)}, true
	case uint16:
		return number{integer: true, i: int64(typed)}, true
	case uint32:
		return number{integer: true, i: int64(typed)}, true
	case uint64:
		return unsignedNumber(typed), true
	case float32:
		return number{f: float64(typed)}, true
	case float64:
		return number{f: typed}, true
	case json.Number:
		if parsed, err := typed.Int64(); err == nil {
			return number{integer: true, i: parsed}, true
		}
		if parsed, err := typed.Float64(); err == nil {
			return number{f: parsed}, true
		}
		return number{}, false
	default:
		return number{}, false
	}
}

func unsignedNumber(value uint64) number {
	if value > math.MaxInt64 {
		return number{f: float64(value)}
	}
	return number{integer: true, i: int64(value)}
}

func compareNumbers(a, b number) int {
	switch {
	case a.integer && b.integer:
		return compareInts(a.i, b.i)
	case a.integer:
		return compareIntFloat(a.i, b.f)
	case b.integer:
		return -compareIntFloat(b.i, a.f)
	}
	switch {
	case a.f < b.f:
		return -1
	case a.f > b.f:
		return 1
	default:
		return 0
	}
}

func compareInts(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareIntFloat compares without converting i to float64, which would
// round integers above 2^53.
func compareIntFloat(i int64, f float64) int {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return -1
	case f < math.MinInt64:
		return 1
	}
	whole := math.Trunc(f)
	if c := compareInts(i, int64(whole)); c != 0 {
		return c
	}
	switch {
	case f > whole:
		return -1
	case f < whole:
		return 1
	default:
		return 0
	}
}

// valuesEqual is structural equality across JSON value kinds. Numbers
// compare by value regardless of integer or float representation.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if an, ok := asNumber(a); ok {
		bn, ok := asNumber(b)
		return ok && compareNumbers(an, bn) == 0
	}
	switch typed := a.(type) {
	case string:
		other, ok := b.(string)
		return ok && typed == other
	case bool:
		other, ok := b.(bool)
		return ok && typed == other
	case []any:
		other, ok := b.([]any)
		if !ok || len(typed) != len(other) {
			return false
		}
		for index := range typed {
			if !valuesEqual(typed[index], other[index]) {
				return false
			}
		}
		return true
	case map[string]any:
		other, ok := b.(map[string]any)
		if !ok || len(typed) != len(other) {
			return false
		}
		for key, value := range typed {
			otherValue, exists := other[key]
			if !exists || !valuesEqual(value, otherValue) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// compareOrdered orders two numbers or two strings. Any other pairing is not
// comparable.
func compareOrdered(a, b any) (int, bool) {
	if an, ok := asNumber(a); ok {
		bn, ok := asNumber(b)
		if !ok {
			return 0, false
		}
		return compareNumbers(an, bn), true
	}
	as, ok := a.(string)
	if !ok {
		return 0, false
	}
	bs, ok := b.(string)
	if !ok {
		return 0, false
	}
	return strings.Compare(as, bs), true
}

// NormalizeValue converts json.Number leaves into int64 or float64 and copies
// containers so handlers receive plain Go values.
func NormalizeValue(value any) any {
	switch typed := value.(type) {
	case json.Number:
		if parsed, err := typed.Int64(); err == nil {
			return parsed
		}
		if parsed, err := strconv.ParseFloat(typed.String(), 64); err == nil {
			return parsed
		}
		return typed.String()
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = NormalizeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for index, item := range typed {
			out[index] = NormalizeValue(item)
		}
		return out
	default:
		return value
	}
}
