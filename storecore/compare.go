package storecore

import (
	"fmt"
	"time"
)

// compareOrdered is the default primitive comparator: strings compare
// lexically, numbers arithmetically, and time.Time by epoch difference.
// Mismatched or unsupported types panic with KindOrderTypeComparison — the
// same comparator backs both filter operators and order-by priorities.
func compareOrdered(a, b any) int {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			panic(typeComparisonErr(a, b))
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}

	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			panic(typeComparisonErr(a, b))
		}
		switch {
		case av.Before(bv):
			return -1
		case av.After(bv):
			return 1
		default:
			return 0
		}

	default:
		af, aok := toFloat(a)
		bf, bok := toFloat(b)
		if !aok || !bok {
			panic(typeComparisonErr(a, b))
		}
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
}

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
	default:
		return 0, false
	}
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func typeComparisonErr(a, b any) *StoreError {
	return newErr(KindOrderTypeComparison, fmt.Sprintf("cannot compare %T with %T", a, b))
}

func isNil(v any) bool {
	return v == nil
}
