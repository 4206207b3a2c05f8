package trajplot

import (
	"math"

	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Float | constraints.Integer
}

func Filter[T any](slice []T, predicate func(T) bool) []T {
	filtered := make([]T, 0, len(slice))
	for _, elem := range slice {
		if predicate(elem) {
			filtered = append(filtered, elem)
		}
	}
	return filtered
}

func Min[T Number](a T, b T) T {
	if a > b {
		return b
	}

	return a
}

func Max[T Number](a T, b T) T {
	if a < b {
		return b
	}

	return a
}

// Extent returns the smallest and largest finite values in the slice. ok is
// false if there are no finite values (empty slice, or only NaN/Inf).
func Extent(values []float64) (lo float64, hi float64, ok bool) {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}

		if !ok {
			lo, hi, ok = v, v, true
			continue
		}

		lo = Min(lo, v)
		hi = Max(hi, v)
	}

	return lo, hi, ok
}
