// Package mathx holds small generic numeric helpers for sensor conversions.
package mathx

import "golang.org/x/exp/constraints"

type Number interface {
	constraints.Integer | constraints.Float
}

// Clamp limits v to [lo, hi]. If lo > hi, the bounds are swapped.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// AbsDiff returns |a-b| without wrapping for unsigned types.
func AbsDiff[T Number](a, b T) T {
	if a > b {
		return a - b
	}
	return b - a
}
