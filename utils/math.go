// Package utils contains small numeric and sampling helpers shared by the vision packages.
package utils

import "math"

// AbsInt returns the absolute value of an int.
func AbsInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// MaxInt returns the larger of two ints.
func MaxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// MinInt returns the smaller of two ints.
func MinInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ClampF64 clamps a float64 into [lower, upper].
func ClampF64(n, lower, upper float64) float64 {
	return math.Max(lower, math.Min(n, upper))
}

// Square returns n*n.
func Square(n float64) float64 {
	return n * n
}

// IsFinite reports whether f is neither NaN nor an infinity.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// AllFinite reports whether every value is finite.
func AllFinite(values ...float64) bool {
	for _, v := range values {
		if !IsFinite(v) {
			return false
		}
	}
	return true
}
