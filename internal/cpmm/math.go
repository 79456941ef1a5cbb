// Package cpmm implements the constant-product market maker: probability and
// purchase math, limit-order fill matching, the sum-to-one arbitrage step,
// the split-from-Other answer insertion, and position redemption. Everything
// here is pure; persistence and transactions live in the service layer.
package cpmm

import "math"

// Epsilon is the tolerance used for floating-point equality on pool and
// share values. Repeated pool arithmetic accumulates drift, so exact
// comparison is never correct here.
const Epsilon = 1e-9

// FloatingEqual reports whether a and b are equal within Epsilon.
func FloatingEqual(a, b float64) bool {
	return math.Abs(a-b) < Epsilon
}

// FloatingGreaterEqual reports a >= b within Epsilon.
func FloatingGreaterEqual(a, b float64) bool {
	return a+Epsilon >= b
}

// FloatingLesserEqual reports a <= b within Epsilon.
func FloatingLesserEqual(a, b float64) bool {
	return a-Epsilon <= b
}

// binarySearch finds x in [min, max] where comparator crosses zero. The
// comparator must be monotonically increasing: positive means x is too high.
// The search runs to full float64 precision.
func binarySearch(min, max float64, comparator func(x float64) float64) float64 {
	var mid float64
	for {
		mid = min + (max-min)/2
		if mid == min || mid == max {
			break
		}
		c := comparator(mid)
		if c == 0 {
			break
		} else if c > 0 {
			max = mid
		} else {
			min = mid
		}
	}
	return mid
}
