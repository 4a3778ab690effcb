package utils

import (
	"math"
)

// CubeRoot returns the real cube root of x.
func CubeRoot(x float64) float64 {
	return math.Cbrt(x)
}

// IsFinite reports whether f is neither NaN nor an infinity.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// AllFinite reports whether every value is finite.
func AllFinite(values []float64) bool {
	for _, v := range values {
		if !IsFinite(v) {
			return false
		}
	}
	return true
}

// Clamp restricts v to [lo, hi]. NaN clamps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp01 restricts v to [0, 1].
func Clamp01(v float64) float64 {
	return Clamp(v, 0, 1)
}

// FiniteOr returns v if it is finite and fallback otherwise.
func FiniteOr(v, fallback float64) float64 {
	if IsFinite(v) {
		return v
	}
	return fallback
}

// Breakpoint is one (x, y) knot of a piecewise-linear curve.
type Breakpoint struct {
	X, Y float64
}

// Interpolate evaluates the piecewise-linear curve through the breakpoints at x. The breakpoints
// must be sorted by X. Values outside the covered range take the nearest end value.
func Interpolate(curve []Breakpoint, x float64) float64 {
	if len(curve) == 0 {
		return 0
	}
	if x <= curve[0].X {
		return curve[0].Y
	}
	last := curve[len(curve)-1]
	if x >= last.X {
		return last.Y
	}
	for i := 1; i < len(curve); i++ {
		lo, hi := curve[i-1], curve[i]
		if x <= hi.X {
			span := hi.X - lo.X
			if span <= 0 {
				return hi.Y
			}
			t := (x - lo.X) / span
			return lo.Y + t*(hi.Y-lo.Y)
		}
	}
	return last.Y
}
