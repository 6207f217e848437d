package utils

import (
	"math"

	"gonum.org/v1/gonum/floats/scalar"
)

// Epsilon is the tolerance used when comparing floating point quantities in the control stack.
const Epsilon = 1e-9

// DegToRad converts degrees to radians.
func DegToRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(radians float64) float64 {
	return radians * 180 / math.Pi
}

// Float64AlmostEqual compares two float64s and returns if the difference between them is less
// than epsilon.
func Float64AlmostEqual(a, b, epsilon float64) bool {
	return scalar.EqualWithinAbs(a, b, epsilon)
}

// EpsilonEquals reports whether a and b are within Epsilon of each other.
func EpsilonEquals(a, b float64) bool {
	return Float64AlmostEqual(a, b, Epsilon)
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

// Interpolate linearly interpolates between a and b, with x clamped to [0, 1].
func Interpolate(a, b, x float64) float64 {
	x = Clamp(x, 0, 1)
	return a + (b-a)*x
}

// Sign returns -1 for negative input and 1 otherwise.
func Sign(x float64) float64 {
	if math.Signbit(x) {
		return -1.0
	}
	return 1.0
}

// Square returns n squared.
func Square(n float64) float64 {
	return n * n
}

// IsFinite reports whether every value is neither NaN nor infinite.
func IsFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// WrapToPi wraps an angle in radians to (-pi, pi].
func WrapToPi(theta float64) float64 {
	wrapped := math.Mod(theta+math.Pi, 2*math.Pi)
	if wrapped <= 0 {
		wrapped += 2 * math.Pi
	}
	return wrapped - math.Pi
}
