package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"

	"github.com/bhr3310/motioncore/utils"
)

// Rotation2d is a planar rotation stored as a unit (cos, sin) pair.
type Rotation2d struct {
	cos float64
	sin float64
}

// NewRotation2d returns the rotation pointing along (x, y). The pair is normalized; a zero
// vector yields the identity rotation.
func NewRotation2d(x, y float64) Rotation2d {
	magnitude := math.Hypot(x, y)
	if magnitude < utils.Epsilon {
		return Rotation2d{cos: 1}
	}
	return Rotation2d{cos: x / magnitude, sin: y / magnitude}
}

// RotationFromRadians returns a rotation of the given angle.
func RotationFromRadians(theta float64) Rotation2d {
	return Rotation2d{cos: math.Cos(theta), sin: math.Sin(theta)}
}

// RotationFromDegrees returns a rotation of the given angle.
func RotationFromDegrees(degrees float64) Rotation2d {
	return RotationFromRadians(utils.DegToRad(degrees))
}

// RotationOf returns the direction of a translation.
func RotationOf(t Translation2d) Rotation2d {
	return NewRotation2d(t.X, t.Y)
}

// Cos returns the cosine of the rotation.
func (r Rotation2d) Cos() float64 {
	if r == (Rotation2d{}) {
		return 1
	}
	return r.cos
}

// Sin returns the sine of the rotation.
func (r Rotation2d) Sin() float64 {
	return r.sin
}

// Radians returns the angle in (-pi, pi].
func (r Rotation2d) Radians() float64 {
	theta := math.Atan2(r.Sin(), r.Cos())
	if theta <= -math.Pi {
		return math.Pi
	}
	return theta
}

// Degrees returns the angle in (-180, 180].
func (r Rotation2d) Degrees() float64 {
	return utils.RadToDeg(r.Radians())
}

// RotateBy composes two rotations.
func (r Rotation2d) RotateBy(other Rotation2d) Rotation2d {
	c1, s1 := r.Cos(), r.Sin()
	c2, s2 := other.Cos(), other.Sin()
	return NewRotation2d(c1*c2-s1*s2, c1*s2+s1*c2)
}

// Inverse returns the opposite rotation.
func (r Rotation2d) Inverse() Rotation2d {
	return Rotation2d{cos: r.Cos(), sin: -r.Sin()}
}

// Flip returns the rotation turned by pi.
func (r Rotation2d) Flip() Rotation2d {
	return Rotation2d{cos: -r.Cos(), sin: -r.Sin()}
}

// Normal returns the rotation turned by pi/2 counter-clockwise.
func (r Rotation2d) Normal() Rotation2d {
	return Rotation2d{cos: -r.Sin(), sin: r.Cos()}
}

// Rotate rotates a translation about the origin.
func (r Rotation2d) Rotate(t Translation2d) Translation2d {
	c, s := r.Cos(), r.Sin()
	return r2.Point{X: t.X*c - t.Y*s, Y: t.X*s + t.Y*c}
}

// Interpolate returns the rotation a fraction x of the way to other along the shorter arc.
func (r Rotation2d) Interpolate(other Rotation2d, x float64) Rotation2d {
	if x <= 0 {
		return r
	}
	if x >= 1 {
		return other
	}
	delta := r.Inverse().RotateBy(other).Radians()
	return r.RotateBy(RotationFromRadians(delta * x))
}

// AlmostEqual compares the angles of two rotations.
func (r Rotation2d) AlmostEqual(other Rotation2d, epsilon float64) bool {
	return math.Abs(r.Inverse().RotateBy(other).Radians()) <= epsilon
}

func (r Rotation2d) String() string {
	return fmt.Sprintf("%.3f deg", r.Degrees())
}
