// Package spatialmath defines the planar geometry of the drive: translations, rotations, rigid
// transforms and the twists that integrate onto them.
package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
)

// Translation2d is a position or displacement on the field plane, in inches.
type Translation2d = r2.Point

// NewTranslation2d returns the translation (x, y).
func NewTranslation2d(x, y float64) Translation2d {
	return r2.Point{X: x, Y: y}
}

// Pose2d is a rigid transform on the plane. Composition is not commutative.
type Pose2d struct {
	Translation Translation2d
	Rotation    Rotation2d
}

// NewPose2d returns a pose at (x, y) facing the given rotation.
func NewPose2d(x, y float64, rotation Rotation2d) Pose2d {
	return Pose2d{Translation: NewTranslation2d(x, y), Rotation: rotation}
}

// NewZeroPose returns the identity pose.
func NewZeroPose() Pose2d {
	return Pose2d{Rotation: RotationFromRadians(0)}
}

// X returns the x coordinate.
func (p Pose2d) X() float64 { return p.Translation.X }

// Y returns the y coordinate.
func (p Pose2d) Y() float64 { return p.Translation.Y }

// Heading returns the orientation in radians.
func (p Pose2d) Heading() float64 { return p.Rotation.Radians() }

// TransformBy applies other in the frame of p.
func (p Pose2d) TransformBy(other Pose2d) Pose2d {
	return Pose2d{
		Translation: p.Translation.Add(p.Rotation.Rotate(other.Translation)),
		Rotation:    p.Rotation.RotateBy(other.Rotation),
	}
}

// Inverse returns the transform that undoes p.
func (p Pose2d) Inverse() Pose2d {
	inv := p.Rotation.Inverse()
	return Pose2d{
		Translation: inv.Rotate(p.Translation.Mul(-1)),
		Rotation:    inv,
	}
}

// RelativeTo expresses p in the frame of origin, i.e. origin⁻¹∘p.
func (p Pose2d) RelativeTo(origin Pose2d) Pose2d {
	return origin.Inverse().TransformBy(p)
}

// Mirror reflects the pose across the x axis.
func (p Pose2d) Mirror() Pose2d {
	return Pose2d{
		Translation: NewTranslation2d(p.Translation.X, -p.Translation.Y),
		Rotation:    p.Rotation.Inverse(),
	}
}

// DistanceTo returns the straight line distance between the positions of two poses.
func (p Pose2d) DistanceTo(other Pose2d) float64 {
	return other.Translation.Sub(p.Translation).Norm()
}

// Interpolate moves a fraction x of the way to other along the constant-curvature arc joining
// them.
func (p Pose2d) Interpolate(other Pose2d, x float64) Pose2d {
	if x <= 0 {
		return p
	}
	if x >= 1 {
		return other
	}
	twist := Log(p.Inverse().TransformBy(other))
	return p.TransformBy(Exp(twist.Scaled(x)))
}

// AlmostEqual compares position and heading within epsilon.
func (p Pose2d) AlmostEqual(other Pose2d, epsilon float64) bool {
	return math.Abs(p.Translation.X-other.Translation.X) <= epsilon &&
		math.Abs(p.Translation.Y-other.Translation.Y) <= epsilon &&
		p.Rotation.AlmostEqual(other.Rotation, epsilon)
}

func (p Pose2d) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %s)", p.Translation.X, p.Translation.Y, p.Rotation)
}
