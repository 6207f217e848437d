package spatialmath

import (
	"fmt"
	"math"
)

// small angle cutoff for the series expansions in Exp and Log.
const twistEpsilon = 1e-9

// Twist2d is a velocity (or a displacement over one step) expressed in the robot frame: Dx
// forward, Dy to the left, Dtheta counter-clockwise.
type Twist2d struct {
	Dx     float64
	Dy     float64
	Dtheta float64
}

// Scaled multiplies every component.
func (t Twist2d) Scaled(scale float64) Twist2d {
	return Twist2d{Dx: t.Dx * scale, Dy: t.Dy * scale, Dtheta: t.Dtheta * scale}
}

// Norm is the translational magnitude.
func (t Twist2d) Norm() float64 {
	if t.Dy == 0 {
		return math.Abs(t.Dx)
	}
	return math.Hypot(t.Dx, t.Dy)
}

// Curvature returns Dtheta per unit of travel, zero when the twist does not translate.
func (t Twist2d) Curvature() float64 {
	norm := t.Norm()
	if norm < twistEpsilon {
		return 0
	}
	return t.Dtheta / norm
}

func (t Twist2d) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f rad)", t.Dx, t.Dy, t.Dtheta)
}

// Exp integrates a constant twist over unit time, following the arc it describes.
func Exp(delta Twist2d) Pose2d {
	sinTheta := math.Sin(delta.Dtheta)
	cosTheta := math.Cos(delta.Dtheta)
	var s, c float64
	if math.Abs(delta.Dtheta) < twistEpsilon {
		s = 1 - delta.Dtheta*delta.Dtheta/6
		c = 0.5 * delta.Dtheta
	} else {
		s = sinTheta / delta.Dtheta
		c = (1 - cosTheta) / delta.Dtheta
	}
	return Pose2d{
		Translation: NewTranslation2d(delta.Dx*s-delta.Dy*c, delta.Dx*c+delta.Dy*s),
		Rotation:    NewRotation2d(cosTheta, sinTheta),
	}
}

// Log is the inverse of Exp: the constant twist that carries the identity to transform in unit
// time.
func Log(transform Pose2d) Twist2d {
	dtheta := transform.Rotation.Radians()
	halfDtheta := 0.5 * dtheta
	cosMinusOne := transform.Rotation.Cos() - 1
	var halfThetaByTanOfHalfDtheta float64
	if math.Abs(cosMinusOne) < twistEpsilon {
		halfThetaByTanOfHalfDtheta = 1 - dtheta*dtheta/12
	} else {
		halfThetaByTanOfHalfDtheta = -(halfDtheta * transform.Rotation.Sin()) / cosMinusOne
	}
	// the pair (halfThetaByTan, -halfDtheta) is deliberately not normalized
	x, y := transform.Translation.X, transform.Translation.Y
	return Twist2d{
		Dx:     x*halfThetaByTanOfHalfDtheta + y*halfDtheta,
		Dy:     -x*halfDtheta + y*halfThetaByTanOfHalfDtheta,
		Dtheta: dtheta,
	}
}
