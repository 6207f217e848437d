package spatialmath

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestRotation(t *testing.T) {
	r := NewRotation2d(3, 4)
	test.That(t, r.Cos(), test.ShouldAlmostEqual, 0.6)
	test.That(t, r.Sin(), test.ShouldAlmostEqual, 0.8)
	test.That(t, math.Hypot(r.Cos(), r.Sin()), test.ShouldAlmostEqual, 1.0)

	test.That(t, NewRotation2d(0, 0).Radians(), test.ShouldEqual, 0.0)
	test.That(t, Rotation2d{}.Cos(), test.ShouldEqual, 1.0)

	sum := RotationFromDegrees(170).RotateBy(RotationFromDegrees(20))
	test.That(t, sum.Degrees(), test.ShouldAlmostEqual, -170.0)
	test.That(t, RotationFromDegrees(30).Flip().Degrees(), test.ShouldAlmostEqual, -150.0)
	test.That(t, RotationFromDegrees(30).Normal().Degrees(), test.ShouldAlmostEqual, 120.0)

	// interpolation takes the short way across the seam
	mid := RotationFromDegrees(170).Interpolate(RotationFromDegrees(-170), 0.5)
	test.That(t, math.Abs(mid.Degrees()), test.ShouldAlmostEqual, 180.0)

	p := RotationFromDegrees(90).Rotate(NewTranslation2d(1, 0))
	test.That(t, p.X, test.ShouldAlmostEqual, 0.0)
	test.That(t, p.Y, test.ShouldAlmostEqual, 1.0)
}

func TestPoseGroup(t *testing.T) {
	a := NewPose2d(3, -2, RotationFromDegrees(40))
	b := NewPose2d(-1, 5, RotationFromDegrees(-125))

	test.That(t, a.TransformBy(a.Inverse()).AlmostEqual(NewZeroPose(), 1e-9), test.ShouldBeTrue)
	test.That(t, a.Inverse().TransformBy(a).AlmostEqual(NewZeroPose(), 1e-9), test.ShouldBeTrue)

	// (a∘b)⁻¹ = b⁻¹∘a⁻¹
	lhs := a.TransformBy(b).Inverse()
	rhs := b.Inverse().TransformBy(a.Inverse())
	test.That(t, lhs.AlmostEqual(rhs, 1e-9), test.ShouldBeTrue)

	rel := b.RelativeTo(a)
	test.That(t, a.TransformBy(rel).AlmostEqual(b, 1e-9), test.ShouldBeTrue)

	test.That(t, NewPose2d(0, 0, Rotation2d{}).DistanceTo(NewPose2d(3, 4, Rotation2d{})), test.ShouldAlmostEqual, 5.0)

	m := NewPose2d(1, 2, RotationFromDegrees(30)).Mirror()
	test.That(t, m.Y(), test.ShouldAlmostEqual, -2.0)
	test.That(t, m.Rotation.Degrees(), test.ShouldAlmostEqual, -30.0)
}

func TestExpLog(t *testing.T) {
	for _, tc := range []struct {
		name  string
		twist Twist2d
	}{
		{"straight", Twist2d{Dx: 4}},
		{"arc", Twist2d{Dx: 2, Dtheta: math.Pi / 3}},
		{"with slip", Twist2d{Dx: 1.5, Dy: -0.3, Dtheta: -0.7}},
		{"tiny rotation", Twist2d{Dx: 1, Dtheta: 1e-12}},
		{"spin in place", Twist2d{Dtheta: 1.2}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			back := Log(Exp(tc.twist))
			test.That(t, back.Dx, test.ShouldAlmostEqual, tc.twist.Dx, 1e-9)
			test.That(t, back.Dy, test.ShouldAlmostEqual, tc.twist.Dy, 1e-9)
			test.That(t, back.Dtheta, test.ShouldAlmostEqual, tc.twist.Dtheta, 1e-9)
		})
	}

	// a quarter circle of radius 1
	quarter := Exp(Twist2d{Dx: math.Pi / 2, Dtheta: math.Pi / 2})
	test.That(t, quarter.X(), test.ShouldAlmostEqual, 1.0)
	test.That(t, quarter.Y(), test.ShouldAlmostEqual, 1.0)
	test.That(t, quarter.Rotation.Degrees(), test.ShouldAlmostEqual, 90.0)
}

func TestPoseInterpolate(t *testing.T) {
	start := NewZeroPose()
	end := Exp(Twist2d{Dx: math.Pi / 2, Dtheta: math.Pi / 2})

	test.That(t, start.Interpolate(end, -1), test.ShouldResemble, start)
	test.That(t, start.Interpolate(end, 2), test.ShouldResemble, end)

	mid := start.Interpolate(end, 0.5)
	test.That(t, mid.Rotation.Degrees(), test.ShouldAlmostEqual, 45.0)
	// the midpoint lies on the unit circle centred at (0, 1)
	test.That(t, mid.Translation.Sub(NewTranslation2d(0, 1)).Norm(), test.ShouldAlmostEqual, 1.0)
}

func TestTwist(t *testing.T) {
	tw := Twist2d{Dx: 3, Dy: 4, Dtheta: 10}
	test.That(t, tw.Norm(), test.ShouldAlmostEqual, 5.0)
	test.That(t, tw.Curvature(), test.ShouldAlmostEqual, 2.0)
	test.That(t, tw.Scaled(0.5), test.ShouldResemble, Twist2d{Dx: 1.5, Dy: 2, Dtheta: 5})
	test.That(t, Twist2d{Dtheta: 1}.Curvature(), test.ShouldEqual, 0.0)
}
