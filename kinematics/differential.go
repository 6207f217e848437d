// Package kinematics converts between chassis motion and wheel motion for a differential drive.
package kinematics

import (
	"math"

	"github.com/pkg/errors"

	"github.com/bhr3310/motioncore/spatialmath"
)

// NativeUnitsPerRotation is the encoder resolution of the drive actuators.
const NativeUnitsPerRotation = 4096.0

// WheelPair holds a left and right quantity.
type WheelPair struct {
	Left  float64
	Right float64
}

// DifferentialDrive describes the chassis geometry. Distances are in inches.
type DifferentialDrive struct {
	trackWidth  float64
	wheelRadius float64
	scrubFactor float64
}

// NewDifferentialDrive validates the geometry. A scrub factor of zero is treated as one.
func NewDifferentialDrive(trackWidth, wheelDiameter, scrubFactor float64) (*DifferentialDrive, error) {
	if trackWidth <= 0 {
		return nil, errors.Errorf("track width must be positive, got %v", trackWidth)
	}
	if wheelDiameter <= 0 {
		return nil, errors.Errorf("wheel diameter must be positive, got %v", wheelDiameter)
	}
	if scrubFactor < 0 {
		return nil, errors.Errorf("scrub factor cannot be negative, got %v", scrubFactor)
	}
	if scrubFactor == 0 {
		scrubFactor = 1
	}
	return &DifferentialDrive{
		trackWidth:  trackWidth,
		wheelRadius: wheelDiameter / 2,
		scrubFactor: scrubFactor,
	}, nil
}

// TrackWidth returns the distance between the wheel contact lines.
func (dd *DifferentialDrive) TrackWidth() float64 { return dd.trackWidth }

// WheelRadius returns the wheel radius.
func (dd *DifferentialDrive) WheelRadius() float64 { return dd.wheelRadius }

// ForwardKinematics turns wheel travel since the last cycle into a chassis displacement. The
// rotation comes from the wheel difference, corrected by the scrub factor.
func (dd *DifferentialDrive) ForwardKinematics(leftDelta, rightDelta float64) spatialmath.Twist2d {
	dtheta := (rightDelta - leftDelta) / (dd.trackWidth * dd.scrubFactor)
	return dd.ForwardKinematicsWithHeading(leftDelta, rightDelta, dtheta)
}

// ForwardKinematicsWithHeading uses a measured heading change in place of the wheel difference.
func (dd *DifferentialDrive) ForwardKinematicsWithHeading(leftDelta, rightDelta, dtheta float64) spatialmath.Twist2d {
	return spatialmath.Twist2d{Dx: (leftDelta + rightDelta) / 2, Dtheta: dtheta}
}

// WheelVelocities converts a chassis velocity to left/right surface speeds:
// v_l = v − ω·W/2, v_r = v + ω·W/2. Lateral motion is ignored.
func (dd *DifferentialDrive) WheelVelocities(velocity spatialmath.Twist2d) WheelPair {
	if math.Abs(velocity.Dtheta) < 1e-12 {
		return WheelPair{Left: velocity.Dx, Right: velocity.Dx}
	}
	half := velocity.Dtheta * dd.trackWidth / 2
	return WheelPair{Left: velocity.Dx - half, Right: velocity.Dx + half}
}

// ChassisVelocity is the exact inverse of WheelVelocities.
func (dd *DifferentialDrive) ChassisVelocity(wheels WheelPair) spatialmath.Twist2d {
	return spatialmath.Twist2d{
		Dx:     (wheels.Left + wheels.Right) / 2,
		Dtheta: (wheels.Right - wheels.Left) / dd.trackWidth,
	}
}

// LinearToAngular converts a surface speed (in/s) to wheel angular velocity (rad/s).
func (dd *DifferentialDrive) LinearToAngular(pair WheelPair) WheelPair {
	return WheelPair{Left: pair.Left / dd.wheelRadius, Right: pair.Right / dd.wheelRadius}
}

// RotationsToInches converts wheel rotations to surface travel.
func (dd *DifferentialDrive) RotationsToInches(rotations float64) float64 {
	return rotations * 2 * math.Pi * dd.wheelRadius
}

// InchesToRotations converts surface travel to wheel rotations.
func (dd *DifferentialDrive) InchesToRotations(inches float64) float64 {
	return inches / (2 * math.Pi * dd.wheelRadius)
}

// InchesPerSecondToTicksPer100ms converts a surface speed to actuator native velocity units.
func (dd *DifferentialDrive) InchesPerSecondToTicksPer100ms(ips float64) float64 {
	return dd.InchesToRotations(ips) * NativeUnitsPerRotation / 10
}

// TicksPer100msToInchesPerSecond converts actuator native velocity units to a surface speed.
func (dd *DifferentialDrive) TicksPer100msToInchesPerSecond(ticks float64) float64 {
	return dd.RotationsToInches(ticks * 10 / NativeUnitsPerRotation)
}

// RadiansPerSecondToTicksPer100ms converts wheel angular velocity to native velocity units.
func RadiansPerSecondToTicksPer100ms(radPerSec float64) float64 {
	return radPerSec / (2 * math.Pi) * NativeUnitsPerRotation / 10
}

// TicksToRotations converts native position units to wheel rotations.
func TicksToRotations(ticks float64) float64 {
	return ticks / NativeUnitsPerRotation
}
