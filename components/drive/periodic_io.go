package drive

import (
	"github.com/bhr3310/motioncore/spatialmath"
	"github.com/bhr3310/motioncore/trajectory"
)

// PeriodicIO is everything the drive reads and writes in one control cycle. The drive owns it
// exclusively; Snapshot hands out copies.
type PeriodicIO struct {
	// inputs
	Timestamp          float64
	LeftPositionTicks  float64
	RightPositionTicks float64
	// LeftDistance and RightDistance are wheel travel in inches since the drive started, signed.
	LeftDistance       float64
	RightDistance      float64
	LeftVelocityTicks  float64
	RightVelocityTicks float64
	MeasuredVelocity   spatialmath.Twist2d
	GyroHeading        spatialmath.Rotation2d
	Pose               spatialmath.Pose2d
	Error              spatialmath.Pose2d

	// outputs: velocity demands are ticks per 100ms, open loop demands and feedforward are
	// fractions of the nominal voltage
	LeftDemand       float64
	RightDemand      float64
	LeftAccel        float64
	RightAccel       float64
	LeftFeedforward  float64
	RightFeedforward float64
	PathSetpoint     trajectory.TimedState
	Brake            bool

	Faults FaultCounts
}
