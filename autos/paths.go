package autos

import (
	"github.com/bhr3310/motioncore/spatialmath"
	"github.com/bhr3310/motioncore/trajectory"
)

const (
	// CenterStartToScaleLeft backs from the center start position to the left side of the scale,
	// raising the elevator on the way.
	CenterStartToScaleLeft = "CenterStartToScaleLeft"
	// SCurveReversed is a test path: a reversed S bend with a 15 inch offset.
	SCurveReversed = "SCurveReversed"
	// LeftTurnReversed is a test path with a sharp 90 degree corner.
	LeftTurnReversed = "LeftTurnReversed"
)

func init() {
	register(CenterStartToScaleLeft, func() Path {
		return Path{
			Name: CenterStartToScaleLeft,
			Waypoints: []trajectory.Waypoint{
				trajectory.NewWaypoint(19, 157, 0, 0),
				trajectory.NewWaypoint(40, 157, 20, 75),
				trajectory.NewWaypoint(115, 282, 60, 75),
				trajectory.NewWaypoint(210, 239, 20, 75, "raiseElevator"),
				trajectory.NewWaypoint(250, 213, 20, 75),
				trajectory.NewWaypoint(272, 210, 0, 75),
			},
			StartPose: spatialmath.NewPose2d(19, 157, spatialmath.RotationFromDegrees(180)),
			Reversed:  true,
		}
	})
	register(SCurveReversed, func() Path {
		return Path{
			Name: SCurveReversed,
			Waypoints: []trajectory.Waypoint{
				trajectory.NewWaypoint(20, 0, 0, 0),
				trajectory.NewWaypoint(60, 0, 20, 20),
				trajectory.NewWaypoint(100, 15, 20, 20),
				trajectory.NewWaypoint(130, 15, 0, 20),
			},
			StartPose: spatialmath.NewPose2d(20, 0, spatialmath.RotationFromDegrees(180)),
			Reversed:  true,
		}
	})
	register(LeftTurnReversed, func() Path {
		return Path{
			Name: LeftTurnReversed,
			Waypoints: []trajectory.Waypoint{
				trajectory.NewWaypoint(20, 60, 0, 0),
				trajectory.NewWaypoint(60, 60, 0, 20),
				trajectory.NewWaypoint(60, 100, 0, 20),
			},
			StartPose: spatialmath.NewPose2d(20, 60, spatialmath.RotationFromDegrees(180)),
			Reversed:  true,
		}
	})
}
