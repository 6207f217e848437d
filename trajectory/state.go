package trajectory

import (
	"fmt"
	"math"

	"github.com/bhr3310/motioncore/spatialmath"
	"github.com/bhr3310/motioncore/utils"
)

// PathState is a pose on the path with its curvature and the arc length travelled to reach it.
// For reversed trajectories the pose heading is the robot heading, opposite the direction of
// travel.
type PathState struct {
	Pose      spatialmath.Pose2d
	Curvature float64
	Distance  float64
}

// TimedState adds the time at which the robot should be at the state and the speed and
// acceleration along the path there. Velocity is always a magnitude.
type TimedState struct {
	PathState
	Time         float64
	Velocity     float64
	Acceleration float64
}

func (s TimedState) String() string {
	return fmt.Sprintf("t=%.3f s=%.2f pose=%s v=%.2f a=%.2f k=%.4f",
		s.Time, s.Distance, s.Pose, s.Velocity, s.Acceleration, s.Curvature)
}

// interpolateByDistance blends two neighbouring states at a fraction of the distance between
// them. Time is solved from the constant acceleration between the two states.
func interpolateByDistance(a, b TimedState, x float64) TimedState {
	x = utils.Clamp(x, 0, 1)
	ds := b.Distance - a.Distance
	out := TimedState{
		PathState: PathState{
			Pose:      a.Pose.Interpolate(b.Pose, x),
			Curvature: utils.Interpolate(a.Curvature, b.Curvature, x),
			Distance:  a.Distance + ds*x,
		},
		Acceleration: a.Acceleration,
	}
	v2 := a.Velocity*a.Velocity + 2*a.Acceleration*ds*x
	if v2 < 0 {
		v2 = 0
	}
	out.Velocity = utils.Clamp(math.Sqrt(v2), min(a.Velocity, b.Velocity), max(a.Velocity, b.Velocity))
	if a.Velocity+out.Velocity > utils.Epsilon {
		out.Time = a.Time + 2*ds*x/(a.Velocity+out.Velocity)
	} else {
		out.Time = utils.Interpolate(a.Time, b.Time, x)
	}
	return out
}

// interpolateByTime blends two neighbouring states at time t, assuming constant acceleration.
func interpolateByTime(a, b TimedState, t float64) TimedState {
	dt := b.Time - a.Time
	if dt <= utils.Epsilon {
		return a
	}
	tau := utils.Clamp(t-a.Time, 0, dt)
	ds := b.Distance - a.Distance
	travelled := a.Velocity*tau + 0.5*a.Acceleration*tau*tau
	var x float64
	if ds > utils.Epsilon {
		x = utils.Clamp(travelled/ds, 0, 1)
	} else {
		x = tau / dt
	}
	v := utils.Clamp(a.Velocity+a.Acceleration*tau, min(a.Velocity, b.Velocity), max(a.Velocity, b.Velocity))
	return TimedState{
		PathState: PathState{
			Pose:      a.Pose.Interpolate(b.Pose, x),
			Curvature: utils.Interpolate(a.Curvature, b.Curvature, x),
			Distance:  a.Distance + ds*x,
		},
		Time:         a.Time + tau,
		Velocity:     v,
		Acceleration: a.Acceleration,
	}
}
