package control

import (
	"math"

	"github.com/pkg/errors"

	"github.com/bhr3310/motioncore/kinematics"
	"github.com/bhr3310/motioncore/logging"
	"github.com/bhr3310/motioncore/spatialmath"
	"github.com/bhr3310/motioncore/trajectory"
	"github.com/bhr3310/motioncore/utils"
)

const maxSettleAngle = math.Pi / 4

// TimeTracker follows a trajectory by time: at each update it samples where the robot should be
// now and combines feedforward from that setpoint with feedback on the pose error.
type TimeTracker struct {
	kin    *kinematics.DifferentialDrive
	params Params
	pid    *PID
	logger logging.Logger

	iter     *trajectory.Iterator
	started  bool
	start    float64
	last     float64
	setpoint trajectory.TimedState
	err      spatialmath.Pose2d
	done     bool
}

// NewTimeTracker returns a tracker with no trajectory.
func NewTimeTracker(kin *kinematics.DifferentialDrive, params Params, logger logging.Logger) *TimeTracker {
	return &TimeTracker{
		kin:    kin,
		params: params,
		pid:    NewPID(params.Kp, params.Ki, params.Kd),
		logger: logger,
		err:    spatialmath.NewZeroPose(),
	}
}

// SetTrajectory replaces the trajectory and restarts tracking on the next update.
func (tt *TimeTracker) SetTrajectory(traj *trajectory.Trajectory) error {
	if traj == nil {
		return errors.New("cannot follow a nil trajectory")
	}
	if tt.iter == nil {
		tt.iter = trajectory.NewIterator(traj, tt.params.CompletionTolerance)
	} else {
		tt.iter.Reset(traj)
	}
	tt.Reset()
	return nil
}

// Reset restarts the current trajectory from its beginning.
func (tt *TimeTracker) Reset() {
	tt.started = false
	tt.done = false
	tt.pid.Reset()
	tt.err = spatialmath.NewZeroPose()
	if tt.iter != nil {
		tt.iter.Reset(tt.iter.Trajectory())
		tt.setpoint = tt.iter.Current()
	}
}

// Update computes the wheel commands for time now given the estimated pose and measured chassis
// velocity.
func (tt *TimeTracker) Update(now float64, pose spatialmath.Pose2d, measured spatialmath.Twist2d) (Output, error) {
	if tt.iter == nil {
		return Output{}, ErrNoTrajectory
	}
	dt := tt.params.LoopPeriod
	if !tt.started {
		tt.started = true
		tt.start = now
	} else if now > tt.last {
		dt = now - tt.last
	}
	tt.last = now

	traj := tt.iter.Trajectory()
	elapsed := now - tt.start
	tt.setpoint = tt.iter.AdvanceTo(elapsed)
	tt.err = pose.Inverse().TransformBy(tt.setpoint.Pose)

	if !tt.done && elapsed >= traj.Duration() &&
		tt.err.Translation.Norm() <= tt.params.GoalPosTolerance &&
		math.Abs(measured.Dx) <= tt.params.GoalVelTolerance {
		tt.done = true
		tt.logger.Debugw("trajectory complete", "id", traj.ID().String(), "elapsed", elapsed)
	}
	if tt.done {
		return Output{Error: tt.err, Done: true}, nil
	}

	direction := directionOf(traj)
	vd := direction * tt.setpoint.Velocity
	ad := direction * tt.setpoint.Acceleration
	kd := tt.setpoint.Curvature
	ex, ey, etheta := tt.err.Translation.X, tt.err.Translation.Y, tt.err.Rotation.Radians()

	v := tt.params.Kffv*vd + tt.params.Kffa*ad + tt.pid.Next(ex, dt) + tt.params.Kv*(vd-measured.Dx)
	w := vd*kd + tt.params.KY*vd*ey + tt.params.KTheta*etheta
	if elapsed >= traj.Duration() {
		// the setpoint has stopped, so the KY term is gone: turn toward the goal and let the
		// longitudinal loop close the rest
		w += tt.settleRate(ey)
	}

	out := wheelCommand(tt.kin, tt.params,
		spatialmath.Twist2d{Dx: v, Dtheta: w},
		spatialmath.Twist2d{Dx: ad, Dtheta: ad * kd})
	out.Error = tt.err
	return out, nil
}

// settleRate is the turn rate toward a goal that is ey to the side, capped so the heading loop
// never lets the robot turn more than maxSettleAngle away from the path heading.
func (tt *TimeTracker) settleRate(ey float64) float64 {
	limit := math.Abs(tt.params.KTheta) * maxSettleAngle
	return utils.Clamp(tt.params.KSettle*ey, -limit, limit)
}

// IsDone reports whether the robot finished the trajectory within tolerance.
func (tt *TimeTracker) IsDone() bool { return tt.done }

// Error returns the latest pose error in the robot frame.
func (tt *TimeTracker) Error() spatialmath.Pose2d { return tt.err }

// Setpoint returns the latest sampled setpoint.
func (tt *TimeTracker) Setpoint() trajectory.TimedState { return tt.setpoint }

// TakeMarkers returns markers passed since the last call.
func (tt *TimeTracker) TakeMarkers() []trajectory.Marker {
	if tt.iter == nil {
		return nil
	}
	return tt.iter.TakeMarkers()
}
