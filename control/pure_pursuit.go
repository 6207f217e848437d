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

// chord lengths below this are treated as "on the target".
const minChord = 1e-6

// PurePursuit follows a trajectory geometrically: it chases a point a speed-dependent distance
// ahead of the robot's projection onto the path and drives the arc that reaches it. Speed comes
// from the trajectory's velocity profile at the robot's progress.
type PurePursuit struct {
	kin    *kinematics.DifferentialDrive
	params Params
	logger logging.Logger

	view      *trajectory.DistanceView
	iter      *trajectory.Iterator
	progress  float64
	lastSpeed float64
	last      float64
	started   bool
	done      bool
	err       spatialmath.Pose2d
	setpoint  trajectory.TimedState
}

// NewPurePursuit returns a pure pursuit controller with no trajectory.
func NewPurePursuit(kin *kinematics.DifferentialDrive, params Params, logger logging.Logger) (*PurePursuit, error) {
	if err := params.Lookahead.Validate(); err != nil {
		return nil, err
	}
	if params.LoopPeriod <= 0 {
		return nil, errors.Errorf("loop period must be positive, got %v", params.LoopPeriod)
	}
	return &PurePursuit{kin: kin, params: params, logger: logger, err: spatialmath.NewZeroPose()}, nil
}

// SetTrajectory replaces the path being chased.
func (pp *PurePursuit) SetTrajectory(traj *trajectory.Trajectory) error {
	if traj == nil {
		return errors.New("cannot follow a nil trajectory")
	}
	view, err := trajectory.NewDistanceView(traj)
	if err != nil {
		return err
	}
	pp.view = view
	pp.iter = trajectory.NewIterator(traj, pp.params.CompletionTolerance)
	pp.Reset()
	return nil
}

// Reset restarts from the beginning of the path.
func (pp *PurePursuit) Reset() {
	pp.progress = 0
	pp.lastSpeed = 0
	pp.started = false
	pp.done = false
	pp.err = spatialmath.NewZeroPose()
	if pp.view != nil {
		pp.iter.Reset(pp.view.Trajectory())
		pp.setpoint = pp.view.Sample(0)
	}
}

// Update computes wheel commands at time now.
func (pp *PurePursuit) Update(now float64, pose spatialmath.Pose2d, _ spatialmath.Twist2d) (Output, error) {
	if pp.view == nil {
		return Output{}, ErrNoTrajectory
	}
	dt := pp.params.LoopPeriod
	if pp.started && now > pp.last {
		dt = now - pp.last
	}
	pp.started = true
	pp.last = now

	prevSpeed := pp.lastSpeed
	cmd := pp.step(pose, dt)
	if pp.done {
		return Output{Error: pp.err, Done: true}, nil
	}
	// the commanded speed change over this step is the chassis acceleration
	accel := directionOf(pp.view.Trajectory()) * (pp.lastSpeed - prevSpeed) / dt
	curvature := 0.0
	if math.Abs(cmd.Dx) > utils.Epsilon {
		curvature = cmd.Dtheta / cmd.Dx
	}
	out := wheelCommand(pp.kin, pp.params, cmd, spatialmath.Twist2d{Dx: accel, Dtheta: accel * curvature})
	out.Error = pp.err
	return out, nil
}

// Steer advances the controller one loop period from pose and returns the chassis command.
func (pp *PurePursuit) Steer(pose spatialmath.Pose2d) spatialmath.Twist2d {
	if pp.view == nil {
		return spatialmath.Twist2d{}
	}
	return pp.step(pose, pp.params.LoopPeriod)
}

func (pp *PurePursuit) step(pose spatialmath.Pose2d, dt float64) spatialmath.Twist2d {
	if pp.done {
		return spatialmath.Twist2d{}
	}
	traj := pp.view.Trajectory()
	length := pp.view.Length()
	direction := directionOf(traj)
	prevSpeed := pp.lastSpeed

	// never search backwards so the robot cannot lock onto an earlier part of a crossing path
	window := pp.params.Lookahead.MaxDistance + 2*math.Max(prevSpeed, pp.params.MinPursuitSpeed)*dt + 1
	pp.progress = pp.view.Project(pose.Translation, pp.progress, pp.progress+window)
	remaining := length - pp.progress

	pp.setpoint = pp.view.Sample(pp.progress)
	pp.iter.AdvanceTo(pp.setpoint.Time)
	pp.err = pose.Inverse().TransformBy(pp.setpoint.Pose)

	lookahead := math.Min(pp.params.Lookahead.Distance(prevSpeed), remaining)
	targetDistance := pp.progress + lookahead
	atEnd := targetDistance >= length-utils.Epsilon
	if atEnd && remaining < pp.params.CompletionTolerance {
		if !pp.done {
			pp.logger.Debugw("pure pursuit complete", "id", traj.ID().String(), "remaining", remaining)
		}
		pp.done = true
		pp.lastSpeed = 0
		pp.iter.AdvanceTo(traj.Duration())
		return spatialmath.Twist2d{}
	}

	target := pp.view.Sample(targetDistance).Pose.Translation
	rel := pose.Rotation.Inverse().Rotate(target.Sub(pose.Translation))
	chord := rel.Norm()
	if chord < minChord {
		// sitting on the target: turn in place toward the path heading
		pp.lastSpeed = 0
		return spatialmath.Twist2d{Dtheta: pp.params.KTheta * pp.err.Rotation.Radians()}
	}

	speed := math.Max(pp.view.Velocity(pp.progress), pp.view.Velocity(targetDistance))
	speed = math.Min(speed, prevSpeed+pp.params.MaxAcceleration*dt)
	speed = math.Min(speed, math.Sqrt(2*pp.params.MaxAcceleration*remaining))
	speed = math.Max(speed, pp.params.MinPursuitSpeed)
	if dt > 0 {
		speed = math.Min(speed, remaining/dt)
	}
	pp.lastSpeed = speed

	curvature := 2 * rel.Y / (chord * chord)
	// near the end only stop steering once the robot is already on the path; otherwise keep
	// chasing the final point so a leftover offset is not carried through to the finish
	if remaining <= pp.params.StopSteeringDistance && math.Abs(pp.err.Translation.Y) <= pp.params.GoalPosTolerance {
		curvature = 0
	}
	v := direction * speed
	return spatialmath.Twist2d{Dx: v, Dtheta: v * curvature}
}

// IsDone reports whether the robot reached the end of the path.
func (pp *PurePursuit) IsDone() bool { return pp.done }

// Error returns the pose error relative to the robot's projection on the path.
func (pp *PurePursuit) Error() spatialmath.Pose2d { return pp.err }

// Setpoint returns the state at the robot's projection on the path.
func (pp *PurePursuit) Setpoint() trajectory.TimedState { return pp.setpoint }

// Progress returns the arc length the robot has covered.
func (pp *PurePursuit) Progress() float64 { return pp.progress }

// TakeMarkers returns markers passed since the last call.
func (pp *PurePursuit) TakeMarkers() []trajectory.Marker {
	if pp.iter == nil {
		return nil
	}
	return pp.iter.TakeMarkers()
}
