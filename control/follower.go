// Package control holds the path-following controllers and the fixed-period loop that runs them.
package control

import (
	"math"

	"github.com/pkg/errors"

	"github.com/bhr3310/motioncore/kinematics"
	"github.com/bhr3310/motioncore/spatialmath"
	"github.com/bhr3310/motioncore/trajectory"
	"github.com/bhr3310/motioncore/utils"
)

// ErrNoTrajectory is returned by Update when no trajectory has been set.
var ErrNoTrajectory = errors.New("no trajectory set")

// Params configures the path followers. Distances are inches, times are seconds.
type Params struct {
	// longitudinal feedback and feedforward
	Kp   float64
	Ki   float64
	Kd   float64
	Kv   float64
	Kffv float64
	Kffa float64

	// cross-track and heading feedback. KSettle turns toward leftover cross-track error once the
	// trajectory's time has run out (rad/s per inch).
	KY      float64
	KTheta  float64
	KSettle float64

	// wheel motor model for voltage feedforward
	MotorKv float64
	MotorKa float64
	MotorKs float64

	GoalPosTolerance    float64
	GoalVelTolerance    float64
	CompletionTolerance float64

	Lookahead            Lookahead
	MaxAcceleration      float64
	MinPursuitSpeed      float64
	StopSteeringDistance float64

	LoopPeriod float64
}

// Output is one cycle of follower commands.
type Output struct {
	// Chassis is the commanded forward and angular velocity.
	Chassis spatialmath.Twist2d

	// wheel angular velocity (rad/s), acceleration (rad/s²) and feedforward (volts)
	LeftVelocity      float64
	RightVelocity     float64
	LeftAcceleration  float64
	RightAcceleration float64
	LeftFeedforward   float64
	RightFeedforward  float64

	Error spatialmath.Pose2d
	Done  bool
}

// Follower steers the robot along a trajectory. Implementations are driven by one goroutine.
type Follower interface {
	SetTrajectory(traj *trajectory.Trajectory) error
	Reset()
	Update(now float64, pose spatialmath.Pose2d, measured spatialmath.Twist2d) (Output, error)
	IsDone() bool
	Error() spatialmath.Pose2d
	Setpoint() trajectory.TimedState
	TakeMarkers() []trajectory.Marker
}

// wheelCommand converts chassis velocity and acceleration into per-wheel commands.
func wheelCommand(
	kin *kinematics.DifferentialDrive,
	params Params,
	velocity spatialmath.Twist2d,
	acceleration spatialmath.Twist2d,
) Output {
	vel := kin.LinearToAngular(kin.WheelVelocities(velocity))
	acc := kin.LinearToAngular(kin.WheelVelocities(acceleration))
	return Output{
		Chassis:           velocity,
		LeftVelocity:      vel.Left,
		RightVelocity:     vel.Right,
		LeftAcceleration:  acc.Left,
		RightAcceleration: acc.Right,
		LeftFeedforward:   motorFeedforward(params, vel.Left, acc.Left),
		RightFeedforward:  motorFeedforward(params, vel.Right, acc.Right),
	}
}

// motorFeedforward is Kv·ω + Ka·α + Ks·sign(ω), with no static term when the wheel is stopped.
func motorFeedforward(params Params, velocity, acceleration float64) float64 {
	ff := params.MotorKv*velocity + params.MotorKa*acceleration
	if math.Abs(velocity) > utils.Epsilon {
		ff += params.MotorKs * utils.Sign(velocity)
	}
	return ff
}

func directionOf(traj *trajectory.Trajectory) float64 {
	if traj.Reversed() {
		return -1
	}
	return 1
}
