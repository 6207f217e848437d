// Package fake implements a simulated pair of drive motors for tests and offline runs.
package fake

import (
	"context"
	"math"
	"sync"

	"github.com/bhr3310/motioncore/components/motor"
	"github.com/bhr3310/motioncore/kinematics"
	"github.com/bhr3310/motioncore/logging"
	"github.com/bhr3310/motioncore/spatialmath"
	"github.com/bhr3310/motioncore/utils"
)

const (
	defaultTimeConstant = 0.05
	defaultFreeSpeedIPS = 180.0
	defaultHoldGain     = 2.0
	coastSlowdown       = 10.0
)

var _ motor.Actuator = &Drive{}

// Config describes the simulated drivetrain.
type Config struct {
	// TrackWidth and WheelDiameter are the true geometry in inches.
	TrackWidth    float64
	WheelDiameter float64
	// TimeConstant is the first-order response time of each side in seconds.
	TimeConstant float64
	// FreeSpeed is the wheel surface speed at full output in inches per second.
	FreeSpeed float64
	// HoldGain converts position error (ticks) into velocity (ticks/100ms) in hold mode.
	HoldGain float64
}

// Command is the last thing written to the controllers.
type Command struct {
	Mode             motor.Mode
	Left             float64
	Right            float64
	LeftFeedforward  float64
	RightFeedforward float64
}

// Drive simulates two motor controllers on a differential drivetrain. Wheel velocity follows the
// command with a first-order lag and the true robot pose is integrated from wheel travel.
type Drive struct {
	cfg    Config
	kin    *kinematics.DifferentialDrive
	logger logging.Logger

	mu        sync.Mutex
	mode      motor.Mode
	deadband  float64
	brake     bool
	command   Command
	velocity  kinematics.WheelPair // ticks per 100ms
	position  kinematics.WheelPair // ticks
	accel     float64
	pose      spatialmath.Pose2d
	readErr   error
	writeErr  error
	last      float64
	started   bool
	setpoints int
}

// NewDrive returns a stopped simulated drive at the origin.
func NewDrive(cfg Config, logger logging.Logger) (*Drive, error) {
	if cfg.TimeConstant <= 0 {
		cfg.TimeConstant = defaultTimeConstant
	}
	if cfg.FreeSpeed <= 0 {
		cfg.FreeSpeed = defaultFreeSpeedIPS
	}
	if cfg.HoldGain <= 0 {
		cfg.HoldGain = defaultHoldGain
	}
	kin, err := kinematics.NewDifferentialDrive(cfg.TrackWidth, cfg.WheelDiameter, 1)
	if err != nil {
		return nil, err
	}
	return &Drive{cfg: cfg, kin: kin, logger: logger, pose: spatialmath.NewZeroPose()}, nil
}

// ConfigureForVelocity implements motor.Actuator.
func (d *Drive) ConfigureForVelocity(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = motor.ModeVelocity
	d.deadband = 0
	return d.writeErr
}

// ConfigureForOpenLoop implements motor.Actuator.
func (d *Drive) ConfigureForOpenLoop(ctx context.Context, deadband float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = motor.ModePercentOutput
	d.deadband = math.Abs(deadband)
	return d.writeErr
}

// ConfigureForHold implements motor.Actuator.
func (d *Drive) ConfigureForHold(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = motor.ModePosition
	return d.writeErr
}

// SetVelocity implements motor.Actuator.
func (d *Drive) SetVelocity(ctx context.Context, left, right, leftFeedforward, rightFeedforward float64) error {
	if !utils.IsFinite(left, right, leftFeedforward, rightFeedforward) {
		return motor.NewNonFiniteCommandError("velocity")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writeErr != nil {
		return d.writeErr
	}
	if d.mode != motor.ModeVelocity {
		return motor.NewWrongModeError(motor.ModeVelocity, d.mode)
	}
	d.command = Command{motor.ModeVelocity, left, right, leftFeedforward, rightFeedforward}
	d.setpoints++
	return nil
}

// SetPercentOutput implements motor.Actuator. Setting percent output switches the controllers
// out of any closed-loop mode.
func (d *Drive) SetPercentOutput(ctx context.Context, left, right float64) error {
	if !utils.IsFinite(left, right) {
		return motor.NewNonFiniteCommandError("percent output")
	}
	if math.Abs(left) > 1 {
		return motor.NewOutOfRangeError("left", left)
	}
	if math.Abs(right) > 1 {
		return motor.NewOutOfRangeError("right", right)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writeErr != nil {
		return d.writeErr
	}
	d.mode = motor.ModePercentOutput
	d.command = Command{Mode: motor.ModePercentOutput, Left: left, Right: right}
	d.setpoints++
	return nil
}

// SetPosition implements motor.Actuator.
func (d *Drive) SetPosition(ctx context.Context, left, right float64) error {
	if !utils.IsFinite(left, right) {
		return motor.NewNonFiniteCommandError("position")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writeErr != nil {
		return d.writeErr
	}
	if d.mode != motor.ModePosition {
		return motor.NewWrongModeError(motor.ModePosition, d.mode)
	}
	d.command = Command{Mode: motor.ModePosition, Left: left, Right: right}
	d.setpoints++
	return nil
}

// SetBrakeMode implements motor.Actuator.
func (d *Drive) SetBrakeMode(ctx context.Context, on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.brake != on {
		d.logger.Debugw("simulated brake mode changed", "brake", on)
	}
	d.brake = on
	return d.writeErr
}

// Position implements motor.Actuator.
func (d *Drive) Position(ctx context.Context) (float64, float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.readErr != nil {
		return 0, 0, d.readErr
	}
	return math.Round(d.position.Left), math.Round(d.position.Right), nil
}

// Velocity implements motor.Actuator.
func (d *Drive) Velocity(ctx context.Context) (float64, float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.readErr != nil {
		return 0, 0, d.readErr
	}
	return math.Round(d.velocity.Left), math.Round(d.velocity.Right), nil
}

// ResetPosition implements motor.Actuator.
func (d *Drive) ResetPosition(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.position = kinematics.WheelPair{}
	return d.writeErr
}

// Step advances the simulation by dt seconds.
func (d *Drive) Step(dt float64) {
	if dt <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	freeSpeed := d.kin.InchesPerSecondToTicksPer100ms(d.cfg.FreeSpeed)
	tau := d.cfg.TimeConstant
	target := func(cmd, position float64) float64 {
		switch d.command.Mode {
		case motor.ModeVelocity:
			return cmd
		case motor.ModePosition:
			return utils.Clamp(d.cfg.HoldGain*(cmd-position), -freeSpeed, freeSpeed)
		default:
			if math.Abs(cmd) < d.deadband {
				return 0
			}
			return cmd * freeSpeed
		}
	}
	neutral := d.command.Mode == motor.ModePercentOutput && d.command.Left == 0 && d.command.Right == 0
	if neutral && !d.brake {
		tau *= coastSlowdown
	}
	alpha := 1 - math.Exp(-dt/tau)

	prev := d.velocity
	d.velocity.Left += (target(d.command.Left, d.position.Left) - d.velocity.Left) * alpha
	d.velocity.Right += (target(d.command.Right, d.position.Right) - d.velocity.Right) * alpha

	// ticks per 100ms to ticks per second
	leftTicks := 10 * dt * (prev.Left + d.velocity.Left) / 2
	rightTicks := 10 * dt * (prev.Right + d.velocity.Right) / 2
	d.position.Left += leftTicks
	d.position.Right += rightTicks

	leftInches := d.kin.RotationsToInches(kinematics.TicksToRotations(leftTicks))
	rightInches := d.kin.RotationsToInches(kinematics.TicksToRotations(rightTicks))
	d.pose = d.pose.TransformBy(spatialmath.Exp(d.kin.ForwardKinematics(leftInches, rightInches)))

	before := d.kin.TicksPer100msToInchesPerSecond((prev.Left + prev.Right) / 2)
	after := d.kin.TicksPer100msToInchesPerSecond((d.velocity.Left + d.velocity.Right) / 2)
	d.accel = (after - before) / dt
}

// OnStart starts simulated time. Registering the drive on a control loop ahead of the consumers
// steps the physics once per cycle.
func (d *Drive) OnStart(ctx context.Context, now float64) {
	d.mu.Lock()
	d.last = now
	d.started = true
	d.mu.Unlock()
}

// OnLoop steps the simulation to now.
func (d *Drive) OnLoop(ctx context.Context, now float64) {
	d.mu.Lock()
	dt := now - d.last
	if !d.started {
		dt = 0
	}
	d.last = now
	d.started = true
	d.mu.Unlock()
	d.Step(dt)
}

// OnStop does nothing; the simulation simply stops advancing.
func (d *Drive) OnStop(ctx context.Context, now float64) {}

// TruePose returns the simulated robot pose.
func (d *Drive) TruePose() spatialmath.Pose2d {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pose
}

// SetTruePose teleports the simulated robot.
func (d *Drive) SetTruePose(pose spatialmath.Pose2d) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pose = pose
}

// TrueHeading returns the simulated robot heading.
func (d *Drive) TrueHeading() spatialmath.Rotation2d {
	return d.TruePose().Rotation
}

// LinearAcceleration returns the forward acceleration over the last step in inches/s².
func (d *Drive) LinearAcceleration() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.accel
}

// LastCommand returns the last accepted command.
func (d *Drive) LastCommand() Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.command
}

// Setpoints returns how many commands have been accepted.
func (d *Drive) Setpoints() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setpoints
}

// Mode returns the configured controller mode.
func (d *Drive) Mode() motor.Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// Deadband returns the configured open loop deadband.
func (d *Drive) Deadband() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deadband
}

// Brake reports whether brake mode is on.
func (d *Drive) Brake() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.brake
}

// InjectReadError makes encoder reads fail with err until cleared with nil.
func (d *Drive) InjectReadError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readErr = err
}

// InjectWriteError makes every command fail with err until cleared with nil.
func (d *Drive) InjectWriteError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeErr = err
}
