// Package drive implements the differential drive subsystem: a control-mode state machine that
// each control cycle reads the encoders and gyro, updates the pose estimate, runs the path
// follower when one is active and writes the motor demands.
package drive

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"github.com/bhr3310/motioncore/components/motor"
	"github.com/bhr3310/motioncore/components/movementsensor"
	"github.com/bhr3310/motioncore/control"
	"github.com/bhr3310/motioncore/estimator"
	"github.com/bhr3310/motioncore/kinematics"
	"github.com/bhr3310/motioncore/logging"
	"github.com/bhr3310/motioncore/spatialmath"
	"github.com/bhr3310/motioncore/telemetry"
	"github.com/bhr3310/motioncore/trajectory"
	"github.com/bhr3310/motioncore/utils"
)

// Path follower names accepted in Config.PathFollower.
const (
	FollowerTime        = "time"
	FollowerPurePursuit = "pure_pursuit"
)

const (
	defaultNominalVoltage   = 12.0
	defaultFaultLogInterval = time.Second
)

var _ control.Loopable = &Drive{}

// Config holds the drive's physical constants and tuning.
type Config struct {
	TrackWidth       float64
	WheelDiameter    float64
	TrackScrubFactor float64

	// MaxSetpoint caps velocity setpoints, in inches per second.
	MaxSetpoint float64
	// OpenLoopDeadband is the neutral deadband used in open loop, as a fraction of full output.
	OpenLoopDeadband float64
	// NominalVoltage converts feedforward volts into percent output.
	NominalVoltage float64

	HistoryCapacity int
	PathFollower    string
	Follower        control.Params

	// FaultLogInterval limits how often faults are logged. Every fault is still counted.
	FaultLogInterval time.Duration
}

// Dependencies are the ports the drive talks to. Heading and Sink are optional.
type Dependencies struct {
	Actuator motor.Actuator
	Heading  movementsensor.HeadingSensor
	Sink     telemetry.Sink
}

// Drive is the drive subsystem. Commands may come from any goroutine; OnLoop is called by the
// control loop. A single mutex makes every command atomic with respect to a control cycle.
type Drive struct {
	cfg       Config
	logger    logging.Logger
	actuator  motor.Actuator
	heading   movementsensor.HeadingSensor
	sink      telemetry.Sink
	kin       *kinematics.DifferentialDrive
	estimator *estimator.Estimator
	limiter   *rate.Limiter
	override  atomic.Bool

	mu            sync.Mutex
	mode          ControlMode
	entryActions  map[ControlMode]func(ctx context.Context, from ControlMode) error
	follower      control.Follower
	traj          *trajectory.Trajectory
	finished      bool
	brake         bool
	gyroOffset    spatialmath.Rotation2d
	io            PeriodicIO
	primed        bool
	lastNow       float64
	reportedDone  bool
	pendingFaults []string
	suppressed    int
}

// New returns a drive in JOYSTICK mode.
func New(cfg Config, deps Dependencies, logger logging.Logger) (*Drive, error) {
	if deps.Actuator == nil {
		return nil, NewConfigurationError("an actuator is required")
	}
	if cfg.MaxSetpoint <= 0 {
		return nil, NewConfigurationError("max setpoint must be positive, got %v", cfg.MaxSetpoint)
	}
	if cfg.NominalVoltage == 0 {
		cfg.NominalVoltage = defaultNominalVoltage
	}
	if cfg.FaultLogInterval <= 0 {
		cfg.FaultLogInterval = defaultFaultLogInterval
	}
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = estimator.DefaultHistoryCapacity
	}
	kin, err := kinematics.NewDifferentialDrive(cfg.TrackWidth, cfg.WheelDiameter, cfg.TrackScrubFactor)
	if err != nil {
		return nil, err
	}

	var follower control.Follower
	switch cfg.PathFollower {
	case "", FollowerTime:
		follower = control.NewTimeTracker(kin, cfg.Follower, logger.Sublogger("time_tracker"))
	case FollowerPurePursuit:
		pp, err := control.NewPurePursuit(kin, cfg.Follower, logger.Sublogger("pure_pursuit"))
		if err != nil {
			return nil, err
		}
		follower = pp
	default:
		return nil, NewConfigurationError("unknown path follower %q", cfg.PathFollower)
	}

	sink := deps.Sink
	if sink == nil {
		sink = telemetry.Discard
	}

	d := &Drive{
		cfg:       cfg,
		logger:    logger,
		actuator:  deps.Actuator,
		heading:   deps.Heading,
		sink:      sink,
		kin:       kin,
		estimator: estimator.New(kin, cfg.HistoryCapacity, logger.Sublogger("estimator")),
		limiter:   rate.NewLimiter(rate.Every(cfg.FaultLogInterval), 1),
		follower:  follower,
		mode:      ModeJoystick,
	}
	d.io.Pose = spatialmath.NewZeroPose()
	d.io.Error = spatialmath.NewZeroPose()
	d.entryActions = map[ControlMode]func(ctx context.Context, from ControlMode) error{
		ModeJoystick:         nil,
		ModeHold:             d.enterHold,
		ModeManual:           d.enterOpenLoop,
		ModeVelocitySetpoint: d.enterVelocityControl,
		ModeCameraTrack:      d.enterVelocityControl,
		ModePathFollowing:    d.enterVelocityControl,
		ModeOpenLoop:         d.enterOpenLoop,
	}
	return d, nil
}

// entry actions, run with mu held and only on a mode change

func (d *Drive) enterOpenLoop(ctx context.Context, from ControlMode) error {
	return multierr.Combine(
		d.setBrakeLocked(ctx, false),
		d.actuator.ConfigureForOpenLoop(ctx, d.cfg.OpenLoopDeadband),
	)
}

// enterVelocityControl engages brake-on-neutral and only reconfigures the controllers when coming
// from a mode that does not run their velocity loop.
func (d *Drive) enterVelocityControl(ctx context.Context, from ControlMode) error {
	err := d.setBrakeLocked(ctx, true)
	if usesVelocityControl(from) {
		return err
	}
	return multierr.Append(err, d.actuator.ConfigureForVelocity(ctx))
}

func (d *Drive) enterHold(ctx context.Context, from ControlMode) error {
	return multierr.Combine(
		d.setBrakeLocked(ctx, true),
		d.actuator.ConfigureForHold(ctx),
		d.actuator.SetPosition(ctx, d.io.LeftPositionTicks, d.io.RightPositionTicks),
	)
}

func (d *Drive) setBrakeLocked(ctx context.Context, on bool) error {
	if d.brake == on {
		return nil
	}
	d.brake = on
	d.io.Brake = on
	return d.actuator.SetBrakeMode(ctx, on)
}

func (d *Drive) setModeLocked(ctx context.Context, mode ControlMode) error {
	action, ok := d.entryActions[mode]
	if !ok {
		return NewUnknownModeError(mode.String())
	}
	d.finished = false
	if mode == d.mode {
		return nil
	}
	d.logger.CInfow(ctx, "drive mode changed", "from", d.mode.String(), "to", mode.String())
	from := d.mode
	d.mode = mode
	if action == nil {
		return nil
	}
	return errors.Wrapf(action(ctx, from), "entering %s", mode)
}

// SetControlMode switches modes, running the new mode's entry action if it changed. It also
// clears the finished flag.
func (d *Drive) SetControlMode(ctx context.Context, mode ControlMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setModeLocked(ctx, mode)
}

// ControlMode returns the current mode.
func (d *Drive) ControlMode() ControlMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// SetTrajectory starts following traj from its beginning and clears any override.
func (d *Drive) SetTrajectory(ctx context.Context, traj *trajectory.Trajectory) error {
	if traj == nil {
		return NewConfigurationError("cannot follow a nil trajectory")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.override.Store(false)
	if err := d.follower.SetTrajectory(traj); err != nil {
		return err
	}
	d.traj = traj
	d.reportedDone = false
	d.logger.CInfow(ctx, "following trajectory",
		"id", traj.ID().String(),
		"reversed", traj.Reversed(),
		"length", traj.Length(),
		"duration", traj.Duration(),
	)
	return d.setModeLocked(ctx, ModePathFollowing)
}

// Trajectory returns the trajectory last set, or nil.
func (d *Drive) Trajectory() *trajectory.Trajectory {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.traj
}

// IsDoneWithTrajectory reports whether the follower finished or was overridden. It is false
// when no trajectory was ever set.
func (d *Drive) IsDoneWithTrajectory() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.traj == nil {
		return false
	}
	return d.follower.IsDone() || d.override.Load()
}

// OverrideTrajectory makes path following command a braked stop while set. The follower keeps
// tracking time so it can be released mid-path.
func (d *Drive) OverrideTrajectory(override bool) {
	d.override.Store(override)
}

// SetOpenLoop commands percent output directly. The demand is written on the next cycle.
func (d *Drive) SetOpenLoop(ctx context.Context, signal DriveSignal) error {
	if !utils.IsFinite(signal.Left, signal.Right) {
		return NewNumericDegenerateError("open loop signal", nil)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	if d.mode != ModeOpenLoop {
		d.logger.CDebugw(ctx, "switching to open loop", "signal", signal.String())
		err = d.setModeLocked(ctx, ModeOpenLoop)
	}
	d.io.LeftDemand = utils.Clamp(signal.Left, -1, 1)
	d.io.RightDemand = utils.Clamp(signal.Right, -1, 1)
	d.io.LeftFeedforward, d.io.RightFeedforward = 0, 0
	d.io.LeftAccel, d.io.RightAccel = 0, 0
	return multierr.Combine(err, d.setBrakeLocked(ctx, signal.Brake))
}

// SetVelocitySetpoint commands wheel surface speeds in inches per second, scaled down together
// so neither side exceeds the max setpoint. It is written immediately.
func (d *Drive) SetVelocitySetpoint(ctx context.Context, left, right float64) error {
	if !utils.IsFinite(left, right) {
		return NewNumericDegenerateError("velocity setpoint", nil)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.setModeLocked(ctx, ModeVelocitySetpoint); err != nil {
		return err
	}
	scale := 1.0
	if maxDesired := math.Max(math.Abs(left), math.Abs(right)); maxDesired > d.cfg.MaxSetpoint {
		scale = d.cfg.MaxSetpoint / maxDesired
	}
	d.io.LeftDemand = d.kin.InchesPerSecondToTicksPer100ms(left * scale)
	d.io.RightDemand = d.kin.InchesPerSecondToTicksPer100ms(right * scale)
	d.io.LeftFeedforward, d.io.RightFeedforward = 0, 0
	return d.actuator.SetVelocity(ctx, d.io.LeftDemand, d.io.RightDemand, 0, 0)
}

// SetSpeed drives both sides at the same percent output in MANUAL mode. Zero hands control back
// to the joystick.
func (d *Drive) SetSpeed(ctx context.Context, speed float64) error {
	if !utils.IsFinite(speed) {
		return NewNumericDegenerateError("speed", nil)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if speed == 0 {
		return d.setModeLocked(ctx, ModeJoystick)
	}
	if err := d.setModeLocked(ctx, ModeManual); err != nil {
		return err
	}
	speed = utils.Clamp(speed, -1, 1)
	d.io.LeftDemand, d.io.RightDemand = speed, speed
	return d.actuator.SetPercentOutput(ctx, speed, speed)
}

// SetDriveHold holds the current wheel positions, or releases them to the joystick.
func (d *Drive) SetDriveHold(ctx context.Context, hold bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if hold {
		return d.setModeLocked(ctx, ModeHold)
	}
	return d.setModeLocked(ctx, ModeJoystick)
}

// SetFinished freezes the drive in its current outputs until the mode is next set.
func (d *Drive) SetFinished(finished bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.finished = finished
}

// IsFinished reports the finished flag.
func (d *Drive) IsFinished() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finished
}

// SetHeading makes the current gyro reading correspond to heading.
func (d *Drive) SetHeading(ctx context.Context, heading spatialmath.Rotation2d) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setHeadingLocked(ctx, heading)
}

func (d *Drive) setHeadingLocked(ctx context.Context, heading spatialmath.Rotation2d) error {
	d.io.GyroHeading = heading
	if d.heading == nil {
		return nil
	}
	deg, err := d.heading.FusedHeading(ctx)
	if err != nil {
		return NewSensorFaultError("gyro", err)
	}
	d.gyroOffset = heading.RotateBy(spatialmath.RotationFromDegrees(deg).Inverse())
	d.logger.CDebugw(ctx, "heading set", "heading", heading.Degrees(), "offset", d.gyroOffset.Degrees())
	return nil
}

// ResetPose sets the field pose and aligns the gyro with its heading.
func (d *Drive) ResetPose(ctx context.Context, pose spatialmath.Pose2d) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.estimator.Reset(d.lastNow, pose)
	d.io.Pose = pose
	return d.setHeadingLocked(ctx, pose.Rotation)
}

// CorrectPose composes the latest pose with correction and re-anchors the estimate there.
func (d *Drive) CorrectPose(ctx context.Context, correction spatialmath.Pose2d) (spatialmath.Pose2d, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	corrected := d.estimator.Correct(d.lastNow, correction)
	d.io.Pose = corrected
	return corrected, d.setHeadingLocked(ctx, corrected.Rotation)
}

// FieldToVehicle returns the estimated pose at time t.
func (d *Drive) FieldToVehicle(t float64) spatialmath.Pose2d {
	return d.estimator.FieldToVehicle(t)
}

// Estimator exposes the pose estimator for read-only queries.
func (d *Drive) Estimator() *estimator.Estimator {
	return d.estimator
}

// ZeroSensors zeroes the encoders and the gyro.
func (d *Drive) ZeroSensors(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.actuator.ResetPosition(ctx)
	if d.heading != nil {
		err = multierr.Combine(err, d.heading.SetFusedHeading(ctx, 0))
	}
	d.io.LeftPositionTicks, d.io.RightPositionTicks = 0, 0
	d.primed = false
	return err
}

// Snapshot returns a copy of the latest cycle's inputs and outputs.
func (d *Drive) Snapshot() PeriodicIO {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.io
}

// OnStart implements control.Loopable.
func (d *Drive) OnStart(ctx context.Context, now float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.primed = false
	if now < d.lastNow {
		// a different loop with its own clock; keep the pose but move the history onto it
		pose := d.estimator.Latest().Pose
		d.logger.CWarnw(ctx, "control clock went backwards, rebasing pose history", "t", now, "last", d.lastNow)
		d.estimator.Reset(now, pose)
		d.lastNow = now
	}
	d.logger.CDebugw(ctx, "drive loop started", "t", now, "mode", d.mode.String())
}

// OnStop implements control.Loopable. The motors are left in neutral.
func (d *Drive) OnStop(ctx context.Context, now float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.setModeLocked(ctx, ModeOpenLoop); err != nil {
		d.fault(err)
	}
	d.io.LeftDemand, d.io.RightDemand = 0, 0
	d.io.LeftFeedforward, d.io.RightFeedforward = 0, 0
	d.writeOutputsLocked(ctx)
	d.logger.CDebugw(ctx, "drive loop stopped", "t", now)
}

// OnLoop implements control.Loopable. Faults are counted, logged and published; they never
// escape the cycle.
func (d *Drive) OnLoop(ctx context.Context, now float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.io.Timestamp = now
	d.readInputsLocked(ctx, now)

	var markers []string
	done := false
	if !d.finished {
		switch d.mode {
		case ModePathFollowing:
			markers, done = d.updatePathFollowerLocked(now)
			d.writeOutputsLocked(ctx)
		case ModeOpenLoop:
			d.writeOutputsLocked(ctx)
		case ModeJoystick, ModeHold, ModeManual, ModeVelocitySetpoint, ModeCameraTrack:
			// commanded directly by the setters
		default:
			d.fault(NewUnknownModeError(d.mode.String()))
		}
	}
	d.lastNow = now
	d.publishLocked(now, markers, done)
}

func (d *Drive) readInputsLocked(ctx context.Context, now float64) {
	encodersOK := true
	var leftDelta, rightDelta float64
	left, right, err := d.actuator.Position(ctx)
	switch {
	case err != nil:
		d.fault(NewSensorFaultError("drive encoders", err))
		encodersOK = false
	case !utils.IsFinite(left, right):
		d.fault(NewNumericDegenerateError("encoder position", nil))
		encodersOK = false
	default:
		if d.primed {
			leftDelta = d.kin.RotationsToInches(kinematics.TicksToRotations(left - d.io.LeftPositionTicks))
			rightDelta = d.kin.RotationsToInches(kinematics.TicksToRotations(right - d.io.RightPositionTicks))
		}
		d.io.LeftPositionTicks, d.io.RightPositionTicks = left, right
		d.io.LeftDistance += leftDelta
		d.io.RightDistance += rightDelta
	}

	if lv, rv, err := d.actuator.Velocity(ctx); err != nil {
		d.fault(NewSensorFaultError("drive encoder velocity", err))
	} else {
		d.io.LeftVelocityTicks, d.io.RightVelocityTicks = lv, rv
		d.io.MeasuredVelocity = d.kin.ChassisVelocity(kinematics.WheelPair{
			Left:  d.kin.TicksPer100msToInchesPerSecond(lv),
			Right: d.kin.TicksPer100msToInchesPerSecond(rv),
		})
	}

	headingValid := false
	if d.heading != nil {
		deg, err := d.heading.FusedHeading(ctx)
		switch {
		case err != nil:
			d.fault(NewSensorFaultError("gyro", err))
		case !utils.IsFinite(deg):
			d.fault(NewNumericDegenerateError("gyro heading", nil))
		default:
			d.io.GyroHeading = spatialmath.RotationFromDegrees(deg).RotateBy(d.gyroOffset)
			headingValid = true
		}
	}

	if !encodersOK {
		return
	}
	d.primed = true
	pose, err := d.estimator.Update(now, leftDelta, rightDelta, d.io.GyroHeading, headingValid)
	if err != nil {
		d.fault(NewNumericDegenerateError("odometry", err))
		return
	}
	d.io.Pose = pose
}

func (d *Drive) updatePathFollowerLocked(now float64) ([]string, bool) {
	pose := d.estimator.FieldToVehicle(now)
	out, err := d.follower.Update(now, pose, d.io.MeasuredVelocity)
	if err != nil {
		if errors.Is(err, control.ErrNoTrajectory) {
			d.fault(NewConfigurationError("path following without a trajectory"))
		} else {
			d.fault(NewNumericDegenerateError("path follower output", err))
		}
		return nil, false
	}
	d.io.Error = out.Error
	d.io.PathSetpoint = d.follower.Setpoint()
	markers := lo.Map(d.follower.TakeMarkers(), func(m trajectory.Marker, _ int) string { return m.Label })

	if out.Done && !d.reportedDone {
		d.reportedDone = true
		d.logger.Infow("trajectory complete", "id", d.traj.ID().String(), "t", now)
	}

	if d.override.Load() {
		d.io.LeftDemand, d.io.RightDemand = BrakeSignal.Left, BrakeSignal.Right
		d.io.LeftFeedforward, d.io.RightFeedforward = 0, 0
		d.io.LeftAccel, d.io.RightAccel = 0, 0
		return markers, out.Done
	}
	if !utils.IsFinite(out.LeftVelocity, out.RightVelocity, out.LeftFeedforward, out.RightFeedforward,
		out.LeftAcceleration, out.RightAcceleration) {
		d.fault(NewNumericDegenerateError("wheel command", nil))
		return markers, out.Done
	}
	d.io.LeftDemand = kinematics.RadiansPerSecondToTicksPer100ms(out.LeftVelocity)
	d.io.RightDemand = kinematics.RadiansPerSecondToTicksPer100ms(out.RightVelocity)
	d.io.LeftFeedforward = out.LeftFeedforward / d.cfg.NominalVoltage
	d.io.RightFeedforward = out.RightFeedforward / d.cfg.NominalVoltage
	d.io.LeftAccel = kinematics.RadiansPerSecondToTicksPer100ms(out.LeftAcceleration) / 1000
	d.io.RightAccel = kinematics.RadiansPerSecondToTicksPer100ms(out.RightAcceleration) / 1000
	return markers, out.Done
}

func (d *Drive) writeOutputsLocked(ctx context.Context) {
	var err error
	if d.mode == ModeOpenLoop {
		err = d.actuator.SetPercentOutput(ctx, d.io.LeftDemand, d.io.RightDemand)
	} else {
		err = d.actuator.SetVelocity(ctx, d.io.LeftDemand, d.io.RightDemand, d.io.LeftFeedforward, d.io.RightFeedforward)
	}
	for _, e := range multierr.Errors(err) {
		d.fault(errors.Wrap(e, "writing drive outputs"))
	}
}

func (d *Drive) fault(err error) {
	kind := d.io.Faults.count(err)
	d.pendingFaults = append(d.pendingFaults, err.Error())
	if !d.limiter.Allow() {
		d.suppressed++
		return
	}
	d.logger.Warnw("drive fault", "kind", kind, "error", err, "suppressed", d.suppressed)
	d.suppressed = 0
}

func (d *Drive) publishLocked(now float64, markers []string, done bool) {
	frame := telemetry.Frame{
		Time:             now,
		Mode:             d.mode.String(),
		LeftDemand:       d.io.LeftDemand,
		RightDemand:      d.io.RightDemand,
		LeftFeedforward:  d.io.LeftFeedforward,
		RightFeedforward: d.io.RightFeedforward,
		LeftVelocity:     d.io.LeftVelocityTicks,
		RightVelocity:    d.io.RightVelocityTicks,
		Done:             done,
		Markers:          markers,
		Faults:           d.pendingFaults,
	}
	frame.SetPose(d.io.Pose)
	if d.mode == ModePathFollowing && d.traj != nil {
		frame.TrajectoryID = d.traj.ID().String()
		frame.SetSetpoint(d.io.PathSetpoint.Pose, d.io.PathSetpoint.Velocity)
		frame.SetError(d.io.Error)
	}
	d.pendingFaults = nil
	d.sink.Publish(frame)
}
