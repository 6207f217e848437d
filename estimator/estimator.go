// Package estimator integrates wheel odometry and heading into a field-relative pose history.
package estimator

import (
	"math"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/bhr3310/motioncore/kinematics"
	"github.com/bhr3310/motioncore/logging"
	"github.com/bhr3310/motioncore/spatialmath"
	"github.com/bhr3310/motioncore/utils"
)

// Estimator tracks the robot's field pose. Update is called by one writer, normally the drive's
// control cycle; the query methods are safe from any goroutine.
type Estimator struct {
	kin     *kinematics.DifferentialDrive
	history *PoseHistory
	logger  logging.Logger

	mu             sync.Mutex
	lastTime       float64
	started        bool
	distanceDriven float64

	velocity atomic.Pointer[spatialmath.Twist2d]
}

// New returns an estimator whose history holds historyCapacity poses. The pose starts at the
// origin until Reset is called.
func New(kin *kinematics.DifferentialDrive, historyCapacity int, logger logging.Logger) *Estimator {
	e := &Estimator{
		kin:     kin,
		history: NewPoseHistory(historyCapacity),
		logger:  logger,
	}
	e.velocity.Store(&spatialmath.Twist2d{})
	return e
}

// Reset discards the history and sets the pose at time t.
func (e *Estimator) Reset(t float64, pose spatialmath.Pose2d) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history.Reset(t, pose)
	e.lastTime = t
	e.started = true
	e.distanceDriven = 0
	e.velocity.Store(&spatialmath.Twist2d{})
	e.logger.Debugw("pose reset", "time", t, "pose", pose.String())
}

// Correct re-anchors the history on the latest pose composed with a correction transform.
func (e *Estimator) Correct(t float64, correction spatialmath.Pose2d) spatialmath.Pose2d {
	corrected := e.Latest().Pose.TransformBy(correction)
	e.Reset(t, corrected)
	return corrected
}

// Update integrates one cycle of wheel travel (inches) onto the latest pose. When headingValid is
// set, heading is the measured field heading and replaces the wheel-derived rotation.
func (e *Estimator) Update(
	t, leftDelta, rightDelta float64,
	heading spatialmath.Rotation2d,
	headingValid bool,
) (spatialmath.Pose2d, error) {
	if !utils.IsFinite(t, leftDelta, rightDelta) {
		return spatialmath.Pose2d{}, errors.Errorf("non-finite odometry input t=%v left=%v right=%v", t, leftDelta, rightDelta)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	latest, ok := e.history.Latest()
	if !ok {
		latest = PoseSample{Time: t, Pose: spatialmath.NewZeroPose()}
	}

	var twist spatialmath.Twist2d
	if headingValid {
		dtheta := latest.Pose.Rotation.Inverse().RotateBy(heading).Radians()
		twist = e.kin.ForwardKinematicsWithHeading(leftDelta, rightDelta, dtheta)
	} else {
		twist = e.kin.ForwardKinematics(leftDelta, rightDelta)
	}
	pose := latest.Pose.TransformBy(spatialmath.Exp(twist))
	if headingValid {
		// pin the rotation to the sensor so heading error never accumulates
		pose.Rotation = heading
	}

	if !ok {
		e.history.Reset(t, pose)
	} else if err := e.history.Add(t, pose); err != nil {
		return latest.Pose, err
	}

	if e.started {
		if dt := t - e.lastTime; dt > 0 {
			v := twist.Scaled(1 / dt)
			e.velocity.Store(&v)
		}
	}
	e.started = true
	e.lastTime = t
	e.distanceDriven += math.Abs(twist.Dx)
	return pose, nil
}

// FieldToVehicle returns the pose at time t, clamped to the retained window.
func (e *Estimator) FieldToVehicle(t float64) spatialmath.Pose2d {
	return e.history.At(t)
}

// Latest returns the newest pose sample. Before any update it is the origin at time zero.
func (e *Estimator) Latest() PoseSample {
	if s, ok := e.history.Latest(); ok {
		return s
	}
	return PoseSample{Pose: spatialmath.NewZeroPose()}
}

// VehicleVelocity returns the chassis velocity measured over the last update.
func (e *Estimator) VehicleVelocity() spatialmath.Twist2d {
	return *e.velocity.Load()
}

// DistanceDriven returns the forward distance travelled since the last reset, ignoring
// direction.
func (e *Estimator) DistanceDriven() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.distanceDriven
}

// History exposes the pose history for read-only queries.
func (e *Estimator) History() *PoseHistory {
	return e.history
}
