package estimator

import (
	"math"
	"sync"
	"testing"

	"go.uber.org/atomic"
	"go.viam.com/test"

	"github.com/bhr3310/motioncore/kinematics"
	"github.com/bhr3310/motioncore/logging"
	"github.com/bhr3310/motioncore/spatialmath"
)

func newTestEstimator(t *testing.T) *Estimator {
	t.Helper()
	kin, err := kinematics.NewDifferentialDrive(23.92, 5.8, 0.924)
	test.That(t, err, test.ShouldBeNil)
	return New(kin, DefaultHistoryCapacity, logging.NewTestLogger(t))
}

func TestOdometryIsStepInvariant(t *testing.T) {
	const left, right = 30.0, 42.0
	start := spatialmath.NewPose2d(5, -3, spatialmath.RotationFromDegrees(35))

	for _, steps := range []int{1, 2, 7, 50} {
		e := newTestEstimator(t)
		e.Reset(0, start)
		var pose spatialmath.Pose2d
		var err error
		for i := 1; i <= steps; i++ {
			pose, err = e.Update(float64(i)*0.01, left/float64(steps), right/float64(steps), spatialmath.Rotation2d{}, false)
			test.That(t, err, test.ShouldBeNil)
		}

		single := newTestEstimator(t)
		single.Reset(0, start)
		want, err := single.Update(1, left, right, spatialmath.Rotation2d{}, false)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pose.AlmostEqual(want, 1e-9), test.ShouldBeTrue)
		test.That(t, e.DistanceDriven(), test.ShouldAlmostEqual, 36.0)
	}
}

func TestOdometryWithHeading(t *testing.T) {
	e := newTestEstimator(t)
	e.Reset(0, spatialmath.NewZeroPose())

	// drive a quarter circle of radius 20 in ten steps, with the gyro reporting the true heading
	const radius = 20.0
	arc := radius * math.Pi / 2
	for i := 1; i <= 10; i++ {
		heading := spatialmath.RotationFromRadians(float64(i) * math.Pi / 20)
		_, err := e.Update(float64(i)*0.01, arc/10, arc/10, heading, true)
		test.That(t, err, test.ShouldBeNil)
	}
	latest := e.Latest().Pose
	test.That(t, latest.X(), test.ShouldAlmostEqual, radius, 1e-9)
	test.That(t, latest.Y(), test.ShouldAlmostEqual, radius, 1e-9)
	test.That(t, latest.Rotation.Degrees(), test.ShouldAlmostEqual, 90.0)

	v := e.VehicleVelocity()
	test.That(t, v.Dx, test.ShouldAlmostEqual, arc/10/0.01)
	test.That(t, v.Dtheta, test.ShouldAlmostEqual, math.Pi/20/0.01)
}

func TestUpdateRejectsBadInput(t *testing.T) {
	e := newTestEstimator(t)
	e.Reset(1, spatialmath.NewZeroPose())

	_, err := e.Update(1, 1, 1, spatialmath.Rotation2d{}, false)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = e.Update(2, math.NaN(), 1, spatialmath.Rotation2d{}, false)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, e.History().Len(), test.ShouldEqual, 1)
}

func TestCorrect(t *testing.T) {
	e := newTestEstimator(t)
	e.Reset(0, spatialmath.NewPose2d(10, 0, spatialmath.RotationFromDegrees(90)))
	corrected := e.Correct(1, spatialmath.NewPose2d(2, 0, spatialmath.Rotation2d{}))
	test.That(t, corrected.X(), test.ShouldAlmostEqual, 10.0)
	test.That(t, corrected.Y(), test.ShouldAlmostEqual, 2.0)
	test.That(t, e.History().Len(), test.ShouldEqual, 1)
	test.That(t, e.Latest().Time, test.ShouldEqual, 1.0)
}

func TestHistoryClamping(t *testing.T) {
	h := NewPoseHistory(DefaultHistoryCapacity)
	test.That(t, h.At(3), test.ShouldResemble, spatialmath.NewZeroPose())
	_, ok := h.Latest()
	test.That(t, ok, test.ShouldBeFalse)

	for i := 0; i < 150; i++ {
		pose := spatialmath.NewPose2d(float64(i), 0, spatialmath.RotationFromRadians(0))
		test.That(t, h.Add(float64(i)*0.1, pose), test.ShouldBeNil)
	}
	test.That(t, h.Len(), test.ShouldEqual, DefaultHistoryCapacity)

	earliest, ok := h.Earliest()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, earliest.Pose.X(), test.ShouldEqual, 50.0)

	test.That(t, h.At(-100).X(), test.ShouldEqual, 50.0)
	test.That(t, h.At(1e6).X(), test.ShouldEqual, 149.0)
	test.That(t, h.At(10.05).X(), test.ShouldAlmostEqual, 100.5)

	latest, _ := h.Latest()
	test.That(t, h.Add(latest.Time, spatialmath.NewZeroPose()), test.ShouldNotBeNil)
	test.That(t, h.Add(1, spatialmath.NewZeroPose()), test.ShouldNotBeNil)

	h.Reset(20, spatialmath.NewPose2d(1, 1, spatialmath.Rotation2d{}))
	test.That(t, h.Len(), test.ShouldEqual, 1)
	test.That(t, h.At(0).X(), test.ShouldEqual, 1.0)
}

func TestHistoryConcurrentReaders(t *testing.T) {
	h := NewPoseHistory(10)
	var wg sync.WaitGroup
	var bad atomic.Int64
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				if s, ok := h.Latest(); ok && h.At(s.Time).X() < 1 {
					bad.Inc()
				}
			}
		}()
	}
	for i := 1; i <= 1000; i++ {
		test.That(t, h.Add(float64(i), spatialmath.NewPose2d(float64(i), 0, spatialmath.Rotation2d{})), test.ShouldBeNil)
	}
	wg.Wait()
	test.That(t, bad.Load(), test.ShouldEqual, int64(0))
	test.That(t, h.Len(), test.ShouldEqual, 10)
}
