package control

import (
	"math"
	"testing"

	"go.viam.com/test"

	"github.com/bhr3310/motioncore/kinematics"
	"github.com/bhr3310/motioncore/logging"
	"github.com/bhr3310/motioncore/spatialmath"
	"github.com/bhr3310/motioncore/trajectory"
)

func testKinematics(t *testing.T) *kinematics.DifferentialDrive {
	t.Helper()
	kin, err := kinematics.NewDifferentialDrive(23.92, 5.8, 0.924)
	test.That(t, err, test.ShouldBeNil)
	return kin
}

func testParams() Params {
	return Params{
		Kp:                   2,
		Kffv:                 1,
		KY:                   0.005,
		KTheta:               3,
		KSettle:              2,
		MotorKv:              0.2,
		MotorKa:              0.01,
		MotorKs:              0.6,
		GoalPosTolerance:     0.75,
		GoalVelTolerance:     12,
		CompletionTolerance:  0.1,
		Lookahead:            Lookahead{MinDistance: 12, MaxDistance: 24, MinSpeed: 9, MaxSpeed: 120},
		MaxAcceleration:      300,
		MinPursuitSpeed:      2,
		StopSteeringDistance: 9,
		LoopPeriod:           0.01,
	}
}

func buildTrajectory(t *testing.T, c trajectory.Constraints, reversed bool, waypoints ...trajectory.Waypoint) *trajectory.Trajectory {
	t.Helper()
	b, err := trajectory.NewBuilder(c, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	traj, err := b.Build(waypoints, reversed)
	test.That(t, err, test.ShouldBeNil)
	return traj
}

var slowConstraints = trajectory.Constraints{MaxVelocity: 150, MaxAcceleration: 90, SampleStep: 1}

func sCurveWaypoints(speed float64) []trajectory.Waypoint {
	return []trajectory.Waypoint{
		trajectory.NewWaypoint(20, 0, 0, 0),
		trajectory.NewWaypoint(60, 0, 20, speed),
		trajectory.NewWaypoint(100, 15, 20, speed),
		trajectory.NewWaypoint(130, 15, 0, speed),
	}
}

func TestTimeTrackerWithoutTrajectory(t *testing.T) {
	tt := NewTimeTracker(testKinematics(t), testParams(), logging.NewTestLogger(t))
	_, err := tt.Update(0, spatialmath.NewZeroPose(), spatialmath.Twist2d{})
	test.That(t, err, test.ShouldEqual, ErrNoTrajectory)
	test.That(t, tt.SetTrajectory(nil), test.ShouldNotBeNil)
	test.That(t, tt.TakeMarkers(), test.ShouldBeEmpty)
}

func TestTimeTrackerZeroFeedback(t *testing.T) {
	kin := testKinematics(t)
	params := testParams()
	params.Kffa = 0.05
	params.Kv = 0.02

	for _, reversed := range []bool{false, true} {
		traj := buildTrajectory(t, slowConstraints, reversed, sCurveWaypoints(60)...)
		tt := NewTimeTracker(kin, params, logging.NewTestLogger(t))
		test.That(t, tt.SetTrajectory(traj), test.ShouldBeNil)
		direction := 1.0
		if reversed {
			direction = -1
		}

		_, err := tt.Update(0, traj.First().Pose, spatialmath.Twist2d{})
		test.That(t, err, test.ShouldBeNil)
		for _, now := range []float64{0.3, 0.9, 1.4, 2.2} {
			want := traj.StateAtTime(now)
			vd := direction * want.Velocity
			ad := direction * want.Acceleration
			out, err := tt.Update(now, want.Pose, spatialmath.Twist2d{Dx: vd})
			test.That(t, err, test.ShouldBeNil)

			test.That(t, out.Error.Translation.Norm(), test.ShouldAlmostEqual, 0.0, 1e-9)
			test.That(t, out.Chassis.Dx, test.ShouldAlmostEqual, vd+0.05*ad, 1e-6)
			test.That(t, out.Chassis.Dtheta, test.ShouldAlmostEqual, vd*want.Curvature, 1e-6)
			if reversed {
				test.That(t, out.Chassis.Dx, test.ShouldBeLessThan, 0.0)
			}

			wheels := kin.LinearToAngular(kin.WheelVelocities(out.Chassis))
			test.That(t, out.LeftVelocity, test.ShouldAlmostEqual, wheels.Left)
			test.That(t, out.RightVelocity, test.ShouldAlmostEqual, wheels.Right)
			wantFF := 0.2*out.LeftVelocity + 0.01*out.LeftAcceleration + 0.6*math.Copysign(1, out.LeftVelocity)
			test.That(t, out.LeftFeedforward, test.ShouldAlmostEqual, wantFF)
		}
	}
}

// simulate drives a perfect robot with the follower's chassis command and returns its final
// pose.
func simulate(
	t *testing.T,
	f Follower,
	start spatialmath.Pose2d,
	dt float64,
	maxSteps int,
	observe func(step int, out Output),
) spatialmath.Pose2d {
	t.Helper()
	pose := start
	var measured spatialmath.Twist2d
	for i := 0; i < maxSteps; i++ {
		out, err := f.Update(float64(i)*dt, pose, measured)
		test.That(t, err, test.ShouldBeNil)
		if observe != nil {
			observe(i, out)
		}
		if out.Done {
			return pose
		}
		pose = pose.TransformBy(spatialmath.Exp(out.Chassis.Scaled(dt)))
		measured = out.Chassis
	}
	return pose
}

func TestTimeTrackerLongitudinalErrorDecays(t *testing.T) {
	traj := buildTrajectory(t, slowConstraints, false,
		trajectory.NewWaypoint(0, 0, 0, 0), trajectory.NewWaypoint(100, 0, 0, 50))
	tt := NewTimeTracker(testKinematics(t), testParams(), logging.NewTestLogger(t))
	test.That(t, tt.SetTrajectory(traj), test.ShouldBeNil)

	prev := math.Inf(1)
	final := simulate(t, tt, spatialmath.NewPose2d(-6, 0, spatialmath.RotationFromRadians(0)), 0.01, 600,
		func(step int, out Output) {
			ex := out.Error.Translation.X
			if ex > 0.5 {
				test.That(t, ex, test.ShouldBeLessThan, prev)
			}
			prev = ex
		})
	test.That(t, tt.IsDone(), test.ShouldBeTrue)
	test.That(t, final.X(), test.ShouldAlmostEqual, 100.0, 0.75)
	test.That(t, math.Abs(final.Y()), test.ShouldBeLessThan, 1e-9)
}

func TestTimeTrackerLateralErrorConverges(t *testing.T) {
	traj := buildTrajectory(t, slowConstraints, false,
		trajectory.NewWaypoint(0, 0, 0, 0), trajectory.NewWaypoint(100, 0, 0, 40))
	tt := NewTimeTracker(testKinematics(t), testParams(), logging.NewTestLogger(t))
	test.That(t, tt.SetTrajectory(traj), test.ShouldBeNil)

	final := simulate(t, tt, spatialmath.NewPose2d(0, 3, spatialmath.RotationFromRadians(0)), 0.01, 800, nil)
	test.That(t, tt.IsDone(), test.ShouldBeTrue)
	test.That(t, math.Abs(final.Y()), test.ShouldBeLessThan, 0.75)
	test.That(t, final.X(), test.ShouldAlmostEqual, 100.0, 0.75)
	test.That(t, tt.Error().Translation.Norm(), test.ShouldBeLessThanOrEqualTo, 0.75)
}

func TestTimeTrackerSettlesBesideGoal(t *testing.T) {
	traj := buildTrajectory(t, slowConstraints, false,
		trajectory.NewWaypoint(0, 0, 0, 0), trajectory.NewWaypoint(100, 0, 0, 40))
	end := traj.Last().Pose

	settle := func(params Params, steps int) (*TimeTracker, spatialmath.Pose2d) {
		tt := NewTimeTracker(testKinematics(t), params, logging.NewTestLogger(t))
		test.That(t, tt.SetTrajectory(traj), test.ShouldBeNil)
		_, err := tt.Update(0, traj.First().Pose, spatialmath.Twist2d{})
		test.That(t, err, test.ShouldBeNil)

		// stopped an inch to the right of the goal after the trajectory ran out, heading aligned
		pose := spatialmath.NewPose2d(end.X(), end.Y()-1, end.Rotation)
		start := traj.Duration() + 0.5
		var measured spatialmath.Twist2d
		for i := 0; i < steps; i++ {
			out, err := tt.Update(start+float64(i)*0.01, pose, measured)
			test.That(t, err, test.ShouldBeNil)
			if out.Done {
				break
			}
			pose = pose.TransformBy(spatialmath.Exp(out.Chassis.Scaled(0.01)))
			measured = out.Chassis
		}
		return tt, pose
	}

	tt, final := settle(testParams(), 2000)
	test.That(t, tt.IsDone(), test.ShouldBeTrue)
	test.That(t, final.DistanceTo(end), test.ShouldBeLessThanOrEqualTo, 0.75)
	test.That(t, math.Abs(final.Rotation.Radians()), test.ShouldBeLessThanOrEqualTo, math.Pi/4)

	params := testParams()
	params.KSettle = 0
	tt, final = settle(params, 500)
	test.That(t, tt.IsDone(), test.ShouldBeFalse)
	test.That(t, final.DistanceTo(end), test.ShouldAlmostEqual, 1.0, 1e-6)
}

func TestTimeTrackerReversed(t *testing.T) {
	traj := buildTrajectory(t, slowConstraints, true, sCurveWaypoints(40)...)
	tt := NewTimeTracker(testKinematics(t), testParams(), logging.NewTestLogger(t))
	test.That(t, tt.SetTrajectory(traj), test.ShouldBeNil)

	minDx, maxDx := math.Inf(1), math.Inf(-1)
	final := simulate(t, tt, traj.First().Pose, 0.01, 1000, func(step int, out Output) {
		minDx = math.Min(minDx, out.Chassis.Dx)
		maxDx = math.Max(maxDx, out.Chassis.Dx)
	})
	test.That(t, tt.IsDone(), test.ShouldBeTrue)
	// backs the whole way; only the final settling may creep forward
	test.That(t, minDx, test.ShouldBeLessThan, -30.0)
	test.That(t, maxDx, test.ShouldBeLessThan, 1.0)
	test.That(t, final.DistanceTo(traj.Last().Pose), test.ShouldBeLessThan, 0.75)
	test.That(t, final.Rotation.AlmostEqual(traj.Last().Pose.Rotation, 0.05), test.ShouldBeTrue)

	tt.Reset()
	test.That(t, tt.IsDone(), test.ShouldBeFalse)
	test.That(t, tt.Setpoint(), test.ShouldResemble, traj.First())
}

func TestPurePursuitConverges(t *testing.T) {
	params := testParams()
	params.LoopPeriod = 0.02
	fast := trajectory.Constraints{MaxVelocity: 150, MaxAcceleration: 300, SampleStep: 1}
	traj := buildTrajectory(t, fast, false, sCurveWaypoints(150)...)

	pp, err := NewPurePursuit(testKinematics(t), params, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pp.Steer(spatialmath.NewZeroPose()), test.ShouldResemble, spatialmath.Twist2d{})
	test.That(t, pp.SetTrajectory(traj), test.ShouldBeNil)

	pose := spatialmath.NewPose2d(20, 0, spatialmath.RotationFromRadians(0))
	iterations := 0
	lastProgress := 0.0
	for ; iterations < 100 && !pp.IsDone(); iterations++ {
		cmd := pp.Steer(pose)
		test.That(t, pp.Progress(), test.ShouldBeGreaterThanOrEqualTo, lastProgress)
		lastProgress = pp.Progress()
		test.That(t, math.Abs(cmd.Dx), test.ShouldBeLessThanOrEqualTo, 150+1e-9)
		pose = pose.TransformBy(spatialmath.Exp(cmd.Scaled(params.LoopPeriod)))
	}
	test.That(t, pp.IsDone(), test.ShouldBeTrue)
	test.That(t, iterations, test.ShouldBeLessThan, 100)
	test.That(t, pose.X(), test.ShouldAlmostEqual, 130.0, 1.0)
	test.That(t, pose.Y(), test.ShouldAlmostEqual, 15.0, 1.0)
}

func TestPurePursuitClosesOffsetNearEnd(t *testing.T) {
	params := testParams()
	traj := buildTrajectory(t, slowConstraints, false,
		trajectory.NewWaypoint(0, 0, 0, 0), trajectory.NewWaypoint(40, 0, 0, 60))
	pp, err := NewPurePursuit(testKinematics(t), params, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pp.SetTrajectory(traj), test.ShouldBeNil)

	// three inches off the path with only ten inches left
	final := simulate(t, pp, spatialmath.NewPose2d(30, 3, spatialmath.RotationFromRadians(0)), params.LoopPeriod, 3000, nil)
	test.That(t, pp.IsDone(), test.ShouldBeTrue)
	test.That(t, math.Abs(final.Y()), test.ShouldBeLessThan, 1.0)
	test.That(t, final.DistanceTo(traj.Last().Pose), test.ShouldBeLessThan, 1.5)
}

func TestPurePursuitReversedUpdate(t *testing.T) {
	params := testParams()
	traj := buildTrajectory(t, slowConstraints, true, sCurveWaypoints(60)...)
	pp, err := NewPurePursuit(testKinematics(t), params, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	_, err = pp.Update(0, traj.First().Pose, spatialmath.Twist2d{})
	test.That(t, err, test.ShouldEqual, ErrNoTrajectory)
	test.That(t, pp.SetTrajectory(traj), test.ShouldBeNil)

	final := simulate(t, pp, traj.First().Pose, params.LoopPeriod, 2000, func(step int, out Output) {
		if !out.Done {
			test.That(t, out.Chassis.Dx, test.ShouldBeLessThan, 0.0)
		}
	})
	test.That(t, pp.IsDone(), test.ShouldBeTrue)
	test.That(t, final.DistanceTo(traj.Last().Pose), test.ShouldBeLessThan, 1.0)
}

func TestPurePursuitRejectsBadParams(t *testing.T) {
	params := testParams()
	params.Lookahead.MaxSpeed = params.Lookahead.MinSpeed
	_, err := NewPurePursuit(testKinematics(t), params, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)

	params = testParams()
	params.LoopPeriod = 0
	_, err = NewPurePursuit(testKinematics(t), params, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFollowersReportMarkers(t *testing.T) {
	traj := buildTrajectory(t, slowConstraints, false,
		trajectory.NewWaypoint(0, 0, 0, 0),
		trajectory.NewWaypoint(40, 0, 0, 60, "deploy"),
		trajectory.NewWaypoint(80, 0, 0, 60))
	pp, err := NewPurePursuit(testKinematics(t), testParams(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	for _, f := range []Follower{NewTimeTracker(testKinematics(t), testParams(), logging.NewTestLogger(t)), pp} {
		test.That(t, f.SetTrajectory(traj), test.ShouldBeNil)
		var labels []string
		simulate(t, f, traj.First().Pose, 0.01, 2000, func(int, Output) {
			for _, m := range f.TakeMarkers() {
				labels = append(labels, m.Label)
			}
		})
		test.That(t, f.IsDone(), test.ShouldBeTrue)
		test.That(t, labels, test.ShouldResemble, []string{"deploy"})
	}
}
