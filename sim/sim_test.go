package sim

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/bhr3310/motioncore/autos"
	"github.com/bhr3310/motioncore/components/drive"
	"github.com/bhr3310/motioncore/config"
	"github.com/bhr3310/motioncore/logging"
	"github.com/bhr3310/motioncore/spatialmath"
	"github.com/bhr3310/motioncore/telemetry"
)

func lookup(t *testing.T, name string) autos.Path {
	t.Helper()
	p, err := autos.Lookup(name)
	test.That(t, err, test.ShouldBeNil)
	return p
}

func endOf(res *Result) spatialmath.Pose2d {
	return res.Trajectory.Last().Pose
}

func TestRunFollowsPath(t *testing.T) {
	for _, follower := range []string{drive.FollowerTime, drive.FollowerPurePursuit} {
		t.Run(follower, func(t *testing.T) {
			cfg := config.Default()
			cfg.Follower.Type = follower
			var csvOut bytes.Buffer
			csvSink, err := telemetry.NewCSVSink(&csvOut)
			test.That(t, err, test.ShouldBeNil)

			res, err := Run(context.Background(), Options{
				Config: &cfg,
				Path:   lookup(t, autos.SCurveReversed),
				Sinks:  []telemetry.Sink{csvSink},
			}, logging.NewTestLogger(t))
			test.That(t, err, test.ShouldBeNil)
			test.That(t, res.Done, test.ShouldBeTrue)
			test.That(t, res.Faults.Total(), test.ShouldEqual, 0)
			test.That(t, res.Cycles, test.ShouldBeGreaterThan, int64(0))
			test.That(t, res.Elapsed, test.ShouldBeLessThan, res.Trajectory.Duration()+defaultSlack)

			final := res.Driven[len(res.Driven)-1]
			test.That(t, final.Translation.Sub(endOf(res).Translation).Norm(), test.ShouldBeLessThan, 2.0)
			test.That(t, res.Driven, test.ShouldHaveLength, len(res.Estimated))
			test.That(t, res.Report.Samples, test.ShouldBeGreaterThan, 0)
			test.That(t, res.Report.MaxCrossTrack, test.ShouldBeLessThan, 6.0)

			// the csv sink was closed by Run and holds a header plus one row per cycle
			rows := strings.Count(csvOut.String(), "\n")
			test.That(t, rows, test.ShouldBeGreaterThan, 10)
		})
	}
}

func TestRunRecoversFromOffset(t *testing.T) {
	cfg := config.Default()
	cfg.Follower.Type = drive.FollowerPurePursuit
	offset := spatialmath.NewPose2d(0, 3, spatialmath.RotationFromDegrees(0))
	res, err := Run(context.Background(), Options{
		Config:      &cfg,
		Path:        lookup(t, autos.CenterStartToScaleLeft),
		StartOffset: &offset,
	}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Done, test.ShouldBeTrue)
	start := res.Driven[0]
	test.That(t, math.Abs(start.Y()-157), test.ShouldBeGreaterThan, 2.0)
	final := res.Driven[len(res.Driven)-1]
	test.That(t, final.Translation.Sub(endOf(res).Translation).Norm(), test.ShouldBeLessThan, 3.0)
	test.That(t, res.Report.Markers, test.ShouldResemble, []string{"raiseElevator"})
}

func TestRunLogsPathOnce(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	_, err := Run(context.Background(), Options{Path: lookup(t, autos.SCurveReversed)}, logger)
	test.That(t, err, test.ShouldBeNil)
	finished := logs.FilterMessage("simulation finished").All()
	test.That(t, finished, test.ShouldHaveLength, 1)
	var paths int
	for _, f := range finished[0].Context {
		if f.Key == "path" {
			paths++
		}
	}
	test.That(t, paths, test.ShouldEqual, 1)
	test.That(t, finished[0].ContextMap()["path"], test.ShouldEqual, autos.SCurveReversed)
}

func TestRunTimesOut(t *testing.T) {
	res, err := Run(context.Background(), Options{
		Path:    lookup(t, autos.LeftTurnReversed),
		Timeout: 0.5,
	}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Done, test.ShouldBeFalse)
	test.That(t, res.Elapsed, test.ShouldBeGreaterThanOrEqualTo, 0.5)
	test.That(t, res.Elapsed, test.ShouldBeLessThan, 1.0)
}

func TestRunRealtimeCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	res, err := Run(ctx, Options{
		Path:     lookup(t, autos.CenterStartToScaleLeft),
		Realtime: true,
	}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, res, test.ShouldNotBeNil)
	test.That(t, res.Done, test.ShouldBeFalse)
}

func TestRunRejectsBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Profile.MaxVelocity = 0
	_, err := Run(context.Background(), Options{Config: &cfg, Path: lookup(t, autos.SCurveReversed)}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSavePlot(t *testing.T) {
	_, err := Plot(nil, "empty")
	test.That(t, err, test.ShouldNotBeNil)

	res, err := Run(context.Background(), Options{Path: lookup(t, autos.SCurveReversed)}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	file := filepath.Join(t.TempDir(), "scurve.png")
	test.That(t, SavePlot(res, "SCurveReversed", file), test.ShouldBeNil)
	info, err := os.Stat(file)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, info.Size(), test.ShouldBeGreaterThan, int64(0))
}
