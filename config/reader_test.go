package config

import (
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"

	"github.com/bhr3310/motioncore/components/drive"
	"github.com/bhr3310/motioncore/logging"
)

func TestReadYAML(t *testing.T) {
	t.Setenv("TRACK_WIDTH", "26.17")
	logger, logs := logging.NewObservedTestLogger(t)

	cfg, err := Read(filepath.Join("testdata", "robot.yaml"), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.LoopPeriod, test.ShouldEqual, 0.005)
	test.That(t, cfg.Drive.TrackWidth, test.ShouldEqual, 26.17)
	test.That(t, cfg.Drive.MaxSetpoint, test.ShouldEqual, 100.0)
	test.That(t, cfg.Follower.Type, test.ShouldEqual, drive.FollowerPurePursuit)
	test.That(t, cfg.Follower.MaxLookahead, test.ShouldEqual, 30.0)
	test.That(t, cfg.Telemetry.CSVPath, test.ShouldEqual, "/tmp/drive.csv")

	// untouched keys keep their defaults
	test.That(t, cfg.Drive.WheelDiameter, test.ShouldEqual, 5.8)
	test.That(t, cfg.Follower.MinLookahead, test.ShouldEqual, 12.0)
	test.That(t, cfg.Telemetry.LogEvery, test.ShouldEqual, 50)

	test.That(t, logs.FilterMessage("ignoring unknown config keys").Len(), test.ShouldEqual, 1)
	test.That(t, cfg.DriveConfig().Follower.LoopPeriod, test.ShouldEqual, 0.005)
}

func TestReadJSON(t *testing.T) {
	cfg, err := Read(filepath.Join("testdata", "robot.json"), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Drive.WheelDiameter, test.ShouldEqual, 6.0)
	test.That(t, cfg.Profile.MaxVelocity, test.ShouldEqual, 120.0)
	test.That(t, cfg.Profile.MaxAcceleration, test.ShouldEqual, 60.0)
	test.That(t, cfg.Follower.Type, test.ShouldEqual, drive.FollowerTime)
}

func TestFromReader(t *testing.T) {
	logger := logging.NewTestLogger(t)

	cfg, err := FromReader("empty", strings.NewReader(""), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, *cfg, test.ShouldResemble, Default())

	_, err = FromReader("bad", strings.NewReader("drive: [1, 2"), logger)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = FromReader("type", strings.NewReader("drive:\n  track_width_in: wide\n"), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "track_width_in")

	_, err = FromReader("invalid", strings.NewReader("follower:\n  type: ramsete\n"), logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "invalid.follower")

	_, err = Read(filepath.Join("testdata", "nope.yaml"), logger)
	test.That(t, err, test.ShouldNotBeNil)
}
