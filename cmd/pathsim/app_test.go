package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"github.com/bhr3310/motioncore/autos"
)

func runApp(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := newApp(&stdout, &stderr).Run(append([]string{"pathsim"}, args...))
	return stdout.String(), stderr.String(), err
}

func TestPathsCommand(t *testing.T) {
	out, _, err := runApp(t, "paths")
	test.That(t, err, test.ShouldBeNil)
	for _, name := range autos.Names() {
		test.That(t, out, test.ShouldContainSubstring, name)
	}
	test.That(t, out, test.ShouldContainSubstring, "raiseElevator")
}

func TestBuildCommand(t *testing.T) {
	out, _, err := runApp(t, "build", "--path", autos.CenterStartToScaleLeft, "--every", "50")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "marker raiseElevator")
	test.That(t, out, test.ShouldContainSubstring, "CURVATURE")

	_, _, err = runApp(t, "build")
	test.That(t, err, test.ShouldNotBeNil)

	_, _, err = runApp(t, "build", "--path", "Nowhere")
	test.That(t, err, test.ShouldNotBeNil)

	_, _, err = runApp(t, "build", "--path", autos.SCurveReversed, "--file", "x.yaml")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSimulateCommand(t *testing.T) {
	dir := t.TempDir()
	csvFile := filepath.Join(dir, "frames.csv")
	logFile := filepath.Join(dir, "pathsim.log")
	out, _, err := runApp(t, "--log-file", logFile, "simulate",
		"--path", autos.SCurveReversed, "--follower", "pure_pursuit", "--csv", csvFile, "--histogram")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "cross track error (in)")
	test.That(t, out, test.ShouldContainSubstring, "finished")
	test.That(t, out, test.ShouldContainSubstring, "true")

	data, err := os.ReadFile(csvFile)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bytes.Count(data, []byte("\n")), test.ShouldBeGreaterThan, 10)

	logs, err := os.ReadFile(logFile)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(logs), test.ShouldContainSubstring, "simulation finished")

	_, _, err = runApp(t, "simulate", "--path", autos.SCurveReversed, "--follower", "ramsete")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSimulateServingCommand(t *testing.T) {
	out, _, err := runApp(t, "simulate", "--path", autos.SCurveReversed, "--listen", "127.0.0.1:0")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "finished")
}

func TestPlotCommand(t *testing.T) {
	file := filepath.Join(t.TempDir(), "path.png")
	_, _, err := runApp(t, "plot", "--path", autos.LeftTurnReversed, "--offset-y", "2", "--out", file)
	test.That(t, err, test.ShouldBeNil)
	info, err := os.Stat(file)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, info.Size(), test.ShouldBeGreaterThan, int64(0))

	_, _, err = runApp(t, "plot", "--path", autos.LeftTurnReversed)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSchemaCommand(t *testing.T) {
	out, _, err := runApp(t, "schema")
	test.That(t, err, test.ShouldBeNil)
	var doc map[string]interface{}
	test.That(t, json.Unmarshal([]byte(out), &doc), test.ShouldBeNil)
	test.That(t, doc, test.ShouldContainKey, "properties")
}

func TestConfigFlag(t *testing.T) {
	file := filepath.Join(t.TempDir(), "robot.yaml")
	test.That(t, os.WriteFile(file, []byte("profile:\n  max_velocity_ips: 0\n"), 0o600), test.ShouldBeNil)
	_, _, err := runApp(t, "--config", file, "build", "--path", autos.SCurveReversed)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "max_velocity_ips")
}

func TestLogLevelFlag(t *testing.T) {
	_, stderr, err := runApp(t, "--log-level", "error", "simulate", "--path", autos.SCurveReversed)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stderr, test.ShouldNotContainSubstring, "simulation finished")

	_, _, err = runApp(t, "--log-level", "loud", "paths")
	test.That(t, err, test.ShouldNotBeNil)
}
