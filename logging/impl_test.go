package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"go.viam.com/test"
)

func newBufferLogger(level Level) (Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := newImpl("drive", level, true, NewWriterAppender(buf))
	return logger, buf
}

func splitLine(t *testing.T, buf *bytes.Buffer) []string {
	t.Helper()
	line, err := buf.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)
	return strings.Split(strings.TrimSuffix(line, "\n"), "\t")
}

func TestConsoleFormatting(t *testing.T) {
	logger, buf := newBufferLogger(DEBUG)

	logger.Info("cycle overrun")
	parts := splitLine(t, buf)
	test.That(t, len(parts), test.ShouldEqual, 5)
	test.That(t, parts[1], test.ShouldEqual, "INFO")
	test.That(t, parts[2], test.ShouldEqual, "drive")
	test.That(t, strings.HasPrefix(parts[3], "logging/impl_test.go:"), test.ShouldBeTrue)
	test.That(t, parts[4], test.ShouldEqual, "cycle overrun")

	logger.Warnf("left %0.1f right %0.1f", 1.25, -2.5)
	parts = splitLine(t, buf)
	test.That(t, parts[1], test.ShouldEqual, "WARN")
	test.That(t, parts[4], test.ShouldEqual, "left 1.2 right -2.5")

	logger.Debugw("pose error", "x", 1.5, "theta", 3)
	parts = splitLine(t, buf)
	test.That(t, len(parts), test.ShouldEqual, 6)
	fields := map[string]any{}
	test.That(t, json.Unmarshal([]byte(parts[5]), &fields), test.ShouldBeNil)
	test.That(t, fields, test.ShouldResemble, map[string]any{"x": 1.5, "theta": 3.0})

	logger.Errorw("unpaired", "lonely")
	parts = splitLine(t, buf)
	test.That(t, parts[5], test.ShouldContainSubstring, "unpaired log key")
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(WARN)
	logger.Debug("hidden")
	logger.Info("hidden")
	test.That(t, buf.Len(), test.ShouldEqual, 0)

	logger.Error("shown")
	test.That(t, buf.Len(), test.ShouldBeGreaterThan, 0)

	logger.SetLevel(ERROR)
	test.That(t, logger.GetLevel(), test.ShouldEqual, ERROR)
}

func TestSublogger(t *testing.T) {
	logger, buf := newBufferLogger(INFO)
	sub := logger.Sublogger("estimator")
	sub.Info("reset")
	parts := splitLine(t, buf)
	test.That(t, parts[2], test.ShouldEqual, "drive.estimator")
	test.That(t, sub.GetLevel(), test.ShouldEqual, INFO)
}

func TestWith(t *testing.T) {
	logger, buf := newBufferLogger(INFO)
	withPath := logger.With("path", "scurve")
	withPath.Infow("started", "cycle", 1)
	parts := splitLine(t, buf)
	fields := map[string]any{}
	test.That(t, json.Unmarshal([]byte(parts[5]), &fields), test.ShouldBeNil)
	test.That(t, fields, test.ShouldResemble, map[string]any{"path": "scurve", "cycle": 1.0})

	logger.Info("untouched")
	parts = splitLine(t, buf)
	test.That(t, parts, test.ShouldHaveLength, 5)
}

func TestWithDebug(t *testing.T) {
	logger, buf := newBufferLogger(WARN)
	ctx := context.Background()
	logger.CDebugw(ctx, "hidden")
	test.That(t, buf.Len(), test.ShouldEqual, 0)

	ctx = WithDebug(ctx, "overrun")
	test.That(t, DebugTag(ctx), test.ShouldEqual, "overrun")
	logger.CDebugw(ctx, "cycle timing", "dt", 0.02)
	parts := splitLine(t, buf)
	test.That(t, parts[1], test.ShouldEqual, "DEBUG")
	test.That(t, parts[5], test.ShouldContainSubstring, `"debug_tag":"overrun"`)

	test.That(t, DebugTag(WithDebug(context.Background(), "")), test.ShouldHaveLength, 8)
}

func TestObservedTestLogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Warnw("sensor fault", "sensor", "heading")
	test.That(t, logs.FilterMessage("sensor fault").Len(), test.ShouldEqual, 1)
	test.That(t, logs.All()[0].ContextMap()["sensor"], test.ShouldEqual, "heading")
}

func TestLevelParsing(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"Warning", WARN},
		{"error", ERROR},
	} {
		level, err := LevelFromString(tc.in)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, tc.want)
	}
	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)

	var level Level
	test.That(t, json.Unmarshal([]byte(`"warn"`), &level), test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, WARN)
	out, err := json.Marshal(ERROR)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(out), test.ShouldEqual, `"error"`)
}
