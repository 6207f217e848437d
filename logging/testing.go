package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

// testAppender routes entries through tb.Log so they show up next to the test that wrote them.
type testAppender struct {
	tb testing.TB
}

// NewTestAppender returns an appender that writes console lines to tb.
func NewTestAppender(tb testing.TB) Appender {
	return testAppender{tb: tb}
}

func (a testAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	a.tb.Helper()
	line, err := formatLine(entry, fields)
	a.tb.Log(line)
	return err
}

func (a testAppender) Sync() error { return nil }
