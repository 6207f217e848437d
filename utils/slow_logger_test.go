package utils

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"github.com/bhr3310/motioncore/logging"
)

func TestSlowLogger(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	mock := clock.NewMock()
	stop := SlowLogger(context.Background(), mock, 2*time.Second, logger, "still simulating", "path", "SCurveReversed")

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		mock.Add(2 * time.Second)
		test.That(tb, logs.FilterMessage("still simulating").Len(), test.ShouldBeGreaterThanOrEqualTo, 2)
	})
	stop()
	entry := logs.FilterMessage("still simulating").All()[0]
	test.That(t, entry.ContextMap()["path"], test.ShouldEqual, "SCurveReversed")
	test.That(t, entry.ContextMap(), test.ShouldContainKey, "time_elapsed")

	count := logs.FilterMessage("still simulating").Len()
	mock.Add(10 * time.Second)
	test.That(t, logs.FilterMessage("still simulating").Len(), test.ShouldEqual, count)
}
