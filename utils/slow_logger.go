package utils

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/bhr3310/motioncore/logging"
)

// SlowLogger starts a goroutine that logs msg at info level every interval until the returned
// stop function is called or ctx is done. Each line carries the elapsed time plus the given
// key/value pairs.
func SlowLogger(
	ctx context.Context,
	clk clock.Clock,
	interval time.Duration,
	logger logging.Logger,
	msg string,
	keysAndValues ...interface{},
) func() {
	if clk == nil {
		clk = clock.New()
	}
	ticker := clk.Ticker(interval)
	start := clk.Now()
	workers := NewStoppableWorkersWithContext(ctx, func(workerCtx context.Context) {
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
			}
			elapsed := clk.Since(start).Round(time.Second).String()
			logger.CInfow(ctx, msg, append(append([]interface{}{}, keysAndValues...), "time_elapsed", elapsed)...)
		}
	})
	return workers.Stop
}
