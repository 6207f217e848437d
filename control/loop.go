package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/bhr3310/motioncore/logging"
	"github.com/bhr3310/motioncore/utils"
)

// MaxLoopFrequency is the fastest rate a Loop may run at, in Hz.
const MaxLoopFrequency = 200.0

// Loopable is a component driven by a Loop. now is seconds since the loop was first started and
// keeps increasing across Stop and Start.
type Loopable interface {
	OnStart(ctx context.Context, now float64)
	OnLoop(ctx context.Context, now float64)
	OnStop(ctx context.Context, now float64)
}

// Loop calls its Loopables at a fixed period. A panic inside a cycle is logged and the loop keeps
// running.
type Loop struct {
	period time.Duration
	clk    clock.Clock
	logger logging.Logger

	mu        sync.Mutex
	loopables []Loopable
	workers   utils.StoppableWorkers
	start     time.Time

	cycles   atomic.Int64
	overruns atomic.Int64
	panics   atomic.Int64
}

// NewLoop validates the period and returns a stopped loop.
func NewLoop(period time.Duration, clk clock.Clock, logger logging.Logger) (*Loop, error) {
	if period <= 0 || period < time.Duration(float64(time.Second)/MaxLoopFrequency) {
		return nil, errors.New("loop frequency shouldn't be 0 or above 200Hz")
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Loop{period: period, clk: clk, logger: logger}, nil
}

// Register adds a loopable. It takes effect at the next Start.
func (l *Loop) Register(loopable Loopable) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loopables = append(l.loopables, loopable)
}

// Period returns the cycle period.
func (l *Loop) Period() time.Duration { return l.period }

// Cycles returns the number of completed cycles.
func (l *Loop) Cycles() int64 { return l.cycles.Load() }

// Overruns returns the number of cycles that took longer than the period.
func (l *Loop) Overruns() int64 { return l.overruns.Load() }

// Panics returns the number of loopable calls that panicked.
func (l *Loop) Panics() int64 { return l.panics.Load() }

// Start begins ticking. Starting a running loop is an error.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.workers != nil {
		return errors.New("loop already running")
	}
	if len(l.loopables) == 0 {
		return errors.New("cannot start a loop with nothing registered")
	}
	loopables := append([]Loopable(nil), l.loopables...)
	// now keeps counting from the first Start so loopables never see time go backwards
	if l.start.IsZero() {
		l.start = l.clk.Now()
	}
	startedAt := l.clk.Since(l.start).Seconds()
	l.logger.Infow("running loop", "hz", 1/l.period.Seconds(), "t", startedAt)

	ticker := l.clk.Ticker(l.period)
	l.workers = utils.NewStoppableWorkers(func(ctx context.Context) {
		defer ticker.Stop()
		for _, loopable := range loopables {
			l.guard(func() { loopable.OnStart(ctx, startedAt) })
		}
		for {
			select {
			case <-ctx.Done():
				now := l.clk.Since(l.start).Seconds()
				for _, loopable := range loopables {
					l.guard(func() { loopable.OnStop(context.Background(), now) })
				}
				return
			case <-ticker.C:
			}
			cycleStart := l.clk.Now()
			now := cycleStart.Sub(l.start).Seconds()
			for _, loopable := range loopables {
				l.guard(func() { loopable.OnLoop(ctx, now) })
			}
			l.cycles.Inc()
			if took := l.clk.Since(cycleStart); took > l.period {
				l.overruns.Inc()
				l.logger.Debugw("control cycle overran", "took", took.String(), "period", l.period.String())
			}
		}
	})
	return nil
}

// Stop halts the loop and waits for the final OnStop calls.
func (l *Loop) Stop() {
	l.mu.Lock()
	workers := l.workers
	l.workers = nil
	l.mu.Unlock()
	if workers == nil {
		return
	}
	l.logger.Debug("closing loop")
	workers.Stop()
}

func (l *Loop) guard(f func()) {
	defer func() {
		if r := recover(); r != nil {
			l.panics.Inc()
			l.logger.Errorw("recovered panic in control cycle", "panic", fmt.Sprint(r))
		}
	}()
	f()
}
