// Package sim runs the drive against simulated motors and a simulated gyro so paths can be tried
// without a robot.
package sim

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/bhr3310/motioncore/autos"
	"github.com/bhr3310/motioncore/components/drive"
	fakemotor "github.com/bhr3310/motioncore/components/motor/fake"
	fakegyro "github.com/bhr3310/motioncore/components/movementsensor/fake"
	"github.com/bhr3310/motioncore/config"
	"github.com/bhr3310/motioncore/control"
	"github.com/bhr3310/motioncore/logging"
	"github.com/bhr3310/motioncore/spatialmath"
	"github.com/bhr3310/motioncore/telemetry"
	"github.com/bhr3310/motioncore/trajectory"
	"github.com/bhr3310/motioncore/utils"
)

// extra simulated time allowed past the trajectory duration before giving up.
const defaultSlack = 3.0

const slowLogInterval = 2 * time.Second

// Options configure a run.
type Options struct {
	Config *config.Config
	Path   autos.Path
	// Realtime runs the loop on the wall clock. Otherwise a mock clock is advanced as fast as the
	// loop can keep up.
	Realtime bool
	// Timeout is the simulated time limit in seconds; zero means the trajectory duration plus a
	// few seconds.
	Timeout float64
	// Sinks receive every drive frame. Run closes them.
	Sinks []telemetry.Sink
	// StartOffset displaces the simulated robot from the path's start pose, to exercise recovery.
	StartOffset *spatialmath.Pose2d
}

// Result is what happened during a run.
type Result struct {
	Trajectory *trajectory.Trajectory
	Planned    []spatialmath.Pose2d
	Driven     []spatialmath.Pose2d
	Estimated  []spatialmath.Pose2d
	Done       bool
	Elapsed    float64
	Cycles     int64
	Faults     drive.FaultCounts
	Report     telemetry.Report
	// CrossTrack is the absolute cross-track error of every cycle spent following.
	CrossTrack []float64
}

// Run builds the path, follows it with a simulated drive and reports how well it tracked.
func Run(ctx context.Context, opts Options, logger logging.Logger) (res *Result, err error) {
	cfg := opts.Config
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}
	if err := cfg.Validate("config"); err != nil {
		return nil, err
	}
	logger = logger.With("path", opts.Path.Name)
	summary := telemetry.NewSummary()
	sink := telemetry.Multi(append(append([]telemetry.Sink{}, opts.Sinks...), summary)...)
	defer func() {
		err = multierr.Combine(err, sink.Close())
	}()

	builder, err := trajectory.NewBuilder(cfg.Constraints(), logger.Sublogger("builder"))
	if err != nil {
		return nil, err
	}
	traj, err := opts.Path.Build(builder)
	if err != nil {
		return nil, err
	}

	motors, err := fakemotor.NewDrive(cfg.MotorConfig(), logger.Sublogger("motors"))
	if err != nil {
		return nil, err
	}
	truePose := opts.Path.StartPose
	if opts.StartOffset != nil {
		truePose = truePose.TransformBy(*opts.StartOffset)
	}
	motors.SetTruePose(truePose)
	gyro := fakegyro.NewGyro(motors)
	gyro.SetDrift(cfg.Simulation.GyroBias)

	d, err := drive.New(cfg.DriveConfig(), drive.Dependencies{
		Actuator: motors,
		Heading:  gyro,
		Sink:     sink,
	}, logger.Sublogger("drive"))
	if err != nil {
		return nil, err
	}
	if err := d.ResetPose(ctx, opts.Path.StartPose); err != nil {
		return nil, errors.Wrap(err, "resetting pose")
	}
	if err := d.SetTrajectory(ctx, traj); err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = traj.Duration() + defaultSlack
	}
	rec := newRecorder(d, motors, timeout)

	var clk clock.Clock = clock.New()
	mock := clock.NewMock()
	if !opts.Realtime {
		clk = mock
	}
	loop, err := control.NewLoop(cfg.LoopInterval(), clk, logger.Sublogger("loop"))
	if err != nil {
		return nil, err
	}
	loop.Register(motors)
	loop.Register(d)
	loop.Register(rec)
	if err := loop.Start(); err != nil {
		return nil, err
	}

	if opts.Realtime {
		stopSlowLogger := utils.SlowLogger(ctx, clk, slowLogInterval, logger,
			"waiting for the drive to finish", "duration", traj.Duration())
		defer stopSlowLogger()
		select {
		case <-ctx.Done():
		case <-rec.done:
		}
	} else {
		stepMock(ctx, loop, mock, rec.done)
	}
	loop.Stop()

	planned := make([]spatialmath.Pose2d, 0, traj.Len())
	for _, s := range traj.States() {
		planned = append(planned, s.Pose)
	}
	res = &Result{
		Trajectory: traj,
		Planned:    planned,
		Cycles:     loop.Cycles(),
		Faults:     d.Snapshot().Faults,
	}
	res.Driven, res.Estimated, res.Done, res.Elapsed = rec.results()
	if report, reportErr := summary.Report(); reportErr == nil {
		res.Report = report
	}
	res.CrossTrack = summary.CrossTrack()
	logger.Infow("simulation finished",
		"done", res.Done,
		"elapsed", res.Elapsed,
		"cycles", res.Cycles,
		"faults", res.Faults.Total())
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// stepMock advances the mock clock one period at a time, waiting for each cycle to finish before
// starting the next.
func stepMock(ctx context.Context, loop *control.Loop, mock *clock.Mock, done <-chan struct{}) {
	period := loop.Period()
	for want := loop.Cycles() + 1; ; want++ {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		default:
		}
		mock.Add(period)
		for loop.Cycles() < want {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-time.After(50 * time.Microsecond):
			}
		}
	}
}

// recorder samples the true and estimated pose every cycle and signals when the drive is done
// or time runs out.
type recorder struct {
	d       *drive.Drive
	motors  *fakemotor.Drive
	timeout float64
	done    chan struct{}

	mu        sync.Mutex
	once      sync.Once
	driven    []spatialmath.Pose2d
	estimated []spatialmath.Pose2d
	finished  bool
	elapsed   float64
}

func newRecorder(d *drive.Drive, motors *fakemotor.Drive, timeout float64) *recorder {
	return &recorder{d: d, motors: motors, timeout: timeout, done: make(chan struct{})}
}

func (r *recorder) OnStart(ctx context.Context, now float64) {}

func (r *recorder) OnLoop(ctx context.Context, now float64) {
	finished := r.d.IsDoneWithTrajectory()
	r.mu.Lock()
	r.driven = append(r.driven, r.motors.TruePose())
	r.estimated = append(r.estimated, r.d.FieldToVehicle(now))
	r.elapsed = now
	r.finished = finished
	r.mu.Unlock()
	if finished || now >= r.timeout {
		r.once.Do(func() { close(r.done) })
	}
}

func (r *recorder) OnStop(ctx context.Context, now float64) {}

func (r *recorder) results() ([]spatialmath.Pose2d, []spatialmath.Pose2d, bool, float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.driven, r.estimated, r.finished, r.elapsed
}
