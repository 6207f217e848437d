package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bhr3310/motioncore/autos"
	"github.com/bhr3310/motioncore/components/drive"
	"github.com/bhr3310/motioncore/config"
	"github.com/bhr3310/motioncore/logging"
	"github.com/bhr3310/motioncore/sim"
	"github.com/bhr3310/motioncore/spatialmath"
	"github.com/bhr3310/motioncore/telemetry"
	"github.com/bhr3310/motioncore/trajectory"
)

const (
	// Flags.
	flagDebug      = "debug"
	flagLogLevel   = "log-level"
	flagConfig     = "config"
	flagPath       = "path"
	flagFile       = "file"
	flagFollower   = "follower"
	flagEvery      = "every"
	flagRealtime   = "realtime"
	flagTimeout    = "timeout"
	flagCSV        = "csv"
	flagListen     = "listen"
	flagOut        = "out"
	flagOffsetX    = "offset-x"
	flagOffsetY    = "offset-y"
	flagOffsetDegs = "offset-deg"
	flagLogFile    = "log-file"
	flagHistogram  = "histogram"

	logFileMaxSizeMB  = 10
	logFileMaxBackups = 3
	histogramBins     = 10
	histogramWidth    = 40

	serverShutdownTimeout = 2 * time.Second
)

type appState struct {
	logger  logging.Logger
	logFile *lumberjack.Logger
}

func newApp(stdout, stderr io.Writer) *cli.App {
	state := &appState{}
	pathFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    flagPath,
			Aliases: []string{"p"},
			Usage:   "follow the registered path `NAME`",
		},
		&cli.StringFlag{
			Name:    flagFile,
			Aliases: []string{"f"},
			Usage:   "follow the path in `FILE` (yaml or json)",
		},
	}
	simFlags := append(append([]cli.Flag{}, pathFlags...),
		&cli.StringFlag{
			Name:  flagFollower,
			Usage: fmt.Sprintf("override the follower type (%s or %s)", drive.FollowerTime, drive.FollowerPurePursuit),
		},
		&cli.BoolFlag{
			Name:  flagRealtime,
			Usage: "run the control loop on the wall clock",
		},
		&cli.Float64Flag{
			Name:  flagTimeout,
			Usage: "give up after `SECONDS` of simulated time (default: trajectory duration + 3s)",
		},
		&cli.Float64Flag{Name: flagOffsetX, Usage: "start the robot this many inches ahead of the start pose"},
		&cli.Float64Flag{Name: flagOffsetY, Usage: "start the robot this many inches left of the start pose"},
		&cli.Float64Flag{Name: flagOffsetDegs, Usage: "start the robot rotated by this many degrees"},
	)

	return &cli.App{
		Name:      "pathsim",
		Usage:     "build drive trajectories and follow them in simulation",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Value: "info",
				Usage: "minimum `LEVEL` to log: debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to `FILE`, rotating it as it grows",
			},
		},
		Before: func(c *cli.Context) error {
			logger := logging.NewBlankLogger("pathsim")
			logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
			if file := c.String(flagLogFile); file != "" {
				state.logFile = &lumberjack.Logger{
					Filename:   file,
					MaxSize:    logFileMaxSizeMB,
					MaxBackups: logFileMaxBackups,
				}
				logger.AddAppender(logging.NewWriterAppender(state.logFile))
			}
			level, err := logging.LevelFromString(c.String(flagLogLevel))
			if err != nil {
				return err
			}
			if c.Bool(flagDebug) {
				level = logging.DEBUG
			}
			logger.SetLevel(level)
			state.logger = logger
			return nil
		},
		After: func(c *cli.Context) error {
			if state.logger == nil {
				return nil
			}
			err := state.logger.Sync()
			if state.logFile != nil {
				err = multierr.Combine(err, state.logFile.Close())
			}
			return err
		},
		Commands: []*cli.Command{
			{
				Name:   "paths",
				Usage:  "list the registered paths",
				Action: state.listPathsAction,
			},
			{
				Name:  "build",
				Usage: "build a trajectory and describe it",
				Flags: append(append([]cli.Flag{}, pathFlags...), &cli.IntFlag{
					Name:  flagEvery,
					Usage: "also print every `N`th state (0 prints none)",
				}),
				Action: state.buildAction,
			},
			{
				Name:  "simulate",
				Usage: "follow a path with the simulated drive and report tracking error",
				Flags: append(append([]cli.Flag{}, simFlags...),
					&cli.StringFlag{
						Name:  flagCSV,
						Usage: "write every drive frame to `FILE`",
					},
					&cli.StringFlag{
						Name:  flagListen,
						Usage: "stream drive frames over a websocket served at `ADDRESS`",
					},
					&cli.BoolFlag{
						Name:  flagHistogram,
						Usage: "print a histogram of the cross track error",
					},
				),
				Action: state.simulateAction,
			},
			{
				Name:  "plot",
				Usage: "follow a path with the simulated drive and plot planned against driven",
				Flags: append(append([]cli.Flag{}, simFlags...), &cli.StringFlag{
					Name:     flagOut,
					Aliases:  []string{"o"},
					Usage:    "write the plot to `FILE` (png, svg or pdf)",
					Required: true,
				}),
				Action: state.plotAction,
			},
			{
				Name:   "schema",
				Usage:  "print the JSON schema of the config file",
				Action: state.schemaAction,
			},
		},
	}
}

func (s *appState) loadConfig(c *cli.Context) (*config.Config, error) {
	var cfg *config.Config
	if file := c.String(flagConfig); file != "" {
		var err error
		if cfg, err = config.Read(file, s.logger.Sublogger("config")); err != nil {
			return nil, err
		}
	} else {
		def := config.Default()
		cfg = &def
	}
	if c.IsSet(flagFollower) {
		cfg.Follower.Type = c.String(flagFollower)
		if err := cfg.Validate(flagFollower); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func loadPath(c *cli.Context) (autos.Path, error) {
	name, file := c.String(flagPath), c.String(flagFile)
	switch {
	case name != "" && file != "":
		return autos.Path{}, errors.Errorf("--%s and --%s are mutually exclusive", flagPath, flagFile)
	case file != "":
		return autos.ReadPathFile(file)
	case name != "":
		return autos.Lookup(name)
	default:
		return autos.Path{}, errors.Errorf("one of --%s or --%s is required", flagPath, flagFile)
	}
}

func (s *appState) listPathsAction(c *cli.Context) error {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Name", "Waypoints", "Start", "Reversed", "Markers"})
	for _, name := range autos.Names() {
		p, err := autos.Lookup(name)
		if err != nil {
			return err
		}
		t.AppendRow(table.Row{name, len(p.Waypoints), p.StartPose.String(), p.Reversed, strings.Join(p.Markers(), ", ")})
	}
	fmt.Fprintln(c.App.Writer, t.Render())
	return nil
}

func (s *appState) buildAction(c *cli.Context) error {
	cfg, err := s.loadConfig(c)
	if err != nil {
		return err
	}
	p, err := loadPath(c)
	if err != nil {
		return err
	}
	b, err := trajectory.NewBuilder(cfg.Constraints(), s.logger.Sublogger("builder"))
	if err != nil {
		return err
	}
	traj, err := p.Build(b)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetTitle(p.Name)
	t.AppendRows([]table.Row{
		{"id", traj.ID().String()},
		{"states", traj.Len()},
		{"length (in)", fmt.Sprintf("%.2f", traj.Length())},
		{"duration (s)", fmt.Sprintf("%.3f", traj.Duration())},
		{"reversed", traj.Reversed()},
		{"peak velocity (ips)", fmt.Sprintf("%.2f", lo.MaxBy(traj.States(), func(a, b trajectory.TimedState) bool {
			return a.Velocity > b.Velocity
		}).Velocity)},
	})
	for _, m := range traj.Markers() {
		t.AppendRow(table.Row{"marker " + m.Label, fmt.Sprintf("%.2f in (%.0f%%)", m.Distance, 100*m.Fraction)})
	}
	fmt.Fprintln(c.App.Writer, t.Render())

	if every := c.Int(flagEvery); every > 0 {
		st := table.NewWriter()
		st.AppendHeader(table.Row{"t (s)", "s (in)", "x", "y", "heading", "v (ips)", "a (ips2)", "curvature"})
		states := traj.States()
		for i, state := range states {
			if i%every != 0 && i != len(states)-1 {
				continue
			}
			st.AppendRow(table.Row{
				fmt.Sprintf("%.3f", state.Time),
				fmt.Sprintf("%.2f", state.Distance),
				fmt.Sprintf("%.2f", state.Pose.X()),
				fmt.Sprintf("%.2f", state.Pose.Y()),
				fmt.Sprintf("%.1f", state.Pose.Rotation.Degrees()),
				fmt.Sprintf("%.2f", state.Velocity),
				fmt.Sprintf("%.2f", state.Acceleration),
				fmt.Sprintf("%.4f", state.Curvature),
			})
		}
		fmt.Fprintln(c.App.Writer, st.Render())
	}
	return nil
}

func (s *appState) simOptions(c *cli.Context) (sim.Options, error) {
	cfg, err := s.loadConfig(c)
	if err != nil {
		return sim.Options{}, err
	}
	p, err := loadPath(c)
	if err != nil {
		return sim.Options{}, err
	}
	opts := sim.Options{
		Config:   cfg,
		Path:     p,
		Realtime: c.Bool(flagRealtime),
		Timeout:  c.Float64(flagTimeout),
	}
	if c.IsSet(flagOffsetX) || c.IsSet(flagOffsetY) || c.IsSet(flagOffsetDegs) {
		offset := spatialmath.NewPose2d(c.Float64(flagOffsetX), c.Float64(flagOffsetY),
			spatialmath.RotationFromDegrees(c.Float64(flagOffsetDegs)))
		opts.StartOffset = &offset
	}
	if cfg.Telemetry.LogEvery > 0 {
		opts.Sinks = append(opts.Sinks, telemetry.NewLogSink(s.logger.Sublogger("telemetry"), cfg.Telemetry.LogEvery))
	}
	return opts, nil
}

func (s *appState) simulateAction(c *cli.Context) error {
	opts, err := s.simOptions(c)
	if err != nil {
		return err
	}

	csvPath := c.String(flagCSV)
	if csvPath == "" {
		csvPath = opts.Config.Telemetry.CSVPath
	}
	if csvPath != "" {
		//nolint:gosec
		f, err := os.Create(csvPath)
		if err != nil {
			return errors.Wrap(err, "creating csv output")
		}
		defer func() {
			if err := f.Close(); err != nil {
				s.logger.Warnw("failed to close csv output", "error", err)
			}
		}()
		sink, err := telemetry.NewCSVSink(f)
		if err != nil {
			return err
		}
		opts.Sinks = append(opts.Sinks, sink)
	}

	listen := c.String(flagListen)
	if listen == "" {
		listen = opts.Config.Telemetry.WebsocketAddress
	}
	var res *sim.Result
	if listen == "" {
		if res, err = sim.Run(c.Context, opts, s.logger); err != nil {
			return err
		}
	} else {
		if res, err = s.simulateServing(c.Context, opts, listen); err != nil {
			return err
		}
	}
	if err := printReport(c.App.Writer, opts.Path.Name, res); err != nil {
		return err
	}
	if c.Bool(flagHistogram) && len(res.CrossTrack) > 0 {
		fmt.Fprintln(c.App.Writer, "cross track error (in)")
		return histogram.Fprint(c.App.Writer, histogram.Hist(histogramBins, res.CrossTrack), histogram.Linear(histogramWidth))
	}
	return nil
}

// simulateServing runs the simulation while a websocket server streams its frames. The server is
// shut down when the simulation ends.
func (s *appState) simulateServing(ctx context.Context, opts sim.Options, address string) (*sim.Result, error) {
	ws := telemetry.NewWebsocketSink(s.logger.Sublogger("websocket"))
	opts.Sinks = append(opts.Sinks, ws)

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", address)
	}
	mux := http.NewServeMux()
	mux.Handle("/telemetry", ws)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	s.logger.Infow("streaming telemetry", "url", fmt.Sprintf("ws://%s/telemetry", listener.Addr().String()))

	g, gctx := errgroup.WithContext(ctx)
	simDone := make(chan struct{})
	var res *sim.Result
	g.Go(func() error {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer close(simDone)
		var err error
		res, err = sim.Run(gctx, opts, s.logger)
		return err
	})
	g.Go(func() error {
		select {
		case <-simDone:
		case <-gctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, nil
}

func (s *appState) plotAction(c *cli.Context) error {
	opts, err := s.simOptions(c)
	if err != nil {
		return err
	}
	res, err := sim.Run(c.Context, opts, s.logger)
	if err != nil {
		return err
	}
	out := c.String(flagOut)
	if err := sim.SavePlot(res, opts.Path.Name, out); err != nil {
		return err
	}
	s.logger.Infow("wrote plot", "file", out)
	return printReport(c.App.Writer, opts.Path.Name, res)
}

func (s *appState) schemaAction(c *cli.Context) error {
	out, err := config.SchemaJSON()
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(out))
	return nil
}

func printReport(w io.Writer, name string, res *sim.Result) error {
	if res == nil || len(res.Driven) == 0 {
		return errors.New("simulation produced no result")
	}
	r := res.Report
	final := res.Driven[len(res.Driven)-1]
	end := res.Trajectory.Last().Pose
	t := table.NewWriter()
	t.SetTitle(name)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"finished", outcome(res.Done)},
		{"elapsed (s)", fmt.Sprintf("%.2f", res.Elapsed)},
		{"planned duration (s)", fmt.Sprintf("%.2f", res.Trajectory.Duration())},
		{"cycles", res.Cycles},
		{"final position error (in)", fmt.Sprintf("%.2f", final.Translation.Sub(end.Translation).Norm())},
		{"cross track mean / p95 / max (in)", fmt.Sprintf("%.2f / %.2f / %.2f", r.MeanCrossTrack, r.P95CrossTrack, r.MaxCrossTrack)},
		{"along track mean / max (in)", fmt.Sprintf("%.2f / %.2f", r.MeanAlongTrack, r.MaxAlongTrack)},
		{"heading mean / max (deg)", fmt.Sprintf("%.2f / %.2f", r.MeanHeading, r.MaxHeading)},
		{"markers", strings.Join(r.Markers, ", ")},
		{"faults", faults(res.Faults.Total())},
	})
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func outcome(done bool) string {
	if done {
		return color.GreenString("true")
	}
	return color.RedString("false")
}

func faults(n int) string {
	if n == 0 {
		return "0"
	}
	return color.YellowString("%d", n)
}
