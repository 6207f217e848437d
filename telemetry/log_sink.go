package telemetry

import (
	"github.com/bhr3310/motioncore/logging"
)

// LogSink writes frames to a logger. Markers and faults are logged at info level; the full frame
// is logged at debug level every Every frames.
type LogSink struct {
	logger logging.Logger
	every  int
	count  int
}

// NewLogSink returns a sink logging one in every frames. every below 1 logs every frame.
func NewLogSink(logger logging.Logger, every int) *LogSink {
	if every < 1 {
		every = 1
	}
	return &LogSink{logger: logger, every: every}
}

// Publish implements Sink. It must only be called from one goroutine.
func (s *LogSink) Publish(frame Frame) {
	for _, m := range frame.Markers {
		s.logger.Infow("passed marker", "marker", m, "t", frame.Time, "trajectory_id", frame.TrajectoryID)
	}
	for _, f := range frame.Faults {
		s.logger.Infow("drive fault", "fault", f, "t", frame.Time)
	}
	s.count++
	if s.count%s.every != 0 {
		return
	}
	s.logger.Debugw("drive",
		"t", frame.Time,
		"mode", frame.Mode,
		"x", frame.X,
		"y", frame.Y,
		"heading", frame.Heading,
		"error_x", frame.ErrorX,
		"error_y", frame.ErrorY,
		"error_heading", frame.ErrorHeading,
		"left_demand", frame.LeftDemand,
		"right_demand", frame.RightDemand,
	)
}

// Close implements Sink.
func (s *LogSink) Close() error {
	return nil
}
