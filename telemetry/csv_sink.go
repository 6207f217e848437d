package telemetry

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/bhr3310/motioncore/utils"
)

const defaultQueueSize = 512

var csvHeader = []string{
	"t", "mode", "trajectory_id",
	"x", "y", "heading_deg",
	"setpoint_x", "setpoint_y", "setpoint_heading_deg", "setpoint_velocity",
	"error_x", "error_y", "error_heading_deg",
	"left_demand", "right_demand", "left_feedforward", "right_feedforward",
	"left_velocity", "right_velocity",
	"done", "markers", "faults",
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}

func csvRow(f Frame) []string {
	return []string{
		formatFloat(f.Time), f.Mode, f.TrajectoryID,
		formatFloat(f.X), formatFloat(f.Y), formatFloat(f.Heading),
		formatFloat(f.SetpointX), formatFloat(f.SetpointY), formatFloat(f.SetpointHeading), formatFloat(f.SetpointVelocity),
		formatFloat(f.ErrorX), formatFloat(f.ErrorY), formatFloat(f.ErrorHeading),
		formatFloat(f.LeftDemand), formatFloat(f.RightDemand), formatFloat(f.LeftFeedforward), formatFloat(f.RightFeedforward),
		formatFloat(f.LeftVelocity), formatFloat(f.RightVelocity),
		strconv.FormatBool(f.Done), strings.Join(f.Markers, ";"), strings.Join(f.Faults, ";"),
	}
}

// CSVSink writes one row per frame from a background worker. Frames published while the queue
// is full are dropped and counted.
type CSVSink struct {
	w       *csv.Writer
	frames  chan Frame
	workers utils.StoppableWorkers
	dropped atomic.Int64

	mu       sync.Mutex
	closed   bool
	writeErr error
}

// NewCSVSink writes the header and starts the writer.
func NewCSVSink(out io.Writer) (*CSVSink, error) {
	w := csv.NewWriter(out)
	if err := w.Write(csvHeader); err != nil {
		return nil, errors.Wrap(err, "writing csv header")
	}
	s := &CSVSink{w: w, frames: make(chan Frame, defaultQueueSize)}
	s.workers = utils.NewStoppableWorkers(s.run)
	return s, nil
}

func (s *CSVSink) run(ctx context.Context) {
	for {
		select {
		case f := <-s.frames:
			s.write(f)
		case <-ctx.Done():
			for {
				select {
				case f := <-s.frames:
					s.write(f)
				default:
					s.w.Flush()
					s.setErr(s.w.Error())
					return
				}
			}
		}
	}
}

func (s *CSVSink) write(f Frame) {
	s.setErr(s.w.Write(csvRow(f)))
}

func (s *CSVSink) setErr(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr == nil {
		s.writeErr = err
	}
}

// Publish implements Sink.
func (s *CSVSink) Publish(frame Frame) {
	select {
	case s.frames <- frame:
	default:
		s.dropped.Inc()
	}
}

// Dropped returns the number of frames lost to a full queue.
func (s *CSVSink) Dropped() int64 {
	return s.dropped.Load()
}

// Close drains the queue, flushes and reports the first write error.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.workers.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeErr
}
