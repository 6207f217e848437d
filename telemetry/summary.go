package telemetry

import (
	"math"
	"sync"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
)

// Summary records tracking error while a trajectory is being followed and reduces it to
// statistics when asked.
type Summary struct {
	mu         sync.Mutex
	crossTrack stats.Float64Data
	alongTrack stats.Float64Data
	heading    stats.Float64Data
	faults     int
	markers    []string
	duration   float64
	start      float64
	started    bool
}

// Report is the reduced tracking error, in inches and degrees.
type Report struct {
	Samples          int
	Duration         float64
	MeanCrossTrack   float64
	MaxCrossTrack    float64
	P95CrossTrack    float64
	StdDevCrossTrack float64
	MeanAlongTrack   float64
	MaxAlongTrack    float64
	MeanHeading      float64
	MaxHeading       float64
	Faults           int
	Markers          []string
}

// NewSummary returns an empty summary.
func NewSummary() *Summary {
	return &Summary{}
}

// Publish implements Sink. Only frames carrying a trajectory are recorded.
func (s *Summary) Publish(frame Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults += len(frame.Faults)
	if frame.TrajectoryID == "" {
		return
	}
	if !s.started {
		s.start = frame.Time
		s.started = true
	}
	s.duration = frame.Time - s.start
	s.crossTrack = append(s.crossTrack, math.Abs(frame.ErrorY))
	s.alongTrack = append(s.alongTrack, math.Abs(frame.ErrorX))
	s.heading = append(s.heading, math.Abs(frame.ErrorHeading))
	s.markers = append(s.markers, frame.Markers...)
}

// Close implements Sink.
func (s *Summary) Close() error {
	return nil
}

// Report reduces the recorded samples.
func (s *Summary) Report() (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := Report{
		Samples:  len(s.crossTrack),
		Duration: s.duration,
		Faults:   s.faults,
		Markers:  append([]string(nil), s.markers...),
	}
	if r.Samples == 0 {
		return r, errors.New("no tracking samples recorded")
	}

	var err error
	collect := func(f func() (float64, error)) float64 {
		v, e := f()
		if e != nil && err == nil {
			err = e
		}
		return v
	}
	r.MeanCrossTrack = collect(s.crossTrack.Mean)
	r.MaxCrossTrack = collect(s.crossTrack.Max)
	r.P95CrossTrack = collect(func() (float64, error) { return s.crossTrack.Percentile(95) })
	r.StdDevCrossTrack = collect(s.crossTrack.StandardDeviation)
	r.MeanAlongTrack = collect(s.alongTrack.Mean)
	r.MaxAlongTrack = collect(s.alongTrack.Max)
	r.MeanHeading = collect(s.heading.Mean)
	r.MaxHeading = collect(s.heading.Max)
	return r, errors.Wrap(err, "summarizing tracking error")
}

// CrossTrack returns a copy of the recorded absolute cross-track errors, in inches.
func (s *Summary) CrossTrack() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.crossTrack...)
}
