// Package telemetry publishes per-cycle drive state to logs, files and live viewers.
//
// Publish must never block the control cycle: every sink either does its work inline in
// constant time or hands the frame to a bounded queue and drops it when the queue is full.
package telemetry

import (
	"go.uber.org/multierr"

	"github.com/bhr3310/motioncore/spatialmath"
)

// Frame is one control cycle as seen from outside the drive.
type Frame struct {
	Time         float64 `json:"t"`
	Mode         string  `json:"mode"`
	TrajectoryID string  `json:"trajectory_id,omitempty"`

	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading_deg"`

	SetpointX        float64 `json:"setpoint_x"`
	SetpointY        float64 `json:"setpoint_y"`
	SetpointHeading  float64 `json:"setpoint_heading_deg"`
	SetpointVelocity float64 `json:"setpoint_velocity"`

	ErrorX       float64 `json:"error_x"`
	ErrorY       float64 `json:"error_y"`
	ErrorHeading float64 `json:"error_heading_deg"`

	LeftDemand       float64 `json:"left_demand"`
	RightDemand      float64 `json:"right_demand"`
	LeftFeedforward  float64 `json:"left_feedforward"`
	RightFeedforward float64 `json:"right_feedforward"`
	LeftVelocity     float64 `json:"left_velocity"`
	RightVelocity    float64 `json:"right_velocity"`

	Done    bool     `json:"done"`
	Markers []string `json:"markers,omitempty"`
	Faults  []string `json:"faults,omitempty"`
}

// SetPose fills the estimated pose fields.
func (f *Frame) SetPose(pose spatialmath.Pose2d) {
	f.X, f.Y, f.Heading = pose.X(), pose.Y(), pose.Rotation.Degrees()
}

// SetSetpoint fills the setpoint fields.
func (f *Frame) SetSetpoint(pose spatialmath.Pose2d, velocity float64) {
	f.SetpointX, f.SetpointY, f.SetpointHeading = pose.X(), pose.Y(), pose.Rotation.Degrees()
	f.SetpointVelocity = velocity
}

// SetError fills the tracking error fields. err is expressed in the robot frame.
func (f *Frame) SetError(err spatialmath.Pose2d) {
	f.ErrorX, f.ErrorY, f.ErrorHeading = err.X(), err.Y(), err.Rotation.Degrees()
}

// Sink receives frames.
type Sink interface {
	Publish(frame Frame)
	Close() error
}

type discard struct{}

func (discard) Publish(Frame) {}

func (discard) Close() error { return nil }

// Discard is a sink that drops everything.
var Discard Sink = discard{}

type multi []Sink

// Multi fans every frame out to each sink in order.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (m multi) Publish(frame Frame) {
	for _, s := range m {
		s.Publish(frame)
	}
}

func (m multi) Close() error {
	var err error
	for _, s := range m {
		err = multierr.Combine(err, s.Close())
	}
	return err
}
