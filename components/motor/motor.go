// Package motor defines the port the drive uses to command its two wheel motor controllers.
//
// Velocities are in encoder ticks per 100 ms and positions in encoder ticks, the native units of
// the smart motor controllers on the robot. Percent outputs are fractions of the nominal supply
// voltage in [-1, 1].
package motor

import (
	"context"
)

// Mode is the closed-loop mode a motor controller is configured for.
type Mode int

// The modes a controller can run in.
const (
	ModePercentOutput Mode = iota
	ModeVelocity
	ModePosition
)

func (m Mode) String() string {
	switch m {
	case ModePercentOutput:
		return "percent_output"
	case ModeVelocity:
		return "velocity"
	case ModePosition:
		return "position"
	default:
		return "unknown"
	}
}

// Actuator drives the left and right sides of a differential drive. Implementations must be safe
// to call from the control loop goroutine while other goroutines configure them.
type Actuator interface {
	// ConfigureForVelocity selects the on-controller velocity loop with no output deadband.
	ConfigureForVelocity(ctx context.Context) error

	// ConfigureForOpenLoop selects percent output with the given neutral deadband.
	ConfigureForOpenLoop(ctx context.Context, deadband float64) error

	// ConfigureForHold selects the on-controller position loop.
	ConfigureForHold(ctx context.Context) error

	// SetVelocity commands wheel velocities with an arbitrary feedforward expressed as percent
	// output.
	SetVelocity(ctx context.Context, left, right, leftFeedforward, rightFeedforward float64) error

	// SetPercentOutput commands each side as a fraction of the nominal voltage.
	SetPercentOutput(ctx context.Context, left, right float64) error

	// SetPosition commands each side to hold an encoder position.
	SetPosition(ctx context.Context, left, right float64) error

	// SetBrakeMode selects brake (true) or coast (false) when the output is neutral.
	SetBrakeMode(ctx context.Context, on bool) error

	// Position returns the encoder positions.
	Position(ctx context.Context) (left, right float64, err error)

	// Velocity returns the encoder velocities.
	Velocity(ctx context.Context) (left, right float64, err error)

	// ResetPosition zeroes both encoders.
	ResetPosition(ctx context.Context) error
}
