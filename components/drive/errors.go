package drive

import (
	"fmt"

	"github.com/pkg/errors"
)

// ConfigurationError reports a command that cannot be acted on in the drive's current setup,
// such as path following without a trajectory.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "drive misconfigured: " + e.Reason
}

// NewConfigurationError returns a ConfigurationError.
func NewConfigurationError(format string, args ...interface{}) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// NumericDegenerateError reports a computed quantity that is not a finite number. The offending
// output is never written to the motors.
type NumericDegenerateError struct {
	Quantity string
	Err      error
}

func (e *NumericDegenerateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("degenerate %s: %v", e.Quantity, e.Err)
	}
	return "degenerate " + e.Quantity
}

func (e *NumericDegenerateError) Unwrap() error { return e.Err }

// NewNumericDegenerateError returns a NumericDegenerateError.
func NewNumericDegenerateError(quantity string, err error) error {
	return &NumericDegenerateError{Quantity: quantity, Err: err}
}

// SensorFaultError reports a failed read from the encoders or the gyro.
type SensorFaultError struct {
	Sensor string
	Err    error
}

func (e *SensorFaultError) Error() string {
	return fmt.Sprintf("%s read failed: %v", e.Sensor, e.Err)
}

func (e *SensorFaultError) Unwrap() error { return e.Err }

// NewSensorFaultError returns a SensorFaultError.
func NewSensorFaultError(sensor string, err error) error {
	return &SensorFaultError{Sensor: sensor, Err: err}
}

// UnknownModeError reports a control mode the drive does not implement.
type UnknownModeError struct {
	Mode string
}

func (e *UnknownModeError) Error() string {
	return "unknown drive control mode: " + e.Mode
}

// NewUnknownModeError returns an UnknownModeError.
func NewUnknownModeError(mode string) error {
	return &UnknownModeError{Mode: mode}
}

// FaultCounts tallies faults by kind since the drive was created.
type FaultCounts struct {
	Configuration     int
	NumericDegenerate int
	SensorFault       int
	UnknownMode       int
	Actuator          int
}

// Total returns the number of faults of every kind.
func (c FaultCounts) Total() int {
	return c.Configuration + c.NumericDegenerate + c.SensorFault + c.UnknownMode + c.Actuator
}

func (c *FaultCounts) count(err error) string {
	var (
		configErr  *ConfigurationError
		numericErr *NumericDegenerateError
		sensorErr  *SensorFaultError
		modeErr    *UnknownModeError
	)
	switch {
	case errors.As(err, &configErr):
		c.Configuration++
		return "configuration"
	case errors.As(err, &numericErr):
		c.NumericDegenerate++
		return "numeric"
	case errors.As(err, &sensorErr):
		c.SensorFault++
		return "sensor"
	case errors.As(err, &modeErr):
		c.UnknownMode++
		return "mode"
	default:
		c.Actuator++
		return "actuator"
	}
}
