package motor

import "github.com/pkg/errors"

// NewOutOfRangeError returns an error for a percent output outside [-1, 1].
func NewOutOfRangeError(side string, value float64) error {
	return errors.Errorf("%s percent output %v is outside [-1, 1]", side, value)
}

// NewWrongModeError returns an error for a command the controller is not configured to accept.
func NewWrongModeError(want, have Mode) error {
	return errors.Errorf("cannot command %s while configured for %s", want, have)
}

// NewNonFiniteCommandError returns an error for a NaN or infinite command.
func NewNonFiniteCommandError(command string) error {
	return errors.Errorf("refusing non-finite %s command", command)
}
