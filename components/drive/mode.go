package drive

import (
	"strings"
)

// ControlMode is what the drive is doing with its motors.
type ControlMode int

// The control modes. JOYSTICK leaves the motors to teleop commands; the remaining modes are
// driven by the drive itself.
const (
	ModeJoystick ControlMode = iota
	ModeHold
	ModeManual
	ModeVelocitySetpoint
	ModeCameraTrack
	ModePathFollowing
	ModeOpenLoop
)

var modeNames = map[ControlMode]string{
	ModeJoystick:         "JOYSTICK",
	ModeHold:             "HOLD",
	ModeManual:           "MANUAL",
	ModeVelocitySetpoint: "VELOCITY_SETPOINT",
	ModeCameraTrack:      "CAMERA_TRACK",
	ModePathFollowing:    "PATH_FOLLOWING",
	ModeOpenLoop:         "OPEN_LOOP",
}

func (m ControlMode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "UNKNOWN"
}

// Valid reports whether m is one of the defined modes.
func (m ControlMode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

// ParseControlMode parses a mode name, ignoring case.
func ParseControlMode(name string) (ControlMode, error) {
	for m, n := range modeNames {
		if strings.EqualFold(n, name) {
			return m, nil
		}
	}
	return 0, NewUnknownModeError(name)
}

// usesVelocityControl reports whether the motor controllers run their velocity loop in m.
func usesVelocityControl(m ControlMode) bool {
	switch m {
	case ModeVelocitySetpoint, ModePathFollowing, ModeCameraTrack:
		return true
	default:
		return false
	}
}
