package drive

import "fmt"

// DriveSignal is a left/right pair of motor demands. Brake asks for the motors to be held in
// brake mode when neutral.
//
//nolint:revive
type DriveSignal struct {
	Left  float64
	Right float64
	Brake bool
}

// NewDriveSignal returns a coasting signal.
func NewDriveSignal(left, right float64) DriveSignal {
	return DriveSignal{Left: left, Right: right}
}

var (
	// NeutralSignal stops both sides and lets them coast.
	NeutralSignal = DriveSignal{}
	// BrakeSignal stops both sides in brake mode.
	BrakeSignal = DriveSignal{Brake: true}
)

func (s DriveSignal) String() string {
	if s.Brake {
		return fmt.Sprintf("L: %v, R: %v (brake)", s.Left, s.Right)
	}
	return fmt.Sprintf("L: %v, R: %v", s.Left, s.Right)
}
