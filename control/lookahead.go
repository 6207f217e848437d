package control

import (
	"github.com/pkg/errors"

	"github.com/bhr3310/motioncore/utils"
)

// Lookahead maps robot speed to a pure pursuit lookahead distance, interpolating linearly between
// (MinSpeed, MinDistance) and (MaxSpeed, MaxDistance) and clamping outside that range.
type Lookahead struct {
	MinDistance float64
	MaxDistance float64
	MinSpeed    float64
	MaxSpeed    float64
}

// Validate ensures the lookahead bounds are usable.
func (l Lookahead) Validate() error {
	if l.MinDistance <= 0 || l.MaxDistance < l.MinDistance {
		return errors.Errorf("lookahead distance bounds [%v, %v] are invalid", l.MinDistance, l.MaxDistance)
	}
	if l.MaxSpeed <= l.MinSpeed {
		return errors.Errorf("lookahead speed bounds [%v, %v] are invalid", l.MinSpeed, l.MaxSpeed)
	}
	return nil
}

// Distance returns the lookahead for a speed.
func (l Lookahead) Distance(speed float64) float64 {
	x := (speed - l.MinSpeed) / (l.MaxSpeed - l.MinSpeed)
	return utils.Interpolate(l.MinDistance, l.MaxDistance, x)
}
