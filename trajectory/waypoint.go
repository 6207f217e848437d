// Package trajectory turns waypoint lists into timed, velocity-limited trajectories and provides
// cursors for sampling them by time or by arc length.
package trajectory

import (
	"github.com/pkg/errors"

	"github.com/bhr3310/motioncore/spatialmath"
	"github.com/bhr3310/motioncore/utils"
)

// Waypoint is a point the path passes through (or rounds, when Radius is positive). Speed caps the
// segment that ends at this waypoint; zero leaves it uncapped. The speed of the first waypoint is
// unused.
type Waypoint struct {
	Position spatialmath.Translation2d
	Radius   float64
	Speed    float64
	Marker   string
}

// NewWaypoint builds a waypoint with an optional marker label.
func NewWaypoint(x, y, radius, speed float64, marker ...string) Waypoint {
	wp := Waypoint{
		Position: spatialmath.NewTranslation2d(x, y),
		Radius:   radius,
		Speed:    speed,
	}
	if len(marker) > 0 {
		wp.Marker = marker[0]
	}
	return wp
}

// HasMarker reports whether the waypoint carries a label.
func (w Waypoint) HasMarker() bool {
	return w.Marker != ""
}

func validateWaypoints(waypoints []Waypoint) error {
	if len(waypoints) < 2 {
		return errors.Errorf("need at least 2 waypoints, got %d", len(waypoints))
	}
	for i, wp := range waypoints {
		if !utils.IsFinite(wp.Position.X, wp.Position.Y, wp.Radius, wp.Speed) {
			return errors.Errorf("waypoint %d has a non-finite value", i)
		}
		if wp.Speed < 0 {
			return errors.Errorf("waypoint %d has negative speed %v", i, wp.Speed)
		}
		if wp.Radius < 0 {
			return errors.Errorf("waypoint %d has negative radius %v", i, wp.Radius)
		}
		if i > 0 && wp.Position.Sub(waypoints[i-1].Position).Norm() < utils.Epsilon {
			return errors.Errorf("waypoint %d duplicates waypoint %d", i, i-1)
		}
	}
	return nil
}
