package trajectory

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/interp"

	"github.com/bhr3310/motioncore/spatialmath"
	"github.com/bhr3310/motioncore/utils"
)

// DistanceView indexes a trajectory by arc length instead of time.
type DistanceView struct {
	traj      *Trajectory
	distances []float64
	velocity  interp.PiecewiseLinear
}

// NewDistanceView builds the arc length index for traj.
func NewDistanceView(traj *Trajectory) (*DistanceView, error) {
	distances := make([]float64, 0, traj.Len())
	velocities := make([]float64, 0, traj.Len())
	for _, s := range traj.states {
		if n := len(distances); n > 0 && s.Distance <= distances[n-1]+utils.Epsilon {
			// keep the later velocity so the final zero survives
			velocities[n-1] = s.Velocity
			continue
		}
		distances = append(distances, s.Distance)
		velocities = append(velocities, s.Velocity)
	}
	view := &DistanceView{traj: traj, distances: distances}
	if err := view.velocity.Fit(distances, velocities); err != nil {
		return nil, errors.Wrap(err, "cannot index trajectory by distance")
	}
	return view, nil
}

// Trajectory returns the viewed trajectory.
func (v *DistanceView) Trajectory() *Trajectory { return v.traj }

// Length is the total arc length.
func (v *DistanceView) Length() float64 { return v.traj.Length() }

// Sample returns the state at an arc length.
func (v *DistanceView) Sample(distance float64) TimedState {
	return v.traj.StateAtDistance(distance)
}

// Velocity returns the profile speed at an arc length.
func (v *DistanceView) Velocity(distance float64) float64 {
	return v.velocity.Predict(utils.Clamp(distance, 0, v.Length()))
}

// Project returns the arc length in [from, to] whose point is closest to p.
func (v *DistanceView) Project(p spatialmath.Translation2d, from, to float64) float64 {
	states := v.traj.states
	from = utils.Clamp(from, 0, v.Length())
	to = utils.Clamp(to, from, v.Length())

	best := from
	bestDist := math.Inf(1)
	start := sort.Search(len(states), func(i int) bool { return states[i].Distance > from })
	for i := max(start-1, 0); i < len(states)-1 && states[i].Distance <= to; i++ {
		a, b := states[i], states[i+1]
		ds := b.Distance - a.Distance
		if ds <= utils.Epsilon {
			continue
		}
		ab := b.Pose.Translation.Sub(a.Pose.Translation)
		u := 0.0
		if n := ab.Dot(ab); n > utils.Epsilon {
			u = utils.Clamp(p.Sub(a.Pose.Translation).Dot(ab)/n, 0, 1)
		}
		d := utils.Clamp(a.Distance+u*ds, from, to)
		onPath := a.Pose.Translation.Add(ab.Mul((d - a.Distance) / ds))
		if dist := p.Sub(onPath).Norm(); dist < bestDist {
			best, bestDist = d, dist
		}
	}
	return best
}
