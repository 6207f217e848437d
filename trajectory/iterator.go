package trajectory

import (
	"github.com/samber/lo"
)

// Iterator is a time cursor over a trajectory. It is owned by one controller and is not safe for
// concurrent use.
type Iterator struct {
	traj                *Trajectory
	completionTolerance float64
	time                float64
	current             TimedState
	nextMarker          int
}

// NewIterator places a cursor at the start of traj. The iterator counts as done once the cursor is
// within completionTolerance of the end of the path.
func NewIterator(traj *Trajectory, completionTolerance float64) *Iterator {
	it := &Iterator{completionTolerance: completionTolerance}
	it.Reset(traj)
	return it
}

// Reset restarts the cursor at the start of traj.
func (it *Iterator) Reset(traj *Trajectory) {
	it.traj = traj
	it.time = 0
	it.nextMarker = 0
	it.current = traj.First()
}

// Trajectory returns the trajectory being iterated.
func (it *Iterator) Trajectory() *Trajectory { return it.traj }

// Current returns the state at the cursor.
func (it *Iterator) Current() TimedState { return it.current }

// Progress returns the cursor time.
func (it *Iterator) Progress() float64 { return it.time }

// RemainingProgress returns the time left until the end of the trajectory.
func (it *Iterator) RemainingProgress() float64 {
	return max(0, it.traj.Duration()-it.time)
}

// IsDone reports whether the cursor reached the end.
func (it *Iterator) IsDone() bool {
	return it.time >= it.traj.Duration() ||
		it.current.Distance >= it.traj.Length()-it.completionTolerance
}

// Preview samples the trajectory dt seconds past the cursor without moving it.
func (it *Iterator) Preview(dt float64) TimedState {
	return it.traj.StateAtTime(it.time + dt)
}

// Advance moves the cursor dt seconds forward and returns the new state.
func (it *Iterator) Advance(dt float64) TimedState {
	it.time = min(it.time+max(dt, 0), it.traj.Duration())
	it.current = it.traj.StateAtTime(it.time)
	return it.current
}

// AdvanceTo moves the cursor to an absolute time, never backwards.
func (it *Iterator) AdvanceTo(t float64) TimedState {
	return it.Advance(t - it.time)
}

// TakeMarkers returns markers the cursor has passed since the last call. Each marker is reported
// once per Reset.
func (it *Iterator) TakeMarkers() []Marker {
	remaining := it.traj.markers[it.nextMarker:]
	done := it.IsDone()
	// markers are sorted by distance, so the passed ones form a prefix
	passed := lo.Filter(remaining, func(m Marker, _ int) bool {
		return done || m.Distance <= it.current.Distance
	})
	it.nextMarker += len(passed)
	return passed
}
