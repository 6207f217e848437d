package trajectory

import (
	"sort"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Marker is a label attached to a point along the path, located by its fraction of the total arc
// length.
type Marker struct {
	Fraction float64
	Distance float64
	Label    string
}

// Trajectory is an immutable, time-parameterized path. It is safe to share between goroutines.
type Trajectory struct {
	id       uuid.UUID
	states   []TimedState
	reversed bool
	markers  []Marker
}

func newTrajectory(states []TimedState, reversed bool, markers []Marker) *Trajectory {
	return &Trajectory{
		id:       uuid.New(),
		states:   states,
		reversed: reversed,
		markers:  markers,
	}
}

// ID identifies the trajectory in logs and telemetry.
func (t *Trajectory) ID() uuid.UUID { return t.id }

// Reversed reports whether the robot drives this trajectory backwards.
func (t *Trajectory) Reversed() bool { return t.reversed }

// Len returns the number of states.
func (t *Trajectory) Len() int { return len(t.states) }

// State returns the i-th state.
func (t *Trajectory) State(i int) TimedState { return t.states[i] }

// States returns a copy of every state in order.
func (t *Trajectory) States() []TimedState {
	return append([]TimedState(nil), t.states...)
}

// First returns the initial state.
func (t *Trajectory) First() TimedState { return t.states[0] }

// Last returns the final state.
func (t *Trajectory) Last() TimedState { return t.states[len(t.states)-1] }

// Duration is the time of the final state.
func (t *Trajectory) Duration() float64 { return t.Last().Time }

// Length is the total arc length.
func (t *Trajectory) Length() float64 { return t.Last().Distance }

// Markers returns the markers in path order.
func (t *Trajectory) Markers() []Marker {
	return append([]Marker(nil), t.markers...)
}

// MarkerLabels returns the labels of the markers in path order.
func (t *Trajectory) MarkerLabels() []string {
	return lo.Map(t.markers, func(m Marker, _ int) string { return m.Label })
}

// StateAtTime samples the trajectory at time seconds from its start, clamping outside
// [0, Duration].
func (t *Trajectory) StateAtTime(time float64) TimedState {
	if time <= 0 {
		return t.First()
	}
	if time >= t.Duration() {
		return t.Last()
	}
	i := sort.Search(len(t.states), func(i int) bool { return t.states[i].Time > time })
	return interpolateByTime(t.states[i-1], t.states[i], time)
}

// StateAtDistance samples the trajectory at an arc length, clamping outside [0, Length].
func (t *Trajectory) StateAtDistance(distance float64) TimedState {
	if distance <= 0 {
		return t.First()
	}
	if distance >= t.Length() {
		return t.Last()
	}
	i := sort.Search(len(t.states), func(i int) bool { return t.states[i].Distance > distance })
	a, b := t.states[i-1], t.states[i]
	return interpolateByDistance(a, b, (distance-a.Distance)/(b.Distance-a.Distance))
}
