package estimator

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/bhr3310/motioncore/spatialmath"
)

// DefaultHistoryCapacity is the number of poses kept when no capacity is given.
const DefaultHistoryCapacity = 100

// PoseSample is a pose observed at a time in seconds.
type PoseSample struct {
	Time float64
	Pose spatialmath.Pose2d
}

// PoseHistory is a bounded, time-ordered record of poses. A single writer appends; any number of
// readers query published snapshots without blocking it.
type PoseHistory struct {
	capacity int

	writeMu  sync.Mutex
	snapshot atomic.Pointer[[]PoseSample]
}

// NewPoseHistory returns an empty history holding at most capacity samples.
func NewPoseHistory(capacity int) *PoseHistory {
	if capacity < 1 {
		capacity = DefaultHistoryCapacity
	}
	h := &PoseHistory{capacity: capacity}
	empty := []PoseSample{}
	h.snapshot.Store(&empty)
	return h
}

func (h *PoseHistory) load() []PoseSample {
	return *h.snapshot.Load()
}

// Add appends a pose. Timestamps must strictly increase; the oldest sample is dropped once the
// history is full.
func (h *PoseHistory) Add(t float64, pose spatialmath.Pose2d) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	current := h.load()
	if n := len(current); n > 0 && t <= current[n-1].Time {
		return errors.Errorf("pose timestamp %.6f is not after latest %.6f", t, current[n-1].Time)
	}
	start := 0
	if len(current) >= h.capacity {
		start = len(current) - h.capacity + 1
	}
	next := make([]PoseSample, 0, len(current)-start+1)
	next = append(next, current[start:]...)
	next = append(next, PoseSample{Time: t, Pose: pose})
	h.snapshot.Store(&next)
	return nil
}

// Reset discards every sample and starts over from pose at t.
func (h *PoseHistory) Reset(t float64, pose spatialmath.Pose2d) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	next := []PoseSample{{Time: t, Pose: pose}}
	h.snapshot.Store(&next)
}

// Len returns the number of stored samples.
func (h *PoseHistory) Len() int {
	return len(h.load())
}

// Latest returns the newest sample, or false if the history is empty.
func (h *PoseHistory) Latest() (PoseSample, bool) {
	samples := h.load()
	if len(samples) == 0 {
		return PoseSample{}, false
	}
	return samples[len(samples)-1], true
}

// Earliest returns the oldest retained sample, or false if the history is empty.
func (h *PoseHistory) Earliest() (PoseSample, bool) {
	samples := h.load()
	if len(samples) == 0 {
		return PoseSample{}, false
	}
	return samples[0], true
}

// At returns the pose at time t. Queries before the oldest sample return the oldest pose, queries
// after the newest return the newest, and anything between is interpolated along the arc joining
// the bracketing samples. An empty history yields the identity pose.
func (h *PoseHistory) At(t float64) spatialmath.Pose2d {
	samples := h.load()
	n := len(samples)
	switch {
	case n == 0:
		return spatialmath.NewZeroPose()
	case t <= samples[0].Time:
		return samples[0].Pose
	case t >= samples[n-1].Time:
		return samples[n-1].Pose
	}
	i := sort.Search(n, func(i int) bool { return samples[i].Time > t })
	a, b := samples[i-1], samples[i]
	return a.Pose.Interpolate(b.Pose, (t-a.Time)/(b.Time-a.Time))
}
