package trajectory

import (
	"testing"

	"go.viam.com/test"

	"github.com/bhr3310/motioncore/spatialmath"
)

func TestIterator(t *testing.T) {
	b := newTestBuilder(t, defaultConstraints)
	traj, err := b.Build(sCurve(), false)
	test.That(t, err, test.ShouldBeNil)

	it := NewIterator(traj, 0.1)
	test.That(t, it.Progress(), test.ShouldEqual, 0.0)
	test.That(t, it.RemainingProgress(), test.ShouldAlmostEqual, traj.Duration())
	test.That(t, it.IsDone(), test.ShouldBeFalse)

	preview := it.Preview(0.5)
	test.That(t, it.Progress(), test.ShouldEqual, 0.0)
	advanced := it.Advance(0.5)
	test.That(t, advanced, test.ShouldResemble, preview)
	test.That(t, it.Current(), test.ShouldResemble, advanced)
	test.That(t, advanced.Time, test.ShouldAlmostEqual, 0.5)

	// negative steps never move the cursor back
	it.Advance(-1)
	test.That(t, it.Progress(), test.ShouldAlmostEqual, 0.5)

	prevDistance := it.Current().Distance
	for !it.IsDone() {
		s := it.Advance(0.01)
		test.That(t, s.Distance, test.ShouldBeGreaterThanOrEqualTo, prevDistance)
		prevDistance = s.Distance
	}
	test.That(t, traj.Length()-it.Current().Distance, test.ShouldBeLessThanOrEqualTo, 0.1)

	it.AdvanceTo(traj.Duration() + 5)
	test.That(t, it.Progress(), test.ShouldEqual, traj.Duration())
	test.That(t, it.RemainingProgress(), test.ShouldEqual, 0.0)
	test.That(t, it.Current().Velocity, test.ShouldEqual, 0.0)

	it.Reset(traj)
	test.That(t, it.Progress(), test.ShouldEqual, 0.0)
	test.That(t, it.Current(), test.ShouldResemble, traj.First())
}

func TestStateAtTimeIsConsistent(t *testing.T) {
	b := newTestBuilder(t, defaultConstraints)
	traj, err := b.Build(sCurve(), false)
	test.That(t, err, test.ShouldBeNil)

	for i := 0; i < traj.Len(); i += 7 {
		s := traj.State(i)
		sampled := traj.StateAtTime(s.Time)
		test.That(t, sampled.Distance, test.ShouldAlmostEqual, s.Distance, 1e-6)
		test.That(t, sampled.Velocity, test.ShouldAlmostEqual, s.Velocity, 1e-6)
	}
	test.That(t, traj.StateAtTime(-1), test.ShouldResemble, traj.First())
	test.That(t, traj.StateAtTime(1e6), test.ShouldResemble, traj.Last())
	test.That(t, traj.StateAtDistance(1e6), test.ShouldResemble, traj.Last())

	// halfway in time between two samples lies between them in distance
	a, c := traj.State(10), traj.State(11)
	mid := traj.StateAtTime((a.Time + c.Time) / 2)
	test.That(t, mid.Distance, test.ShouldBeBetween, a.Distance, c.Distance)
}

func TestIteratorMarkersReportedOnce(t *testing.T) {
	b := newTestBuilder(t, defaultConstraints)
	traj, err := b.Build([]Waypoint{
		NewWaypoint(0, 0, 0, 0),
		NewWaypoint(30, 0, 0, 60, "intake"),
		NewWaypoint(60, 0, 0, 60, "score"),
	}, false)
	test.That(t, err, test.ShouldBeNil)

	it := NewIterator(traj, 0.1)
	var seen []string
	for !it.IsDone() {
		it.Advance(0.02)
		for _, m := range it.TakeMarkers() {
			seen = append(seen, m.Label)
		}
	}
	test.That(t, it.TakeMarkers(), test.ShouldBeEmpty)
	test.That(t, seen, test.ShouldResemble, []string{"intake", "score"})

	it.Reset(traj)
	it.AdvanceTo(traj.Duration())
	test.That(t, len(it.TakeMarkers()), test.ShouldEqual, 2)
}

func TestDistanceView(t *testing.T) {
	b := newTestBuilder(t, defaultConstraints)
	traj, err := b.Build([]Waypoint{NewWaypoint(0, 0, 0, 0), NewWaypoint(100, 0, 0, 50)}, false)
	test.That(t, err, test.ShouldBeNil)

	view, err := NewDistanceView(traj)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, view.Length(), test.ShouldAlmostEqual, 100.0)
	test.That(t, view.Velocity(50), test.ShouldAlmostEqual, 50.0)
	test.That(t, view.Velocity(-5), test.ShouldEqual, 0.0)
	test.That(t, view.Velocity(500), test.ShouldEqual, 0.0)
	test.That(t, view.Sample(25.5).Pose.X(), test.ShouldAlmostEqual, 25.5)

	p := spatialmath.NewTranslation2d(42.3, 7)
	test.That(t, view.Project(p, 0, 100), test.ShouldAlmostEqual, 42.3)
	// the search window is honoured
	test.That(t, view.Project(p, 60, 100), test.ShouldAlmostEqual, 60.0)
	test.That(t, view.Project(spatialmath.NewTranslation2d(-10, 0), 0, 100), test.ShouldEqual, 0.0)
	test.That(t, view.Project(spatialmath.NewTranslation2d(150, 0), 0, 100), test.ShouldAlmostEqual, 100.0)
}
