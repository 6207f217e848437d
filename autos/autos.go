// Package autos holds the named autonomous paths and reads path files.
package autos

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/bhr3310/motioncore/spatialmath"
	"github.com/bhr3310/motioncore/trajectory"
)

// Path is a waypoint list together with where the robot starts and whether it drives it
// backwards.
type Path struct {
	Name      string
	Waypoints []trajectory.Waypoint
	StartPose spatialmath.Pose2d
	Reversed  bool
}

// Build times the path with b.
func (p Path) Build(b *trajectory.Builder) (*trajectory.Trajectory, error) {
	traj, err := b.Build(p.Waypoints, p.Reversed)
	if err != nil {
		return nil, errors.Wrapf(err, "building path %q", p.Name)
	}
	return traj, nil
}

// Markers returns the marker labels in path order.
func (p Path) Markers() []string {
	marked := lo.Filter(p.Waypoints, func(wp trajectory.Waypoint, _ int) bool { return wp.HasMarker() })
	return lo.Map(marked, func(wp trajectory.Waypoint, _ int) string { return wp.Marker })
}

var registry = map[string]func() Path{}

func register(name string, build func() Path) {
	if _, ok := registry[name]; ok {
		panic(errors.Errorf("path %q registered twice", name))
	}
	registry[name] = build
}

// Names returns the registered path names, sorted.
func Names() []string {
	names := lo.Keys(registry)
	sort.Strings(names)
	return names
}

// Lookup returns a fresh copy of the named path.
func Lookup(name string) (Path, error) {
	build, ok := registry[name]
	if !ok {
		return Path{}, errors.Errorf("unknown path %q, have %v", name, Names())
	}
	return build(), nil
}
