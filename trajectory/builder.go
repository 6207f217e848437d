package trajectory

import (
	"math"

	"github.com/pkg/errors"

	"github.com/bhr3310/motioncore/logging"
	"github.com/bhr3310/motioncore/spatialmath"
	"github.com/bhr3310/motioncore/utils"
)

// corners turning less than this are treated as straight.
const minCornerAngle = 1e-6

// Constraints bound the velocity profile. Units are inches and seconds.
type Constraints struct {
	MaxVelocity     float64
	MaxAcceleration float64
	// MaxDeceleration defaults to MaxAcceleration when zero.
	MaxDeceleration float64
	// MaxCentripetalAcceleration limits speed on curves to sqrt(a/|k|). Zero disables the limit.
	MaxCentripetalAcceleration float64
	// SampleStep is the arc length between generated states.
	SampleStep float64
}

func (c Constraints) validate() error {
	if !(c.MaxVelocity > 0) {
		return errors.Errorf("max velocity must be positive, got %v", c.MaxVelocity)
	}
	if !(c.MaxAcceleration > 0) {
		return errors.Errorf("max acceleration must be positive, got %v", c.MaxAcceleration)
	}
	if c.MaxDeceleration < 0 || c.MaxCentripetalAcceleration < 0 {
		return errors.New("deceleration and centripetal limits cannot be negative")
	}
	if !(c.SampleStep > 0) {
		return errors.Errorf("sample step must be positive, got %v", c.SampleStep)
	}
	return nil
}

// Builder fits paths through waypoints and times them under a set of constraints.
type Builder struct {
	constraints Constraints
	logger      logging.Logger
}

// NewBuilder returns a Builder after checking the constraints.
func NewBuilder(constraints Constraints, logger logging.Logger) (*Builder, error) {
	if err := constraints.validate(); err != nil {
		return nil, err
	}
	if constraints.MaxDeceleration == 0 {
		constraints.MaxDeceleration = constraints.MaxAcceleration
	}
	return &Builder{constraints: constraints, logger: logger}, nil
}

// Constraints returns the limits the builder profiles against.
func (b *Builder) Constraints() Constraints {
	return b.constraints
}

// primitive is a constant-curvature piece of the geometric path. Lines have zero curvature.
type primitive struct {
	start     spatialmath.Pose2d
	length    float64
	curvature float64
	speed     float64
	// stopAtEnd marks a sharp corner where the heading jumps.
	stopAtEnd bool
}

func (p primitive) poseAt(s float64) spatialmath.Pose2d {
	return p.start.TransformBy(spatialmath.Exp(spatialmath.Twist2d{Dx: s, Dtheta: p.curvature * s}))
}

// sample is a state under construction with its speed cap.
type sample struct {
	PathState
	limit float64
}

// Build produces the trajectory through waypoints. When reversed is true the robot backs along
// the path: positions are unchanged, headings are flipped and curvature is negated.
func (b *Builder) Build(waypoints []Waypoint, reversed bool) (*Trajectory, error) {
	if err := validateWaypoints(waypoints); err != nil {
		return nil, errors.Wrap(err, "invalid waypoints")
	}

	prims, cornerDistances := fitPrimitives(waypoints)
	samples := b.samplePrimitives(prims)
	if len(samples) < 2 {
		return nil, errors.New("path is too short to sample")
	}

	velocities := b.profile(samples)
	states, err := timeStates(samples, velocities)
	if err != nil {
		return nil, err
	}

	if reversed {
		for i := range states {
			states[i].Pose.Rotation = states[i].Pose.Rotation.Flip()
			states[i].Curvature = -states[i].Curvature
		}
	}

	length := states[len(states)-1].Distance
	var markers []Marker
	for i, wp := range waypoints {
		if !wp.HasMarker() {
			continue
		}
		markers = append(markers, Marker{
			Fraction: cornerDistances[i] / length,
			Distance: cornerDistances[i],
			Label:    wp.Marker,
		})
	}

	traj := newTrajectory(states, reversed, markers)
	if b.logger != nil {
		b.logger.Debugw("built trajectory",
			"id", traj.ID().String(),
			"states", len(states),
			"length", length,
			"duration", traj.Duration(),
			"reversed", reversed)
	}
	return traj, nil
}

// fitPrimitives lays straight lines between waypoints and rounds interior corners with arcs.
// Arc radii shrink when the requested radius does not fit between neighbouring corners. It also
// returns the arc length at which the path passes each waypoint.
func fitPrimitives(waypoints []Waypoint) ([]primitive, []float64) {
	n := len(waypoints)
	dirs := make([]spatialmath.Rotation2d, n-1)
	lens := make([]float64, n-1)
	for i := 0; i < n-1; i++ {
		delta := waypoints[i+1].Position.Sub(waypoints[i].Position)
		dirs[i] = spatialmath.RotationOf(delta)
		lens[i] = delta.Norm()
	}

	// trimStart[k] and trimEnd[k] are the lengths of segment k given to the corners at its ends.
	trimStart := make([]float64, n-1)
	trimEnd := make([]float64, n-1)
	turn := make([]float64, n)
	radius := make([]float64, n)
	sharp := make([]bool, n)
	for i := 1; i < n-1; i++ {
		turn[i] = dirs[i-1].Inverse().RotateBy(dirs[i]).Radians()
		if math.Abs(turn[i]) < minCornerAngle {
			continue
		}
		if waypoints[i].Radius == 0 {
			sharp[i] = true
			continue
		}
		halfTan := math.Tan(math.Abs(turn[i]) / 2)
		tangent := waypoints[i].Radius * halfTan
		availIn := lens[i-1] - trimStart[i-1]
		availOut := lens[i]
		if i+1 < n-1 && waypoints[i+1].Radius > 0 {
			availOut /= 2
		}
		tangent = math.Min(tangent, math.Min(availIn, availOut))
		if tangent < utils.Epsilon {
			sharp[i] = true
			continue
		}
		trimEnd[i-1] = tangent
		trimStart[i] = tangent
		radius[i] = tangent / halfTan
	}

	corners := make([]float64, n)
	var prims []primitive
	distance := 0.0
	for k := 0; k < n-1; k++ {
		lineStart := waypoints[k].Position.Add(dirs[k].Rotate(spatialmath.NewTranslation2d(trimStart[k], 0)))
		line := primitive{
			start:     spatialmath.Pose2d{Translation: lineStart, Rotation: dirs[k]},
			length:    lens[k] - trimStart[k] - trimEnd[k],
			speed:     waypoints[k+1].Speed,
			stopAtEnd: sharp[k+1],
		}
		prims = append(prims, line)
		distance += line.length
		corners[k+1] = distance

		c := k + 1
		if c >= n-1 || radius[c] == 0 {
			continue
		}
		arc := primitive{
			start:     line.poseAt(line.length),
			length:    radius[c] * math.Abs(turn[c]),
			curvature: math.Copysign(1/radius[c], turn[c]),
			speed:     blendSpeed(waypoints[c].Speed, waypoints[c+1].Speed),
		}
		prims = append(prims, arc)
		corners[c] = distance + arc.length/2
		distance += arc.length
	}
	corners[n-1] = distance
	return prims, corners
}

// blendSpeed averages two segment caps, treating zero as uncapped.
func blendSpeed(a, b float64) float64 {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	default:
		return (a + b) / 2
	}
}

func (b *Builder) samplePrimitives(prims []primitive) []sample {
	var samples []sample
	base := 0.0
	for _, p := range prims {
		if p.length < utils.Epsilon {
			if p.stopAtEnd && len(samples) > 0 {
				samples[len(samples)-1].limit = 0
			}
			continue
		}
		limit := b.limitFor(p)
		if len(samples) == 0 {
			samples = append(samples, sample{
				PathState: PathState{Pose: p.start, Curvature: p.curvature},
				limit:     limit,
			})
		} else {
			last := &samples[len(samples)-1]
			last.limit = math.Min(last.limit, limit)
		}
		count := int(math.Ceil(p.length / b.constraints.SampleStep))
		for k := 1; k <= count; k++ {
			s := p.length * float64(k) / float64(count)
			samples = append(samples, sample{
				PathState: PathState{
					Pose:      p.poseAt(s),
					Curvature: p.curvature,
					Distance:  base + s,
				},
				limit: limit,
			})
		}
		if p.stopAtEnd {
			samples[len(samples)-1].limit = 0
		}
		base += p.length
	}
	return samples
}

func (b *Builder) limitFor(p primitive) float64 {
	limit := b.constraints.MaxVelocity
	if p.speed > 0 {
		limit = math.Min(limit, p.speed)
	}
	if b.constraints.MaxCentripetalAcceleration > 0 && p.curvature != 0 {
		limit = math.Min(limit, math.Sqrt(b.constraints.MaxCentripetalAcceleration/math.Abs(p.curvature)))
	}
	return limit
}

// profile runs the forward (acceleration) and backward (deceleration) passes over the caps.
func (b *Builder) profile(samples []sample) []float64 {
	v := make([]float64, len(samples))
	last := len(samples) - 1
	for i := 1; i <= last; i++ {
		ds := samples[i].Distance - samples[i-1].Distance
		reachable := math.Sqrt(v[i-1]*v[i-1] + 2*b.constraints.MaxAcceleration*ds)
		v[i] = math.Min(samples[i].limit, reachable)
	}
	v[last] = 0
	for i := last - 1; i >= 0; i-- {
		ds := samples[i+1].Distance - samples[i].Distance
		reachable := math.Sqrt(v[i+1]*v[i+1] + 2*b.constraints.MaxDeceleration*ds)
		v[i] = math.Min(v[i], reachable)
	}
	v[0] = 0
	return v
}

func timeStates(samples []sample, velocities []float64) ([]TimedState, error) {
	states := make([]TimedState, len(samples))
	t := 0.0
	for i := range samples {
		states[i] = TimedState{PathState: samples[i].PathState, Time: t, Velocity: velocities[i]}
		if i == len(samples)-1 {
			break
		}
		ds := samples[i+1].Distance - samples[i].Distance
		vSum := velocities[i] + velocities[i+1]
		if vSum < utils.Epsilon {
			return nil, errors.Errorf("velocity profile stalls between distance %.3f and %.3f", samples[i].Distance, samples[i+1].Distance)
		}
		states[i].Acceleration = (velocities[i+1]*velocities[i+1] - velocities[i]*velocities[i]) / (2 * ds)
		t += 2 * ds / vSum
	}
	return states, nil
}
