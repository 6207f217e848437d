// Package fake implements a simulated gyro.
package fake

import (
	"context"
	"sync"

	"github.com/golang/geo/r3"

	"github.com/bhr3310/motioncore/components/movementsensor"
	"github.com/bhr3310/motioncore/spatialmath"
)

// standard gravity in inches/s²
const gravityIPS2 = 386.09

var _ movementsensor.HeadingSensor = &Gyro{}

// Source supplies the ground truth the gyro measures.
type Source interface {
	TrueHeading() spatialmath.Rotation2d
	LinearAcceleration() float64
}

// Gyro reports the heading of a Source, offset so that SetFusedHeading behaves like the
// hardware. The reported heading is continuous: it accumulates whole turns instead of wrapping.
type Gyro struct {
	source Source

	mu      sync.Mutex
	offset  float64
	heading float64
	last    spatialmath.Rotation2d
	primed  bool
	drift   float64
	err     error
}

// NewGyro returns a gyro measuring source.
func NewGyro(source Source) *Gyro {
	return &Gyro{source: source}
}

func (g *Gyro) unwrapped() float64 {
	now := g.source.TrueHeading()
	if !g.primed {
		g.heading = now.Degrees()
		g.primed = true
	} else {
		g.heading += g.last.Inverse().RotateBy(now).Degrees()
	}
	g.last = now
	return g.heading
}

// FusedHeading implements movementsensor.HeadingSensor.
func (g *Gyro) FusedHeading(ctx context.Context) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	heading := g.unwrapped()
	if g.err != nil {
		return 0, g.err
	}
	return heading + g.offset + g.drift, nil
}

// SetFusedHeading implements movementsensor.HeadingSensor.
func (g *Gyro) SetFusedHeading(ctx context.Context, degrees float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.offset = degrees - g.unwrapped() - g.drift
	return g.err
}

// Acceleration implements movementsensor.HeadingSensor. Only the forward axis and gravity are
// simulated.
func (g *Gyro) Acceleration(ctx context.Context) (r3.Vector, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return r3.Vector{}, g.err
	}
	return r3.Vector{X: g.source.LinearAcceleration() / gravityIPS2, Z: 1}, nil
}

// SetDrift adds a constant bias in degrees to every reading.
func (g *Gyro) SetDrift(degrees float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.drift = degrees
}

// InjectError makes every call fail with err until cleared with nil.
func (g *Gyro) InjectError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}
