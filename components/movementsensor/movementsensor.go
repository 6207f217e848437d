// Package movementsensor defines the port the drive reads its heading from.
package movementsensor

import (
	"context"

	"github.com/golang/geo/r3"
)

// HeadingSensor is a gyro that reports a fused yaw heading. Headings are in degrees,
// counter-clockwise positive, and are not wrapped.
type HeadingSensor interface {
	// FusedHeading returns the current heading in degrees.
	FusedHeading(ctx context.Context) (float64, error)

	// SetFusedHeading redefines the current heading as degrees.
	SetFusedHeading(ctx context.Context, degrees float64) error

	// Acceleration returns the biased accelerometer reading in the sensor frame, in g.
	Acceleration(ctx context.Context) (r3.Vector, error)
}
