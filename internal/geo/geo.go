package geo

import (
	"math"

	geom "github.com/peterstace/simplefeatures/geom"
)

// BOARD POINTS
// Throw positions arrive as polar coordinates on a standard board: radius in
// millimetres from the bullseye and angle in degrees with 0 pointing up. The
// surface is a raster with the origin top-left and Y growing downwards.

// ReferenceRadius is the canonical board radius (mm) that maps onto half of the
// shorter surface side.
const ReferenceRadius = 225.0

// ToSurfacePoint converts a board position into surface pixel coordinates for a
// surface of the given size. Non-finite input yields a non-finite point; use
// ValidPosition before calling.
func ToSurfacePoint(radius, angle, width, height float64) geom.XY {
	scale := math.Min(width, height) / 2 / ReferenceRadius
	theta := (angle - 90) * math.Pi / 180

	return geom.XY{
		X: width/2 + radius*scale*math.Cos(theta),
		Y: height/2 + radius*scale*math.Sin(theta),
	}
}

// ValidPosition reports whether radius and angle are usable numbers.
func ValidPosition(radius, angle float64) bool {
	return isFinite(radius) && isFinite(angle)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
