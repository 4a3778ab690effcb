// Package pointcloud provides the point-set operations shared by the scanning components.
//
// Point sets are plain slices of r3.Vector in meters, ordered as the sensor produced them.
// Optional per-point attributes (confidence, normals) travel in parallel slices of the same
// length.
package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
)

// NewVector convenience method for creating a vector.
func NewVector(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}
}

// Centroid returns the mean position of the points. The second return is false for an empty set.
func Centroid(points []r3.Vector) (r3.Vector, bool) {
	if len(points) == 0 {
		return r3.Vector{}, false
	}
	var sum r3.Vector
	for _, p := range points {
		sum = sum.Add(p)
	}
	return sum.Mul(1 / float64(len(points))), true
}

// IsFinite reports whether every component of p is finite.
func IsFinite(p r3.Vector) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsNaN(p.Z) &&
		!math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0) && !math.IsInf(p.Z, 0)
}
