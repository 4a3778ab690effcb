package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
)

// BoundingBox is an axis-aligned box in meters.
type BoundingBox struct {
	Min r3.Vector `json:"min"`
	Max r3.Vector `json:"max"`
}

// NewBoundingBox returns a box spanning the two corners in any order.
func NewBoundingBox(a, b r3.Vector) BoundingBox {
	return BoundingBox{
		Min: r3.Vector{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y), Z: math.Min(a.Z, b.Z)},
		Max: r3.Vector{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y), Z: math.Max(a.Z, b.Z)},
	}
}

// Bounds returns the axis-aligned bounding box of the finite points. The second return is false
// when no finite point exists.
func Bounds(points []r3.Vector) (BoundingBox, bool) {
	box := BoundingBox{
		Min: r3.Vector{X: math.MaxFloat64, Y: math.MaxFloat64, Z: math.MaxFloat64},
		Max: r3.Vector{X: -math.MaxFloat64, Y: -math.MaxFloat64, Z: -math.MaxFloat64},
	}
	found := false
	for _, p := range points {
		if !IsFinite(p) {
			continue
		}
		found = true
		box.Min.X = math.Min(box.Min.X, p.X)
		box.Min.Y = math.Min(box.Min.Y, p.Y)
		box.Min.Z = math.Min(box.Min.Z, p.Z)
		box.Max.X = math.Max(box.Max.X, p.X)
		box.Max.Y = math.Max(box.Max.Y, p.Y)
		box.Max.Z = math.Max(box.Max.Z, p.Z)
	}
	if !found {
		return BoundingBox{}, false
	}
	return box, true
}

// Extents returns the side lengths of the box along X, Y and Z.
func (b BoundingBox) Extents() r3.Vector {
	return b.Max.Sub(b.Min)
}

// Volume returns the box volume in cubic meters.
func (b BoundingBox) Volume() float64 {
	e := b.Extents()
	return e.X * e.Y * e.Z
}

// SurfaceArea returns the box surface area in square meters.
func (b BoundingBox) SurfaceArea() float64 {
	e := b.Extents()
	return 2 * (e.X*e.Y + e.Y*e.Z + e.X*e.Z)
}

// Center returns the center of the box.
func (b BoundingBox) Center() r3.Vector {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Contains reports whether p lies inside the box, boundary included.
func (b BoundingBox) Contains(p r3.Vector) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Expand returns the box grown by margin on every side.
func (b BoundingBox) Expand(margin float64) BoundingBox {
	m := r3.Vector{X: margin, Y: margin, Z: margin}
	return BoundingBox{Min: b.Min.Sub(m), Max: b.Max.Add(m)}
}

// IndicesInside returns the indices of the points inside the box.
func IndicesInside(points []r3.Vector, box BoundingBox) []int {
	indices := make([]int, 0, len(points))
	for i, p := range points {
		if box.Contains(p) {
			indices = append(indices, i)
		}
	}
	return indices
}
