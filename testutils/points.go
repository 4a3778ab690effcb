// Package testutils builds synthetic point sets and frames for tests.
package testutils

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r3"
)

// BoxCorners returns the eight corners of the axis-aligned box at min with the given size.
func BoxCorners(min, size r3.Vector) []r3.Vector {
	corners := make([]r3.Vector, 0, 8)
	for _, dx := range []float64{0, size.X} {
		for _, dy := range []float64{0, size.Y} {
			for _, dz := range []float64{0, size.Z} {
				corners = append(corners, r3.Vector{X: min.X + dx, Y: min.Y + dy, Z: min.Z + dz})
			}
		}
	}
	return corners
}

// SolidBoxPoints returns the box corners followed by n points uniformly inside the box, so the
// bounds of the result are exactly the box.
func SolidBoxPoints(r *rand.Rand, min, size r3.Vector, n int) []r3.Vector {
	points := BoxCorners(min, size)
	for i := 0; i < n; i++ {
		points = append(points, r3.Vector{
			X: min.X + r.Float64()*size.X,
			Y: min.Y + r.Float64()*size.Y,
			Z: min.Z + r.Float64()*size.Z,
		})
	}
	return points
}

// BoxSurfacePoints returns the box corners followed by n points on the box's faces.
func BoxSurfacePoints(r *rand.Rand, min, size r3.Vector, n int) []r3.Vector {
	points := BoxCorners(min, size)
	for i := 0; i < n; i++ {
		p := r3.Vector{X: r.Float64() * size.X, Y: r.Float64() * size.Y, Z: r.Float64() * size.Z}
		switch r.Intn(6) {
		case 0:
			p.X = 0
		case 1:
			p.X = size.X
		case 2:
			p.Y = 0
		case 3:
			p.Y = size.Y
		case 4:
			p.Z = 0
		default:
			p.Z = size.Z
		}
		points = append(points, min.Add(p))
	}
	return points
}

// HeapPoints samples n points on the surface of a cone-shaped pile resting on the ground plane
// y = center.Y, with its apex height above center.
func HeapPoints(r *rand.Rand, center r3.Vector, radius, height float64, n int) []r3.Vector {
	points := make([]r3.Vector, 0, n)
	for i := 0; i < n; i++ {
		rho := radius * math.Sqrt(r.Float64())
		theta := 2 * math.Pi * r.Float64()
		points = append(points, r3.Vector{
			X: center.X + rho*math.Cos(theta),
			Y: center.Y + height*(1-rho/radius),
			Z: center.Z + rho*math.Sin(theta),
		})
	}
	return points
}

// GridPlatform returns a flat slab of points on an nx by nz grid at height y, with spacing step.
func GridPlatform(origin r3.Vector, nx, nz int, step, y float64) []r3.Vector {
	points := make([]r3.Vector, 0, nx*nz)
	for i := 0; i < nx; i++ {
		for k := 0; k < nz; k++ {
			points = append(points, r3.Vector{X: origin.X + float64(i)*step, Y: y, Z: origin.Z + float64(k)*step})
		}
	}
	return points
}

// Confidences returns n copies of c.
func Confidences(n int, c float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = c
	}
	return out
}

// UpNormals returns n +Y normals.
func UpNormals(n int) []r3.Vector {
	out := make([]r3.Vector, n)
	for i := range out {
		out[i] = r3.Vector{Y: 1}
	}
	return out
}

// Shuffled returns a shuffled copy of points.
func Shuffled(r *rand.Rand, points []r3.Vector) []r3.Vector {
	out := append([]r3.Vector(nil), points...)
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
