package volume

import (
	"math"

	"github.com/golang/geo/r3"

	"go.viam.com/volumescan/pointcloud"
	"go.viam.com/volumescan/utils"
)

// heightGrid is a square grid of column heights over the X-Z plane. A NaN cell is empty.
type heightGrid struct {
	size    int
	heights []float64
}

func newHeightGrid(size int) *heightGrid {
	heights := make([]float64, size*size)
	for i := range heights {
		heights[i] = math.NaN()
	}
	return &heightGrid{size: size, heights: heights}
}

func (g *heightGrid) at(i, k int) float64 {
	return g.heights[k*g.size+i]
}

func (g *heightGrid) raise(i, k int, h float64) {
	idx := k*g.size + i
	if cur := g.heights[idx]; math.IsNaN(cur) || h > cur {
		g.heights[idx] = h
	}
}

// fill returns a copy where each empty cell takes the mean of its populated 3x3 neighbors in g.
func (g *heightGrid) fill() *heightGrid {
	out := &heightGrid{size: g.size, heights: append([]float64(nil), g.heights...)}
	for k := 0; k < g.size; k++ {
		for i := 0; i < g.size; i++ {
			if !math.IsNaN(g.at(i, k)) {
				continue
			}
			var sum float64
			var n int
			for dk := -1; dk <= 1; dk++ {
				for di := -1; di <= 1; di++ {
					ni, nk := i+di, k+dk
					if ni < 0 || nk < 0 || ni >= g.size || nk >= g.size {
						continue
					}
					if h := g.at(ni, nk); !math.IsNaN(h) {
						sum += h
						n++
					}
				}
			}
			if n > 0 {
				out.heights[k*g.size+i] = sum / float64(n)
			}
		}
	}
	return out
}

// sum returns the total of populated heights and how many cells are populated.
func (g *heightGrid) sum() (float64, int) {
	var total float64
	var n int
	for _, h := range g.heights {
		if !math.IsNaN(h) {
			total += h
			n++
		}
	}
	return total, n
}

func cellIndex(v, min, cell float64, size int) int {
	idx := int((v - min) / cell)
	if idx < 0 {
		return 0
	}
	if idx >= size {
		return size - 1
	}
	return idx
}

// HeightMap projects the points onto a grid over the X-Z plane and sums column heights above the
// ground. groundHeight is the plane's Y; when nil the lowest point is the ground.
func (e *Estimator) HeightMap(points []r3.Vector, groundHeight *float64) (Estimate, error) {
	finite := make([]r3.Vector, 0, len(points))
	for _, p := range points {
		if pointcloud.IsFinite(p) {
			finite = append(finite, p)
		}
	}
	if len(finite) < e.cfg.MinPoints {
		return Estimate{}, ErrInsufficientPoints
	}
	box, _ := pointcloud.Bounds(finite)
	ext := box.Extents()
	if ext.X < e.cfg.MinHorizontalExtent || ext.Z < e.cfg.MinHorizontalExtent {
		return Estimate{}, ErrDegenerateExtent
	}

	ground := box.Min.Y
	if groundHeight != nil && utils.IsFinite(*groundHeight) {
		ground = *groundHeight
	}

	size := e.cfg.GridSize
	cellX := ext.X / float64(size)
	cellZ := ext.Z / float64(size)
	grid := newHeightGrid(size)
	var maxHeight float64
	for _, p := range finite {
		h := math.Max(0, p.Y-ground)
		maxHeight = math.Max(maxHeight, h)
		grid.raise(cellIndex(p.X, box.Min.X, cellX, size), cellIndex(p.Z, box.Min.Z, cellZ, size), h)
	}
	if maxHeight <= 0 {
		return Estimate{}, ErrDegenerateExtent
	}

	cellArea := cellX * cellZ
	sparseSum, occupied := grid.sum()
	filled := grid.fill()
	filledSum, filledCells := filled.sum()
	volumeM3 := filledSum * cellArea

	confidence := utils.Clamp(float64(filledCells)/(float64(size*size)/4), 0.8, 1)
	e.logger.Debugw("height map",
		"occupied", occupied,
		"filled", filledCells,
		"sparse_volume_m3", sparseSum*cellArea,
		"volume_m3", volumeM3)

	return newEstimate(r3.Vector{X: ext.X, Y: maxHeight, Z: ext.Z}, volumeM3, MethodHeightMap, confidence, len(finite)), nil
}
