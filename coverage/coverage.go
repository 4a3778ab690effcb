// Package coverage measures how evenly a region has been sampled and points the operator at the
// parts that need another pass.
package coverage

import (
	"math"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"go.viam.com/volumescan/logging"
	"go.viam.com/volumescan/pointcloud"
)

// ErrEmptyBounds is returned when the analysis bounds enclose no volume.
var ErrEmptyBounds = errors.New("coverage bounds have zero volume")

// Config tunes the coverage grid.
type Config struct {
	// Resolution is the number of cells along each axis.
	Resolution           int
	MinPointsPerCell     int
	OptimalPointsPerCell int
	// ClusterDistance is the greedy clustering radius in meters.
	ClusterDistance float64
	// DeadZone is the offset in meters below which a direction component is dropped.
	DeadZone float64
}

// DefaultConfig returns the standard grid configuration.
func DefaultConfig() Config {
	return Config{
		Resolution:           10,
		MinPointsPerCell:     20,
		OptimalPointsPerCell: 100,
		ClusterDistance:      0.10,
		DeadZone:             0.05,
	}
}

// Cell is one non-empty grid cell.
type Cell struct {
	I, J, K      int
	Center       r3.Vector
	Count        int
	Density      float64 // points per m³
	UnderScanned bool
	WellScanned  bool
}

// Region is a cluster of under-scanned cells.
type Region struct {
	Centroid  r3.Vector `json:"centroid"`
	Cells     int       `json:"cells"`
	Direction string    `json:"direction"`
}

// Report is the result of one analysis. The grid is rebuilt from scratch on every call.
type Report struct {
	Coverage          float64  `json:"coverage"`
	NonEmptyCells     int      `json:"non_empty_cells"`
	WellScannedCells  int      `json:"well_scanned_cells"`
	UnderScannedCells int      `json:"under_scanned_cells"`
	CountP50          float64  `json:"count_p50"`
	CountP90          float64  `json:"count_p90"`
	Regions           []Region `json:"regions"`
	Cells             []Cell   `json:"-"`
}

// Analyzer builds coverage grids. It holds no state between calls.
type Analyzer struct {
	cfg    Config
	logger logging.Logger
}

// NewAnalyzer returns an Analyzer.
func NewAnalyzer(cfg Config, logger logging.Logger) *Analyzer {
	if cfg.Resolution < 1 {
		cfg.Resolution = DefaultConfig().Resolution
	}
	return &Analyzer{cfg: cfg, logger: logger}
}

// Analyze grids the points that fall inside bounds and clusters the under-scanned cells. Region
// directions are relative to camera.
func (a *Analyzer) Analyze(points []r3.Vector, bounds pointcloud.BoundingBox, camera r3.Vector) (Report, error) {
	ext := bounds.Extents()
	if !(ext.X > 0 && ext.Y > 0 && ext.Z > 0) || !pointcloud.IsFinite(ext) {
		return Report{}, ErrEmptyBounds
	}

	res := a.cfg.Resolution
	counts := make([]int, res*res*res)
	for _, p := range points {
		if !pointcloud.IsFinite(p) || !bounds.Contains(p) {
			continue
		}
		i := cellIndex(p.X, bounds.Min.X, ext.X, res)
		j := cellIndex(p.Y, bounds.Min.Y, ext.Y, res)
		k := cellIndex(p.Z, bounds.Min.Z, ext.Z, res)
		counts[(k*res+j)*res+i]++
	}

	cellSize := r3.Vector{X: ext.X / float64(res), Y: ext.Y / float64(res), Z: ext.Z / float64(res)}
	cellVolume := cellSize.X * cellSize.Y * cellSize.Z

	var report Report
	var under []Cell
	nonEmptyCounts := make(stats.Float64Data, 0, len(counts))
	for k := 0; k < res; k++ {
		for j := 0; j < res; j++ {
			for i := 0; i < res; i++ {
				count := counts[(k*res+j)*res+i]
				if count == 0 {
					continue
				}
				cell := Cell{
					I: i, J: j, K: k,
					Center: r3.Vector{
						X: bounds.Min.X + (float64(i)+0.5)*cellSize.X,
						Y: bounds.Min.Y + (float64(j)+0.5)*cellSize.Y,
						Z: bounds.Min.Z + (float64(k)+0.5)*cellSize.Z,
					},
					Count:        count,
					Density:      float64(count) / cellVolume,
					UnderScanned: count < a.cfg.MinPointsPerCell,
					WellScanned:  count >= a.cfg.OptimalPointsPerCell,
				}
				report.Cells = append(report.Cells, cell)
				nonEmptyCounts = append(nonEmptyCounts, float64(count))
				report.NonEmptyCells++
				if cell.WellScanned {
					report.WellScannedCells++
				}
				if cell.UnderScanned {
					report.UnderScannedCells++
					under = append(under, cell)
				}
			}
		}
	}

	if report.NonEmptyCells > 0 {
		report.Coverage = float64(report.WellScannedCells) / float64(report.NonEmptyCells)
		var err error
		if report.CountP50, err = nonEmptyCounts.Percentile(50); err != nil {
			return Report{}, errors.Wrap(err, "cell count percentile")
		}
		if report.CountP90, err = nonEmptyCounts.Percentile(90); err != nil {
			return Report{}, errors.Wrap(err, "cell count percentile")
		}
	}

	for _, cluster := range cluster(under, a.cfg.ClusterDistance) {
		centroid, _ := pointcloud.Centroid(cluster)
		report.Regions = append(report.Regions, Region{
			Centroid:  centroid,
			Cells:     len(cluster),
			Direction: DirectionHint(camera, centroid, a.cfg.DeadZone),
		})
	}

	a.logger.Debugw("coverage",
		"coverage", report.Coverage,
		"non_empty", report.NonEmptyCells,
		"under_scanned", report.UnderScannedCells,
		"regions", len(report.Regions))
	return report, nil
}

func cellIndex(v, min, extent float64, res int) int {
	idx := int((v - min) / extent * float64(res))
	if idx < 0 {
		return 0
	}
	if idx >= res {
		return res - 1
	}
	return idx
}

// cluster groups cells greedily: each unassigned cell seeds a cluster that takes every other
// unassigned cell within radius of the seed.
func cluster(cells []Cell, radius float64) [][]r3.Vector {
	assigned := make([]bool, len(cells))
	var clusters [][]r3.Vector
	for i, seed := range cells {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		members := []r3.Vector{seed.Center}
		for j := i + 1; j < len(cells); j++ {
			if assigned[j] {
				continue
			}
			if cells[j].Center.Sub(seed.Center).Norm() <= radius {
				assigned[j] = true
				members = append(members, cells[j].Center)
			}
		}
		clusters = append(clusters, members)
	}
	return clusters
}

// DirectionHint describes where target lies from the camera, e.g. "up-left-front". Components
// within deadZone are dropped; -Z is front. It is "center" when every component is dropped.
func DirectionHint(camera, target r3.Vector, deadZone float64) string {
	d := target.Sub(camera)
	var parts []string
	switch {
	case d.Y > deadZone:
		parts = append(parts, "up")
	case d.Y < -deadZone:
		parts = append(parts, "down")
	}
	switch {
	case d.X > deadZone:
		parts = append(parts, "right")
	case d.X < -deadZone:
		parts = append(parts, "left")
	}
	switch {
	case d.Z < -deadZone:
		parts = append(parts, "front")
	case d.Z > deadZone:
		parts = append(parts, "back")
	}
	if len(parts) == 0 || math.IsNaN(d.X+d.Y+d.Z) {
		return "center"
	}
	return strings.Join(parts, "-")
}
