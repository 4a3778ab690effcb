// Package volume estimates the volume of a scanned object from its point set.
//
// Points are meters with +Y up. Four methods are available: an axis-aligned bounding box, a
// height map over the X-Z ground plane, and two approximations (hull and mesh) that are a
// bounding box scaled by a fixed empirical shrink factor rather than true reconstructions.
package volume

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/volumescan/logging"
	"go.viam.com/volumescan/material"
	"go.viam.com/volumescan/pointcloud"
	"go.viam.com/volumescan/utils"
)

var (
	// ErrInsufficientPoints means there are too few finite points for the method. Keep collecting.
	ErrInsufficientPoints = errors.New("not enough points to estimate volume")
	// ErrDegenerateExtent means the points span zero (or non-finite) size along a required axis.
	ErrDegenerateExtent = errors.New("point set has a degenerate extent")
)

// Method names an estimation method.
type Method string

// Estimation methods.
const (
	MethodBoundingBox Method = "bounding_box"
	MethodHeightMap   Method = "height_map"
	MethodHullApprox  Method = "hull_approx"
	MethodMeshApprox  Method = "mesh_approx"
)

const cubicMetersToCM3 = 1e6

// Estimate is the result of one estimation.
type Estimate struct {
	// Extents are the object's size along X, Y and Z in meters.
	Extents    r3.Vector `json:"extents"`
	VolumeM3   float64   `json:"volume_m3"`
	VolumeCM3  float64   `json:"volume_cm3"`
	Method     Method    `json:"method"`
	Confidence float64   `json:"confidence"`
	PointCount int       `json:"point_count"`
}

// Scaled applies a linear calibration factor: extents scale by factor and volume by its cube.
func (e Estimate) Scaled(factor float64) Estimate {
	if !utils.IsFinite(factor) || factor <= 0 {
		return e
	}
	cube := factor * factor * factor
	e.Extents = e.Extents.Mul(factor)
	e.VolumeM3 *= cube
	e.VolumeCM3 *= cube
	return e
}

func newEstimate(extents r3.Vector, volumeM3 float64, method Method, confidence float64, n int) Estimate {
	return Estimate{
		Extents:    extents,
		VolumeM3:   volumeM3,
		VolumeCM3:  volumeM3 * cubicMetersToCM3,
		Method:     method,
		Confidence: confidence,
		PointCount: n,
	}
}

// Config tunes the estimator.
type Config struct {
	MinPoints int
	// GridSize is the number of height-map cells along each horizontal axis.
	GridSize int
	// HullShrinkFactor scales the bounding box for the hull and mesh approximations.
	HullShrinkFactor float64
	// MinHorizontalExtent is the smallest X or Z span in meters a height map accepts.
	MinHorizontalExtent float64
}

// DefaultConfig returns the standard estimator configuration.
func DefaultConfig() Config {
	return Config{
		MinPoints:           4,
		GridSize:            50,
		HullShrinkFactor:    0.6,
		MinHorizontalExtent: 0.001,
	}
}

// Fixed confidences per method.
const (
	BoundingBoxConfidence = 0.7
	HullConfidence        = 0.75
)

// Input is everything method selection and estimation look at.
type Input struct {
	Points   []r3.Vector
	Normals  []r3.Vector
	Category material.Category
	// GroundHeight is the detected ground plane's Y, or nil when no plane was detected.
	GroundHeight *float64
}

// SelectMethod picks the estimation method for a material category, point count and ground
// plane availability.
func SelectMethod(category material.Category, pointCount int, hasPlane bool) Method {
	switch {
	case category.PowderLike() && hasPlane:
		if pointCount >= 200 {
			return MethodHeightMap
		}
		return MethodBoundingBox
	case category.SolidLike() && pointCount >= 500:
		return MethodMeshApprox
	case category.SolidLike() && pointCount >= 300:
		return MethodHullApprox
	default:
		return MethodBoundingBox
	}
}

// Estimator computes volume estimates. It holds no state between calls.
type Estimator struct {
	cfg    Config
	logger logging.Logger
}

// NewEstimator returns an Estimator.
func NewEstimator(cfg Config, logger logging.Logger) *Estimator {
	if cfg.MinPoints < 4 {
		cfg.MinPoints = 4
	}
	if cfg.GridSize < 1 {
		cfg.GridSize = DefaultConfig().GridSize
	}
	return &Estimator{cfg: cfg, logger: logger}
}

// Estimate selects a method for the input and runs it.
func (e *Estimator) Estimate(in Input) (Estimate, error) {
	method := SelectMethod(in.Category, len(in.Points), in.GroundHeight != nil)
	e.logger.Debugw("estimating volume", "method", method, "points", len(in.Points), "category", in.Category)
	return e.EstimateWith(method, in)
}

// EstimateWith runs a specific method.
func (e *Estimator) EstimateWith(method Method, in Input) (Estimate, error) {
	switch method {
	case MethodHeightMap:
		return e.HeightMap(in.Points, in.GroundHeight)
	case MethodHullApprox:
		return e.HullApprox(in.Points)
	case MethodMeshApprox:
		return e.MeshApprox(in.Points, in.Normals)
	case MethodBoundingBox:
		return e.BoundingBox(in.Points)
	default:
		return Estimate{}, errors.Errorf("unknown volume method %q", method)
	}
}

func (e *Estimator) bounds(points []r3.Vector) (pointcloud.BoundingBox, int, error) {
	n := 0
	for _, p := range points {
		if pointcloud.IsFinite(p) {
			n++
		}
	}
	if n < e.cfg.MinPoints {
		return pointcloud.BoundingBox{}, n, ErrInsufficientPoints
	}
	box, _ := pointcloud.Bounds(points)
	ext := box.Extents()
	if !(ext.X > 0 && ext.Y > 0 && ext.Z > 0) || !pointcloud.IsFinite(ext) {
		return pointcloud.BoundingBox{}, n, ErrDegenerateExtent
	}
	return box, n, nil
}

// BoundingBox returns the axis-aligned box volume.
func (e *Estimator) BoundingBox(points []r3.Vector) (Estimate, error) {
	box, n, err := e.bounds(points)
	if err != nil {
		return Estimate{}, err
	}
	return newEstimate(box.Extents(), box.Volume(), MethodBoundingBox, BoundingBoxConfidence, n), nil
}

// HullApprox returns the bounding box volume scaled by the shrink factor.
func (e *Estimator) HullApprox(points []r3.Vector) (Estimate, error) {
	box, n, err := e.bounds(points)
	if err != nil {
		return Estimate{}, err
	}
	return newEstimate(box.Extents(), box.Volume()*e.cfg.HullShrinkFactor, MethodHullApprox, HullConfidence, n), nil
}

// MeshApprox uses the hull approximation. The result is tagged mesh_approx only when a normal
// accompanies every point.
func (e *Estimator) MeshApprox(points, normals []r3.Vector) (Estimate, error) {
	est, err := e.HullApprox(points)
	if err != nil {
		return Estimate{}, err
	}
	if len(normals) > 0 && len(normals) == len(points) {
		est.Method = MethodMeshApprox
	}
	return est, nil
}
