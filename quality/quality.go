// Package quality scores each sensor frame for how useful it is to a volume scan.
package quality

import (
	"math"

	"github.com/golang/geo/r3"

	"go.viam.com/volumescan/frame"
	"go.viam.com/volumescan/logging"
	"go.viam.com/volumescan/pointcloud"
	"go.viam.com/volumescan/spatialmath"
)

// Sub-score weights. They sum to 1.
const (
	FeatureWeight  = 0.35
	LightingWeight = 0.25
	DepthWeight    = 0.20
	MotionWeight   = 0.15
	OverlapWeight  = 0.05
)

// Recommendation strings, emitted in this order.
const (
	RecommendFeatures = "Aim at a more textured area, few tracking features are visible"
	RecommendLighting = "Turn on more light, the scene is too dark"
	RecommendNoDepth  = "No depth sensor available, volume accuracy will be limited"
	RecommendDepth    = "Move closer and hold steady, depth readings are unreliable"
	RecommendMotion   = "Move the camera more slowly and smoothly"
	RecommendOverlap  = "Move around the object to reach new viewpoints"
	RecommendGood     = "Good scanning conditions"
)

// Config tunes the stateful parts of the meter.
type Config struct {
	// DepthSampleStride is the pixel stride used when sampling the depth-confidence grid.
	DepthSampleStride int
	// OverlapCellSize is the edge length in meters of the camera-position grid.
	OverlapCellSize float64
	// RevisitCellThreshold is how many cells must be visited before revisits score higher.
	RevisitCellThreshold int
}

// DefaultConfig returns the standard meter configuration.
func DefaultConfig() Config {
	return Config{
		DepthSampleStride:    8,
		OverlapCellSize:      0.05,
		RevisitCellThreshold: 10,
	}
}

// Metrics is the per-frame quality breakdown. Every score is in [0, 1].
type Metrics struct {
	Feature         float64  `json:"feature"`
	Lighting        float64  `json:"lighting"`
	Depth           float64  `json:"depth"`
	Motion          float64  `json:"motion"`
	Overlap         float64  `json:"overlap"`
	Overall         float64  `json:"overall"`
	Recommendations []string `json:"recommendations"`
}

type cellKey struct {
	x, y, z int64
}

// Meter evaluates frames. It remembers the previous pose and the visited camera cells, so one
// Meter serves one scan and must not be shared between goroutines.
type Meter struct {
	cfg    Config
	logger logging.Logger

	prevPose *spatialmath.Pose
	visited  map[cellKey]struct{}
}

// NewMeter returns a Meter with empty motion and overlap history.
func NewMeter(cfg Config, logger logging.Logger) *Meter {
	if cfg.DepthSampleStride < 1 {
		cfg.DepthSampleStride = 1
	}
	if cfg.OverlapCellSize <= 0 {
		cfg.OverlapCellSize = DefaultConfig().OverlapCellSize
	}
	return &Meter{
		cfg:     cfg,
		logger:  logger,
		visited: map[cellKey]struct{}{},
	}
}

// Evaluate scores one frame and advances the motion and overlap history.
func (m *Meter) Evaluate(s *frame.Sample) Metrics {
	metrics := Metrics{
		Feature:  FeatureScore(s.Points),
		Lighting: LightingScore(s.AmbientIntensity),
		Depth:    DepthScore(s.Depth, m.cfg.DepthSampleStride),
		Motion:   m.motionScore(s.Pose),
		Overlap:  m.overlapScore(s.Pose.Point()),
	}
	metrics.Overall = Overall(metrics)
	metrics.Recommendations = recommendations(metrics, s.Depth == nil)

	m.logger.Debugw("frame quality",
		"overall", metrics.Overall,
		"feature", metrics.Feature,
		"lighting", metrics.Lighting,
		"depth", metrics.Depth,
		"motion", metrics.Motion,
		"overlap", metrics.Overlap)
	return metrics
}

// ResetCoverage forgets the previous pose and every visited cell.
func (m *Meter) ResetCoverage() {
	m.prevPose = nil
	m.visited = map[cellKey]struct{}{}
}

// VisitedCells returns how many distinct camera cells have been visited.
func (m *Meter) VisitedCells() int {
	return len(m.visited)
}

// Overall combines the sub-scores with the fixed weights.
func Overall(metrics Metrics) float64 {
	return metrics.Feature*FeatureWeight +
		metrics.Lighting*LightingWeight +
		metrics.Depth*DepthWeight +
		metrics.Motion*MotionWeight +
		metrics.Overlap*OverlapWeight
}

// FeatureScore bands the number of feature points. A nil slice means no feature data.
func FeatureScore(points []r3.Vector) float64 {
	count := len(points)
	switch {
	case count >= 1000:
		return 1.0
	case count >= 500:
		return 0.8
	case count >= 200:
		return 0.6
	default:
		return 0.3
	}
}

// LightingScore bands the ambient intensity around an 800-1500 lumen sweet spot.
func LightingScore(intensity *float64) float64 {
	if intensity == nil || math.IsNaN(*intensity) {
		return 0.5
	}
	v := *intensity
	switch {
	case v >= 800 && v <= 1500:
		return 1.0
	case v >= 500 && v <= 2000:
		return 0.7
	case v >= 300:
		return 0.5
	default:
		return 0.3
	}
}

// DepthScore bands the ratio of high-confidence samples in the central half of the depth grid.
func DepthScore(depth *frame.DepthData, stride int) float64 {
	if depth == nil {
		return 0.0
	}
	if depth.Confidence == nil || depth.Width <= 0 || depth.Height <= 0 ||
		len(depth.Confidence) != depth.Width*depth.Height {
		return 0.5
	}
	if stride < 1 {
		stride = 1
	}

	var total, high int
	for y := depth.Height / 4; y < depth.Height*3/4; y += stride {
		for x := depth.Width / 4; x < depth.Width*3/4; x += stride {
			total++
			if depth.At(x, y) == frame.ConfidenceHigh {
				high++
			}
		}
	}
	if total == 0 {
		return 0.5
	}

	ratio := float64(high) / float64(total)
	switch {
	case ratio >= 0.7:
		return 1.0
	case ratio >= 0.5:
		return 0.7
	case ratio >= 0.3:
		return 0.5
	default:
		return 0.3
	}
}

// TranslationScore rates the camera translation per frame in meters.
func TranslationScore(delta float64) float64 {
	switch {
	case math.IsNaN(delta):
		return 0.0
	case delta < 0.01:
		return 0.8
	case delta <= 0.05:
		return 1.0
	case delta <= 0.10:
		return 0.6
	default:
		return 0.2
	}
}

// RotationScore rates the camera rotation per frame in radians.
func RotationScore(delta float64) float64 {
	switch {
	case math.IsNaN(delta):
		return 0.0
	case delta < 0.1:
		return 1.0
	case delta < 0.2:
		return 0.6
	default:
		return 0.2
	}
}

func (m *Meter) motionScore(pose spatialmath.Pose) float64 {
	prev := m.prevPose
	m.prevPose = &pose
	if prev == nil {
		return 1.0
	}
	translation := TranslationScore(spatialmath.TranslationDelta(*prev, pose))
	rotation := RotationScore(spatialmath.RotationDelta(*prev, pose))
	return (translation + rotation) / 2
}

func (m *Meter) overlapScore(pos r3.Vector) float64 {
	if !pointcloud.IsFinite(pos) {
		return 0.5
	}
	size := m.cfg.OverlapCellSize
	key := cellKey{
		int64(math.Floor(pos.X / size)),
		int64(math.Floor(pos.Y / size)),
		int64(math.Floor(pos.Z / size)),
	}
	if _, seen := m.visited[key]; !seen {
		m.visited[key] = struct{}{}
		return 1.0
	}
	if len(m.visited) >= m.cfg.RevisitCellThreshold {
		return 0.7
	}
	return 0.5
}

func recommendations(metrics Metrics, noDepthSensor bool) []string {
	var recs []string
	if metrics.Feature < 0.5 {
		recs = append(recs, RecommendFeatures)
	}
	if metrics.Lighting < 0.5 {
		recs = append(recs, RecommendLighting)
	}
	if metrics.Depth < 0.5 {
		if noDepthSensor {
			recs = append(recs, RecommendNoDepth)
		} else {
			recs = append(recs, RecommendDepth)
		}
	}
	if metrics.Motion < 0.5 {
		recs = append(recs, RecommendMotion)
	}
	if metrics.Overlap < 0.5 {
		recs = append(recs, RecommendOverlap)
	}
	if metrics.Feature >= 0.8 && metrics.Lighting >= 0.8 && metrics.Depth >= 0.8 {
		recs = append(recs, RecommendGood)
	}
	return recs
}
