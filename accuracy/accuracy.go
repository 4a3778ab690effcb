// Package accuracy turns the signals gathered during a scan into an expected error percentage,
// a confidence level and a quality score for the final measurement.
package accuracy

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"go.viam.com/volumescan/calibration"
	"go.viam.com/volumescan/logging"
	"go.viam.com/volumescan/material"
	"go.viam.com/volumescan/utils"
)

// Recommendation strings, emitted in this order.
const (
	RecommendMorePoints  = "Capture more frames, the point cloud is too sparse"
	RecommendDistance    = "Move the camera closer, about 30 cm from the object"
	RecommendConfidence  = "Improve lighting or hold steadier, depth confidence is low"
	RecommendCalibrate   = "Calibrate with a reference object for better accuracy"
	RecommendRecalibrate = "Calibration is over 30 days old, recalibrate"
	RecommendCoverage    = "Scan the object from more angles to fill in missing areas"
)

var (
	pointCurve = []utils.Breakpoint{{X: 0, Y: 20}, {X: 500, Y: 8}, {X: 1000, Y: 4}, {X: 2000, Y: 2}, {X: 5000, Y: 1}}
	// confidenceCurve holds at 12% below 0.5 and at 1% above 0.85.
	confidenceCurve = []utils.Breakpoint{{X: 0.5, Y: 12}, {X: 0.7, Y: 5}, {X: 0.85, Y: 1}}
	// densityCurve is keyed on points per cm² of surface.
	densityCurve = []utils.Breakpoint{{X: 0, Y: 10}, {X: 1, Y: 6}, {X: 5, Y: 3}, {X: 10, Y: 1}}

	materialError = map[material.Category]float64{
		material.CategoryDenseSolid: 2,
		material.CategoryLiquid:     3,
		material.CategorySolid:      4,
		material.CategoryGranular:   6,
		material.CategoryPowder:     8,
		material.CategoryIrregular:  10,
		material.CategoryFineSpice:  12,
		material.CategoryUnknown:    8,
	}
)

// Config holds the distances, targets and gates used by the evaluator.
type Config struct {
	// OptimalDistance is the sensor distance in meters at or below which distance error is minimal.
	OptimalDistance float64
	// MaxDistance is the distance at which distance error reaches its maximum.
	MaxDistance float64
	MinDistanceError float64
	MaxDistanceError float64
	// TargetPoints is the point count that earns full point confidence.
	TargetPoints int

	PointRecommendThreshold      float64
	MeshRecommendThreshold       float64
	DistanceRecommendThreshold   float64
	ConfidenceRecommendThreshold float64

	MinConfidenceLevel float64
	MinQualityScore    float64
	MaxErrorPercent    float64
}

// DefaultConfig returns the standard evaluator configuration.
func DefaultConfig() Config {
	return Config{
		OptimalDistance:              0.3,
		MaxDistance:                  1.5,
		MinDistanceError:             2,
		MaxDistanceError:             20,
		TargetPoints:                 5000,
		PointRecommendThreshold:      8,
		MeshRecommendThreshold:       8,
		DistanceRecommendThreshold:   5,
		ConfidenceRecommendThreshold: 5,
		MinConfidenceLevel:           0.5,
		MinQualityScore:              0.5,
		MaxErrorPercent:              25,
	}
}

// Calibration summarizes the calibration state for error modeling.
type Calibration struct {
	Calibrated       bool
	Stale            bool
	DeviationPercent float64
}

// CalibrationFrom reads the calibration inputs from a store.
func CalibrationFrom(s *calibration.Store) Calibration {
	st := s.State()
	return Calibration{
		Calibrated:       st.Calibrated,
		Stale:            s.NeedsRefresh(),
		DeviationPercent: 100 - st.AccuracyPercent,
	}
}

// Input gathers every signal the evaluator combines.
type Input struct {
	PointCount int
	// DistanceM is the mean sensor-to-object distance in meters.
	DistanceM float64
	// MeanConfidence is the average per-point confidence in [0, 1].
	MeanConfidence float64
	Category       material.Category
	Calibration    Calibration
	// PointDensity is the number of points per cm² of object surface.
	PointDensity float64
	// Coverage is the fraction of the object adequately sampled, in [0, 1].
	Coverage float64
}

// Breakdown holds each error contribution in percent.
type Breakdown struct {
	Points      float64 `json:"points"`
	Distance    float64 `json:"distance"`
	Confidence  float64 `json:"confidence"`
	Material    float64 `json:"material"`
	Calibration float64 `json:"calibration"`
	Mesh        float64 `json:"mesh"`
}

// Total combines the contributions by root-sum-of-squares.
func (b Breakdown) Total() float64 {
	return math.Sqrt(b.Points*b.Points +
		b.Distance*b.Distance +
		b.Confidence*b.Confidence +
		b.Material*b.Material +
		b.Calibration*b.Calibration +
		b.Mesh*b.Mesh)
}

// Result is the accuracy report for one measurement.
type Result struct {
	ErrorPercent    float64   `json:"error_percent"`
	ConfidenceLevel float64   `json:"confidence_level"`
	QualityScore    float64   `json:"quality_score"`
	Breakdown       Breakdown `json:"breakdown"`
	Recommendations []string  `json:"recommendations"`
}

// Evaluator combines error sources. It holds no state between calls.
type Evaluator struct {
	cfg    Config
	logger logging.Logger
}

// NewEvaluator returns an evaluator.
func NewEvaluator(cfg Config, logger logging.Logger) *Evaluator {
	if cfg.TargetPoints < 1 {
		cfg.TargetPoints = DefaultConfig().TargetPoints
	}
	if cfg.MaxDistance <= cfg.OptimalDistance {
		def := DefaultConfig()
		cfg.OptimalDistance, cfg.MaxDistance = def.OptimalDistance, def.MaxDistance
	}
	return &Evaluator{cfg: cfg, logger: logger}
}

// Evaluate computes the accuracy report.
func (e *Evaluator) Evaluate(in Input) Result {
	b := Breakdown{
		Points:      PointError(in.PointCount),
		Distance:    e.DistanceError(in.DistanceM),
		Confidence:  ConfidenceError(in.MeanConfidence),
		Material:    MaterialError(in.Category),
		Calibration: CalibrationError(in.Calibration),
		Mesh:        MeshError(in.PointDensity, in.Coverage),
	}
	total := b.Total()
	level := e.ConfidenceLevel(in)
	quality := utils.Clamp01(0.6*(1-total/100) + 0.4*level)

	result := Result{
		ErrorPercent:    total,
		ConfidenceLevel: level,
		QualityScore:    quality,
		Breakdown:       b,
		Recommendations: e.recommendations(b, in.Calibration),
	}
	e.logger.Debugw("accuracy evaluated",
		"error_percent", total,
		"confidence", level,
		"quality", quality)
	return result
}

// MeetsMinimumQuality reports whether a result is good enough to show as a measurement.
func (e *Evaluator) MeetsMinimumQuality(r Result) bool {
	return r.ConfidenceLevel >= e.cfg.MinConfidenceLevel &&
		r.QualityScore >= e.cfg.MinQualityScore &&
		r.ErrorPercent <= e.cfg.MaxErrorPercent
}

// PointError is the error contribution of the point count.
func PointError(count int) float64 {
	return utils.Interpolate(pointCurve, float64(count))
}

// DistanceError is flat up to the optimal distance, then rises along a power-1.5 curve to the
// maximum. Unknown distances take the maximum.
func (e *Evaluator) DistanceError(d float64) float64 {
	lo, hi := e.cfg.MinDistanceError, e.cfg.MaxDistanceError
	switch {
	case !utils.IsFinite(d):
		return hi
	case d <= e.cfg.OptimalDistance:
		return lo
	case d >= e.cfg.MaxDistance:
		return hi
	}
	t := (d - e.cfg.OptimalDistance) / (e.cfg.MaxDistance - e.cfg.OptimalDistance)
	return lo + (hi-lo)*math.Pow(t, 1.5)
}

// ConfidenceError is the error contribution of the mean point confidence.
func ConfidenceError(mean float64) float64 {
	if !utils.IsFinite(mean) {
		return confidenceCurve[0].Y
	}
	return utils.Interpolate(confidenceCurve, mean)
}

// MaterialError is the base error of a material category.
func MaterialError(c material.Category) float64 {
	if v, ok := materialError[c]; ok {
		return v
	}
	return materialError[material.CategoryUnknown]
}

// CalibrationError grows with calibration deviation and is larger still for stale or missing
// calibrations.
func CalibrationError(c Calibration) float64 {
	switch {
	case !c.Calibrated:
		return 8
	case c.Stale:
		return 5
	}
	dev := utils.FiniteOr(c.DeviationPercent, calibration.MaxDeviationPercent)
	return 1 + 3*math.Min(math.Max(dev, 0)/calibration.MaxDeviationPercent, 1)
}

// MeshError combines surface density and missing coverage.
func MeshError(density, coverage float64) float64 {
	d := utils.Interpolate(densityCurve, utils.FiniteOr(density, 0))
	c := (1 - utils.Clamp01(utils.FiniteOr(coverage, 0))) * 15
	return math.Hypot(d, c)
}

// ConfidenceLevel is the weighted sum of the point, confidence, distance and coverage ratios.
func (e *Evaluator) ConfidenceLevel(in Input) float64 {
	points := utils.Clamp01(float64(in.PointCount) / float64(e.cfg.TargetPoints))
	conf := utils.Clamp01(utils.FiniteOr(in.MeanConfidence, 0))
	var dist float64
	if utils.IsFinite(in.DistanceM) {
		if in.DistanceM <= 0 {
			dist = 1
		} else {
			dist = utils.Clamp01(e.cfg.OptimalDistance / in.DistanceM)
		}
	}
	coverage := utils.Clamp01(utils.FiniteOr(in.Coverage, 0))
	return utils.Clamp01(0.3*points + 0.4*conf + 0.15*dist + 0.15*coverage)
}

func (e *Evaluator) recommendations(b Breakdown, c Calibration) []string {
	var recs []string
	if b.Points > e.cfg.PointRecommendThreshold {
		recs = append(recs, RecommendMorePoints)
	}
	if b.Distance > e.cfg.DistanceRecommendThreshold {
		recs = append(recs, RecommendDistance)
	}
	if b.Confidence > e.cfg.ConfidenceRecommendThreshold {
		recs = append(recs, RecommendConfidence)
	}
	switch {
	case !c.Calibrated:
		recs = append(recs, RecommendCalibrate)
	case c.Stale:
		recs = append(recs, RecommendRecalibrate)
	}
	if b.Mesh > e.cfg.MeshRecommendThreshold {
		recs = append(recs, RecommendCoverage)
	}
	return recs
}

// MeanConfidence averages per-point confidence. It reports false for an empty slice or a
// non-finite mean.
func MeanConfidence(confidence []float64) (float64, bool) {
	if len(confidence) == 0 {
		return 0, false
	}
	mean := stat.Mean(confidence, nil)
	if !utils.IsFinite(mean) {
		return 0, false
	}
	return mean, true
}
