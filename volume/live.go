package volume

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/stat"

	"go.viam.com/volumescan/logging"
	"go.viam.com/volumescan/pointcloud"
	"go.viam.com/volumescan/utils"
)

// Trend is the direction the live estimate is moving.
type Trend string

// Trends.
const (
	TrendStable     Trend = "stable"
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
)

// LiveConfig tunes the streaming estimator.
type LiveConfig struct {
	MinPoints          int
	FilterByConfidence bool
	MinConfidence      float64
	SubsampleStride    int
	// FillFactor is the fraction of its box a real object is assumed to fill.
	FillFactor  float64
	HistorySize int
	// TrendThreshold is the relative change beyond which the trend is not stable.
	TrendThreshold float64
}

// DefaultLiveConfig returns the standard streaming configuration.
func DefaultLiveConfig() LiveConfig {
	return LiveConfig{
		MinPoints:          100,
		FilterByConfidence: true,
		MinConfidence:      0.5,
		SubsampleStride:    10,
		FillFactor:         0.65,
		HistorySize:        15,
		TrendThreshold:     0.05,
	}
}

// LiveEstimate is one streaming update.
type LiveEstimate struct {
	VolumeCM3  float64   `json:"volume_cm3"`
	Extents    r3.Vector `json:"extents"`
	Stability  float64   `json:"stability"`
	Trend      Trend     `json:"trend"`
	PointCount int       `json:"point_count"`
	Samples    int       `json:"samples"`
}

// LiveEstimator is a fast estimator for feedback while capturing. It keeps a short history of
// its own estimates to report how settled they are.
type LiveEstimator struct {
	cfg     LiveConfig
	logger  logging.Logger
	history *utils.RollingWindow
}

// NewLiveEstimator returns a LiveEstimator with an empty history.
func NewLiveEstimator(cfg LiveConfig, logger logging.Logger) *LiveEstimator {
	return &LiveEstimator{
		cfg:     cfg,
		logger:  logger,
		history: utils.NewRollingWindow(cfg.HistorySize),
	}
}

// Update estimates the volume of the current point set and records it in the history.
// Confidence is optional.
func (l *LiveEstimator) Update(points []r3.Vector, confidence []float64) (LiveEstimate, error) {
	if l.cfg.FilterByConfidence {
		points, _ = pointcloud.FilterByConfidence(points, confidence, l.cfg.MinConfidence)
	}
	finite := make([]r3.Vector, 0, len(points))
	for _, p := range points {
		if pointcloud.IsFinite(p) {
			finite = append(finite, p)
		}
	}
	if len(finite) < l.cfg.MinPoints {
		return LiveEstimate{}, ErrInsufficientPoints
	}

	sampled := pointcloud.Subsample(finite, l.cfg.SubsampleStride)
	center, _ := pointcloud.Centroid(sampled)
	var half r3.Vector
	for _, p := range sampled {
		d := p.Sub(center).Abs()
		half = r3.Vector{X: math.Max(half.X, d.X), Y: math.Max(half.Y, d.Y), Z: math.Max(half.Z, d.Z)}
	}
	extents := half.Mul(2)
	volumeCM3 := extents.X * extents.Y * extents.Z * l.cfg.FillFactor * cubicMetersToCM3
	if !utils.IsFinite(volumeCM3) || volumeCM3 <= 0 {
		return LiveEstimate{}, ErrDegenerateExtent
	}

	l.history.Add(volumeCM3)
	values := l.history.Values()
	est := LiveEstimate{
		VolumeCM3:  volumeCM3,
		Extents:    extents,
		Stability:  Stability(values),
		Trend:      TrendOf(values, l.cfg.TrendThreshold),
		PointCount: len(sampled),
		Samples:    l.history.Len(),
	}
	l.logger.Debugw("live volume", "volume_cm3", est.VolumeCM3, "stability", est.Stability, "trend", est.Trend)
	return est, nil
}

// Reset clears the history.
func (l *LiveEstimator) Reset() {
	l.history.Reset()
}

// Stability maps the coefficient of variation of the history onto [0, 1], where 1 means the
// estimates have settled. The variation uses the population standard deviation of the window.
// It is 0 with fewer than 3 samples or a mean of at most 1 cm³.
func Stability(history []float64) float64 {
	if len(history) < 3 {
		return 0
	}
	mean, std := stat.PopMeanStdDev(history, nil)
	if !utils.IsFinite(mean) || mean <= 1 || !utils.IsFinite(std) {
		return 0
	}
	cv := std / mean
	return utils.Clamp01(1 - cv/0.2)
}

// TrendOf compares the mean of the newest three samples to the mean of the oldest three.
// Fewer than six samples is always stable.
func TrendOf(history []float64, threshold float64) Trend {
	if len(history) < 6 {
		return TrendStable
	}
	early := stat.Mean(history[:3], nil)
	recent := stat.Mean(history[len(history)-3:], nil)
	if early <= 0 || !utils.IsFinite(early) || !utils.IsFinite(recent) {
		return TrendStable
	}
	change := (recent - early) / early
	switch {
	case change > threshold:
		return TrendIncreasing
	case change < -threshold:
		return TrendDecreasing
	default:
		return TrendStable
	}
}
