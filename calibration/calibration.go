// Package calibration holds the scale and depth-bias corrections applied to raw measurements.
//
// A Store is created once by the caller and shared by reference. Every successful calibration
// replaces the relevant state in one step; a rejected attempt leaves it untouched and reports
// why in a Result.
package calibration

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/volumescan/logging"
	"go.viam.com/volumescan/regression"
	"go.viam.com/volumescan/utils"
)

const (
	// MaxDeviationPercent is the largest accepted deviation of a scale ratio from 1.
	MaxDeviationPercent = 50.0
	// RefreshAfter is the age after which a calibration should be redone.
	RefreshAfter = 30 * 24 * time.Hour
	// depthBiasToleranceM is the RMS bias residual at which depth-bias quality reaches 0.
	depthBiasToleranceM = 0.01
)

// State is the current calibration.
type State struct {
	Calibrated      bool      `json:"calibrated"`
	ScaleFactor     float64   `json:"scale_factor"`
	AccuracyPercent float64   `json:"accuracy_percent"`
	ReferenceID     string    `json:"reference_id,omitempty"`
	DepthBias       []float64 `json:"depth_bias,omitempty"`
	CalibratedAt    time.Time `json:"calibrated_at"`
}

func uncalibrated() State {
	return State{ScaleFactor: 1}
}

// Result reports the outcome of a calibration attempt. A rejected attempt has Success false and a
// Reason; DeviationPercent is always the raw deviation that was computed, or NaN when no ratio
// could be formed.
type Result struct {
	Success          bool    `json:"success"`
	ScaleFactor      float64 `json:"scale_factor"`
	AccuracyPercent  float64 `json:"accuracy_percent"`
	DeviationPercent float64 `json:"deviation_percent"`
	ReferenceID      string  `json:"reference_id,omitempty"`
	Reason           string  `json:"reason,omitempty"`
}

func rejected(reason string, deviation float64, refID string) Result {
	return Result{ScaleFactor: math.NaN(), DeviationPercent: deviation, ReferenceID: refID, Reason: reason}
}

// Enhanced is the record saved alongside a depth-bias fit.
type Enhanced struct {
	ScaleFactor           float64   `json:"scale_factor"`
	QualityScore          float64   `json:"quality_score"`
	Timestamp             time.Time `json:"timestamp"`
	DepthBiasCoefficients []float64 `json:"depth_bias_coefficients"`
}

// DepthSample pairs a sensor distance with the true distance, both in meters.
type DepthSample struct {
	Measured float64 `json:"measured"`
	Actual   float64 `json:"actual"`
}

// Store owns the calibration state. It is safe for concurrent use.
type Store struct {
	clock      clock.Clock
	logger     logging.Logger
	references []ReferenceObject
	persister  Persister

	mu       sync.RWMutex
	state    State
	enhanced *Enhanced
}

// NewStore returns an uncalibrated store using the built-in reference objects.
func NewStore(clk clock.Clock, logger logging.Logger) (*Store, error) {
	refs, err := DefaultReferences()
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Store{
		clock:      clk,
		logger:     logger,
		references: refs,
		state:      uncalibrated(),
	}, nil
}

// Open returns a store restored from persister. Later calls to Persist write back to it.
func Open(ctx context.Context, persister Persister, clk clock.Clock, logger logging.Logger) (*Store, error) {
	s, err := NewStore(clk, logger)
	if err != nil {
		return nil, err
	}
	s.persister = persister
	rec, found, err := persister.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "loading calibration")
	}
	if found {
		s.state, s.enhanced = rec.toState()
		logger.Infow("calibration restored",
			"calibrated", s.state.Calibrated,
			"scale_factor", s.state.ScaleFactor,
			"reference", s.state.ReferenceID)
	}
	return s, nil
}

// References returns the reference objects known to the store.
func (s *Store) References() []ReferenceObject {
	return append([]ReferenceObject(nil), s.references...)
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	st.DepthBias = append([]float64(nil), s.state.DepthBias...)
	return st
}

// Enhanced returns the last enhanced record, if any.
func (s *Store) Enhanced() (Enhanced, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.enhanced == nil {
		return Enhanced{}, false
	}
	e := *s.enhanced
	e.DepthBiasCoefficients = append([]float64(nil), s.enhanced.DepthBiasCoefficients...)
	return e, true
}

// ScaleFactor returns the linear correction factor, 1 when uncalibrated.
func (s *Store) ScaleFactor() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ScaleFactor
}

// IsCalibrated reports whether any calibration has succeeded since the last reset.
func (s *Store) IsCalibrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Calibrated
}

// NeedsRefresh reports whether the calibration is older than RefreshAfter. Stale calibrations
// stay in effect.
func (s *Store) NeedsRefresh() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Calibrated && s.clock.Since(s.state.CalibratedAt) > RefreshAfter
}

// Calibrate compares a known length in cm with the same length measured in meters.
func (s *Store) Calibrate(knownLengthCM, measuredM float64, referenceID string) Result {
	measuredCM := measuredM * 100
	if !utils.IsFinite(knownLengthCM) || !utils.IsFinite(measuredCM) || knownLengthCM <= 0 || measuredCM <= 0 {
		return s.reject(rejected("known and measured lengths must be positive", math.NaN(), referenceID))
	}
	scale := knownLengthCM / measuredCM
	deviation := math.Abs(scale-1) * 100
	if !utils.IsFinite(scale) {
		return s.reject(rejected("scale ratio is not finite", math.NaN(), referenceID))
	}
	if deviation > MaxDeviationPercent {
		return s.reject(rejected(deviationReason(deviation), deviation, referenceID))
	}
	return s.accept(scale, deviation, referenceID)
}

// CalibrateWithReference calibrates against one of the store's reference objects.
func (s *Store) CalibrateWithReference(referenceID string, measuredM float64) Result {
	ref, ok := findReference(s.references, referenceID)
	if !ok {
		return s.reject(rejected(fmt.Sprintf("unknown reference object %q", referenceID), math.NaN(), referenceID))
	}
	return s.Calibrate(ref.LengthCM, measuredM, ref.ID)
}

// CalibrateWithVolume compares an expected volume with the measured one, both in cm³. The scale
// factor is the cube root of their ratio; the deviation gate applies to the ratio itself.
func (s *Store) CalibrateWithVolume(expectedCM3, measuredCM3 float64, referenceID string) Result {
	ratio := expectedCM3 / measuredCM3
	if !utils.IsFinite(ratio) || ratio <= 0 || expectedCM3 <= 0 || measuredCM3 <= 0 {
		return s.reject(rejected("expected and measured volumes must be positive", math.NaN(), referenceID))
	}
	deviation := math.Abs(ratio-1) * 100
	if deviation > MaxDeviationPercent {
		return s.reject(rejected(deviationReason(deviation), deviation, referenceID))
	}
	scale := utils.CubeRoot(ratio)
	if !utils.IsFinite(scale) || scale <= 0 {
		return s.reject(rejected("scale factor is not finite", deviation, referenceID))
	}
	return s.accept(scale, deviation, referenceID)
}

// CalibrateWithReferenceVolume calibrates against a reference object of known volume.
func (s *Store) CalibrateWithReferenceVolume(referenceID string, measuredCM3 float64) Result {
	ref, ok := findReference(s.references, referenceID)
	if !ok || ref.VolumeCM3 == nil {
		return s.reject(rejected(fmt.Sprintf("reference object %q has no known volume", referenceID), math.NaN(), referenceID))
	}
	return s.CalibrateWithVolume(*ref.VolumeCM3, measuredCM3, ref.ID)
}

// SaveEnhancedCalibration stores a scale factor with a depth-bias polynomial and its quality.
// The scale factor passes the same deviation gate as every other calibration.
func (s *Store) SaveEnhancedCalibration(scale, quality float64, coefficients []float64) Result {
	if !utils.IsFinite(scale) || scale <= 0 {
		return s.reject(rejected("scale factor must be positive", math.NaN(), ""))
	}
	if !utils.AllFinite(coefficients) {
		return s.reject(rejected("depth bias coefficients must be finite", math.NaN(), ""))
	}
	deviation := math.Abs(scale-1) * 100
	if deviation > MaxDeviationPercent {
		return s.reject(rejected(deviationReason(deviation), deviation, ""))
	}

	now := s.clock.Now()
	coefficients = append([]float64(nil), coefficients...)
	s.mu.Lock()
	s.state.Calibrated = true
	s.state.ScaleFactor = scale
	s.state.AccuracyPercent = utils.Clamp(100-deviation, 0, 100)
	s.state.DepthBias = coefficients
	s.state.CalibratedAt = now
	s.enhanced = &Enhanced{
		ScaleFactor:           scale,
		QualityScore:          utils.Clamp01(quality),
		Timestamp:             now,
		DepthBiasCoefficients: coefficients,
	}
	refID := s.state.ReferenceID
	s.mu.Unlock()

	s.logger.Infow("enhanced calibration saved", "scale_factor", scale, "quality", quality, "degree", len(coefficients)-1)
	return Result{
		Success:          true,
		ScaleFactor:      scale,
		AccuracyPercent:  utils.Clamp(100-deviation, 0, 100),
		DeviationPercent: deviation,
		ReferenceID:      refID,
	}
}

// CalibrateDepthBias fits the bias (actual - measured) against measured distance with a
// polynomial of the given degree and saves it with the current scale factor. It reports false
// when no fit is possible.
func (s *Store) CalibrateDepthBias(samples []DepthSample, degree int) (regression.Fit, bool) {
	x := make([]float64, len(samples))
	y := make([]float64, len(samples))
	for i, sample := range samples {
		x[i] = sample.Measured
		y[i] = sample.Actual - sample.Measured
	}
	fit, ok := regression.Polynomial(x, y, degree)
	if !ok {
		s.logger.Warnw("depth bias fit failed", "samples", len(samples), "degree", degree)
		return regression.Fit{}, false
	}
	quality := math.Max(0, 1-math.Sqrt(fit.MSE)/depthBiasToleranceM)
	s.logger.Debugw("depth bias fitted", "samples", len(samples), "degree", fit.Degree(), "mse", fit.MSE, "quality", quality)
	if result := s.SaveEnhancedCalibration(s.ScaleFactor(), quality, fit.Coefficients); !result.Success {
		return regression.Fit{}, false
	}
	return fit, true
}

// ApplyDepthBiasCorrection returns the distance corrected by the stored bias polynomial. It
// returns the distance unchanged when no polynomial is stored or the correction is not finite.
func (s *Store) ApplyDepthBiasCorrection(distance float64) float64 {
	s.mu.RLock()
	coefficients := s.state.DepthBias
	s.mu.RUnlock()
	if len(coefficients) == 0 {
		return distance
	}
	corrected := distance + regression.Evaluate(coefficients, distance)
	if !utils.IsFinite(corrected) {
		return distance
	}
	return corrected
}

// Reset discards every calibration.
func (s *Store) Reset() {
	s.mu.Lock()
	s.state = uncalibrated()
	s.enhanced = nil
	s.mu.Unlock()
	s.logger.Info("calibration reset")
}

// Persist writes the current state through the store's persister. It is a no-op for stores
// created without one.
func (s *Store) Persist(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	s.mu.RLock()
	rec := recordFromState(s.state, s.enhanced)
	s.mu.RUnlock()
	return errors.Wrap(s.persister.Save(ctx, rec), "saving calibration")
}

func (s *Store) accept(scale, deviation float64, referenceID string) Result {
	accuracy := utils.Clamp(100-deviation, 0, 100)
	now := s.clock.Now()
	s.mu.Lock()
	s.state.Calibrated = true
	s.state.ScaleFactor = scale
	s.state.AccuracyPercent = accuracy
	s.state.ReferenceID = referenceID
	s.state.CalibratedAt = now
	s.mu.Unlock()

	s.logger.Infow("calibration accepted",
		"scale_factor", scale,
		"deviation_percent", deviation,
		"reference", referenceID)
	return Result{
		Success:          true,
		ScaleFactor:      scale,
		AccuracyPercent:  accuracy,
		DeviationPercent: deviation,
		ReferenceID:      referenceID,
	}
}

func (s *Store) reject(r Result) Result {
	s.logger.Warnw("calibration rejected", "reason", r.Reason, "deviation_percent", r.DeviationPercent, "reference", r.ReferenceID)
	return r
}

func deviationReason(deviation float64) string {
	return fmt.Sprintf("measurement deviates %.1f%% from the reference, more than the %.0f%% allowed; "+
		"check that the whole object was measured", deviation, MaxDeviationPercent)
}
