package accuracy

import (
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.viam.com/test"

	"go.viam.com/volumescan/calibration"
	"go.viam.com/volumescan/logging"
	"go.viam.com/volumescan/material"
)

func TestErrorCurves(t *testing.T) {
	test.That(t, PointError(0), test.ShouldEqual, 20.0)
	test.That(t, PointError(750), test.ShouldAlmostEqual, 6)
	test.That(t, PointError(5000), test.ShouldEqual, 1.0)
	test.That(t, PointError(100000), test.ShouldEqual, 1.0)

	e := NewEvaluator(DefaultConfig(), logging.NewTestLogger(t))
	test.That(t, e.DistanceError(0.1), test.ShouldEqual, 2.0)
	test.That(t, e.DistanceError(0.3), test.ShouldEqual, 2.0)
	test.That(t, e.DistanceError(0.9), test.ShouldAlmostEqual, 2+18*math.Pow(0.5, 1.5), 1e-9)
	test.That(t, e.DistanceError(1.5), test.ShouldEqual, 20.0)
	test.That(t, e.DistanceError(4), test.ShouldEqual, 20.0)
	test.That(t, e.DistanceError(math.NaN()), test.ShouldEqual, 20.0)

	test.That(t, ConfidenceError(0.2), test.ShouldEqual, 12.0)
	test.That(t, ConfidenceError(0.6), test.ShouldAlmostEqual, 8.5)
	test.That(t, ConfidenceError(0.95), test.ShouldEqual, 1.0)
	test.That(t, ConfidenceError(math.NaN()), test.ShouldEqual, 12.0)

	test.That(t, MaterialError(material.CategoryDenseSolid), test.ShouldEqual, 2.0)
	test.That(t, MaterialError(material.CategoryFineSpice), test.ShouldEqual, 12.0)
	test.That(t, MaterialError(material.Category("lava")), test.ShouldEqual, 8.0)

	test.That(t, CalibrationError(Calibration{}), test.ShouldEqual, 8.0)
	test.That(t, CalibrationError(Calibration{Calibrated: true, Stale: true}), test.ShouldEqual, 5.0)
	test.That(t, CalibrationError(Calibration{Calibrated: true, DeviationPercent: 25}), test.ShouldAlmostEqual, 2.5)
	test.That(t, CalibrationError(Calibration{Calibrated: true, DeviationPercent: 80}), test.ShouldEqual, 4.0)

	test.That(t, MeshError(10, 1), test.ShouldEqual, 1.0)
	test.That(t, MeshError(0, 0), test.ShouldAlmostEqual, math.Hypot(10, 15))
}

func TestEvaluateGoodScan(t *testing.T) {
	e := NewEvaluator(DefaultConfig(), logging.NewTestLogger(t))
	result := e.Evaluate(Input{
		PointCount:     5000,
		DistanceM:      0.3,
		MeanConfidence: 0.9,
		Category:       material.CategoryDenseSolid,
		Calibration:    Calibration{Calibrated: true},
		PointDensity:   10,
		Coverage:       1,
	})
	want := Breakdown{Points: 1, Distance: 2, Confidence: 1, Material: 2, Calibration: 1, Mesh: 1}
	test.That(t, cmp.Diff(want, result.Breakdown, cmpopts.EquateApprox(0, 1e-9)), test.ShouldBeEmpty)
	test.That(t, result.ErrorPercent, test.ShouldAlmostEqual, math.Sqrt(12), 1e-9)
	test.That(t, result.ConfidenceLevel, test.ShouldAlmostEqual, 0.96, 1e-9)
	test.That(t, result.QualityScore, test.ShouldAlmostEqual, 0.6*(1-math.Sqrt(12)/100)+0.4*0.96, 1e-9)
	test.That(t, result.Recommendations, test.ShouldBeEmpty)
	test.That(t, e.MeetsMinimumQuality(result), test.ShouldBeTrue)
}

func TestEvaluatePoorScan(t *testing.T) {
	e := NewEvaluator(DefaultConfig(), logging.NewTestLogger(t))
	result := e.Evaluate(Input{
		PointCount:     0,
		DistanceM:      2,
		MeanConfidence: 0.3,
		Category:       material.CategoryUnknown,
	})
	test.That(t, result.Breakdown.Points, test.ShouldEqual, 20.0)
	test.That(t, result.ErrorPercent, test.ShouldAlmostEqual, math.Sqrt(400+400+144+64+64+325), 1e-9)
	test.That(t, result.Recommendations, test.ShouldResemble, []string{
		RecommendMorePoints,
		RecommendDistance,
		RecommendConfidence,
		RecommendCalibrate,
		RecommendCoverage,
	})
	test.That(t, e.MeetsMinimumQuality(result), test.ShouldBeFalse)
	test.That(t, result.QualityScore, test.ShouldBeBetweenOrEqual, 0, 1)
}

func TestMeetsMinimumQualityErrorGate(t *testing.T) {
	e := NewEvaluator(DefaultConfig(), logging.NewTestLogger(t))
	test.That(t, e.MeetsMinimumQuality(Result{ErrorPercent: 25, ConfidenceLevel: 1, QualityScore: 1}), test.ShouldBeTrue)
	test.That(t, e.MeetsMinimumQuality(Result{ErrorPercent: 25.01, ConfidenceLevel: 1, QualityScore: 1}), test.ShouldBeFalse)
	test.That(t, e.MeetsMinimumQuality(Result{ErrorPercent: 5, ConfidenceLevel: 0.49, QualityScore: 1}), test.ShouldBeFalse)
	test.That(t, e.MeetsMinimumQuality(Result{ErrorPercent: 5, ConfidenceLevel: 1, QualityScore: 0.49}), test.ShouldBeFalse)
}

func TestConfidenceLevelClamps(t *testing.T) {
	e := NewEvaluator(DefaultConfig(), logging.NewTestLogger(t))
	level := e.ConfidenceLevel(Input{PointCount: 50000, DistanceM: 0.1, MeanConfidence: 3, Coverage: 2})
	test.That(t, level, test.ShouldEqual, 1.0)
	level = e.ConfidenceLevel(Input{PointCount: 2500, DistanceM: 0.6, MeanConfidence: math.NaN(), Coverage: 0.5})
	test.That(t, level, test.ShouldAlmostEqual, 0.15+0.075+0.075, 1e-12)
}

func TestCalibrationFromStore(t *testing.T) {
	clk := clock.NewMock()
	store, err := calibration.NewStore(clk, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, CalibrationFrom(store).Calibrated, test.ShouldBeFalse)

	test.That(t, store.CalibrateWithReference("credit_card", 0.08).Success, test.ShouldBeTrue)
	c := CalibrationFrom(store)
	test.That(t, c.Calibrated, test.ShouldBeTrue)
	test.That(t, c.DeviationPercent, test.ShouldAlmostEqual, 7, 1e-9)
	test.That(t, CalibrationError(c), test.ShouldAlmostEqual, 1.42, 1e-9)

	clk.Add(31 * 24 * time.Hour)
	test.That(t, CalibrationError(CalibrationFrom(store)), test.ShouldEqual, 5.0)
}

func TestMeanConfidence(t *testing.T) {
	_, ok := MeanConfidence(nil)
	test.That(t, ok, test.ShouldBeFalse)
	mean, ok := MeanConfidence([]float64{0.5, 1, 0.75})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, mean, test.ShouldAlmostEqual, 0.75)
}
