package volume

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/volumescan/logging"
	"go.viam.com/volumescan/testutils"
)

func TestLiveEstimatorNeedsPoints(t *testing.T) {
	l := NewLiveEstimator(DefaultLiveConfig(), logging.NewTestLogger(t))
	r := rand.New(rand.NewSource(6))
	points := testutils.SolidBoxPoints(r, r3.Vector{}, r3.Vector{X: 0.1, Y: 0.1, Z: 0.1}, 90)
	_, err := l.Update(points, nil)
	test.That(t, err, test.ShouldEqual, ErrInsufficientPoints)

	// Enough points, but too few survive the confidence filter.
	points = testutils.SolidBoxPoints(r, r3.Vector{}, r3.Vector{X: 0.1, Y: 0.1, Z: 0.1}, 500)
	_, err = l.Update(points, testutils.Confidences(len(points), 0.2))
	test.That(t, err, test.ShouldEqual, ErrInsufficientPoints)

	cfg := DefaultLiveConfig()
	cfg.FilterByConfidence = false
	l = NewLiveEstimator(cfg, logging.NewTestLogger(t))
	_, err = l.Update(points, testutils.Confidences(len(points), 0.2))
	test.That(t, err, test.ShouldBeNil)
}

func TestLiveEstimatorVolume(t *testing.T) {
	l := NewLiveEstimator(DefaultLiveConfig(), logging.NewTestLogger(t))
	r := rand.New(rand.NewSource(7))
	points := testutils.SolidBoxPoints(r, r3.Vector{X: 1, Y: 0, Z: -1}, r3.Vector{X: 0.1, Y: 0.1, Z: 0.1}, 2000)

	est, err := l.Update(points, testutils.Confidences(len(points), 0.9))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, est.VolumeCM3, test.ShouldBeBetween, 550.0, 750.0)
	test.That(t, est.PointCount, test.ShouldEqual, 201)
	test.That(t, est.Samples, test.ShouldEqual, 1)
	test.That(t, est.Stability, test.ShouldEqual, 0.0)
	test.That(t, est.Trend, test.ShouldEqual, TrendStable)

	est, err = l.Update(points, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, est.Stability, test.ShouldEqual, 0.0)
	est, err = l.Update(points, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, est.Samples, test.ShouldEqual, 3)
	test.That(t, est.Stability, test.ShouldAlmostEqual, 1.0)

	for i := 0; i < 20; i++ {
		est, err = l.Update(points, nil)
		test.That(t, err, test.ShouldBeNil)
	}
	test.That(t, est.Samples, test.ShouldEqual, 15)

	l.Reset()
	est, err = l.Update(points, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, est.Samples, test.ShouldEqual, 1)
}

func TestStability(t *testing.T) {
	test.That(t, Stability(nil), test.ShouldEqual, 0.0)
	test.That(t, Stability([]float64{100, 100}), test.ShouldEqual, 0.0)
	test.That(t, Stability([]float64{0.5, 0.5, 0.5}), test.ShouldEqual, 0.0)
	test.That(t, Stability([]float64{100, 100, 100}), test.ShouldEqual, 1.0)
	// Wildly varying estimates are not stable at all.
	test.That(t, Stability([]float64{10, 100, 1000}), test.ShouldEqual, 0.0)
	s := Stability([]float64{95, 100, 105})
	test.That(t, s, test.ShouldBeGreaterThan, 0.7)
	test.That(t, s, test.ShouldBeLessThan, 1.0)
	// Population deviation of {95, 100, 105} is sqrt(50/3), not the sample value 5.
	test.That(t, s, test.ShouldAlmostEqual, 1-math.Sqrt(50.0/3)/100/0.2, 1e-12)
}

func TestTrendOf(t *testing.T) {
	test.That(t, TrendOf([]float64{1, 2, 3, 4, 5}, 0.05), test.ShouldEqual, TrendStable)
	test.That(t, TrendOf([]float64{100, 100, 100, 110, 110, 110}, 0.05), test.ShouldEqual, TrendIncreasing)
	test.That(t, TrendOf([]float64{100, 100, 100, 90, 90, 90}, 0.05), test.ShouldEqual, TrendDecreasing)
	test.That(t, TrendOf([]float64{100, 100, 100, 50, 102, 103, 104}, 0.05), test.ShouldEqual, TrendStable)
	test.That(t, TrendOf([]float64{0, 0, 0, 1, 1, 1}, 0.05), test.ShouldEqual, TrendStable)
}
