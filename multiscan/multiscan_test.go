package multiscan

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"go.viam.com/test"

	"go.viam.com/volumescan/logging"
	"go.viam.com/volumescan/material"
	"go.viam.com/volumescan/spatialmath"
	"go.viam.com/volumescan/testutils"
)

func TestRequiredAngles(t *testing.T) {
	test.That(t, RequiredAngles(material.CategoryPowder), test.ShouldResemble,
		[]Angle{AngleTop, AngleFrontOblique, AngleSideOblique, AngleFront})
	test.That(t, RequiredAngles(material.CategoryFineSpice), test.ShouldHaveLength, 4)
	test.That(t, RequiredAngles(material.CategorySolid), test.ShouldResemble, []Angle{AngleTop, AngleFront, AngleSide})
	test.That(t, RequiredAngles(material.CategoryUnknown), test.ShouldHaveLength, 3)
	test.That(t, RequiredAngles(material.CategoryIrregular), test.ShouldHaveLength, 5)

	// Callers cannot mutate the policy table.
	angles := RequiredAngles(material.CategorySolid)
	angles[0] = AngleSide
	test.That(t, RequiredAngles(material.CategorySolid)[0], test.ShouldEqual, AngleTop)

	test.That(t, Labels([]Angle{AngleTop, AngleSideOblique}), test.ShouldResemble,
		[]string{"directly above", "45° from the side"})
}

func TestScanQuality(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	box := testutils.SolidBoxPoints(r, r3.Vector{}, r3.Vector{X: 0.1, Y: 0.1, Z: 0.1}, 1000)
	test.That(t, ScanQuality(box, testutils.Confidences(len(box), 0.9)), test.ShouldAlmostEqual, 0.3+0.4*0.9+0.3)
	test.That(t, ScanQuality(box, nil), test.ShouldAlmostEqual, 0.3+0.4*0.5+0.3)

	same := make([]r3.Vector, 10)
	test.That(t, ScanQuality(same, nil), test.ShouldAlmostEqual, 0.3*0.01+0.4*0.5)
	test.That(t, ScanQuality(nil, nil), test.ShouldAlmostEqual, 0.2)
}

func TestRecordScanSequence(t *testing.T) {
	logger := logging.NewTestLogger(t)
	clk := clock.NewMock()
	m := NewManager(DefaultConfig(), material.CategoryPowder, clk, logger)
	id := m.StartMultiScan()
	test.That(t, id, test.ShouldNotEqual, uuid.Nil)
	test.That(t, m.ShouldAllowNextScan(), test.ShouldBeTrue)
	test.That(t, m.Guidance(), test.ShouldContainSubstring, "directly above")

	r := rand.New(rand.NewSource(2))
	for i, angle := range m.RequiredAngles() {
		next, ok := m.NextAngle()
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, next, test.ShouldEqual, angle)

		points := testutils.SolidBoxPoints(r, r3.Vector{X: float64(i)}, r3.Vector{X: 0.1, Y: 0.1, Z: 0.1}, 1000)
		clk.Add(time.Second)
		result, err := m.RecordScan(points, nil, testutils.Confidences(len(points), 0.9),
			spatialmath.NewPoseFromPoint(r3.Vector{Y: 0.4}))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, result.Angle, test.ShouldEqual, angle)
		test.That(t, result.CameraPosition, test.ShouldResemble, r3.Vector{Y: 0.4})
		test.That(t, result.Timestamp, test.ShouldResemble, clk.Now())
		test.That(t, result.Quality, test.ShouldBeGreaterThan, 0.6)
	}
	test.That(t, m.Complete(), test.ShouldBeTrue)
	test.That(t, m.ShouldAllowNextScan(), test.ShouldBeFalse)
	test.That(t, m.Guidance(), test.ShouldContainSubstring, "All angles captured")

	_, err := m.RecordScan([]r3.Vector{{}}, nil, nil, spatialmath.NewZeroPose())
	test.That(t, err, test.ShouldEqual, ErrScanComplete)
	test.That(t, m.Results(), test.ShouldHaveLength, 4)

	summary, err := m.Summary()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, summary.SessionID, test.ShouldEqual, id)
	test.That(t, summary.Recorded, test.ShouldEqual, 4)
	test.That(t, summary.Required, test.ShouldEqual, 4)
	test.That(t, summary.Complete, test.ShouldBeTrue)
	test.That(t, summary.TotalPoints, test.ShouldEqual, 4*1008)
	test.That(t, summary.MinQuality, test.ShouldAlmostEqual, 0.96)
	test.That(t, summary.MedianQuality, test.ShouldAlmostEqual, 0.96)

	// Starting again clears everything.
	id2 := m.StartMultiScan()
	test.That(t, id2, test.ShouldNotEqual, id)
	test.That(t, m.Results(), test.ShouldBeEmpty)
	test.That(t, m.Complete(), test.ShouldBeFalse)
	summary, err = m.Summary()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, summary.Recorded, test.ShouldEqual, 0)
}

func TestShouldAllowNextScanGatesOnQuality(t *testing.T) {
	m := NewManager(DefaultConfig(), material.CategorySolid, clock.NewMock(), logging.NewTestLogger(t))
	m.StartMultiScan()

	sparse := []r3.Vector{{X: 0.01}, {X: 0.02}}
	result, err := m.RecordScan(sparse, nil, []float64{0.2, 0.2}, spatialmath.NewZeroPose())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.Quality, test.ShouldBeLessThan, 0.6)
	test.That(t, m.ShouldAllowNextScan(), test.ShouldBeFalse)
	test.That(t, m.Guidance(), test.ShouldContainSubstring, "Rescan from directly above")

	// Mismatched optional arrays are dropped rather than stored.
	result, err = m.RecordScan(sparse, []r3.Vector{{Y: 1}}, []float64{0.9}, spatialmath.NewZeroPose())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.Normals, test.ShouldBeEmpty)
	test.That(t, result.Confidence, test.ShouldBeEmpty)
}

func TestMergeScans(t *testing.T) {
	m := NewManager(DefaultConfig(), material.CategorySolid, clock.NewMock(), logging.NewTestLogger(t))
	m.StartMultiScan()

	r := rand.New(rand.NewSource(3))
	size := r3.Vector{X: 0.08, Y: 0.05, Z: 0.08}
	var lowConfidence int
	for i := 0; i < 3; i++ {
		points := testutils.BoxSurfacePoints(r, r3.Vector{}, size, 1500)
		conf := make([]float64, len(points))
		for j := range conf {
			conf[j] = 0.9
			if j%5 == 0 {
				conf[j] = 0.3
				lowConfidence++
			}
		}
		_, err := m.RecordScan(points, nil, conf, spatialmath.NewZeroPose())
		test.That(t, err, test.ShouldBeNil)
	}

	merged, normals, mergedConf := m.MergeScans()
	test.That(t, merged, test.ShouldNotBeEmpty)
	test.That(t, normals, test.ShouldBeNil)
	test.That(t, mergedConf, test.ShouldHaveLength, len(merged))
	for _, c := range mergedConf {
		test.That(t, c, test.ShouldEqual, 0.9)
	}
	test.That(t, len(merged), test.ShouldBeLessThan, 3*1508-lowConfidence)
	closest := math.Inf(1)
	for i := range merged {
		for j := i + 1; j < len(merged); j++ {
			closest = math.Min(closest, merged[i].Sub(merged[j]).Norm())
		}
	}
	test.That(t, closest, test.ShouldBeGreaterThanOrEqualTo, 0.005)
}

func TestMergeKeepsPointsWithoutConfidence(t *testing.T) {
	m := NewManager(DefaultConfig(), material.CategorySolid, clock.NewMock(), logging.NewTestLogger(t))
	m.StartMultiScan()
	points := []r3.Vector{{X: 0}, {X: 0.001}, {X: 0.1}}
	_, err := m.RecordScan(points, nil, nil, spatialmath.NewZeroPose())
	test.That(t, err, test.ShouldBeNil)
	merged, normals, conf := m.MergeScans()
	test.That(t, merged, test.ShouldResemble, []r3.Vector{{X: 0}, {X: 0.1}})
	test.That(t, normals, test.ShouldBeNil)
	test.That(t, conf, test.ShouldBeNil)
}

func TestMergeCarriesNormalsAndConfidence(t *testing.T) {
	m := NewManager(DefaultConfig(), material.CategorySolid, clock.NewMock(), logging.NewTestLogger(t))
	m.StartMultiScan()

	first := []r3.Vector{{X: 0}, {X: 0.001}, {X: 0.1}}
	_, err := m.RecordScan(first, []r3.Vector{{Y: 1}, {Y: 2}, {Y: 3}}, []float64{0.9, 0.95, 0.3}, spatialmath.NewZeroPose())
	test.That(t, err, test.ShouldBeNil)
	second := []r3.Vector{{X: 0.002}, {X: 0.2}}
	_, err = m.RecordScan(second, []r3.Vector{{Z: 1}, {Z: 2}}, []float64{0.8, 0.7}, spatialmath.NewZeroPose())
	test.That(t, err, test.ShouldBeNil)

	merged, normals, conf := m.MergeScans()
	test.That(t, merged, test.ShouldResemble, []r3.Vector{{X: 0}, {X: 0.2}})
	test.That(t, normals, test.ShouldResemble, []r3.Vector{{Y: 1}, {Z: 2}})
	test.That(t, conf, test.ShouldResemble, []float64{0.9, 0.7})

	// One angle without normals drops them from the merge, confidence survives.
	_, err = m.RecordScan([]r3.Vector{{X: 0.3}}, nil, []float64{0.6}, spatialmath.NewZeroPose())
	test.That(t, err, test.ShouldBeNil)
	merged, normals, conf = m.MergeScans()
	test.That(t, merged, test.ShouldHaveLength, 3)
	test.That(t, normals, test.ShouldBeNil)
	test.That(t, conf, test.ShouldResemble, []float64{0.9, 0.7, 0.6})
}
