package volume

import (
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/volumescan/logging"
	"go.viam.com/volumescan/material"
	"go.viam.com/volumescan/testutils"
)

func newTestEstimator(t *testing.T) *Estimator {
	return NewEstimator(DefaultConfig(), logging.NewTestLogger(t))
}

func TestSelectMethod(t *testing.T) {
	for _, tc := range []struct {
		category material.Category
		points   int
		plane    bool
		expected Method
	}{
		{material.CategoryPowder, 200, true, MethodHeightMap},
		{material.CategoryGranular, 1000, true, MethodHeightMap},
		{material.CategoryFineSpice, 199, true, MethodBoundingBox},
		{material.CategoryPowder, 1000, false, MethodBoundingBox},
		{material.CategoryDenseSolid, 500, false, MethodMeshApprox},
		{material.CategorySolid, 499, true, MethodHullApprox},
		{material.CategorySolid, 300, false, MethodHullApprox},
		{material.CategorySolid, 299, false, MethodBoundingBox},
		{material.CategoryLiquid, 5000, true, MethodBoundingBox},
		{material.CategoryIrregular, 5000, false, MethodBoundingBox},
		{material.CategoryUnknown, 5000, true, MethodBoundingBox},
	} {
		test.That(t, SelectMethod(tc.category, tc.points, tc.plane), test.ShouldEqual, tc.expected)
	}
}

func TestBoundingBox(t *testing.T) {
	e := newTestEstimator(t)
	points := testutils.BoxCorners(r3.Vector{X: -0.05, Y: 0, Z: 0.2}, r3.Vector{X: 0.1, Y: 0.2, Z: 0.3})
	est, err := e.BoundingBox(points)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, est.Method, test.ShouldEqual, MethodBoundingBox)
	test.That(t, est.Confidence, test.ShouldEqual, 0.7)
	test.That(t, est.VolumeCM3, test.ShouldAlmostEqual, 6000, 1e-6)
	test.That(t, est.VolumeM3, test.ShouldAlmostEqual, 0.006, 1e-9)
	test.That(t, est.Extents.X, test.ShouldAlmostEqual, 0.1)
	test.That(t, est.Extents.Y, test.ShouldAlmostEqual, 0.2)
	test.That(t, est.Extents.Z, test.ShouldAlmostEqual, 0.3)
	test.That(t, est.PointCount, test.ShouldEqual, 8)

	_, err = e.BoundingBox(points[:3])
	test.That(t, err, test.ShouldEqual, ErrInsufficientPoints)

	flat := []r3.Vector{{X: 0}, {X: 1}, {X: 1, Z: 1}, {Z: 1}}
	_, err = e.BoundingBox(flat)
	test.That(t, err, test.ShouldEqual, ErrDegenerateExtent)
}

func TestHullAndMeshApprox(t *testing.T) {
	e := newTestEstimator(t)
	points := testutils.BoxCorners(r3.Vector{}, r3.Vector{X: 0.1, Y: 0.1, Z: 0.1})

	hull, err := e.HullApprox(points)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, hull.Method, test.ShouldEqual, MethodHullApprox)
	test.That(t, hull.Confidence, test.ShouldEqual, 0.75)
	test.That(t, hull.VolumeCM3, test.ShouldAlmostEqual, 600)

	mesh, err := e.MeshApprox(points, testutils.UpNormals(len(points)))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mesh.Method, test.ShouldEqual, MethodMeshApprox)
	test.That(t, mesh.VolumeCM3, test.ShouldAlmostEqual, hull.VolumeCM3)

	mismatched, err := e.MeshApprox(points, testutils.UpNormals(2))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mismatched.Method, test.ShouldEqual, MethodHullApprox)
	test.That(t, mismatched.VolumeCM3, test.ShouldAlmostEqual, hull.VolumeCM3)
}

func TestEstimateDispatch(t *testing.T) {
	e := newTestEstimator(t)
	r := rand.New(rand.NewSource(4))
	points := testutils.SolidBoxPoints(r, r3.Vector{}, r3.Vector{X: 0.1, Y: 0.1, Z: 0.1}, 600)

	est, err := e.Estimate(Input{Points: points, Category: material.CategorySolid})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, est.Method, test.ShouldEqual, MethodHullApprox)

	est, err = e.Estimate(Input{Points: points, Normals: testutils.UpNormals(len(points)), Category: material.CategoryDenseSolid})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, est.Method, test.ShouldEqual, MethodMeshApprox)

	ground := 0.0
	est, err = e.Estimate(Input{Points: points, Category: material.CategoryPowder, GroundHeight: &ground})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, est.Method, test.ShouldEqual, MethodHeightMap)

	_, err = e.EstimateWith(Method("voxel"), Input{Points: points})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestEstimateScaled(t *testing.T) {
	e := newTestEstimator(t)
	est, err := e.BoundingBox(testutils.BoxCorners(r3.Vector{}, r3.Vector{X: 0.1, Y: 0.1, Z: 0.1}))
	test.That(t, err, test.ShouldBeNil)
	scaled := est.Scaled(2)
	test.That(t, scaled.VolumeCM3, test.ShouldAlmostEqual, 8000)
	test.That(t, scaled.Extents.X, test.ShouldAlmostEqual, 0.2)
	test.That(t, est.Scaled(-1), test.ShouldResemble, est)
}

func TestHeightMapFlatBlock(t *testing.T) {
	e := newTestEstimator(t)
	top := testutils.GridPlatform(r3.Vector{}, 50, 50, 0.1/49, 0.05)

	withFloor := append(append([]r3.Vector(nil), top...), r3.Vector{X: 0.05, Y: 0, Z: 0.05})
	est, err := e.HeightMap(withFloor, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, est.Method, test.ShouldEqual, MethodHeightMap)
	test.That(t, est.VolumeCM3, test.ShouldAlmostEqual, 500, 1e-6)
	test.That(t, est.Confidence, test.ShouldEqual, 1.0)
	test.That(t, est.Extents.Y, test.ShouldAlmostEqual, 0.05)

	ground := 0.0
	est, err = e.HeightMap(top, &ground)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, est.VolumeCM3, test.ShouldAlmostEqual, 500, 1e-6)
}

func TestHeightMapFillsGaps(t *testing.T) {
	e := newTestEstimator(t)
	ground := 0.0
	// Every other column is missing; filling restores the full slab.
	var points []r3.Vector
	step := 0.1 / 49
	for i := 0; i < 50; i++ {
		for k := 0; k < 50; k++ {
			if (i+k)%2 == 1 {
				continue
			}
			points = append(points, r3.Vector{X: float64(i) * step, Y: 0.02, Z: float64(k) * step})
		}
	}
	est, err := e.HeightMap(points, &ground)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, est.VolumeCM3, test.ShouldAlmostEqual, 200, 1e-6)
}

func TestHeightMapInvariantToOrderAndDuplicates(t *testing.T) {
	e := newTestEstimator(t)
	r := rand.New(rand.NewSource(5))
	heap := testutils.HeapPoints(r, r3.Vector{}, 0.08, 0.05, 4000)

	base, err := e.HeightMap(heap, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, base.Confidence, test.ShouldBeGreaterThanOrEqualTo, 0.8)
	test.That(t, base.Confidence, test.ShouldBeLessThanOrEqualTo, 1.0)

	shuffled, err := e.HeightMap(testutils.Shuffled(r, heap), nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, shuffled.VolumeCM3, test.ShouldAlmostEqual, base.VolumeCM3, 1e-9)

	withDupes := append(testutils.Shuffled(r, heap), heap[:1500]...)
	duplicated, err := e.HeightMap(withDupes, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, duplicated.VolumeCM3, test.ShouldAlmostEqual, base.VolumeCM3, 1e-9)
}

func TestHeightMapRejectsNarrowInput(t *testing.T) {
	e := newTestEstimator(t)
	points := []r3.Vector{{X: 0, Y: 0}, {X: 0.0005, Y: 0.1}, {X: 0, Y: 0.2, Z: 0.1}, {X: 0.0002, Y: 0.05, Z: 0.05}}
	_, err := e.HeightMap(points, nil)
	test.That(t, err, test.ShouldEqual, ErrDegenerateExtent)

	_, err = e.HeightMap(points[:2], nil)
	test.That(t, err, test.ShouldEqual, ErrInsufficientPoints)
}
