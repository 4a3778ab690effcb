package spatialmath

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

func TestZeroPose(t *testing.T) {
	var p Pose
	test.That(t, p.Orientation(), test.ShouldResemble, NewZeroOrientation())
	test.That(t, p.Point(), test.ShouldResemble, r3.Vector{})
	test.That(t, TranslationDelta(p, NewZeroPose()), test.ShouldEqual, 0.0)
	test.That(t, RotationDelta(p, NewZeroPose()), test.ShouldEqual, 0.0)
}

func TestTranslationDelta(t *testing.T) {
	a := NewPoseFromPoint(r3.Vector{X: 0, Y: 0, Z: 0})
	b := NewPoseFromPoint(r3.Vector{X: 0.03, Y: 0.04, Z: 0})
	test.That(t, TranslationDelta(a, b), test.ShouldAlmostEqual, 0.05)
	test.That(t, RotationDelta(a, b), test.ShouldAlmostEqual, 0.0)
}

func TestRotationDelta(t *testing.T) {
	a := NewPose(r3.Vector{}, NewQuaternionFromAxisAngle(0, 1, 0, 0.2))
	b := NewPose(r3.Vector{}, NewQuaternionFromAxisAngle(0, 1, 0, 0.5))
	test.That(t, RotationDelta(a, b), test.ShouldAlmostEqual, 0.3, 1e-9)
	test.That(t, RotationDelta(b, a), test.ShouldAlmostEqual, 0.3, 1e-9)

	// q and -q are the same orientation.
	q := NewQuaternionFromAxisAngle(1, 0, 0, 1)
	neg := quat.Scale(-1, q)
	test.That(t, RotationDelta(NewPose(r3.Vector{}, q), NewPose(r3.Vector{}, neg)), test.ShouldAlmostEqual, 0.0, 1e-6)
}

func TestNormalize(t *testing.T) {
	q := Normalize(quat.Number{Real: 2})
	test.That(t, q, test.ShouldResemble, quat.Number{Real: 1})
	test.That(t, Normalize(quat.Number{}), test.ShouldResemble, NewZeroOrientation())
	test.That(t, RotationAngle(NewQuaternionFromAxisAngle(0, 0, 1, math.Pi/2)), test.ShouldAlmostEqual, math.Pi/2)
}

func TestPoseJSON(t *testing.T) {
	p := NewPose(r3.Vector{X: 1, Y: 2, Z: 3}, NewQuaternionFromAxisAngle(0, 1, 0, 0.7))
	data, err := json.Marshal(p)
	test.That(t, err, test.ShouldBeNil)

	var out Pose
	test.That(t, json.Unmarshal(data, &out), test.ShouldBeNil)
	test.That(t, TranslationDelta(p, out), test.ShouldAlmostEqual, 0.0, 1e-9)
	test.That(t, RotationDelta(p, out), test.ShouldAlmostEqual, 0.0, 1e-6)
}
