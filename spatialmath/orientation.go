package spatialmath

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// NewZeroOrientation returns an orientation which signifies no rotation.
func NewZeroOrientation() quat.Number {
	return quat.Number{Real: 1}
}

// Normalize scales q to unit length. A zero quaternion becomes the zero orientation.
func Normalize(q quat.Number) quat.Number {
	norm := quat.Abs(q)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return NewZeroOrientation()
	}
	return quat.Scale(1/norm, q)
}

// OrientationBetween returns the rotation taking o1 to o2.
func OrientationBetween(o1, o2 quat.Number) quat.Number {
	return quat.Mul(Normalize(o2), quat.Conj(Normalize(o1)))
}

// RotationAngle returns the rotation angle in radians, in [0, pi], represented by q.
func RotationAngle(q quat.Number) float64 {
	w := math.Abs(Normalize(q).Real)
	if w > 1 {
		w = 1
	}
	return 2 * math.Acos(w)
}

// NewQuaternionFromAxisAngle returns the unit quaternion rotating by theta radians about axis.
func NewQuaternionFromAxisAngle(axisX, axisY, axisZ, theta float64) quat.Number {
	norm := math.Sqrt(axisX*axisX + axisY*axisY + axisZ*axisZ)
	if norm == 0 {
		return NewZeroOrientation()
	}
	s := math.Sin(theta/2) / norm
	return quat.Number{Real: math.Cos(theta / 2), Imag: axisX * s, Jmag: axisY * s, Kmag: axisZ * s}
}
