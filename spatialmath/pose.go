// Package spatialmath defines camera poses and the rotation math used to compare them.
package spatialmath

import (
	"encoding/json"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is the position (meters) and orientation of the camera in the session's world frame.
type Pose struct {
	position    r3.Vector
	orientation quat.Number
}

// NewZeroPose returns a pose at the origin with no rotation.
func NewZeroPose() Pose {
	return Pose{orientation: NewZeroOrientation()}
}

// NewPose returns a pose at pos with orientation o. The orientation is normalized.
func NewPose(pos r3.Vector, o quat.Number) Pose {
	return Pose{position: pos, orientation: Normalize(o)}
}

// NewPoseFromPoint returns a pose at pos with no rotation.
func NewPoseFromPoint(pos r3.Vector) Pose {
	return NewPose(pos, NewZeroOrientation())
}

// Point returns the position of the pose.
func (p Pose) Point() r3.Vector {
	return p.position
}

// Orientation returns the unit quaternion of the pose. The zero value Pose reports no rotation.
func (p Pose) Orientation() quat.Number {
	if p.orientation == (quat.Number{}) {
		return NewZeroOrientation()
	}
	return p.orientation
}

// TranslationDelta returns the straight-line distance between the positions of two poses.
func TranslationDelta(from, to Pose) float64 {
	return to.position.Sub(from.position).Norm()
}

// RotationDelta returns the angle in radians of the rotation between the orientations of two poses.
func RotationDelta(from, to Pose) float64 {
	return RotationAngle(OrientationBetween(from.Orientation(), to.Orientation()))
}

type poseJSON struct {
	Position    r3.Vector      `json:"position"`
	Orientation orientationDoc `json:"orientation"`
}

type orientationDoc struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// MarshalJSON encodes the pose as a position and a w/x/y/z quaternion.
func (p Pose) MarshalJSON() ([]byte, error) {
	o := p.Orientation()
	return json.Marshal(poseJSON{
		Position:    p.position,
		Orientation: orientationDoc{W: o.Real, X: o.Imag, Y: o.Jmag, Z: o.Kmag},
	})
}

// UnmarshalJSON decodes a pose written by MarshalJSON.
func (p *Pose) UnmarshalJSON(data []byte) error {
	var doc poseJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*p = NewPose(doc.Position, quat.Number{
		Real: doc.Orientation.W,
		Imag: doc.Orientation.X,
		Jmag: doc.Orientation.Y,
		Kmag: doc.Orientation.Z,
	})
	return nil
}
