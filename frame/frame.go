// Package frame defines the per-frame sample produced by the depth sensor session.
//
// Coordinates are meters in the session's world frame with +Y up, so the ground plane is X-Z.
package frame

import (
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/volumescan/spatialmath"
)

// ConfidenceLevel is the sensor's per-pixel depth confidence.
type ConfidenceLevel uint8

// Depth confidence levels, in increasing order.
const (
	ConfidenceLow ConfidenceLevel = iota
	ConfidenceMedium
	ConfidenceHigh
)

// DepthData describes the depth map that accompanied a frame. Confidence is row-major with
// Width*Height entries, or nil when the sensor has no confidence channel.
type DepthData struct {
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	Confidence []ConfidenceLevel `json:"confidence,omitempty"`
}

// At returns the confidence of pixel (x, y).
func (d *DepthData) At(x, y int) ConfidenceLevel {
	return d.Confidence[y*d.Width+x]
}

// Sample is one frame from the sensor: the camera pose plus the points it observed. Samples are
// treated as immutable once produced.
type Sample struct {
	Timestamp time.Time        `json:"timestamp"`
	Pose      spatialmath.Pose `json:"pose"`
	Points    []r3.Vector      `json:"points"`
	// Confidence is parallel to Points, each in [0, 1]. Optional.
	Confidence []float64 `json:"confidence,omitempty"`
	// Normals is parallel to Points. Optional.
	Normals []r3.Vector `json:"normals,omitempty"`
	// AmbientIntensity is the estimated scene light in lumens. Optional.
	AmbientIntensity *float64 `json:"ambient_intensity,omitempty"`
	// Depth is nil when the device has no depth sensor.
	Depth *DepthData `json:"depth,omitempty"`
}

// HasConfidence reports whether per-point confidence accompanies the points.
func (s *Sample) HasConfidence() bool {
	return len(s.Confidence) > 0 && len(s.Confidence) == len(s.Points)
}

// HasNormals reports whether per-point normals accompany the points.
func (s *Sample) HasNormals() bool {
	return len(s.Normals) > 0 && len(s.Normals) == len(s.Points)
}

// Validate checks that the optional parallel arrays line up with the points.
func (s *Sample) Validate() error {
	if len(s.Confidence) != 0 && len(s.Confidence) != len(s.Points) {
		return errors.Errorf("confidence has %d entries for %d points", len(s.Confidence), len(s.Points))
	}
	if len(s.Normals) != 0 && len(s.Normals) != len(s.Points) {
		return errors.Errorf("normals has %d entries for %d points", len(s.Normals), len(s.Points))
	}
	if s.Depth != nil {
		if s.Depth.Width < 0 || s.Depth.Height < 0 {
			return errors.Errorf("invalid depth dimensions %dx%d", s.Depth.Width, s.Depth.Height)
		}
		if s.Depth.Confidence != nil && len(s.Depth.Confidence) != s.Depth.Width*s.Depth.Height {
			return errors.Errorf("depth confidence has %d entries for %dx%d pixels",
				len(s.Depth.Confidence), s.Depth.Width, s.Depth.Height)
		}
	}
	return nil
}

// Ptr returns a pointer to v. Handy for the optional scalar fields of Sample.
func Ptr[T any](v T) *T {
	return &v
}
