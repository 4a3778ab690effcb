package testutils

import (
	"time"

	"github.com/golang/geo/r3"

	"go.viam.com/volumescan/frame"
	"go.viam.com/volumescan/spatialmath"
)

// HighConfidenceDepth returns a width by height depth map in which every pixel is high confidence.
func HighConfidenceDepth(width, height int) *frame.DepthData {
	conf := make([]frame.ConfidenceLevel, width*height)
	for i := range conf {
		conf[i] = frame.ConfidenceHigh
	}
	return &frame.DepthData{Width: width, Height: height, Confidence: conf}
}

// GoodSample returns a frame with plenty of features, ideal light and a fully confident depth
// map. Any points passed replace the placeholder feature points.
func GoodSample(at time.Time, camera r3.Vector, points []r3.Vector) *frame.Sample {
	if points == nil {
		points = make([]r3.Vector, 1000)
	}
	return &frame.Sample{
		Timestamp:        at,
		Pose:             spatialmath.NewPoseFromPoint(camera),
		Points:           points,
		AmbientIntensity: frame.Ptr(1000.0),
		Depth:            HighConfidenceDepth(32, 24),
	}
}

// PoorSample returns a dark frame with few features and no depth sensor.
func PoorSample(at time.Time, camera r3.Vector) *frame.Sample {
	return &frame.Sample{
		Timestamp:        at,
		Pose:             spatialmath.NewPoseFromPoint(camera),
		Points:           make([]r3.Vector, 50),
		AmbientIntensity: frame.Ptr(100.0),
	}
}
