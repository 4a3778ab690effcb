package frame

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/volumescan/spatialmath"
)

func TestValidate(t *testing.T) {
	s := &Sample{Points: []r3.Vector{{X: 1}, {X: 2}}}
	test.That(t, s.Validate(), test.ShouldBeNil)
	test.That(t, s.HasConfidence(), test.ShouldBeFalse)
	test.That(t, s.HasNormals(), test.ShouldBeFalse)

	s.Confidence = []float64{0.5}
	test.That(t, s.Validate(), test.ShouldBeError)
	test.That(t, s.Validate().Error(), test.ShouldContainSubstring, "confidence has 1 entries for 2 points")

	s.Confidence = []float64{0.5, 0.6}
	s.Normals = []r3.Vector{{Y: 1}, {Y: 1}}
	test.That(t, s.Validate(), test.ShouldBeNil)
	test.That(t, s.HasConfidence(), test.ShouldBeTrue)
	test.That(t, s.HasNormals(), test.ShouldBeTrue)

	s.Depth = &DepthData{Width: 2, Height: 2, Confidence: []ConfidenceLevel{ConfidenceHigh}}
	test.That(t, s.Validate(), test.ShouldNotBeNil)
	s.Depth.Confidence = []ConfidenceLevel{ConfidenceLow, ConfidenceMedium, ConfidenceHigh, ConfidenceHigh}
	test.That(t, s.Validate(), test.ShouldBeNil)
	test.That(t, s.Depth.At(0, 1), test.ShouldEqual, ConfidenceHigh)
	test.That(t, s.Depth.At(1, 0), test.ShouldEqual, ConfidenceMedium)
}

func TestRecordingRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		s := &Sample{
			Timestamp:        start.Add(time.Duration(i) * 100 * time.Millisecond),
			Pose:             spatialmath.NewPoseFromPoint(r3.Vector{X: float64(i) * 0.01}),
			Points:           []r3.Vector{{X: 0.1, Y: 0.2, Z: 0.3}},
			Confidence:       []float64{0.9},
			AmbientIntensity: Ptr(1000.0),
		}
		test.That(t, w.Write(s), test.ShouldBeNil)
	}
	buf.WriteString("\n")

	r := NewReader(&buf)
	for i := 0; i < 3; i++ {
		s, err := r.Next()
		test.That(t, err, test.ShouldBeNil)
		test.That(t, s.Timestamp.Equal(start.Add(time.Duration(i)*100*time.Millisecond)), test.ShouldBeTrue)
		test.That(t, s.Pose.Point().X, test.ShouldAlmostEqual, float64(i)*0.01)
		test.That(t, *s.AmbientIntensity, test.ShouldEqual, 1000.0)
		test.That(t, s.Points, test.ShouldResemble, []r3.Vector{{X: 0.1, Y: 0.2, Z: 0.3}})
	}
	_, err := r.Next()
	test.That(t, err, test.ShouldEqual, io.EOF)
}

func TestReaderRejectsBadLines(t *testing.T) {
	r := NewReader(strings.NewReader("{\"points\":[{\"X\":1,\"Y\":0,\"Z\":0}],\"confidence\":[0.1,0.2]}\n"))
	_, err := r.Next()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "line 1")

	r = NewReader(strings.NewReader("not json\n"))
	_, err = r.Next()
	test.That(t, err, test.ShouldNotBeNil)
}
