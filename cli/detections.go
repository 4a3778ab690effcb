package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"

	"go.viam.com/volumescan/accelerator"
	"go.viam.com/volumescan/frame"
)

// recordedDetector replays detector output saved next to a frame recording. A sample gets the
// newest detection recorded at or before its timestamp.
type recordedDetector struct {
	detections []accelerator.Detection
}

func loadDetections(path string) (*recordedDetector, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening detections")
	}
	defer func() {
		_ = f.Close()
	}()

	var dets []accelerator.Detection
	dec := json.NewDecoder(f)
	for {
		var det accelerator.Detection
		err := dec.Decode(&det)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "detection %d", len(dets)+1)
		}
		if det.FrameTime.IsZero() {
			return nil, errors.Errorf("detection %d has no frame_time", len(dets)+1)
		}
		dets = append(dets, det)
	}
	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].FrameTime.Before(dets[j].FrameTime)
	})
	return &recordedDetector{detections: dets}, nil
}

func (d *recordedDetector) Detect(ctx context.Context, s *frame.Sample) (accelerator.Detection, error) {
	if err := ctx.Err(); err != nil {
		return accelerator.Detection{}, err
	}
	i := sort.Search(len(d.detections), func(i int) bool {
		return d.detections[i].FrameTime.After(s.Timestamp)
	})
	if i == 0 {
		return accelerator.Detection{}, errors.Errorf("no detection recorded at or before %s", s.Timestamp)
	}
	return d.detections[i-1], nil
}
