// Package accelerator throttles an optional object detector that runs next to the frame loop.
//
// The detector is too slow to run on every frame. A Gate admits at most one detection at a time
// and no more often than a minimum interval; a frame that cannot be admitted is simply skipped,
// so the frame loop never waits on the detector.
package accelerator

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"go.viam.com/volumescan/frame"
	"go.viam.com/volumescan/logging"
	"go.viam.com/volumescan/pointcloud"
)

// DefaultMinInterval is the shortest time between two admitted detections.
const DefaultMinInterval = 200 * time.Millisecond

// Detection is the detector's estimate of where the object is.
type Detection struct {
	Box        pointcloud.BoundingBox `json:"box"`
	Confidence float64                `json:"confidence"`
	// FrameTime is the timestamp of the sample that was analyzed.
	FrameTime time.Time `json:"frame_time"`
}

// A Detector locates the object in a sample.
type Detector interface {
	Detect(ctx context.Context, s *frame.Sample) (Detection, error)
}

// DetectorFunc adapts a function to a Detector.
type DetectorFunc func(ctx context.Context, s *frame.Sample) (Detection, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, s *frame.Sample) (Detection, error) {
	return f(ctx, s)
}

// Gate admits detections. It is safe for concurrent use.
type Gate struct {
	detector Detector
	clock    clock.Clock
	logger   logging.Logger
	inFlight *semaphore.Weighted
	limiter  *rate.Limiter

	mu       sync.Mutex
	latest   *Detection
	closed   bool
	cancels  map[int]context.CancelFunc
	nextID   int
	workers  sync.WaitGroup
	failures int
}

// NewGate returns a gate in front of detector. A non-positive interval uses DefaultMinInterval.
func NewGate(detector Detector, minInterval time.Duration, clk clock.Clock, logger logging.Logger) *Gate {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Gate{
		detector: detector,
		clock:    clk,
		logger:   logger,
		inFlight: semaphore.NewWeighted(1),
		limiter:  rate.NewLimiter(rate.Every(minInterval), 1),
		cancels:  map[int]context.CancelFunc{},
	}
}

// Submit starts a detection on s in the background and reports true, or reports false at once
// when a detection is already running, the last one was admitted too recently, the gate is
// closed or ctx is done. The detection runs under ctx.
func (g *Gate) Submit(ctx context.Context, s *frame.Sample) bool {
	if ctx.Err() != nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	if !g.inFlight.TryAcquire(1) {
		return false
	}
	if !g.limiter.AllowN(g.clock.Now(), 1) {
		g.inFlight.Release(1)
		return false
	}

	detectCtx, cancel := context.WithCancel(ctx)
	id := g.nextID
	g.nextID++
	g.cancels[id] = cancel
	g.workers.Add(1)
	go g.run(detectCtx, id, s)
	return true
}

func (g *Gate) run(ctx context.Context, id int, s *frame.Sample) {
	defer g.workers.Done()
	det, err := g.detector.Detect(ctx, s)

	g.mu.Lock()
	g.cancels[id]()
	delete(g.cancels, id)
	switch {
	case err != nil:
		g.failures++
	case ctx.Err() == nil:
		if det.FrameTime.IsZero() {
			det.FrameTime = s.Timestamp
		}
		g.latest = &det
	}
	g.mu.Unlock()
	g.inFlight.Release(1)

	if err != nil && !errors.Is(err, context.Canceled) {
		g.logger.Warnw("detection failed", "error", err)
		return
	}
	g.logger.Debugw("detection finished", "confidence", det.Confidence)
}

// Latest returns the newest completed detection.
func (g *Gate) Latest() (Detection, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.latest == nil {
		return Detection{}, false
	}
	return *g.latest, true
}

// Failures returns how many detections have returned an error.
func (g *Gate) Failures() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures
}

// Wait blocks until no detection is running.
func (g *Gate) Wait() {
	g.workers.Wait()
}

// Close cancels any running detection, waits for it to return and rejects later submissions.
func (g *Gate) Close() error {
	g.mu.Lock()
	g.closed = true
	for _, cancel := range g.cancels {
		cancel()
	}
	g.mu.Unlock()
	g.workers.Wait()
	return nil
}
