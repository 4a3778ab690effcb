// Package autocapture implements the frame-triggered capture state machine that decides when a
// frame is good enough to keep and when a scan has gathered enough of them.
package autocapture

import (
	"time"

	"github.com/benbjohnson/clock"

	"go.viam.com/volumescan/frame"
	"go.viam.com/volumescan/logging"
	"go.viam.com/volumescan/quality"
	"go.viam.com/volumescan/utils"
)

// State is the controller's lifecycle state.
type State int

// Controller states. Idle -> Active -> Completed; Stop and Reset return to Idle.
const (
	StateIdle State = iota
	StateActive
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Config controls when frames are captured and when a scan completes.
type Config struct {
	QualityThreshold float64
	MinFrameInterval time.Duration
	TargetFrames     int
	MinCoverage      float64
}

// DefaultConfig returns the standard capture configuration.
func DefaultConfig() Config {
	return Config{
		QualityThreshold: 0.7,
		MinFrameInterval: 500 * time.Millisecond,
		TargetFrames:     30,
		MinCoverage:      0.7,
	}
}

// CaptureState is a snapshot of the controller's counters.
type CaptureState struct {
	Enabled        bool      `json:"enabled"`
	State          State     `json:"state"`
	CapturedFrames int       `json:"captured_frames"`
	Coverage       float64   `json:"coverage"`
	LastCapture    time.Time `json:"last_capture"`
	TargetFrames   int       `json:"target_frames"`
}

// EventType distinguishes one-shot events.
type EventType int

// One-shot event kinds.
const (
	EventCaptureTriggered EventType = iota
	EventCompleted
)

func (e EventType) String() string {
	if e == EventCompleted {
		return "completed"
	}
	return "capture_triggered"
}

// Event is a one-shot notification produced by ProcessFrame.
type Event struct {
	Type       EventType `json:"type"`
	Time       time.Time `json:"time"`
	FrameCount int       `json:"frame_count"`
}

// FrameResult is everything ProcessFrame reports for one frame. When Evaluated is false the
// controller was not active and every other field except State is zero.
type FrameResult struct {
	State     State
	Evaluated bool
	Quality   quality.Metrics
	Progress  float64
	Triggered bool
	Completed bool
	Events    []Event
}

// Controller is the capture state machine. Like the quality meter it drives, it is meant to be
// called from a single frame loop.
type Controller struct {
	cfg    Config
	meter  *quality.Meter
	clock  clock.Clock
	logger logging.Logger

	state       CaptureState
	hasCaptured bool
}

// NewController returns an idle controller. The meter's motion and overlap memory is owned by
// the controller from here on.
func NewController(cfg Config, meter *quality.Meter, clk clock.Clock, logger logging.Logger) *Controller {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.TargetFrames < 1 {
		cfg.TargetFrames = 1
	}
	c := &Controller{
		cfg:    cfg,
		meter:  meter,
		clock:  clk,
		logger: logger,
	}
	c.state = CaptureState{TargetFrames: cfg.TargetFrames}
	return c
}

// Start begins a new capture run from Idle or Completed. It is a no-op while Active.
func (c *Controller) Start() {
	if c.state.State == StateActive {
		return
	}
	c.state = CaptureState{
		Enabled:      true,
		State:        StateActive,
		TargetFrames: c.cfg.TargetFrames,
	}
	c.hasCaptured = false
	c.meter.ResetCoverage()
	c.logger.Infow("auto capture started", "target_frames", c.cfg.TargetFrames)
}

// Stop returns to Idle without completing. Counters are kept until the next Start or Reset.
func (c *Controller) Stop() {
	if c.state.State != StateActive {
		return
	}
	c.state.State = StateIdle
	c.state.Enabled = false
	c.logger.Infow("auto capture stopped", "captured_frames", c.state.CapturedFrames)
}

// Reset returns to Idle from any state and zeroes every counter.
func (c *Controller) Reset() {
	c.state = CaptureState{TargetFrames: c.cfg.TargetFrames}
	c.hasCaptured = false
	c.logger.Debug("auto capture reset")
}

// SetCoverage records a coverage score computed elsewhere. Values are clamped into [0, 1] and
// non-finite values are ignored.
func (c *Controller) SetCoverage(coverage float64) {
	if !utils.IsFinite(coverage) {
		return
	}
	c.state.Coverage = utils.Clamp01(coverage)
}

// Snapshot returns a copy of the current counters.
func (c *Controller) Snapshot() CaptureState {
	return c.state
}

// Progress returns the blended frame-count and coverage progress in [0, 1].
func (c *Controller) Progress() float64 {
	frames := float64(c.state.CapturedFrames) / float64(c.cfg.TargetFrames)
	return utils.Clamp01(frames*0.7 + c.state.Coverage*0.3)
}

// ProcessFrame evaluates one frame. It does nothing unless the controller is Active.
func (c *Controller) ProcessFrame(s *frame.Sample) FrameResult {
	if c.state.State != StateActive {
		return FrameResult{State: c.state.State}
	}

	now := s.Timestamp
	if now.IsZero() {
		now = c.clock.Now()
	}

	result := FrameResult{
		Evaluated: true,
		Quality:   c.meter.Evaluate(s),
	}

	if c.shouldTrigger(result.Quality.Overall, now) {
		c.state.CapturedFrames++
		c.state.LastCapture = now
		c.hasCaptured = true
		result.Triggered = true
		result.Events = append(result.Events, Event{
			Type:       EventCaptureTriggered,
			Time:       now,
			FrameCount: c.state.CapturedFrames,
		})
		c.logger.Debugw("frame captured", "count", c.state.CapturedFrames, "quality", result.Quality.Overall)
	}

	result.Progress = c.Progress()

	if c.readyToComplete() {
		c.state.State = StateCompleted
		c.state.Enabled = false
		result.Completed = true
		result.Events = append(result.Events, Event{
			Type:       EventCompleted,
			Time:       now,
			FrameCount: c.state.CapturedFrames,
		})
		c.logger.Infow("auto capture completed",
			"captured_frames", c.state.CapturedFrames,
			"coverage", c.state.Coverage)
	}

	result.State = c.state.State
	return result
}

func (c *Controller) shouldTrigger(score float64, now time.Time) bool {
	if !utils.IsFinite(score) || score < c.cfg.QualityThreshold {
		return false
	}
	if !c.hasCaptured {
		return true
	}
	return now.Sub(c.state.LastCapture) >= c.cfg.MinFrameInterval
}

func (c *Controller) readyToComplete() bool {
	frames := float64(c.state.CapturedFrames) / float64(c.cfg.TargetFrames)
	return frames >= 1.0 && c.state.Coverage >= c.cfg.MinCoverage
}
