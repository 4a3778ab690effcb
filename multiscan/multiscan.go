// Package multiscan orchestrates a scan taken from several required viewing angles and merges
// the per-angle point sets into one.
package multiscan

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/volumescan/logging"
	"go.viam.com/volumescan/material"
	"go.viam.com/volumescan/pointcloud"
	"go.viam.com/volumescan/spatialmath"
	"go.viam.com/volumescan/utils"
)

// ErrScanComplete is returned by RecordScan once every required angle has been recorded.
var ErrScanComplete = errors.New("all required angles have been recorded")

// Config tunes progression and merging.
type Config struct {
	// MinQualityToAdvance is the quality the previous angle needs before the next may start.
	MinQualityToAdvance float64
	// MergeMinConfidence drops points below this confidence when merging.
	MergeMinConfidence float64
	// DedupThreshold is the distance in meters under which merged points are duplicates.
	DedupThreshold float64
}

// DefaultConfig returns the standard multi-angle configuration.
func DefaultConfig() Config {
	return Config{
		MinQualityToAdvance: 0.6,
		MergeMinConfidence:  0.5,
		DedupThreshold:      0.005,
	}
}

// ScanResult is one recorded angle. It is never modified after it is appended.
type ScanResult struct {
	Angle          Angle       `json:"angle"`
	Points         []r3.Vector `json:"points"`
	Normals        []r3.Vector `json:"normals,omitempty"`
	Confidence     []float64   `json:"confidence,omitempty"`
	CameraPosition r3.Vector   `json:"camera_position"`
	Quality        float64     `json:"quality"`
	Timestamp      time.Time   `json:"timestamp"`
}

// Summary describes a session's recorded angles.
type Summary struct {
	SessionID     uuid.UUID `json:"session_id"`
	Recorded      int       `json:"recorded"`
	Required      int       `json:"required"`
	Complete      bool      `json:"complete"`
	TotalPoints   int       `json:"total_points"`
	MeanQuality   float64   `json:"mean_quality"`
	MedianQuality float64   `json:"median_quality"`
	MinQuality    float64   `json:"min_quality"`
}

// Manager sequences the required angles of one material category.
type Manager struct {
	cfg    Config
	angles []Angle
	clock  clock.Clock
	logger logging.Logger

	sessionID uuid.UUID
	results   []ScanResult
	index     int
	complete  bool
}

// NewManager returns a manager for the category's angle policy. Call StartMultiScan to begin.
func NewManager(cfg Config, category material.Category, clk clock.Clock, logger logging.Logger) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{
		cfg:    cfg,
		angles: RequiredAngles(category),
		clock:  clk,
		logger: logger,
	}
}

// StartMultiScan clears every recorded result and begins a new session.
func (m *Manager) StartMultiScan() uuid.UUID {
	m.sessionID = uuid.New()
	m.results = nil
	m.index = 0
	m.complete = false
	m.logger.Infow("multi-angle scan started", "session", m.sessionID, "angles", Labels(m.angles))
	return m.sessionID
}

// SessionID returns the current session's id.
func (m *Manager) SessionID() uuid.UUID {
	return m.sessionID
}

// RequiredAngles returns the angles this manager sequences.
func (m *Manager) RequiredAngles() []Angle {
	return append([]Angle(nil), m.angles...)
}

// Complete reports whether every required angle has been recorded.
func (m *Manager) Complete() bool {
	return m.complete
}

// NextAngle returns the next angle to record, or false when the scan is complete.
func (m *Manager) NextAngle() (Angle, bool) {
	if m.index >= len(m.angles) {
		return "", false
	}
	return m.angles[m.index], true
}

// Results returns the recorded angles in order.
func (m *Manager) Results() []ScanResult {
	return append([]ScanResult(nil), m.results...)
}

// RecordScan stores the point set captured for the next required angle. Confidence and normals
// are optional and dropped when they do not line up with the points.
func (m *Manager) RecordScan(points, normals []r3.Vector, confidence []float64, pose spatialmath.Pose) (ScanResult, error) {
	if m.index >= len(m.angles) {
		return ScanResult{}, ErrScanComplete
	}
	if len(normals) != len(points) {
		normals = nil
	}
	if len(confidence) != len(points) {
		confidence = nil
	}

	result := ScanResult{
		Angle:          m.angles[m.index],
		Points:         append([]r3.Vector(nil), points...),
		Normals:        append([]r3.Vector(nil), normals...),
		Confidence:     append([]float64(nil), confidence...),
		CameraPosition: pose.Point(),
		Quality:        ScanQuality(points, confidence),
		Timestamp:      m.clock.Now(),
	}
	m.results = append(m.results, result)
	m.index++

	m.logger.Infow("angle recorded",
		"angle", result.Angle,
		"points", len(points),
		"quality", result.Quality,
		"recorded", m.index,
		"required", len(m.angles))

	if m.index == len(m.angles) {
		m.complete = true
		m.logger.Infow("multi-angle scan complete", "session", m.sessionID)
	}
	return result, nil
}

// ShouldAllowNextScan reports whether the previous angle was good enough to move on.
func (m *Manager) ShouldAllowNextScan() bool {
	if m.complete {
		return false
	}
	if len(m.results) == 0 {
		return true
	}
	return m.results[len(m.results)-1].Quality >= m.cfg.MinQualityToAdvance
}

// Guidance returns operator text naming the next angle.
func (m *Manager) Guidance() string {
	next, ok := m.NextAngle()
	if !ok {
		return "All angles captured, ready to measure"
	}
	if len(m.results) > 0 && !m.ShouldAllowNextScan() {
		prev := m.results[len(m.results)-1].Angle
		return fmt.Sprintf("Rescan from %s, the last scan was too sparse", prev.Label())
	}
	return fmt.Sprintf("Scan %d of %d: position the camera %s", m.index+1, len(m.angles), next.Label())
}

// MergeScans combines every recorded angle, dropping low-confidence points and collapsing points
// closer than the dedup threshold. No two returned points are closer than the threshold. Normals
// and confidence come back parallel to the points when every angle carried them, nil otherwise.
func (m *Manager) MergeScans() (points, normals []r3.Vector, confidence []float64) {
	withNormals, withConf := true, true
	for _, r := range m.results {
		keep := pointcloud.ConfidentIndices(r.Points, r.Confidence, m.cfg.MergeMinConfidence)
		points = append(points, pointcloud.Select(r.Points, keep)...)
		withNormals = withNormals && len(r.Normals) == len(r.Points)
		withConf = withConf && len(r.Confidence) == len(r.Points)
		if withNormals {
			normals = append(normals, pointcloud.Select(r.Normals, keep)...)
		}
		if withConf {
			confidence = append(confidence, pointcloud.Select(r.Confidence, keep)...)
		}
	}
	if !withNormals {
		normals = nil
	}
	if !withConf {
		confidence = nil
	}

	keep := pointcloud.DedupIndices(points, m.cfg.DedupThreshold)
	m.logger.Debugw("merged scans", "input", len(points), "output", len(keep))
	return pointcloud.Select(points, keep), pointcloud.Select(normals, keep), pointcloud.Select(confidence, keep)
}

// Summary reports counts and quality statistics for the current session.
func (m *Manager) Summary() (Summary, error) {
	s := Summary{
		SessionID: m.sessionID,
		Recorded:  len(m.results),
		Required:  len(m.angles),
		Complete:  m.complete,
	}
	if len(m.results) == 0 {
		return s, nil
	}
	qualities := make(stats.Float64Data, 0, len(m.results))
	for _, r := range m.results {
		s.TotalPoints += len(r.Points)
		qualities = append(qualities, r.Quality)
	}
	var errMean, errMedian, errMin error
	s.MeanQuality, errMean = qualities.Mean()
	s.MedianQuality, errMedian = qualities.Median()
	s.MinQuality, errMin = qualities.Min()
	if err := multierr.Combine(errMean, errMedian, errMin); err != nil {
		return Summary{}, errors.Wrap(err, "summarizing scan quality")
	}
	return s, nil
}

// ScanQuality scores one angle's point set from its density, confidence and spatial fill. Missing
// confidence counts as 0.5.
func ScanQuality(points []r3.Vector, confidence []float64) float64 {
	count := float64(len(points))
	countScore := utils.Clamp01(count / 1000)

	avgConfidence := 0.5
	if len(confidence) > 0 && len(confidence) == len(points) {
		var sum float64
		var n int
		for _, c := range confidence {
			if utils.IsFinite(c) {
				sum += c
				n++
			}
		}
		if n > 0 {
			avgConfidence = utils.Clamp01(sum / float64(n))
		}
	}

	var coverageProxy float64
	if box, ok := pointcloud.Bounds(points); ok {
		if vol := box.Volume(); vol > 0 && utils.IsFinite(vol) {
			coverageProxy = utils.Clamp01(count / vol / 100)
		}
	}

	return 0.3*countScore + 0.4*avgConfidence + 0.3*coverageProxy
}
