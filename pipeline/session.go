// Package pipeline runs the per-frame scan loop: quality scoring, auto capture, point
// accumulation, coverage and live volume feedback, and the final calibrated measurement.
package pipeline

import (
	"context"
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"go.viam.com/volumescan/accelerator"
	"go.viam.com/volumescan/accuracy"
	"go.viam.com/volumescan/autocapture"
	"go.viam.com/volumescan/coverage"
	"go.viam.com/volumescan/frame"
	"go.viam.com/volumescan/logging"
	"go.viam.com/volumescan/material"
	"go.viam.com/volumescan/multiscan"
	"go.viam.com/volumescan/pointcloud"
	"go.viam.com/volumescan/quality"
	"go.viam.com/volumescan/spatialmath"
	"go.viam.com/volumescan/utils"
	"go.viam.com/volumescan/volume"
)

var (
	// ErrNotMultiAngle is returned by RecordAngle when the session records a single point set.
	ErrNotMultiAngle = errors.New("session is not in multi-angle mode")
	// ErrNoPoints means nothing has been captured yet.
	ErrNoPoints = errors.New("no points captured")
)

// FrameReport is what the operator sees after each frame.
type FrameReport struct {
	SessionID         uuid.UUID            `json:"session_id"`
	State             autocapture.State    `json:"state"`
	Quality           quality.Metrics      `json:"quality"`
	Progress          float64              `json:"progress"`
	Triggered         bool                 `json:"triggered"`
	Completed         bool                 `json:"completed"`
	CapturedFrames    int                  `json:"captured_frames"`
	AccumulatedPoints int                  `json:"accumulated_points"`
	Coverage          float64              `json:"coverage"`
	Live              *volume.LiveEstimate `json:"live,omitempty"`
	Guidance          string               `json:"guidance,omitempty"`
	// DetectionSubmitted is true when the frame was handed to the object detector.
	DetectionSubmitted bool `json:"detection_submitted"`
}

// FinalReport is the calibrated measurement of a session.
type FinalReport struct {
	SessionID uuid.UUID         `json:"session_id"`
	Material  string            `json:"material,omitempty"`
	Category  material.Category `json:"category"`
	// Raw is the estimate before calibration.
	Raw         volume.Estimate `json:"raw"`
	Estimate    volume.Estimate `json:"estimate"`
	ScaleFactor float64         `json:"scale_factor"`
	// WeightGrams is nil when the material is unknown.
	WeightGrams      *float64           `json:"weight_grams,omitempty"`
	Accuracy         accuracy.Result    `json:"accuracy"`
	MeetsMinimum     bool               `json:"meets_minimum"`
	CalibrationStale bool               `json:"calibration_stale"`
	Cropped          bool               `json:"cropped"`
	MultiScan        *multiscan.Summary `json:"multi_scan,omitempty"`
	UnderScanned     []coverage.Region  `json:"under_scanned,omitempty"`
}

// Session is one scan of one object. Like the components it drives, a Session is fed from a
// single frame loop and must not be shared between goroutines.
type Session struct {
	pctx   Context
	cfg    Config
	logger logging.Logger
	id     uuid.UUID

	material    material.Material
	hasMaterial bool
	category    material.Category

	meter     *quality.Meter
	capture   *autocapture.Controller
	multi     *multiscan.Manager
	live      *volume.LiveEstimator
	estimator *volume.Estimator
	analyzer  *coverage.Analyzer
	evaluator *accuracy.Evaluator
	gate      *accelerator.Gate

	points       []r3.Vector
	confidence   []float64
	normals      []r3.Vector
	droppedConf  bool
	droppedNorms bool
	distances    []float64
	lastPose     spatialmath.Pose
	lastCoverage coverage.Report
	groundHeight *float64

	events []autocapture.Event
}

// NewSession returns an idle session for the named material. An empty or unknown name scans
// with the unknown category and reports no weight.
func NewSession(pctx Context, cfg Config, materialName string) (*Session, error) {
	if err := pctx.validate(); err != nil {
		return nil, err
	}
	logger := pctx.Logger.Sublogger("session")
	s := &Session{
		pctx:     pctx,
		cfg:      cfg,
		logger:   logger,
		category: material.CategoryUnknown,
	}
	if materialName != "" {
		if m, ok := pctx.Materials.Lookup(materialName); ok {
			s.material, s.hasMaterial, s.category = m, true, m.Category
		} else {
			logger.Warnw("unknown material, weight will not be reported", "material", materialName)
		}
	}

	s.meter = quality.NewMeter(cfg.Quality, logger.Sublogger("quality"))
	s.capture = autocapture.NewController(cfg.AutoCapture, s.meter, pctx.Clock, logger.Sublogger("capture"))
	s.multi = multiscan.NewManager(cfg.MultiScan, s.category, pctx.Clock, logger.Sublogger("multiscan"))
	s.live = volume.NewLiveEstimator(cfg.LiveVolume, logger.Sublogger("live"))
	s.estimator = volume.NewEstimator(cfg.Volume, logger.Sublogger("volume"))
	s.analyzer = coverage.NewAnalyzer(cfg.Coverage, logger.Sublogger("coverage"))
	s.evaluator = accuracy.NewEvaluator(cfg.Accuracy, logger.Sublogger("accuracy"))
	s.id = uuid.New()
	return s, nil
}

// SetAccelerator attaches an object detector gate. Frames are offered to it as they arrive and
// its latest detection crops the final point set.
func (s *Session) SetAccelerator(g *accelerator.Gate) {
	s.gate = g
}

// SetGroundHeight supplies the Y of a detected ground plane.
func (s *Session) SetGroundHeight(y float64) {
	if utils.IsFinite(y) {
		s.groundHeight = &y
	}
}

// ID returns the current session ID. It changes on every Start.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Material returns the resolved material, if any.
func (s *Session) Material() (material.Material, bool) {
	return s.material, s.hasMaterial
}

// Start clears captured data and begins auto capture.
func (s *Session) Start() {
	s.clearPoints()
	s.distances = nil
	s.live.Reset()
	s.lastCoverage = coverage.Report{}
	s.events = nil
	s.capture.Reset()
	s.capture.Start()
	if s.cfg.MultiAngle {
		s.id = s.multi.StartMultiScan()
	} else {
		s.id = uuid.New()
	}
	s.logger.Infow("scan started", "session", s.id, "material", s.material.Name, "multi_angle", s.cfg.MultiAngle)
}

// Stop pauses auto capture and keeps everything captured so far.
func (s *Session) Stop() {
	s.capture.Stop()
}

// ProcessFrame runs one frame through the loop. It only fails on malformed samples.
func (s *Session) ProcessFrame(ctx context.Context, sample *frame.Sample) (FrameReport, error) {
	if err := sample.Validate(); err != nil {
		return FrameReport{}, err
	}

	res := s.capture.ProcessFrame(sample)
	metrics := res.Quality
	if !res.Evaluated {
		metrics = s.meter.Evaluate(sample)
	}
	report := FrameReport{
		SessionID: s.id,
		State:     res.State,
		Quality:   metrics,
		Progress:  s.capture.Progress(),
		Triggered: res.Triggered,
		Completed: res.Completed,
	}
	if s.gate != nil {
		report.DetectionSubmitted = s.gate.Submit(ctx, sample)
	}

	if res.Triggered {
		s.accumulate(sample)
		s.updateCoverage()
		if live, err := s.live.Update(s.points, s.confidence); err == nil {
			report.Live = &live
		} else {
			s.logger.Debugw("no live volume yet", "error", err)
		}
		report.Progress = s.capture.Progress()
	}
	s.events = append(s.events, res.Events...)

	report.CapturedFrames = s.capture.Snapshot().CapturedFrames
	report.AccumulatedPoints = len(s.points)
	report.Coverage = s.lastCoverage.Coverage
	report.Guidance = s.guidance()
	return report, nil
}

// DrainEvents returns and clears the capture events produced since the last call.
func (s *Session) DrainEvents() []autocapture.Event {
	events := s.events
	s.events = nil
	return events
}

// RecordAngle stores the points captured since the last angle as the next required angle and
// clears the buffer for the next one.
func (s *Session) RecordAngle() (multiscan.ScanResult, error) {
	if !s.cfg.MultiAngle {
		return multiscan.ScanResult{}, ErrNotMultiAngle
	}
	if len(s.points) == 0 {
		return multiscan.ScanResult{}, ErrNoPoints
	}
	result, err := s.multi.RecordScan(s.points, s.normals, s.confidence, s.lastPose)
	if err != nil {
		return multiscan.ScanResult{}, err
	}
	s.clearPoints()
	s.live.Reset()
	return result, nil
}

// MultiScan exposes the angle manager.
func (s *Session) MultiScan() *multiscan.Manager {
	return s.multi
}

// Finalize stops capture and produces the calibrated measurement.
func (s *Session) Finalize(ctx context.Context) (FinalReport, error) {
	s.capture.Stop()
	report := FinalReport{
		SessionID: s.id,
		Material:  s.material.Name,
		Category:  s.category,
	}

	points, normals, confidence := s.finalPoints()
	if len(points) == 0 {
		return FinalReport{}, ErrNoPoints
	}
	if s.gate != nil {
		if keep, ok := s.crop(points); ok {
			points = pointcloud.Select(points, keep)
			normals = pointcloud.Select(normals, keep)
			confidence = pointcloud.Select(confidence, keep)
			report.Cropped = true
		}
	}
	if err := ctx.Err(); err != nil {
		return FinalReport{}, err
	}

	raw, err := s.estimator.Estimate(volume.Input{
		Points:       points,
		Normals:      normals,
		Category:     s.category,
		GroundHeight: s.groundHeight,
	})
	if err != nil {
		return FinalReport{}, errors.Wrap(err, "estimating volume")
	}
	report.Raw = raw
	report.ScaleFactor = s.pctx.Calibration.ScaleFactor()
	report.Estimate = raw.Scaled(report.ScaleFactor)
	report.CalibrationStale = s.pctx.Calibration.NeedsRefresh()
	if s.hasMaterial {
		weight := s.material.WeightGrams(report.Estimate.VolumeCM3)
		report.WeightGrams = &weight
	}

	in := s.accuracyInput(points, confidence)
	if bounds, ok := pointcloud.Bounds(points); ok {
		if cov, err := s.analyzer.Analyze(points, bounds.Expand(s.cfg.CoverageMargin), s.lastPose.Point()); err == nil {
			in.Coverage = cov.Coverage
			report.UnderScanned = cov.Regions
		}
	}
	report.Accuracy = s.evaluator.Evaluate(in)
	report.MeetsMinimum = s.evaluator.MeetsMinimumQuality(report.Accuracy)

	if s.cfg.MultiAngle {
		summary, err := s.multi.Summary()
		if err != nil {
			return FinalReport{}, err
		}
		report.MultiScan = &summary
	}

	s.logger.Infow("scan finalized",
		"session", s.id,
		"method", report.Estimate.Method,
		"volume_cm3", report.Estimate.VolumeCM3,
		"error_percent", report.Accuracy.ErrorPercent,
		"meets_minimum", report.MeetsMinimum)
	return report, nil
}

// accumulate adds a captured sample's points, corrected for depth bias along each camera ray.
func (s *Session) accumulate(sample *frame.Sample) {
	camera := sample.Pose.Point()
	s.lastPose = sample.Pose

	hasConf := sample.HasConfidence()
	hasNormals := sample.HasNormals()
	if !hasConf && !s.droppedConf {
		s.droppedConf = true
		s.confidence = nil
	}
	if !hasNormals && !s.droppedNorms {
		s.droppedNorms = true
		s.normals = nil
	}

	added := 0
	for i, p := range sample.Points {
		if !pointcloud.IsFinite(p) {
			continue
		}
		s.points = append(s.points, s.correct(camera, p))
		if !s.droppedConf {
			s.confidence = append(s.confidence, sample.Confidence[i])
		}
		if !s.droppedNorms {
			s.normals = append(s.normals, sample.Normals[i])
		}
		added++
	}
	if centroid, ok := pointcloud.Centroid(sample.Points); ok {
		if d := centroid.Distance(camera); utils.IsFinite(d) {
			s.distances = append(s.distances, d)
		}
	}

	if limit := s.cfg.MaxAccumulatedPoints; limit > 0 && len(s.points) > limit {
		excess := len(s.points) - limit
		s.points = append([]r3.Vector(nil), s.points[excess:]...)
		if !s.droppedConf {
			s.confidence = append([]float64(nil), s.confidence[excess:]...)
		}
		if !s.droppedNorms {
			s.normals = append([]r3.Vector(nil), s.normals[excess:]...)
		}
	}
	s.logger.Debugw("points accumulated", "added", added, "total", len(s.points))
}

func (s *Session) correct(camera, p r3.Vector) r3.Vector {
	ray := p.Sub(camera)
	d := ray.Norm()
	if d == 0 {
		return p
	}
	corrected := s.pctx.Calibration.ApplyDepthBiasCorrection(d)
	if !utils.IsFinite(corrected) || corrected <= 0 {
		return p
	}
	return camera.Add(ray.Mul(corrected / d))
}

func (s *Session) updateCoverage() {
	bounds, ok := pointcloud.Bounds(s.points)
	if !ok {
		return
	}
	report, err := s.analyzer.Analyze(s.points, bounds.Expand(s.cfg.CoverageMargin), s.lastPose.Point())
	if err != nil {
		s.logger.Debugw("coverage unavailable", "error", err)
		return
	}
	s.lastCoverage = report
	s.capture.SetCoverage(report.Coverage)
}

func (s *Session) guidance() string {
	if s.cfg.MultiAngle {
		return s.multi.Guidance()
	}
	if len(s.lastCoverage.Regions) > 0 {
		return fmt.Sprintf("Scan more from the %s", s.lastCoverage.Regions[0].Direction)
	}
	return ""
}

// finalPoints returns the point set to measure with its parallel normals and confidence: the
// merged angles in multi-angle mode once any angle is recorded, otherwise the
// confidence-filtered, deduplicated capture buffer.
func (s *Session) finalPoints() ([]r3.Vector, []r3.Vector, []float64) {
	if s.cfg.MultiAngle && len(s.multi.Results()) > 0 {
		return s.multi.MergeScans()
	}
	keep := pointcloud.ConfidentIndices(s.points, s.confidence, s.cfg.MultiScan.MergeMinConfidence)
	points := pointcloud.Select(s.points, keep)
	normals := pointcloud.Select(s.normals, keep)
	confidence := pointcloud.Select(s.confidence, keep)

	keep = pointcloud.DedupIndices(points, s.cfg.MultiScan.DedupThreshold)
	return pointcloud.Select(points, keep), pointcloud.Select(normals, keep), pointcloud.Select(confidence, keep)
}

// crop returns the indices of the points inside the latest confident detection when enough of
// them remain.
func (s *Session) crop(points []r3.Vector) ([]int, bool) {
	det, ok := s.gate.Latest()
	if !ok || det.Confidence < s.cfg.DetectionMinConfidence {
		return nil, false
	}
	keep := pointcloud.IndicesInside(points, det.Box.Expand(s.cfg.DetectionMargin))
	if len(keep) < s.cfg.Volume.MinPoints || len(keep) < 4 {
		s.logger.Debugw("detection crop left too few points", "points", len(keep))
		return nil, false
	}
	return keep, true
}

func (s *Session) accuracyInput(points []r3.Vector, confidence []float64) accuracy.Input {
	in := accuracy.Input{
		PointCount:     len(points),
		MeanConfidence: 0.5,
		Category:       s.category,
		Calibration:    accuracy.CalibrationFrom(s.pctx.Calibration),
		DistanceM:      s.cfg.Accuracy.MaxDistance,
	}
	if mean, ok := accuracy.MeanConfidence(confidence); ok {
		in.MeanConfidence = mean
	}
	if len(s.distances) > 0 {
		in.DistanceM = stat.Mean(s.distances, nil)
	}
	if bounds, ok := pointcloud.Bounds(points); ok {
		if area := bounds.SurfaceArea() * 1e4; area > 0 && utils.IsFinite(area) {
			in.PointDensity = float64(len(points)) / area
		}
	}
	return in
}

func (s *Session) clearPoints() {
	s.points = nil
	s.confidence = nil
	s.normals = nil
	s.droppedConf = false
	s.droppedNorms = false
}
