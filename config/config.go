// Package config defines the JSON configuration of a scanning session and converts each section
// into the owning component's configuration.
package config

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/volumescan/accuracy"
	"go.viam.com/volumescan/autocapture"
	"go.viam.com/volumescan/coverage"
	"go.viam.com/volumescan/logging"
	"go.viam.com/volumescan/multiscan"
	"go.viam.com/volumescan/pipeline"
	"go.viam.com/volumescan/quality"
	"go.viam.com/volumescan/utils"
	"go.viam.com/volumescan/volume"
)

// Duration is a time.Duration written as a Go duration string such as "500ms".
type Duration time.Duration

// MarshalJSON writes the duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON parses a duration string.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "duration must be a string")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// JSONSchema describes Duration as a string.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
		Description: "a Go duration such as 500ms or 1m30s",
	}
}

// Config is the whole configuration document.
type Config struct {
	Quality     Quality     `json:"quality"`
	AutoCapture AutoCapture `json:"auto_capture"`
	MultiScan   MultiScan   `json:"multi_scan"`
	Volume      Volume      `json:"volume"`
	LiveVolume  LiveVolume  `json:"live_volume"`
	Coverage    Coverage    `json:"coverage"`
	Accuracy    Accuracy    `json:"accuracy"`
	Session     Session     `json:"session"`
	Calibration Calibration `json:"calibration"`
	Log         Log         `json:"log"`
}

// Quality configures the frame quality meter.
type Quality struct {
	DepthSampleStride    int     `json:"depth_sample_stride" jsonschema:"minimum=1"`
	OverlapCellSize      float64 `json:"overlap_cell_size_m"`
	RevisitCellThreshold int     `json:"revisit_cell_threshold" jsonschema:"minimum=0"`
}

// AutoCapture configures the capture controller.
type AutoCapture struct {
	QualityThreshold float64  `json:"quality_threshold" jsonschema:"minimum=0,maximum=1"`
	MinFrameInterval Duration `json:"min_frame_interval"`
	TargetFrames     int      `json:"target_frames" jsonschema:"minimum=1"`
	MinCoverage      float64  `json:"min_coverage" jsonschema:"minimum=0,maximum=1"`
}

// MultiScan configures multi-angle recording.
type MultiScan struct {
	MinQualityToAdvance float64 `json:"min_quality_to_advance" jsonschema:"minimum=0,maximum=1"`
	MergeMinConfidence  float64 `json:"merge_min_confidence" jsonschema:"minimum=0,maximum=1"`
	DedupThreshold      float64 `json:"dedup_threshold_m"`
}

// Volume configures the final estimator.
type Volume struct {
	MinPoints           int     `json:"min_points" jsonschema:"minimum=4"`
	GridSize            int     `json:"grid_size" jsonschema:"minimum=1"`
	HullShrinkFactor    float64 `json:"hull_shrink_factor"`
	MinHorizontalExtent float64 `json:"min_horizontal_extent_m"`
}

// LiveVolume configures the streaming estimator.
type LiveVolume struct {
	MinPoints          int     `json:"min_points" jsonschema:"minimum=1"`
	FilterByConfidence bool    `json:"filter_by_confidence"`
	MinConfidence      float64 `json:"min_confidence" jsonschema:"minimum=0,maximum=1"`
	SubsampleStride    int     `json:"subsample_stride" jsonschema:"minimum=1"`
	FillFactor         float64 `json:"fill_factor"`
	HistorySize        int     `json:"history_size" jsonschema:"minimum=2"`
	TrendThreshold     float64 `json:"trend_threshold"`
}

// Coverage configures the spatial density analyzer.
type Coverage struct {
	Resolution           int     `json:"resolution" jsonschema:"minimum=1"`
	MinPointsPerCell     int     `json:"min_points_per_cell" jsonschema:"minimum=1"`
	OptimalPointsPerCell int     `json:"optimal_points_per_cell" jsonschema:"minimum=1"`
	ClusterDistance      float64 `json:"cluster_distance_m"`
	DeadZone             float64 `json:"dead_zone_m"`
}

// Accuracy configures the accuracy evaluator.
type Accuracy struct {
	OptimalDistance              float64 `json:"optimal_distance_m"`
	MaxDistance                  float64 `json:"max_distance_m"`
	MinDistanceError             float64 `json:"min_distance_error_percent"`
	MaxDistanceError             float64 `json:"max_distance_error_percent"`
	TargetPoints                 int     `json:"target_points" jsonschema:"minimum=1"`
	PointRecommendThreshold      float64 `json:"point_recommend_threshold"`
	MeshRecommendThreshold       float64 `json:"mesh_recommend_threshold"`
	DistanceRecommendThreshold   float64 `json:"distance_recommend_threshold"`
	ConfidenceRecommendThreshold float64 `json:"confidence_recommend_threshold"`
	MinConfidenceLevel           float64 `json:"min_confidence_level" jsonschema:"minimum=0,maximum=1"`
	MinQualityScore              float64 `json:"min_quality_score" jsonschema:"minimum=0,maximum=1"`
	MaxErrorPercent              float64 `json:"max_error_percent"`
}

// Session configures how a pipeline session accumulates and crops points.
type Session struct {
	MultiAngle             bool     `json:"multi_angle"`
	MaxAccumulatedPoints   int      `json:"max_accumulated_points" jsonschema:"minimum=1"`
	CoverageMargin         float64  `json:"coverage_margin_m"`
	DetectionMinConfidence float64  `json:"detection_min_confidence" jsonschema:"minimum=0,maximum=1"`
	DetectionMargin        float64  `json:"detection_margin_m"`
	DetectionInterval      Duration `json:"detection_interval"`
}

// Calibration locates the persisted calibration record.
type Calibration struct {
	// DatabasePath is the sqlite file holding the calibration; empty keeps calibration in memory.
	DatabasePath string `json:"database_path,omitempty"`
}

// Log configures the process logger.
type Log struct {
	Level logging.Level `json:"level"`
	// File, when set, also writes logs to a size-rotated file.
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb" jsonschema:"minimum=1"`
	MaxBackups int    `json:"max_backups" jsonschema:"minimum=0"`
}

// Default returns the standard configuration.
func Default() Config {
	p := pipeline.DefaultConfig()
	return Config{
		Quality: Quality{
			DepthSampleStride:    p.Quality.DepthSampleStride,
			OverlapCellSize:      p.Quality.OverlapCellSize,
			RevisitCellThreshold: p.Quality.RevisitCellThreshold,
		},
		AutoCapture: AutoCapture{
			QualityThreshold: p.AutoCapture.QualityThreshold,
			MinFrameInterval: Duration(p.AutoCapture.MinFrameInterval),
			TargetFrames:     p.AutoCapture.TargetFrames,
			MinCoverage:      p.AutoCapture.MinCoverage,
		},
		MultiScan: MultiScan{
			MinQualityToAdvance: p.MultiScan.MinQualityToAdvance,
			MergeMinConfidence:  p.MultiScan.MergeMinConfidence,
			DedupThreshold:      p.MultiScan.DedupThreshold,
		},
		Volume: Volume{
			MinPoints:           p.Volume.MinPoints,
			GridSize:            p.Volume.GridSize,
			HullShrinkFactor:    p.Volume.HullShrinkFactor,
			MinHorizontalExtent: p.Volume.MinHorizontalExtent,
		},
		LiveVolume: LiveVolume{
			MinPoints:          p.LiveVolume.MinPoints,
			FilterByConfidence: p.LiveVolume.FilterByConfidence,
			MinConfidence:      p.LiveVolume.MinConfidence,
			SubsampleStride:    p.LiveVolume.SubsampleStride,
			FillFactor:         p.LiveVolume.FillFactor,
			HistorySize:        p.LiveVolume.HistorySize,
			TrendThreshold:     p.LiveVolume.TrendThreshold,
		},
		Coverage: Coverage{
			Resolution:           p.Coverage.Resolution,
			MinPointsPerCell:     p.Coverage.MinPointsPerCell,
			OptimalPointsPerCell: p.Coverage.OptimalPointsPerCell,
			ClusterDistance:      p.Coverage.ClusterDistance,
			DeadZone:             p.Coverage.DeadZone,
		},
		Accuracy: Accuracy{
			OptimalDistance:              p.Accuracy.OptimalDistance,
			MaxDistance:                  p.Accuracy.MaxDistance,
			MinDistanceError:             p.Accuracy.MinDistanceError,
			MaxDistanceError:             p.Accuracy.MaxDistanceError,
			TargetPoints:                 p.Accuracy.TargetPoints,
			PointRecommendThreshold:      p.Accuracy.PointRecommendThreshold,
			MeshRecommendThreshold:       p.Accuracy.MeshRecommendThreshold,
			DistanceRecommendThreshold:   p.Accuracy.DistanceRecommendThreshold,
			ConfidenceRecommendThreshold: p.Accuracy.ConfidenceRecommendThreshold,
			MinConfidenceLevel:           p.Accuracy.MinConfidenceLevel,
			MinQualityScore:              p.Accuracy.MinQualityScore,
			MaxErrorPercent:              p.Accuracy.MaxErrorPercent,
		},
		Session: Session{
			MultiAngle:             p.MultiAngle,
			MaxAccumulatedPoints:   p.MaxAccumulatedPoints,
			CoverageMargin:         p.CoverageMargin,
			DetectionMinConfidence: p.DetectionMinConfidence,
			DetectionMargin:        p.DetectionMargin,
			DetectionInterval:      Duration(200 * time.Millisecond),
		},
		Log: Log{
			Level:      logging.INFO,
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Validate checks every section and returns all problems found.
func (c *Config) Validate() error {
	return multierr.Combine(
		c.Quality.Validate("quality"),
		c.AutoCapture.Validate("auto_capture"),
		c.MultiScan.Validate("multi_scan"),
		c.Volume.Validate("volume"),
		c.LiveVolume.Validate("live_volume"),
		c.Coverage.Validate("coverage"),
		c.Accuracy.Validate("accuracy"),
		c.Session.Validate("session"),
		c.Log.Validate("log"),
	)
}

func atLeast(path, field string, value, lo float64) error {
	if value >= lo {
		return nil
	}
	return utils.NewConfigValidationError(path, errors.Errorf("%q must be at least %g, got %g", field, lo, value))
}

func positive(path, field string, value float64) error {
	if value > 0 && utils.IsFinite(value) {
		return nil
	}
	return utils.NewConfigValidationError(path, errors.Errorf("%q must be positive, got %g", field, value))
}

func inUnit(path, field string, value float64) error {
	if value >= 0 && value <= 1 {
		return nil
	}
	return utils.NewOutOfRangeError(path, field, value, 0, 1)
}

// Validate checks the quality section.
func (q *Quality) Validate(path string) error {
	return multierr.Combine(
		atLeast(path, "depth_sample_stride", float64(q.DepthSampleStride), 1),
		positive(path, "overlap_cell_size_m", q.OverlapCellSize),
		atLeast(path, "revisit_cell_threshold", float64(q.RevisitCellThreshold), 0),
	)
}

// Validate checks the auto capture section.
func (a *AutoCapture) Validate(path string) error {
	return multierr.Combine(
		inUnit(path, "quality_threshold", a.QualityThreshold),
		atLeast(path, "min_frame_interval", float64(a.MinFrameInterval), 0),
		atLeast(path, "target_frames", float64(a.TargetFrames), 1),
		inUnit(path, "min_coverage", a.MinCoverage),
	)
}

// Validate checks the multi scan section.
func (m *MultiScan) Validate(path string) error {
	return multierr.Combine(
		inUnit(path, "min_quality_to_advance", m.MinQualityToAdvance),
		inUnit(path, "merge_min_confidence", m.MergeMinConfidence),
		positive(path, "dedup_threshold_m", m.DedupThreshold),
	)
}

// Validate checks the volume section.
func (v *Volume) Validate(path string) error {
	var err error
	if v.HullShrinkFactor <= 0 || v.HullShrinkFactor > 1 {
		err = utils.NewOutOfRangeError(path, "hull_shrink_factor", v.HullShrinkFactor, 0, 1)
	}
	return multierr.Combine(
		atLeast(path, "min_points", float64(v.MinPoints), 4),
		atLeast(path, "grid_size", float64(v.GridSize), 1),
		err,
		positive(path, "min_horizontal_extent_m", v.MinHorizontalExtent),
	)
}

// Validate checks the live volume section.
func (l *LiveVolume) Validate(path string) error {
	var err error
	if l.FillFactor <= 0 || l.FillFactor > 1 {
		err = utils.NewOutOfRangeError(path, "fill_factor", l.FillFactor, 0, 1)
	}
	return multierr.Combine(
		atLeast(path, "min_points", float64(l.MinPoints), 1),
		inUnit(path, "min_confidence", l.MinConfidence),
		atLeast(path, "subsample_stride", float64(l.SubsampleStride), 1),
		err,
		atLeast(path, "history_size", float64(l.HistorySize), 2),
		positive(path, "trend_threshold", l.TrendThreshold),
	)
}

// Validate checks the coverage section.
func (c *Coverage) Validate(path string) error {
	var err error
	if c.OptimalPointsPerCell < c.MinPointsPerCell {
		err = utils.NewConfigValidationError(path,
			errors.New(`"optimal_points_per_cell" must not be below "min_points_per_cell"`))
	}
	return multierr.Combine(
		atLeast(path, "resolution", float64(c.Resolution), 1),
		atLeast(path, "min_points_per_cell", float64(c.MinPointsPerCell), 1),
		err,
		positive(path, "cluster_distance_m", c.ClusterDistance),
		atLeast(path, "dead_zone_m", c.DeadZone, 0),
	)
}

// Validate checks the accuracy section.
func (a *Accuracy) Validate(path string) error {
	var errs []error
	if a.MaxDistance <= a.OptimalDistance {
		errs = append(errs, utils.NewConfigValidationError(path,
			errors.New(`"max_distance_m" must be greater than "optimal_distance_m"`)))
	}
	if a.MaxDistanceError < a.MinDistanceError {
		errs = append(errs, utils.NewConfigValidationError(path,
			errors.New(`"max_distance_error_percent" must not be below "min_distance_error_percent"`)))
	}
	return multierr.Combine(append(errs,
		positive(path, "optimal_distance_m", a.OptimalDistance),
		atLeast(path, "min_distance_error_percent", a.MinDistanceError, 0),
		atLeast(path, "target_points", float64(a.TargetPoints), 1),
		inUnit(path, "min_confidence_level", a.MinConfidenceLevel),
		inUnit(path, "min_quality_score", a.MinQualityScore),
		positive(path, "max_error_percent", a.MaxErrorPercent),
	)...)
}

// Validate checks the session section.
func (s *Session) Validate(path string) error {
	return multierr.Combine(
		atLeast(path, "max_accumulated_points", float64(s.MaxAccumulatedPoints), 1),
		atLeast(path, "coverage_margin_m", s.CoverageMargin, 0),
		inUnit(path, "detection_min_confidence", s.DetectionMinConfidence),
		atLeast(path, "detection_margin_m", s.DetectionMargin, 0),
		atLeast(path, "detection_interval", float64(s.DetectionInterval), 0),
	)
}

// Validate checks the log section.
func (l *Log) Validate(path string) error {
	if l.File == "" {
		return nil
	}
	return multierr.Combine(
		atLeast(path, "max_size_mb", float64(l.MaxSizeMB), 1),
		atLeast(path, "max_backups", float64(l.MaxBackups), 0),
	)
}

// Pipeline converts the component sections into a session configuration.
func (c *Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		Quality: quality.Config{
			DepthSampleStride:    c.Quality.DepthSampleStride,
			OverlapCellSize:      c.Quality.OverlapCellSize,
			RevisitCellThreshold: c.Quality.RevisitCellThreshold,
		},
		AutoCapture: autocapture.Config{
			QualityThreshold: c.AutoCapture.QualityThreshold,
			MinFrameInterval: time.Duration(c.AutoCapture.MinFrameInterval),
			TargetFrames:     c.AutoCapture.TargetFrames,
			MinCoverage:      c.AutoCapture.MinCoverage,
		},
		MultiScan: multiscan.Config{
			MinQualityToAdvance: c.MultiScan.MinQualityToAdvance,
			MergeMinConfidence:  c.MultiScan.MergeMinConfidence,
			DedupThreshold:      c.MultiScan.DedupThreshold,
		},
		Volume: volume.Config{
			MinPoints:           c.Volume.MinPoints,
			GridSize:            c.Volume.GridSize,
			HullShrinkFactor:    c.Volume.HullShrinkFactor,
			MinHorizontalExtent: c.Volume.MinHorizontalExtent,
		},
		LiveVolume: volume.LiveConfig{
			MinPoints:          c.LiveVolume.MinPoints,
			FilterByConfidence: c.LiveVolume.FilterByConfidence,
			MinConfidence:      c.LiveVolume.MinConfidence,
			SubsampleStride:    c.LiveVolume.SubsampleStride,
			FillFactor:         c.LiveVolume.FillFactor,
			HistorySize:        c.LiveVolume.HistorySize,
			TrendThreshold:     c.LiveVolume.TrendThreshold,
		},
		Coverage: coverage.Config{
			Resolution:           c.Coverage.Resolution,
			MinPointsPerCell:     c.Coverage.MinPointsPerCell,
			OptimalPointsPerCell: c.Coverage.OptimalPointsPerCell,
			ClusterDistance:      c.Coverage.ClusterDistance,
			DeadZone:             c.Coverage.DeadZone,
		},
		Accuracy: accuracy.Config{
			OptimalDistance:              c.Accuracy.OptimalDistance,
			MaxDistance:                  c.Accuracy.MaxDistance,
			MinDistanceError:             c.Accuracy.MinDistanceError,
			MaxDistanceError:             c.Accuracy.MaxDistanceError,
			TargetPoints:                 c.Accuracy.TargetPoints,
			PointRecommendThreshold:      c.Accuracy.PointRecommendThreshold,
			MeshRecommendThreshold:       c.Accuracy.MeshRecommendThreshold,
			DistanceRecommendThreshold:   c.Accuracy.DistanceRecommendThreshold,
			ConfidenceRecommendThreshold: c.Accuracy.ConfidenceRecommendThreshold,
			MinConfidenceLevel:           c.Accuracy.MinConfidenceLevel,
			MinQualityScore:              c.Accuracy.MinQualityScore,
			MaxErrorPercent:              c.Accuracy.MaxErrorPercent,
		},
		MultiAngle:             c.Session.MultiAngle,
		MaxAccumulatedPoints:   c.Session.MaxAccumulatedPoints,
		CoverageMargin:         c.Session.CoverageMargin,
		DetectionMinConfidence: c.Session.DetectionMinConfidence,
		DetectionMargin:        c.Session.DetectionMargin,
	}
}

// Schema returns the JSON schema of the configuration document.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t != reflect.TypeOf(logging.Level(0)) {
				return nil
			}
			return &jsonschema.Schema{
				Type: "string",
				Enum: []interface{}{"debug", "info", "warn", "error"},
			}
		},
	}
	s := r.Reflect(&Config{})
	s.Title = "volumescan configuration"
	return s
}
