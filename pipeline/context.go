package pipeline

import (
	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/volumescan/accuracy"
	"go.viam.com/volumescan/autocapture"
	"go.viam.com/volumescan/calibration"
	"go.viam.com/volumescan/coverage"
	"go.viam.com/volumescan/logging"
	"go.viam.com/volumescan/material"
	"go.viam.com/volumescan/multiscan"
	"go.viam.com/volumescan/quality"
	"go.viam.com/volumescan/volume"
)

// Context carries the collaborators shared by every session. It is built once by the caller.
type Context struct {
	Logger      logging.Logger
	Clock       clock.Clock
	Calibration *calibration.Store
	Materials   *material.Table
}

// NewContext builds a context with an uncalibrated store and the built-in material table.
func NewContext(clk clock.Clock, logger logging.Logger) (Context, error) {
	if clk == nil {
		clk = clock.New()
	}
	store, err := calibration.NewStore(clk, logger.Sublogger("calibration"))
	if err != nil {
		return Context{}, err
	}
	materials, err := material.DefaultTable()
	if err != nil {
		return Context{}, err
	}
	return Context{Logger: logger, Clock: clk, Calibration: store, Materials: materials}, nil
}

func (c Context) validate() error {
	switch {
	case c.Logger == nil:
		return errors.New("pipeline context has no logger")
	case c.Calibration == nil:
		return errors.New("pipeline context has no calibration store")
	case c.Materials == nil:
		return errors.New("pipeline context has no material table")
	}
	return nil
}

// Config configures every component a session drives.
type Config struct {
	Quality     quality.Config
	AutoCapture autocapture.Config
	MultiScan   multiscan.Config
	Volume      volume.Config
	LiveVolume  volume.LiveConfig
	Coverage    coverage.Config
	Accuracy    accuracy.Config

	// MultiAngle records captured points per viewing angle instead of as one set.
	MultiAngle bool
	// MaxAccumulatedPoints caps the captured point buffer; the oldest points are dropped first.
	MaxAccumulatedPoints int
	// CoverageMargin pads the captured points' bounds before coverage analysis, in meters.
	CoverageMargin float64
	// DetectionMinConfidence is the lowest detector confidence used to crop the final points.
	DetectionMinConfidence float64
	// DetectionMargin pads the detected box before cropping, in meters.
	DetectionMargin float64
}

// DefaultConfig returns the standard configuration of every component.
func DefaultConfig() Config {
	return Config{
		Quality:                quality.DefaultConfig(),
		AutoCapture:            autocapture.DefaultConfig(),
		MultiScan:              multiscan.DefaultConfig(),
		Volume:                 volume.DefaultConfig(),
		LiveVolume:             volume.DefaultLiveConfig(),
		Coverage:               coverage.DefaultConfig(),
		Accuracy:               accuracy.DefaultConfig(),
		MaxAccumulatedPoints:   60000,
		CoverageMargin:         0.01,
		DetectionMinConfidence: 0.5,
		DetectionMargin:        0.02,
	}
}
