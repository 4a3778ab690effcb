package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/volumescan/accelerator"
	"go.viam.com/volumescan/frame"
	"go.viam.com/volumescan/material"
	"go.viam.com/volumescan/multiscan"
	"go.viam.com/volumescan/pipeline"
)

// ReplayAction runs every frame of a recording through one session and prints the final report.
func ReplayAction(c *cli.Context) (err error) {
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, e.Close())
	}()

	materials, err := material.DefaultTable()
	if err != nil {
		return err
	}
	pctx := pipeline.Context{
		Logger:      e.logger.Sublogger("pipeline"),
		Clock:       e.clock,
		Calibration: e.calibration,
		Materials:   materials,
	}
	cfg := e.cfg.Pipeline()
	session, err := pipeline.NewSession(pctx, cfg, c.String(flagMaterial))
	if err != nil {
		return err
	}
	if c.IsSet(flagGround) {
		session.SetGroundHeight(c.Float64(flagGround))
	}
	var gate *accelerator.Gate
	if path := c.Path(flagDetections); path != "" {
		var detector *recordedDetector
		detector, err = loadDetections(path)
		if err != nil {
			return err
		}
		gate = accelerator.NewGate(detector, time.Duration(e.cfg.Session.DetectionInterval), e.clock, e.logger.Sublogger("accelerator"))
		defer func() {
			err = multierr.Combine(err, gate.Close())
		}()
		session.SetAccelerator(gate)
	}

	//nolint:gosec
	f, err := os.Open(c.Path(flagFrames))
	if err != nil {
		return errors.Wrap(err, "opening recording")
	}
	defer func() {
		_ = f.Close()
	}()

	session.Start()
	reader := frame.NewReader(f)
	angleEvery := c.Int(flagAngleEvery)
	frames := 0
	for {
		if err := c.Context.Err(); err != nil {
			return err
		}
		sample, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		frames++
		report, err := session.ProcessFrame(c.Context, sample)
		if err != nil {
			return errors.Wrapf(err, "frame %d", frames)
		}
		for _, ev := range session.DrainEvents() {
			e.logger.Infow("capture event", "type", ev.Type, "frames", ev.FrameCount)
		}
		if cfg.MultiAngle && angleEvery > 0 && frames%angleEvery == 0 {
			recordAngle(e, session)
		}
		if report.Completed && !cfg.MultiAngle {
			break
		}
	}
	if cfg.MultiAngle {
		recordAngle(e, session)
	}
	if gate != nil {
		gate.Wait()
		if failures := gate.Failures(); failures > 0 {
			e.logger.Warnw("some detections failed", "failures", failures)
		}
	}
	e.logger.Infow("replay finished", "frames", frames, "session", session.ID())

	final, err := session.Finalize(c.Context)
	if err != nil {
		return err
	}
	if c.Bool(flagJSON) {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(final)
	}
	fmt.Fprintln(c.App.Writer, finalReportTable(final))
	for _, rec := range final.Accuracy.Recommendations {
		fmt.Fprintf(c.App.Writer, "- %s\n", rec)
	}
	return nil
}

// recordAngle stores the points captured since the last angle. Nothing captured, or every
// angle already recorded, only logs.
func recordAngle(e *env, session *pipeline.Session) {
	result, err := session.RecordAngle()
	switch {
	case errors.Is(err, pipeline.ErrNoPoints), errors.Is(err, multiscan.ErrScanComplete):
		e.logger.Debugw("angle not recorded", "reason", err)
	case err != nil:
		e.logger.Warnw("angle not recorded", "error", err)
	default:
		e.logger.Infow("angle recorded", "angle", result.Angle, "points", len(result.Points), "quality", result.Quality)
	}
}

func finalReportTable(r pipeline.FinalReport) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Field", "Value"})
	materialName := r.Material
	if materialName == "" {
		materialName = "unknown"
	}
	t.AppendRow(table.Row{"Session", r.SessionID.String()})
	t.AppendRow(table.Row{"Material", fmt.Sprintf("%s (%s)", materialName, r.Category)})
	t.AppendRow(table.Row{"Method", r.Estimate.Method})
	t.AppendRow(table.Row{"Points", r.Estimate.PointCount})
	t.AppendRow(table.Row{"Extents (cm)", fmt.Sprintf("%.1f x %.1f x %.1f",
		r.Estimate.Extents.X*100, r.Estimate.Extents.Y*100, r.Estimate.Extents.Z*100)})
	t.AppendRow(table.Row{"Raw volume (cm³)", fmt.Sprintf("%.1f", r.Raw.VolumeCM3)})
	t.AppendRow(table.Row{"Scale factor", fmt.Sprintf("%.4f", r.ScaleFactor)})
	t.AppendRow(table.Row{"Volume (cm³)", fmt.Sprintf("%.1f", r.Estimate.VolumeCM3)})
	if r.WeightGrams != nil {
		t.AppendRow(table.Row{"Weight (g)", fmt.Sprintf("%.1f", *r.WeightGrams)})
	}
	t.AppendRow(table.Row{"Error", fmt.Sprintf("±%.1f%%", r.Accuracy.ErrorPercent)})
	t.AppendRow(table.Row{"Confidence", fmt.Sprintf("%.2f", r.Accuracy.ConfidenceLevel)})
	t.AppendRow(table.Row{"Meets minimum", r.MeetsMinimum})
	if r.CalibrationStale {
		t.AppendRow(table.Row{"Calibration", "stale"})
	}
	if r.Cropped {
		t.AppendRow(table.Row{"Cropped to detection", true})
	}
	if r.MultiScan != nil {
		t.AppendRow(table.Row{"Angles", fmt.Sprintf("%d/%d", r.MultiScan.Recorded, r.MultiScan.Required)})
	}
	if len(r.UnderScanned) > 0 {
		dirs := make([]string, 0, len(r.UnderScanned))
		for _, region := range r.UnderScanned {
			dirs = append(dirs, region.Direction)
		}
		t.AppendRow(table.Row{"Under-scanned", strings.Join(dirs, ", ")})
	}
	return t.Render()
}
