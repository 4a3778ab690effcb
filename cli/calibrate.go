package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/volumescan/calibration"
	"go.viam.com/volumescan/config"
	"go.viam.com/volumescan/material"
)

// CalibrateAction calibrates against a reference object and persists an accepted result.
func CalibrateAction(c *cli.Context) (err error) {
	if c.IsSet(flagMeasured) == c.IsSet(flagVolume) {
		return errors.Errorf("exactly one of --%s or --%s is required", flagMeasured, flagVolume)
	}
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, e.Close())
	}()

	ref := c.String(flagReference)
	var res calibration.Result
	if c.IsSet(flagMeasured) {
		res = e.calibration.CalibrateWithReference(ref, c.Float64(flagMeasured))
	} else {
		res = e.calibration.CalibrateWithReferenceVolume(ref, c.Float64(flagVolume))
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Reference", "Accepted", "Scale factor", "Deviation", "Accuracy"})
	scale := "-"
	if res.Success {
		scale = fmt.Sprintf("%.4f", res.ScaleFactor)
	}
	t.AppendRow(table.Row{
		ref,
		res.Success,
		scale,
		fmt.Sprintf("%.1f%%", res.DeviationPercent),
		fmt.Sprintf("%.1f%%", res.AccuracyPercent),
	})
	fmt.Fprintln(c.App.Writer, t.Render())

	if !res.Success {
		return errors.Errorf("calibration rejected: %s", res.Reason)
	}
	if !e.persistent() {
		e.logger.Warn("no calibration database configured, the result will not be kept")
		return nil
	}
	return e.calibration.Persist(c.Context)
}

// StatusAction prints the current calibration.
func StatusAction(c *cli.Context) (err error) {
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, e.Close())
	}()

	st := e.calibration.State()
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRow(table.Row{"Calibrated", st.Calibrated})
	t.AppendRow(table.Row{"Scale factor", fmt.Sprintf("%.4f", st.ScaleFactor)})
	t.AppendRow(table.Row{"Accuracy", fmt.Sprintf("%.1f%%", st.AccuracyPercent)})
	if st.Calibrated {
		t.AppendRow(table.Row{"Reference", st.ReferenceID})
		t.AppendRow(table.Row{"Calibrated at", st.CalibratedAt.Format(time.RFC3339)})
		t.AppendRow(table.Row{"Needs refresh", e.calibration.NeedsRefresh()})
	}
	if enhanced, ok := e.calibration.Enhanced(); ok {
		t.AppendRow(table.Row{"Depth bias quality", fmt.Sprintf("%.2f", enhanced.QualityScore)})
		t.AppendRow(table.Row{"Depth bias terms", len(enhanced.DepthBiasCoefficients)})
	}
	fmt.Fprintln(c.App.Writer, t.Render())
	return nil
}

// ReferencesAction lists the reference objects calibration accepts.
func ReferencesAction(c *cli.Context) error {
	refs, err := calibration.DefaultReferences()
	if err != nil {
		return err
	}
	t := table.NewWriter()
	t.AppendHeader(table.Row{"ID", "Name", "Length (cm)", "Volume (cm³)"})
	for _, ref := range refs {
		vol := "-"
		if ref.VolumeCM3 != nil {
			vol = fmt.Sprintf("%.1f", *ref.VolumeCM3)
		}
		t.AppendRow(table.Row{ref.ID, ref.Name, fmt.Sprintf("%.3f", ref.LengthCM), vol})
	}
	fmt.Fprintln(c.App.Writer, t.Render())
	return nil
}

// MaterialsAction lists the material table grouped by category.
func MaterialsAction(c *cli.Context) error {
	materials, err := material.DefaultTable()
	if err != nil {
		return err
	}
	categories := material.Categories
	if c.IsSet(flagCategory) {
		category := material.Category(c.String(flagCategory))
		if !category.Valid() {
			return errors.Errorf("unknown category %q", category)
		}
		categories = []material.Category{category}
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Name", "Density (g/cm³)", "Category"})
	listed := 0
	for _, category := range categories {
		for _, m := range materials.InCategory(category) {
			t.AppendRow(table.Row{m.Name, fmt.Sprintf("%.2f", m.Density), m.Category})
			listed++
		}
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d of %d", listed, materials.Len())})
	fmt.Fprintln(c.App.Writer, t.Render())
	return nil
}

// SchemaAction prints the configuration JSON schema.
func SchemaAction(c *cli.Context) error {
	data, err := json.MarshalIndent(config.Schema(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(data))
	return nil
}
