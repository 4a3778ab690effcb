package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"

	"go.viam.com/volumescan/calibration"
	"go.viam.com/volumescan/logging"
)

func TestEmptyDatabase(t *testing.T) {
	logger := logging.NewTestLogger(t)
	s, err := Open(filepath.Join(t.TempDir(), "calibration.db"), logger)
	test.That(t, err, test.ShouldBeNil)
	defer s.Close()

	_, found, err := s.Load(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, found, test.ShouldBeFalse)
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	path := filepath.Join(t.TempDir(), "calibration.db")

	scale := 1.07
	ref := "credit_card"
	at := time.Date(2024, 3, 1, 12, 30, 0, 500, time.UTC)
	rec := calibration.Record{
		ScaleFactor:     &scale,
		Calibrated:      true,
		CalibrationDate: &at,
		ReferenceObject: &ref,
		Accuracy:        93,
		Enhanced: &calibration.Enhanced{
			ScaleFactor:           scale,
			QualityScore:          0.8,
			Timestamp:             at,
			DepthBiasCoefficients: []float64{0.002, -0.001},
		},
	}

	s, err := Open(path, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Save(ctx, rec), test.ShouldBeNil)
	test.That(t, s.Close(), test.ShouldBeNil)

	// Reopening runs migrations again without error.
	s, err = Open(path, logger)
	test.That(t, err, test.ShouldBeNil)
	defer s.Close()

	got, found, err := s.Load(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, found, test.ShouldBeTrue)
	test.That(t, *got.ScaleFactor, test.ShouldEqual, 1.07)
	test.That(t, got.Calibrated, test.ShouldBeTrue)
	test.That(t, got.CalibrationDate.Equal(at), test.ShouldBeTrue)
	test.That(t, *got.ReferenceObject, test.ShouldEqual, "credit_card")
	test.That(t, got.Accuracy, test.ShouldEqual, 93.0)
	test.That(t, got.Enhanced.QualityScore, test.ShouldEqual, 0.8)
	test.That(t, got.Enhanced.DepthBiasCoefficients, test.ShouldResemble, []float64{0.002, -0.001})

	// Saving a reset record drops the keys it no longer carries.
	test.That(t, s.Save(ctx, calibration.Record{}), test.ShouldBeNil)
	got, found, err = s.Load(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, found, test.ShouldBeTrue)
	test.That(t, got.ScaleFactor, test.ShouldBeNil)
	test.That(t, got.Enhanced, test.ShouldBeNil)
	test.That(t, got.Calibrated, test.ShouldBeFalse)
}

func TestCalibrationStoreOverSQLite(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	path := filepath.Join(t.TempDir(), "calibration.db")
	clk := clock.NewMock()

	db, err := Open(path, logger)
	test.That(t, err, test.ShouldBeNil)
	defer db.Close()

	store, err := calibration.Open(ctx, db, clk, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, store.CalibrateWithReference("a4_paper", 0.3).Success, test.ShouldBeTrue)
	test.That(t, store.Persist(ctx), test.ShouldBeNil)

	restored, err := calibration.Open(ctx, db, clk, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, restored.IsCalibrated(), test.ShouldBeTrue)
	test.That(t, restored.ScaleFactor(), test.ShouldAlmostEqual, 0.99, 1e-12)
	test.That(t, restored.State().ReferenceID, test.ShouldEqual, "a4_paper")
}
