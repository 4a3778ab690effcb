// Package sqlitestore persists calibration state in a SQLite key/value table.
package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	_ "modernc.org/sqlite"

	"go.viam.com/volumescan/calibration"
	"go.viam.com/volumescan/logging"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Keys of the calibration_state table.
const (
	KeyScaleFactor     = "scale_factor"
	KeyIsCalibrated    = "is_calibrated"
	KeyCalibrationDate = "calibration_date"
	KeyReferenceObject = "reference_object"
	KeyAccuracy        = "accuracy"
	KeyEnhanced        = "enhanced_calibration"
)

// Store is a calibration.Persister backed by a SQLite database.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

var _ calibration.Persister = (*Store)(nil)

// Open opens or creates the database at path and brings its schema up to date.
func Open(path string, logger logging.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	s := &Store{db: db, logger: logger}
	if err := s.migrateUp(); err != nil {
		return nil, multierr.Combine(err, db.Close())
	}
	return s, nil
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "reading migrations")
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return errors.Wrap(err, "creating sqlite driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return errors.Wrap(err, "creating migrate instance")
	}
	// Closing m would close the shared database handle.
	m.Log = &migrateLogger{logger: s.logger}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "migration up failed")
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load reads the stored record. It reports false when the table is empty.
func (s *Store) Load(ctx context.Context) (calibration.Record, bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM calibration_state`)
	if err != nil {
		return calibration.Record{}, false, errors.Wrap(err, "querying calibration_state")
	}
	defer rows.Close()

	values := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return calibration.Record{}, false, errors.Wrap(err, "scanning calibration_state")
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return calibration.Record{}, false, err
	}
	if len(values) == 0 {
		return calibration.Record{}, false, nil
	}
	rec, err := decode(values)
	if err != nil {
		return calibration.Record{}, false, err
	}
	return rec, true, nil
}

// Save replaces the stored record in a single transaction.
func (s *Store) Save(ctx context.Context, rec calibration.Record) (err error) {
	values, err := encode(rec)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			//nolint:errcheck
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM calibration_state`); err != nil {
		return errors.Wrap(err, "clearing calibration_state")
	}
	now := time.Now().Unix()
	for key, value := range values {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO calibration_state (key, value, updated_at) VALUES (?, ?, ?)`,
			key, value, now,
		); err != nil {
			return errors.Wrapf(err, "writing %s", key)
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "committing calibration")
	}
	s.logger.Debugw("calibration saved", "keys", len(values))
	return nil
}

func encode(rec calibration.Record) (map[string]string, error) {
	values := map[string]string{
		KeyIsCalibrated: strconv.FormatBool(rec.Calibrated),
		KeyAccuracy:     strconv.FormatFloat(rec.Accuracy, 'g', -1, 64),
	}
	if rec.ScaleFactor != nil {
		values[KeyScaleFactor] = strconv.FormatFloat(*rec.ScaleFactor, 'g', -1, 64)
	}
	if rec.CalibrationDate != nil {
		values[KeyCalibrationDate] = rec.CalibrationDate.UTC().Format(time.RFC3339Nano)
	}
	if rec.ReferenceObject != nil {
		values[KeyReferenceObject] = *rec.ReferenceObject
	}
	if rec.Enhanced != nil {
		data, err := json.Marshal(rec.Enhanced)
		if err != nil {
			return nil, errors.Wrap(err, "encoding enhanced calibration")
		}
		values[KeyEnhanced] = string(data)
	}
	return values, nil
}

func decode(values map[string]string) (calibration.Record, error) {
	var rec calibration.Record
	if v, ok := values[KeyScaleFactor]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return rec, errors.Wrapf(err, "parsing %s", KeyScaleFactor)
		}
		rec.ScaleFactor = &f
	}
	if v, ok := values[KeyIsCalibrated]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return rec, errors.Wrapf(err, "parsing %s", KeyIsCalibrated)
		}
		rec.Calibrated = b
	}
	if v, ok := values[KeyCalibrationDate]; ok {
		at, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return rec, errors.Wrapf(err, "parsing %s", KeyCalibrationDate)
		}
		rec.CalibrationDate = &at
	}
	if v, ok := values[KeyReferenceObject]; ok {
		rec.ReferenceObject = &v
	}
	if v, ok := values[KeyAccuracy]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return rec, errors.Wrapf(err, "parsing %s", KeyAccuracy)
		}
		rec.Accuracy = f
	}
	if v, ok := values[KeyEnhanced]; ok {
		var enhanced calibration.Enhanced
		if err := json.Unmarshal([]byte(v), &enhanced); err != nil {
			return rec, errors.Wrapf(err, "parsing %s", KeyEnhanced)
		}
		rec.Enhanced = &enhanced
	}
	return rec, nil
}

type migrateLogger struct {
	logger logging.Logger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debugf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}
