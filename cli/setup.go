package cli

import (
	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/volumescan/calibration"
	"go.viam.com/volumescan/calibration/sqlitestore"
	"go.viam.com/volumescan/config"
	"go.viam.com/volumescan/logging"
)

// env is what every action needs: the loaded configuration, a logger and the calibration.
type env struct {
	cfg         *config.Config
	logger      logging.Logger
	clock       clock.Clock
	calibration *calibration.Store
	closers     []func() error
}

func (e *env) Close() error {
	var err error
	for i := len(e.closers) - 1; i >= 0; i-- {
		err = multierr.Combine(err, e.closers[i]())
	}
	return err
}

func newEnv(c *cli.Context) (*env, error) {
	cfg := config.Default()
	if path := c.Path(flagConfig); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	if c.IsSet(flagDB) {
		cfg.Calibration.DatabasePath = c.Path(flagDB)
	}

	e := &env{cfg: &cfg, clock: clock.New()}
	logger := logging.NewBlankLogger("scanreplay")
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	if cfg.Log.File != "" {
		file := logging.NewFileAppender(cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups)
		logger.AddAppender(file)
		e.closers = append(e.closers, file.Close)
	}
	logger.SetLevel(cfg.Log.Level)
	if c.Bool(flagDebug) {
		logger.SetLevel(logging.DEBUG)
	}
	e.logger = logger

	store, err := e.openCalibration(c)
	if err != nil {
		return nil, multierr.Combine(err, e.Close())
	}
	e.calibration = store
	return e, nil
}

func (e *env) openCalibration(c *cli.Context) (*calibration.Store, error) {
	logger := e.logger.Sublogger("calibration")
	path := e.cfg.Calibration.DatabasePath
	if path == "" {
		return calibration.NewStore(e.clock, logger)
	}
	db, err := sqlitestore.Open(path, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "opening calibration database %q", path)
	}
	e.closers = append(e.closers, db.Close)
	return calibration.Open(c.Context, db, e.clock, logger)
}

// persistent reports whether calibration changes outlive the process.
func (e *env) persistent() bool {
	return e.cfg.Calibration.DatabasePath != ""
}
