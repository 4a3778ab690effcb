// Package cli implements scanreplay, a command line tool that replays recorded scans through the
// capture pipeline and manages the persisted calibration.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	// Global flags.
	flagConfig = "config"
	flagDebug  = "debug"
	flagDB     = "db"

	// Replay flags.
	flagFrames     = "frames"
	flagMaterial   = "material"
	flagGround     = "ground"
	flagAngleEvery = "angle-every"
	flagDetections = "detections"
	flagJSON       = "json"

	// Calibrate flags.
	flagReference = "reference"
	flagMeasured  = "measured"
	flagVolume    = "volume"

	// Materials flags.
	flagCategory = "category"
)

// NewApp returns the scanreplay application writing results to out and logs to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "scanreplay",
		Usage:           "replay recorded volume scans and manage calibration",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.PathFlag{
				Name:  flagDB,
				Usage: "sqlite calibration database, overriding calibration.database_path",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "replay",
				Usage:     "run a JSON-lines frame recording through a scan session",
				UsageText: "scanreplay replay --frames <recording.jsonl> [--material rice] [other options]",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     flagFrames,
						Aliases:  []string{"f"},
						Required: true,
						Usage:    "frame recording to replay",
					},
					&cli.StringFlag{
						Name:    flagMaterial,
						Aliases: []string{"m"},
						Usage:   "material being scanned, used for method selection and weight",
					},
					&cli.Float64Flag{
						Name:  flagGround,
						Usage: "height in meters of a detected ground plane",
					},
					&cli.IntFlag{
						Name:  flagAngleEvery,
						Usage: "in multi-angle mode, record an angle after every `N` frames",
					},
					&cli.PathFlag{
						Name:  flagDetections,
						Usage: "JSON-lines detector output to crop the object with",
					},
					&cli.BoolFlag{
						Name:  flagJSON,
						Usage: "print the final report as JSON",
					},
				},
				Action: ReplayAction,
			},
			{
				Name:      "calibrate",
				Usage:     "calibrate against a reference object and persist the result",
				UsageText: "scanreplay calibrate --reference <id> (--measured <meters> | --volume <cm3>) --db <file>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagReference,
						Aliases:  []string{"r"},
						Required: true,
						Usage:    "reference object id, see the references command",
					},
					&cli.Float64Flag{
						Name:  flagMeasured,
						Usage: "measured length of the reference in meters",
					},
					&cli.Float64Flag{
						Name:  flagVolume,
						Usage: "measured volume of the reference in cm³",
					},
				},
				Action: CalibrateAction,
			},
			{
				Name:   "status",
				Usage:  "print the persisted calibration",
				Action: StatusAction,
			},
			{
				Name:   "references",
				Usage:  "list the known reference objects",
				Action: ReferencesAction,
			},
			{
				Name:  "materials",
				Usage: "list the known materials with their density and category",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagCategory,
						Usage: "only list materials of this category",
					},
				},
				Action: MaterialsAction,
			},
			{
				Name:   "schema",
				Usage:  "print the JSON schema of the configuration file",
				Action: SchemaAction,
			},
		},
	}
}
