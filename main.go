package main

import (
	"fmt"
	"os"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"bakerycam/internal/config"
	"bakerycam/internal/logging"
	"bakerycam/internal/mailbox"
	"bakerycam/internal/station"
	"bakerycam/internal/ui"
	"bakerycam/processing/annotator"
	"bakerycam/processing/capture"
	processing "bakerycam/processing/detector"
)

const (
	flagConfig = "config"
	flagDebug  = "debug"
	flagOut    = "out"
)

func main() {
	app := &cli.App{
		Name:  "bakerycam",
		Usage: "count and price bakery items on a camera feed",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Value:   config.DefaultConfigPath,
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Action: runAction,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "open the checkout window",
				Action: runAction,
			},
			{
				Name:   "devices",
				Usage:  "list capture devices",
				Action: devicesAction,
			},
			{
				Name:      "detect",
				Usage:     "count and price the items in a still image",
				ArgsUsage: "<image>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    flagOut,
						Aliases: []string{"o"},
						Usage:   "write the annotated image to `FILE`",
					},
				},
				Action: detectAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) (*config.Config, *zap.SugaredLogger, error) {
	cfg, err := config.LoadConfigFile(c.String(flagConfig))
	if err != nil {
		return nil, nil, err
	}
	if c.Bool(flagDebug) {
		cfg.Log.Level = "debug"
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func runAction(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	catalog := cfg.Catalog()
	logger.Infow("starting",
		"source", cfg.Source.Type,
		"detector", cfg.Detector.Backend,
		"classes", catalog.Classes(),
		"currency", catalog.Currency(),
	)

	det, err := processing.NewDetector(cfg.Detector, logger.Named("detector"))
	if err != nil {
		logger.Fatalw("failed to load detector", "error", err)
	}

	pipeline := processing.Pipeline{Detector: det, Annotator: annotator.New(catalog)}
	frames := mailbox.New[*processing.Frame]()

	proc := processing.NewProcessor(
		capture.NewOpener(cfg.Source, logger.Named("capture")),
		pipeline,
		frames,
		cfg.Detector.Confidence,
		logger.Named("processor"),
	)
	st := station.New(proc, frames, pipeline, cfg.Detector.CaptureConfidence, cfg.CountsFile, logger.Named("station"))

	ui.CreateApp(st, cfg, catalog, logger.Named("ui")).Run()
	return nil
}

func devicesAction(c *cli.Context) error {
	devices, err := capture.ListCameras()
	if err != nil {
		return errors.Wrap(err, "list cameras")
	}
	if len(devices) == 0 {
		fmt.Fprintln(c.App.Writer, "no cameras found")
		return nil
	}
	for _, d := range devices {
		fmt.Fprintln(c.App.Writer, d)
	}
	return nil
}

func detectAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("detect needs exactly one image path", 2)
	}
	path := c.Args().First()

	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	img, err := imaging.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}

	det, err := processing.NewDetector(cfg.Detector, logger.Named("detector"))
	if err != nil {
		return err
	}
	defer det.Close()

	catalog := cfg.Catalog()
	pipeline := processing.Pipeline{Detector: det, Annotator: annotator.New(catalog)}

	annotated, detections, summary, err := pipeline.Process(c.Context, img, cfg.Detector.CaptureConfidence)
	if err != nil {
		return err
	}
	for _, d := range detections {
		logger.Debugw("detection", "detection", d.String())
	}

	w := c.App.Writer
	for _, line := range annotator.ItemLines(summary, catalog) {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w, annotator.TotalLine(summary, catalog))
	fmt.Fprintln(w, summary.Counts.String())

	if out := c.String(flagOut); out != "" {
		if err := imaging.Save(annotated, out); err != nil {
			return errors.Wrapf(err, "save %s", out)
		}
		logger.Infow("annotated image written", "path", out)
	}
	return nil
}
