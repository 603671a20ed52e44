// Command bootstrap downloads the conversion engine's models ahead of time so the gateway can
// start on a host without network access.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/docling-gateway/backend/internal/bootstrap"
	"github.com/docling-gateway/backend/internal/converter"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "docling-bootstrap",
		Usage: "Initialize every docling pipeline so its model artifacts are downloaded",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "python",
				Value:   "python3",
				Usage:   "Python interpreter with docling installed",
				EnvVars: []string{"DOCLING_PYTHON"},
			},
			&cli.StringFlag{
				Name:    "artifacts-path",
				Usage:   "Directory for model artifacts (default: docling's own cache)",
				EnvVars: []string{"DOCLING_ARTIFACTS_PATH"},
			},
			&cli.StringSliceFlag{
				Name:  "format",
				Usage: "Input format to initialize; repeatable (default: all supported formats)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "Log level (debug, info, warn, error)",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "docling-bootstrap: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(strings.TrimSpace(c.String("log-level"))); err == nil {
		log.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer converter.CleanupBridge()

	engine := converter.NewDoclingConverter(converter.DoclingOptions{
		PythonPath:    c.String("python"),
		ArtifactsPath: c.String("artifacts-path"),
	}, log)

	formats := c.StringSlice("format")
	if len(formats) == 0 {
		formats = converter.SupportedInputFormats
	}

	log.Info("Starting model downloads")
	initialized, err := bootstrap.DownloadModels(ctx, engine, formats, log)
	if err != nil {
		return err
	}

	log.WithField("formats", strings.Join(initialized, ", ")).Info("All models and format handlers are initialized")
	return nil
}
