// Package bootstrap pre-fetches the converter's model artifacts and verifies them at startup.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/docling-gateway/backend/internal/converter"
	"github.com/sirupsen/logrus"
)

// PrimaryFormat is the pipeline that carries the layout and table models.
const PrimaryFormat = "pdf"

// ErrArtifactsMissing is returned when required model directories are absent.
var ErrArtifactsMissing = errors.New("required model artifacts are missing")

// DownloadModels initializes the primary pipeline, then every supported input format, so that
// lazily downloaded artifacts are fetched before the service ever starts. It returns the
// formats that initialized.
func DownloadModels(ctx context.Context, b converter.Bootstrapper, formats []string, log *logrus.Logger) ([]string, error) {
	log.WithField("format", PrimaryFormat).Info("Initializing primary pipeline")
	if _, err := b.InitializePipelines(ctx, []string{PrimaryFormat}); err != nil {
		return nil, fmt.Errorf("failed to initialize %s pipeline: %w", PrimaryFormat, err)
	}

	path, err := b.ArtifactsPath(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve artifacts path: %w", err)
	}
	log.WithField("artifacts_path", path).Info("Model artifacts location")

	rest := make([]string, 0, len(formats))
	for _, f := range formats {
		if f != PrimaryFormat {
			rest = append(rest, f)
		}
	}

	initialized, err := b.InitializePipelines(ctx, rest)
	initialized = append([]string{PrimaryFormat}, initialized...)

	log.WithFields(logrus.Fields{
		"initialized": len(initialized),
		"requested":   len(rest) + 1,
	}).Info("Pipeline initialization finished")

	if err != nil {
		return initialized, fmt.Errorf("some pipelines failed to initialize: %w", err)
	}
	return initialized, nil
}

// VerifyStartup initializes the primary pipeline once and checks that every required artifact
// subdirectory exists under the artifacts path. Any failure must stop the server.
func VerifyStartup(ctx context.Context, b converter.Bootstrapper, required []string, log *logrus.Logger) error {
	if _, err := b.InitializePipelines(ctx, []string{PrimaryFormat}); err != nil {
		return fmt.Errorf("failed to initialize %s pipeline: %w", PrimaryFormat, err)
	}

	root, err := b.ArtifactsPath(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve artifacts path: %w", err)
	}

	var missing []string
	for _, rel := range required {
		dir := filepath.Join(root, rel)
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			missing = append(missing, dir)
			continue
		}
		log.WithField("path", dir).Debug("Model artifact present")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrArtifactsMissing, strings.Join(missing, ", "))
	}

	log.WithField("artifacts_path", root).Info("Model artifacts verified")
	return nil
}
