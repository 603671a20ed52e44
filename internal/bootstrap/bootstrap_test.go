package bootstrap

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBootstrapper struct {
	artifacts string
	failing   map[string]bool
	pathErr   error
	calls     [][]string
}

func (f *fakeBootstrapper) InitializePipelines(ctx context.Context, formats []string) ([]string, error) {
	f.calls = append(f.calls, formats)
	var ok []string
	var failed []string
	for _, format := range formats {
		if f.failing[format] {
			failed = append(failed, format)
			continue
		}
		ok = append(ok, format)
	}
	if len(failed) > 0 {
		return ok, errors.New("failed: " + failed[0])
	}
	return ok, nil
}

func (f *fakeBootstrapper) ArtifactsPath(ctx context.Context) (string, error) {
	return f.artifacts, f.pathErr
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

var required = []string{"model_artifacts/layout", "model_artifacts/tableformer"}

func TestVerifyStartup(t *testing.T) {
	t.Run("all artifacts present", func(t *testing.T) {
		root := t.TempDir()
		for _, rel := range required {
			require.NoError(t, os.MkdirAll(filepath.Join(root, rel), 0755))
		}
		b := &fakeBootstrapper{artifacts: root}

		require.NoError(t, VerifyStartup(context.Background(), b, required, quietLogger()))
		assert.Equal(t, [][]string{{"pdf"}}, b.calls)
	})

	t.Run("missing table model", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(root, required[0]), 0755))
		// a file where a directory is expected does not count
		require.NoError(t, os.WriteFile(filepath.Join(root, "model_artifacts", "tableformer"), nil, 0644))

		err := VerifyStartup(context.Background(), &fakeBootstrapper{artifacts: root}, required, quietLogger())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrArtifactsMissing))
		assert.Contains(t, err.Error(), "tableformer")
		assert.NotContains(t, err.Error(), "layout")
	})

	t.Run("pipeline init fails", func(t *testing.T) {
		b := &fakeBootstrapper{artifacts: t.TempDir(), failing: map[string]bool{"pdf": true}}
		err := VerifyStartup(context.Background(), b, required, quietLogger())
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrArtifactsMissing))
	})

	t.Run("artifacts path unresolvable", func(t *testing.T) {
		b := &fakeBootstrapper{pathErr: errors.New("no cache dir")}
		err := VerifyStartup(context.Background(), b, required, quietLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no cache dir")
	})
}

func TestDownloadModels(t *testing.T) {
	formats := []string{"pdf", "docx", "html", "xml_jats"}

	t.Run("initializes every format once", func(t *testing.T) {
		b := &fakeBootstrapper{artifacts: "/models"}
		initialized, err := DownloadModels(context.Background(), b, formats, quietLogger())
		require.NoError(t, err)

		assert.Equal(t, formats, initialized)
		assert.Equal(t, [][]string{{"pdf"}, {"docx", "html", "xml_jats"}}, b.calls)
	})

	t.Run("partial failure reports the rest", func(t *testing.T) {
		b := &fakeBootstrapper{artifacts: "/models", failing: map[string]bool{"xml_jats": true}}
		initialized, err := DownloadModels(context.Background(), b, formats, quietLogger())
		require.Error(t, err)
		assert.Equal(t, []string{"pdf", "docx", "html"}, initialized)
	})

	t.Run("primary failure aborts", func(t *testing.T) {
		b := &fakeBootstrapper{failing: map[string]bool{"pdf": true}}
		_, err := DownloadModels(context.Background(), b, formats, quietLogger())
		require.Error(t, err)
		assert.Len(t, b.calls, 1)
	})
}
