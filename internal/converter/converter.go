// Package converter wraps the external document-understanding engine.
//
// The engine is opaque: it is handed a local path or URL and returns a document that can be
// exported as markdown or as a structured record. Two backends exist: the docling bridge,
// which runs the engine in a Python subprocess, and a native backend that handles HTML and
// markdown in-process when the engine is not installed.
package converter

import (
	"context"
	"errors"
	"fmt"

	"github.com/docling-gateway/backend/internal/config"
	"github.com/sirupsen/logrus"
)

// ErrUnsupportedFormat is returned when a backend cannot handle the source's format.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Converter turns a source (local path or URL) into a Document.
type Converter interface {
	Convert(ctx context.Context, source string) (*Document, error)
	Name() string
}

// Bootstrapper exposes the engine's pipeline initialization and model artifact location.
// Only used by the model bootstrap utility and the startup check.
type Bootstrapper interface {
	InitializePipelines(ctx context.Context, formats []string) ([]string, error)
	ArtifactsPath(ctx context.Context) (string, error)
}

// Document is the engine's conversion output.
type Document struct {
	Markdown   string
	Structured map[string]any
}

// ExportMarkdown returns the markdown rendering of the document.
func (d *Document) ExportMarkdown() string {
	return d.Markdown
}

// ExportStructured returns the JSON-serializable document record.
func (d *Document) ExportStructured() map[string]any {
	if d.Structured == nil {
		return map[string]any{}
	}
	return d.Structured
}

// SupportedInputFormats lists the engine input formats initialized by the bootstrap utility.
// PDF comes first: its pipeline carries the layout and table models.
var SupportedInputFormats = []string{
	"pdf", "image", "docx", "pptx", "html", "asciidoc", "md", "csv", "xlsx",
	"xml_uspto", "xml_jats", "json_docling",
}

// New builds the converter backend selected in the configuration.
func New(cfg *config.AppConfig, log *logrus.Logger) (Converter, error) {
	switch cfg.Converter.Backend {
	case "docling":
		return NewDoclingConverter(DoclingOptions{
			PythonPath:    cfg.Converter.PythonPath,
			ArtifactsPath: cfg.Converter.ArtifactsPath,
			Timeout:       cfg.ConverterTimeout(),
		}, log), nil
	case "native":
		return NewNativeConverter(log), nil
	default:
		return nil, fmt.Errorf("unknown converter backend: %q", cfg.Converter.Backend)
	}
}
