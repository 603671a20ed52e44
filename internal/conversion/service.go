// Package conversion routes a source to the converter and shapes the result.
package conversion

import (
	"context"
	"errors"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/docling-gateway/backend/internal/converter"
	"github.com/docling-gateway/backend/internal/fetcher"
	"github.com/docling-gateway/backend/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Fetcher downloads a remote source to a transient local file.
type Fetcher interface {
	FetchToFile(ctx context.Context, targetURL, dir string) (*fetcher.TransientFile, error)
}

// Recorder persists one audit row per conversion attempt.
type Recorder interface {
	Record(ctx context.Context, rec *models.ConversionRecord) error
}

// Service is the conversion orchestrator.
type Service struct {
	converter converter.Converter
	fetcher   Fetcher
	tempDir   string
	recorder  Recorder
	log       *logrus.Logger
	now       func() time.Time
}

// NewService creates an orchestrator. recorder may be nil.
func NewService(conv converter.Converter, f Fetcher, tempDir string, recorder Recorder, log *logrus.Logger) *Service {
	return &Service{
		converter: conv,
		fetcher:   f,
		tempDir:   tempDir,
		recorder:  recorder,
		log:       log,
		now:       time.Now,
	}
}

// Backend returns the name of the converter backend in use.
func (s *Service) Backend() string { return s.converter.Name() }

// Convert converts a URL or local path. Direct sources go straight to the converter; anything
// else is fetched to a transient file first.
func (s *Service) Convert(ctx context.Context, req models.ConversionRequest) (*models.ConversionResult, error) {
	kind := models.SourceRemote
	if IsDirect(req.Source) {
		kind = models.SourceDirect
	}
	return s.run(ctx, req, kind)
}

// ConvertUpload converts a file already staged on local disk.
func (s *Service) ConvertUpload(ctx context.Context, path string, format models.OutputFormat) (*models.ConversionResult, error) {
	return s.run(ctx, models.ConversionRequest{Source: path, OutputFormat: format}, models.SourceUpload)
}

func (s *Service) run(ctx context.Context, req models.ConversionRequest, kind models.SourceKind) (*models.ConversionResult, error) {
	started := s.now()
	if req.OutputFormat == "" {
		req.OutputFormat = models.OutputMarkdown
	}

	result, err := s.convert(ctx, req, kind)
	s.record(ctx, req, kind, started, err)

	entry := s.log.WithFields(logrus.Fields{
		"source":        req.Source,
		"kind":          kind,
		"output_format": req.OutputFormat,
		"duration_ms":   s.now().Sub(started).Milliseconds(),
	})
	if err != nil {
		entry.WithField("error_kind", KindOf(err)).WithError(err).Warn("Conversion failed")
		return nil, err
	}
	entry.Info("Conversion completed")
	return result, nil
}

func (s *Service) convert(ctx context.Context, req models.ConversionRequest, kind models.SourceKind) (*models.ConversionResult, error) {
	if strings.TrimSpace(req.Source) == "" {
		return nil, Validationf("source is required")
	}
	format := req.OutputFormat
	if !format.WantsMarkdown() && !format.WantsJSON() {
		return nil, Validationf("unsupported output format %q", req.OutputFormat)
	}

	path := req.Source
	if kind == models.SourceRemote {
		file, err := s.fetcher.FetchToFile(ctx, req.Source, s.tempDir)
		if err != nil {
			return nil, s.classify(ctx, KindFetch, "fetch", err)
		}
		defer func() {
			if err := file.Remove(); err != nil {
				s.log.WithError(err).WithField("path", file.Path).Warn("Failed to remove transient file")
			}
		}()
		path = file.Path
	}

	doc, err := s.converter.Convert(ctx, path)
	if err != nil {
		return nil, s.classify(ctx, KindConvert, "convert", err)
	}

	return Shape(doc, format), nil
}

// classify turns err into a timeout when the request deadline is what stopped the work.
func (s *Service) classify(ctx context.Context, kind Kind, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return &Error{Kind: KindTimeout, Op: op, Err: ctxErr}
		}
		return &Error{Kind: KindUnexpected, Op: op, Err: ctxErr}
	}
	return NewError(kind, op, err)
}

func (s *Service) record(ctx context.Context, req models.ConversionRequest, kind models.SourceKind, started time.Time, convErr error) {
	if s.recorder == nil {
		return
	}

	rec := &models.ConversionRecord{
		ID:           uuid.New().String(),
		Kind:         kind,
		Source:       req.Source,
		OutputFormat: req.OutputFormat,
		Backend:      s.converter.Name(),
		Status:       models.RecordSucceeded,
		DurationMs:   s.now().Sub(started).Milliseconds(),
		CreatedAt:    started.UTC(),
	}
	if convErr != nil {
		rec.Status = models.RecordFailed
		rec.ErrorKind = string(KindOf(convErr))
		rec.Error = convErr.Error()
	}

	// the request context may already be expired; the row must still be written
	if err := s.recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
		s.log.WithError(err).Warn("Failed to record conversion")
	}
}

// Shape builds the response for the requested format.
func Shape(doc *converter.Document, format models.OutputFormat) *models.ConversionResult {
	result := &models.ConversionResult{}
	if format.WantsMarkdown() {
		md := doc.ExportMarkdown()
		result.Markdown = &md
	}
	if format.WantsJSON() {
		result.Structured = doc.ExportStructured()
	}
	return result
}

// IsDirect reports whether source can be handed to the converter without fetching it first:
// an existing local path, a file:// URL, or an http(s) URL of an HTML page.
func IsDirect(source string) bool {
	u, err := url.Parse(source)
	if err == nil {
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			p := strings.ToLower(u.Path)
			return strings.HasSuffix(p, ".html") || strings.HasSuffix(p, ".htm")
		case "file":
			return true
		}
	}

	_, statErr := os.Stat(source)
	return statErr == nil
}
