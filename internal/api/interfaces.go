// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"
	"io"

	"github.com/docling-gateway/backend/internal/audit"
	"github.com/docling-gateway/backend/internal/config"
	"github.com/docling-gateway/backend/internal/models"
	"github.com/docling-gateway/backend/internal/upload"
	"github.com/labstack/echo/v4"
)

// ConvertHandler handles URL/path conversion
type ConvertHandler interface {
	HandleConvert(c echo.Context) error
}

// UploadHandler handles upload-and-convert and the processed file listing
type UploadHandler interface {
	HandleUploadConvert(c echo.Context) error
	HandleListProcessed(c echo.Context) error
}

// ConversionsHandler exposes the audit ledger
type ConversionsHandler interface {
	HandleListConversions(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// ConversionService defines the orchestrator operations the handlers need
// This allows mocking in tests
type ConversionService interface {
	Convert(ctx context.Context, req models.ConversionRequest) (*models.ConversionResult, error)
	Backend() string
}

// UploadProcessor runs the upload workflow
type UploadProcessor interface {
	Process(ctx context.Context, name string, file io.ReadSeeker, format models.OutputFormat) (*upload.Outcome, error)
	Policy() config.UploadPolicy
}

// ProcessedLister lists converted files
type ProcessedLister interface {
	ListProcessed(limit int) ([]*models.StagedFile, error)
}

// ConversionLedger reads the audit ledger
type ConversionLedger interface {
	Recent(ctx context.Context, limit int) ([]*models.ConversionRecord, error)
	Summarize(ctx context.Context) (*audit.Summary, error)
}
