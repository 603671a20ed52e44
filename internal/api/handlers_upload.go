// handlers_upload.go - Upload-and-convert handlers
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/docling-gateway/backend/internal/upload"
	"github.com/labstack/echo/v4"
)

const (
	defaultListLimit = 50

	// multipartOverhead covers boundaries, part headers and form fields around the file
	multipartOverhead int64 = 1 << 20
)

// UploadHandlerImpl implements the UploadHandler interface
type UploadHandlerImpl struct {
	processor UploadProcessor
	processed ProcessedLister
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(processor UploadProcessor, processed ProcessedLister) UploadHandler {
	return &UploadHandlerImpl{
		processor: processor,
		processed: processed,
	}
}

// HandleUploadConvert accepts a multipart "file" field and converts it. The request body is
// capped just above the upload ceiling, and an oversized body is reported like an oversized
// file.
func (h *UploadHandlerImpl) HandleUploadConvert(c echo.Context) error {
	policy := h.processor.Policy()
	limit := policy.MaxSizeBytes + multipartOverhead

	req := c.Request()
	if req.ContentLength > limit {
		return upload.TooLargeError(policy)
	}
	req.Body = http.MaxBytesReader(c.Response(), req.Body, limit)

	format, err := parseOutputFormat(c)
	if err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return upload.TooLargeError(policy)
		}
		return NewBadRequestError("file is required")
	}

	file, err := fh.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer file.Close()

	outcome, err := h.processor.Process(c.Request().Context(), fh.Filename, file, format)
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, outcome.Result)
}

// HandleListProcessed returns the most recently converted uploads.
func (h *UploadHandlerImpl) HandleListProcessed(c echo.Context) error {
	limit, err := parseLimit(c)
	if err != nil {
		return err
	}

	files, err := h.processed.ListProcessed(limit)
	if err != nil {
		return NewInternalError("failed to list processed files", err)
	}

	return respond(c, http.StatusOK, map[string]any{
		"files": files,
	})
}

// parseLimit reads ?limit=, defaulting to defaultListLimit.
func parseLimit(c echo.Context) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, NewValidationError("limit", err)
	}
	return limit, nil
}
