// handlers_convert.go - URL/path conversion handler
package api

import (
	"net/http"
	"strings"

	"github.com/docling-gateway/backend/internal/models"
	"github.com/labstack/echo/v4"
)

// ConvertHandlerImpl implements the ConvertHandler interface
type ConvertHandlerImpl struct {
	service ConversionService
}

// NewConvertHandler creates a new convert handler
func NewConvertHandler(service ConversionService) ConvertHandler {
	return &ConvertHandlerImpl{service: service}
}

// HandleConvert converts the document at ?url= into the format selected by ?output_format=.
func (h *ConvertHandlerImpl) HandleConvert(c echo.Context) error {
	source := strings.TrimSpace(c.QueryParam("url"))
	if source == "" {
		source = strings.TrimSpace(c.FormValue("url"))
	}
	if source == "" {
		return NewBadRequestError("url is required")
	}

	format, err := parseOutputFormat(c)
	if err != nil {
		return err
	}

	result, err := h.service.Convert(c.Request().Context(), models.ConversionRequest{
		Source:       source,
		OutputFormat: format,
	})
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, result)
}

// parseOutputFormat reads ?output_format=, defaulting to markdown.
func parseOutputFormat(c echo.Context) (models.OutputFormat, error) {
	raw := c.QueryParam("output_format")
	if raw == "" {
		raw = c.FormValue("output_format")
	}
	format, err := models.ParseOutputFormat(raw)
	if err != nil {
		return "", NewValidationError("output_format", err)
	}
	return format, nil
}
