// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version   string
	converter string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version, converter string) HealthHandler {
	return &HealthHandlerImpl{
		version:   version,
		converter: converter,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	return respond(c, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"version":   h.version,
		"converter": h.converter,
	})
}
