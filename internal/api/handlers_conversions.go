// handlers_conversions.go - Audit ledger handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ConversionsHandlerImpl implements the ConversionsHandler interface
type ConversionsHandlerImpl struct {
	ledger ConversionLedger
}

// NewConversionsHandler creates a new conversions handler
func NewConversionsHandler(ledger ConversionLedger) ConversionsHandler {
	return &ConversionsHandlerImpl{ledger: ledger}
}

// HandleListConversions returns the newest conversion attempts and an outcome summary.
func (h *ConversionsHandlerImpl) HandleListConversions(c echo.Context) error {
	limit, err := parseLimit(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	records, err := h.ledger.Recent(ctx, limit)
	if err != nil {
		return NewInternalError("failed to read conversions", err)
	}
	summary, err := h.ledger.Summarize(ctx)
	if err != nil {
		return NewInternalError("failed to summarize conversions", err)
	}

	return respond(c, http.StatusOK, map[string]any{
		"conversions": records,
		"summary":     summary,
	})
}
