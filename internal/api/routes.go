// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

const uploadConvertPath = "/upload-convert"

// Dependencies holds all handler dependencies
type Dependencies struct {
	Conversion ConversionService
	Uploads    UploadProcessor
	Processed  ProcessedLister
	Ledger     ConversionLedger
	Version    string
}

// Handlers holds all handler instances
type Handlers struct {
	Health      HealthHandler
	Convert     ConvertHandler
	Upload      UploadHandler
	Conversions ConversionsHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:      NewHealthHandler(deps.Version, deps.Conversion.Backend()),
		Convert:     NewConvertHandler(deps.Conversion),
		Upload:      NewUploadHandler(deps.Uploads, deps.Processed),
		Conversions: NewConversionsHandler(deps.Ledger),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/health", handlers.Health.HandleHealth)

	// Conversion
	e.POST("/convert", handlers.Convert.HandleConvert)
	e.POST(uploadConvertPath, handlers.Upload.HandleUploadConvert)

	// Audit trail
	e.GET("/conversions", handlers.Conversions.HandleListConversions)
	e.GET("/files/processed", handlers.Upload.HandleListProcessed)
}

// MiddlewareConfig tunes SetupMiddleware
type MiddlewareConfig struct {
	BodyLimit string
	Logger    *logrus.Logger
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, cfg MiddlewareConfig) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler

	// Request logging through logrus
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := cfg.Logger.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
				"remote_ip":  v.RemoteIP,
			})
			if v.RequestID != "" {
				entry = entry.WithField("request_id", v.RequestID)
			}
			if v.Error != nil {
				entry.WithError(v.Error).Warn("Request failed")
				return nil
			}
			entry.Info("Request handled")
			return nil
		},
	}))

	// Add recovery
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			cfg.Logger.WithError(err).WithField("stack", string(stack)).Error("Recovered from panic")
			return err
		},
	}))

	e.Use(middleware.RequestID())

	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimitWithConfig(middleware.BodyLimitConfig{
			Limit: cfg.BodyLimit,
			// uploads are capped by the upload policy in the handler
			Skipper: func(c echo.Context) bool {
				return c.Path() == uploadConvertPath
			},
		}))
	}
}

// NewServer builds a fully wired echo instance
func NewServer(deps *Dependencies, cfg MiddlewareConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	SetupMiddleware(e, cfg)
	RegisterRoutes(e, NewHandlers(deps))
	return e
}
