package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/docling-gateway/backend/internal/api"
	"github.com/docling-gateway/backend/internal/audit"
	"github.com/docling-gateway/backend/internal/bootstrap"
	"github.com/docling-gateway/backend/internal/config"
	"github.com/docling-gateway/backend/internal/conversion"
	"github.com/docling-gateway/backend/internal/converter"
	"github.com/docling-gateway/backend/internal/fetcher"
	"github.com/docling-gateway/backend/internal/storage"
	"github.com/docling-gateway/backend/internal/upload"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const (
	defaultConfigPath = "docling-gateway.yaml"
	shutdownTimeout   = 15 * time.Second
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "docling-gateway: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "docling-gateway",
		Usage:   "HTTP gateway that converts documents to Markdown and structured JSON",
		Version: fmt.Sprintf("%s (built: %s)", Version, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   defaultConfigPath,
				Usage:   "Path to the YAML configuration file (created with defaults if missing)",
				EnvVars: []string{"GATEWAY_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "Optional dotenv file loaded before the configuration",
			},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	if err := godotenv.Load(c.String("env-file")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading env file: %w", err)
	}

	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}

	log := newLogger(cfg.Logging)

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conv, err := converter.New(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := converter.CleanupBridge(); err != nil {
			log.WithError(err).Warn("Failed to remove extracted bridge script")
		}
	}()

	if b, ok := conv.(converter.Bootstrapper); ok && !cfg.Converter.SkipModelCheck {
		log.Info("Verifying model artifacts")
		if err := bootstrap.VerifyStartup(ctx, b, cfg.Converter.RequiredArtifacts, log); err != nil {
			return fmt.Errorf("startup check failed: %w", err)
		}
	}

	ledger, err := audit.Open(cfg.Storage.AuditDatabase, log)
	if err != nil {
		return err
	}
	defer ledger.Close()

	policy := cfg.UploadPolicy()
	store, err := storage.NewLocalStore(policy.QueueDir, policy.ProcessedDir)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	fetch := fetcher.New(fetcher.Options{
		Timeout:      cfg.FetchTimeout(),
		MaxBodyBytes: cfg.Fetcher.MaxBodyBytes,
		UserAgent:    cfg.Fetcher.UserAgent,
	}, log)

	svc := conversion.NewService(conv, fetch, cfg.Storage.TempDirectory, ledger, log)

	e := api.NewServer(&api.Dependencies{
		Conversion: svc,
		Uploads:    upload.NewManager(store, policy, svc, log),
		Processed:  store,
		Ledger:     ledger,
		Version:    Version,
	}, api.MiddlewareConfig{
		BodyLimit: cfg.Server.BodyLimit,
		Logger:    log,
	})

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      api.RequestTimeout(e, cfg.RequestTimeout(), log),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSeconds) * time.Second,
	}

	log.WithFields(logrus.Fields{
		"version":         Version,
		"build_time":      BuildTime,
		"listen":          cfg.GetServerAddr(),
		"converter":       conv.Name(),
		"data_dir":        cfg.Storage.DataDirectory,
		"audit_db":        ledger.Path(),
		"request_timeout": cfg.RequestTimeout().String(),
	}).Info("Starting docling-gateway")

	serverErr := make(chan error, 1)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
