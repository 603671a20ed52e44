// Package config provides YAML-based configuration for the conversion gateway.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig represents the root YAML configuration structure
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Upload    UploadConfig    `yaml:"upload"`
	Converter ConverterConfig `yaml:"converter"`
	Fetcher   FetcherConfig   `yaml:"fetcher"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port                  int    `yaml:"port"`
	BindAddress           string `yaml:"bind_address"`
	ReadTimeoutSeconds    int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds   int    `yaml:"write_timeout_seconds"`
	IdleTimeoutSeconds    int    `yaml:"idle_timeout_seconds"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
	BodyLimit             string `yaml:"body_limit"`
}

// StorageConfig contains staging directory settings
type StorageConfig struct {
	DataDirectory      string `yaml:"data_directory"`
	QueueDirectory     string `yaml:"queue_directory"`
	ProcessedDirectory string `yaml:"processed_directory"`
	TempDirectory      string `yaml:"temp_directory"`
	AuditDatabase      string `yaml:"audit_database"`
}

// UploadConfig contains upload validation settings
type UploadConfig struct {
	MaxSizeBytes      int64    `yaml:"max_size_bytes"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// ConverterConfig selects and tunes the document converter backend
type ConverterConfig struct {
	Backend           string   `yaml:"backend"` // "docling" or "native"
	PythonPath        string   `yaml:"python_path"`
	TimeoutSeconds    int      `yaml:"timeout_seconds"`
	ArtifactsPath     string   `yaml:"artifacts_path"`
	RequiredArtifacts []string `yaml:"required_artifacts"`
	SkipModelCheck    bool     `yaml:"skip_model_check"`
}

// FetcherConfig contains remote fetch settings
type FetcherConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
	UserAgent      string `yaml:"user_agent"`
}

// LoggingConfig contains logger settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// UploadPolicy is the staging and validation policy handed to the upload workflow.
type UploadPolicy struct {
	QueueDir          string
	ProcessedDir      string
	MaxSizeBytes      int64
	AllowedExtensions []string
}

// Allows reports whether ext (with or without leading dot, any case) is permitted.
func (p UploadPolicy) Allows(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		return false
	}
	for _, allowed := range p.AllowedExtensions {
		if strings.ToLower(strings.TrimPrefix(allowed, ".")) == ext {
			return true
		}
	}
	return false
}

// DefaultMaxUploadSize is the upload ceiling (20 MiB).
const DefaultMaxUploadSize int64 = 20 * 1024 * 1024

// DefaultAllowedExtensions lists the document and image formats accepted for upload.
var DefaultAllowedExtensions = []string{"pdf", "docx", "pptx", "jpg", "jpeg", "png", "html", "adoc", "md", "markdown"}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:                  8000,
			BindAddress:           "0.0.0.0",
			ReadTimeoutSeconds:    60,
			WriteTimeoutSeconds:   180,
			IdleTimeoutSeconds:    120,
			RequestTimeoutSeconds: 120,
			BodyLimit:             "25M",
		},
		Storage: StorageConfig{
			DataDirectory:      ".",
			QueueDirectory:     "document_queue",
			ProcessedDirectory: "document_processed",
			TempDirectory:      "tmp",
			AuditDatabase:      "conversions.duckdb",
		},
		Upload: UploadConfig{
			MaxSizeBytes:      DefaultMaxUploadSize,
			AllowedExtensions: append([]string(nil), DefaultAllowedExtensions...),
		},
		Converter: ConverterConfig{
			Backend:        "docling",
			PythonPath:     "python3",
			TimeoutSeconds: 115,
			RequiredArtifacts: []string{
				"model_artifacts/layout",
				"model_artifacts/tableformer",
			},
		},
		Fetcher: FetcherConfig{
			TimeoutSeconds: 30,
			MaxBodyBytes:   DefaultMaxUploadSize,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from a YAML file, writing the defaults first if it is missing.
func LoadConfig(configPath string) (*AppConfig, error) {
	var cfg *AppConfig

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg = DefaultConfig()
		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		cfg = DefaultConfig()
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvironmentOverrides()
	cfg.resolvePaths(filepath.Dir(configPath))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# docling-gateway configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks values that would make the server unusable.
func (c *AppConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.Upload.MaxSizeBytes <= 0 {
		return fmt.Errorf("upload max size must be positive")
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		return fmt.Errorf("at least one allowed extension is required")
	}
	switch c.Converter.Backend {
	case "docling", "native":
	default:
		return fmt.Errorf("unknown converter backend: %q", c.Converter.Backend)
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if python := os.Getenv("DOCLING_PYTHON"); python != "" {
		c.Converter.PythonPath = python
	}

	if backend := os.Getenv("CONVERTER_BACKEND"); backend != "" {
		c.Converter.Backend = strings.ToLower(backend)
	}

	if artifacts := os.Getenv("DOCLING_ARTIFACTS_PATH"); artifacts != "" {
		c.Converter.ArtifactsPath = artifacts
	}

	if skip := os.Getenv("SKIP_MODEL_CHECK"); skip != "" {
		if b, err := strconv.ParseBool(skip); err == nil {
			c.Converter.SkipModelCheck = b
		}
	}
}

// resolvePaths converts relative paths to absolute. The data directory resolves against the
// config file location, the rest against the data directory.
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}

	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(c.Storage.DataDirectory, *p)
		}
	}
	resolve(&c.Storage.QueueDirectory)
	resolve(&c.Storage.ProcessedDirectory)
	resolve(&c.Storage.TempDirectory)
	resolve(&c.Storage.AuditDatabase)
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// RequestTimeout returns the hard per-request deadline.
func (c *AppConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// ConverterTimeout returns the per-conversion subprocess deadline.
func (c *AppConfig) ConverterTimeout() time.Duration {
	return time.Duration(c.Converter.TimeoutSeconds) * time.Second
}

// FetchTimeout returns the remote fetch deadline.
func (c *AppConfig) FetchTimeout() time.Duration {
	return time.Duration(c.Fetcher.TimeoutSeconds) * time.Second
}

// UploadPolicy builds the policy object for the upload workflow.
func (c *AppConfig) UploadPolicy() UploadPolicy {
	return UploadPolicy{
		QueueDir:          c.Storage.QueueDirectory,
		ProcessedDir:      c.Storage.ProcessedDirectory,
		MaxSizeBytes:      c.Upload.MaxSizeBytes,
		AllowedExtensions: c.Upload.AllowedExtensions,
	}
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.QueueDirectory,
		c.Storage.ProcessedDirectory,
		c.Storage.TempDirectory,
	}
	if c.Storage.AuditDatabase != "" {
		dirs = append(dirs, filepath.Dir(c.Storage.AuditDatabase))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
