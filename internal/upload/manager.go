package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/docling-gateway/backend/internal/config"
	"github.com/docling-gateway/backend/internal/conversion"
	"github.com/docling-gateway/backend/internal/models"
	"github.com/docling-gateway/backend/internal/storage"
	"github.com/sirupsen/logrus"
)

// Converter converts a staged file. Implemented by conversion.Service.
type Converter interface {
	ConvertUpload(ctx context.Context, path string, format models.OutputFormat) (*models.ConversionResult, error)
}

// Outcome is the result of a successful upload conversion.
type Outcome struct {
	Result *models.ConversionResult
	File   *models.StagedFile
}

// Manager runs the upload workflow: validate, stage in the queue directory, convert, then
// promote to the processed directory or discard.
type Manager struct {
	store     storage.Store
	policy    config.UploadPolicy
	converter Converter
	log       *logrus.Logger
}

// NewManager creates a new upload workflow manager.
func NewManager(store storage.Store, policy config.UploadPolicy, conv Converter, log *logrus.Logger) *Manager {
	return &Manager{
		store:     store,
		policy:    policy,
		converter: conv,
		log:       log,
	}
}

// Policy returns the validation policy in effect.
func (m *Manager) Policy() config.UploadPolicy { return m.policy }

// Process validates and converts one uploaded file. A file that fails validation never
// reaches either directory; a file whose conversion fails is removed from the queue.
func (m *Manager) Process(ctx context.Context, name string, file io.ReadSeeker, format models.OutputFormat) (out *Outcome, err error) {
	upload, err := m.validate(name, file)
	if err != nil {
		return nil, err
	}

	entry := m.log.WithFields(logrus.Fields{
		"file":      upload.OriginalName,
		"extension": upload.Extension,
		"size":      upload.Size,
	})

	staged, err := m.store.Stage(upload.OriginalName, file)
	if err != nil {
		return nil, conversion.NewError(conversion.KindUnexpected, "stage", err)
	}
	entry = entry.WithField("stored_name", staged.StoredName)
	entry.Debug("Upload staged")

	defer func() {
		if r := recover(); r != nil {
			m.discard(staged, entry)
			out = nil
			err = &conversion.Error{Kind: conversion.KindUnexpected, Op: "upload", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	result, err := m.converter.ConvertUpload(ctx, staged.Path, format)
	if err != nil {
		m.discard(staged, entry)
		return nil, conversion.NewError(conversion.KindUnexpected, "upload", err)
	}

	processed, err := m.store.Promote(staged)
	if err != nil {
		m.discard(staged, entry)
		return nil, conversion.NewError(conversion.KindUnexpected, "promote", err)
	}

	entry.WithField("processed_name", processed.StoredName).Info("Upload converted")
	return &Outcome{Result: result, File: processed}, nil
}

// validate checks the extension and size and rewinds the stream for staging.
func (m *Manager) validate(name string, file io.ReadSeeker) (*models.UploadedFile, error) {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(base), "."))
	if base == "" || base == "." || base == "/" {
		return nil, conversion.Validationf("file name is required")
	}
	if !m.policy.Allows(ext) {
		return nil, UnsupportedFormatError(m.policy)
	}

	size, err := io.CopyN(io.Discard, file, m.policy.MaxSizeBytes+1)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, conversion.NewError(conversion.KindUnexpected, "read upload", err)
	}
	if size > m.policy.MaxSizeBytes {
		return nil, TooLargeError(m.policy)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, conversion.NewError(conversion.KindUnexpected, "rewind upload", err)
	}

	return &models.UploadedFile{
		OriginalName: base,
		Extension:    ext,
		Size:         size,
	}, nil
}

func (m *Manager) discard(f *models.StagedFile, entry *logrus.Entry) {
	if err := m.store.Discard(f); err != nil {
		entry.WithError(err).Warn("Failed to remove queued file")
	}
}

// UnsupportedFormatError is the validation error for an extension outside the allow-list.
func UnsupportedFormatError(policy config.UploadPolicy) error {
	allowed := make([]string, len(policy.AllowedExtensions))
	for i, ext := range policy.AllowedExtensions {
		allowed[i] = "." + strings.ToLower(strings.TrimPrefix(ext, "."))
	}
	return conversion.Validationf("Unsupported file format. Allowed: %s", strings.Join(allowed, ", "))
}

// TooLargeError is the validation error for an upload over the size ceiling.
func TooLargeError(policy config.UploadPolicy) error {
	return conversion.Validationf("File too large. Maximum size is %s", formatBytes(policy.MaxSizeBytes))
}

func formatBytes(n int64) string {
	const mib = 1024 * 1024
	if n%mib == 0 {
		return fmt.Sprintf("%d MB", n/mib)
	}
	return fmt.Sprintf("%d bytes", n)
}
