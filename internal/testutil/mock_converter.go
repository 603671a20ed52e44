// mock_converter.go - Mock converter and audit recorder for testing
package testutil

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/docling-gateway/backend/internal/audit"
	"github.com/docling-gateway/backend/internal/converter"
	"github.com/docling-gateway/backend/internal/models"
)

// MockConverter implements converter.Converter. By default it returns a fixed document; set
// ConvertFunc to customize.
type MockConverter struct {
	ConvertFunc func(ctx context.Context, source string) (*converter.Document, error)

	// Delay blocks Convert until it elapses or ctx is done
	Delay time.Duration

	mu      sync.Mutex
	sources []string
	// SourceExisted records whether each source path existed at call time
	SourceExisted []bool
}

// NewMockConverter creates a converter that succeeds with a small document
func NewMockConverter() *MockConverter {
	return &MockConverter{}
}

// Name returns "mock"
func (m *MockConverter) Name() string { return "mock" }

func (m *MockConverter) Convert(ctx context.Context, source string) (*converter.Document, error) {
	_, statErr := os.Stat(source)

	m.mu.Lock()
	m.sources = append(m.sources, source)
	m.SourceExisted = append(m.SourceExisted, statErr == nil)
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.ConvertFunc != nil {
		return m.ConvertFunc(ctx, source)
	}
	return SampleDocument(), nil
}

// Sources returns every source Convert was called with
func (m *MockConverter) Sources() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sources...)
}

var _ converter.Converter = (*MockConverter)(nil)

// SampleDocument is the document MockConverter returns by default
func SampleDocument() *converter.Document {
	return &converter.Document{
		Markdown: "# Sample\n\nConverted text.",
		Structured: map[string]any{
			"schema_name": "DoclingDocument",
			"name":        "sample",
		},
	}
}

// MockRecorder collects audit records in memory
type MockRecorder struct {
	mu      sync.Mutex
	records []*models.ConversionRecord
	Err     error
}

// NewMockRecorder creates an empty recorder
func NewMockRecorder() *MockRecorder {
	return &MockRecorder{}
}

func (m *MockRecorder) Record(ctx context.Context, rec *models.ConversionRecord) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *MockRecorder) Recent(ctx context.Context, limit int) ([]*models.ConversionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.ConversionRecord
	for i := len(m.records) - 1; i >= 0; i-- {
		out = append(out, m.records[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MockRecorder) Summarize(ctx context.Context) (*audit.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s audit.Summary
	var total int64
	for _, rec := range m.records {
		s.Total++
		total += rec.DurationMs
		if rec.Status == models.RecordSucceeded {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	if s.Total > 0 {
		s.AvgDurationMs = float64(total) / float64(s.Total)
	}
	return &s, nil
}

// Records returns all recorded rows in insertion order
func (m *MockRecorder) Records() []*models.ConversionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.ConversionRecord(nil), m.records...)
}
