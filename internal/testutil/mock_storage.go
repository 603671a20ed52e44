// mock_storage.go - Mock staging store for testing
package testutil

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/docling-gateway/backend/internal/models"
	"github.com/docling-gateway/backend/internal/storage"
)

// MockStorage implements storage.Store in memory
type MockStorage struct {
	queued    map[string]*models.StagedFile
	processed map[string]*models.StagedFile
	data      map[string][]byte
	mu        sync.RWMutex

	// Injected failures
	StageErr   error
	PromoteErr error
	DiscardErr error
}

// NewMockStorage creates a new empty mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		queued:    make(map[string]*models.StagedFile),
		processed: make(map[string]*models.StagedFile),
		data:      make(map[string][]byte),
	}
}

func (m *MockStorage) Stage(name string, r io.Reader) (*models.StagedFile, error) {
	if m.StageErr != nil {
		return nil, m.StageErr
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := generateTestID()
	file := &models.StagedFile{
		ID:           id,
		OriginalName: name,
		StoredName:   id + "_" + name,
		Path:         "/mock/queue/" + id + "_" + name,
		Size:         int64(len(content)),
		StagedAt:     time.Now(),
		Status:       storage.StatusQueued,
	}
	m.queued[id] = file
	m.data[id] = content
	return file, nil
}

func (m *MockStorage) Promote(f *models.StagedFile) (*models.StagedFile, error) {
	if m.PromoteErr != nil {
		return nil, m.PromoteErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.queued[f.ID]; !ok {
		return nil, errors.New("file not queued")
	}
	delete(m.queued, f.ID)

	promoted := *f
	promoted.Path = "/mock/processed/" + f.StoredName
	promoted.Status = storage.StatusProcessed
	m.processed[f.ID] = &promoted
	return &promoted, nil
}

func (m *MockStorage) Discard(f *models.StagedFile) error {
	if m.DiscardErr != nil {
		return m.DiscardErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.queued, f.ID)
	delete(m.data, f.ID)
	return nil
}

func (m *MockStorage) ListProcessed(limit int) ([]*models.StagedFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var files []*models.StagedFile
	for _, file := range m.processed {
		files = append(files, file)
		if limit > 0 && len(files) >= limit {
			break
		}
	}
	return files, nil
}

// Ensure MockStorage implements storage.Store
var _ storage.Store = (*MockStorage)(nil)

// QueuedCount returns the number of files still in the queue
func (m *MockStorage) QueuedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.queued)
}

// ProcessedCount returns the number of promoted files
func (m *MockStorage) ProcessedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.processed)
}

// generateTestID generates a simple test ID
var testIDCounter int
var testIDMutex sync.Mutex

func generateTestID() string {
	testIDMutex.Lock()
	defer testIDMutex.Unlock()
	testIDCounter++
	return fmt.Sprintf("test-id-%d", testIDCounter)
}
