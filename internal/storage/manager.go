package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docling-gateway/backend/internal/models"
	"github.com/google/uuid"
)

const (
	StatusQueued    = "queued"
	StatusProcessed = "processed"

	// maxReserveAttempts bounds the retries when a generated name is already taken.
	maxReserveAttempts = 5
)

// Store defines the interface for the queue/processed staging area.
type Store interface {
	Stage(name string, r io.Reader) (*models.StagedFile, error)
	Promote(f *models.StagedFile) (*models.StagedFile, error)
	Discard(f *models.StagedFile) error
	ListProcessed(limit int) ([]*models.StagedFile, error)
}

// LocalStore implements Store with two directories on the local filesystem.
// Files waiting for conversion live in queueDir; converted files are moved to processedDir.
type LocalStore struct {
	mu           sync.Mutex
	queueDir     string
	processedDir string
	now          func() time.Time
}

// NewLocalStore creates a new LocalStore, creating both directories if absent.
func NewLocalStore(queueDir, processedDir string) (*LocalStore, error) {
	for _, dir := range []string{queueDir, processedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating staging directory: %w", err)
		}
	}

	return &LocalStore{
		queueDir:     queueDir,
		processedDir: processedDir,
		now:          time.Now,
	}, nil
}

// QueueDir returns the queue directory path.
func (s *LocalStore) QueueDir() string { return s.queueDir }

// ProcessedDir returns the processed directory path.
func (s *LocalStore) ProcessedDir() string { return s.processedDir }

// Stage writes r into the queue directory under a date-prefixed name.
func (s *LocalStore) Stage(name string, r io.Reader) (*models.StagedFile, error) {
	base := sanitizeName(name)
	stagedAt := s.now()

	f, storedName, err := s.reserve(base, stagedAt)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(s.queueDir, storedName)
	size, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}

	return &models.StagedFile{
		ID:           uuid.New().String(),
		OriginalName: name,
		StoredName:   storedName,
		Path:         path,
		Size:         size,
		StagedAt:     stagedAt,
		Status:       StatusQueued,
	}, nil
}

// reserve atomically creates an empty queue file whose name is free in both directories.
// The plain "<date>_<name>" form is tried first, then a short random id is inserted.
func (s *LocalStore) reserve(base string, at time.Time) (*os.File, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	date := at.Format("20060102")
	candidate := date + "_" + base

	for attempt := 0; attempt < maxReserveAttempts; attempt++ {
		if attempt > 0 {
			candidate = fmt.Sprintf("%s_%s_%s", date, uuid.New().String()[:8], base)
		}

		if exists(filepath.Join(s.processedDir, candidate)) {
			continue
		}

		f, err := os.OpenFile(filepath.Join(s.queueDir, candidate), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			return f, candidate, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("creating file: %w", err)
		}
	}

	return nil, "", fmt.Errorf("could not reserve a unique name for %s", base)
}

// Promote moves a queued file into the processed directory.
func (s *LocalStore) Promote(f *models.StagedFile) (*models.StagedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := filepath.Join(s.processedDir, f.StoredName)
	storedName := f.StoredName
	if exists(target) {
		storedName = fmt.Sprintf("%s_%s", uuid.New().String()[:8], f.StoredName)
		target = filepath.Join(s.processedDir, storedName)
	}

	if err := os.Rename(f.Path, target); err != nil {
		return nil, fmt.Errorf("moving file to processed: %w", err)
	}

	promoted := *f
	promoted.StoredName = storedName
	promoted.Path = target
	promoted.Status = StatusProcessed
	return &promoted, nil
}

// Discard removes a queued file. A file that is already gone is not an error.
func (s *LocalStore) Discard(f *models.StagedFile) error {
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

// ListProcessed returns the most recently processed files.
func (s *LocalStore) ListProcessed(limit int) ([]*models.StagedFile, error) {
	entries, err := os.ReadDir(s.processedDir)
	if err != nil {
		return nil, fmt.Errorf("reading processed directory: %w", err)
	}

	var list []*models.StagedFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		list = append(list, &models.StagedFile{
			OriginalName: originalName(entry.Name()),
			StoredName:   entry.Name(),
			Path:         filepath.Join(s.processedDir, entry.Name()),
			Size:         info.Size(),
			StagedAt:     info.ModTime(),
			Status:       StatusProcessed,
		})
	}

	// Sort by modification time desc
	sort.Slice(list, func(i, j int) bool {
		return list[i].StagedAt.After(list[j].StagedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	return list, nil
}

// sanitizeName strips any directory component from a client-supplied file name.
func sanitizeName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.TrimSpace(base)
	if base == "" || base == "." || base == "/" || base == ".." {
		return "upload"
	}
	return base
}

// originalName recovers the client file name from a stored "<date>_[<id>_]<name>" form.
func originalName(stored string) string {
	parts := strings.SplitN(stored, "_", 2)
	if len(parts) != 2 || len(parts[0]) != 8 {
		return stored
	}
	return parts[1]
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
