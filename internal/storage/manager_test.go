// manager_test.go - Tests for the staging store
package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *LocalStore {
	t.Helper()
	root := t.TempDir()
	store, err := NewLocalStore(filepath.Join(root, "document_queue"), filepath.Join(root, "document_processed"))
	require.NoError(t, err)
	store.now = func() time.Time { return time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC) }
	return store
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates both directories", func(t *testing.T) {
		root := t.TempDir()
		queue := filepath.Join(root, "q")
		processed := filepath.Join(root, "p")

		_, err := NewLocalStore(queue, processed)
		require.NoError(t, err)

		for _, dir := range []string{queue, processed} {
			info, err := os.Stat(dir)
			if assert.NoError(t, err) {
				assert.True(t, info.IsDir())
			}
		}
	})
}

func TestLocalStore_Stage(t *testing.T) {
	t.Run("writes date-prefixed file into queue", func(t *testing.T) {
		store := createTestStore(t)

		f, err := store.Stage("report.pdf", strings.NewReader("%PDF-1.4"))
		require.NoError(t, err)

		assert.Equal(t, "20261016_report.pdf", f.StoredName)
		assert.Equal(t, StatusQueued, f.Status)
		assert.Equal(t, int64(8), f.Size)
		assert.NotEmpty(t, f.ID)

		data, err := os.ReadFile(filepath.Join(store.QueueDir(), "20261016_report.pdf"))
		require.NoError(t, err)
		assert.Equal(t, "%PDF-1.4", string(data))
	})

	t.Run("strips directory components", func(t *testing.T) {
		store := createTestStore(t)

		f, err := store.Stage("../../etc/passwd.md", strings.NewReader("x"))
		require.NoError(t, err)
		assert.Equal(t, "20261016_passwd.md", f.StoredName)
		assert.Equal(t, store.QueueDir(), filepath.Dir(f.Path))

		f, err = store.Stage(`C:\Users\me\notes.md`, strings.NewReader("x"))
		require.NoError(t, err)
		assert.Equal(t, "20261016_notes.md", f.StoredName)
	})

	t.Run("same-day duplicate gets a distinct name", func(t *testing.T) {
		store := createTestStore(t)

		first, err := store.Stage("a.pdf", strings.NewReader("one"))
		require.NoError(t, err)
		second, err := store.Stage("a.pdf", strings.NewReader("two"))
		require.NoError(t, err)

		assert.NotEqual(t, first.StoredName, second.StoredName)
		assert.True(t, strings.HasPrefix(second.StoredName, "20261016_"))
		assert.True(t, strings.HasSuffix(second.StoredName, "_a.pdf"))
		assert.Len(t, dirEntries(t, store.QueueDir()), 2)
	})

	t.Run("name taken in processed is not reused", func(t *testing.T) {
		store := createTestStore(t)
		require.NoError(t, os.WriteFile(filepath.Join(store.ProcessedDir(), "20261016_a.pdf"), []byte("old"), 0644))

		f, err := store.Stage("a.pdf", strings.NewReader("new"))
		require.NoError(t, err)
		assert.NotEqual(t, "20261016_a.pdf", f.StoredName)
	})
}

func TestLocalStore_Promote(t *testing.T) {
	store := createTestStore(t)

	f, err := store.Stage("doc.docx", strings.NewReader("content"))
	require.NoError(t, err)

	promoted, err := store.Promote(f)
	require.NoError(t, err)

	assert.Equal(t, StatusProcessed, promoted.Status)
	assert.Equal(t, filepath.Join(store.ProcessedDir(), "20261016_doc.docx"), promoted.Path)
	assert.Empty(t, dirEntries(t, store.QueueDir()))
	assert.Equal(t, []string{"20261016_doc.docx"}, dirEntries(t, store.ProcessedDir()))
}

func TestLocalStore_PromoteDoesNotOverwrite(t *testing.T) {
	store := createTestStore(t)

	f, err := store.Stage("doc.md", strings.NewReader("new"))
	require.NoError(t, err)

	// Another process finished the same name in the meantime.
	require.NoError(t, os.WriteFile(filepath.Join(store.ProcessedDir(), f.StoredName), []byte("old"), 0644))

	promoted, err := store.Promote(f)
	require.NoError(t, err)
	assert.NotEqual(t, f.StoredName, promoted.StoredName)
	assert.Len(t, dirEntries(t, store.ProcessedDir()), 2)

	old, err := os.ReadFile(filepath.Join(store.ProcessedDir(), f.StoredName))
	require.NoError(t, err)
	assert.Equal(t, "old", string(old))
}

func TestLocalStore_Discard(t *testing.T) {
	store := createTestStore(t)

	f, err := store.Stage("doc.md", strings.NewReader("content"))
	require.NoError(t, err)

	require.NoError(t, store.Discard(f))
	assert.Empty(t, dirEntries(t, store.QueueDir()))

	// second discard is a no-op
	assert.NoError(t, store.Discard(f))
}

func TestLocalStore_ListProcessed(t *testing.T) {
	store := createTestStore(t)

	for _, name := range []string{"a.md", "b.md", "c.md"} {
		f, err := store.Stage(name, strings.NewReader(name))
		require.NoError(t, err)
		_, err = store.Promote(f)
		require.NoError(t, err)
	}

	files, err := store.ListProcessed(10)
	require.NoError(t, err)
	assert.Len(t, files, 3)

	names := map[string]bool{}
	for _, f := range files {
		names[f.OriginalName] = true
	}
	assert.True(t, names["a.md"] && names["b.md"] && names["c.md"])

	limited, err := store.ListProcessed(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
