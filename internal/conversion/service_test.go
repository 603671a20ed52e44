package conversion

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/docling-gateway/backend/internal/converter"
	"github.com/docling-gateway/backend/internal/fetcher"
	"github.com/docling-gateway/backend/internal/models"
	"github.com/docling-gateway/backend/internal/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type testEnv struct {
	svc      *Service
	conv     *testutil.MockConverter
	recorder *testutil.MockRecorder
	tempDir  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := quietLogger()
	env := &testEnv{
		conv:     testutil.NewMockConverter(),
		recorder: testutil.NewMockRecorder(),
		tempDir:  filepath.Join(t.TempDir(), "tmp"),
	}
	env.svc = NewService(env.conv, fetcher.New(fetcher.Options{}, log), env.tempDir, env.recorder, log)
	return env
}

func (e *testEnv) tempFiles(t *testing.T) []os.DirEntry {
	entries, err := os.ReadDir(e.tempDir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("reading temp dir: %v", err)
	}
	return entries
}

func TestService_DirectLocalPath(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0644))

	result, err := env.svc.Convert(context.Background(), models.ConversionRequest{Source: path})
	require.NoError(t, err)

	require.NotNil(t, result.Markdown)
	assert.Equal(t, "# Sample\n\nConverted text.", *result.Markdown)
	assert.Nil(t, result.Structured)
	assert.Equal(t, []string{path}, env.conv.Sources())

	records := env.recorder.Records()
	require.Len(t, records, 1)
	assert.Equal(t, models.SourceDirect, records[0].Kind)
	assert.Equal(t, models.RecordSucceeded, records[0].Status)
	assert.Equal(t, models.OutputMarkdown, records[0].OutputFormat)
	assert.Equal(t, "mock", records[0].Backend)
}

func TestService_RemoteFetchedAndRemoved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		io.WriteString(w, "%PDF-1.7")
	}))
	defer srv.Close()

	tests := []struct {
		name       string
		convertErr error
	}{
		{name: "conversion succeeds"},
		{name: "conversion fails", convertErr: errors.New("engine exploded")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.conv.ConvertFunc = func(ctx context.Context, source string) (*converter.Document, error) {
				if tt.convertErr != nil {
					return nil, tt.convertErr
				}
				return testutil.SampleDocument(), nil
			}

			_, err := env.svc.Convert(context.Background(), models.ConversionRequest{
				Source:       srv.URL + "/paper",
				OutputFormat: models.OutputAll,
			})

			sources := env.conv.Sources()
			require.Len(t, sources, 1)
			assert.Equal(t, ".pdf", filepath.Ext(sources[0]))
			assert.Equal(t, env.tempDir, filepath.Dir(sources[0]))
			assert.True(t, env.conv.SourceExisted[0], "transient file exists during conversion")
			assert.Empty(t, env.tempFiles(t), "transient file removed afterwards")

			if tt.convertErr != nil {
				require.Error(t, err)
				assert.Equal(t, KindConvert, KindOf(err))
				assert.Contains(t, err.Error(), "engine exploded")
			} else {
				require.NoError(t, err)
			}

			records := env.recorder.Records()
			require.Len(t, records, 1)
			assert.Equal(t, models.SourceRemote, records[0].Kind)
		})
	}
}

func TestService_HTMLURLIsDirect(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Convert(context.Background(), models.ConversionRequest{Source: "https://example.com/page.html"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/page.html"}, env.conv.Sources())
	assert.Empty(t, env.tempFiles(t))
}

func TestService_FetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	env := newTestEnv(t)
	_, err := env.svc.Convert(context.Background(), models.ConversionRequest{Source: srv.URL + "/missing"})
	require.Error(t, err)

	assert.Equal(t, KindFetch, KindOf(err))
	assert.Empty(t, env.conv.Sources(), "converter never called")
	assert.Empty(t, env.tempFiles(t))

	records := env.recorder.Records()
	require.Len(t, records, 1)
	assert.Equal(t, models.RecordFailed, records[0].Status)
	assert.Equal(t, "fetch", records[0].ErrorKind)
}

func TestService_Timeout(t *testing.T) {
	env := newTestEnv(t)
	env.conv.Delay = 5 * time.Second
	path := filepath.Join(t.TempDir(), "slow.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0644))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := env.svc.Convert(ctx, models.ConversionRequest{Source: path})
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))

	records := env.recorder.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "timeout", records[0].ErrorKind)
}

func TestService_Validation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Convert(context.Background(), models.ConversionRequest{Source: "  "})
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = env.svc.Convert(context.Background(), models.ConversionRequest{Source: "https://example.com/a.html", OutputFormat: "yaml"})
	assert.Equal(t, KindValidation, KindOf(err))

	assert.Empty(t, env.conv.Sources())
}

func TestService_ConvertUpload(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(t.TempDir(), "20261016_report.docx")
	require.NoError(t, os.WriteFile(path, []byte("PK"), 0644))

	result, err := env.svc.ConvertUpload(context.Background(), path, models.OutputJSON)
	require.NoError(t, err)
	assert.Nil(t, result.Markdown)
	assert.Equal(t, "DoclingDocument", result.Structured.(map[string]any)["schema_name"])

	records := env.recorder.Records()
	require.Len(t, records, 1)
	assert.Equal(t, models.SourceUpload, records[0].Kind)
}

func TestService_RecorderFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t)
	env.recorder.Err = errors.New("disk full")

	_, err := env.svc.Convert(context.Background(), models.ConversionRequest{Source: "https://example.com/a.htm"})
	assert.NoError(t, err)
}

func TestShape(t *testing.T) {
	doc := testutil.SampleDocument()

	tests := []struct {
		format       models.OutputFormat
		wantMarkdown bool
		wantJSON     bool
	}{
		{models.OutputMarkdown, true, false},
		{models.OutputJSON, false, true},
		{models.OutputAll, true, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			result := Shape(doc, tt.format)
			assert.Equal(t, tt.wantMarkdown, result.Markdown != nil)
			assert.Equal(t, tt.wantJSON, result.Structured != nil)
		})
	}

	empty := Shape(&converter.Document{}, models.OutputAll)
	require.NotNil(t, empty.Markdown)
	assert.Equal(t, "", *empty.Markdown)
	assert.NotNil(t, empty.Structured)
}

func TestIsDirect(t *testing.T) {
	existing := filepath.Join(t.TempDir(), "local.pdf")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0644))

	tests := []struct {
		source string
		want   bool
	}{
		{existing, true},
		{"file:///srv/docs/a.pdf", true},
		{"https://example.com/page.html", true},
		{"http://example.com/PAGE.HTM", true},
		{"https://example.com/page.html?x=1", true},
		{"https://example.com/paper.pdf", false},
		{"https://example.com/article", false},
		{"/does/not/exist.pdf", false},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDirect(tt.source))
		})
	}
}

func TestErrorKinds(t *testing.T) {
	base := errors.New("boom")

	wrapped := NewError(KindFetch, "fetch", base)
	assert.Equal(t, KindFetch, KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, base))
	assert.Equal(t, "fetch: boom", wrapped.Error())
	assert.Equal(t, "boom", Message(wrapped))

	// an existing kind is never double-wrapped
	again := NewError(KindUnexpected, "upload", wrapped)
	assert.Equal(t, KindFetch, KindOf(again))

	assert.Equal(t, KindUnexpected, KindOf(base))
	assert.Nil(t, NewError(KindConvert, "x", nil))
	assert.Equal(t, KindValidation, KindOf(Validationf("bad %s", "input")))
}
