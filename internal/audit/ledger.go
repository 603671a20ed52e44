// Package audit keeps an append-only ledger of conversion attempts in DuckDB.
package audit

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"

	"github.com/docling-gateway/backend/internal/models"
	"github.com/marcboeker/go-duckdb"
	"github.com/sirupsen/logrus"
)

const defaultRecentLimit = 50

// Ledger stores one row per conversion attempt.
type Ledger struct {
	db   *sql.DB
	path string
}

// Summary aggregates the ledger by outcome.
type Summary struct {
	Total         int64   `json:"total" msgpack:"total"`
	Succeeded     int64   `json:"succeeded" msgpack:"succeeded"`
	Failed        int64   `json:"failed" msgpack:"failed"`
	AvgDurationMs float64 `json:"avgDurationMs" msgpack:"avgDurationMs"`
}

// Open opens or creates the ledger database at path.
func Open(path string, log *logrus.Logger) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	connector, err := duckdb.NewConnector(path, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='256MB'",
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				log.WithError(err).WithField("pragma", pragma).Warn("Ledger pragma failed")
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS conversions (
			id            VARCHAR PRIMARY KEY,
			kind          VARCHAR NOT NULL,
			source        VARCHAR NOT NULL,
			output_format VARCHAR NOT NULL,
			backend       VARCHAR NOT NULL,
			status        VARCHAR NOT NULL,
			error_kind    VARCHAR,
			error         VARCHAR,
			duration_ms   BIGINT NOT NULL,
			created_at    TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create conversions table: %w", err)
	}

	log.WithField("path", path).Debug("Conversion ledger opened")
	return &Ledger{db: db, path: path}, nil
}

// Record appends a conversion attempt.
func (l *Ledger) Record(ctx context.Context, rec *models.ConversionRecord) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO conversions
			(id, kind, source, output_format, backend, status, error_kind, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		string(rec.Kind),
		rec.Source,
		string(rec.OutputFormat),
		rec.Backend,
		string(rec.Status),
		nullString(rec.ErrorKind),
		nullString(rec.Error),
		rec.DurationMs,
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversion record: %w", err)
	}
	return nil
}

// Recent returns the newest records first. A non-positive limit uses the default.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]*models.ConversionRecord, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	rows, err := l.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, kind, source, output_format, backend, status, error_kind, error, duration_ms, created_at
		FROM conversions
		ORDER BY created_at DESC, id
		LIMIT %d`, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query conversions: %w", err)
	}
	defer rows.Close()

	records := make([]*models.ConversionRecord, 0, limit)
	for rows.Next() {
		var (
			rec                    models.ConversionRecord
			kind, format, status   string
			errorKind, errorString sql.NullString
		)
		if err := rows.Scan(&rec.ID, &kind, &rec.Source, &format, &rec.Backend, &status,
			&errorKind, &errorString, &rec.DurationMs, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversion: %w", err)
		}
		rec.Kind = models.SourceKind(kind)
		rec.OutputFormat = models.OutputFormat(format)
		rec.Status = models.RecordStatus(status)
		rec.ErrorKind = errorKind.String
		rec.Error = errorString.String
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// Summarize aggregates all records.
func (l *Ledger) Summarize(ctx context.Context) (*Summary, error) {
	var (
		s   Summary
		avg sql.NullFloat64
	)
	err := l.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = ?),
			COUNT(*) FILTER (WHERE status = ?),
			AVG(duration_ms)
		FROM conversions`,
		string(models.RecordSucceeded), string(models.RecordFailed),
	).Scan(&s.Total, &s.Succeeded, &s.Failed, &avg)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize conversions: %w", err)
	}
	s.AvgDurationMs = avg.Float64
	return &s, nil
}

// Path returns the database file location.
func (l *Ledger) Path() string { return l.path }

// Close closes the database.
func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
