// Package sqlite writes tables into a SQLite database through database/sql
// and the pure-Go modernc.org/sqlite driver. Rows are inserted with a
// prepared statement inside one transaction per batch.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"gdqvods/internal/storage"
	"gdqvods/internal/storage/ddl"
	"gdqvods/internal/table"
)

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.TableWriter, error) {
		return Open(ctx, cfg.DSN, cfg.BatchSize, cfg.Log)
	})
}

// Writer is a SQLite-backed storage.TableWriter.
type Writer struct {
	db        *sql.DB
	batchSize int
	log       logrus.FieldLogger
}

// Open connects to dsn, e.g. "data/interim/gdqvods.db" or ":memory:".
func Open(ctx context.Context, dsn string, batchSize int, log logrus.FieldLogger) (*Writer, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// Each pooled connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Writer{db: db, batchSize: batchSize, log: log}, nil
}

// DB exposes the connection for callers that read back results.
func (w *Writer) DB() *sql.DB { return w.db }

// WriteTable replaces t's table.
func (w *Writer) WriteTable(ctx context.Context, t *table.Table) error {
	if _, err := storage.WriteSQL(ctx, w.log, w, t, w.batchSize); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (w *Writer) Close() error { return w.db.Close() }

// Dialect implements storage.SQLBackend.
func (w *Writer) Dialect() ddl.Dialect { return ddl.SQLite }

// Exec implements storage.SQLBackend.
func (w *Writer) Exec(ctx context.Context, stmt string) error {
	if strings.TrimSpace(stmt) == "" {
		return nil
	}
	if _, err := w.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

// CopyInto implements storage.SQLBackend.
func (w *Writer) CopyInto(name string) storage.CopyFn {
	return func(ctx context.Context, columns []string, rows [][]any) (int64, error) {
		return w.insert(ctx, name, columns, rows)
	}
}

func (w *Writer) insert(ctx context.Context, name string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("insert: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = ddl.SQLite.Quote(c)
		placeholders[i] = "?"
	}
	stmtSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		ddl.SQLite.Quote(name),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, row := range rows {
		if len(row) != len(columns) {
			_ = tx.Rollback()
			return 0, fmt.Errorf("insert: row length %d != columns length %d", len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("insert: %w", err)
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}
