// Package mssql writes tables into Microsoft SQL Server using the
// go-mssqldb bulk copy API.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"
	"github.com/sirupsen/logrus"

	"gdqvods/internal/storage"
	"gdqvods/internal/storage/ddl"
	"gdqvods/internal/table"
)

func init() {
	storage.Register("mssql", func(ctx context.Context, cfg storage.Config) (storage.TableWriter, error) {
		return Open(ctx, cfg.DSN, cfg.BatchSize, cfg.Log)
	})
}

// Writer is an MSSQL-backed storage.TableWriter.
type Writer struct {
	db        *sql.DB
	batchSize int
	log       logrus.FieldLogger
}

// Open validates dsn, connects and pings the server.
func Open(ctx context.Context, dsn string, batchSize int, log logrus.FieldLogger) (*Writer, error) {
	if _, err := msdsn.Parse(dsn); err != nil {
		return nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Writer{db: db, batchSize: batchSize, log: log}, nil
}

// WriteTable replaces t's table.
func (w *Writer) WriteTable(ctx context.Context, t *table.Table) error {
	if _, err := storage.WriteSQL(ctx, w.log, w, t, w.batchSize); err != nil {
		return fmt.Errorf("mssql: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (w *Writer) Close() error { return w.db.Close() }

// Dialect implements storage.SQLBackend.
func (w *Writer) Dialect() ddl.Dialect { return ddl.MSSQL }

// Exec implements storage.SQLBackend.
func (w *Writer) Exec(ctx context.Context, sqlText string) error {
	if strings.TrimSpace(sqlText) == "" {
		return nil
	}
	_, err := w.db.ExecContext(ctx, sqlText)
	return err
}

// CopyInto implements storage.SQLBackend. The table name is bracket-quoted;
// column names are matched against the server's metadata as given.
func (w *Writer) CopyInto(name string) storage.CopyFn {
	return func(ctx context.Context, columns []string, rows [][]any) (int64, error) {
		return bulkCopy(ctx, w.db, ddl.MSSQL.Quote(name), columns, rows)
	}
}

func bulkCopy(ctx context.Context, db *sql.DB, target string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	rollback := func() { _ = tx.Rollback() }

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(target, mssql.BulkOptions{}, columns...))
	if err != nil {
		rollback()
		return 0, fmt.Errorf("prepare bulk: %w", err)
	}
	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rows[i]...); err != nil {
			_ = stmt.Close()
			rollback()
			return 0, fmt.Errorf("bulk row %d: %w", i, err)
		}
	}
	res, err := stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		rollback()
		return 0, fmt.Errorf("bulk finalize: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		rollback()
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}
