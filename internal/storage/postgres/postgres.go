// Package postgres writes tables into PostgreSQL with pgx v5. Each batch is
// streamed with the COPY protocol.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"gdqvods/internal/storage"
	"gdqvods/internal/storage/ddl"
	"gdqvods/internal/table"
)

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.TableWriter, error) {
		return Open(ctx, cfg.DSN, cfg.BatchSize, cfg.Log)
	})
}

// Writer is a Postgres-backed storage.TableWriter.
type Writer struct {
	pool      *pgxpool.Pool
	batchSize int
	log       logrus.FieldLogger
}

// Open creates a connection pool for dsn and verifies it.
func Open(ctx context.Context, dsn string, batchSize int, log logrus.FieldLogger) (*Writer, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres: DSN must not be empty")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Writer{pool: pool, batchSize: batchSize, log: log}, nil
}

// WriteTable replaces t's table.
func (w *Writer) WriteTable(ctx context.Context, t *table.Table) error {
	if _, err := storage.WriteSQL(ctx, w.log, w, t, w.batchSize); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	return nil
}

// Close releases the pool.
func (w *Writer) Close() error {
	w.pool.Close()
	return nil
}

// Dialect implements storage.SQLBackend.
func (w *Writer) Dialect() ddl.Dialect { return ddl.Postgres }

// Exec implements storage.SQLBackend.
func (w *Writer) Exec(ctx context.Context, sql string) error {
	if strings.TrimSpace(sql) == "" {
		return nil
	}
	_, err := w.pool.Exec(ctx, sql)
	return err
}

// CopyInto implements storage.SQLBackend.
func (w *Writer) CopyInto(name string) storage.CopyFn {
	return func(ctx context.Context, columns []string, rows [][]any) (int64, error) {
		if len(rows) == 0 {
			return 0, nil
		}
		return w.pool.CopyFrom(ctx, Identifier(name), columns, pgx.CopyFromRows(rows))
	}
}

// Identifier splits an optionally schema-qualified name for pgx.
func Identifier(name string) pgx.Identifier {
	parts := strings.Split(name, ".")
	out := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
