package storage

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"gdqvods/internal/storage/ddl"
	"gdqvods/internal/table"
)

// SQLBackend is the per-database half of a SQL sink.
type SQLBackend interface {
	Dialect() ddl.Dialect
	Exec(ctx context.Context, sql string) error
	// CopyInto returns a CopyFn bound to the named table.
	CopyInto(name string) CopyFn
}

// WriteSQL drops and recreates the table described by t and bulk-loads its
// rows. Column names are folded to portable identifiers and column types are
// inferred from the values.
func WriteSQL(ctx context.Context, log logrus.FieldLogger, b SQLBackend, t *table.Table, batchSize int) (int64, error) {
	d := b.Dialect()
	def := ddl.Infer(t)

	if err := b.Exec(ctx, d.DropTableSQL(def.Name)); err != nil {
		return 0, fmt.Errorf("drop %s: %w", def.Name, err)
	}
	create, err := d.CreateTableSQL(def)
	if err != nil {
		return 0, err
	}
	if err := b.Exec(ctx, create); err != nil {
		return 0, fmt.Errorf("create %s: %w", def.Name, err)
	}

	rows := def.Rows(t)
	n, err := LoadBatches(ctx, log.WithField("table", def.Name), def.ColumnNames(), rows, batchSize, b.CopyInto(def.Name))
	if err != nil {
		return n, fmt.Errorf("load %s: %w", def.Name, err)
	}
	if n != int64(len(rows)) {
		return n, fmt.Errorf("load %s: inserted %d of %d rows", def.Name, n, len(rows))
	}
	return n, nil
}
