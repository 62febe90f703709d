// Package csv writes each table to <dir>/<table>.csv with a header row.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"gdqvods/internal/storage"
	"gdqvods/internal/table"
)

func init() {
	storage.Register("csv", func(_ context.Context, cfg storage.Config) (storage.TableWriter, error) {
		return New(cfg.Dir, cfg.Log)
	})
}

// Writer is a directory of CSV files.
type Writer struct {
	dir string
	log logrus.FieldLogger
}

// New creates dir if needed.
func New(dir string, log logrus.FieldLogger) (*Writer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("csv: dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("csv: mkdir %s: %w", dir, err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Writer{dir: dir, log: log}, nil
}

// Path returns the file a table named name is written to.
func (w *Writer) Path(name string) string {
	return filepath.Join(w.dir, name+".csv")
}

// WriteTable writes t to a temporary file and renames it over the target, so
// readers never see a partial table.
func (w *Writer) WriteTable(ctx context.Context, t *table.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(t.Name, `/\`) || strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("csv: invalid table name %q", t.Name)
	}
	dst := w.Path(t.Name)
	tmp, err := os.CreateTemp(w.dir, "."+t.Name+"-*.csv")
	if err != nil {
		return fmt.Errorf("csv: create %s: %w", dst, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	cw := csv.NewWriter(tmp)
	if err := cw.Write(t.Columns); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("csv: write header: %w", err)
	}
	if err := cw.WriteAll(t.Strings()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("csv: write rows: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("csv: close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("csv: rename to %s: %w", dst, err)
	}
	w.log.WithFields(logrus.Fields{"table": t.Name, "rows": t.Len(), "path": dst}).Debug("csv: table written")
	return nil
}

// Close is a no-op; every table is flushed by WriteTable.
func (w *Writer) Close() error { return nil }
